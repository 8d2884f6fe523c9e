// Package server implements the MessagePack session IPC spec.md §6
// names: initialize/finalize, create_session/destroy_session/
// find_session/cleanup_stale_sessions, process_key/
// simulate_key_sequence, get_context/get_commit/get_status. It owns no
// translation logic itself — every session wraps one pkg/engine.Engine,
// built from a loaded schema and shared dictionary/user-dictionary
// handles.
package server

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Leon0824/rimeime/internal/keysym"
	"github.com/Leon0824/rimeime/internal/logger"
	"github.com/Leon0824/rimeime/pkg/config"
	"github.com/Leon0824/rimeime/pkg/dictionary"
	"github.com/Leon0824/rimeime/pkg/engine"
	"github.com/Leon0824/rimeime/pkg/schema"
	"github.com/Leon0824/rimeime/pkg/syllable"
	"github.com/Leon0824/rimeime/pkg/translator"
	"github.com/Leon0824/rimeime/pkg/userdict"
)

var log = logger.New("server")

// Traits mirrors initialize(traits{...}) (spec.md §6): where to find
// compiled dictionaries and where the shared UserDb lives.
type Traits struct {
	SharedDataDir string
	UserDataDir   string
}

// Server owns every live Session plus the shared, process-wide handles
// (dictionary mmaps, the user dictionary) sessions are built over.
type Server struct {
	traits     Traits
	config     *config.Config
	configPath string

	userDict *userdict.UserDictionary

	mu       sync.Mutex
	sessions map[string]*Session

	decoder      *msgpack.Decoder
	writeMutex   sync.Mutex
	requestCount int64
}

// Initialize opens the process-wide shared UserDb and returns a Server
// ready to create sessions (spec.md §6's initialize(traits)).
func Initialize(traits Traits, cfg *config.Config, configPath string) (*Server, error) {
	if err := os.MkdirAll(traits.UserDataDir, 0755); err != nil {
		return nil, fmt.Errorf("server: initialize user data dir: %w", err)
	}
	userDbPath := filepath.Join(traits.UserDataDir, cfg.UserDb.Path)
	u, err := userdict.Open(userDbPath)
	if err != nil {
		return nil, fmt.Errorf("server: open shared user dictionary: %w", err)
	}
	return &Server{
		traits:     traits,
		config:     cfg,
		configPath: configPath,
		userDict:   u,
		sessions:   make(map[string]*Session),
		decoder:    msgpack.NewDecoder(os.Stdin),
	}, nil
}

// Finalize releases the shared UserDb. Individual sessions' Dictionary
// handles are released by DestroySession, per pkg/dictionary's
// refcounted registry.
func (s *Server) Finalize() error {
	return s.userDict.Close()
}

func (s *Server) reloadConfig() {
	cfg, err := config.LoadConfig(s.configPath)
	if err != nil {
		log.Warnf("server: config reload failed, keeping current: %v", err)
		return
	}
	s.config = cfg
	log.Debugf("server: config reloaded from %s", s.configPath)
}

// CreateSession builds a fresh Engine from the named schema and returns
// its new SessionId. Schema-config-missing is one of the two conditions
// spec.md §7 allows to fail session creation itself.
func (s *Server) CreateSession(schemaPath string) (string, error) {
	sch, err := schema.Load(schemaPath)
	if err != nil {
		return "", fmt.Errorf("server: create_session: %w", err)
	}

	d, err := dictionary.Load(s.traits.SharedDataDir, sch.Translator.Dictionary)
	if err != nil {
		return "", fmt.Errorf("server: create_session: load dictionary %s: %w", sch.Translator.Dictionary, err)
	}

	p := d.Prism()
	syllabifier := syllable.New(p, sch.Delimiters(), sch.Translator.EnableCompletion)

	tr := &translator.Translator{
		Dict:             d,
		UserDict:         s.userDict,
		EnableUserDict:   sch.Translator.EnableUserDict,
		EnableCompletion: sch.Translator.EnableCompletion,
		Delimiters:       sch.Delimiters(),
	}

	e := engine.New(syllabifier, tr, sch.Delimiters())
	e.DictClose = d.Close

	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = newSession(id, sch.SchemaInfo.SchemaID, e)
	s.mu.Unlock()
	log.Debugf("server: created session %s for schema %s", id, sch.SchemaInfo.SchemaID)
	return id, nil
}

// DestroySession tears down a session and releases its Dictionary share.
func (s *Server) DestroySession(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	if sess.Engine.DictClose != nil {
		if err := sess.Engine.DictClose(); err != nil {
			log.Warnf("server: destroy_session %s: dictionary close failed: %v", id, err)
		}
	}
	delete(s.sessions, id)
	return true
}

// FindSession reports whether id names a live session.
func (s *Server) FindSession(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	return ok
}

// CleanupStaleSessions destroys every session untouched for longer than
// the configured staleness window, returning how many were removed.
func (s *Server) CleanupStaleSessions() int {
	cutoff := time.Now().Add(-time.Duration(s.config.Session.StaleAfterSeconds) * time.Second)
	s.mu.Lock()
	var stale []string
	for id, sess := range s.sessions {
		if sess.LastActive.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()
	for _, id := range stale {
		s.DestroySession(id)
	}
	return len(stale)
}

func (s *Server) session(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// ProcessKey decodes one X11 keysym/mask pair and applies it to id's
// session (spec.md §6's process_key).
func (s *Server) ProcessKey(id string, keycode, mask uint32) bool {
	sess, ok := s.session(id)
	if !ok {
		return false
	}
	sess.touch()
	return sess.Engine.ProcessKey(keysym.KeyEvent{KeyCode: keycode, Mask: mask})
}

// SimulateKeySequence feeds str through id's session one rune at a time.
func (s *Server) SimulateKeySequence(id, str string) bool {
	sess, ok := s.session(id)
	if !ok {
		return false
	}
	sess.touch()
	return sess.Engine.SimulateKeySequence(str)
}

// GetContext renders id's current composition/menu state.
func (s *Server) GetContext(id string) (ContextView, bool) {
	sess, ok := s.session(id)
	if !ok {
		return ContextView{}, false
	}
	return sess.Context(), true
}

// GetCommit drains and returns id's pending commit text.
func (s *Server) GetCommit(id string) (string, bool) {
	sess, ok := s.session(id)
	if !ok {
		return "", false
	}
	return sess.drainCommit(), true
}

// GetStatus reports id's schema identity and composing flags.
func (s *Server) GetStatus(id string) (StatusView, bool) {
	sess, ok := s.session(id)
	if !ok {
		return StatusView{}, false
	}
	return sess.Status(), true
}

// request is the raw decoded shape of one MessagePack IPC call. Only
// the fields relevant to its action are populated; unset fields decode
// to their zero value, matching the teacher server's direct
// map[string]interface{} field access rather than a strict schema.
type request struct {
	Action  string `msgpack:"action"`
	ID      string `msgpack:"id"`
	Session string `msgpack:"session"`
	Str     string `msgpack:"str"`
	Schema  string `msgpack:"schema"`
	KeyCode uint32 `msgpack:"keycode"`
	Mask    uint32 `msgpack:"mask"`
}

type response struct {
	ID     string      `msgpack:"id"`
	OK     bool        `msgpack:"ok"`
	Error  string      `msgpack:"error,omitempty"`
	Result interface{} `msgpack:"result,omitempty"`
}

// Serve reads one request per loop iteration from stdin and writes one
// response to stdout, until EOF (spec.md §5: single-threaded
// cooperative per session; this loop itself is the single reader).
func (s *Server) Serve() error {
	for {
		if err := s.handleOne(); err != nil {
			if err == io.EOF {
				log.Debug("server: client disconnected")
				return nil
			}
			log.Warnf("server: request error: %v", err)
		}
	}
}

func (s *Server) handleOne() error {
	s.requestCount++
	if s.requestCount%100 == 0 {
		s.reloadConfig()
	}
	if s.requestCount%50 == 0 {
		s.CleanupStaleSessions()
	}

	var req request
	if err := s.decoder.Decode(&req); err != nil {
		return err
	}

	switch req.Action {
	case "create_session":
		id, err := s.CreateSession(req.Schema)
		if err != nil {
			return s.send(response{ID: req.ID, Error: err.Error()})
		}
		return s.send(response{ID: req.ID, OK: true, Result: id})
	case "destroy_session":
		return s.send(response{ID: req.ID, OK: s.DestroySession(req.Session)})
	case "find_session":
		return s.send(response{ID: req.ID, OK: s.FindSession(req.Session)})
	case "cleanup_stale_sessions":
		return s.send(response{ID: req.ID, OK: true, Result: s.CleanupStaleSessions()})
	case "process_key":
		return s.send(response{ID: req.ID, OK: s.ProcessKey(req.Session, req.KeyCode, req.Mask)})
	case "simulate_key_sequence":
		return s.send(response{ID: req.ID, OK: s.SimulateKeySequence(req.Session, req.Str)})
	case "get_context":
		ctx, ok := s.GetContext(req.Session)
		return s.send(response{ID: req.ID, OK: ok, Result: ctx})
	case "get_commit":
		text, ok := s.GetCommit(req.Session)
		return s.send(response{ID: req.ID, OK: ok, Result: text})
	case "get_status":
		st, ok := s.GetStatus(req.Session)
		return s.send(response{ID: req.ID, OK: ok, Result: st})
	default:
		return s.send(response{ID: req.ID, Error: fmt.Sprintf("unknown action %q", req.Action)})
	}
}

// send encodes resp and writes it to stdout atomically.
func (s *Server) send(resp response) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(resp); err != nil {
		return fmt.Errorf("server: encode response: %w", err)
	}
	if _, err := os.Stdout.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("server: write response: %w", err)
	}
	return nil
}
