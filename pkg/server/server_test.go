package server

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Leon0824/rimeime/internal/keysym"
	"github.com/Leon0824/rimeime/pkg/config"
	"github.com/Leon0824/rimeime/pkg/dictionary"
	"github.com/Leon0824/rimeime/pkg/vocabulary"
)

const testSource = "哈\tha\t1.0\n好\thao\t1.0\n好吗\thao ma\t2.0\n"

const testSchemaYAML = `
schema:
  schema_id: test_schema
translator:
  dictionary: test
  enable_user_dict: true
speller:
  delimiter: " "
engine:
  translators: ["table_translator"]
`

func buildTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dataDir := t.TempDir()
	userDir := t.TempDir()

	entries, err := vocabulary.ParseSource(strings.NewReader(testSource))
	require.NoError(t, err)
	require.NoError(t, dictionary.Compile(dataDir, "test", entries))

	schemaPath := filepath.Join(dataDir, "test.schema.yaml")
	require.NoError(t, os.WriteFile(schemaPath, []byte(testSchemaYAML), 0644))

	cfg := config.DefaultConfig()
	configPath := filepath.Join(userDir, "rimeime.toml")
	require.NoError(t, config.SaveConfig(cfg, configPath))

	srv, err := Initialize(Traits{SharedDataDir: dataDir, UserDataDir: userDir}, cfg, configPath)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Finalize() })

	return srv, schemaPath
}

func TestCreateFindDestroySession(t *testing.T) {
	srv, schemaPath := buildTestServer(t)

	id, err := srv.CreateSession(schemaPath)
	require.NoError(t, err)
	assert.True(t, srv.FindSession(id))

	assert.True(t, srv.DestroySession(id))
	assert.False(t, srv.FindSession(id))
}

func TestCreateSessionMissingSchemaFails(t *testing.T) {
	srv, _ := buildTestServer(t)
	_, err := srv.CreateSession(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestProcessKeyAndCommitFlow(t *testing.T) {
	srv, schemaPath := buildTestServer(t)
	id, err := srv.CreateSession(schemaPath)
	require.NoError(t, err)
	defer srv.DestroySession(id)

	for _, r := range "hao" {
		require.True(t, srv.ProcessKey(id, uint32(r), 0))
	}

	ctx, ok := srv.GetContext(id)
	require.True(t, ok)
	assert.True(t, ctx.Composition.IsComposing)
	require.NotEmpty(t, ctx.Menu.Candidates)
	assert.Equal(t, "好", ctx.Menu.Candidates[0].Text)

	require.True(t, srv.ProcessKey(id, keysym.KeyReturn, 0))

	text, ok := srv.GetCommit(id)
	require.True(t, ok)
	assert.Equal(t, "好", text)

	// get_commit drains: a second read sees nothing pending.
	text2, ok := srv.GetCommit(id)
	require.True(t, ok)
	assert.Empty(t, text2)
}

func TestGetStatusReportsSchemaID(t *testing.T) {
	srv, schemaPath := buildTestServer(t)
	id, err := srv.CreateSession(schemaPath)
	require.NoError(t, err)
	defer srv.DestroySession(id)

	st, ok := srv.GetStatus(id)
	require.True(t, ok)
	assert.Equal(t, "test_schema", st.SchemaID)
}

func TestUnknownSessionOperationsFail(t *testing.T) {
	srv, _ := buildTestServer(t)
	assert.False(t, srv.FindSession("nope"))
	assert.False(t, srv.ProcessKey("nope", uint32('a'), 0))
	_, ok := srv.GetContext("nope")
	assert.False(t, ok)
}
