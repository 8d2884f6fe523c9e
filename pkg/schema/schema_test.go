package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `
schema:
  schema_id: pinyin_simp
  version: "1.0"
translator:
  dictionary: pinyin_simp
  enable_user_dict: true
  enable_completion: false
  preedit_format: "xx_xform"
speller:
  alphabet: "abcdefghijklmnopqrstuvwxyz"
  delimiter: "'"
engine:
  processors: ["ascii_composer", "key_binder"]
  segmentors: ["ascii_segmentor", "matcher"]
  translators: ["table_translator"]
  filters: ["simplifier"]
key_binder:
  bindings:
    - {accept: "Control+grave", send: "F4"}
`

func writeSchema(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadParsesNamedKeys(t *testing.T) {
	path := writeSchema(t, testYAML)
	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "pinyin_simp", s.SchemaInfo.SchemaID)
	assert.Equal(t, "pinyin_simp", s.Translator.Dictionary)
	assert.True(t, s.Translator.EnableUserDict)
	assert.False(t, s.Translator.EnableCompletion)
	assert.Equal(t, "'", s.Speller.Delimiter)
	assert.Equal(t, []string{"table_translator"}, s.Engine.Translators)
	require.Len(t, s.KeyBinder.Bindings, 1)
	assert.Equal(t, "Control+grave", s.KeyBinder.Bindings[0].Accept)
}

func TestLoadRejectsMissingSchemaID(t *testing.T) {
	path := writeSchema(t, "translator:\n  dictionary: x\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestDelimitersDefaultsToSpace(t *testing.T) {
	s := &Schema{}
	assert.Equal(t, " ", s.Delimiters())
}
