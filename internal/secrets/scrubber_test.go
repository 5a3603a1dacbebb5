package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const openAIKey = "sk-proj-abc123def456ghi789jkl012mno345pqr678stu901xyz"

func TestNop(t *testing.T) {
	res := Nop{}.Scrub("api key " + openAIKey)
	assert.Equal(t, "api key "+openAIKey, res.Text)
	assert.False(t, res.Redacted())
}

func TestNew_Disabled(t *testing.T) {
	s, err := New(Config{Enabled: false}, nil)
	require.NoError(t, err)
	assert.IsType(t, Nop{}, s)
}

func TestDetector_CleanText(t *testing.T) {
	d, err := NewDetector(nil, nil)
	require.NoError(t, err)

	res := d.Scrub("the player opened the door and walked away")
	assert.Equal(t, "the player opened the door and walked away", res.Text)
	assert.Empty(t, res.Findings)

	assert.Equal(t, "", d.Scrub("").Text)
}

func TestDetector_RedactsKey(t *testing.T) {
	d, err := NewDetector(nil, nil)
	require.NoError(t, err)

	res := d.Scrub(`player pasted const apiKey = "` + openAIKey + `" into chat`)
	require.True(t, res.Redacted())
	assert.NotContains(t, res.Text, openAIKey)
	assert.Contains(t, res.Text, "[REDACTED:")
	assert.Contains(t, res.Text, "into chat")
}

func TestLoadAllowlist(t *testing.T) {
	dir := t.TempDir()

	al, err := LoadAllowlist(filepath.Join(dir, "missing.toml"))
	require.NoError(t, err)
	assert.Empty(t, al.Regexes)

	path := filepath.Join(dir, "allowlist.toml")
	require.NoError(t, os.WriteFile(path, []byte("[allowlist]\nregexes = ['''DEMO_[0-9]+''']\nstopwords = [\"example\"]\n"), 0o600))
	al, err = LoadAllowlist(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"DEMO_[0-9]+"}, al.Regexes)
	assert.Equal(t, []string{"example"}, al.StopWords)

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[allowlist]\nregexes = ['''(unclosed''']\n"), 0o600))
	_, err = LoadAllowlist(bad)
	assert.ErrorIs(t, err, ErrInvalidRegex)

	garbage := filepath.Join(dir, "garbage.toml")
	require.NoError(t, os.WriteFile(garbage, []byte("[allowlist\n"), 0o600))
	_, err = LoadAllowlist(garbage)
	assert.ErrorIs(t, err, ErrInvalidTOML)
}

func TestNew_WithAllowlist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "allowlist.toml")
	require.NoError(t, os.WriteFile(path, []byte("[allowlist]\nregexes = ['''sk-proj-abc123''']\n"), 0o600))

	s, err := New(Config{Enabled: true, AllowlistPath: path}, nil)
	require.NoError(t, err)

	res := s.Scrub(`const apiKey = "` + openAIKey + `"`)
	assert.False(t, res.Redacted())
}
