package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// replaceFile swaps in new content atomically, the way editors save.
func replaceFile(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o600))
	require.NoError(t, os.Rename(tmp, path))
}

func TestNew_WatchReturnsReloader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allowlist.toml")

	s, err := New(Config{Enabled: true, AllowlistPath: path, Watch: true}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Reloader{}, s)
}

func TestReloader_PicksUpAllowlistChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "allowlist.toml")
	require.NoError(t, os.WriteFile(path, []byte("[allowlist]\nregexes = []\n"), 0o600))

	r, err := NewReloader(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, r.Start(ctx))
	defer r.Stop()

	text := `const apiKey = "` + openAIKey + `"`
	require.True(t, r.Scrub(text).Redacted())

	replaceFile(t, path, "[allowlist]\nregexes = ['''sk-proj-abc123''']\n")

	require.Eventually(t, func() bool {
		return !r.Scrub(text).Redacted()
	}, 5*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, r.Reloads(), int64(1))
}

func TestReloader_BadEditKeepsRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "allowlist.toml")
	require.NoError(t, os.WriteFile(path, []byte("[allowlist]\nregexes = ['''sk-proj-abc123''']\n"), 0o600))

	r, err := NewReloader(path, nil)
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	replaceFile(t, path, "[allowlist\n")
	// Give the watcher a chance to see the broken file.
	time.Sleep(200 * time.Millisecond)

	assert.False(t, r.Scrub(`const apiKey = "`+openAIKey+`"`).Redacted())
	assert.Zero(t, r.Reloads())
}

func TestReloader_StopTwice(t *testing.T) {
	r, err := NewReloader(filepath.Join(t.TempDir(), "missing.toml"), nil)
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	r.Stop()
	r.Stop()
}
