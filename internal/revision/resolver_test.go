package revision

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// commitFile initialises a repository in dir with a single commit
func commitFile(t *testing.T, dir string) string {
	t.Helper()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte("FROM scratch\n"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("Dockerfile")
	require.NoError(t, err)

	hash, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "ci", Email: "ci@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	return hash.String()
}

func TestResolve_RollbackTagVerbatim(t *testing.T) {
	r := NewResolver(t.TempDir())
	assert.Equal(t, "a1b2c3d", r.Resolve("a1b2c3d"))
	assert.Equal(t, "not-validated-here", r.Resolve("not-validated-here"))
}

func TestResolve_ShortHash(t *testing.T) {
	dir := t.TempDir()
	hash := commitFile(t, dir)

	id := NewResolver(dir).Resolve("")
	assert.Len(t, id, ShortLength)
	assert.Equal(t, hash[:ShortLength], id)
}

func TestResolve_FromSubdirectory(t *testing.T) {
	dir := t.TempDir()
	hash := commitFile(t, dir)

	sub := filepath.Join(dir, "services", "api")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	assert.Equal(t, hash[:ShortLength], NewResolver(sub).Resolve(""))
}

func TestResolve_Reproducible(t *testing.T) {
	dir := t.TempDir()
	commitFile(t, dir)

	r := NewResolver(dir)
	assert.Equal(t, r.Resolve(""), r.Resolve(""))
}

func TestResolve_EmptyRepository(t *testing.T) {
	dir := t.TempDir()
	_, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	assert.Equal(t, FallbackTag, NewResolver(dir).Resolve(""))
}

func TestResolve_NotARepository(t *testing.T) {
	assert.Equal(t, "latest", NewResolver(t.TempDir()).Resolve(""))
}
