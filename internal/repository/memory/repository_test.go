package memory

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type attempt struct{ id string }

func TestAttemptRepositoryRoundTrip(t *testing.T) {
	repo := NewAttemptRepository[*attempt](time.Hour, nil)
	a := &attempt{id: "a1"}
	repo.Save("a1", a)

	got, ok := repo.Get("a1")
	require.True(t, ok)
	assert.Same(t, a, got)
	assert.Equal(t, 1, repo.Count())
	assert.Len(t, repo.All(), 1)

	repo.Delete("a1")
	_, ok = repo.Get("a1")
	assert.False(t, ok)
}

func TestAttemptRepositoryEvictionCallback(t *testing.T) {
	var (
		mu      sync.Mutex
		evicted []string
	)
	repo := NewAttemptRepository[*attempt](time.Hour, func(id string, a *attempt) {
		mu.Lock()
		evicted = append(evicted, id+"="+a.id)
		mu.Unlock()
	})
	repo.Save("a1", &attempt{id: "x"})
	repo.Delete("a1")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a1=x"}, evicted)
}

func TestStudentRepositoryPersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.gob")

	repo, err := NewStudentRepository(path)
	require.NoError(t, err)
	_, ok := repo.CurrentStudentID()
	assert.False(t, ok)

	require.NoError(t, repo.SetCurrentStudentID("stu-42"))

	reloaded, err := NewStudentRepository(path)
	require.NoError(t, err)
	id, ok := reloaded.CurrentStudentID()
	require.True(t, ok)
	assert.Equal(t, "stu-42", id)
}

func TestStudentRepositoryInMemory(t *testing.T) {
	repo, err := NewStudentRepository("")
	require.NoError(t, err)
	require.NoError(t, repo.SetCurrentStudentID("stu-1"))
	id, _ := repo.CurrentStudentID()
	assert.Equal(t, "stu-1", id)
}
