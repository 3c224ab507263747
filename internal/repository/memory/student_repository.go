package memory

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/patrickmn/go-cache"
)

const currentStudentKey = "currentStudentId"

// StudentRepository persists the one durable client value, the current student id,
// to a file so it survives agent restarts.
type StudentRepository struct {
	mu    sync.Mutex
	cache *cache.Cache
	path  string
}

// NewStudentRepository loads path when it exists. An empty path keeps the value in
// memory only.
func NewStudentRepository(path string) (*StudentRepository, error) {
	r := &StudentRepository{cache: cache.New(cache.NoExpiration, 0), path: path}
	if path == "" {
		return r, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := r.cache.LoadFile(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return r, nil
}

func (r *StudentRepository) CurrentStudentID() (string, bool) {
	x, found := r.cache.Get(currentStudentKey)
	if !found {
		return "", false
	}
	id, ok := x.(string)
	return id, ok && id != ""
}

func (r *StudentRepository) SetCurrentStudentID(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Set(currentStudentKey, id, cache.NoExpiration)
	if r.path == "" {
		return nil
	}
	return r.cache.SaveFile(r.path)
}
