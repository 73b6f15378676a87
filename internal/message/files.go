package message

import (
	"os"
	"sync"
)

// FileReader loads attachment and inline image bytes.
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// OSFiles reads straight from the local filesystem.
type OSFiles struct{}

// ReadFile implements FileReader.
func (OSFiles) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// CachedFiles keeps file contents in memory by path, so a file shared by
// every recipient of a run is read from disk once. Contents are assumed not
// to change during the run. Failed reads are not cached.
type CachedFiles struct {
	mu    sync.Mutex
	next  FileReader
	cache map[string][]byte
}

// NewCachedFiles wraps next with a per-path cache.
func NewCachedFiles(next FileReader) *CachedFiles {
	return &CachedFiles{
		next:  next,
		cache: make(map[string][]byte),
	}
}

// ReadFile implements FileReader.
func (c *CachedFiles) ReadFile(path string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if data, ok := c.cache[path]; ok {
		return data, nil
	}

	data, err := c.next.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c.cache[path] = data
	return data, nil
}
