// Package loader wraps a weight deserializer with a single-slot cache so
// the same LoRA file is not re-read on every graph evaluation.
package loader

import (
	"path/filepath"

	"github.com/facok/hylora/internal/logger"
	"github.com/facok/hylora/internal/lora"
)

// Deserializer turns a file on disk into a weight mapping.
type Deserializer interface {
	Load(path string) (*lora.Weights, error)
}

// DeserializerFunc adapts a plain function to the Deserializer interface.
type DeserializerFunc func(path string) (*lora.Weights, error)

func (f DeserializerFunc) Load(path string) (*lora.Weights, error) {
	return f(path)
}

type cacheEntry struct {
	path    string
	weights *lora.Weights
}

// Loader loads LoRA weight files, keeping the most recent load. The host
// evaluates one node at a time per instance, so the cache needs no lock;
// separate instances own separate caches.
type Loader struct {
	des    Deserializer
	log    logger.Logger
	cached *cacheEntry
}

// New creates a Loader around the given deserializer.
func New(des Deserializer, log logger.Logger) *Loader {
	if log == nil {
		log = logger.Default()
	}
	return &Loader{des: des, log: log}
}

// Load returns the weight mapping for path, served from the cache when path
// matches the previous load. A different path evicts the old entry before
// the fresh read, so a failed read leaves the cache empty rather than
// stale.
func (l *Loader) Load(path string) (*lora.Weights, error) {
	path = filepath.Clean(path)
	if l.cached != nil && l.cached.path == path {
		l.log.Debug("lora cache hit", "path", path)
		return l.cached.weights, nil
	}
	l.cached = nil

	w, err := l.des.Load(path)
	if err != nil {
		return nil, err
	}
	l.log.Debug("lora loaded", "path", path, "keys", w.Len())
	l.cached = &cacheEntry{path: path, weights: w}
	return w, nil
}
