// Package assets resolves logical LoRA file names within a managed
// directory, the way the host's asset registry hands plugins a flat list of
// selectable files.
package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// EnvLoraDir overrides the LoRA directory when no explicit dir is given.
const EnvLoraDir = "HYLORA_LORA_DIR"

const loraExt = ".safetensors"

// ErrNotFound marks a logical name with no file behind it. The missing
// asset case is fatal for the operation that requested it.
var ErrNotFound = errors.New("lora not found")

// Entry describes one file in the registry.
type Entry struct {
	Name string
	Path string
	Size int64
}

// Registry lists and resolves LoRA files in one directory.
type Registry struct {
	dir string
}

// NewRegistry opens a registry over dir, falling back to HYLORA_LORA_DIR.
func NewRegistry(dir string) (*Registry, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = strings.TrimSpace(os.Getenv(EnvLoraDir))
	}
	if dir == "" {
		return nil, fmt.Errorf("lora directory is required (set --lora-dir or %s)", EnvLoraDir)
	}
	st, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("lora path is not a directory: %s", dir)
	}
	return &Registry{dir: filepath.Clean(dir)}, nil
}

// Dir returns the managed directory.
func (r *Registry) Dir() string {
	return r.dir
}

// List returns the .safetensors entries in the directory, sorted by name.
func (r *Registry) List() ([]Entry, error) {
	ents, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), loraExt) {
			continue
		}
		entry := Entry{Name: e.Name(), Path: filepath.Join(r.dir, e.Name())}
		if info, err := e.Info(); err == nil {
			entry.Size = info.Size()
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Resolve maps a logical name to a full path inside the directory. Names
// that would escape the directory are rejected; a name without the
// .safetensors extension is retried with it. A missing file is reported
// with both the requested name and the resolved path.
func (r *Registry) Resolve(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("empty lora name: %w", ErrNotFound)
	}
	if name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid lora name %q", name)
	}

	path := filepath.Join(r.dir, name)
	if fileExists(path) {
		return path, nil
	}
	if !strings.HasSuffix(strings.ToLower(name), loraExt) {
		withExt := path + loraExt
		if fileExists(withExt) {
			return withExt, nil
		}
	}
	return "", fmt.Errorf("lora %q not found at %s: %w", name, path, ErrNotFound)
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}
