// Package patcher owns the opaque base-model handle and applies LoRA
// weight deltas to it at a caller-chosen strength.
package patcher

import (
	"sort"

	"github.com/facok/hylora/internal/lora"
	"github.com/facok/hylora/internal/safetensors"
	"github.com/facok/hylora/internal/tensor"
)

// Model is an immutable handle over a set of named weight tensors. Patch
// application returns a new handle; callers holding the old one keep the
// unpatched weights.
type Model struct {
	name    string
	weights map[string]tensor.Tensor
}

// NewModel builds a handle from named weights. The map is copied.
func NewModel(name string, weights map[string]tensor.Tensor) *Model {
	copied := make(map[string]tensor.Tensor, len(weights))
	for k, v := range weights {
		copied[k] = v
	}
	return &Model{name: name, weights: copied}
}

// LoadModel reads a safetensors base model from disk.
func LoadModel(path string) (*Model, error) {
	w, err := safetensors.LoadWeights(path)
	if err != nil {
		return nil, err
	}
	weights := make(map[string]tensor.Tensor, w.Len())
	for key, value := range w.All() {
		weights[key] = value
	}
	return &Model{name: path, weights: weights}, nil
}

// Name returns the handle's display name (the source path for loaded
// models).
func (m *Model) Name() string {
	return m.name
}

// Weight returns the tensor stored under key.
func (m *Model) Weight(key string) (tensor.Tensor, bool) {
	t, ok := m.weights[key]
	return t, ok
}

// Keys returns all weight keys in sorted order.
func (m *Model) Keys() []string {
	keys := make([]string, 0, len(m.weights))
	for k := range m.weights {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Save writes the model's weights as an f32 safetensors file.
func (m *Model) Save(path string) error {
	w := lora.NewWeights()
	for _, key := range m.Keys() {
		w.Set(key, m.weights[key])
	}
	return safetensors.Save(path, w)
}

// withWeights returns a handle sharing the receiver's name, with the given
// keys replaced. Untouched tensors are shared, not copied.
func (m *Model) withWeights(replaced map[string]tensor.Tensor) *Model {
	weights := make(map[string]tensor.Tensor, len(m.weights))
	for k, v := range m.weights {
		weights[k] = v
	}
	for k, v := range replaced {
		weights[k] = v
	}
	return &Model{name: m.name, weights: weights}
}
