// Package lora holds the LoRA weight mapping model and the key-format
// normalization, conversion, and block-filtering logic.
package lora

import (
	"iter"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/facok/hylora/internal/tensor"
)

// Weights is an insertion-ordered mapping from weight-tensor key to tensor
// value. Ordering matters: conversion walks entries in order, so two
// conversions of the same input produce identical output.
//
// Transformations never mutate a Weights in place; they build a new one.
type Weights struct {
	om *orderedmap.OrderedMap[string, tensor.Tensor]
}

// NewWeights creates an empty mapping.
func NewWeights() *Weights {
	return &Weights{om: orderedmap.New[string, tensor.Tensor]()}
}

// Set stores a tensor under key, preserving first-insertion order. Setting
// an existing key overwrites its value (last write wins).
func (w *Weights) Set(key string, t tensor.Tensor) {
	w.om.Set(key, t)
}

// Get retrieves the tensor stored under key.
func (w *Weights) Get(key string) (tensor.Tensor, bool) {
	return w.om.Get(key)
}

// Len returns the number of entries.
func (w *Weights) Len() int {
	return w.om.Len()
}

// Keys returns all keys in insertion order.
func (w *Weights) Keys() []string {
	keys := make([]string, 0, w.om.Len())
	for p := w.om.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	return keys
}

// All iterates entries in insertion order.
func (w *Weights) All() iter.Seq2[string, tensor.Tensor] {
	return func(yield func(string, tensor.Tensor) bool) {
		for p := w.om.Oldest(); p != nil; p = p.Next() {
			if !yield(p.Key, p.Value) {
				return
			}
		}
	}
}
