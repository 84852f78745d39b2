package lora

import (
	"fmt"
	"strings"
)

// BlockSelector chooses which transformer sub-blocks of a LoRA to apply.
type BlockSelector string

const (
	BlocksAll    BlockSelector = "all"
	BlocksSingle BlockSelector = "single_blocks"
	BlocksDouble BlockSelector = "double_blocks"
)

// BlockSelectors returns the valid selector values in UI order.
func BlockSelectors() []string {
	return []string{string(BlocksAll), string(BlocksSingle), string(BlocksDouble)}
}

// ParseBlockSelector validates a selector string.
func ParseBlockSelector(s string) (BlockSelector, error) {
	switch BlockSelector(s) {
	case BlocksAll, BlocksSingle, BlocksDouble:
		return BlockSelector(s), nil
	}
	return "", fmt.Errorf("invalid blocks type %q (want one of %s)", s, strings.Join(BlockSelectors(), ", "))
}

// FilterBlocks returns the subset of a canonical-format mapping whose
// normalized keys contain the selected block marker. BlocksAll returns the
// input unchanged.
func FilterBlocks(w *Weights, selector BlockSelector) *Weights {
	if selector == BlocksAll {
		return w
	}
	out := NewWeights()
	for key, value := range w.All() {
		if strings.Contains(NormalizeKey(key), string(selector)) {
			out.Set(key, value)
		}
	}
	return out
}
