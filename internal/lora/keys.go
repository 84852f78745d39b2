package lora

import "strings"

// knownPrefixes lists key prefixes stripped before block classification.
// Order is priority order; at most one prefix is removed.
var knownPrefixes = []string{
	"diffusion_model.",
	"transformer.",
}

// NormalizeKey strips at most one known prefix from a weight-tensor key,
// returning the remainder. Keys without a known prefix pass through
// unchanged.
func NormalizeKey(key string) string {
	for _, prefix := range knownPrefixes {
		if rest, ok := strings.CutPrefix(key, prefix); ok {
			return rest
		}
	}
	return key
}
