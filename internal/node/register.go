package node

import (
	"github.com/facok/hylora/internal/assets"
	"github.com/facok/hylora/internal/loader"
	"github.com/facok/hylora/internal/logger"
)

// Constructor builds a node instance for the host. The host keeps one
// instance per graph node, so per-instance state (the load cache) stays
// private to each node in the graph.
type Constructor func(registry *assets.Registry, des loader.Deserializer, log logger.Logger) *LoraLoader

// ClassMappings returns the class-name to constructor table consumed at
// host registration time.
func ClassMappings() map[string]Constructor {
	return map[string]Constructor{
		ClassName: New,
	}
}

// DisplayNameMappings returns the class-name to display-name table.
func DisplayNameMappings() map[string]string {
	return map[string]string{
		ClassName: DisplayName,
	}
}
