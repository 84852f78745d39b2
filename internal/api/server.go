// Package api exposes the LoRA registry and patch operation over HTTP so
// hosts that are not in-process can drive the node.
package api

import (
	"errors"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/facok/hylora/internal/assets"
	"github.com/facok/hylora/internal/loader"
	"github.com/facok/hylora/internal/logger"
	"github.com/facok/hylora/internal/lora"
	"github.com/facok/hylora/internal/node"
	"github.com/facok/hylora/internal/patcher"
	"github.com/facok/hylora/internal/safetensors"
)

type Server struct {
	registry *assets.Registry
	node     *node.LoraLoader
	log      logger.Logger

	// loadModel is a seam for tests; defaults to patcher.LoadModel.
	loadModel func(path string) (*patcher.Model, error)
}

func NewServer(registry *assets.Registry, log logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{
		registry:  registry,
		node:      node.New(registry, loader.DeserializerFunc(safetensors.LoadWeights), log),
		log:       log,
		loadModel: patcher.LoadModel,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/loras", s.handleListLoras)
	e.GET("/v1/loras/:name", s.handleInspectLora)
	e.POST("/v1/apply", s.handleApply)
}

func (s *Server) handleListLoras(c *echo.Context) error {
	entries, err := s.registry.List()
	if err != nil {
		return writeServerError(c, err.Error())
	}
	resp := ListResponse{Dir: s.registry.Dir(), Loras: make([]LoraEntry, len(entries))}
	for i, e := range entries {
		resp.Loras[i] = LoraEntry{Name: e.Name, SizeBytes: e.Size}
	}
	return c.JSON(200, resp)
}

func (s *Server) handleInspectLora(c *echo.Context) error {
	name := c.Param("name")
	path, err := s.registry.Resolve(name)
	if err != nil {
		if errors.Is(err, assets.ErrNotFound) {
			return writeNotFound(c, err.Error())
		}
		return writeBadRequest(c, err.Error())
	}

	weights, err := safetensors.LoadWeights(path)
	if err != nil {
		return writeServerError(c, err.Error())
	}

	format := "diffusers"
	if lora.IsMusubi(weights) {
		format = "musubi"
	}
	converted := lora.ConvertMusubi(weights, s.log)

	blockKeys := make(map[string]int)
	for _, selector := range []lora.BlockSelector{lora.BlocksSingle, lora.BlocksDouble} {
		blockKeys[string(selector)] = lora.FilterBlocks(converted, selector).Len()
	}

	return c.JSON(200, InspectResponse{
		Name:         name,
		Path:         path,
		Format:       format,
		Keys:         converted.Len(),
		BlockKeys:    blockKeys,
		AlphaModules: countAlphaModules(weights),
	})
}

func (s *Server) handleApply(c *echo.Context) error {
	req, err := decodeJSON[ApplyRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if req.Model == "" || req.Lora == "" || req.Output == "" {
		return writeBadRequest(c, "model, lora, and output are required")
	}

	strength := patcher.StrengthDefault
	if req.Strength != nil {
		strength = *req.Strength
	}
	if err := patcher.ValidateStrength(strength); err != nil {
		return writeBadRequest(c, err.Error())
	}
	blocksType := req.BlocksType
	if blocksType == "" {
		blocksType = string(lora.BlocksAll)
	}
	selector, err := lora.ParseBlockSelector(blocksType)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	model, err := s.loadModel(req.Model)
	if err != nil {
		return writeBadRequest(c, "load model: "+err.Error())
	}

	patched, res, err := s.node.Load(model, req.Lora, strength, selector)
	if err != nil {
		if errors.Is(err, assets.ErrNotFound) {
			return writeNotFound(c, err.Error())
		}
		return writeServerError(c, err.Error())
	}

	changed := patched != model
	if changed {
		if err := patched.Save(req.Output); err != nil {
			return writeServerError(c, "save output: "+err.Error())
		}
	}

	return c.JSON(200, ApplyResponse{
		ID:          uuid.NewString(),
		Model:       req.Model,
		Lora:        req.Lora,
		Strength:    strength,
		BlocksType:  string(selector),
		Output:      req.Output,
		Applied:     res.Applied,
		Skipped:     res.Skipped,
		Changed:     changed,
		Fingerprint: s.node.Fingerprint(req.Lora, strength, selector),
	})
}

func countAlphaModules(w *lora.Weights) int {
	n := 0
	for _, key := range w.Keys() {
		if isAlphaKey(key) {
			n++
		}
	}
	return n
}

func isAlphaKey(key string) bool {
	const suffix = ".alpha"
	return len(key) > len(suffix) && key[len(key)-len(suffix):] == suffix
}
