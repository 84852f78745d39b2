package patcher

import (
	"path/filepath"
	"testing"

	"github.com/facok/hylora/internal/logger"
	"github.com/facok/hylora/internal/lora"
	"github.com/facok/hylora/internal/tensor"
)

func mustTensor(t *testing.T, shape []int, data []float32) tensor.Tensor {
	t.Helper()
	ten, err := tensor.New(shape, data)
	if err != nil {
		t.Fatalf("tensor.New(%v): %v", shape, err)
	}
	return ten
}

func TestApplyComposesDelta(t *testing.T) {
	t.Parallel()
	// base is 2x2, rank-1 factors: B (2x1) @ A (1x2).
	base := mustTensor(t, []int{2, 2}, []float32{1, 1, 1, 1})
	a := mustTensor(t, []int{1, 2}, []float32{1, 2})
	b := mustTensor(t, []int{2, 1}, []float32{3, 4})
	m := NewModel("base", map[string]tensor.Tensor{
		"diffusion_model.single_blocks.0.linear1.weight": base,
	})

	w := lora.NewWeights()
	w.Set("diffusion_model.single_blocks.0.linear1.lora_A.weight", a)
	w.Set("diffusion_model.single_blocks.0.linear1.lora_B.weight", b)

	patched, res, err := Apply(m, w, 0.5, logger.Discard())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Applied != 1 || res.Skipped != 0 {
		t.Fatalf("result = %+v", res)
	}
	if patched == m {
		t.Fatal("expected a new handle")
	}

	got, _ := patched.Weight("diffusion_model.single_blocks.0.linear1.weight")
	// delta = B@A = [[3,6],[4,8]], patched = base + 0.5*delta.
	want := []float32{2.5, 4, 3, 5}
	for i := range want {
		if got.Data[i] != want[i] {
			t.Fatalf("elem %d = %v, want %v", i, got.Data[i], want[i])
		}
	}

	// The original handle keeps the unpatched weight.
	orig, _ := m.Weight("diffusion_model.single_blocks.0.linear1.weight")
	if orig.Data[0] != 1 {
		t.Fatalf("original handle mutated: %v", orig.Data)
	}
}

func TestApplyNothingReturnsSameHandle(t *testing.T) {
	t.Parallel()
	m := NewModel("base", map[string]tensor.Tensor{
		"diffusion_model.x.weight": mustTensor(t, []int{1, 1}, []float32{1}),
	})
	patched, res, err := Apply(m, lora.NewWeights(), 1.0, logger.Discard())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if patched != m {
		t.Fatal("empty mapping must return the input handle")
	}
	if res.Applied != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestApplySkipsMissingBase(t *testing.T) {
	t.Parallel()
	m := NewModel("base", map[string]tensor.Tensor{})
	w := lora.NewWeights()
	w.Set("diffusion_model.y.lora_A.weight", mustTensor(t, []int{1, 2}, []float32{1, 2}))
	w.Set("diffusion_model.y.lora_B.weight", mustTensor(t, []int{2, 1}, []float32{1, 2}))

	patched, res, err := Apply(m, w, 1.0, logger.Discard())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if patched != m || res.Skipped != 1 || res.Applied != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestApplySkipsIncompletePair(t *testing.T) {
	t.Parallel()
	m := NewModel("base", map[string]tensor.Tensor{
		"diffusion_model.y.weight": mustTensor(t, []int{2, 2}, []float32{1, 2, 3, 4}),
	})
	w := lora.NewWeights()
	w.Set("diffusion_model.y.lora_A.weight", mustTensor(t, []int{1, 2}, []float32{1, 2}))

	_, res, err := Apply(m, w, 1.0, logger.Discard())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Skipped != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestApplySkipsShapeMismatch(t *testing.T) {
	t.Parallel()
	m := NewModel("base", map[string]tensor.Tensor{
		"diffusion_model.y.weight": mustTensor(t, []int{3, 3}, make([]float32, 9)),
	})
	w := lora.NewWeights()
	w.Set("diffusion_model.y.lora_A.weight", mustTensor(t, []int{1, 2}, []float32{1, 2}))
	w.Set("diffusion_model.y.lora_B.weight", mustTensor(t, []int{2, 1}, []float32{1, 2}))

	patched, res, err := Apply(m, w, 1.0, logger.Discard())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if patched != m || res.Skipped != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestModelSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "model.safetensors")
	m := NewModel("m", map[string]tensor.Tensor{
		"diffusion_model.a.weight": mustTensor(t, []int{2}, []float32{1.5, -2}),
	})
	if err := m.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	back, err := LoadModel(path)
	if err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	got, ok := back.Weight("diffusion_model.a.weight")
	if !ok {
		t.Fatalf("weight missing, keys %v", back.Keys())
	}
	if got.Data[0] != 1.5 || got.Data[1] != -2 {
		t.Fatalf("data = %v", got.Data)
	}
}

func TestValidateStrength(t *testing.T) {
	t.Parallel()
	for _, ok := range []float64{0, 1, -10, 10, 0.01} {
		if err := ValidateStrength(ok); err != nil {
			t.Errorf("ValidateStrength(%g): %v", ok, err)
		}
	}
	for _, bad := range []float64{-10.01, 10.5, 100} {
		if err := ValidateStrength(bad); err == nil {
			t.Errorf("ValidateStrength(%g) succeeded, want error", bad)
		}
	}
}
