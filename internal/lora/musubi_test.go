package lora

import (
	"math"
	"strings"
	"testing"

	"github.com/facok/hylora/internal/logger"
	"github.com/facok/hylora/internal/tensor"
)

// recordingLogger captures warn-level diagnostics for assertions.
type recordingLogger struct {
	logger.Logger
	warns []string
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{Logger: logger.Discard()}
}

func (l *recordingLogger) Warn(msg string, args ...any) {
	l.warns = append(l.warns, msg)
}

func mustTensor(t *testing.T, shape []int, data []float32) tensor.Tensor {
	t.Helper()
	ten, err := tensor.New(shape, data)
	if err != nil {
		t.Fatalf("tensor.New(%v): %v", shape, err)
	}
	return ten
}

func scalar(t *testing.T, v float32) tensor.Tensor {
	t.Helper()
	return mustTensor(t, []int{1}, []float32{v})
}

func TestConvertMusubiPassesThroughDiffusersFormat(t *testing.T) {
	t.Parallel()
	w := NewWeights()
	w.Set("diffusion_model.single_blocks.0.attn_qkv.lora_A.weight", mustTensor(t, []int{2, 4}, make([]float32, 8)))
	w.Set("diffusion_model.single_blocks.0.attn_qkv.lora_B.weight", mustTensor(t, []int{4, 2}, make([]float32, 8)))

	log := newRecordingLogger()
	got := ConvertMusubi(w, log)
	if got != w {
		t.Fatal("expected the input mapping back for diffusers format")
	}
	if len(log.warns) != 0 {
		t.Fatalf("unexpected diagnostics: %v", log.warns)
	}
}

func TestConvertMusubiEndToEnd(t *testing.T) {
	t.Parallel()
	const (
		alpha = 8.0
		d1    = 4 // down-projection rank axis, shape[0]
		d2    = 4 // up-projection rank axis, shape[1]
	)
	down := mustTensor(t, []int{d1, 6}, fill(d1*6, 0.5))
	up := mustTensor(t, []int{6, d2}, fill(6*d2, -1.25))

	w := NewWeights()
	w.Set("lora_unet_single_blocks_0_attn_qkv.lora_down.weight", down)
	w.Set("lora_unet_single_blocks_0_attn_qkv.lora_up.weight", up)
	w.Set("lora_unet_single_blocks_0_attn_qkv.alpha", scalar(t, alpha))

	log := newRecordingLogger()
	got := ConvertMusubi(w, log)

	wantKeys := []string{
		"diffusion_model.single_blocks.0.attn_qkv.lora_A.weight",
		"diffusion_model.single_blocks.0.attn_qkv.lora_B.weight",
	}
	if gotKeys := got.Keys(); !equalStrings(gotKeys, wantKeys) {
		t.Fatalf("converted keys = %v, want %v", gotKeys, wantKeys)
	}

	checkScaled(t, got, wantKeys[0], down, math.Sqrt(alpha/float64(d1)))
	checkScaled(t, got, wantKeys[1], up, math.Sqrt(alpha/float64(d2)))

	if len(log.warns) != 0 {
		t.Fatalf("unexpected diagnostics: %v", log.warns)
	}
}

func TestConvertMusubiModuleNameRules(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want string
	}{
		{"single_blocks_0_attn_qkv", "single_blocks.0.attn_qkv"},
		{"double_blocks_12_img_mod_linear", "double_blocks.12.img_mod.linear"},
		{"double_blocks_3_txt_attn_proj", "double_blocks.3.txt_attn_proj"},
		{"single_blocks_7_linear1", "single_blocks.7.linear1"},
	}
	for _, tc := range cases {
		if got := musubiModuleName(tc.in); got != tc.want {
			t.Errorf("musubiModuleName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestConvertMusubiMissingAlpha(t *testing.T) {
	t.Parallel()
	down := mustTensor(t, []int{2, 3}, []float32{1, 2, 3, 4, 5, 6})

	w := NewWeights()
	w.Set("lora_unet_double_blocks_1_img_attn_qkv.lora_down.weight", down)
	// Sentinel-prefixed alpha for a different module marks the file Musubi.
	w.Set("lora_unet_double_blocks_2_img_attn_qkv.alpha", scalar(t, 4))

	log := newRecordingLogger()
	got := ConvertMusubi(w, log)

	out, ok := got.Get("diffusion_model.double_blocks.1.img_attn_qkv.lora_A.weight")
	if !ok {
		t.Fatalf("converted key missing; got keys %v", got.Keys())
	}
	for i := range down.Data {
		if out.Data[i] != down.Data[i] {
			t.Fatalf("weight was rescaled without an alpha: %v vs %v", out.Data, down.Data)
		}
	}
	if len(log.warns) != 1 {
		t.Fatalf("want exactly one diagnostic, got %v", log.warns)
	}
	if !strings.Contains(log.warns[0], "missing alpha") {
		t.Fatalf("unexpected diagnostic: %q", log.warns[0])
	}
}

func TestConvertMusubiDropsUnexpectedKeys(t *testing.T) {
	t.Parallel()
	w := NewWeights()
	w.Set("lora_unet_single_blocks_0_attn_qkv.alpha", scalar(t, 4))
	w.Set("lora_unet_single_blocks_0_attn_qkv.diff_b", mustTensor(t, []int{2}, []float32{1, 2}))
	w.Set("lora_unet_single_blocks_0_attn_qkv.lora_down.weight", mustTensor(t, []int{2, 2}, []float32{1, 2, 3, 4}))

	log := newRecordingLogger()
	got := ConvertMusubi(w, log)

	if got.Len() != 1 {
		t.Fatalf("want 1 converted entry, got keys %v", got.Keys())
	}
	if len(log.warns) != 1 || !strings.Contains(log.warns[0], "unexpected key") {
		t.Fatalf("want one unexpected-key diagnostic, got %v", log.warns)
	}
}

func TestConvertMusubiDeterminism(t *testing.T) {
	t.Parallel()
	w := NewWeights()
	w.Set("lora_unet_single_blocks_0_attn_qkv.lora_down.weight", mustTensor(t, []int{2, 4}, fill(8, 0.25)))
	w.Set("lora_unet_single_blocks_0_attn_qkv.lora_up.weight", mustTensor(t, []int{4, 2}, fill(8, 0.75)))
	w.Set("lora_unet_single_blocks_0_attn_qkv.alpha", scalar(t, 2))
	w.Set("lora_unet_double_blocks_5_txt_mlp_fc1.lora_down.weight", mustTensor(t, []int{3, 3}, fill(9, 1.5)))
	w.Set("lora_unet_double_blocks_5_txt_mlp_fc1.lora_up.weight", mustTensor(t, []int{3, 3}, fill(9, -0.5)))
	w.Set("lora_unet_double_blocks_5_txt_mlp_fc1.alpha", scalar(t, 6))

	a := ConvertMusubi(w, logger.Discard())
	b := ConvertMusubi(w, logger.Discard())

	if !equalStrings(a.Keys(), b.Keys()) {
		t.Fatalf("key order differs: %v vs %v", a.Keys(), b.Keys())
	}
	for key, av := range a.All() {
		bv, _ := b.Get(key)
		for i := range av.Data {
			if math.Float32bits(av.Data[i]) != math.Float32bits(bv.Data[i]) {
				t.Fatalf("non-deterministic value for %s at %d", key, i)
			}
		}
	}
}

func TestConvertMusubiDropsForeignKeys(t *testing.T) {
	t.Parallel()
	// In a Musubi file, keys without the sentinel prefix do not survive
	// conversion.
	w := NewWeights()
	w.Set("lora_unet_single_blocks_0_attn_qkv.lora_down.weight", mustTensor(t, []int{2, 2}, fill(4, 1)))
	w.Set("lora_unet_single_blocks_0_attn_qkv.alpha", scalar(t, 2))
	w.Set("text_encoder.something.weight", mustTensor(t, []int{2}, []float32{1, 2}))

	got := ConvertMusubi(w, logger.Discard())
	if _, ok := got.Get("text_encoder.something.weight"); ok {
		t.Fatal("foreign key survived musubi conversion")
	}
}

func checkScaled(t *testing.T, w *Weights, key string, src tensor.Tensor, scale float64) {
	t.Helper()
	got, ok := w.Get(key)
	if !ok {
		t.Fatalf("key %s missing; have %v", key, w.Keys())
	}
	if !got.SameShape(src) {
		t.Fatalf("key %s: shape %v, want %v", key, got.Shape, src.Shape)
	}
	for i, v := range src.Data {
		want := float32(float64(v) * scale)
		if got.Data[i] != want {
			t.Fatalf("key %s: elem %d = %v, want %v", key, i, got.Data[i], want)
		}
	}
}

func fill(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
