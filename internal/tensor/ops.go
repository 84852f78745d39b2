package tensor

import "fmt"

// MatMul multiplies two 2-D tensors: a is (m,k), b is (k,n), the result is
// (m,n). Plain triple loop; LoRA factors are small enough that a blocked
// kernel buys nothing here.
func MatMul(a, b Tensor) (Tensor, error) {
	if len(a.Shape) != 2 || len(b.Shape) != 2 {
		return Tensor{}, fmt.Errorf("matmul wants 2-D tensors, got %v x %v", a.Shape, b.Shape)
	}
	m, k := a.Shape[0], a.Shape[1]
	k2, n := b.Shape[0], b.Shape[1]
	if k != k2 {
		return Tensor{}, fmt.Errorf("matmul inner dims differ: %v x %v", a.Shape, b.Shape)
	}
	out := make([]float32, m*n)
	for i := 0; i < m; i++ {
		arow := a.Data[i*k : (i+1)*k]
		orow := out[i*n : (i+1)*n]
		for p := 0; p < k; p++ {
			av := arow[p]
			if av == 0 {
				continue
			}
			brow := b.Data[p*n : (p+1)*n]
			for j := 0; j < n; j++ {
				orow[j] += av * brow[j]
			}
		}
	}
	return Tensor{Shape: []int{m, n}, Data: out}, nil
}

// AddScaled returns a + s*b as a new tensor. Shapes must match.
func AddScaled(a, b Tensor, s float64) (Tensor, error) {
	if !a.SameShape(b) {
		return Tensor{}, fmt.Errorf("shape mismatch: %v vs %v", a.Shape, b.Shape)
	}
	out := make([]float32, len(a.Data))
	for i := range a.Data {
		out[i] = a.Data[i] + float32(s*float64(b.Data[i]))
	}
	shape := make([]int, len(a.Shape))
	copy(shape, a.Shape)
	return Tensor{Shape: shape, Data: out}, nil
}
