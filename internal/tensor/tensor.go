package tensor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// DType identifies the on-disk element encoding of a tensor.
type DType string

const (
	DTypeF32  DType = "F32"
	DTypeF16  DType = "F16"
	DTypeBF16 DType = "BF16"
)

var (
	errShapeMismatch    = errors.New("data length does not match shape")
	errUnsupportedDType = errors.New("unsupported dtype")
)

// Tensor is a dense tensor of float32 values in row-major layout.
//
// All pipeline transformations produce new tensors; nothing mutates Data in
// place. Scalar hyperparameters (alpha values) travel as tensors with a
// single element.
type Tensor struct {
	Shape []int
	Data  []float32
}

// New creates a tensor from existing data, checking that the data length
// matches the shape.
func New(shape []int, data []float32) (Tensor, error) {
	n, err := numElements(shape)
	if err != nil {
		return Tensor{}, err
	}
	if n != len(data) {
		return Tensor{}, fmt.Errorf("%w: shape %v wants %d elements, got %d", errShapeMismatch, shape, n, len(data))
	}
	return Tensor{Shape: shape, Data: data}, nil
}

// Zeros allocates a zero-initialised tensor. It panics on a negative
// dimension, mirroring slice allocation semantics.
func Zeros(shape []int) Tensor {
	n, err := numElements(shape)
	if err != nil {
		panic(err)
	}
	return Tensor{Shape: shape, Data: make([]float32, n)}
}

// FromRaw decodes little-endian raw bytes in the given dtype into a float32
// tensor.
func FromRaw(shape []int, dtype DType, raw []byte) (Tensor, error) {
	n, err := numElements(shape)
	if err != nil {
		return Tensor{}, err
	}
	switch dtype {
	case DTypeF32:
		if len(raw) != n*4 {
			return Tensor{}, fmt.Errorf("%w: f32 data is %d bytes, want %d", errShapeMismatch, len(raw), n*4)
		}
		out := make([]float32, n)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return Tensor{Shape: shape, Data: out}, nil
	case DTypeF16:
		if len(raw) != n*2 {
			return Tensor{}, fmt.Errorf("%w: f16 data is %d bytes, want %d", errShapeMismatch, len(raw), n*2)
		}
		out := make([]float32, n)
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		}
		return Tensor{Shape: shape, Data: out}, nil
	case DTypeBF16:
		if len(raw) != n*2 {
			return Tensor{}, fmt.Errorf("%w: bf16 data is %d bytes, want %d", errShapeMismatch, len(raw), n*2)
		}
		return Tensor{Shape: shape, Data: bfloat16.DecodeFloat32(raw)}, nil
	default:
		return Tensor{}, fmt.Errorf("%w: %s", errUnsupportedDType, dtype)
	}
}

// Elems returns the number of elements.
func (t Tensor) Elems() int {
	return len(t.Data)
}

// Dim returns the length of axis i, or 0 if the tensor has no such axis.
func (t Tensor) Dim(i int) int {
	if i < 0 || i >= len(t.Shape) {
		return 0
	}
	return t.Shape[i]
}

// IsScalar reports whether the tensor holds exactly one element.
func (t Tensor) IsScalar() bool {
	return len(t.Data) == 1
}

// Scalar returns the single element of a one-element tensor.
func (t Tensor) Scalar() (float64, error) {
	if !t.IsScalar() {
		return 0, fmt.Errorf("tensor with shape %v is not a scalar", t.Shape)
	}
	return float64(t.Data[0]), nil
}

// Scale returns a new tensor with every element multiplied by s. The
// receiver is left untouched.
func (t Tensor) Scale(s float64) Tensor {
	out := make([]float32, len(t.Data))
	for i, v := range t.Data {
		out[i] = float32(float64(v) * s)
	}
	shape := make([]int, len(t.Shape))
	copy(shape, t.Shape)
	return Tensor{Shape: shape, Data: out}
}

// Clone returns a deep copy.
func (t Tensor) Clone() Tensor {
	shape := make([]int, len(t.Shape))
	copy(shape, t.Shape)
	data := make([]float32, len(t.Data))
	copy(data, t.Data)
	return Tensor{Shape: shape, Data: data}
}

// SameShape reports whether two tensors have identical shapes.
func (t Tensor) SameShape(o Tensor) bool {
	if len(t.Shape) != len(o.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != o.Shape[i] {
			return false
		}
	}
	return true
}

// EncodeF32 returns the little-endian f32 byte encoding of the tensor data.
func (t Tensor) EncodeF32() []byte {
	out := make([]byte, len(t.Data)*4)
	for i, v := range t.Data {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func numElements(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("invalid dim %d", d)
		}
		if d > 0 && n > (int(^uint(0)>>1))/d {
			return 0, errors.New("tensor too large")
		}
		n *= d
	}
	return n, nil
}
