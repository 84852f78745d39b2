// Package safetensors reads and writes the safetensors container format:
// an 8-byte little-endian header length, a JSON header mapping tensor names
// to dtype/shape/offsets, then the raw tensor data.
package safetensors

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	json "github.com/goccy/go-json"

	"github.com/facok/hylora/internal/lora"
	"github.com/facok/hylora/internal/tensor"
)

type TensorInfo struct {
	DType tensor.DType
	Shape []int
	Start int64
	End   int64
}

type File struct {
	Path      string
	DataStart int64
	Tensors   map[string]TensorInfo
}

type tensorHeader struct {
	DType       string  `json:"dtype"`
	Shape       []int   `json:"shape"`
	DataOffsets []int64 `json:"data_offsets"`
}

// Open parses the header of a safetensors file. Tensor data is read lazily
// via ReadTensor.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	headerLen, err := readU64(f)
	if err != nil {
		return nil, fmt.Errorf("read header length: %w", err)
	}
	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(f, headerBytes); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	delete(raw, "__metadata__")

	tensors := make(map[string]TensorInfo, len(raw))
	for name, msg := range raw {
		var th tensorHeader
		if err := json.Unmarshal(msg, &th); err != nil {
			return nil, fmt.Errorf("parse tensor %s: %w", name, err)
		}
		if len(th.DataOffsets) != 2 || th.DataOffsets[1] < th.DataOffsets[0] {
			return nil, fmt.Errorf("tensor %s: invalid data_offsets", name)
		}
		tensors[name] = TensorInfo{
			DType: tensor.DType(th.DType),
			Shape: th.Shape,
			Start: th.DataOffsets[0],
			End:   th.DataOffsets[1],
		}
	}
	return &File{
		Path:      path,
		DataStart: int64(8 + headerLen),
		Tensors:   tensors,
	}, nil
}

// Names returns all tensor names in sorted order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Tensors))
	for name := range f.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReadTensor reads and decodes one tensor to float32.
func (f *File) ReadTensor(name string) (tensor.Tensor, error) {
	info, ok := f.Tensors[name]
	if !ok {
		return tensor.Tensor{}, fmt.Errorf("tensor not found: %s", name)
	}
	raw := make([]byte, info.End-info.Start)

	file, err := os.Open(f.Path)
	if err != nil {
		return tensor.Tensor{}, err
	}
	defer func() { _ = file.Close() }()

	if _, err := file.ReadAt(raw, f.DataStart+info.Start); err != nil {
		return tensor.Tensor{}, fmt.Errorf("read tensor %s: %w", name, err)
	}
	t, err := tensor.FromRaw(info.Shape, info.DType, raw)
	if err != nil {
		return tensor.Tensor{}, fmt.Errorf("decode tensor %s: %w", name, err)
	}
	return t, nil
}

// LoadWeights deserializes every tensor in the file into a weight mapping,
// keyed in sorted name order so repeated loads are identical.
func LoadWeights(path string) (*lora.Weights, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	w := lora.NewWeights()
	for _, name := range f.Names() {
		t, err := f.ReadTensor(name)
		if err != nil {
			return nil, err
		}
		w.Set(name, t)
	}
	return w, nil
}

// Save writes a weight mapping as an f32 safetensors file, keeping the
// mapping's entry order for data layout.
func Save(path string, w *lora.Weights) error {
	header := make(map[string]tensorHeader, w.Len())
	var offset int64
	type chunk struct {
		name string
		data []byte
	}
	chunks := make([]chunk, 0, w.Len())
	for name, t := range w.All() {
		data := t.EncodeF32()
		shape := t.Shape
		if shape == nil {
			shape = []int{}
		}
		header[name] = tensorHeader{
			DType:       string(tensor.DTypeF32),
			Shape:       shape,
			DataOffsets: []int64{offset, offset + int64(len(data))},
		}
		chunks = append(chunks, chunk{name: name, data: data})
		offset += int64(len(data))
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerBytes)))
	if _, err := f.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := f.Write(headerBytes); err != nil {
		return err
	}
	for _, c := range chunks {
		if _, err := f.Write(c.data); err != nil {
			return fmt.Errorf("write tensor %s: %w", c.name, err)
		}
	}
	return f.Close()
}

func readU64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
