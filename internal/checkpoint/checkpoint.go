package checkpoint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/latentml/vae/internal/tensor"
)

// Snapshot is a complete training state capture.
//
// Tensor keys are qualified by owner: "encoder.*", "decoder.*", "disc.*"
// for model parameters and "optim.*", "optim_disc.*" for optimizer state.
type Snapshot struct {
	Step      int64
	Loss      float64
	RunID     string
	RNGState  []byte
	CreatedAt time.Time
	Metadata  map[string]string
	Tensors   map[string]*tensor.Tensor
}

// Save writes the snapshot to path atomically.
//
// The file is first written and synced to a temporary name in the target
// directory, then renamed over path. A failure at any stage leaves any
// previous checkpoint at path untouched.
func Save(path string, snap *Snapshot) (err error) {
	payload, err := encode(snap)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(payload); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("publish checkpoint: %w", err)
	}
	return nil
}

// encode serializes the snapshot into the on-disk byte layout.
func encode(snap *Snapshot) ([]byte, error) {
	// Deterministic tensor order for reproducible files.
	names := make([]string, 0, len(snap.Tensors))
	for name := range snap.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	var dataSize int64
	metas := make([]TensorMeta, 0, len(names))
	for _, name := range names {
		t := snap.Tensors[name]
		size := int64(t.NumElements() * 4)
		metas = append(metas, TensorMeta{
			Name:   name,
			Shape:  []int(t.Shape()),
			Offset: dataSize,
			Size:   size,
		})
		dataSize += size
	}

	data := make([]byte, dataSize)
	for i, name := range names {
		off := metas[i].Offset
		for _, v := range snap.Tensors[name].Data() {
			binary.LittleEndian.PutUint32(data[off:], math.Float32bits(v))
			off += 4
		}
	}
	sum := sha256.Sum256(data)

	createdAt := snap.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	header := Header{
		FormatVersion: FormatVersion,
		RunID:         snap.RunID,
		Step:          snap.Step,
		Loss:          snap.Loss,
		RNGState:      snap.RNGState,
		CreatedAt:     createdAt,
		Checksum:      hex.EncodeToString(sum[:]),
		Tensors:       metas,
		Metadata:      snap.Metadata,
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint header: %w", err)
	}
	if len(headerJSON) > MaxHeaderSize {
		return nil, ErrHeaderTooLarge
	}

	var flags uint32
	if len(snap.RNGState) > 0 {
		flags |= FlagHasRNGState
	}
	flags |= FlagHasOptimizer

	preamble := 4 + 4 + 4 + 8
	headerEnd := preamble + len(headerJSON)
	padding := (HeaderAlignment - headerEnd%HeaderAlignment) % HeaderAlignment
	buf := make([]byte, 0, headerEnd+padding+len(data))

	buf = append(buf, MagicBytes...)
	buf = binary.LittleEndian.AppendUint32(buf, FormatVersion)
	buf = binary.LittleEndian.AppendUint32(buf, flags)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(headerJSON)))
	buf = append(buf, headerJSON...)
	buf = append(buf, make([]byte, padding)...)
	buf = append(buf, data...)
	return buf, nil
}

// Load reads and validates a checkpoint file.
//
// Any structural problem (bad magic, unsupported version, checksum
// mismatch, out-of-bounds or overlapping tensors) is an error; a partially
// restored snapshot is never returned.
func Load(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	if len(raw) < 20 {
		return nil, fmt.Errorf("checkpoint %s: file truncated", path)
	}
	if string(raw[:4]) != MagicBytes {
		return nil, fmt.Errorf("checkpoint %s: %w", path, ErrInvalidMagic)
	}
	version := binary.LittleEndian.Uint32(raw[4:8])
	if version != FormatVersion {
		return nil, fmt.Errorf("checkpoint %s: %w: %d", path, ErrUnsupportedVersion, version)
	}
	headerSize := binary.LittleEndian.Uint64(raw[12:20])
	if headerSize > MaxHeaderSize {
		return nil, fmt.Errorf("checkpoint %s: %w", path, ErrHeaderTooLarge)
	}
	headerEnd := 20 + int(headerSize)
	if headerEnd > len(raw) {
		return nil, fmt.Errorf("checkpoint %s: header truncated", path)
	}

	var header Header
	if err := json.Unmarshal(raw[20:headerEnd], &header); err != nil {
		return nil, fmt.Errorf("checkpoint %s: decode header: %w", path, err)
	}

	dataStart := headerEnd + (HeaderAlignment-headerEnd%HeaderAlignment)%HeaderAlignment
	if dataStart > len(raw) {
		return nil, fmt.Errorf("checkpoint %s: data section truncated", path)
	}
	data := raw[dataStart:]

	if err := validateTensorTable(header.Tensors, int64(len(data))); err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", path, err)
	}

	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != header.Checksum {
		return nil, fmt.Errorf("checkpoint %s: %w", path, ErrChecksumMismatch)
	}

	tensors := make(map[string]*tensor.Tensor, len(header.Tensors))
	for _, meta := range header.Tensors {
		shape := tensor.Shape(meta.Shape)
		t := tensor.New(shape)
		td := t.Data()
		for i := range td {
			td[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[meta.Offset+int64(i*4):]))
		}
		tensors[meta.Name] = t
	}

	return &Snapshot{
		Step:      header.Step,
		Loss:      header.Loss,
		RunID:     header.RunID,
		RNGState:  header.RNGState,
		CreatedAt: header.CreatedAt,
		Metadata:  header.Metadata,
		Tensors:   tensors,
	}, nil
}

// validateTensorTable checks tensor shapes and offsets against the data
// section. Every shape must be materializable, so a header declaring a
// non-positive dimension is rejected here rather than panicking later.
func validateTensorTable(metas []TensorMeta, dataLen int64) error {
	sorted := make([]TensorMeta, len(metas))
	copy(sorted, metas)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	var prevEnd int64
	var prevName string
	for _, meta := range sorted {
		for _, dim := range meta.Shape {
			if dim <= 0 {
				return fmt.Errorf("tensor %q: non-positive dimension in shape %v", meta.Name, meta.Shape)
			}
		}
		if meta.Offset < 0 || meta.Size < 0 {
			return fmt.Errorf("tensor %q: negative offset or size", meta.Name)
		}
		expect := int64(tensor.Shape(meta.Shape).NumElements() * 4)
		if expect != meta.Size {
			return fmt.Errorf("tensor %q: size %d does not match shape %v", meta.Name, meta.Size, meta.Shape)
		}
		if meta.Offset+meta.Size > dataLen {
			return fmt.Errorf("tensor %q: %w", meta.Name, ErrOutOfBounds)
		}
		if meta.Offset < prevEnd {
			return fmt.Errorf("tensors %q and %q: %w", prevName, meta.Name, ErrOffsetOverlap)
		}
		prevEnd = meta.Offset + meta.Size
		prevName = meta.Name
	}
	return nil
}

// Scoped returns the tensors under prefix+"." with the prefix stripped.
func (s *Snapshot) Scoped(prefix string) map[string]*tensor.Tensor {
	out := make(map[string]*tensor.Tensor)
	p := prefix + "."
	for name, t := range s.Tensors {
		if len(name) > len(p) && name[:len(p)] == p {
			out[name[len(p):]] = t
		}
	}
	return out
}

// Merge adds tensors under prefix+"." into the snapshot.
func (s *Snapshot) Merge(prefix string, tensors map[string]*tensor.Tensor) {
	if s.Tensors == nil {
		s.Tensors = make(map[string]*tensor.Tensor)
	}
	for name, t := range tensors {
		s.Tensors[prefix+"."+name] = t
	}
}
