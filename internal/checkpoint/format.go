// Package checkpoint implements the binary checkpoint format used to
// persist and resume training runs.
//
// File structure:
//
//	[4 bytes: Magic "VAEC"]
//	[4 bytes: Version (uint32 LE)]
//	[4 bytes: Flags (uint32 LE)]
//	[8 bytes: Header Size (uint64 LE)]
//	[Header: JSON metadata, incl. tensor table, step, RNG state, checksum]
//	[Padding to 64-byte alignment]
//	[Tensor data: raw float32 LE]
//
// A checkpoint holds everything a deterministic resume needs: per-model
// parameter tensors keyed by model name, per-optimizer state tensors, the
// step counter, and the serialized RNG state. Files are written to a
// temporary path and atomically renamed into place, so a crash mid-write
// can never corrupt the last good checkpoint.
package checkpoint

import (
	"errors"
	"time"
)

// Format constants.
const (
	MagicBytes      = "VAEC"
	FormatVersion   = 1
	HeaderAlignment = 64      // Align tensor data to 64 bytes.
	MaxHeaderSize   = 1 << 24 // 16 MiB cap on the JSON header.
)

// Flags for the checkpoint format.
const (
	FlagHasOptimizer uint32 = 1 << 0 // optimizer state included
	FlagHasRNGState  uint32 = 1 << 1 // RNG state included
)

// Common errors.
var (
	ErrInvalidMagic       = errors.New("invalid magic bytes")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrChecksumMismatch   = errors.New("checksum mismatch: file may be corrupted")
	ErrHeaderTooLarge     = errors.New("header exceeds maximum size")
	ErrOutOfBounds        = errors.New("tensor extends beyond data section")
	ErrOffsetOverlap      = errors.New("tensor offsets overlap")
)

// Header is the JSON header of a checkpoint file.
type Header struct {
	FormatVersion int               `json:"format_version"`
	RunID         string            `json:"run_id"`
	Step          int64             `json:"step"`
	Loss          float64           `json:"loss"`
	RNGState      []byte            `json:"rng_state,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	Checksum      string            `json:"checksum"` // hex SHA-256 of the data section
	Tensors       []TensorMeta      `json:"tensors"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// TensorMeta describes a tensor in the data section.
type TensorMeta struct {
	Name   string `json:"name"`
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"` // bytes from start of data section
	Size   int64  `json:"size"`   // bytes
}
