package tensor

import (
	"fmt"

	"github.com/latentml/vae/internal/parallel"
)

func checkSameShape(op string, a, b *Tensor) {
	if !a.shape.Equal(b.shape) {
		panic(fmt.Sprintf("tensor.%s: shape mismatch %v vs %v", op, a.shape, b.shape))
	}
}

// Scale returns t * s elementwise.
func (t *Tensor) Scale(s float32) *Tensor {
	out := New(t.shape)
	for i := range t.data {
		out.data[i] = t.data[i] * s
	}
	return out
}

// AddInPlace accumulates other into t.
func (t *Tensor) AddInPlace(other *Tensor) {
	checkSameShape("AddInPlace", t, other)
	for i := range t.data {
		t.data[i] += other.data[i]
	}
}

// Clamp returns t with every element limited to [lo, hi].
func (t *Tensor) Clamp(lo, hi float32) *Tensor {
	out := New(t.shape)
	for i, v := range t.data {
		switch {
		case v < lo:
			out.data[i] = lo
		case v > hi:
			out.data[i] = hi
		default:
			out.data[i] = v
		}
	}
	return out
}

// Sum returns the sum of all elements.
func (t *Tensor) Sum() float64 {
	var s float64
	for _, v := range t.data {
		s += float64(v)
	}
	return s
}

// MatMul computes the 2D matrix product t @ other.
//
// t is [m, k], other is [k, n], result is [m, n]. Rows are processed in
// parallel for large products.
func (t *Tensor) MatMul(other *Tensor) *Tensor {
	if len(t.shape) != 2 || len(other.shape) != 2 {
		panic(fmt.Sprintf("tensor.MatMul: expected 2D tensors, got %v and %v", t.shape, other.shape))
	}
	m, k := t.shape[0], t.shape[1]
	k2, n := other.shape[0], other.shape[1]
	if k != k2 {
		panic(fmt.Sprintf("tensor.MatMul: inner dimensions differ: %v @ %v", t.shape, other.shape))
	}

	out := New(Shape{m, n})
	parallel.ForRows(m, n, func(i int) {
		row := out.data[i*n : (i+1)*n]
		for p := 0; p < k; p++ {
			a := t.data[i*k+p]
			if a == 0 {
				continue
			}
			brow := other.data[p*n : (p+1)*n]
			for j := range row {
				row[j] += a * brow[j]
			}
		}
	}, parallel.DefaultConfig())
	return out
}

// Transpose returns the transpose of a 2D tensor.
func (t *Tensor) Transpose() *Tensor {
	if len(t.shape) != 2 {
		panic(fmt.Sprintf("tensor.Transpose: expected 2D tensor, got %v", t.shape))
	}
	m, n := t.shape[0], t.shape[1]
	out := New(Shape{n, m})
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			out.data[j*m+i] = t.data[i*n+j]
		}
	}
	return out
}
