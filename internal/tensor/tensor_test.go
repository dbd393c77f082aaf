package tensor_test

import (
	"testing"

	"github.com/latentml/vae/internal/rng"
	"github.com/latentml/vae/internal/tensor"
)

// Helper to check float equality with tolerance.
func floatEqual(a, b, eps float32) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < eps
}

// TestElementwise_Ops tests AddInPlace, Scale, and Sum.
func TestElementwise_Ops(t *testing.T) {
	a, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	if err != nil {
		t.Fatal(err)
	}
	b, err := tensor.FromSlice([]float32{4, 3, 2, 1}, tensor.Shape{2, 2})
	if err != nil {
		t.Fatal(err)
	}

	scaled := a.Scale(2)
	wantScaled := []float32{2, 4, 6, 8}
	for i, v := range scaled.Data() {
		if v != wantScaled[i] {
			t.Errorf("Scale[%d]: got %f, want %f", i, v, wantScaled[i])
		}
	}

	a.AddInPlace(b)
	for _, v := range a.Data() {
		if v != 5 {
			t.Errorf("AddInPlace: got %f, want 5", v)
		}
	}
	wantB := []float32{4, 3, 2, 1}
	for i, v := range b.Data() {
		if v != wantB[i] {
			t.Error("AddInPlace must not modify its argument")
		}
	}

	if got := a.Sum(); got != 20 {
		t.Errorf("Sum: got %f, want 20", got)
	}
}

// TestMatMul_KnownProduct checks a 2x3 @ 3x2 product by hand.
func TestMatMul_KnownProduct(t *testing.T) {
	a, _ := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	b, _ := tensor.FromSlice([]float32{7, 8, 9, 10, 11, 12}, tensor.Shape{3, 2})

	c := a.MatMul(b)

	if !c.Shape().Equal(tensor.Shape{2, 2}) {
		t.Fatalf("MatMul shape: got %v, want [2 2]", c.Shape())
	}
	want := []float32{58, 64, 139, 154}
	for i, v := range c.Data() {
		if !floatEqual(v, want[i], 1e-5) {
			t.Errorf("MatMul[%d]: got %f, want %f", i, v, want[i])
		}
	}
}

// TestMatMul_AgainstTranspose checks (A @ B).T == B.T @ A.T on random data.
func TestMatMul_AgainstTranspose(t *testing.T) {
	g := rng.New(1)
	a := tensor.Randn(tensor.Shape{4, 7}, g)
	b := tensor.Randn(tensor.Shape{7, 5}, g)

	left := a.MatMul(b).Transpose()
	right := b.Transpose().MatMul(a.Transpose())

	ld, rd := left.Data(), right.Data()
	for i := range ld {
		if !floatEqual(ld[i], rd[i], 1e-4) {
			t.Fatalf("transpose identity violated at %d: %f vs %f", i, ld[i], rd[i])
		}
	}
}

// TestClamp_Bounds tests clamping into [lo, hi].
func TestClamp_Bounds(t *testing.T) {
	x, _ := tensor.FromSlice([]float32{-30, -1, 0, 1, 30}, tensor.Shape{5})
	c := x.Clamp(-20, 20)
	want := []float32{-20, -1, 0, 1, 20}
	for i, v := range c.Data() {
		if v != want[i] {
			t.Errorf("Clamp[%d]: got %f, want %f", i, v, want[i])
		}
	}
}

// TestRow_View verifies row views write through.
func TestRow_View(t *testing.T) {
	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	row := x.Row(1)
	if len(row) != 3 || row[0] != 4 {
		t.Fatalf("Row(1): got %v", row)
	}
	row[2] = 99
	if x.Data()[5] != 99 {
		t.Error("Row should return a view into the tensor")
	}
}

// TestFromSlice_LengthMismatch rejects inconsistent data.
func TestFromSlice_LengthMismatch(t *testing.T) {
	if _, err := tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{2, 2}); err == nil {
		t.Error("expected error for data length mismatch")
	}
}

// TestRandn_Deterministic verifies a fixed seed gives a fixed tensor.
func TestRandn_Deterministic(t *testing.T) {
	a := tensor.Randn(tensor.Shape{100}, rng.New(7))
	b := tensor.Randn(tensor.Shape{100}, rng.New(7))
	for i := range a.Data() {
		if a.Data()[i] != b.Data()[i] {
			t.Fatalf("Randn not deterministic at %d", i)
		}
	}
}
