package imageio_test

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/latentml/vae/internal/imageio"
	"github.com/latentml/vae/internal/tensor"
)

// TestGrid_Layout checks the grid dimensions for a 2x3 arrangement.
func TestGrid_Layout(t *testing.T) {
	batch := tensor.New(tensor.Shape{6, 16}) // six 4x4 grayscale cells
	img, err := imageio.Grid(batch, 1, 4, 4, 3)
	if err != nil {
		t.Fatal(err)
	}

	// 3 cells per row, 2 rows, 2px padding around and between cells.
	wantW := 3*4 + 4*2
	wantH := 2*4 + 3*2
	if img.Bounds().Dx() != wantW || img.Bounds().Dy() != wantH {
		t.Errorf("grid size: got %dx%d, want %dx%d",
			img.Bounds().Dx(), img.Bounds().Dy(), wantW, wantH)
	}
}

// TestGrid_Denormalization maps (-1, 1) to 8-bit with clipping.
func TestGrid_Denormalization(t *testing.T) {
	batch, _ := tensor.FromSlice([]float32{-1, 0, 1, 5}, tensor.Shape{1, 4})
	img, err := imageio.Grid(batch, 1, 2, 2, 1)
	if err != nil {
		t.Fatal(err)
	}

	// Cell starts at (2, 2) after padding.
	cases := []struct {
		x, y int
		want uint8
	}{
		{2, 2, 0},   // -1 -> 0
		{3, 2, 127}, // 0 -> 127
		{2, 3, 255}, // 1 -> 255
		{3, 3, 255}, // 5 clipped to 255
	}
	for _, c := range cases {
		got := img.NRGBAAt(c.x, c.y)
		if got.R != c.want || got.G != c.want || got.B != c.want {
			t.Errorf("pixel (%d,%d): got %v, want gray %d", c.x, c.y, got, c.want)
		}
	}
}

// TestGrid_RGBChannels verifies channel-major layout for color images.
func TestGrid_RGBChannels(t *testing.T) {
	// One 1x1 RGB pixel: R=1, G=-1, B=0.
	batch, _ := tensor.FromSlice([]float32{1, -1, 0}, tensor.Shape{1, 3})
	img, err := imageio.Grid(batch, 3, 1, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	px := img.NRGBAAt(2, 2)
	if px.R != 255 || px.G != 0 || px.B != 127 {
		t.Errorf("RGB pixel: got %v, want {255 0 127}", px)
	}
}

// TestGrid_Errors rejects bad channel counts and dim mismatches.
func TestGrid_Errors(t *testing.T) {
	batch := tensor.New(tensor.Shape{1, 16})
	if _, err := imageio.Grid(batch, 2, 4, 4, 1); err == nil {
		t.Error("expected error for channels=2")
	}
	if _, err := imageio.Grid(batch, 1, 5, 5, 1); err == nil {
		t.Error("expected error for dim mismatch")
	}
}

// TestUpscale_Factor verifies integer nearest-neighbor scaling.
func TestUpscale_Factor(t *testing.T) {
	batch := tensor.New(tensor.Shape{1, 4})
	img, err := imageio.Grid(batch, 1, 2, 2, 1)
	if err != nil {
		t.Fatal(err)
	}

	big := imageio.Upscale(img, 3)
	if big.Bounds().Dx() != img.Bounds().Dx()*3 {
		t.Errorf("upscale width: got %d, want %d", big.Bounds().Dx(), img.Bounds().Dx()*3)
	}
	if same := imageio.Upscale(img, 1); same != img {
		t.Error("factor 1 should return the image unchanged")
	}
}

// TestWritePNG_CreatesParents writes into a nested directory and decodes
// the result back.
func TestWritePNG_CreatesParents(t *testing.T) {
	batch := tensor.New(tensor.Shape{4, 16})
	img, err := imageio.Grid(batch, 1, 4, 4, 2)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "a", "b", "grid.png")
	if err := imageio.WritePNG(path, img); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	decoded, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Bounds() != img.Bounds() {
		t.Errorf("decoded bounds %v, want %v", decoded.Bounds(), img.Bounds())
	}
}
