package data

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// MNIST is the classic handwritten-digit dataset in IDX binary format.
//
// Pixels are normalized from [0, 255] to [-1, 1] to match the tanh output
// of the decoder. Labels are ignored; the VAE is unsupervised.
type MNIST struct {
	images [][]float32
}

// idxImagesMagic is the IDX magic number for unsigned-byte image files.
const idxImagesMagic = 2051

// LoadMNIST reads the image file of an MNIST-format dataset.
//
// train selects train-images-idx3-ubyte versus t10k-images-idx3-ubyte
// inside dir. maxSamples of 0 loads everything.
func LoadMNIST(dir string, train bool, maxSamples int) (*MNIST, error) {
	name := "t10k-images-idx3-ubyte"
	if train {
		name = "train-images-idx3-ubyte"
	}
	raw, err := readIDXImages(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("load mnist: %w", err)
	}
	if maxSamples > 0 && len(raw) > maxSamples {
		raw = raw[:maxSamples]
	}

	images := make([][]float32, len(raw))
	for i, b := range raw {
		img := make([]float32, len(b))
		for j, px := range b {
			img[j] = float32(px)/127.5 - 1.0
		}
		images[i] = img
	}
	return &MNIST{images: images}, nil
}

// Len returns the number of images.
func (m *MNIST) Len() int { return len(m.images) }

// Dim returns 784 (28×28).
func (m *MNIST) Dim() int {
	if len(m.images) == 0 {
		return 0
	}
	return len(m.images[0])
}

// Image returns image i.
func (m *MNIST) Image(i int) ([]float32, error) {
	if i < 0 || i >= len(m.images) {
		return nil, fmt.Errorf("mnist: index %d out of range [0, %d)", i, len(m.images))
	}
	return m.images[i], nil
}

// readIDXImages reads an IDX image file.
//
// Layout: magic 0x00000803, image count, rows, cols (all big-endian
// uint32), then unsigned pixel bytes.
func readIDXImages(filename string) ([][]byte, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var magic uint32
	if err := binary.Read(file, binary.BigEndian, &magic); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if magic != idxImagesMagic {
		return nil, fmt.Errorf("invalid magic number: got %d, want %d", magic, idxImagesMagic)
	}

	var numImages, numRows, numCols uint32
	if err := binary.Read(file, binary.BigEndian, &numImages); err != nil {
		return nil, err
	}
	if err := binary.Read(file, binary.BigEndian, &numRows); err != nil {
		return nil, err
	}
	if err := binary.Read(file, binary.BigEndian, &numCols); err != nil {
		return nil, err
	}

	imageSize := int(numRows * numCols)
	images := make([][]byte, numImages)
	for i := range images {
		images[i] = make([]byte, imageSize)
		if _, err := io.ReadFull(file, images[i]); err != nil {
			return nil, fmt.Errorf("read image %d: %w", i, err)
		}
	}
	return images, nil
}
