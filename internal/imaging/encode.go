package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"os"

	_ "image/gif"
	_ "image/png"

	"github.com/nfnt/resize"
)

const jpegQuality = 85

// EncodeForAnalysis decodes the image at path, scales it so the total pixel
// count approximates size*size while preserving aspect ratio, and returns
// the result as a base64-encoded JPEG. The smaller side is rounded to a
// multiple of 32, which keeps payloads aligned with vision model tiling.
func EncodeForAnalysis(path string, size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("encode %s: size must be positive (got %d)", path, size)
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", path, err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return "", fmt.Errorf("encode %s: decode: %w", path, err)
	}

	width, height := analysisDimensions(img.Bounds().Dx(), img.Bounds().Dy(), size)
	scaled := resize.Resize(uint(width), uint(height), img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", fmt.Errorf("encode %s: jpeg: %w", path, err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// analysisDimensions picks output dimensions whose product approximates
// size*size at the source aspect ratio, with the smaller side snapped to a
// multiple of 32.
func analysisDimensions(srcWidth, srcHeight, size int) (int, int) {
	if srcWidth <= 0 || srcHeight <= 0 {
		return size, size
	}
	aspect := float64(srcWidth) / float64(srcHeight)
	target := float64(size * size)

	width := math.Sqrt(target * aspect)
	height := math.Sqrt(target / aspect)

	smaller := math.Min(width, height)
	smaller = math.Round(smaller/32) * 32
	if smaller < 32 {
		smaller = 32
	}

	if width < height {
		width = smaller
		height = math.Round(smaller / aspect)
	} else {
		height = smaller
		width = math.Round(smaller * aspect)
	}
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return int(width), int(height)
}
