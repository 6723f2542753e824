package imaging

import (
	"fmt"
	"image"
	"os"

	"github.com/corona10/goimagehash"
)

// PerceptualHash computes the perception hash of the image at path, used
// to group near-duplicate shots during scans.
func PerceptualHash(path string) (*goimagehash.ImageHash, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("phash %s: %w", path, err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("phash %s: decode: %w", path, err)
	}
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return nil, fmt.Errorf("phash %s: %w", path, err)
	}
	return hash, nil
}
