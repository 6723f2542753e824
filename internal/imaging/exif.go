package imaging

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// Meta holds the capture metadata used for scan histograms.
type Meta struct {
	CapturedAt time.Time
	Device     string
	FromEXIF   bool
}

// ReadMeta extracts EXIF capture time and device from the image at path.
// Files without usable EXIF fall back to the filesystem modification time
// and an empty device, with FromEXIF false.
func ReadMeta(path string) (Meta, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Meta{}, fmt.Errorf("read meta %s: %w", path, err)
	}
	meta := Meta{CapturedAt: info.ModTime()}

	file, err := os.Open(path)
	if err != nil {
		return Meta{}, fmt.Errorf("read meta %s: %w", path, err)
	}
	defer file.Close()

	parsed, err := exif.Decode(file)
	if err != nil {
		// No EXIF block (PNGs, screenshots, stripped files). Keep the
		// mtime fallback.
		return meta, nil
	}

	if captured, err := parsed.DateTime(); err == nil {
		meta.CapturedAt = captured
		meta.FromEXIF = true
	}
	meta.Device = deviceName(parsed)
	return meta, nil
}

func deviceName(parsed *exif.Exif) string {
	var parts []string
	for _, field := range []exif.FieldName{exif.Make, exif.Model} {
		tag, err := parsed.Get(field)
		if err != nil {
			continue
		}
		value, err := tag.StringVal()
		if err != nil {
			continue
		}
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, " ")
}
