package hive

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

const DefaultQuality = 75

// Encoder turns rendition pixels into file bytes. It is shared by the
// upload path and the re-encode task.
type Encoder struct {
	Format  string // "jpeg" or "webp"
	Quality int    // 0..100
}

func NewEncoder(format string, quality int) (Encoder, error) {
	switch format {
	case "":
		format = "jpeg"
	case "jpeg", "jpg":
		format = "jpeg"
	case "webp":
	default:
		return Encoder{}, fmt.Errorf("unsupported output format %q", format)
	}
	if quality < 0 || quality > 100 {
		return Encoder{}, fmt.Errorf("quality %d out of range 0..100", quality)
	}
	return Encoder{Format: format, Quality: quality}, nil
}

// Ext is the file extension of encoded renditions, including the dot.
func (e Encoder) Ext() string {
	if e.Format == "webp" {
		return ".webp"
	}
	return ".jpg"
}

func (e Encoder) FileName(name RenditionName) string {
	return string(name) + e.Ext()
}

func (e Encoder) Encode(w io.Writer, img image.Image) error {
	switch e.Format {
	case "webp":
		return webp.Encode(w, img, &webp.Options{Lossless: false, Quality: float32(e.Quality)})
	default:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(e.Quality))
	}
}

func (e Encoder) EncodeBytes(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
