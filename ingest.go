package hive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"time"

	_ "github.com/chai2010/webp"
)

var (
	ErrNoImage       = errors.New("missing image data")
	ErrImageDecode   = errors.New("failed to decode image")
	ErrTooManyPixels = errors.New("image exceeds the pixel limit")
)

// DefaultMaxPixels caps width*height of an upload before its pixels are
// decoded.
const DefaultMaxPixels = 100_000_000

// ImageError reports bytes that are not a supported raster format.
type ImageError struct {
	Err error
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("%s: %v", ErrImageDecode, e.Err)
}

func (e *ImageError) Unwrap() []error {
	return []error{ErrImageDecode, e.Err}
}

// Ingestor runs the upload pipeline: decode, exif, orientation, cascade,
// layout. It keeps no state between uploads.
type Ingestor struct {
	Layout    LayoutWriter
	Resample  ResampleFunc
	Logger    *slog.Logger
	Now       func() time.Time
	MaxPixels int64 // 0 disables the limit
}

func NewIngestor(root string, enc Encoder, resample ResampleFunc, log *slog.Logger) *Ingestor {
	if log == nil {
		log = slog.Default()
	}
	return &Ingestor{
		Layout:    LayoutWriter{Root: root, Encoder: enc},
		Resample:  resample,
		Logger:    log,
		Now:       time.Now,
		MaxPixels: DefaultMaxPixels,
	}
}

// Ingest stores upload under key and returns the metadata record to be
// persisted. Nothing touches the filesystem before the image decodes.
func (in *Ingestor) Ingest(ctx context.Context, upload RawUpload, uploader, key string) (*ImageMetadata, error) {
	if len(upload.Data) == 0 {
		return nil, ErrNoImage
	}
	log := in.Logger.With("key", key, "uploader", uploader)

	img, format, err := in.decode(upload.Data)
	if err != nil {
		return nil, err
	}

	rec := ExtractExif(upload.Data, log)
	full := in.orient(img, rec, log)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	renditions := Cascade(full, in.Resample)
	log.Debug("cascade computed",
		"format", format,
		"large", renditions[1].Kind.String(),
		"medium", renditions[2].Kind.String(),
		"tiny", renditions[3].Kind.String())
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fileName := SanitizeFileName(upload.FileName)
	if err := in.Layout.Write(ctx, key, fileName, upload.Data, renditions); err != nil {
		return nil, err
	}

	meta := &ImageMetadata{
		Key:        key,
		Uploader:   uploader,
		UploadedAt: in.now().UTC(),
		FileName:   fileName,
		SizeBytes:  int64(len(upload.Data)),
		Width:      renditions[0].Width,
		Height:     renditions[0].Height,
	}
	meta.applyExif(rec)
	log.Info("image ingested", "size_bytes", meta.SizeBytes, "width", meta.Width, "height", meta.Height)
	return meta, nil
}

// decode reads the header first so an oversized image is rejected before
// its pixel buffer is allocated.
func (in *Ingestor) decode(data []byte) (image.Image, string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", &ImageError{Err: err}
	}
	if in.MaxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > in.MaxPixels {
		return nil, "", &ImageError{Err: fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)}
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", &ImageError{Err: err}
	}
	return img, format, nil
}

func (in *Ingestor) orient(img image.Image, rec ExifRecord, log *slog.Logger) image.Image {
	if rec.Orientation == nil {
		return img
	}
	o, err := ResolveOrientation(*rec.Orientation)
	if err != nil {
		log.Warn("ignoring exif orientation", "err", err)
		return img
	}
	return o.Apply(img)
}

func (in *Ingestor) now() time.Time {
	if in.Now == nil {
		return time.Now()
	}
	return in.Now()
}
