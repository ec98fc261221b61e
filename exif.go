package hive

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// ExifDateTimeLayout is the display form of the capture timestamp.
const ExifDateTimeLayout = "2006-01-02 15:04:05"

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// Location is a GPS position in signed decimal degrees.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ExifRecord is the normalized subset of EXIF kept for an image. Every
// field is optional; an image without EXIF yields the zero record.
type ExifRecord struct {
	CapturedAt   *time.Time
	CameraMake   *string
	CameraModel  *string
	ExposureTime *string
	FNumber      *string
	FocalLength  *string
	Location     *Location
	Orientation  *uint16
	Raw          map[string]string
}

type exifWalker struct {
	m map[string]string
}

func (w *exifWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	w.m[string(name)] = tag.String()
	return nil
}

// ExtractExif reads the EXIF block of a JPEG or PNG file. It never fails:
// missing or malformed EXIF is logged and yields an empty record.
func ExtractExif(data []byte, log *slog.Logger) (rec ExifRecord) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("exif parser panicked", "panic", r)
			rec = ExifRecord{}
		}
	}()

	x, err := decodeExif(data)
	if err != nil {
		log.Warn("failed to read exif metadata", "err", err)
		return ExifRecord{}
	}

	raw := make(map[string]string)
	if err := x.Walk(&exifWalker{m: raw}); err == nil && len(raw) > 0 {
		rec.Raw = raw
	}

	rec.Location = readLocation(x)
	rec.CapturedAt = readCapturedAt(x)
	rec.CameraMake = readASCII(x, exif.Make)
	rec.CameraModel = readASCII(x, exif.Model)
	rec.ExposureTime = readExposureTime(x)
	rec.FNumber = readFNumber(x)
	rec.FocalLength = readFocalLength(x)
	rec.Orientation = readOrientation(x)
	return rec
}

func decodeExif(data []byte) (*exif.Exif, error) {
	if bytes.HasPrefix(data, pngSignature) {
		chunk, err := pngExifChunk(data)
		if err != nil {
			return nil, err
		}
		data = chunk
	}
	return exif.Decode(bytes.NewReader(data))
}

// pngExifChunk returns the raw TIFF payload of the eXIf chunk.
func pngExifChunk(data []byte) ([]byte, error) {
	off := len(pngSignature)
	for off+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[off : off+4]))
		kind := string(data[off+4 : off+8])
		start := off + 8
		if length < 0 || start+length > len(data) {
			return nil, errors.New("png: truncated chunk")
		}
		switch kind {
		case "eXIf":
			return data[start : start+length], nil
		case "IDAT", "IEND":
			// eXIf must precede the image data
			return nil, errors.New("png: no eXIf chunk")
		}
		off = start + length + 4 // skip crc
	}
	return nil, errors.New("png: no eXIf chunk")
}

func readLocation(x *exif.Exif) *Location {
	lat, ok := readCoordinate(x, exif.GPSLatitude, exif.GPSLatitudeRef, "S")
	if !ok {
		return nil
	}
	lon, ok := readCoordinate(x, exif.GPSLongitude, exif.GPSLongitudeRef, "W")
	if !ok {
		return nil
	}
	return &Location{Latitude: lat, Longitude: lon}
}

func readCoordinate(x *exif.Exif, field, refField exif.FieldName, negativeRef string) (float64, bool) {
	tag, err := x.Get(field)
	if err != nil {
		return 0, false
	}
	ref := readASCII(x, refField)
	if ref == nil {
		return 0, false
	}
	dms, ok := tagRationals(tag, 3)
	if !ok {
		return 0, false
	}
	return decimalDegrees(dms[0], dms[1], dms[2], *ref == negativeRef), true
}

// decimalDegrees converts degrees/minutes/seconds into a signed value.
func decimalDegrees(deg, minutes, seconds float64, negative bool) float64 {
	d := deg + minutes/60 + seconds/3600
	if negative {
		return -d
	}
	return d
}

func tagRationals(tag *tiff.Tag, n int) ([]float64, bool) {
	if tag.Format() != tiff.RatVal || int(tag.Count) != n {
		return nil, false
	}
	out := make([]float64, n)
	for i := range out {
		num, den, err := tag.Rat2(i)
		if err != nil || den == 0 {
			return nil, false
		}
		out[i] = float64(num) / float64(den)
	}
	return out, true
}

func readCapturedAt(x *exif.Exif) *time.Time {
	s := readASCII(x, exif.DateTimeOriginal)
	if s == nil {
		return nil
	}
	t, err := time.Parse(ExifDateTimeLayout, displayDateTime(*s))
	if err != nil {
		return nil
	}
	return &t
}

// displayDateTime turns "2006:01:02 15:04:05" into "2006-01-02 15:04:05".
func displayDateTime(s string) string {
	if len(s) >= 10 && s[4] == ':' && s[7] == ':' {
		return s[:4] + "-" + s[5:7] + "-" + s[8:]
	}
	return s
}

func readASCII(x *exif.Exif, field exif.FieldName) *string {
	tag, err := x.Get(field)
	if err != nil || tag.Format() != tiff.StringVal {
		return nil
	}
	s, err := tag.StringVal()
	if err != nil {
		return nil
	}
	s = strings.Trim(s, "\x00\" \t")
	if s == "" {
		return nil
	}
	return &s
}

func readExposureTime(x *exif.Exif) *string {
	tag, err := x.Get(exif.ExposureTime)
	if err != nil {
		return nil
	}
	num, den, ok := firstRational(tag)
	if !ok {
		return nil
	}
	var s string
	switch {
	case num == 0:
		s = "0 s"
	case num < den && den%num == 0:
		s = fmt.Sprintf("1/%d s", den/num)
	case num%den == 0:
		s = fmt.Sprintf("%d s", num/den)
	case num < den:
		s = fmt.Sprintf("%d/%d s", num, den)
	default:
		s = formatFloat(float64(num)/float64(den)) + " s"
	}
	return &s
}

func readFNumber(x *exif.Exif) *string {
	tag, err := x.Get(exif.FNumber)
	if err != nil {
		return nil
	}
	num, den, ok := firstRational(tag)
	if !ok {
		return nil
	}
	s := "f/" + strconv.FormatFloat(float64(num)/float64(den), 'f', 1, 64)
	return &s
}

func readFocalLength(x *exif.Exif) *string {
	tag, err := x.Get(exif.FocalLength)
	if err != nil {
		return nil
	}
	num, den, ok := firstRational(tag)
	if !ok {
		return nil
	}
	s := formatFloat(float64(num)/float64(den)) + " mm"
	return &s
}

func firstRational(tag *tiff.Tag) (int64, int64, bool) {
	if tag.Format() != tiff.RatVal || tag.Count < 1 {
		return 0, 0, false
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den <= 0 || num < 0 {
		return 0, 0, false
	}
	return num, den, true
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(math.Round(f*100)/100, 'f', -1, 64)
}

func readOrientation(x *exif.Exif) *uint16 {
	tag, err := x.Get(exif.Orientation)
	if err != nil || tag.Format() != tiff.IntVal || tag.Count < 1 {
		return nil
	}
	v, err := tag.Int(0)
	if err != nil || v < 0 || v > math.MaxUint16 {
		return nil
	}
	code := uint16(v)
	return &code
}
