package hive

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

// TIFF field types used by the fixtures.
const (
	tiffASCII    = 2
	tiffShort    = 3
	tiffLong     = 4
	tiffRational = 5
)

type tiffEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

func asciiEntry(tag uint16, s string) tiffEntry {
	b := append([]byte(s), 0)
	return tiffEntry{tag: tag, typ: tiffASCII, count: uint32(len(b)), data: b}
}

func shortEntry(tag uint16, v uint16) tiffEntry {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return tiffEntry{tag: tag, typ: tiffShort, count: 1, data: b}
}

func longEntry(tag uint16, v uint32) tiffEntry {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return tiffEntry{tag: tag, typ: tiffLong, count: 1, data: b}
}

// rationalEntry takes num/den pairs.
func rationalEntry(tag uint16, pairs ...uint32) tiffEntry {
	b := make([]byte, 4*len(pairs))
	for i, v := range pairs {
		binary.LittleEndian.PutUint32(b[4*i:], v)
	}
	return tiffEntry{tag: tag, typ: tiffRational, count: uint32(len(pairs) / 2), data: b}
}

// exifFixture describes the tags written into the test TIFF block.
type exifFixture struct {
	ifd0 []tiffEntry
	exif []tiffEntry
	gps  []tiffEntry
}

const (
	tagMake             = 0x010F
	tagModel            = 0x0110
	tagOrientation      = 0x0112
	tagExifIFD          = 0x8769
	tagGPSIFD           = 0x8825
	tagExposureTime     = 0x829A
	tagFNumber          = 0x829D
	tagDateTimeOriginal = 0x9003
	tagFocalLength      = 0x920A
	tagGPSLatitudeRef   = 0x0001
	tagGPSLatitude      = 0x0002
	tagGPSLongitudeRef  = 0x0003
	tagGPSLongitude     = 0x0004
)

func ifdSize(entries []tiffEntry) int {
	n := 2 + 12*len(entries) + 4
	for _, e := range entries {
		if len(e.data) > 4 {
			n += len(e.data) + len(e.data)%2
		}
	}
	return n
}

func writeIFD(buf *bytes.Buffer, entries []tiffEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })
	base := buf.Len()
	dataOff := base + 2 + 12*len(entries) + 4
	var data []byte

	le := binary.LittleEndian
	b2 := make([]byte, 2)
	b4 := make([]byte, 4)
	le.PutUint16(b2, uint16(len(entries)))
	buf.Write(b2)
	for _, e := range entries {
		le.PutUint16(b2, e.tag)
		buf.Write(b2)
		le.PutUint16(b2, e.typ)
		buf.Write(b2)
		le.PutUint32(b4, e.count)
		buf.Write(b4)
		if len(e.data) <= 4 {
			v := make([]byte, 4)
			copy(v, e.data)
			buf.Write(v)
			continue
		}
		le.PutUint32(b4, uint32(dataOff+len(data)))
		buf.Write(b4)
		data = append(data, e.data...)
		if len(e.data)%2 == 1 {
			data = append(data, 0)
		}
	}
	buf.Write([]byte{0, 0, 0, 0}) // no next IFD
	buf.Write(data)
}

// tiff builds a little-endian TIFF block with optional EXIF and GPS
// sub-IFDs.
func (f exifFixture) tiff() []byte {
	ifd0 := append([]tiffEntry(nil), f.ifd0...)
	if len(f.exif) > 0 {
		ifd0 = append(ifd0, longEntry(tagExifIFD, 0))
	}
	if len(f.gps) > 0 {
		ifd0 = append(ifd0, longEntry(tagGPSIFD, 0))
	}

	off := 8 + ifdSize(ifd0)
	exifOff := off
	if len(f.exif) > 0 {
		off += ifdSize(f.exif)
	}
	gpsOff := off
	for i := range ifd0 {
		switch ifd0[i].tag {
		case tagExifIFD:
			ifd0[i] = longEntry(tagExifIFD, uint32(exifOff))
		case tagGPSIFD:
			ifd0[i] = longEntry(tagGPSIFD, uint32(gpsOff))
		}
	}

	var buf bytes.Buffer
	buf.Write([]byte{'I', 'I', 42, 0, 8, 0, 0, 0})
	writeIFD(&buf, ifd0)
	if len(f.exif) > 0 {
		writeIFD(&buf, append([]tiffEntry(nil), f.exif...))
	}
	if len(f.gps) > 0 {
		writeIFD(&buf, append([]tiffEntry(nil), f.gps...))
	}
	return buf.Bytes()
}

// testPattern returns a w x h image whose pixels encode their position.
func testPattern(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 40), G: uint8(y * 40), B: 128, A: 255})
		}
	}
	return img
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testPattern(w, h), &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testPattern(w, h)))
	return buf.Bytes()
}

// withAPP1 inserts an APP1 segment carrying payload right after SOI.
func withAPP1(t *testing.T, jpg, payload []byte) []byte {
	t.Helper()
	require.True(t, len(jpg) > 2 && jpg[0] == 0xFF && jpg[1] == 0xD8)
	seg := append([]byte("Exif\x00\x00"), payload...)
	out := []byte{0xFF, 0xD8, 0xFF, 0xE1, 0, 0}
	binary.BigEndian.PutUint16(out[4:], uint16(len(seg)+2))
	out = append(out, seg...)
	return append(out, jpg[2:]...)
}

func jpegWithExif(t *testing.T, w, h int, f exifFixture) []byte {
	return withAPP1(t, encodeJPEG(t, w, h), f.tiff())
}

// withEXIfChunk inserts an eXIf chunk after the PNG IHDR chunk.
func withEXIfChunk(t *testing.T, p, tiff []byte) []byte {
	t.Helper()
	ihdrEnd := 8 + 8 + 13 + 4
	chunk := make([]byte, 8, 12+len(tiff))
	binary.BigEndian.PutUint32(chunk, uint32(len(tiff)))
	copy(chunk[4:], "eXIf")
	chunk = append(chunk, tiff...)
	chunk = binary.BigEndian.AppendUint32(chunk, crc32.ChecksumIEEE(chunk[4:]))
	out := append([]byte(nil), p[:ihdrEnd]...)
	out = append(out, chunk...)
	return append(out, p[ihdrEnd:]...)
}

func orientationFixture(code uint16) exifFixture {
	return exifFixture{ifd0: []tiffEntry{shortEntry(tagOrientation, code)}}
}

func fullExifFixture() exifFixture {
	return exifFixture{
		ifd0: []tiffEntry{
			asciiEntry(tagMake, "Canon"),
			asciiEntry(tagModel, "Canon EOS 80D"),
			shortEntry(tagOrientation, 1),
		},
		exif: []tiffEntry{
			rationalEntry(tagExposureTime, 1, 200),
			rationalEntry(tagFNumber, 28, 10),
			rationalEntry(tagFocalLength, 50, 1),
			asciiEntry(tagDateTimeOriginal, "2021:06:15 10:30:00"),
		},
		gps: []tiffEntry{
			asciiEntry(tagGPSLatitudeRef, "N"),
			rationalEntry(tagGPSLatitude, 43, 1, 28, 1, 281, 100),
			asciiEntry(tagGPSLongitudeRef, "W"),
			rationalEntry(tagGPSLongitude, 79, 1, 23, 1, 1234, 100),
		},
	}
}

func pngChunk(kind string, data []byte) []byte {
	chunk := binary.BigEndian.AppendUint32(nil, uint32(len(data)))
	chunk = append(chunk, kind...)
	chunk = append(chunk, data...)
	return binary.BigEndian.AppendUint32(chunk, crc32.ChecksumIEEE(chunk[4:]))
}

// pngHeaderOnly is a PNG with an IHDR declaring w x h RGBA pixels and no
// image data.
func pngHeaderOnly(w, h uint32) []byte {
	ihdr := binary.BigEndian.AppendUint32(nil, w)
	ihdr = binary.BigEndian.AppendUint32(ihdr, h)
	ihdr = append(ihdr, 8, 6, 0, 0, 0)

	out := []byte("\x89PNG\r\n\x1a\n")
	out = append(out, pngChunk("IHDR", ihdr)...)
	return append(out, pngChunk("IEND", nil)...)
}
