package hive

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Orientation is an EXIF orientation code. Rotations are clockwise, the
// way a viewer has to turn the stored pixels to display them upright.
type Orientation uint16

const (
	OrientationNormal Orientation = iota + 1
	OrientationFlipH
	OrientationRotate180
	OrientationRotate180FlipH
	OrientationRotate90FlipH
	OrientationRotate90
	OrientationRotate270FlipH
	OrientationRotate270
)

var ErrUnrecognizedOrientation = errors.New("unrecognized exif orientation")

// ResolveOrientation maps a raw EXIF orientation code to its transform.
func ResolveOrientation(code uint16) (Orientation, error) {
	if code < uint16(OrientationNormal) || code > uint16(OrientationRotate270) {
		return OrientationNormal, fmt.Errorf("%w: %d", ErrUnrecognizedOrientation, code)
	}
	return Orientation(code), nil
}

// SwapsAxes reports whether applying o exchanges width and height.
func (o Orientation) SwapsAxes() bool {
	return o >= OrientationRotate90FlipH && o <= OrientationRotate270
}

// Apply returns img transformed by o. Normal returns img itself.
func (o Orientation) Apply(img image.Image) image.Image {
	switch o {
	case OrientationFlipH:
		return imaging.FlipH(img)
	case OrientationRotate180:
		return imaging.Rotate180(img)
	case OrientationRotate180FlipH:
		return imaging.FlipV(img)
	case OrientationRotate90FlipH:
		// rotate 90 clockwise, then mirror: a transpose
		return imaging.Transpose(img)
	case OrientationRotate90:
		// imaging rotates counter-clockwise
		return imaging.Rotate270(img)
	case OrientationRotate270FlipH:
		return imaging.Transverse(img)
	case OrientationRotate270:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

func (o Orientation) String() string {
	switch o {
	case OrientationNormal:
		return "normal"
	case OrientationFlipH:
		return "flip-h"
	case OrientationRotate180:
		return "rotate-180"
	case OrientationRotate180FlipH:
		return "rotate-180-flip-h"
	case OrientationRotate90FlipH:
		return "rotate-90-flip-h"
	case OrientationRotate90:
		return "rotate-90"
	case OrientationRotate270FlipH:
		return "rotate-270-flip-h"
	case OrientationRotate270:
		return "rotate-270"
	}
	return fmt.Sprintf("orientation(%d)", uint16(o))
}
