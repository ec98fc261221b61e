package hive

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
)

type RenditionName string

const (
	RenditionFull   RenditionName = "full"
	RenditionLarge  RenditionName = "large"
	RenditionMedium RenditionName = "medium"
	RenditionTiny   RenditionName = "tiny"
)

type RenditionKind int

const (
	Generated RenditionKind = iota
	Aliased
)

func (k RenditionKind) String() string {
	if k == Aliased {
		return "aliased"
	}
	return "generated"
}

// Rendition is one step of the derivative cascade. A Generated rendition
// owns fresh pixels; an Aliased one is satisfied by its Source's file.
type Rendition struct {
	Name   RenditionName
	Kind   RenditionKind
	Source RenditionName // immediate predecessor, empty for full
	Image  image.Image   // nil when Aliased
	Width  int
	Height int
}

type renditionBox struct {
	name          RenditionName
	width, height int
}

// Fixed chain after full; each box is derived from the one before it.
var cascadeBoxes = [...]renditionBox{
	{RenditionLarge, 1280, 1280},
	{RenditionMedium, 800, 800},
	{RenditionTiny, 360, 360},
}

// ResampleFunc scales img to fit inside a width x height box, keeping
// the aspect ratio.
type ResampleFunc func(img image.Image, width, height int) image.Image

// ImagingFit resamples with imaging's Lanczos filter.
func ImagingFit(img image.Image, width, height int) image.Image {
	return imaging.Fit(img, width, height, imaging.Lanczos)
}

// NfntThumbnail resamples with nfnt/resize's Lanczos3 thumbnailer.
func NfntThumbnail(img image.Image, width, height int) image.Image {
	return resize.Thumbnail(uint(width), uint(height), img, resize.Lanczos3)
}

// ResamplerByName maps a config value to a ResampleFunc.
func ResamplerByName(name string) (ResampleFunc, error) {
	switch name {
	case "", "lanczos", "imaging":
		return ImagingFit, nil
	case "nfnt":
		return NfntThumbnail, nil
	}
	return nil, fmt.Errorf("unknown resampler %q", name)
}

// Cascade derives large, medium and tiny from the oriented full image.
// A step whose source already fits strictly inside the target box is
// aliased to that source instead of resampled.
func Cascade(full image.Image, resample ResampleFunc) [4]Rendition {
	if resample == nil {
		resample = ImagingFit
	}

	var out [4]Rendition
	b := full.Bounds()
	out[0] = Rendition{
		Name:   RenditionFull,
		Kind:   Generated,
		Image:  full,
		Width:  b.Dx(),
		Height: b.Dy(),
	}

	src := full
	for i, box := range cascadeBoxes {
		prev := out[i]
		if prev.Width < box.width && prev.Height < box.height {
			out[i+1] = Rendition{
				Name:   box.name,
				Kind:   Aliased,
				Source: prev.Name,
				Width:  prev.Width,
				Height: prev.Height,
			}
			continue
		}

		img := resample(src, box.width, box.height)
		rb := img.Bounds()
		out[i+1] = Rendition{
			Name:   box.name,
			Kind:   Generated,
			Source: prev.Name,
			Image:  img,
			Width:  rb.Dx(),
			Height: rb.Dy(),
		}
		src = img
	}
	return out
}
