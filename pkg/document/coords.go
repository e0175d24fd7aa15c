package document

import (
	"github.com/xhad/docchat/internal/models"
	"github.com/xhad/docchat/pkg/ocr"
)

// US letter at 72 dpi, assumed when the vendor omits page dimensions.
const (
	DefaultPageWidth  = 612
	DefaultPageHeight = 792
	DefaultPageDPI    = 72
)

// PageDimensions fills in the default size when width or height is missing.
func PageDimensions(d ocr.Dimensions) models.Dimensions {
	return withDefaults(models.Dimensions{Width: d.Width, Height: d.Height, DPI: d.DPI})
}

func withDefaults(d models.Dimensions) models.Dimensions {
	if d.Width <= 0 {
		d.Width = DefaultPageWidth
	}
	if d.Height <= 0 {
		d.Height = DefaultPageHeight
	}
	if d.DPI <= 0 {
		d.DPI = DefaultPageDPI
	}
	return d
}

// NormalizeCoordinates expresses an image box as fractions of the page size.
// Missing dimensions take the same defaults as PageDimensions. Values are not
// clamped.
func NormalizeCoordinates(img ocr.Image, dims models.Dimensions) models.Coordinates {
	dims = withDefaults(dims)
	w := float64(dims.Width)
	h := float64(dims.Height)

	return models.Coordinates{
		X:      float64(img.TopLeftX) / w,
		Y:      float64(img.TopLeftY) / h,
		Width:  float64(img.BottomRightX-img.TopLeftX) / w,
		Height: float64(img.BottomRightY-img.TopLeftY) / h,
	}
}

func originalCoordinates(img ocr.Image) models.OriginalCoordinates {
	return models.OriginalCoordinates{
		TopLeftX:     img.TopLeftX,
		TopLeftY:     img.TopLeftY,
		BottomRightX: img.BottomRightX,
		BottomRightY: img.BottomRightY,
	}
}
