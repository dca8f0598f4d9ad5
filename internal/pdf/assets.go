package pdf

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
)

// AssetStrategy encodes a rendered page into an image file.
type AssetStrategy interface {
	// Name is the config value selecting this strategy.
	Name() string
	// Extension is the file extension without a dot.
	Extension() string
	Encode(w io.Writer, img image.Image) error
}

// NewAssetStrategy resolves a configured strategy name.
func NewAssetStrategy(name string, jpegQuality int) (AssetStrategy, error) {
	switch name {
	case "", "png":
		return PNGStrategy{}, nil
	case "jpeg", "jpg":
		if err := NewValidator().ValidateQuality(jpegQuality); err != nil {
			return nil, err
		}
		return JPEGStrategy{Quality: jpegQuality}, nil
	default:
		return nil, fmt.Errorf("unknown asset strategy %q", name)
	}
}

// PNGStrategy writes lossless page renders.
type PNGStrategy struct{}

func (PNGStrategy) Name() string      { return "png" }
func (PNGStrategy) Extension() string { return "png" }

func (PNGStrategy) Encode(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

// JPEGStrategy writes compressed page renders.
type JPEGStrategy struct {
	Quality int
}

func (JPEGStrategy) Name() string      { return "jpeg" }
func (JPEGStrategy) Extension() string { return "jpg" }

func (s JPEGStrategy) Encode(w io.Writer, img image.Image) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: s.Quality})
}
