package pdf

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
	"github.com/spherical/deck-evaluator/internal/domain"
)

// Document is an opened, page-addressable PDF. Pages are zero-based.
type Document interface {
	NumPage() int
	Text(page int) (string, error)
	Render(page int, dpi float64) (image.Image, error)
	Close() error
}

// Opener opens a source path as a Document
type Opener interface {
	Open(path string) (Document, error)
}

// FitzOpener opens documents with MuPDF via go-fitz
type FitzOpener struct {
	validator *Validator
}

// NewFitzOpener creates a new go-fitz backed opener
func NewFitzOpener() *FitzOpener {
	return &FitzOpener{validator: NewValidator()}
}

// Open validates the path and opens it. Any failure is a DocumentParseError.
func (o *FitzOpener) Open(path string) (Document, error) {
	if err := o.validator.ValidatePDFPath(path); err != nil {
		return nil, domain.DocumentParseError(fmt.Sprintf("invalid document %s", path), err)
	}

	doc, err := fitz.New(path)
	if err != nil {
		return nil, domain.DocumentParseError("Failed to open PDF", err)
	}

	if doc.NumPage() == 0 {
		doc.Close()
		return nil, domain.DocumentParseError("PDF has no pages", nil)
	}

	return &fitzDocument{doc: doc}, nil
}

type fitzDocument struct {
	doc *fitz.Document
}

func (d *fitzDocument) NumPage() int {
	return d.doc.NumPage()
}

func (d *fitzDocument) Text(page int) (string, error) {
	text, err := d.doc.Text(page)
	if err != nil {
		return "", domain.DocumentParseError(fmt.Sprintf("Failed to read text of page %d", page+1), err)
	}
	return text, nil
}

func (d *fitzDocument) Render(page int, dpi float64) (image.Image, error) {
	img, err := d.doc.ImageDPI(page, dpi)
	if err != nil {
		return nil, domain.DocumentParseError(fmt.Sprintf("Failed to render page %d", page+1), err)
	}
	return img, nil
}

func (d *fitzDocument) Close() error {
	return d.doc.Close()
}
