// Package vision defines the screen perception contract the executor runs
// against. Implementations wrap an OCR or template-matching backend; this
// package only carries the types and a dry-run stub.
package vision

import (
	"context"

	"github.com/macrow/macrow/pkg/macro"
)

// ImageQuery asks for a template image on screen.
type ImageQuery struct {
	Template   string // path to the template image
	Region     *macro.Region
	Confidence float64   // 0 means backend default
	ScaleRange []float64 // optional [min, max] template scaling
}

// TextQuery asks for a text string on screen.
type TextQuery struct {
	Text       string
	Region     *macro.Region
	ExactMatch bool
}

// Match is the outcome of a single lookup. Not finding anything is a normal
// result, not an error; errors are reserved for backend failures.
type Match struct {
	Found      bool
	Center     macro.Point
	Bounds     macro.Region
	Confidence float64
	Text       string // recognized text, for text queries
}

// Service locates images and text on screen and captures screenshots.
type Service interface {
	FindImage(ctx context.Context, q ImageQuery) (Match, error)
	FindText(ctx context.Context, q TextQuery) (Match, error)
	FindAllText(ctx context.Context, q TextQuery) ([]Match, error)
	Capture(ctx context.Context, region *macro.Region, path string) error
}
