package vision

import (
	"context"

	"go.uber.org/zap"

	"github.com/macrow/macrow/pkg/macro"
)

// DryRun is a Service that reports every query as found at the region
// center without touching the screen. It lets `macrow run --dry-run`
// exercise a macro's control flow end to end.
type DryRun struct {
	logger *zap.Logger
}

// NewDryRun returns a dry-run vision service.
func NewDryRun(logger *zap.Logger) *DryRun {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DryRun{logger: logger}
}

func center(region *macro.Region) macro.Point {
	if region == nil {
		return macro.Point{}
	}
	return macro.Point{X: region.X + region.Width/2, Y: region.Y + region.Height/2}
}

func (d *DryRun) FindImage(_ context.Context, q ImageQuery) (Match, error) {
	d.logger.Debug("dry-run image lookup", zap.String("template", q.Template))
	return Match{Found: true, Center: center(q.Region), Confidence: 1.0}, nil
}

func (d *DryRun) FindText(_ context.Context, q TextQuery) (Match, error) {
	d.logger.Debug("dry-run text lookup", zap.String("text", q.Text))
	return Match{Found: true, Center: center(q.Region), Confidence: 1.0, Text: q.Text}, nil
}

func (d *DryRun) FindAllText(ctx context.Context, q TextQuery) ([]Match, error) {
	m, err := d.FindText(ctx, q)
	if err != nil {
		return nil, err
	}
	return []Match{m}, nil
}

func (d *DryRun) Capture(_ context.Context, _ *macro.Region, path string) error {
	d.logger.Debug("dry-run screenshot", zap.String("path", path))
	return nil
}
