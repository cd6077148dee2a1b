package engine

import (
	"go.uber.org/zap"

	"github.com/macrow/macrow/pkg/macro"
)

// Observer receives run lifecycle callbacks. Callbacks fire on the run
// goroutine; implementations must not block.
type Observer interface {
	StateChanged(from, to State)
	StepStarted(step *macro.Step, rowIndex int)
	StepCompleted(step *macro.Step, success bool)
	RowCompleted(rowIndex int, status string)
	Progress(fraction float64, completedRows, totalRows int)
}

// ZapObserver logs run events through a zap logger.
type ZapObserver struct {
	Logger *zap.Logger
}

func (o *ZapObserver) StateChanged(from, to State) {
	o.Logger.Info("state changed", zap.String("from", string(from)), zap.String("to", string(to)))
}

func (o *ZapObserver) StepStarted(step *macro.Step, rowIndex int) {
	o.Logger.Debug("step started",
		zap.String("step", step.Label()),
		zap.String("kind", string(step.Kind)),
		zap.Int("row", rowIndex))
}

func (o *ZapObserver) StepCompleted(step *macro.Step, success bool) {
	o.Logger.Debug("step completed",
		zap.String("step", step.Label()),
		zap.Bool("success", success))
}

func (o *ZapObserver) RowCompleted(rowIndex int, status string) {
	o.Logger.Info("row completed", zap.Int("row", rowIndex), zap.String("status", status))
}

func (o *ZapObserver) Progress(fraction float64, completedRows, totalRows int) {
	o.Logger.Debug("progress",
		zap.Float64("fraction", fraction),
		zap.Int("completed_rows", completedRows),
		zap.Int("total_rows", totalRows))
}
