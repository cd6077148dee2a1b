package input

import (
	"go.uber.org/zap"

	"github.com/macrow/macrow/pkg/macro"
)

// Noop logs every input action instead of performing it. Used by dry runs
// and tests.
type Noop struct {
	logger *zap.Logger
}

// NewNoop returns a Controller that only logs.
func NewNoop(logger *zap.Logger) *Noop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Noop{logger: logger}
}

func (n *Noop) Click(x, y int, button macro.Button, clicks int) error {
	n.logger.Info("dry-run click",
		zap.Int("x", x), zap.Int("y", y),
		zap.String("button", string(button)), zap.Int("clicks", clicks))
	return nil
}

func (n *Noop) TypeText(text string) error {
	n.logger.Info("dry-run type", zap.Int("chars", len(text)))
	return nil
}

func (n *Noop) KeyPress(key string, modifiers ...string) error {
	n.logger.Info("dry-run key press", zap.String("key", key), zap.Strings("modifiers", modifiers))
	return nil
}
