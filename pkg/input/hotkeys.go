package input

import (
	"sync"

	hook "github.com/robotn/gohook"
	"go.uber.org/zap"
)

// HotkeyListener watches global key presses so a running macro can be paused
// or stopped without switching focus away from the automated application.
// Defaults: f9 toggles pause, f10 stops.
type HotkeyListener struct {
	PauseKey string
	StopKey  string

	OnPauseToggle func()
	OnStop        func()

	logger *zap.Logger

	mu      sync.Mutex
	running bool
}

// NewHotkeyListener returns a listener with the default key bindings.
func NewHotkeyListener(logger *zap.Logger) *HotkeyListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HotkeyListener{PauseKey: "f9", StopKey: "f10", logger: logger}
}

// Start installs the global hooks and processes events on a background
// goroutine until Stop is called. Starting twice is a no-op.
func (h *HotkeyListener) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.running = true

	hook.Register(hook.KeyDown, []string{h.PauseKey}, func(hook.Event) {
		h.logger.Info("pause hotkey pressed", zap.String("key", h.PauseKey))
		if h.OnPauseToggle != nil {
			h.OnPauseToggle()
		}
	})
	hook.Register(hook.KeyDown, []string{h.StopKey}, func(hook.Event) {
		h.logger.Info("stop hotkey pressed", zap.String("key", h.StopKey))
		if h.OnStop != nil {
			h.OnStop()
		}
	})

	go func() {
		s := hook.Start()
		<-hook.Process(s)
	}()
}

// Stop removes the hooks and ends the event loop.
func (h *HotkeyListener) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	hook.End()
}
