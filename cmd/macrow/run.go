package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/macrow/macrow/pkg/datasource"
	"github.com/macrow/macrow/pkg/engine"
	"github.com/macrow/macrow/pkg/executor"
	"github.com/macrow/macrow/pkg/input"
	"github.com/macrow/macrow/pkg/trace"
	"github.com/macrow/macrow/pkg/validate"
	"github.com/macrow/macrow/pkg/vision"
)

var (
	runData          string
	runDryRun        bool
	runTrace         string
	runScreenshotDir string
	runNoHotkeys     bool
)

var runCmd = &cobra.Command{
	Use:   "run [macro.yaml]",
	Short: "Execute a macro",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runData, "data", "", "rows YAML file backing the excel-row block")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "log actions instead of driving the desktop")
	runCmd.Flags().StringVar(&runTrace, "trace", "", "append JSONL run events to this file")
	runCmd.Flags().StringVar(&runScreenshotDir, "screenshot-dir", ".", "directory for screenshot steps")
	runCmd.Flags().BoolVar(&runNoHotkeys, "no-hotkeys", false, "disable the f9/f10 pause and stop hotkeys")
}

func runRun(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	m, errs := validate.ValidateFile(args[0])
	if hasValidationErrors(errs) {
		fmt.Fprint(os.Stderr, formatValidationErrors(errs))
		return fmt.Errorf("macro validation failed")
	}

	var source datasource.Source
	if runData != "" {
		f, err := datasource.LoadYAML(runData)
		if err != nil {
			return fmt.Errorf("load rows: %w", err)
		}
		source = f
	}

	var vs vision.Service
	var in input.Controller
	if runDryRun {
		vs = vision.NewDryRun(logger)
		in = input.NewNoop(logger)
	} else {
		// No real vision backend ships in-process; without one every image
		// and text search reports found while the mouse and keyboard drive
		// the real desktop.
		logger.Warn("no vision backend configured, image and text searches always report found",
			zap.String("hint", "pass --dry-run to keep input simulated as well"))
		vs = vision.NewDryRun(logger)
		in = input.NewRobot()
	}

	exec := executor.New(vs, in, logger)
	exec.ScreenshotDir = runScreenshotDir

	cfg := engine.Config{
		Macro:     m,
		Source:    source,
		Executor:  exec,
		Logger:    logger,
		Observers: []engine.Observer{&engine.ZapObserver{Logger: logger}},
	}
	if runTrace != "" {
		tw, err := trace.NewFileWriter(runTrace, m.ID)
		if err != nil {
			return fmt.Errorf("open trace: %w", err)
		}
		defer tw.Close() //nolint:errcheck
		cfg.Trace = tw
	}

	eng := engine.New(cfg)

	if !runNoHotkeys && !runDryRun {
		hk := input.NewHotkeyListener(logger)
		hk.OnPauseToggle = eng.TogglePause
		hk.OnStop = eng.Stop
		hk.Start()
		defer hk.Stop()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	report, err := eng.Run(ctx)
	if report != nil {
		printReport(report)
	}
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	return nil
}

func printReport(r *engine.Report) {
	fmt.Printf("run %s: %s in %s\n", r.RunID, r.State, r.Duration.Round(1e6))
	if r.TotalRows > 0 {
		fmt.Printf("rows: %d/%d processed\n", r.CompletedRows, r.TotalRows)
		for _, row := range r.Rows {
			line := fmt.Sprintf("  row %d: %s", row.Index, row.Status)
			if row.Err != "" {
				line += " (" + row.Err + ")"
			}
			fmt.Println(line)
		}
	}
	if r.Err != "" {
		fmt.Printf("error: %s\n", r.Err)
	}
}
