package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/kapitanov/chip8emu/internal/hal/ebitenhal"
	"github.com/kapitanov/chip8emu/internal/hal/sdlhal"
	"github.com/kapitanov/chip8emu/internal/runner"
	"github.com/kapitanov/chip8emu/internal/vm"
	"github.com/spf13/cobra"
)

const (
	backendSDL    = "sdl"
	backendEbiten = "ebiten"
)

func main() {
	cmd := &cobra.Command{
		Use:           fmt.Sprintf("%s PATH_TO_ROM_FILE", filepath.Base(os.Args[0])),
		Short:         "Run emulator",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	verbose := cmd.Flags().BoolP("verbose", "v", false, "enable verbose logging")
	scale := cmd.Flags().IntP("scale", "s", 15, "window scale factor")
	speed := cmd.Flags().Int("speed", runner.DefaultTicksPerFrame, "instructions executed per frame")
	fps := cmd.Flags().Int("fps", runner.DefaultFrameRate, "frames (and timer ticks) per second")
	backend := cmd.Flags().String("backend", backendSDL, "presentation backend: sdl or ebiten")

	cmd.RunE = func(_ *cobra.Command, args []string) error {
		loggerOpts := &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}
		if *verbose {
			loggerOpts.Level = slog.LevelDebug
		}

		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, loggerOpts)))

		if *scale <= 0 {
			return fmt.Errorf("scale must be positive, got %d", *scale)
		}

		path := args[0]
		bs, err := loadProgram(path)
		if err != nil {
			return err
		}

		cfg := runner.Config{
			TicksPerFrame: *speed,
			FrameRate:     *fps,
		}
		r, err := runner.New(cfg, bs)
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		switch *backend {
		case backendSDL:
			return runSDL(r, cfg, *scale)
		case backendEbiten:
			return ebitenhal.Run(r, *scale, cfg.FrameRate)
		default:
			return fmt.Errorf("unknown backend %q", *backend)
		}
	}

	cmd.SetArgs(os.Args[1:])
	if err := cmd.Execute(); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func loadProgram(path string) ([]byte, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to load file %q: %w", path, err)
	}

	if len(bs) > vm.MaxProgramSize {
		return nil, fmt.Errorf("program %q is %d bytes, at most %d fit in memory", path, len(bs), vm.MaxProgramSize)
	}

	return bs, nil
}

func runSDL(r *runner.Runner, cfg runner.Config, scale int) error {
	h, err := sdlhal.New(scale, cfg.FrameDuration())
	if err != nil {
		return fmt.Errorf("unable to initialize hal: %w", err)
	}
	defer h.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return r.Run(ctx, h)
}
