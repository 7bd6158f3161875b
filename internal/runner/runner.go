// Package runner drives a machine at a fixed frame rate: it feeds input into
// the keypad, executes a batch of instructions, decrements the timers and
// hands the framebuffer to a presentation backend.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kapitanov/chip8emu/internal/hal"
	"github.com/kapitanov/chip8emu/internal/vm"
)

// Frontend is the presentation side of a backend.
type Frontend interface {
	ReadInput(keyDown func(vm.Key), keyUp func(vm.Key)) error
	Draw(gfx []bool) error
	Beep() error
}

// HAL is a backend that also paces the main loop itself.
type HAL interface {
	Frontend
	WaitForNextFrame() error
}

type Runner struct {
	machine *vm.VM
	cfg     Config

	beep    bool
	looping bool
}

// New creates a runner and a machine with program loaded.
func New(cfg Config, program []byte, opts ...vm.Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{cfg: cfg}

	opts = append(opts, vm.WithSoundHandler(func() { r.beep = true }))
	r.machine = vm.New(opts...)
	r.machine.Load(program)

	return r, nil
}

func (r *Runner) Machine() *vm.VM {
	return r.machine
}

// Reboot restarts the loaded program from a clean machine state.
func (r *Runner) Reboot() {
	slog.Info("reboot requested")
	r.machine.Reload()
	r.looping = false
}

// Run executes frames until the backend asks to quit, ctx is done or the
// machine fails.
func (r *Runner) Run(ctx context.Context, h HAL) error {
	for {
		if err := ctx.Err(); err != nil {
			slog.Info("run cancelled", "err", err)
			return nil
		}

		err := r.Frame(h)
		if errors.Is(err, hal.ErrQuit) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := h.WaitForNextFrame(); err != nil {
			return err
		}
	}
}

// Frame runs a single frame against fe.
func (r *Runner) Frame(fe Frontend) error {
	err := fe.ReadInput(r.keyDown, r.keyUp)
	if errors.Is(err, hal.ErrReboot) {
		r.Reboot()
		err = nil
	}
	if err != nil {
		return err
	}

	if err := r.step(); err != nil {
		return err
	}

	r.machine.TickTimers()
	if r.beep {
		r.beep = false
		if err := fe.Beep(); err != nil {
			return err
		}
	}

	if r.machine.Redraw() {
		if err := fe.Draw(r.machine.Display()); err != nil {
			return err
		}
	}

	return nil
}

func (r *Runner) step() error {
	for i := 0; i < r.cfg.TicksPerFrame; i++ {
		if r.machine.Looping() {
			if !r.looping {
				slog.Info("program looped", "pc", fmt.Sprintf("0x%04x", r.machine.PC()))
				r.looping = true
			}
			return nil
		}

		if err := r.machine.Tick(); err != nil {
			return fmt.Errorf("machine halted: %w", err)
		}
	}

	return nil
}

func (r *Runner) keyDown(key vm.Key) {
	r.setKey(key, true)
}

func (r *Runner) keyUp(key vm.Key) {
	r.setKey(key, false)
}

func (r *Runner) setKey(key vm.Key, pressed bool) {
	if err := r.machine.SetKey(key, pressed); err != nil {
		slog.Error("set key", "key", key, "err", err)
	}
}
