// Package ebitenhal is the ebiten presentation backend. Ebiten owns the main
// loop here, so every Update runs one runner frame.
package ebitenhal

import (
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"golang.org/x/image/font/basicfont"

	"github.com/kapitanov/chip8emu/internal/hal"
	"github.com/kapitanov/chip8emu/internal/runner"
	"github.com/kapitanov/chip8emu/internal/vm"
)

var keys = func() map[ebiten.Key]vm.Key {
	m := make(map[ebiten.Key]vm.Key, len(hal.Layout))
	for ek := ebiten.Key(0); ek <= ebiten.KeyMax; ek++ {
		// "A" for letters, "Digit1" for the number row.
		name := strings.ToLower(strings.TrimPrefix(ek.String(), "Digit"))
		if len(name) != 1 {
			continue
		}
		if key, ok := hal.Layout[rune(name[0])]; ok {
			m[ek] = key
		}
	}
	return m
}()

// Game adapts a runner to ebiten.Game.
type Game struct {
	runner *runner.Runner
	scale  int

	screen *ebiten.Image
	pixels []byte
	argb   []uint32

	face   text.Face
	halted error
}

func New(r *runner.Runner, scale int) *Game {
	return &Game{
		runner: r,
		scale:  scale,
		pixels: make([]byte, vm.ScreenWidth*vm.ScreenHeight*4),
		argb:   make([]uint32, vm.ScreenWidth*vm.ScreenHeight),
		face:   text.NewGoXFace(basicfont.Face7x13),
	}
}

// Run opens the window and blocks until it is closed.
func Run(r *runner.Runner, scale, frameRate int) error {
	ebiten.SetWindowSize(vm.ScreenWidth*scale, vm.ScreenHeight*scale)
	ebiten.SetWindowTitle("CHIP-8")
	ebiten.SetTPS(frameRate)

	err := ebiten.RunGame(New(r, scale))
	if errors.Is(err, ebiten.Termination) {
		return nil
	}
	return err
}

func (g *Game) Update() error {
	if g.halted != nil {
		if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
			return ebiten.Termination
		}
		if !inpututil.IsKeyJustPressed(ebiten.KeyBackspace) {
			return nil
		}
		g.halted = nil
		g.runner.Reboot()
	}

	err := g.runner.Frame(frontend{g})
	if errors.Is(err, hal.ErrQuit) {
		return ebiten.Termination
	}
	if err != nil {
		// Keep the window open so the failure can be read.
		slog.Error("machine halted", "err", err)
		g.halted = err
	}
	return nil
}

// frontend is the runner.Frontend view of a Game; ebiten.Game already
// claims the Draw method name.
type frontend struct {
	g *Game
}

func (frontend) ReadInput(keyDown func(vm.Key), keyUp func(vm.Key)) error {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		slog.Debug("hal: exit requested")
		return hal.ErrQuit
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyBackspace) {
		return hal.ErrReboot
	}

	for ek, key := range keys {
		if inpututil.IsKeyJustPressed(ek) {
			keyDown(key)
		} else if inpututil.IsKeyJustReleased(ek) {
			keyUp(key)
		}
	}
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	if g.screen != nil {
		op := &ebiten.DrawImageOptions{}
		op.GeoM.Scale(float64(g.scale), float64(g.scale))
		screen.DrawImage(g.screen, op)
	}

	if g.halted != nil {
		op := &text.DrawOptions{}
		op.GeoM.Translate(4, 4)
		op.ColorScale.ScaleWithColor(color.White)
		msg := fmt.Sprintf("%v\nbackspace: reboot  esc: quit", g.halted)
		op.LineSpacing = 14
		text.Draw(screen, msg, g.face, op)
	}
}

func (g *Game) Layout(_, _ int) (int, int) {
	return vm.ScreenWidth * g.scale, vm.ScreenHeight * g.scale
}

// Beep only reports the tone; there is no audio output.
func (frontend) Beep() error {
	slog.Debug("hal: beep")
	return nil
}

// Draw keeps the framebuffer in an offscreen image which Game.Draw scales
// onto the window.
func (f frontend) Draw(gfx []bool) error {
	g := f.g
	if g.screen == nil {
		g.screen = ebiten.NewImage(vm.ScreenWidth, vm.ScreenHeight)
	}

	hal.ARGB(g.argb, gfx)
	for i, c := range g.argb {
		g.pixels[i*4+0] = byte(c >> 16)
		g.pixels[i*4+1] = byte(c >> 8)
		g.pixels[i*4+2] = byte(c)
		g.pixels[i*4+3] = byte(c >> 24)
	}

	g.screen.WritePixels(g.pixels)
	return nil
}
