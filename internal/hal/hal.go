// Package hal holds what the presentation backends share: the sentinel
// errors they report to the runner, the keypad layout and the palette.
package hal

import (
	"errors"

	"github.com/kapitanov/chip8emu/internal/vm"
)

var (
	ErrReboot = errors.New("reboot")
	ErrQuit   = errors.New("quit")
)

const (
	BackgroundColor = uint32(0x000000)
	ForegroundColor = uint32(0xbea700)
)

// Layout maps the physical keyboard onto the keypad:
//
//	Physical                Logical
//	================        =================
//	| 1 | 2 | 3 | 4 |       | 1 | 2 | 3 | C |
//	| q | w | e | r |       | 4 | 5 | 6 | D |
//	| a | s | d | f |  <=>  | 7 | 8 | 9 | E |
//	| z | x | c | v |       | A | 0 | B | F |
//	================        =================
var Layout = map[rune]vm.Key{
	'1': vm.Key1, '2': vm.Key2, '3': vm.Key3, '4': vm.KeyC,
	'q': vm.Key4, 'w': vm.Key5, 'e': vm.Key6, 'r': vm.KeyD,
	'a': vm.Key7, 's': vm.Key8, 'd': vm.Key9, 'f': vm.KeyE,
	'z': vm.KeyA, 'x': vm.Key0, 'c': vm.KeyB, 'v': vm.KeyF,
}

// ARGB converts a framebuffer into 32-bit ARGB pixels, writing into dst.
func ARGB(dst []uint32, gfx []bool) {
	for i, on := range gfx {
		color := BackgroundColor
		if on {
			color = ForegroundColor
		}
		dst[i] = 0xFF000000 | color
	}
}
