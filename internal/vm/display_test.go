package vm

import (
	"errors"
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

// litPixels returns the coordinates of all set framebuffer pixels.
func litPixels(vm *VM) [][2]int {
	var lit [][2]int
	for y := 0; y < ScreenHeight; y++ {
		for x := 0; x < ScreenWidth; x++ {
			if vm.Pixel(x, y) {
				lit = append(lit, [2]int{x, y})
			}
		}
	}
	return lit
}

func TestSprite_DoubleDrawRestores(t *testing.T) {
	vm := load(t,
		0x600A, // mov v0, 10
		0x6105, // mov v1, 5
		0xA000, // mvi 0x000, glyph "0"
		0xD015, // sprite v0, v1, 5
		0xD015, // sprite v0, v1, 5
	)
	run(t, vm, 4)

	assert.Equal(t, uint8(0), vm.Register(0xF))
	assert.Equal(t, 14, len(litPixels(vm)))
	assert.True(t, vm.Pixel(10, 5))
	assert.True(t, vm.Pixel(13, 5))
	assert.False(t, vm.Pixel(11, 6))
	assert.False(t, vm.Pixel(14, 5))

	run(t, vm, 1)
	assert.Equal(t, uint8(1), vm.Register(0xF))
	assert.Equal(t, 0, len(litPixels(vm)))
}

func TestSprite_PartialOverlapCollision(t *testing.T) {
	vm := load(t,
		0xA300, // mvi 0x300
		0xD011, // sprite v0, v1, 1
		0x6004, // mov v0, 4
		0xD011, // sprite v0, v1, 1
	)
	vm.memory[0x300] = 0xF0

	run(t, vm, 2)
	assert.Equal(t, uint8(0), vm.Register(0xF))

	// Second draw covers x=4..7, disjoint from x=0..3.
	run(t, vm, 2)
	assert.Equal(t, uint8(0), vm.Register(0xF))
	assert.Equal(t, 8, len(litPixels(vm)))
}

func TestSprite_WrapHorizontal(t *testing.T) {
	vm := load(t,
		0x603F, // mov v0, 63
		0x6102, // mov v1, 2
		0xA300, // mvi 0x300
		0xD011, // sprite v0, v1, 1
	)
	vm.memory[0x300] = 0xFF

	run(t, vm, 4)
	assert.Equal(t, [][2]int{{0, 2}, {1, 2}, {2, 2}, {3, 2}, {4, 2}, {5, 2}, {6, 2}, {63, 2}}, litPixels(vm))
}

func TestSprite_WrapVertical(t *testing.T) {
	vm := load(t,
		0x6003, // mov v0, 3
		0x611F, // mov v1, 31
		0xA300, // mvi 0x300
		0xD013, // sprite v0, v1, 3
	)
	vm.memory[0x300] = 0x80
	vm.memory[0x301] = 0x80
	vm.memory[0x302] = 0x80

	run(t, vm, 4)
	assert.Equal(t, [][2]int{{3, 0}, {3, 1}, {3, 31}}, litPixels(vm))
}

func TestSprite_OriginBeyondScreen(t *testing.T) {
	vm := load(t,
		0x60C8, // mov v0, 200
		0x6128, // mov v1, 40
		0xA300, // mvi 0x300
		0xD011, // sprite v0, v1, 1
	)
	vm.memory[0x300] = 0x80

	run(t, vm, 4)
	assert.Equal(t, [][2]int{{200 % ScreenWidth, 40 % ScreenHeight}}, litPixels(vm))
}

func TestSprite_ZeroHeight(t *testing.T) {
	vm := load(t,
		0xA000, // mvi 0x000
		0xD010, // sprite v0, v1, 0
	)
	vm.registers[0xF] = 1

	run(t, vm, 2)
	assert.Equal(t, uint8(0), vm.Register(0xF))
	assert.Equal(t, 0, len(litPixels(vm)))
}

func TestSprite_OutOfBounds(t *testing.T) {
	vm := load(t,
		0xAFFE, // mvi 0xffe
		0xD015, // sprite v0, v1, 5
	)
	run(t, vm, 1)

	err := vm.Tick()
	assert.True(t, errors.Is(err, ErrMemoryOutOfBounds))
}

func TestClearScreen(t *testing.T) {
	vm := load(t,
		0xA000, // mvi 0x000
		0xD015, // sprite v0, v1, 5
		0x00E0, // cls
	)
	run(t, vm, 2)
	assert.True(t, len(litPixels(vm)) > 0)
	flag := vm.Register(0xF)
	index := vm.Index()

	run(t, vm, 1)
	assert.Equal(t, 0, len(litPixels(vm)))
	assert.Equal(t, flag, vm.Register(0xF))
	assert.Equal(t, index, vm.Index())
}

func TestDisplay_RowMajor(t *testing.T) {
	vm := load(t,
		0x6001, // mov v0, 1
		0x6102, // mov v1, 2
		0xA300, // mvi 0x300
		0xD011, // sprite v0, v1, 1
	)
	vm.memory[0x300] = 0x80

	run(t, vm, 4)
	gfx := vm.Display()
	assert.Equal(t, ScreenWidth*ScreenHeight, len(gfx))
	assert.True(t, gfx[2*ScreenWidth+1])
}
