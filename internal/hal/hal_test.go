package hal

import (
	"testing"

	"github.com/kapitanov/chip8emu/internal/vm"
	"github.com/retroenv/retrogolib/assert"
)

func TestLayout_CoversKeypad(t *testing.T) {
	seen := map[vm.Key]bool{}
	for _, key := range Layout {
		assert.True(t, key.Valid())
		seen[key] = true
	}
	assert.Equal(t, vm.KeyCount, len(seen))
}

func TestARGB(t *testing.T) {
	dst := make([]uint32, 3)
	ARGB(dst, []bool{true, false, true})

	assert.Equal(t, []uint32{0xFFbea700, 0xFF000000, 0xFFbea700}, dst)
}
