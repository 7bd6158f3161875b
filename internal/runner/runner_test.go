package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/kapitanov/chip8emu/internal/hal"
	"github.com/kapitanov/chip8emu/internal/vm"
	"github.com/retroenv/retrogolib/assert"
)

type fakeHAL struct {
	frames   int
	maxFrame int

	inputs []func(keyDown, keyUp func(vm.Key)) error
	draws  [][]bool
	beeps  int
}

func (f *fakeHAL) ReadInput(keyDown func(vm.Key), keyUp func(vm.Key)) error {
	if f.frames >= f.maxFrame {
		return hal.ErrQuit
	}
	if f.frames < len(f.inputs) && f.inputs[f.frames] != nil {
		return f.inputs[f.frames](keyDown, keyUp)
	}
	return nil
}

func (f *fakeHAL) Draw(gfx []bool) error {
	f.draws = append(f.draws, append([]bool(nil), gfx...))
	return nil
}

func (f *fakeHAL) Beep() error {
	f.beeps++
	return nil
}

func (f *fakeHAL) WaitForNextFrame() error {
	f.frames++
	return nil
}

func program(words ...uint16) []byte {
	image := make([]byte, 0, len(words)*2)
	for _, w := range words {
		image = append(image, byte(w>>8), byte(w))
	}
	return image
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"one tick", Config{TicksPerFrame: 1, FrameRate: 60}, false},
		{"no ticks", Config{TicksPerFrame: 0, FrameRate: 60}, true},
		{"too many ticks", Config{TicksPerFrame: maxTicksPerFrame + 1, FrameRate: 60}, true},
		{"no frame rate", Config{TicksPerFrame: 10, FrameRate: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_FrameDuration(t *testing.T) {
	cfg := Config{TicksPerFrame: 1, FrameRate: 50}
	assert.Equal(t, int64(20_000_000), cfg.FrameDuration().Nanoseconds())
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}

func TestFrame_TicksAndTimers(t *testing.T) {
	r, err := New(Config{TicksPerFrame: 3, FrameRate: 60}, program(
		0x6005, // mov v0, 5
		0xF015, // sdelay v0
		0x7001, // add v0, 1
		0x7001, // add v0, 1
	))
	assert.NoError(t, err)

	f := &fakeHAL{maxFrame: 10}
	assert.NoError(t, r.Frame(f))

	m := r.Machine()
	assert.Equal(t, uint8(6), m.Register(0))
	assert.Equal(t, uint8(4), m.DelayTimer())
	assert.Equal(t, uint16(0x206), m.PC())
	assert.Equal(t, 1, len(f.draws))

	assert.NoError(t, r.Frame(f))
	assert.Equal(t, 1, len(f.draws))
}

func TestFrame_Beep(t *testing.T) {
	r, err := New(Config{TicksPerFrame: 2, FrameRate: 60}, program(
		0x6002, // mov v0, 2
		0xF018, // ssound v0
		0x1204, // jmp 0x204
	))
	assert.NoError(t, err)

	f := &fakeHAL{maxFrame: 10}
	assert.NoError(t, r.Frame(f))
	assert.Equal(t, 0, f.beeps)

	assert.NoError(t, r.Frame(f))
	assert.Equal(t, 1, f.beeps)

	assert.NoError(t, r.Frame(f))
	assert.Equal(t, 1, f.beeps)
}

func TestFrame_KeyInput(t *testing.T) {
	r, err := New(Config{TicksPerFrame: 1, FrameRate: 60}, program(
		0xF30A, // key v3
	))
	assert.NoError(t, err)

	f := &fakeHAL{
		maxFrame: 10,
		inputs: []func(keyDown, keyUp func(vm.Key)) error{
			nil,
			func(keyDown, _ func(vm.Key)) error {
				keyDown(vm.KeyB)
				return nil
			},
		},
	}

	assert.NoError(t, r.Frame(f))
	assert.Equal(t, uint16(0x200), r.Machine().PC())

	f.frames++
	assert.NoError(t, r.Frame(f))
	assert.Equal(t, uint16(0x202), r.Machine().PC())
	assert.Equal(t, uint8(0xB), r.Machine().Register(3))
}

func TestFrame_Reboot(t *testing.T) {
	r, err := New(Config{TicksPerFrame: 1, FrameRate: 60}, program(
		0x7001, // add v0, 1
		0x1200, // jmp 0x200
	))
	assert.NoError(t, err)

	f := &fakeHAL{
		maxFrame: 10,
		inputs: []func(keyDown, keyUp func(vm.Key)) error{
			nil, nil, nil,
			func(_, _ func(vm.Key)) error { return hal.ErrReboot },
		},
	}

	for i := 0; i < 3; i++ {
		assert.NoError(t, r.Frame(f))
		f.frames++
	}
	assert.Equal(t, uint8(2), r.Machine().Register(0))

	assert.NoError(t, r.Frame(f))
	assert.Equal(t, uint8(1), r.Machine().Register(0))
	assert.Equal(t, uint16(0x202), r.Machine().PC())
}

func TestFrame_StopsTickingWhenLooping(t *testing.T) {
	r, err := New(Config{TicksPerFrame: 5, FrameRate: 60}, program(
		0x6001, // mov v0, 1
		0x1202, // jmp 0x202
		0x00EE, // rts, never reached
	))
	assert.NoError(t, err)

	f := &fakeHAL{maxFrame: 10}
	assert.NoError(t, r.Frame(f))
	assert.NoError(t, r.Frame(f))
	assert.True(t, r.Machine().Looping())
	assert.Equal(t, uint16(0x202), r.Machine().PC())
}

func TestRun_Quit(t *testing.T) {
	r, err := New(DefaultConfig(), program(0x1200))
	assert.NoError(t, err)

	f := &fakeHAL{maxFrame: 3}
	assert.NoError(t, r.Run(context.Background(), f))
	assert.Equal(t, 3, f.frames)
}

func TestRun_Cancelled(t *testing.T) {
	r, err := New(DefaultConfig(), program(0x1200))
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &fakeHAL{maxFrame: 3}
	assert.NoError(t, r.Run(ctx, f))
	assert.Equal(t, 0, f.frames)
}

func TestRun_MachineError(t *testing.T) {
	r, err := New(DefaultConfig(), program(0x00EE))
	assert.NoError(t, err)

	f := &fakeHAL{maxFrame: 3}
	err = r.Run(context.Background(), f)
	assert.True(t, errors.Is(err, vm.ErrStackUnderflow))

	var execErr *vm.ExecError
	assert.True(t, errors.As(err, &execErr))
	assert.Equal(t, uint16(0x00EE), execErr.Opcode)
}
