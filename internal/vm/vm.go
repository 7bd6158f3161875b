package vm

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
)

const (
	MemorySize    = 4096
	StackSize     = 16
	RegisterCount = 16
	ScreenWidth   = 64
	ScreenHeight  = 32
	KeyCount      = 16

	ProgramStart    = uint16(0x200)
	InstructionSize = 2

	// MaxProgramSize is the largest image that fits between ProgramStart and the end of memory.
	MaxProgramSize = MemorySize - int(ProgramStart)

	flagRegister = 0x0F
)

type VM struct {
	memory    [MemorySize]uint8    // Memory (4k)
	registers [RegisterCount]uint8 // V registers (V0-VF)

	stack [StackSize]uint16 // Stack
	sp    uint16            // Stack pointer

	pc    uint16 // Program counter
	index uint16 // Index register

	delayTimer uint8 // Delay timer
	soundTimer uint8 // Sound timer

	gfx      [ScreenWidth * ScreenHeight]bool // Graphics buffer
	keypad   [KeyCount]bool                   // Keypad
	drawFlag bool                             // Indicates a draw has occurred
	looping  bool                             // Last instruction jumped to itself

	program []byte

	rnd   *rand.Rand
	sound func()
}

// Option configures a VM at construction time.
type Option func(*VM)

// WithRand sets the random source used by the rnd instruction.
func WithRand(r *rand.Rand) Option {
	return func(vm *VM) {
		vm.rnd = r
	}
}

// WithSoundHandler registers a callback invoked once each time the sound
// timer reaches zero.
func WithSoundHandler(fn func()) Option {
	return func(vm *VM) {
		vm.sound = fn
	}
}

func New(opts ...Option) *VM {
	vm := &VM{}
	for _, opt := range opts {
		opt(vm)
	}

	if vm.rnd == nil {
		vm.rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	vm.Reset()
	return vm
}

type Key uint8

const (
	Key0 = Key(iota)
	Key1
	Key2
	Key3
	Key4
	Key5
	Key6
	Key7
	Key8
	Key9
	KeyA
	KeyB
	KeyC
	KeyD
	KeyE
	KeyF
)

func (k Key) Valid() bool {
	return k < KeyCount
}

func (k Key) String() string {
	return fmt.Sprintf("%X", uint8(k))
}

// Reset returns the machine to its post-construction state. The loaded
// program image is kept so that Reload can restart it.
func (vm *VM) Reset() {
	vm.pc = ProgramStart
	vm.index = 0
	vm.sp = 0

	vm.memory = [MemorySize]uint8{}
	vm.registers = [RegisterCount]uint8{}
	vm.stack = [StackSize]uint16{}
	vm.keypad = [KeyCount]bool{}

	// Clear the display
	vm.gfx = [ScreenWidth * ScreenHeight]bool{}
	vm.drawFlag = true
	vm.looping = false

	// Load font set into memory
	slog.Debug("load font", "at", fmt.Sprintf("0x%04x", 0), "n", len(chip8Font))
	copy(vm.memory[0:], chip8Font)

	// Reset timers
	vm.delayTimer = 0
	vm.soundTimer = 0
}

// Load copies image into memory starting at ProgramStart. The caller must
// make sure the image fits (see MaxProgramSize).
func (vm *VM) Load(image []byte) {
	vm.program = append(vm.program[:0], image...)

	slog.Info("load program", "at", fmt.Sprintf("0x%04x", ProgramStart), "n", len(image))
	copy(vm.memory[ProgramStart:], image)
}

// Reload resets the machine and loads the most recent program image again.
func (vm *VM) Reload() {
	vm.Reset()
	slog.Info("reload program", "at", fmt.Sprintf("0x%04x", ProgramStart), "n", len(vm.program))
	copy(vm.memory[ProgramStart:], vm.program)
}

func (vm *VM) SetKey(key Key, pressed bool) error {
	if !key.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidKey, key)
	}

	vm.keypad[key] = pressed
	return nil
}

// Display returns the framebuffer, ScreenWidth*ScreenHeight pixels in row-major order.
// The slice must not be modified.
func (vm *VM) Display() []bool {
	return vm.gfx[:]
}

func (vm *VM) Pixel(x, y int) bool {
	return vm.gfx[getScreenAddr(uint16(x), uint16(y))]
}

// Redraw reports whether the framebuffer changed since the previous call.
func (vm *VM) Redraw() bool {
	redraw := vm.drawFlag
	vm.drawFlag = false
	return redraw
}

// Looping reports whether the last instruction was a jump to its own address.
// Such a program can make no further progress.
func (vm *VM) Looping() bool {
	return vm.looping
}

func (vm *VM) PC() uint16 { return vm.pc }
func (vm *VM) Index() uint16 { return vm.index }
func (vm *VM) SP() uint16 { return vm.sp }
func (vm *VM) DelayTimer() uint8 { return vm.delayTimer }
func (vm *VM) SoundTimer() uint8 { return vm.soundTimer }
func (vm *VM) Register(r int) uint8 { return vm.registers[r&0x0F] }

// Memory returns a copy of the address space.
func (vm *VM) Memory() []byte {
	mem := make([]byte, MemorySize)
	copy(mem, vm.memory[:])
	return mem
}

// Tick executes one instruction.
func (vm *VM) Tick() error {
	pc := vm.pc

	opcode, err := vm.fetchOpcode()
	if err != nil {
		return &ExecError{PC: pc, Opcode: opcode, Err: err}
	}

	vm.pc += InstructionSize

	if err := vm.executeOpcode(pc, opcode); err != nil {
		return &ExecError{PC: pc, Opcode: opcode, Err: err}
	}

	return nil
}

// TickTimers decrements the delay and sound timers. It is meant to be called at 60 Hz.
func (vm *VM) TickTimers() {
	if vm.delayTimer > 0 {
		vm.delayTimer--
	}

	if vm.soundTimer > 0 {
		vm.soundTimer--
		if vm.soundTimer == 0 && vm.sound != nil {
			vm.sound()
		}
	}
}

func (vm *VM) fetchOpcode() (uint16, error) {
	if int(vm.pc)+1 >= MemorySize {
		return 0, fmt.Errorf("%w: fetch at 0x%04x", ErrMemoryOutOfBounds, vm.pc)
	}

	hi := vm.memory[vm.pc]
	lo := vm.memory[vm.pc+1]

	opcode := uint16(hi)<<8 | uint16(lo) // Op code is two bytes
	return opcode, nil
}

func (vm *VM) push(addr uint16) error {
	if int(vm.sp) >= StackSize {
		return fmt.Errorf("%w: depth %d", ErrStackOverflow, vm.sp)
	}

	vm.stack[vm.sp] = addr
	vm.sp++
	return nil
}

func (vm *VM) pop() (uint16, error) {
	if vm.sp == 0 {
		return 0, ErrStackUnderflow
	}

	vm.sp--
	return vm.stack[vm.sp], nil
}

// memoryRange validates that n bytes starting at addr lie inside memory.
func (vm *VM) memoryRange(addr uint16, n int) error {
	if int(addr)+n > MemorySize {
		return fmt.Errorf("%w: 0x%04x+%d", ErrMemoryOutOfBounds, addr, n)
	}
	return nil
}
