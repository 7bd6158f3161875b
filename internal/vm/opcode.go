package vm

import (
	"context"
	"fmt"
	"log/slog"
)

// opcode is a single instruction word. Its four nibbles are laid out as
// [family][x][y][n]; nn and nnn are the low byte and low 12 bits.
type opcode uint16

func (op opcode) family() uint8 { return uint8(op >> 12) }
func (op opcode) x() uint8 { return uint8(op>>8) & 0x0F }
func (op opcode) y() uint8 { return uint8(op>>4) & 0x0F }
func (op opcode) n() uint8 { return uint8(op) & 0x0F }
func (op opcode) nn() uint8 { return uint8(op) }
func (op opcode) nnn() uint16 { return uint16(op) & 0x0FFF }

// Disassemble returns the mnemonic form of an instruction word.
func Disassemble(word uint16) string {
	op := opcode(word)
	return decode(op).Name(op)
}

func (vm *VM) executeOpcode(pc, word uint16) error {
	op := opcode(word)
	instr := decode(op)

	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		slog.Debug(
			"exec",
			"pc", fmt.Sprintf("0x%04x", pc),
			"opcode", fmt.Sprintf("0x%04x", word),
			"instr", instr.Name(op),
		)
	}

	vm.looping = false
	return instr.Execute(vm, op)
}

type instruction struct {
	Name    func(op opcode) string
	Execute func(vm *VM, op opcode) error
}

// decode selects the instruction for op. Families that share a leading
// nibble (0, 8, E, F) are told apart by their trailing nibbles.
func decode(op opcode) instruction {
	switch op.family() {
	case 0x0:
		switch op.nnn() {
		case 0x000:
			// 0000 - No operation
			return nopInstruction
		case 0x0E0:
			// 00E0 - Clear screen
			return clsInstruction
		case 0x0EE:
			// 00EE - Return from subroutine
			return rtsInstruction
		}

	case 0x1:
		// 1NNN - Jumps to address NNN
		return jmpInstruction

	case 0x2:
		// 2NNN - Calls subroutine at NNN
		return jsrInstruction

	case 0x3:
		// 3XNN - Skips the next instruction if VX equals NN
		return skeq1Instruction

	case 0x4:
		// 4XNN - Skips the next instruction if VX does not equal NN
		return skne1Instruction

	case 0x5:
		if op.n() == 0x0 {
			// 5XY0 - Skips the next instruction if VX equals VY
			return skeq2Instruction
		}

	case 0x6:
		// 6XNN - Sets VX to NN
		return mov1Instruction

	case 0x7:
		// 7XNN - Adds NN to VX, no carry
		return add1Instruction

	case 0x8:
		switch op.n() {
		case 0x0:
			// 8XY0 - Sets VX to the value of VY
			return mov2Instruction
		case 0x1:
			// 8XY1 - Sets VX to (VX OR VY)
			return orInstruction
		case 0x2:
			// 8XY2 - Sets VX to (VX AND VY)
			return andInstruction
		case 0x3:
			// 8XY3 - Sets VX to (VX XOR VY)
			return xorInstruction
		case 0x4:
			// 8XY4 - Adds VY to VX. VF is 1 on carry.
			return add2Instruction
		case 0x5:
			// 8XY5 - Subtracts VY from VX. VF is 0 on borrow.
			return subInstruction
		case 0x6:
			// 8XY6 - Shifts VX right by one, VF gets the bit shifted out.
			return shrInstruction
		case 0x7:
			// 8XY7 - Sets VX to VY minus VX. VF is 0 on borrow.
			return rsbInstruction
		case 0xE:
			// 8XYE - Shifts VX left by one, VF gets the bit shifted out.
			return shlInstruction
		}

	case 0x9:
		if op.n() == 0x0 {
			// 9XY0 - Skips the next instruction if VX doesn't equal VY
			return skne2Instruction
		}

	case 0xA:
		// ANNN - Sets I to the address NNN
		return mviInstruction

	case 0xB:
		// BNNN - Jumps to the address NNN plus V0
		return jmiInstruction

	case 0xC:
		// CXNN - Sets VX to a random number masked by NN
		return randInstruction

	case 0xD:
		// DXYN - Draws an 8xN sprite from memory at I at (VX, VY)
		return spriteInstruction

	case 0xE:
		switch op.nn() {
		case 0x9E:
			// EX9E - Skips the next instruction if the key in VX is pressed
			return skprInstruction
		case 0xA1:
			// EXA1 - Skips the next instruction if the key in VX isn't pressed
			return skupInstruction
		}

	case 0xF:
		switch op.nn() {
		case 0x07:
			// FX07 - Sets VX to the value of the delay timer
			return gdelayInstruction
		case 0x0A:
			// FX0A - Waits for a key press and stores it in VX
			return keyInstruction
		case 0x15:
			// FX15 - Sets the delay timer to VX
			return sdelayInstruction
		case 0x18:
			// FX18 - Sets the sound timer to VX
			return ssoundInstruction
		case 0x1E:
			// FX1E - Adds VX to I
			return adiInstruction
		case 0x29:
			// FX29 - Points I at the font glyph for the digit in VX
			return fontInstruction
		case 0x33:
			// FX33 - Stores the BCD representation of VX at I, I+1, I+2
			return bcdInstruction
		case 0x55:
			// FX55 - Stores V0 to VX in memory starting at address I
			return strInstruction
		case 0x65:
			// FX65 - Reads memory starting at address I into V0 to VX
			return ldrInstruction
		}
	}

	return unknownInstruction
}

func (vm *VM) skipIf(cond bool) {
	if cond {
		vm.pc += InstructionSize
	}
}

func fixedName(name string) func(opcode) string {
	return func(opcode) string {
		return name
	}
}

func xName(name string) func(opcode) string {
	return func(op opcode) string {
		return fmt.Sprintf("%s v%x", name, op.x())
	}
}

func xyName(name string) func(opcode) string {
	return func(op opcode) string {
		return fmt.Sprintf("%s v%x, v%x", name, op.x(), op.y())
	}
}

func xnnName(name string) func(opcode) string {
	return func(op opcode) string {
		return fmt.Sprintf("%s v%x, %d", name, op.x(), op.nn())
	}
}

func addrName(name string) func(opcode) string {
	return func(op opcode) string {
		return fmt.Sprintf("%s 0x%03x", name, op.nnn())
	}
}

var (
	// 0000	nop
	nopInstruction = instruction{
		Name: fixedName("nop"),
		Execute: func(vm *VM, op opcode) error {
			return nil
		},
	}

	// 00E0	cls	Clear the screen
	clsInstruction = instruction{
		Name: fixedName("cls"),
		Execute: func(vm *VM, op opcode) error {
			vm.gfx = [ScreenWidth * ScreenHeight]bool{}
			vm.drawFlag = true
			return nil
		},
	}

	// 00EE	rts	return from subroutine call
	rtsInstruction = instruction{
		Name: fixedName("rts"),
		Execute: func(vm *VM, op opcode) error {
			pc, err := vm.pop()
			if err != nil {
				return err
			}
			vm.pc = pc
			return nil
		},
	}

	// 1xxx	jmp xxx	jump to address xxx
	jmpInstruction = instruction{
		Name: addrName("jmp"),
		Execute: func(vm *VM, op opcode) error {
			target := op.nnn()
			if target == vm.pc-InstructionSize {
				vm.looping = true
			}
			vm.pc = target
			return nil
		},
	}

	// 2xxx	jsr xxx	jump to subroutine at address xxx
	jsrInstruction = instruction{
		Name: addrName("jsr"),
		Execute: func(vm *VM, op opcode) error {
			if err := vm.push(vm.pc); err != nil {
				return err
			}
			vm.pc = op.nnn()
			return nil
		},
	}

	// 3rxx	skeq vr,xx	skip if register r = constant
	skeq1Instruction = instruction{
		Name: xnnName("skeq"),
		Execute: func(vm *VM, op opcode) error {
			vm.skipIf(vm.registers[op.x()] == op.nn())
			return nil
		},
	}

	// 4rxx	skne vr,xx	skip if register r <> constant
	skne1Instruction = instruction{
		Name: xnnName("skne"),
		Execute: func(vm *VM, op opcode) error {
			vm.skipIf(vm.registers[op.x()] != op.nn())
			return nil
		},
	}

	// 5ry0	skeq vr,vy	skip if register r = register y
	skeq2Instruction = instruction{
		Name: xyName("skeq"),
		Execute: func(vm *VM, op opcode) error {
			vm.skipIf(vm.registers[op.x()] == vm.registers[op.y()])
			return nil
		},
	}

	// 6rxx	mov vr,xx	move constant to register r
	mov1Instruction = instruction{
		Name: xnnName("mov"),
		Execute: func(vm *VM, op opcode) error {
			vm.registers[op.x()] = op.nn()
			return nil
		},
	}

	// 7rxx	add vr,xx	add constant to register r	No carry generated
	add1Instruction = instruction{
		Name: xnnName("add"),
		Execute: func(vm *VM, op opcode) error {
			vm.registers[op.x()] += op.nn()
			return nil
		},
	}

	// 8ry0	mov vr,vy	move register vy into vr
	mov2Instruction = instruction{
		Name: xyName("mov"),
		Execute: func(vm *VM, op opcode) error {
			vm.registers[op.x()] = vm.registers[op.y()]
			return nil
		},
	}

	// 8ry1	or rx,ry	or register vy into register vx
	orInstruction = instruction{
		Name: xyName("or"),
		Execute: func(vm *VM, op opcode) error {
			vm.registers[op.x()] |= vm.registers[op.y()]
			return nil
		},
	}

	// 8ry2	and rx,ry	and register vy into register vx
	andInstruction = instruction{
		Name: xyName("and"),
		Execute: func(vm *VM, op opcode) error {
			vm.registers[op.x()] &= vm.registers[op.y()]
			return nil
		},
	}

	// 8ry3	xor rx,ry	exclusive or register ry into register rx
	xorInstruction = instruction{
		Name: xyName("xor"),
		Execute: func(vm *VM, op opcode) error {
			vm.registers[op.x()] ^= vm.registers[op.y()]
			return nil
		},
	}

	// 8ry4	add vr,vy	add register vy to vr,carry in vf
	add2Instruction = instruction{
		Name: xyName("add"),
		Execute: func(vm *VM, op opcode) error {
			x := vm.registers[op.x()]
			y := vm.registers[op.y()]
			sum := uint16(x) + uint16(y)

			vm.registers[op.x()] = uint8(sum)
			vm.registers[flagRegister] = uint8(sum >> 8)
			return nil
		},
	}

	// 8ry5	sub vr,vy	subtract register vy from vr	vf set to 0 if borrows
	subInstruction = instruction{
		Name: xyName("sub"),
		Execute: func(vm *VM, op opcode) error {
			x := vm.registers[op.x()]
			y := vm.registers[op.y()]

			vm.registers[op.x()] = x - y
			vm.registers[flagRegister] = noBorrow(x, y)
			return nil
		},
	}

	// 8r06	shr vr	shift register vr right, bit 0 goes into register vf
	shrInstruction = instruction{
		Name: xName("shr"),
		Execute: func(vm *VM, op opcode) error {
			x := vm.registers[op.x()]

			vm.registers[op.x()] = x >> 1
			vm.registers[flagRegister] = x & 0x1
			return nil
		},
	}

	// 8ry7	rsb vr,vy	subtract register vr from register vy, result in vr	vf set to 0 if borrows
	rsbInstruction = instruction{
		Name: xyName("rsb"),
		Execute: func(vm *VM, op opcode) error {
			x := vm.registers[op.x()]
			y := vm.registers[op.y()]

			vm.registers[op.x()] = y - x
			vm.registers[flagRegister] = noBorrow(y, x)
			return nil
		},
	}

	// 8r0e	shl vr	shift register vr left, bit 7 goes into register vf
	shlInstruction = instruction{
		Name: xName("shl"),
		Execute: func(vm *VM, op opcode) error {
			x := vm.registers[op.x()]

			vm.registers[op.x()] = x << 1
			vm.registers[flagRegister] = x >> 7
			return nil
		},
	}

	// 9ry0	skne rx,ry	skip if register rx <> register ry
	skne2Instruction = instruction{
		Name: xyName("skne"),
		Execute: func(vm *VM, op opcode) error {
			vm.skipIf(vm.registers[op.x()] != vm.registers[op.y()])
			return nil
		},
	}

	// axxx	mvi xxx	Load index register with constant xxx
	mviInstruction = instruction{
		Name: addrName("mvi"),
		Execute: func(vm *VM, op opcode) error {
			vm.index = op.nnn()
			return nil
		},
	}

	// bxxx	jmi xxx	Jump to address xxx+register v0
	jmiInstruction = instruction{
		Name: addrName("jmi"),
		Execute: func(vm *VM, op opcode) error {
			vm.pc = op.nnn() + uint16(vm.registers[0])
			return nil
		},
	}

	// crxx	rand vr,xx	vr = random byte AND xx
	randInstruction = instruction{
		Name: xnnName("rand"),
		Execute: func(vm *VM, op opcode) error {
			vm.registers[op.x()] = uint8(vm.rnd.IntN(256)) & op.nn()
			return nil
		},
	}

	// drys	sprite rx,ry,s	Draw sprite at screen location rx,ry height s
	// Sprites are stored in memory at the index register, 8 bits wide.
	// All drawing is xor drawing; vf is set to 1 if a pixel was cleared.
	spriteInstruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("sprite v%x, v%x, %d", op.x(), op.y(), op.n())
		},
		Execute: func(vm *VM, op opcode) error {
			height := int(op.n())
			if err := vm.memoryRange(vm.index, height); err != nil {
				return err
			}

			xLocation, yLocation := uint16(vm.registers[op.x()]), uint16(vm.registers[op.y()])

			hasCollision := uint8(0)
			for y := uint16(0); y < uint16(height); y++ {
				pixel := vm.memory[vm.index+y]

				const width = uint16(8)
				for x := uint16(0); x < width; x++ {
					mask := uint8(0x80 >> x)
					if (pixel & mask) == 0 {
						continue
					}

					screenAddr := getScreenAddr(x+xLocation, y+yLocation)
					if vm.gfx[screenAddr] {
						hasCollision = 1
					}

					vm.gfx[screenAddr] = !vm.gfx[screenAddr]
				}
			}

			vm.registers[flagRegister] = hasCollision
			vm.drawFlag = true
			return nil
		},
	}

	// ek9e	skpr k	skip if key (register rk) pressed
	skprInstruction = instruction{
		Name: xName("skpr"),
		Execute: func(vm *VM, op opcode) error {
			vm.skipIf(vm.keypad[vm.registers[op.x()]&0x0F])
			return nil
		},
	}

	// eka1	skup k	skip if key (register rk) not pressed
	skupInstruction = instruction{
		Name: xName("skup"),
		Execute: func(vm *VM, op opcode) error {
			vm.skipIf(!vm.keypad[vm.registers[op.x()]&0x0F])
			return nil
		},
	}

	// fr07	gdelay vr	get delay timer into vr
	gdelayInstruction = instruction{
		Name: xName("gdelay"),
		Execute: func(vm *VM, op opcode) error {
			vm.registers[op.x()] = vm.delayTimer
			return nil
		},
	}

	// fr0a	key vr	wait for keypress, put key in register vr
	keyInstruction = instruction{
		Name: xName("key"),
		Execute: func(vm *VM, op opcode) error {
			for i, pressed := range vm.keypad {
				if pressed {
					vm.registers[op.x()] = uint8(i)
					return nil
				}
			}

			// Nothing pressed: run this instruction again on the next tick.
			vm.pc -= InstructionSize
			return nil
		},
	}

	// fr15	sdelay vr	set the delay timer to vr
	sdelayInstruction = instruction{
		Name: xName("sdelay"),
		Execute: func(vm *VM, op opcode) error {
			vm.delayTimer = vm.registers[op.x()]
			return nil
		},
	}

	// fr18	ssound vr	set the sound timer to vr
	ssoundInstruction = instruction{
		Name: xName("ssound"),
		Execute: func(vm *VM, op opcode) error {
			vm.soundTimer = vm.registers[op.x()]
			return nil
		},
	}

	// fr1e	adi vr	add register vr to the index register
	adiInstruction = instruction{
		Name: xName("adi"),
		Execute: func(vm *VM, op opcode) error {
			vm.index += uint16(vm.registers[op.x()])
			return nil
		},
	}

	// fr29	font vr	point I to the sprite for hexadecimal character in vr	Sprite is 5 bytes high
	fontInstruction = instruction{
		Name: xName("font"),
		Execute: func(vm *VM, op opcode) error {
			digit := uint16(vm.registers[op.x()] & 0x0F)
			vm.index = digit * fontGlyphSize
			return nil
		},
	}

	// fr33	bcd vr	store the bcd representation of register vr at location I,I+1,I+2	Doesn't change I
	bcdInstruction = instruction{
		Name: xName("bcd"),
		Execute: func(vm *VM, op opcode) error {
			if err := vm.memoryRange(vm.index, 3); err != nil {
				return err
			}

			x := vm.registers[op.x()]
			vm.memory[vm.index] = x / 100
			vm.memory[vm.index+1] = (x / 10) % 10
			vm.memory[vm.index+2] = x % 10
			return nil
		},
	}

	// fr55	str v0-vr	store registers v0-vr at location I onwards	Doesn't change I
	strInstruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("str v0-v%x", op.x())
		},
		Execute: func(vm *VM, op opcode) error {
			n := uint16(op.x())
			if err := vm.memoryRange(vm.index, int(n)+1); err != nil {
				return err
			}

			for i := uint16(0); i <= n; i++ {
				vm.memory[vm.index+i] = vm.registers[i]
			}
			return nil
		},
	}

	// fr65	ldr v0-vr	load registers v0-vr from location I onwards	Doesn't change I
	ldrInstruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("ldr v0-v%x", op.x())
		},
		Execute: func(vm *VM, op opcode) error {
			n := uint16(op.x())
			if err := vm.memoryRange(vm.index, int(n)+1); err != nil {
				return err
			}

			for i := uint16(0); i <= n; i++ {
				vm.registers[i] = vm.memory[vm.index+i]
			}
			return nil
		},
	}

	unknownInstruction = instruction{
		Name: func(op opcode) string {
			return fmt.Sprintf("unknown 0x%04X", uint16(op))
		},
		Execute: func(vm *VM, op opcode) error {
			return ErrUnknownOpcode
		},
	}
)

// noBorrow is the VF value of a minuend - subtrahend operation.
func noBorrow(minuend, subtrahend uint8) uint8 {
	if minuend >= subtrahend {
		return 1
	}
	return 0
}

// getScreenAddr maps a pixel coordinate to its framebuffer offset,
// wrapping both axes.
func getScreenAddr(x, y uint16) uint16 {
	x %= ScreenWidth
	y %= ScreenHeight

	screenAddr := ScreenWidth*(y) + x
	return screenAddr
}
