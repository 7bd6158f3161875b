package runner

import (
	"fmt"
	"time"
)

const (
	DefaultTicksPerFrame = 10
	DefaultFrameRate     = 60

	maxTicksPerFrame = 1000
)

// Config controls the pacing of the machine. Timers are decremented once per
// frame, instructions are executed TicksPerFrame times per frame.
type Config struct {
	TicksPerFrame int
	FrameRate     int
}

func DefaultConfig() Config {
	return Config{
		TicksPerFrame: DefaultTicksPerFrame,
		FrameRate:     DefaultFrameRate,
	}
}

func (c Config) Validate() error {
	if c.TicksPerFrame <= 0 || c.TicksPerFrame > maxTicksPerFrame {
		return fmt.Errorf("ticks per frame must be in [1, %d], got %d", maxTicksPerFrame, c.TicksPerFrame)
	}

	if c.FrameRate <= 0 {
		return fmt.Errorf("frame rate must be positive, got %d", c.FrameRate)
	}

	return nil
}

func (c Config) FrameDuration() time.Duration {
	return time.Second / time.Duration(c.FrameRate)
}
