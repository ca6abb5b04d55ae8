package indicator

import (
	"time"
)

// Indicator is the interface for status indicator implementations (LEDs, neopixels).
type Indicator interface {
	// Idle sets the indicator to idle/ready state.
	Idle()

	// Connected switches the idle state to normal once the uplink is up.
	Connected()

	// Read signals a card that was read and delivered.
	Read()

	// Failed signals a card that could not be delivered.
	Failed()

	// ConnectionLost sets the indicator to connection lost state.
	ConnectionLost()

	// Shutdown sets the indicator to shutdown state.
	Shutdown()

	// Release releases any hardware resources.
	Release() error
}

// Config holds configuration for indicator implementations.
type Config struct {
	// GPIO character device and LED line offsets (nil = not configured)
	Chip       string `yaml:"chip"`
	GreenLine  *int   `yaml:"green_line"`
	YellowLine *int   `yaml:"yellow_line"`
	RedLine    *int   `yaml:"red_line"`

	// Neopixel pipe path (empty = not configured)
	NeopixelPipe string `yaml:"neopixel_pipe"`

	// How long Read and Failed stay visible before returning to idle.
	FlashMillis int `yaml:"flash_ms"`
}

// FlashDuration returns the configured flash time, 2s by default.
func (c Config) FlashDuration() time.Duration {
	if c.FlashMillis <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.FlashMillis) * time.Millisecond
}

// New creates an Indicator based on the provided configuration.
// Returns a Multi indicator if both GPIO and Neopixel are configured.
func New(cfg Config) (Indicator, error) {
	var indicators []Indicator

	if cfg.GreenLine != nil || cfg.YellowLine != nil || cfg.RedLine != nil {
		chip := cfg.Chip
		if chip == "" {
			chip = "gpiochip0"
		}
		gpio, err := NewGPIO(chip, cfg.GreenLine, cfg.YellowLine, cfg.RedLine)
		if err != nil {
			return nil, err
		}
		indicators = append(indicators, gpio)
	}

	if cfg.NeopixelPipe != "" {
		neo, err := NewNeopixel(cfg.NeopixelPipe)
		if err != nil {
			return nil, err
		}
		indicators = append(indicators, neo)
	}

	if len(indicators) == 0 {
		return &Noop{}, nil
	}
	if len(indicators) == 1 {
		return indicators[0], nil
	}
	return &Multi{indicators: indicators}, nil
}
