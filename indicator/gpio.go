package indicator

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// GPIO implements Indicator using discrete LEDs on GPIO character device lines.
type GPIO struct {
	mu     sync.Mutex
	green  *gpiocdev.Line
	yellow *gpiocdev.Line
	red    *gpiocdev.Line
}

// NewGPIO requests the configured lines on chip as outputs, initially off.
func NewGPIO(chip string, green, yellow, red *int) (*GPIO, error) {
	g := &GPIO{}
	var err error
	if g.green, err = requestLine(chip, green); err != nil {
		g.Release()
		return nil, err
	}
	if g.yellow, err = requestLine(chip, yellow); err != nil {
		g.Release()
		return nil, err
	}
	if g.red, err = requestLine(chip, red); err != nil {
		g.Release()
		return nil, err
	}
	return g, nil
}

func requestLine(chip string, offset *int) (*gpiocdev.Line, error) {
	if offset == nil {
		return nil, nil
	}
	l, err := gpiocdev.RequestLine(chip, *offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request %s line %d: %w", chip, *offset, err)
	}
	return l, nil
}

// Idle implements Indicator.Idle.
func (g *GPIO) Idle() {
	g.show(false, false, false)
}

// Connected implements Indicator.Connected.
func (g *GPIO) Connected() {}

// Read implements Indicator.Read.
func (g *GPIO) Read() {
	g.show(true, false, false)
}

// Failed implements Indicator.Failed.
func (g *GPIO) Failed() {
	g.show(false, false, true)
}

// ConnectionLost implements Indicator.ConnectionLost.
func (g *GPIO) ConnectionLost() {
	g.show(false, true, true)
}

// Shutdown implements Indicator.Shutdown.
func (g *GPIO) Shutdown() {
	g.show(false, false, false)
}

// Release implements Indicator.Release.
func (g *GPIO) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var lastErr error
	for _, l := range []*gpiocdev.Line{g.green, g.yellow, g.red} {
		if l == nil {
			continue
		}
		l.SetValue(0)
		if err := l.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (g *GPIO) show(green, yellow, red bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set(g.green, green)
	set(g.yellow, yellow)
	set(g.red, red)
}

func set(l *gpiocdev.Line, on bool) {
	if l == nil {
		return
	}
	v := 0
	if on {
		v = 1
	}
	l.SetValue(v)
}
