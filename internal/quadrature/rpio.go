package quadrature

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
)

// maxBCMPin is the highest BCM GPIO number on the BCM283x family.
const maxBCMPin = 53

// The GPIO register mapping is process-wide; every open pin pair holds a
// reference and the last Close unmaps it.
var (
	rpioMu   sync.Mutex
	rpioRefs int
)

func acquireRPIO() error {
	rpioMu.Lock()
	defer rpioMu.Unlock()
	if rpioRefs == 0 {
		if err := rpio.Open(); err != nil {
			return fmt.Errorf("mapping gpio registers: %w", err)
		}
	}
	rpioRefs++
	return nil
}

func releaseRPIO() error {
	rpioMu.Lock()
	defer rpioMu.Unlock()
	if rpioRefs == 0 {
		return nil
	}
	rpioRefs--
	if rpioRefs == 0 {
		return rpio.Close()
	}
	return nil
}

// RPIOPins reads an encoder wired to two Raspberry Pi GPIO inputs.
// Pin numbers are BCM numbers. Both inputs get the internal pull-up,
// matching encoders that switch to ground.
type RPIOPins struct {
	a, b      rpio.Pin
	closeOnce sync.Once
}

// ValidatePins checks a BCM pin pair.
func ValidatePins(pinA, pinB int) error {
	if pinA < 0 || pinA > maxBCMPin || pinB < 0 || pinB > maxBCMPin {
		return fmt.Errorf("%w: pins %d/%d outside 0-%d", ErrInvalidPins, pinA, pinB, maxBCMPin)
	}
	if pinA == pinB {
		return fmt.Errorf("%w: pin_a and pin_b are both %d", ErrInvalidPins, pinA)
	}
	return nil
}

// OpenRPIO maps the GPIO registers and configures both pins as inputs.
func OpenRPIO(pinA, pinB int) (*RPIOPins, error) {
	if err := ValidatePins(pinA, pinB); err != nil {
		return nil, err
	}
	if err := acquireRPIO(); err != nil {
		return nil, err
	}

	p := &RPIOPins{a: rpio.Pin(pinA), b: rpio.Pin(pinB)}
	for _, pin := range []rpio.Pin{p.a, p.b} {
		pin.Input()
		pin.PullUp()
	}
	return p, nil
}

// Read samples both channels.
func (p *RPIOPins) Read() (a, b bool, err error) {
	return p.a.Read() == rpio.High, p.b.Read() == rpio.High, nil
}

// Close releases this pair's hold on the register mapping.
func (p *RPIOPins) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = releaseRPIO()
	})
	return err
}
