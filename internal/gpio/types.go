package gpio

// Pin 0 means no pin is assigned; every operation on pin 0 is a silent
// no-op so a partially configured system degrades instead of failing.
const PinUnassigned = 0

// Controller is the hardware abstraction for relay outputs and
// pulse inputs. The real implementation drives the Raspberry Pi
// GPIO header; the mock implementation backs the tests.
type Controller interface {
	OpenRelay(pin int) error
	CloseRelay(pin int) error

	// WatchInput polls the pin and invokes onEdge from a background
	// goroutine once per rising edge.
	WatchInput(pin int, onEdge func()) error

	Close() error
}
