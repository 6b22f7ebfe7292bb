package gpio

import (
	"sync"
)

// MockController records relay state in memory and lets tests fire input
// edges by hand.
type MockController struct {
	mu       sync.Mutex
	relays   map[int]bool
	onEdge   map[int]func()
	OpenErr  error
	CloseErr error
}

func NewMockController() *MockController {
	return &MockController{
		relays: make(map[int]bool),
		onEdge: make(map[int]func()),
	}
}

func (mc *MockController) OpenRelay(pin int) error {
	if mc.OpenErr != nil {
		return mc.OpenErr
	}

	if pin == PinUnassigned {
		return nil
	}

	mc.mu.Lock()
	mc.relays[pin] = true
	mc.mu.Unlock()

	return nil
}

func (mc *MockController) CloseRelay(pin int) error {
	if mc.CloseErr != nil {
		return mc.CloseErr
	}

	if pin == PinUnassigned {
		return nil
	}

	mc.mu.Lock()
	mc.relays[pin] = false
	mc.mu.Unlock()

	return nil
}

func (mc *MockController) WatchInput(pin int, onEdge func()) error {
	mc.mu.Lock()
	mc.onEdge[pin] = onEdge
	mc.mu.Unlock()

	return nil
}

func (mc *MockController) Close() error {
	return nil
}

// IsRelayOpen reports the recorded state of a relay pin.
func (mc *MockController) IsRelayOpen(pin int) bool {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	return mc.relays[pin]
}

// FireEdge simulates pulses on a watched input pin.
func (mc *MockController) FireEdge(pin int, count int) {
	mc.mu.Lock()
	onEdge := mc.onEdge[pin]
	mc.mu.Unlock()

	if onEdge == nil {
		return
	}

	for i := 0; i < count; i++ {
		onEdge()
	}
}
