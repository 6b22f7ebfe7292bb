package gpio

import (
	"log/slog"
	"sync"
	"time"

	"github.com/stianeikeland/go-rpio/v4"
)

// edgePollInterval is how often watched inputs are sampled. Flow meter
// pulses at full rate arrive faster than this, but the sampler only needs
// the count per second, not individual edge timing.
const edgePollInterval = 10 * time.Millisecond

type HardwareController struct {
	mu      sync.Mutex
	stop    chan struct{}
	watched []int
}

// NewHardwareController memory-maps the GPIO range once for the process
// lifetime.
func NewHardwareController() (*HardwareController, error) {
	if err := rpio.Open(); err != nil {
		return nil, err
	}

	return &HardwareController{
		stop: make(chan struct{}),
	}, nil
}

func (hc *HardwareController) OpenRelay(pin int) error {
	slog.Debug(">>OpenRelay", "pin", pin)
	defer slog.Debug("<<OpenRelay", "pin", pin)

	if pin == PinUnassigned {
		return nil
	}

	p := rpio.Pin(pin)
	p.Output()
	p.High()

	return nil
}

func (hc *HardwareController) CloseRelay(pin int) error {
	slog.Debug(">>CloseRelay", "pin", pin)
	defer slog.Debug("<<CloseRelay", "pin", pin)

	if pin == PinUnassigned {
		return nil
	}

	p := rpio.Pin(pin)
	p.Output()
	p.Low()

	return nil
}

func (hc *HardwareController) WatchInput(pin int, onEdge func()) error {
	if pin == PinUnassigned {
		return nil
	}

	p := rpio.Pin(pin)
	p.Input()
	p.PullDown()

	hc.mu.Lock()
	hc.watched = append(hc.watched, pin)
	hc.mu.Unlock()

	go hc.pollEdges(p, onEdge)

	return nil
}

func (hc *HardwareController) pollEdges(pin rpio.Pin, onEdge func()) {
	last := pin.Read()
	ticker := time.NewTicker(edgePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-hc.stop:
			return

		case <-ticker.C:
			state := pin.Read()
			if state == rpio.High && last == rpio.Low {
				onEdge()
			}
			last = state
		}
	}
}

func (hc *HardwareController) Close() error {
	close(hc.stop)
	return rpio.Close()
}
