package power

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/KyleBrandon/irrigation-server/internal/bus"
	"github.com/KyleBrandon/irrigation-server/utils"
)

type mockZoneStopper struct {
	stopAllCalls int
}

func (m *mockZoneStopper) StopAll() {
	m.stopAllCalls++
}

func newTestScheduler() (*Scheduler, *mockZoneStopper, *bus.Bus, *time.Time) {
	events := bus.New()
	zones := &mockZoneStopper{}

	clock := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	s := New(events, nil)
	s.now = func() time.Time { return clock }
	s.SetZoneController(zones)

	return s, zones, events, &clock
}

func TestSetPowerOffStopsAllZones(t *testing.T) {
	s, zones, events, _ := newTestScheduler()

	var changes []bus.PowerChanged
	events.Subscribe(bus.EventPowerChanged, func(event any) {
		changes = append(changes, event.(bus.PowerChanged))
	})

	s.SetPower(false)

	if s.IsPowerOn() {
		t.Error("expected power to be off")
	}

	if zones.stopAllCalls != 1 {
		t.Errorf("expected StopAll once, got %d", zones.stopAllCalls)
	}

	if len(changes) != 1 || changes[0].On {
		t.Errorf("expected one power-off change event, got %v", changes)
	}

	// repeating the same state publishes nothing new
	s.SetPower(false)
	if len(changes) != 1 {
		t.Errorf("expected no event for an unchanged state, got %d", len(changes))
	}
}

func TestSetPowerOnClearsPause(t *testing.T) {
	s, _, _, clock := newTestScheduler()

	until := clock.Add(time.Hour).Unix()
	if err := s.SetPause(until); err != nil {
		t.Fatalf("failed to set the pause: %v", err)
	}

	if on, pauseUntil := s.State(); on || pauseUntil != until {
		t.Errorf("expected an armed pause with power off, got on=%v until=%d", on, pauseUntil)
	}

	s.SetPower(true)

	if on, pauseUntil := s.State(); !on || pauseUntil != 0 {
		t.Errorf("expected power on with the pause cleared, got on=%v until=%d", on, pauseUntil)
	}
}

func TestSetPauseRejectsPastTimestamp(t *testing.T) {
	s, _, _, clock := newTestScheduler()

	if err := s.SetPause(clock.Add(-time.Minute).Unix()); err != ErrInvalidPause {
		t.Errorf("expected ErrInvalidPause, got %v", err)
	}

	if !s.IsPowerOn() {
		t.Error("expected the rejected pause to leave power untouched")
	}
}

func TestSetPauseWhilePoweredOff(t *testing.T) {
	s, zones, _, clock := newTestScheduler()

	s.SetPower(false)
	stopCalls := zones.stopAllCalls

	// the valves are already closed; arming a pause is a state write only
	until := clock.Add(time.Hour).Unix()
	if err := s.SetPause(until); err != nil {
		t.Fatalf("failed to set the pause: %v", err)
	}

	if zones.stopAllCalls != stopCalls {
		t.Errorf("expected no extra StopAll, got %d", zones.stopAllCalls-stopCalls)
	}

	if on, pauseUntil := s.State(); on || pauseUntil != until {
		t.Errorf("expected power off with the pause armed, got on=%v until=%d", on, pauseUntil)
	}
}

func TestPauseExpiryRestoresPowerOnce(t *testing.T) {
	s, _, events, clock := newTestScheduler()

	var changes []bus.PowerChanged
	events.Subscribe(bus.EventPowerChanged, func(event any) {
		changes = append(changes, event.(bus.PowerChanged))
	})

	until := clock.Add(30 * time.Minute).Unix()
	if err := s.SetPause(until); err != nil {
		t.Fatalf("failed to set the pause: %v", err)
	}

	// before the deadline nothing happens
	s.checkPause(clock.Add(29 * time.Minute))
	if s.IsPowerOn() {
		t.Fatal("expected power to stay off before the deadline")
	}

	s.checkPause(clock.Add(30 * time.Minute))
	if !s.IsPowerOn() {
		t.Fatal("expected power restored at the deadline")
	}

	// the cleared pause makes later checks no-ops
	s.checkPause(clock.Add(31 * time.Minute))
	s.checkPause(clock.Add(32 * time.Minute))

	powerOns := 0
	for _, change := range changes {
		if change.On {
			powerOns++
		}
	}
	if powerOns != 1 {
		t.Errorf("expected power restored exactly once, got %d", powerOns)
	}
}

func TestClearPause(t *testing.T) {
	s, _, _, clock := newTestScheduler()

	if err := s.SetPause(clock.Add(time.Hour).Unix()); err != nil {
		t.Fatalf("failed to set the pause: %v", err)
	}

	// a zero timestamp disarms the pause without touching power
	if err := s.SetPause(0); err != nil {
		t.Fatalf("failed to clear the pause: %v", err)
	}

	if on, pauseUntil := s.State(); on || pauseUntil != 0 {
		t.Errorf("expected power off with no pause, got on=%v until=%d", on, pauseUntil)
	}
}

type mockSystemSink struct {
	submitted int
}

func (m *mockSystemSink) SubmitSystem() {
	m.submitted++
}

func servePowerRequest(t *testing.T, handler *Handler, method string, url string, body *bytes.Buffer) *httptest.ResponseRecorder {
	t.Helper()

	if body == nil {
		body = bytes.NewBuffer(nil)
	}

	return utils.TestRequest(t, method, url, body, func(writer http.ResponseWriter, req *http.Request) {
		mux := http.NewServeMux()
		handler.RegisterRoutes(mux)
		mux.ServeHTTP(writer, req)
	})
}

func TestHandlerPowerGet(t *testing.T) {
	s, _, _, _ := newTestScheduler()
	handler := NewHandler(s, &mockSystemSink{})

	rr := servePowerRequest(t, handler, "GET", "/v1/power", nil)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status code %d, got %d", http.StatusOK, rr.Code)
	}

	var response PowerResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse the response: %v", err)
	}

	if !response.PowerOn || response.PauseUntil != 0 {
		t.Errorf("unexpected power state: %+v", response)
	}
}

func TestHandlerPowerPut(t *testing.T) {
	t.Run("power on goes through the debouncer", func(t *testing.T) {
		s, _, _, _ := newTestScheduler()
		s.SetPower(false)
		sink := &mockSystemSink{}
		handler := NewHandler(s, sink)

		rr := servePowerRequest(t, handler, "PUT", "/v1/power", bytes.NewBufferString(`{"on": true}`))

		if rr.Code != http.StatusAccepted {
			t.Errorf("expected status code %d, got %d", http.StatusAccepted, rr.Code)
		}

		if sink.submitted != 1 {
			t.Errorf("expected the request in the debounce window, got %d", sink.submitted)
		}

		// not applied until the window resolves
		if s.IsPowerOn() {
			t.Error("expected power to still be off")
		}
	})

	t.Run("power off executes immediately", func(t *testing.T) {
		s, zones, _, _ := newTestScheduler()
		sink := &mockSystemSink{}
		handler := NewHandler(s, sink)

		rr := servePowerRequest(t, handler, "PUT", "/v1/power", bytes.NewBufferString(`{"on": false}`))

		if rr.Code != http.StatusOK {
			t.Errorf("expected status code %d, got %d", http.StatusOK, rr.Code)
		}

		if s.IsPowerOn() {
			t.Error("expected power off")
		}

		if zones.stopAllCalls != 1 {
			t.Errorf("expected StopAll once, got %d", zones.stopAllCalls)
		}

		if sink.submitted != 0 {
			t.Error("expected the power-off to bypass the debouncer")
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		s, _, _, _ := newTestScheduler()
		handler := NewHandler(s, &mockSystemSink{})

		rr := servePowerRequest(t, handler, "PUT", "/v1/power", bytes.NewBufferString(`{"on": `))

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status code %d, got %d", http.StatusBadRequest, rr.Code)
		}
	})
}

func TestHandlerPausePut(t *testing.T) {
	t.Run("valid pause", func(t *testing.T) {
		s, _, _, clock := newTestScheduler()
		handler := NewHandler(s, &mockSystemSink{})

		until := clock.Add(time.Hour).Unix()
		body := bytes.NewBufferString(fmt.Sprintf(`{"until": %d}`, until))
		rr := servePowerRequest(t, handler, "PUT", "/v1/pause", body)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status code %d, got %d", http.StatusOK, rr.Code)
		}

		var response PowerResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
			t.Fatalf("failed to parse the response: %v", err)
		}

		if response.PowerOn || response.PauseUntil != until {
			t.Errorf("unexpected power state: %+v", response)
		}
	})

	t.Run("past timestamp", func(t *testing.T) {
		s, _, _, clock := newTestScheduler()
		handler := NewHandler(s, &mockSystemSink{})

		body := bytes.NewBufferString(fmt.Sprintf(`{"until": %d}`, clock.Add(-time.Minute).Unix()))
		rr := servePowerRequest(t, handler, "PUT", "/v1/pause", body)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status code %d, got %d", http.StatusBadRequest, rr.Code)
		}
	})
}
