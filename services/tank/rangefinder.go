package tank

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// RangeFinderTimeout bounds one helper invocation.
const RangeFinderTimeout = 3 * time.Second

// HelperRangeFinder shells out to the ultrasonic measurement helper, one
// short-lived process per reading. A circuit breaker stops hammering a
// helper that keeps failing; while the breaker is open each cycle is
// skipped and the last reading retained.
type HelperRangeFinder struct {
	command string
	breaker *gobreaker.CircuitBreaker
}

func NewHelperRangeFinder(command string) *HelperRangeFinder {
	settings := gobreaker.Settings{
		Name:    "range-finder",
		Timeout: 2 * SampleInterval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}

	return &HelperRangeFinder{
		command: command,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (rf *HelperRangeFinder) MeasureDistance(ctx context.Context, triggerPin, echoPin int) (float64, error) {
	result, err := rf.breaker.Execute(func() (interface{}, error) {
		return rf.measure(ctx, triggerPin, echoPin)
	})
	if err != nil {
		return 0, err
	}

	return result.(float64), nil
}

func (rf *HelperRangeFinder) measure(ctx context.Context, triggerPin, echoPin int) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, RangeFinderTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, rf.command,
		strconv.Itoa(triggerPin), strconv.Itoa(echoPin))

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("range finder helper failed: %w", err)
	}

	text := strings.TrimSpace(string(output))
	if text == "" {
		return 0, ErrOutOfRange
	}

	distance, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("range finder produced %q: %w", text, err)
	}

	// The helper reports out-of-range as a negative sentinel.
	if distance < 0 {
		return 0, ErrOutOfRange
	}

	return distance, nil
}
