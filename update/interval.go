// Package update defines the heartbeat cadences of the app host.
package update

import (
	"fmt"
	"strings"
	"time"
)

// Interval defines how often the host reports liveness (prime numbers for optimal distribution).
type Interval int

const (
	Fast   Interval = 5  // 5s - local debugging
	Medium Interval = 23 // 23s - bench setups
	Slow   Interval = 59 // 59s - default on the board
)

// Seconds returns interval in seconds. Panics on invalid value.
func (i Interval) Seconds() int {
	switch i {
	case Fast:
		return 5
	case Medium:
		return 23
	case Slow:
		return 59
	default:
		panic(fmt.Sprintf("invalid update.Interval: %d (must be Fast/Medium/Slow)", i))
	}
}

// Duration returns the interval as a time.Duration.
func (i Interval) Duration() time.Duration {
	return time.Duration(i.Seconds()) * time.Second
}

// Valid reports whether i is one of Fast, Medium or Slow.
func (i Interval) Valid() bool {
	return i == Fast || i == Medium || i == Slow
}

// String returns string representation.
func (i Interval) String() string {
	switch i {
	case Fast:
		return "Fast(5s)"
	case Medium:
		return "Medium(23s)"
	case Slow:
		return "Slow(59s)"
	default:
		return fmt.Sprintf("Invalid(%d)", i)
	}
}

// Parse maps "fast", "medium" or "slow" (case-insensitive) to an Interval.
func Parse(s string) (Interval, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fast":
		return Fast, nil
	case "medium":
		return Medium, nil
	case "slow":
		return Slow, nil
	default:
		return 0, fmt.Errorf("unknown heartbeat interval %q (want fast, medium or slow)", s)
	}
}

// UnmarshalText lets Interval be read from YAML and environment values.
func (i *Interval) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// MarshalText is the inverse of UnmarshalText.
func (i Interval) MarshalText() ([]byte, error) {
	switch i {
	case Fast:
		return []byte("fast"), nil
	case Medium:
		return []byte("medium"), nil
	case Slow:
		return []byte("slow"), nil
	default:
		return nil, fmt.Errorf("invalid update.Interval: %d", i)
	}
}
