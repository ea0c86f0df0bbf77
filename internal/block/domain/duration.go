package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SliderStep is the granularity of the duration picker.
const SliderStep = 15 * time.Minute

// ParseDuration reads a duration as typed by a user: either a Go duration
// ("45m", "1h30m") or a bare integer number of minutes ("90").
// It does not enforce bounds; the engine validates the result.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty duration", ErrValidation)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > int64(time.Duration(1<<63-1)/time.Minute) {
			return 0, fmt.Errorf("%w: duration %q overflows", ErrValidation, s)
		}
		return time.Duration(n) * time.Minute, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return d, nil
}

// StepsDuration converts a slider position to a duration, one step per SliderStep.
func StepsDuration(steps int) time.Duration {
	return time.Duration(steps) * SliderStep
}

// FormatDuration renders d the way the duration picker labels it,
// e.g. "1 hour, 15 minutes", "2 hours, 0 minutes", "45 minutes".
// Non-positive durations render as "Disabled".
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "Disabled"
	}
	total := int64(d / time.Minute)
	hours, minutes := total/60, total%60
	var b strings.Builder
	switch hours {
	case 0:
	case 1:
		b.WriteString("1 hour, ")
	default:
		fmt.Fprintf(&b, "%d hours, ", hours)
	}
	fmt.Fprintf(&b, "%d minutes", minutes)
	return b.String()
}

// FormatCountdown renders a remaining duration as HH:MM:SS, rounding partial
// seconds up. Hours grow past two digits rather than wrapping.
func FormatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64((d + time.Second - 1) / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
}
