package display

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/haukened/restraint/internal/block/domain"
)

// Console renders the countdown to a terminal, one status per tick.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	inPlace bool
	started bool
}

// NewConsole returns a Console writing to out. When inPlace is set the line is
// redrawn with a carriage return instead of appending a new line per tick.
func NewConsole(out io.Writer, inPlace bool) *Console {
	return &Console{out: out, inPlace: inPlace}
}

// Publish writes one status line.
func (c *Console) Publish(s domain.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	line := Render(s)
	switch {
	case !c.inPlace:
		fmt.Fprintln(c.out, line)
	case s.State == domain.StateIdle:
		if c.started {
			fmt.Fprint(c.out, "\r\033[K")
		}
		fmt.Fprintln(c.out, line)
	default:
		fmt.Fprintf(c.out, "\r\033[K%s", line)
	}
	c.started = true
}

// Render formats a status as a single line without a trailing newline.
func Render(s domain.Status) string {
	switch s.State {
	case domain.StateIdle:
		return "No block active."
	case domain.StateActive, domain.StateRestoring:
		return fmt.Sprintf("%s %s remaining, %s, until %s",
			label(s.State),
			domain.FormatCountdown(s.Remaining),
			sites(s.DomainCount),
			s.Expiry.Local().Format(time.Kitchen))
	default:
		return label(s.State)
	}
}

func label(s domain.State) string {
	switch s {
	case domain.StateActive:
		return "Blocking:"
	case domain.StateRestoring:
		return "Restoring:"
	case domain.StateStaging:
		return "Applying block..."
	default:
		return s.String()
	}
}

func sites(n int) string {
	if n == 1 {
		return "1 site"
	}
	return fmt.Sprintf("%d sites", n)
}
