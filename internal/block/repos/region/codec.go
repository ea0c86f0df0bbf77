package region

import (
	"fmt"
	"strings"

	"github.com/haukened/restraint/internal/block/domain"
)

// Marker lines delimiting the managed region. They are part of the on-disk
// format: a newer build must still recognize regions written by an older one,
// so these strings never change.
const (
	StartMarker = "# >>> restraint blocklist >>> DO NOT EDIT, this block is removed when the timer ends"
	EndMarker   = "# <<< restraint blocklist <<<"

	// SinkholeAddress is the address every blocked name is mapped to.
	SinkholeAddress = "0.0.0.0"
)

// Codec encodes domain lists into a marker-delimited hosts file region and
// finds, decodes and removes that region in arbitrary content. It performs no I/O.
type Codec struct {
	start string
	end   string
}

// NewCodec returns a Codec using the standard markers.
func NewCodec() *Codec {
	return &Codec{start: StartMarker, end: EndMarker}
}

// Encode renders the region for l. The output is a pure function of the
// materialized entries, so equal lists always encode byte-identically.
func (c *Codec) Encode(l domain.DomainList) domain.BlockRegion {
	entries := l.Entries()
	var b strings.Builder
	b.Grow(len(c.start) + len(c.end) + 2 + len(entries)*32)
	b.WriteString(c.start)
	b.WriteByte('\n')
	for _, e := range entries {
		b.WriteString(SinkholeAddress)
		b.WriteByte('\t')
		b.WriteString(e)
		b.WriteByte('\n')
	}
	b.WriteString(c.end)
	b.WriteByte('\n')
	return domain.BlockRegion(b.String())
}

// Apply appends r to content, separated by a single newline. Strip removes that
// separator together with the region, which restores content exactly whether or
// not it ended with a newline.
func (c *Codec) Apply(content string, r domain.BlockRegion) string {
	return content + "\n" + string(r)
}

// Contains reports whether content holds any trace of a region, complete or not.
func (c *Codec) Contains(content string) bool {
	found := false
	c.scan(content, func(l line) bool {
		if l.is(c.start) || l.is(c.end) {
			found = true
			return false
		}
		return true
	})
	return found
}

// Strip removes every region from content, each together with the newline that
// separates it from the preceding text. found is false when no region exists.
// An unterminated region, an orphan end marker or a nested start marker yields
// domain.ErrCorruptRegion and content is returned unchanged.
func (c *Codec) Strip(content string) (cleaned string, found bool, err error) {
	spans, err := c.locate(content)
	if err != nil {
		return content, false, err
	}
	if len(spans) == 0 {
		return content, false, nil
	}
	var b strings.Builder
	b.Grow(len(content))
	prev := 0
	for _, sp := range spans {
		b.WriteString(content[prev:sp.from])
		prev = sp.to
	}
	b.WriteString(content[prev:])
	return b.String(), true, nil
}

// Decode returns the host names mapped inside the regions of content, in order.
func (c *Codec) Decode(content string) (hosts []string, found bool, err error) {
	spans, err := c.locate(content)
	if err != nil {
		return nil, false, err
	}
	for _, sp := range spans {
		c.scan(content[sp.from:sp.to], func(l line) bool {
			fields := strings.Fields(l.text)
			if len(fields) >= 2 && fields[0] == SinkholeAddress {
				hosts = append(hosts, fields[1:]...)
			}
			return true
		})
	}
	return hosts, len(spans) > 0, nil
}

// span is a byte range [from, to) of content covering one region.
type span struct {
	from, to int
}

// locate finds the byte spans of all complete regions.
func (c *Codec) locate(content string) ([]span, error) {
	var (
		spans   []span
		open    bool
		from    int
		lastTo  int
		openAt  int
		scanErr error
	)
	c.scan(content, func(l line) bool {
		switch {
		case l.is(c.start):
			if open {
				scanErr = fmt.Errorf("%w: start marker on line %d inside region opened on line %d", domain.ErrCorruptRegion, l.num, openAt)
				return false
			}
			open, openAt = true, l.num
			from = l.pos
			if l.pos > lastTo && content[l.pos-1] == '\n' {
				from = l.pos - 1
			}
		case l.is(c.end):
			if !open {
				scanErr = fmt.Errorf("%w: end marker on line %d without start marker", domain.ErrCorruptRegion, l.num)
				return false
			}
			spans = append(spans, span{from: from, to: l.next})
			lastTo = l.next
			open = false
		}
		return true
	})
	if scanErr != nil {
		return nil, scanErr
	}
	if open {
		return nil, fmt.Errorf("%w: start marker on line %d has no end marker", domain.ErrCorruptRegion, openAt)
	}
	return spans, nil
}

// line is one line of content; pos is its first byte, next the first byte of
// the following line (past the newline, or len(content) at EOF).
type line struct {
	text string
	num  int
	pos  int
	next int
}

// is matches a marker, ignoring trailing whitespace and CR.
func (l line) is(marker string) bool {
	return strings.TrimRight(l.text, " \t\r") == marker
}

// scan calls fn for each line of content until fn returns false.
func (c *Codec) scan(content string, fn func(line) bool) {
	pos, num := 0, 0
	for pos < len(content) {
		num++
		end := strings.IndexByte(content[pos:], '\n')
		var l line
		if end < 0 {
			l = line{text: content[pos:], num: num, pos: pos, next: len(content)}
		} else {
			l = line{text: content[pos : pos+end], num: num, pos: pos, next: pos + end + 1}
		}
		if !fn(l) {
			return
		}
		pos = l.next
	}
}
