package domain

import (
	"fmt"
	"net"
	"strings"

	"github.com/haukened/restraint/internal/block/common/utils"
)

const wwwPrefix = "www."

// DomainList is an ordered, de-duplicated set of normalized domains to block.
//
// Normalization: surrounding whitespace and a leading BOM are removed, blank and
// '#' comment lines are skipped, inline comments are dropped, URLs are reduced to
// their host, names are lowercased, stripped of trailing dots and converted to
// their IDNA ASCII form.
type DomainList struct {
	names []string
}

// NewDomainList normalizes raw entries as a list editor would hand them over.
// Any entry that is not a usable host name fails the whole list with ErrValidation.
func NewDomainList(raw []string) (DomainList, error) {
	seen := make(map[string]struct{}, len(raw))
	names := make([]string, 0, len(raw))
	for i, entry := range raw {
		name, skip, err := normalizeEntry(entry)
		if err != nil {
			return DomainList{}, fmt.Errorf("%w: entry %d %q: %v", ErrValidation, i+1, strings.TrimSpace(entry), err)
		}
		if skip {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return DomainList{names: names}, nil
}

// Names returns the normalized domains in first-seen order.
func (l DomainList) Names() []string {
	out := make([]string, len(l.names))
	copy(out, l.names)
	return out
}

// Len returns the number of normalized domains.
func (l DomainList) Len() int { return len(l.names) }

// Entries returns the host names materialized into the block region.
//
// Each bare domain also yields its "www." form; a "www." domain also yields its
// bare form, unless that bare form is a public suffix. Entries are unique and
// ordered by first appearance, so example.com and www.example.com in the same
// list still produce exactly two entries.
func (l DomainList) Entries() []string {
	seen := make(map[string]struct{}, 2*len(l.names))
	out := make([]string, 0, 2*len(l.names))
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	for _, name := range l.names {
		add(name)
		if bare, ok := strings.CutPrefix(name, wwwPrefix); ok {
			if validHostName(bare) == nil && !utils.IsPublicSuffix(bare) {
				add(bare)
			}
			continue
		}
		add(wwwPrefix + name)
	}
	return out
}

// NormalizeDomain normalizes a single list entry the way NewDomainList does.
// skip is true for blank and comment lines.
func NormalizeDomain(raw string) (name string, skip bool, err error) {
	name, skip, err = normalizeEntry(raw)
	if err != nil {
		return "", false, fmt.Errorf("%w: %q: %v", ErrValidation, strings.TrimSpace(raw), err)
	}
	return name, skip, nil
}

// normalizeEntry reduces one raw list line to a canonical host name.
// skip is true for blank and comment lines.
func normalizeEntry(raw string) (name string, skip bool, err error) {
	s := strings.TrimPrefix(raw, "\uFEFF")
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "#") {
		return "", true, nil
	}
	if idx := strings.IndexByte(s, '#'); idx >= 0 {
		s = strings.TrimSpace(s[:idx])
	}
	s = hostFromURL(s)
	name = utils.ASCIIName(s)
	if err := validHostName(name); err != nil {
		return "", false, err
	}
	if utils.IsPublicSuffix(name) {
		return "", false, fmt.Errorf("%q is a public suffix", name)
	}
	return name, false, nil
}

// hostFromURL extracts the host from inputs like "https://user@foo.com:443/path".
// Plain host names pass through unchanged.
func hostFromURL(s string) string {
	if _, rest, ok := strings.Cut(s, "://"); ok {
		s = rest
	}
	if idx := strings.IndexAny(s, "/?"); idx >= 0 {
		s = s[:idx]
	}
	if idx := strings.LastIndexByte(s, '@'); idx >= 0 {
		s = s[idx+1:]
	}
	if host, port, err := net.SplitHostPort(s); err == nil && port != "" {
		s = host
	}
	return s
}

// validHostName enforces the shape of a name a hosts file can usefully map:
//   - at most 253 characters and at least two labels
//   - labels of 1..63 characters from [a-z0-9-_], not starting or ending with '-'
//   - not an IP literal
func validHostName(name string) error {
	if name == "" {
		return fmt.Errorf("empty host name")
	}
	if len(name) > 253 {
		return fmt.Errorf("host name longer than 253 characters")
	}
	if net.ParseIP(name) != nil {
		return fmt.Errorf("IP addresses cannot be blocked via the hosts file")
	}
	labels := strings.Split(name, ".")
	if len(labels) < 2 {
		return fmt.Errorf("host name needs at least two labels")
	}
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 {
			return fmt.Errorf("label %q must be 1 to 63 characters", label)
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return fmt.Errorf("label %q must not start or end with '-'", label)
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' || c == '_' {
				continue
			}
			return fmt.Errorf("label %q contains invalid character %q", label, c)
		}
	}
	return nil
}
