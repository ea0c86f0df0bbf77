package utils

import (
	"strings"

	"golang.org/x/net/idna"
)

// CanonicalDNSName returns a DNS name in canonical form:
// - Trimmed of surrounding whitespace
// - Lowercased
// - No trailing dot, since hosts file entries never carry one
func CanonicalDNSName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	for strings.HasSuffix(name, ".") {
		name = strings.TrimSuffix(name, ".")
	}
	return name
}

// ASCIIName canonicalizes name and converts internationalized labels to their
// punycode form, which is what the resolver compares hosts entries against.
// Names that fail IDNA conversion are returned canonicalized but unconverted.
func ASCIIName(name string) string {
	name = CanonicalDNSName(name)
	if isASCII(name) {
		return name
	}
	ascii, err := idna.Lookup.ToASCII(name)
	if err != nil {
		return name
	}
	return ascii
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
