package utils

import "golang.org/x/net/publicsuffix"

// IsPublicSuffix reports whether name is itself an ICANN public suffix such as
// "com" or "co.uk". Blocking one of those would take out every site under it.
// Privately managed suffixes (e.g. "github.io") are not reported.
func IsPublicSuffix(name string) bool {
	name = CanonicalDNSName(name)
	if name == "" {
		return false
	}
	suffix, icann := publicsuffix.PublicSuffix(name)
	return icann && suffix == name
}
