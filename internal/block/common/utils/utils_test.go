package utils

import "testing"

func TestCanonicalDNSName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Example.COM", "example.com"},
		{"  example.com  ", "example.com"},
		{"example.com.", "example.com"},
		{"example.com...", "example.com"},
		{"", ""},
		{"\tWWW.Example.Org.\n", "www.example.org"},
	}
	for _, tt := range tests {
		if got := CanonicalDNSName(tt.in); got != tt.want {
			t.Errorf("CanonicalDNSName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestASCIIName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"example.com", "example.com"},
		{"Bücher.example", "xn--bcher-kva.example"},
		{"ПРИМЕР.рф", "xn--e1afmkfd.xn--p1ai"},
		{"EXAMPLE.com.", "example.com"},
	}
	for _, tt := range tests {
		if got := ASCIIName(tt.in); got != tt.want {
			t.Errorf("ASCIIName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsPublicSuffix(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"com", true},
		{"co.uk", true},
		{"example.com", false},
		{"www.example.co.uk", false},
		{"github.io", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsPublicSuffix(tt.in); got != tt.want {
			t.Errorf("IsPublicSuffix(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
