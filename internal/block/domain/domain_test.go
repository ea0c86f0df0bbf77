package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDomainList_Normalization(t *testing.T) {
	raw := []string{
		"\uFEFF# Add one website per line #",
		"",
		"  Example.COM.  ",
		"news.example.org # inline comment",
		"https://user@Video.Example.net:443/watch?v=1",
		"example.com",
		"   ",
		"# another comment",
		"Bücher.example",
	}
	l, err := NewDomainList(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"example.com",
		"news.example.org",
		"video.example.net",
		"xn--bcher-kva.example",
	}, l.Names())
	assert.Equal(t, 4, l.Len())
}

func TestNewDomainList_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"single label", "localhost"},
		{"ip literal", "10.0.0.1"},
		{"public suffix", "co.uk"},
		{"bad character", "exa mple.com"},
		{"leading hyphen", "-bad.example.com"},
		{"empty label", "foo..com"},
		{"wildcard", "*.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDomainList([]string{"ok.example.com", tt.raw})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation), "want ErrValidation, got %v", err)
		})
	}
}

func TestNewDomainList_EmptyIsNotAnError(t *testing.T) {
	l, err := NewDomainList([]string{"# only comments", ""})
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Entries())
}

func TestDomainList_Entries_Materialization(t *testing.T) {
	tests := []struct {
		name string
		raw  []string
		want []string
	}{
		{
			name: "bare domain gains www form",
			raw:  []string{"example.com"},
			want: []string{"example.com", "www.example.com"},
		},
		{
			name: "www domain gains bare form",
			raw:  []string{"www.example.com"},
			want: []string{"www.example.com", "example.com"},
		},
		{
			name: "both forms listed never triple",
			raw:  []string{"example.com", "www.example.com"},
			want: []string{"example.com", "www.example.com"},
		},
		{
			name: "duplicates after normalization collapse",
			raw:  []string{"EXAMPLE.com", "example.com.", "https://example.com/"},
			want: []string{"example.com", "www.example.com"},
		},
		{
			name: "www of public suffix keeps only original",
			raw:  []string{"www.com"},
			want: []string{"www.com"},
		},
		{
			name: "subdomain",
			raw:  []string{"news.example.org", "foo.com"},
			want: []string{"news.example.org", "www.news.example.org", "foo.com", "www.foo.com"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewDomainList(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, l.Entries())
		})
	}
}

func TestDomainList_NamesIsACopy(t *testing.T) {
	l, err := NewDomainList([]string{"example.com"})
	require.NoError(t, err)
	names := l.Names()
	names[0] = "mutated.com"
	assert.Equal(t, []string{"example.com"}, l.Names())
}

func TestState_StringAndParse(t *testing.T) {
	for _, s := range []State{StateIdle, StateStaging, StateActive, StateRestoring} {
		got, err := ParseState(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	assert.Equal(t, "State(42)", State(42).String())
	_, err := ParseState("bogus")
	assert.Error(t, err)
}

func TestStatus_RemainingSeconds(t *testing.T) {
	assert.Equal(t, int64(0), IdleStatus().RemainingSeconds())
	assert.Equal(t, int64(1), Status{Remaining: 10 * time.Millisecond}.RemainingSeconds())
	assert.Equal(t, int64(600), Status{Remaining: 10 * time.Minute}.RemainingSeconds())
	assert.Equal(t, int64(0), Status{Remaining: -time.Second}.RemainingSeconds())
}

func TestBlockSession(t *testing.T) {
	l, err := NewDomainList([]string{"example.com"})
	require.NoError(t, err)
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.FixedZone("EST", -5*3600))

	s, err := NewBlockSession(l, now, 30*time.Minute, "/etc/hosts")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, s.Expiry.Location())
	assert.True(t, s.Expiry.Equal(now.Add(30*time.Minute)))
	assert.False(t, s.Expired(now))
	assert.Equal(t, 30*time.Minute, s.Remaining(now))
	assert.True(t, s.Expired(now.Add(30*time.Minute)))
	assert.Equal(t, time.Duration(0), s.Remaining(now.Add(time.Hour)))

	_, err = NewBlockSession(DomainList{}, now, time.Minute, "")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = NewBlockSession(l, now, 0, "")
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, BlockSession{Domains: l}.Validate(), ErrValidation)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"45", 45 * time.Minute, false},
		{"45m", 45 * time.Minute, false},
		{"1h30m", 90 * time.Minute, false},
		{"1s", time.Second, false},
		{"0", 0, false},
		{"", 0, true},
		{"soon", 0, true},
		{"99999999999999", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrValidation, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestStepsAndFormatting(t *testing.T) {
	assert.Equal(t, 75*time.Minute, StepsDuration(5))
	assert.Equal(t, "Disabled", FormatDuration(0))
	assert.Equal(t, "45 minutes", FormatDuration(45*time.Minute))
	assert.Equal(t, "1 hour, 15 minutes", FormatDuration(75*time.Minute))
	assert.Equal(t, "2 hours, 0 minutes", FormatDuration(2*time.Hour))

	assert.Equal(t, "00:00:00", FormatCountdown(0))
	assert.Equal(t, "00:00:01", FormatCountdown(200*time.Millisecond))
	assert.Equal(t, "01:15:00", FormatCountdown(75*time.Minute))
	assert.Equal(t, "100:00:00", FormatCountdown(100*time.Hour))
	assert.Equal(t, "00:00:00", FormatCountdown(-time.Minute))
}

func TestNormalizeDomain(t *testing.T) {
	name, skip, err := NormalizeDomain("  HTTPS://Example.COM:8443/path ")
	require.NoError(t, err)
	assert.False(t, skip)
	assert.Equal(t, "example.com", name)

	_, skip, err = NormalizeDomain("# comment")
	require.NoError(t, err)
	assert.True(t, skip)

	_, _, err = NormalizeDomain("localhost")
	assert.ErrorIs(t, err, ErrValidation)
}
