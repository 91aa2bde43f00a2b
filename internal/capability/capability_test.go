package capability

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dayplan/backend/internal/domain"
)

var hexID = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestNewID_UniqueAndRoundTrips(t *testing.T) {
	const n = 100000
	seen := make(map[domain.CapabilityID]struct{}, n)

	for i := 0; i < n; i++ {
		id, err := NewID()
		require.NoError(t, err)
		if !hexID.MatchString(string(id)) {
			t.Fatalf("id %q is not 32 lowercase hex chars", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q after %d draws", id, i)
		}
		seen[id] = struct{}{}

		parsed, err := ParseFromInput(string(id))
		require.NoError(t, err)
		if parsed != id {
			t.Fatalf("ParseFromInput(%q) = %q", id, parsed)
		}
	}
}

func TestParseFromInput(t *testing.T) {
	const id = "3f2a9c0d4b1e4c7a9e8f00112233aabb"

	tests := []struct {
		name string
		in   string
	}{
		{name: "bare token", in: id},
		{name: "surrounding whitespace", in: "  " + id + "\n"},
		{name: "full url", in: "https://plan.example.com/calendars/" + id},
		{name: "url with query", in: "https://plan.example.com/calendars/" + id + "?date=2026-01-01"},
		{name: "url with fragment", in: "http://localhost:8080/calendars/" + id + "#today"},
		{name: "trailing slash", in: "https://plan.example.com/calendars/" + id + "/"},
		{name: "ics suffix", in: "webcal://plan.example.com/calendars/" + id + ".ics"},
		{name: "path only", in: "/calendars/" + id},
		{name: "relative path", in: "calendars/" + id},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFromInput(tt.in)
			require.NoError(t, err)
			assert.Equal(t, domain.CapabilityID(id), got)
		})
	}
}

func TestParseFromInput_AcceptsLegacyShortIDs(t *testing.T) {
	got, err := ParseFromInput("https://old.example.com/calendars/k3j9x0a1b2c3d4e5")
	require.NoError(t, err)
	assert.Equal(t, domain.CapabilityID("k3j9x0a1b2c3d4e5"), got)
}

func TestParseFromInput_Rejects(t *testing.T) {
	tests := map[string]string{
		"empty":        "",
		"blank":        "   ",
		"no id":        "https://plan.example.com/calendars/",
		"bad chars":    "abc$def",
		"only slashes": "///",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFromInput(in)
			assert.Error(t, err)
		})
	}

	_, err := ParseFromInput("")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestURL(t *testing.T) {
	assert.Equal(t,
		"https://plan.example.com/calendars/abc",
		URL("https://plan.example.com/", "abc"),
	)
	assert.Equal(t, "/calendars/abc", URL("", "abc"))
}
