package dashboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHostname(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "example.com", want: "example.com"},
		{in: "www.example.com", want: "example.com"},
		{in: "https://www.example.com/path", want: "example.com"},
		{in: "http://example.com:8080/x", want: "example.com"},
		{in: "m.example.co.uk", want: "m.example.co.uk"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Hostname(tt.in))
		})
	}
}

func TestTopHosts(t *testing.T) {
	counts := map[string]int{"c.com": 2, "a.com": 5, "b.com": 2, "d.com": 1}

	got := topHosts(counts, 3)
	assert.Equal(t, []HostCount{
		{Host: "a.com", Count: 5},
		{Host: "b.com", Count: 2},
		{Host: "c.com", Count: 2},
	}, got)

	assert.Len(t, topHosts(counts, 10), 4)
	assert.Empty(t, topHosts(nil, 10))
}

func TestCountable(t *testing.T) {
	assert.True(t, countable("example.com"))
	assert.False(t, countable(""))
	assert.False(t, countable("None"))
}
