package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDurationMinutes(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"30 minutes", 30},
		{"1 minute", 1},
		{"45 min", 45},
		{"2 hours", 120},
		{"1 hour", 60},
		{"3 hr", 180},
		{"1 day", 480},
		{"2 days", 960},
		{"  2 Hours  ", 120},
		{"", 30},
		{"soon", 30},
		{"2.5 hours", 30},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseDurationMinutes(tt.in, 30))
		})
	}
}

func TestFormatMinutes(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0 minutes"},
		{1, "1 minute"},
		{45, "45 minutes"},
		{60, "1 hour"},
		{120, "2 hours"},
		{90, "90 minutes"},
		{480, "1 day"},
		{960, "2 days"},
		{540, "9 hours"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatMinutes(tt.in))
		})
	}
}
