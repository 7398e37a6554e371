package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "unknown"},
		{"3f2a-9c", "3f2a-9c"},
		{"../../etc/passwd", "etc_passwd"},
		{"..", "unknown"},
		{"simulated rainbow", "simulated_rainbow"},
		{"a  //  b", "a_b"},
		{"  lead", "lead"},
		{"trail!!", "trail"},
		{"wasp-39b.fits", "wasp-39b.fits"},
		{"λ-grid", "grid"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.in), "SanitizeFilename(%q)", tt.in)
	}
}

func TestSanitizeFilenameLength(t *testing.T) {
	got := SanitizeFilename(strings.Repeat("x", 500))
	assert.Len(t, got, maxFilenameLen)
}
