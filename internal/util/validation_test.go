package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePrincipalID(t *testing.T) {
	tests := []struct {
		in     string
		want   int64
		wantOK bool
	}{
		{"123", 123, true},
		{" 42 ", 42, true},
		{"0", 0, false},
		{"-100123", 0, false},
		{"abc", 0, false},
		{"", 0, false},
	}

	for _, tc := range tests {
		got, ok := ParsePrincipalID(tc.in)
		assert.Equal(t, tc.wantOK, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}
