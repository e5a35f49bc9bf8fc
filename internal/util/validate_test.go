package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeUsername(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"lowercase", "frank", "FRANK", true},
		{"mixed case with digits", "Frank99", "FRANK99", true},
		{"surrounding whitespace trimmed", "  frank  ", "FRANK", true},
		{"empty", "", "", false},
		{"whitespace only", "   ", "", false},
		{"interior space", "frank smith", "", false},
		{"punctuation", "frank!", "", false},
		{"unicode letters rejected", "fränk", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeUsername(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"ten digits", "4045551234", "+14045551234", true},
		{"eleven digits leading one", "14045551234", "+14045551234", true},
		{"formatted national", "(404) 555-1234", "+14045551234", true},
		{"e164 passthrough", "+14045551234", "+14045551234", true},
		{"dots and spaces", "404.555.1234", "+14045551234", true},
		{"too short", "555123", "", false},
		{"eleven digits wrong country code", "24045551234", "", false},
		{"twelve digits", "441234567890", "", false},
		{"empty", "", "", false},
		{"letters only", "call me", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizePhone(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
