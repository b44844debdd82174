package validation_test

import (
	"testing"

	"github.com/marden/bookpool/internal/api/validation"
	"github.com/stretchr/testify/assert"
)

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		email string
		valid bool
	}{
		{"user@example.com", true},
		{"first.last+tag@sub.example.co", true},
		{"no-at-sign", false},
		{"@example.com", false},
		{"user@", false},
		{"user@example", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.valid, validation.IsValidEmail(tt.email))
		})
	}
}

func TestIsValidSlug(t *testing.T) {
	tests := []struct {
		slug  string
		valid bool
	}{
		{"acme", true},
		{"acme-corp", true},
		{"a1-b2-c3", true},
		{"Acme", false},
		{"-leading", false},
		{"trailing-", false},
		{"double--hyphen", false},
		{"", false},
		{"has space", false},
	}

	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			assert.Equal(t, tt.valid, validation.IsValidSlug(tt.slug))
		})
	}
}

func TestIsValidUUID(t *testing.T) {
	assert.True(t, validation.IsValidUUID("a3bb189e-8bf9-3888-9912-ace4e6543002"))
	assert.False(t, validation.IsValidUUID("not-a-uuid"))
	assert.False(t, validation.IsValidUUID(""))
}

func TestIsValidPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		valid    bool
	}{
		{"valid", "Sup3rSecret", true},
		{"too short", "Ab1", false},
		{"no uppercase", "sup3rsecret", false},
		{"no lowercase", "SUP3RSECRET", false},
		{"no number", "SuperSecret", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, _ := validation.IsValidPassword(tt.password)
			assert.Equal(t, tt.valid, ok)
		})
	}
}
