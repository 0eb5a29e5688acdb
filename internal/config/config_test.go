package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeIssuer(t *testing.T) {
	assert.Equal(t, "https://issuer.example.com", normalizeIssuer("https://issuer.example.com/"))
	assert.Equal(t, "https://issuer.example.com", normalizeIssuer("  https://issuer.example.com  "))
	assert.Equal(t, "https://issuer.example.com/realms/dev", normalizeIssuer("https://issuer.example.com/realms/dev"))
	assert.Equal(t, "", normalizeIssuer(""))
}
