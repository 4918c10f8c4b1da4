package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractDomain(t *testing.T) {
	assert.Equal(t, "acmeheating.com", ExtractDomain("pat@acmeheating.com"))
	assert.Empty(t, ExtractDomain("not-an-email"))
	assert.Empty(t, ExtractDomain("a@b@c"))
}

func TestEmailCandidates(t *testing.T) {
	candidates := EmailCandidates("Pat", "Miller", "acmeheating.com")
	require.NotEmpty(t, candidates)
	// Most likely pattern first.
	assert.Equal(t, "pat.miller@acmeheating.com", candidates[0])
	assert.Contains(t, candidates, "pmiller@acmeheating.com")
	assert.Contains(t, candidates, "patmiller@acmeheating.com")
	assert.Contains(t, candidates, "info@acmeheating.com")

	// No last name: just the first name plus the generic fallbacks.
	solo := EmailCandidates("Pat", "", "acmeheating.com")
	assert.Equal(t, []string{"pat@acmeheating.com", "info@acmeheating.com", "contact@acmeheating.com"}, solo)

	assert.Nil(t, EmailCandidates("", "Miller", "acmeheating.com"))
	assert.Nil(t, EmailCandidates("Pat", "Miller", ""))
}
