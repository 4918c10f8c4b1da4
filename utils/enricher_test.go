package utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealforge/models"
)

func TestCleanNameParts(t *testing.T) {
	cases := []struct {
		in          string
		first, last string
	}{
		{"Dr. Jane Smith", "jane", "smith"},
		{"Jane Smith Jr.", "jane", "smith"},
		{"Dr. Jane A. Smith, DDS", "jane", "smith"},
		{"Madonna", "madonna", ""},
		{"Mr. Bob", "bob", ""},
		{"", "", ""},
		{"Dr.", "", ""},
	}
	for _, tc := range cases {
		first, last := CleanNameParts(tc.in)
		assert.Equal(t, tc.first, first, "CleanNameParts(%q) first", tc.in)
		assert.Equal(t, tc.last, last, "CleanNameParts(%q) last", tc.in)
	}
}

func TestIsGenericEmail(t *testing.T) {
	assert.True(t, isGenericEmail("info@acmeheating.com"))
	assert.True(t, isGenericEmail("Contact@acmeheating.com"))
	assert.True(t, isGenericEmail("noreply@acmeheating.com"))
	assert.False(t, isGenericEmail("pat.miller@acmeheating.com"))
}

func TestRuleBasedExtraction(t *testing.T) {
	research := map[string]string{
		"website_text": "Founded by Pat Miller. Reach us at info@acmeheating.com or pat.miller@acmeheating.com. " +
			"Connect: https://www.linkedin.com/in/pat-miller-hvac",
	}
	profile := ruleBasedExtraction(research)
	// Generic inboxes are skipped in favor of a personal address.
	assert.Equal(t, "pat.miller@acmeheating.com", profile.Email)
	assert.Contains(t, profile.LinkedinURL, "linkedin.com/in/pat-miller")

	empty := ruleBasedExtraction(map[string]string{"website_text": "   "})
	assert.Empty(t, empty.Email)
}

func TestEnrichCompanySkipsCompletedOwner(t *testing.T) {
	db := testDB(t)
	company := models.Company{Name: "Acme Heating", AddedBy: 1}
	require.NoError(t, db.Create(&company).Error)

	// A manually entered owner counts the same as a web-enriched one.
	now := time.Now()
	owner := models.Contact{
		CompanyID: company.ID, Name: "Pat Miller", Email: "pat@acmeheating.com",
		IsPrincipalOwner: true, EnrichmentStatus: models.EnrichmentCompleted,
		EnrichmentSource: models.EnrichmentSourceManual, EnrichedAt: &now,
	}
	require.NoError(t, db.Create(&owner).Error)

	llm := &fakeLLM{}
	enricher := NewEnricher(db, llm, &fakeSearcher{}, testLogger(), "")

	result, err := enricher.EnrichCompany(context.Background(), company.ID)
	require.NoError(t, err)
	assert.Equal(t, "already_enriched", result.Status)
	assert.Equal(t, owner.ID, result.ContactID)
	assert.Equal(t, "pat@acmeheating.com", result.Email)
	// Short-circuits before any research or extraction.
	assert.Empty(t, llm.prompts)
}

func TestEnrichCompanyNotFound(t *testing.T) {
	db := testDB(t)
	enricher := NewEnricher(db, &fakeLLM{}, &fakeSearcher{}, testLogger(), "")

	_, err := enricher.EnrichCompany(context.Background(), 404)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}
