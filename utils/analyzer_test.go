package utils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	text string
	urls []string
	err  error
}

func (f *fakeSearcher) SearchText(context.Context, string, int) (string, error) {
	return f.text, f.err
}

func (f *fakeSearcher) SearchURLs(context.Context, string, int) ([]string, error) {
	return f.urls, f.err
}

func (f *fakeSearcher) FetchText(context.Context, string, int) (string, error) {
	return f.text, f.err
}

func TestParseSections(t *testing.T) {
	text := `1. BUSINESS SUMMARY
A twelve-chair dental group with three locations.

2. SERVICE LINES: General dentistry, orthodontics.

LEADERSHIP
Dr. Jane Smith, founder.

5. FIT RATIONALE
Strong sector match.`

	sections := parseSections(text)
	assert.Contains(t, sections["BUSINESS SUMMARY"], "twelve-chair")
	assert.Contains(t, sections["SERVICE LINES"], "orthodontics")
	assert.Contains(t, sections["LEADERSHIP"], "Jane Smith")
	assert.Contains(t, sections["FIT RATIONALE"], "sector match")
	assert.NotContains(t, sections["BUSINESS SUMMARY"], "SERVICE LINES")
	_, ok := sections["CONTACT INFORMATION"]
	assert.False(t, ok)
}

func TestParseSectionsUnstructured(t *testing.T) {
	assert.Empty(t, parseSections("Just a paragraph with no headers at all."))
}

func TestGenerateFitSummary(t *testing.T) {
	llm := &fakeLLM{response: "Strong sector fit given the dental focus."}
	analyzer := NewAnalyzer(llm, &fakeSearcher{}, testLogger())

	score := 72
	co := SourcedCompany{
		Name: "Smile Dental", Sector: "Dental", Location: "Austin, TX",
		AskingPrice: "$3M", FitScore: &score,
		FitReasons: []string{"Sector match (1/1): dental"},
		Source:     "DealStream",
	}
	summary, err := analyzer.GenerateFitSummary(context.Background(), co, SourcingCriteria{Sector: "dental"})
	require.NoError(t, err)
	assert.Equal(t, "Strong sector fit given the dental focus.", summary)

	// The prompt carries the scoring signals so the model explains them.
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "72/100")
	assert.Contains(t, llm.prompts[0], "listed for sale at $3M")
}

func TestExtractJSONObject(t *testing.T) {
	obj, ok := ExtractJSONObject("Here you go:\n```json\n{\"subject\": \"hi\"}\n```")
	require.True(t, ok)
	assert.JSONEq(t, `{"subject": "hi"}`, obj)

	_, ok = ExtractJSONObject("no json here")
	assert.False(t, ok)
}
