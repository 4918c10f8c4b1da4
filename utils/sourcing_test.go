package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKeyStable(t *testing.T) {
	a := SourcingCriteria{Sector: "HVAC", Keywords: "residential", Location: "Texas", MinRevenue: 1e6}
	b := SourcingCriteria{Sector: "hvac ", Keywords: "RESIDENTIAL", Location: " texas", MinRevenue: 1e6}
	assert.Equal(t, a.CacheKey(), b.CacheKey())

	c := SourcingCriteria{Sector: "HVAC", Keywords: "residential", Location: "Texas", MinRevenue: 2e6}
	assert.NotEqual(t, a.CacheKey(), c.CacheKey())
	assert.Contains(t, a.CacheKey(), sourcingCachePrefix)

	// Source selection is order-insensitive but distinguishes subsets.
	d := SourcingCriteria{Sector: "HVAC", Sources: []string{"nppes", "web"}}
	e := SourcingCriteria{Sector: "HVAC", Sources: []string{"Web", "NPPES"}}
	f := SourcingCriteria{Sector: "HVAC", Sources: []string{"web"}}
	assert.Equal(t, d.CacheKey(), e.CacheKey())
	assert.NotEqual(t, d.CacheKey(), f.CacheKey())
}

func TestWantSource(t *testing.T) {
	all := SourcingCriteria{}
	assert.True(t, all.wantSource("dealstream"))
	assert.True(t, all.wantSource("web"))

	picked := SourcingCriteria{Sources: []string{"NPPES", " web "}}
	assert.True(t, picked.wantSource("nppes"))
	assert.True(t, picked.wantSource("web"))
	assert.False(t, picked.wantSource("dealstream"))
}

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"$2.5M", 2.5e6, true},
		{"$500K", 500e3, true},
		{"$1,200,000", 1.2e6, true},
		{"$3 million", 3e6, true},
		{"$1B", 1e9, true},
		{"$750 thousand", 750e3, true},
		{"", 0, false},
		{"call for price", 0, false},
		{"$0", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseMoney(tc.in)
		assert.Equal(t, tc.ok, ok, "parseMoney(%q) ok", tc.in)
		if tc.ok {
			assert.InDelta(t, tc.want, got, 0.01, "parseMoney(%q)", tc.in)
		}
	}
}

func TestExtractMoneyAndLocation(t *testing.T) {
	desc := "Established HVAC contractor in Houston, TX grossing $2.4M annually."
	assert.Equal(t, "$2.4M", extractMoney(desc))
	assert.Equal(t, "Houston, TX", extractLocation(desc))

	assert.Empty(t, extractMoney("no numbers here"))
	assert.Empty(t, extractLocation("no city state pair"))
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"hvac", "plumbing", "services"}, tokenize("HVAC & Plumbing Services"))
	// Stop words and short tokens drop out.
	assert.Equal(t, []string{"clinics", "sale"}, tokenize("clinics for sale"))
	assert.Empty(t, tokenize(""))
}

func TestDedupeSourced(t *testing.T) {
	companies := []SourcedCompany{
		{Name: "Acme Heating LLC", Source: "DealStream"},
		{Name: "ACME HEATING, Inc.", Source: "WebSearch"}, // same after normalization
		{Name: "Bravo Dental", Source: "DealStream"},
		{Name: "X"}, // too short after normalization
	}
	out := dedupeSourced(companies)
	require.Len(t, out, 2)
	assert.Equal(t, "Acme Heating LLC", out[0].Name)
	assert.Equal(t, "Bravo Dental", out[1].Name)
}

func TestDedupeSourcedKeepsChainsInDifferentCities(t *testing.T) {
	companies := []SourcedCompany{
		{Name: "Smile Dental", Location: "Austin, TX", Extra: map[string]string{"listing_type": "active_business"}},
		{Name: "Smile Dental", Location: "Dallas, TX", Extra: map[string]string{"listing_type": "active_business"}},
		{Name: "Smile Dental", Location: "Austin, TX", Extra: map[string]string{"listing_type": "active_business"}},
	}
	out := dedupeSourced(companies)
	assert.Len(t, out, 2)
}

func TestScoreCompanySectorHardGate(t *testing.T) {
	criteria := SourcingCriteria{Sector: "HVAC"}
	miss := SourcedCompany{Name: "Bakery For Sale", Description: "Artisan bread, loyal customers", Source: "DealStream"}
	score, reasons := ScoreCompany(&miss, criteria)
	assert.Equal(t, 0, score)
	require.NotEmpty(t, reasons)
	assert.Contains(t, reasons[0], "not found")

	hit := SourcedCompany{Name: "Acme HVAC Services", Description: "Commercial HVAC contractor", Source: "DealStream"}
	score, _ = ScoreCompany(&hit, criteria)
	assert.Greater(t, score, 40)
}

func TestScoreCompanyKeywordAndLocationBoost(t *testing.T) {
	criteria := SourcingCriteria{Sector: "HVAC", Keywords: "residential", Location: "Houston"}
	base := SourcedCompany{Name: "Acme HVAC", Description: "contractor", Source: "WebSearch"}
	boosted := SourcedCompany{
		Name: "Acme HVAC", Description: "residential contractor",
		Location: "Houston, TX", Source: "WebSearch",
	}

	baseScore, _ := ScoreCompany(&base, criteria)
	boostedScore, reasons := ScoreCompany(&boosted, criteria)
	assert.Greater(t, boostedScore, baseScore)

	var sawKeywords, sawLocation bool
	for _, r := range reasons {
		if len(r) >= 8 && r[:8] == "Keywords" {
			sawKeywords = true
		}
		if len(r) >= 8 && r[:8] == "Location" {
			sawLocation = true
		}
	}
	assert.True(t, sawKeywords)
	assert.True(t, sawLocation)
}

func TestScoreCompanyRevenueRange(t *testing.T) {
	criteria := SourcingCriteria{Sector: "dental", MinRevenue: 1e6, MaxRevenue: 5e6}
	inRange := SourcedCompany{Name: "Smile Dental", Description: "dental practice", Revenue: "$2.5M", Source: "DealStream"}
	outOfRange := SourcedCompany{Name: "Smile Dental", Description: "dental practice", Revenue: "$20M", Source: "DealStream"}

	inScore, _ := ScoreCompany(&inRange, criteria)
	outScore, _ := ScoreCompany(&outOfRange, criteria)
	assert.Greater(t, inScore, outScore)
}

func TestScoreCompanyClamped(t *testing.T) {
	criteria := SourcingCriteria{
		Sector: "dental", Keywords: "practice", Location: "Austin",
		MinRevenue: 1e6, MaxRevenue: 5e6, MinEmployees: 5, MaxEmployees: 50,
	}
	co := SourcedCompany{
		Name: "Austin Dental Practice", Description: "dental practice in Austin",
		Location: "Austin, TX", Revenue: "$2M", AskingPrice: "$4M",
		Employees: "20", Source: "DealStream",
	}
	score, _ := ScoreCompany(&co, criteria)
	assert.LessOrEqual(t, score, 100)
	assert.Greater(t, score, 60)
}

func TestLocationFilter(t *testing.T) {
	terms := locationFilterTerms("Texas")
	assert.True(t, terms["texas"])
	assert.True(t, terms["tx"])

	assert.True(t, passesLocationFilter(SourcedCompany{Location: "Houston, TX"}, terms))
	assert.True(t, passesLocationFilter(SourcedCompany{Location: "Texas"}, terms))
	assert.False(t, passesLocationFilter(SourcedCompany{Location: "Atlanta, GA"}, terms))
	// Missing location data never passes a hard location filter.
	assert.False(t, passesLocationFilter(SourcedCompany{}, terms))

	// Abbreviations expand to the full state name too.
	terms = locationFilterTerms("TX")
	assert.True(t, terms["texas"])

	assert.Nil(t, locationFilterTerms(""))
}

func TestNPPESTaxonomies(t *testing.T) {
	taxonomies := nppesTaxonomies("Dental", "practices in texas")
	assert.Contains(t, taxonomies, "Dentist")

	assert.Empty(t, nppesTaxonomies("Software", "b2b saas"))
}

func TestStateCodeFor(t *testing.T) {
	assert.Equal(t, "TX", stateCodeFor("Houston, Texas"))
	assert.Equal(t, "CA", stateCodeFor("california"))
	assert.Equal(t, "GA", stateCodeFor("Atlanta, GA"))
	// Codes match whole words only.
	assert.Empty(t, stateCodeFor("Zagreb"))
}
