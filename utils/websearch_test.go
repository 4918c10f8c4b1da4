package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripHTML(t *testing.T) {
	src := `<html><head><style>body { color: red; }</style>
<script>alert("x")</script></head>
<body><h1>Acme  Heating</h1><p>Serving   Houston since 1985.</p></body></html>`
	got := StripHTML(src)
	assert.Equal(t, "Acme Heating Serving Houston since 1985.", got)
	assert.NotContains(t, got, "alert")
	assert.NotContains(t, got, "color: red")
}

func TestCleanCompanyName(t *testing.T) {
	cases := map[string]string{
		"Acme Heating, LLC":                     "Acme Heating",
		"Smile Dental Inc.":                     "Smile Dental",
		"Gulf Coast Fertility, P.A.":            "Gulf Coast Fertility",
		"Summit Medical Corporation":            "Summit Medical",
		"Westside Clinic Professional Corporation": "Westside Clinic",
		"No Suffix Co-op":                       "No Suffix Co-op",
	}
	for in, want := range cases {
		assert.Equal(t, want, CleanCompanyName(in), "CleanCompanyName(%q)", in)
	}
}

func TestIsRegistryOrAggregator(t *testing.T) {
	assert.True(t, IsRegistryOrAggregator("https://www.yellowpages.com/listing/123"))
	assert.True(t, IsRegistryOrAggregator("https://npiregistry.cms.hhs.gov/provider-view/123"))
	assert.True(t, IsRegistryOrAggregator("https://sub.yelp.com/biz/acme"))
	assert.False(t, IsRegistryOrAggregator("https://acmeheating.com/about"))
	assert.False(t, IsRegistryOrAggregator("://bad url"))
}

func TestCapChars(t *testing.T) {
	assert.Equal(t, "abc", capChars("abc", 10))
	assert.Equal(t, "ab", capChars("abcdef", 2))
	assert.Equal(t, "abc", capChars("abc", 0))
}
