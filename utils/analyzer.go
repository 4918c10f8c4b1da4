package utils

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Analyzer produces AI-written fit summaries and deep-dive profiles for
// sourced acquisition targets.
type Analyzer struct {
	LLM    TextGenerator
	Search WebSearcher
	Logger *log.Logger
}

func NewAnalyzer(llm TextGenerator, search WebSearcher, logger *log.Logger) *Analyzer {
	return &Analyzer{LLM: llm, Search: search, Logger: logger}
}

// GenerateFitSummary writes a 2-3 sentence fit summary for a company card.
// Uses only data already in hand; no web fetch, so it stays fast.
func (a *Analyzer) GenerateFitSummary(ctx context.Context, co SourcedCompany, criteria SourcingCriteria) (string, error) {
	listingContext := "This business is listed for sale."
	if co.Extra["listing_type"] == "active_business" {
		listingContext = "This is an active business (not currently listed for sale)."
	} else if co.AskingPrice != "" {
		listingContext = "This business is listed for sale at " + co.AskingPrice + "."
	}

	fitScore := 0
	if co.FitScore != nil {
		fitScore = *co.FitScore
	}

	prompt := fmt.Sprintf(`You are an M&A analyst at a private equity firm. Write a 2-3 sentence fit summary for this acquisition target.

Search criteria: sector=%q, keywords=%q
Company: %s
Sector/Type: %s
Location: %s
Description: %s
Revenue: %s
Asking Price: %s
Source: %s
Fit score: %d/100
Scoring signals: %s
Context: %s

Write 2-3 concise sentences explaining why this company is or isn't a strong fit for our criteria.
Focus on: sector alignment, size/scale indicators, any red flags or highlights.
Be direct, specific, and analytical. No fluff. Do not start with "This company".`,
		criteria.Sector, criteria.Keywords, co.Name, co.Sector, co.Location,
		capChars(co.Description, 400), co.Revenue, co.AskingPrice, co.Source,
		fitScore, strings.Join(headOf(co.FitReasons, 4), "; "), listingContext)

	return a.LLM.Generate(ctx, prompt, 150)
}

// DeepDive is a structured due-diligence profile.
type DeepDive struct {
	BusinessSummary string   `json:"business_summary"`
	ServiceLines    string   `json:"service_lines"`
	Leadership      string   `json:"leadership"`
	Contact         string   `json:"contact"`
	FitRationale    string   `json:"fit_rationale"`
	ResearchSources []string `json:"research_sources"`
	Raw             string   `json:"raw"`
}

// GenerateDeepDive researches a company on the web and writes a full
// profile: summary, service lines, leadership, contact info, and fit
// rationale against the search criteria.
func (a *Analyzer) GenerateDeepDive(ctx context.Context, co SourcedCompany, criteria SourcingCriteria) (*DeepDive, error) {
	a.Logger.Printf("Deep dive: researching %s", co.Name)
	research := a.researchCompany(ctx, co)

	var contextParts []string
	for _, pair := range []struct{ label, key string }{
		{"WEBSITE CONTENT", "website_text"},
		{"GENERAL SEARCH RESULTS", "search_general"},
		{"LEADERSHIP SEARCH RESULTS", "search_leadership"},
		{"RECENT NEWS/ACTIVITY", "search_news"},
	} {
		if text := research[pair.key]; text != "" {
			contextParts = append(contextParts, pair.label+":\n"+text)
		}
	}
	researchContext := strings.Join(contextParts, "\n\n")
	if researchContext == "" {
		researchContext = "No web research available. Base analysis on the provided company data only."
	}

	askingContext := co.AskingPrice
	if askingContext == "" {
		if co.Extra["listing_type"] == "active_business" {
			askingContext = "Active business, not listed"
		} else {
			askingContext = "Not listed for sale"
		}
	}

	prompt := fmt.Sprintf(`You are an M&A analyst conducting due diligence on a potential acquisition target for a private equity firm.

COMPANY: %s
LOCATION: %s
SECTOR: %s
DESCRIPTION: %s
ASKING PRICE: %s
REVENUE: %s
PHONE: %s
ADDRESS: %s

OUR SEARCH CRITERIA: sector=%q, keywords=%q

RESEARCH GATHERED:
%s

Based on this research, provide a structured analysis with these exact sections. Be specific and cite details from the research. If information isn't available, say "Not found in research" rather than guessing.

1. BUSINESS SUMMARY (2-3 sentences: what the business does, how long it's been operating, key facts)

2. SERVICE LINES (bullet list of their main products/services/specialties)

3. LEADERSHIP (owner, CEO, president, founder — names, titles, tenure if known)

4. CONTACT INFORMATION (compile all available: phone, email, address, website, LinkedIn)

5. FIT RATIONALE (2-3 sentences: why this company specifically matches our %q criteria — be concrete about alignment or gaps)

Format each section with the header exactly as shown above followed by the content.`,
		co.Name, co.Location, co.Sector, capChars(co.Description, 500),
		askingContext, co.Revenue, co.Extra["phone"], co.Extra["address"],
		criteria.Sector, criteria.Keywords, capChars(researchContext, 5000), criteria.Sector)

	raw, err := a.LLM.Generate(ctx, prompt, 900)
	if err != nil {
		return nil, err
	}

	sections := parseSections(raw)
	return &DeepDive{
		BusinessSummary: sections["BUSINESS SUMMARY"],
		ServiceLines:    sections["SERVICE LINES"],
		Leadership:      sections["LEADERSHIP"],
		Contact:         sections["CONTACT INFORMATION"],
		FitRationale:    sections["FIT RATIONALE"],
		ResearchSources: researchSources(co),
		Raw:             raw,
	}, nil
}

func (a *Analyzer) researchCompany(ctx context.Context, co SourcedCompany) map[string]string {
	website := co.Website
	if website == "" {
		website = co.SourceURL
	}
	for _, bad := range []string{"npiregistry", "openstreetmap.org", "google.com/maps"} {
		if strings.Contains(website, bad) {
			website = ""
			break
		}
	}

	research := make(map[string]string)
	var mu sync.Mutex
	set := func(key, value string) {
		if value == "" {
			return
		}
		mu.Lock()
		research[key] = value
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	if website != "" && strings.HasPrefix(website, "http") {
		g.Go(func() error {
			text, _ := a.Search.FetchText(gctx, website, 3000)
			set("website_text", text)
			return nil
		})
	}
	g.Go(func() error {
		text, _ := a.Search.SearchText(gctx, fmt.Sprintf(`"%s" %s business`, co.Name, co.Location), 2500)
		set("search_general", text)
		return nil
	})
	g.Go(func() error {
		text, _ := a.Search.SearchText(gctx, fmt.Sprintf(`"%s" owner OR CEO OR president OR founder`, co.Name), 2000)
		set("search_leadership", text)
		return nil
	})
	g.Go(func() error {
		text, _ := a.Search.SearchText(gctx, fmt.Sprintf(`"%s" %s news OR expansion OR acquisition`, co.Name, co.Location), 2000)
		set("search_news", text)
		return nil
	})
	g.Wait()
	return research
}

var sectionHeaderRe = regexp.MustCompile(`(?m)^\s*(?:\d+\.\s*)?(BUSINESS SUMMARY|SERVICE LINES|LEADERSHIP|CONTACT INFORMATION|FIT RATIONALE)\b[:\s]*`)

// parseSections splits the model's output on the numbered section headers.
func parseSections(text string) map[string]string {
	sections := make(map[string]string)
	matches := sectionHeaderRe.FindAllStringSubmatchIndex(text, -1)
	for i, m := range matches {
		name := text[m[2]:m[3]]
		start := m[1]
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		sections[name] = strings.TrimSpace(text[start:end])
	}
	return sections
}

func researchSources(co SourcedCompany) []string {
	var sources []string
	if co.Website != "" {
		sources = append(sources, co.Website)
	}
	if co.SourceURL != "" && co.SourceURL != co.Website {
		sources = append(sources, co.SourceURL)
	}
	sources = append(sources, "Web search results")
	return sources
}
