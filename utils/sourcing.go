package utils

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"
)

const (
	sourcingCacheTTL    = 30 * time.Minute
	sourcingCachePrefix = "sourcing:search:"
	sourcingMaxResults  = 300
	nppesBase           = "https://npiregistry.cms.hhs.gov/api/"
	dealstreamBase      = "https://www.dealstream.com/"
)

// DealStream RSS category feeds. Each returns ~25 live listings.
var dealstreamFeeds = []string{
	"businesses-for-sale",
	"health-care-businesses-for-sale",
	"finance-and-insurance-businesses-for-sale",
	"service-businesses-for-sale",
	"manufacturing-businesses-for-sale",
	"construction-businesses-for-sale",
	"education-businesses-for-sale",
	"hospitality-businesses-for-sale",
}

// SourcingCriteria is a free-text acquisition target search. Sources
// selects providers ("dealstream", "nppes", "web"); empty means all.
type SourcingCriteria struct {
	Sector       string   `json:"sector"`
	Keywords     string   `json:"keywords"`
	Location     string   `json:"location"`
	MinRevenue   float64  `json:"min_revenue"`
	MaxRevenue   float64  `json:"max_revenue"`
	MinEmployees int      `json:"min_employees"`
	MaxEmployees int      `json:"max_employees"`
	Sources      []string `json:"sources"`
}

// wantSource reports whether a provider is selected by the criteria.
func (c SourcingCriteria) wantSource(name string) bool {
	if len(c.Sources) == 0 {
		return true
	}
	for _, s := range c.Sources {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return true
		}
	}
	return false
}

// CacheKey builds a stable redis key from the non-empty criteria fields.
func (c SourcingCriteria) CacheKey() string {
	sources := make([]string, 0, len(c.Sources))
	for _, s := range c.Sources {
		sources = append(sources, strings.ToLower(strings.TrimSpace(s)))
	}
	sort.Strings(sources)

	parts := []string{
		"sector=" + strings.ToLower(strings.TrimSpace(c.Sector)),
		"keywords=" + strings.ToLower(strings.TrimSpace(c.Keywords)),
		"location=" + strings.ToLower(strings.TrimSpace(c.Location)),
		fmt.Sprintf("rev=%g-%g", c.MinRevenue, c.MaxRevenue),
		fmt.Sprintf("emp=%d-%d", c.MinEmployees, c.MaxEmployees),
		"sources=" + strings.Join(sources, ","),
	}
	return sourcingCachePrefix + strings.Join(parts, "|")
}

// SourcedCompany is one discovered acquisition target, before it is saved
// as a Company.
type SourcedCompany struct {
	Name        string            `json:"name"`
	Source      string            `json:"source"`
	SourceURL   string            `json:"source_url"`
	Description string            `json:"description"`
	Sector      string            `json:"sector"`
	Location    string            `json:"location"`
	Revenue     string            `json:"revenue"`
	Employees   string            `json:"employees"`
	AskingPrice string            `json:"asking_price"`
	Website     string            `json:"website"`
	FitScore    *int              `json:"fit_score"`
	FitReasons  []string          `json:"fit_reasons"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Sourcer fans a criteria search out across deal-listing feeds, the NPPES
// provider registry, and web discovery, then scores and ranks the merged
// results. Searches are cached in redis for 30 minutes.
type Sourcer struct {
	Redis    *redis.Client
	Search   WebSearcher
	Logger   *log.Logger
	HTTP     *http.Client
	CacheTTL time.Duration
}

func NewSourcer(rdb *redis.Client, search WebSearcher, logger *log.Logger) *Sourcer {
	return &Sourcer{
		Redis:    rdb,
		Search:   search,
		Logger:   logger,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
		CacheTTL: sourcingCacheTTL,
	}
}

// RunSearch runs every source in parallel and returns a deduped, scored
// list sorted by fit score descending. The bool reports a cache hit.
func (s *Sourcer) RunSearch(ctx context.Context, criteria SourcingCriteria) ([]SourcedCompany, bool, error) {
	cacheKey := criteria.CacheKey()
	if s.Redis != nil {
		if raw, err := s.Redis.Get(ctx, cacheKey).Result(); err == nil {
			var cached []SourcedCompany
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				s.Logger.Printf("Sourcing cache hit (%d results)", len(cached))
				return cached, true, nil
			}
		}
	}

	matchKws := buildSearchKeywords(criteria.Sector, criteria.Keywords)
	s.Logger.Printf("Sourcing: sector=%q keywords=%q location=%q", criteria.Sector, criteria.Keywords, criteria.Location)

	var mu sync.Mutex
	var all []SourcedCompany
	collect := func(companies []SourcedCompany) {
		mu.Lock()
		all = append(all, companies...)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	if criteria.wantSource("dealstream") {
		g.Go(func() error {
			collect(s.searchDealStream(gctx, matchKws, criteria.Sector))
			return nil
		})
	}
	if criteria.wantSource("nppes") {
		g.Go(func() error {
			collect(s.searchNPPES(gctx, criteria.Sector, criteria.Keywords, criteria.Location))
			return nil
		})
	}
	if criteria.wantSource("web") {
		g.Go(func() error {
			collect(s.searchWebListings(gctx, criteria))
			return nil
		})
	}
	g.Wait()

	deduped := dedupeSourced(all)
	for i := range deduped {
		if deduped[i].FitScore == nil {
			score, reasons := ScoreCompany(&deduped[i], criteria)
			deduped[i].FitScore = &score
			deduped[i].FitReasons = reasons
		}
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		return *deduped[i].FitScore > *deduped[j].FitScore
	})

	minScore := 0
	if len(matchKws) > 0 {
		minScore = 20
	}
	relevant := deduped[:0]
	for _, co := range deduped {
		if *co.FitScore >= minScore {
			relevant = append(relevant, co)
		}
	}

	// Location is a hard filter: "Houston" means Houston, not a brokerage
	// listing three states over.
	if terms := locationFilterTerms(criteria.Location); len(terms) > 0 {
		filtered := relevant[:0]
		for _, co := range relevant {
			if passesLocationFilter(co, terms) {
				filtered = append(filtered, co)
			}
		}
		relevant = filtered
	}

	if len(relevant) > sourcingMaxResults {
		relevant = relevant[:sourcingMaxResults]
	}
	s.Logger.Printf("Sourcing: %d unique, %d returned", len(deduped), len(relevant))

	if s.Redis != nil {
		if raw, err := json.Marshal(relevant); err == nil {
			if err := s.Redis.Set(ctx, cacheKey, raw, s.CacheTTL).Err(); err != nil {
				s.Logger.Printf("Failed to cache sourcing results: %v", err)
			}
		}
	}
	return relevant, false, nil
}

// ClearCache drops all cached sourcing searches.
func (s *Sourcer) ClearCache(ctx context.Context) (int, error) {
	if s.Redis == nil {
		return 0, nil
	}
	keys, err := s.Redis.Keys(ctx, sourcingCachePrefix+"*").Result()
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := s.Redis.Del(ctx, keys...).Err(); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// rssFeed is the subset of RSS 2.0 we read from DealStream.
type rssFeed struct {
	Channel struct {
		Items []struct {
			Title       string `xml:"title"`
			Link        string `xml:"link"`
			Description string `xml:"description"`
		} `xml:"item"`
	} `xml:"channel"`
}

func (s *Sourcer) searchDealStream(ctx context.Context, matchKws []string, sector string) []SourcedCompany {
	var mu sync.Mutex
	var results []SourcedCompany

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, slug := range dealstreamFeeds {
		slug := slug
		g.Go(func() error {
			items := s.fetchRSSFeed(gctx, slug)
			mu.Lock()
			defer mu.Unlock()
			for _, item := range items {
				combined := strings.ToLower(item.Name + " " + item.Description)
				if len(matchKws) > 0 && !textMatchesAny(combined, matchKws) {
					continue
				}
				results = append(results, SourcedCompany{
					Name:        item.Name,
					Source:      "DealStream",
					SourceURL:   item.URL,
					Description: capChars(item.Description, 350),
					Sector:      sector,
					Location:    item.Location,
					Revenue:     item.Price,
					AskingPrice: item.Price,
				})
			}
			return nil
		})
	}
	g.Wait()
	s.Logger.Printf("DealStream: %d results after filter", len(results))
	return results
}

type rssItem struct {
	Name        string
	Description string
	URL         string
	Price       string
	Location    string
}

func (s *Sourcer) fetchRSSFeed(ctx context.Context, slug string) []rssItem {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dealstreamBase+slug+".rss", nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	resp, err := s.HTTP.Do(req)
	if err != nil {
		s.Logger.Printf("DealStream %s: %v", slug, err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil
	}
	var feed rssFeed
	if err := xml.Unmarshal(raw, &feed); err != nil {
		s.Logger.Printf("DealStream %s: bad feed: %v", slug, err)
		return nil
	}

	var items []rssItem
	for _, it := range feed.Channel.Items {
		title := strings.TrimSpace(it.Title)
		if title == "" {
			continue
		}
		desc := capChars(StripHTML(it.Description), 500)
		items = append(items, rssItem{
			Name:        title,
			Description: desc,
			URL:         it.Link,
			Price:       extractMoney(desc),
			Location:    extractLocation(desc),
		})
	}
	return items
}

// nppesResponse is the NPI registry search payload.
type nppesResponse struct {
	Results []struct {
		Number string `json:"number"`
		Basic  struct {
			OrganizationName string `json:"organization_name"`
		} `json:"basic"`
		Addresses []struct {
			AddressPurpose  string `json:"address_purpose"`
			Address1        string `json:"address_1"`
			City            string `json:"city"`
			State           string `json:"state"`
			PostalCode      string `json:"postal_code"`
			TelephoneNumber string `json:"telephone_number"`
		} `json:"addresses"`
		Taxonomies []struct {
			Desc    string `json:"desc"`
			Primary bool   `json:"primary"`
		} `json:"taxonomies"`
	} `json:"results"`
}

// Common free-text sectors mapped to NPPES taxonomy_description terms.
var nppesTaxonomyMap = map[string][]string{
	"fertility":     {"Reproductive Endocrinology", "Obstetrics & Gynecology"},
	"ivf":           {"Reproductive Endocrinology"},
	"dental":        {"Dentist", "Dental"},
	"dermatology":   {"Dermatology"},
	"veterinary":    {"Veterinarian"},
	"physical":      {"Physical Therapist", "Physical Therapy"},
	"optometry":     {"Optometrist"},
	"behavioral":    {"Behavioral", "Mental Health"},
	"mental":        {"Mental Health", "Psychiatry"},
	"urgent":        {"Urgent Care", "Clinic/Center"},
	"home health":   {"Home Health"},
	"hospice":       {"Hospice"},
	"pharmacy":      {"Pharmacy"},
	"chiropractic":  {"Chiropractor"},
	"imaging":       {"Radiology", "Diagnostic"},
	"surgery":       {"Surgery", "Ambulatory Surgical"},
	"primary care":  {"Family Medicine", "Internal Medicine"},
	"pediatric":     {"Pediatrics"},
	"oncology":      {"Oncology"},
	"cardiology":    {"Cardiovascular"},
	"orthopedic":    {"Orthopaedic"},
	"dialysis":      {"Dialysis", "Nephrology"},
	"lab":           {"Clinical Medical Laboratory"},
	"medspa":        {"Dermatology", "Plastic Surgery"},
	"senior":        {"Assisted Living", "Skilled Nursing"},
	"nursing":       {"Skilled Nursing", "Nursing Facility"},
	"healthcare":    {"Clinic/Center"},
	"health care":   {"Clinic/Center"},
	"medical":       {"Clinic/Center"},
}

func nppesTaxonomies(sector, keywords string) []string {
	combined := strings.ToLower(sector + " " + keywords)
	var out []string
	seen := make(map[string]bool)
	for key, terms := range nppesTaxonomyMap {
		if strings.Contains(combined, key) {
			for _, t := range terms {
				if !seen[t] {
					seen[t] = true
					out = append(out, t)
				}
			}
		}
	}
	return out
}

var usStateAbbrevs = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR",
	"california": "CA", "colorado": "CO", "connecticut": "CT", "delaware": "DE",
	"florida": "FL", "georgia": "GA", "hawaii": "HI", "idaho": "ID",
	"illinois": "IL", "indiana": "IN", "iowa": "IA", "kansas": "KS",
	"kentucky": "KY", "louisiana": "LA", "maine": "ME", "maryland": "MD",
	"massachusetts": "MA", "michigan": "MI", "minnesota": "MN", "mississippi": "MS",
	"missouri": "MO", "montana": "MT", "nebraska": "NE", "nevada": "NV",
	"new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM", "new york": "NY",
	"north carolina": "NC", "north dakota": "ND", "ohio": "OH", "oklahoma": "OK",
	"oregon": "OR", "pennsylvania": "PA", "rhode island": "RI", "south carolina": "SC",
	"south dakota": "SD", "tennessee": "TN", "texas": "TX", "utah": "UT",
	"vermont": "VT", "virginia": "VA", "washington": "WA", "west virginia": "WV",
	"wisconsin": "WI", "wyoming": "WY",
}

func stateCodeFor(location string) string {
	loc := strings.ToLower(location)
	for name, code := range usStateAbbrevs {
		if strings.Contains(loc, name) {
			return code
		}
	}
	// Codes only match as whole words; "al" inside "california" is not Alabama.
	for _, field := range strings.Fields(nonWordRe.ReplaceAllString(loc, " ")) {
		for _, code := range usStateAbbrevs {
			if field == strings.ToLower(code) {
				return code
			}
		}
	}
	return ""
}

// searchNPPES queries the federal NPI registry for healthcare providers.
// Only fires when the criteria map to known taxonomies.
func (s *Sourcer) searchNPPES(ctx context.Context, sector, keywords, location string) []SourcedCompany {
	taxonomies := nppesTaxonomies(sector, keywords)
	if len(taxonomies) == 0 {
		return nil
	}
	if len(taxonomies) > 3 {
		taxonomies = taxonomies[:3]
	}
	state := stateCodeFor(location)

	var mu sync.Mutex
	var results []SourcedCompany
	seenNPIs := make(map[string]bool)

	g, gctx := errgroup.WithContext(ctx)
	for _, tax := range taxonomies {
		for _, skip := range []int{0, 200} {
			tax, skip := tax, skip
			g.Go(func() error {
				page := s.nppesFetch(gctx, tax, state, skip)
				mu.Lock()
				defer mu.Unlock()
				for _, co := range page {
					npi := co.Extra["npi"]
					if npi == "" || seenNPIs[npi] {
						continue
					}
					seenNPIs[npi] = true
					results = append(results, co)
				}
				return nil
			})
		}
	}
	g.Wait()
	s.Logger.Printf("NPPES: %d unique providers (state=%s)", len(results), orUnknown(state, "any"))
	return results
}

func (s *Sourcer) nppesFetch(ctx context.Context, taxonomy, state string, skip int) []SourcedCompany {
	params := url.Values{
		"version":              {"2.1"},
		"taxonomy_description": {taxonomy},
		"enumeration_type":     {"NPI-2"},
		"limit":                {"200"},
		"skip":                 {strconv.Itoa(skip)},
	}
	if state != "" {
		params.Set("state", state)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, nppesBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.HTTP.Do(req)
	if err != nil {
		s.Logger.Printf("NPPES %s: %v", taxonomy, err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var data nppesResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil
	}

	var out []SourcedCompany
	for _, r := range data.Results {
		name := strings.TrimSpace(r.Basic.OrganizationName)
		if len(name) < 3 {
			continue
		}

		addr := struct {
			Address1, City, State, PostalCode, TelephoneNumber string
		}{}
		for i, a := range r.Addresses {
			if a.AddressPurpose == "LOCATION" || i == 0 {
				addr.Address1 = a.Address1
				addr.City = a.City
				addr.State = a.State
				addr.PostalCode = a.PostalCode
				addr.TelephoneNumber = a.TelephoneNumber
				if a.AddressPurpose == "LOCATION" {
					break
				}
			}
		}

		taxonomyDesc := ""
		for _, t := range r.Taxonomies {
			if t.Primary {
				taxonomyDesc = t.Desc
				break
			}
		}
		if taxonomyDesc == "" && len(r.Taxonomies) > 0 {
			taxonomyDesc = r.Taxonomies[0].Desc
		}

		location := strings.Title(strings.ToLower(addr.City))
		if addr.State != "" {
			if location != "" {
				location += ", " + addr.State
			} else {
				location = addr.State
			}
		}

		sourceURL := ""
		if r.Number != "" {
			sourceURL = "https://npiregistry.cms.hhs.gov/provider-view/" + r.Number
		}

		out = append(out, SourcedCompany{
			Name:        strings.Title(strings.ToLower(name)),
			Source:      "NPPES",
			SourceURL:   sourceURL,
			Description: fmt.Sprintf("%s — NPI #%s", taxonomyDesc, r.Number),
			Sector:      orUnknown(taxonomyDesc, taxonomy),
			Location:    location,
			Extra: map[string]string{
				"npi":          r.Number,
				"phone":        addr.TelephoneNumber,
				"taxonomy":     taxonomyDesc,
				"listing_type": "active_business",
			},
		})
	}
	return out
}

// searchWebListings discovers businesses through the search provider when
// the criteria don't map to a registry.
func (s *Sourcer) searchWebListings(ctx context.Context, criteria SourcingCriteria) []SourcedCompany {
	query := strings.TrimSpace(criteria.Sector + " " + criteria.Keywords)
	if query == "" {
		return nil
	}
	if criteria.Location != "" {
		query += " " + criteria.Location
	}
	query += " business for sale OR acquisition"

	urls, err := s.Search.SearchURLs(ctx, query, 10)
	if err != nil || len(urls) == 0 {
		return nil
	}
	text, _ := s.Search.SearchText(ctx, query, 4000)

	var results []SourcedCompany
	for _, snippet := range strings.Split(text, " | ") {
		snippet = strings.TrimPrefix(snippet, "[Result] ")
		name, desc, found := strings.Cut(snippet, ": ")
		if !found || len(name) < 4 || len(name) > 120 {
			continue
		}
		results = append(results, SourcedCompany{
			Name:        name,
			Source:      "WebSearch",
			Description: capChars(desc, 350),
			Sector:      criteria.Sector,
			Location:    extractLocation(desc),
			AskingPrice: extractMoney(desc),
		})
	}
	s.Logger.Printf("Web discovery: %d results", len(results))
	return results
}

var (
	moneyRe    = regexp.MustCompile(`(?i)\$[\d,]+(?:\.\d+)?\s*(?:[MKB]|million|thousand|billion)?`)
	locationRe = regexp.MustCompile(`([A-Z][a-zA-Z\s]{2,20}),\s*([A-Z]{2})\b`)
	companySuffixRe = regexp.MustCompile(`\b(llc|inc|corp|ltd|co|pllc|lp)\b`)
	nonWordRe       = regexp.MustCompile(`\W+`)
)

func extractMoney(text string) string    { return moneyRe.FindString(text) }
func extractLocation(text string) string { return locationRe.FindString(text) }

var sourcingStopWords = map[string]bool{
	"for": true, "and": true, "the": true, "with": true, "from": true,
	"that": true, "this": true, "are": true, "has": true, "have": true,
	"been": true, "will": true, "its": true, "was": true, "our": true,
	"not": true, "but": true, "can": true,
}

func tokenize(text string) []string {
	words := regexp.MustCompile(`[\s,/&\-]+`).Split(strings.TrimSpace(text), -1)
	var out []string
	for _, w := range words {
		w = strings.ToLower(strings.Trim(w, "()."))
		if len(w) > 2 && !sourcingStopWords[w] {
			out = append(out, w)
		}
	}
	return out
}

func buildSearchKeywords(sector, keywords string) []string {
	return tokenize(sector + " " + keywords)
}

func textMatchesAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if len(kw) > 1 && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func dedupeSourced(companies []SourcedCompany) []SourcedCompany {
	seen := make(map[string]bool)
	var out []SourcedCompany
	for _, co := range companies {
		nameNorm := strings.TrimSpace(nonWordRe.ReplaceAllString(strings.ToLower(co.Name), " "))
		nameNorm = strings.TrimSpace(companySuffixRe.ReplaceAllString(nameNorm, ""))
		if len(nameNorm) <= 2 {
			continue
		}
		key := nameNorm
		// Active businesses collide on chain names; same name in a
		// different city is a different business.
		if co.Extra["listing_type"] == "active_business" {
			key += "|" + strings.TrimSpace(nonWordRe.ReplaceAllString(strings.ToLower(co.Location), " "))
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, co)
	}
	return out
}

func parseMoney(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	s = strings.ToUpper(strings.NewReplacer(",", "", "$", "", " ", "").Replace(s))
	mult := 1.0
	switch {
	case strings.Contains(s, "BILLION") || strings.Contains(s, "B"):
		mult = 1e9
		s, _, _ = strings.Cut(s, "B")
	case strings.Contains(s, "MILLION") || strings.Contains(s, "M"):
		mult = 1e6
		s, _, _ = strings.Cut(s, "M")
	case strings.Contains(s, "THOUSAND") || strings.Contains(s, "K"):
		mult = 1e3
		s, _, _ = strings.Cut(s, "K")
	}
	digits := regexp.MustCompile(`[^\d.]`).ReplaceAllString(s, "")
	v, err := strconv.ParseFloat(digits, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v * mult, true
}

// ScoreCompany rates a sourced company 0-100 against the criteria.
//
// Sector tokens are a hard gate: a listing that never mentions the sector
// scores 0 and drops below the relevance threshold. Keywords only boost.
func ScoreCompany(co *SourcedCompany, criteria SourcingCriteria) (int, []string) {
	score := 0
	var reasons []string

	combined := strings.ToLower(co.Name + " " + co.Description + " " + co.Location)
	sectorKws := tokenize(criteria.Sector)
	keywordKws := tokenize(criteria.Keywords)

	if len(sectorKws) > 0 {
		var matched []string
		for _, kw := range sectorKws {
			if strings.Contains(combined, kw) {
				matched = append(matched, kw)
			}
		}
		if len(matched) == 0 {
			return 0, []string{fmt.Sprintf("Sector %q not found in listing", criteria.Sector)}
		}
		sectorScore := 40
		if len(sectorKws) > 1 {
			sectorScore = 55 * len(matched) / len(sectorKws)
			if sectorScore < 20 {
				sectorScore = 20
			}
		}
		score += sectorScore
		reasons = append(reasons, fmt.Sprintf("Sector match (%d/%d): %s",
			len(matched), len(sectorKws), strings.Join(headOf(matched, 4), ", ")))
	} else {
		score += 30
		reasons = append(reasons, "No sector filter — showing all listings")
	}

	if len(keywordKws) > 0 {
		var matched []string
		for _, kw := range keywordKws {
			if strings.Contains(combined, kw) {
				matched = append(matched, kw)
			}
		}
		if len(matched) > 0 {
			kwScore := 25 * len(matched) / len(keywordKws)
			if kwScore < 8 {
				kwScore = 8
			}
			score += kwScore
			reasons = append(reasons, fmt.Sprintf("Keywords matched (%d/%d): %s",
				len(matched), len(keywordKws), strings.Join(headOf(matched, 4), ", ")))
		} else {
			reasons = append(reasons, "Keywords not found: "+strings.Join(headOf(keywordKws, 4), ", "))
		}
	}

	if criteria.Location != "" {
		locText := combined + " " + strings.ToLower(co.Location)
		for _, w := range strings.Fields(strings.ToLower(criteria.Location)) {
			if len(w) > 2 && strings.Contains(locText, w) {
				score += 10
				reasons = append(reasons, "Location: "+orUnknown(co.Location, criteria.Location))
				break
			}
		}
	}

	if co.Employees != "" {
		digits := regexp.MustCompile(`[^\d]`).ReplaceAllString(strings.Split(co.Employees, "-")[0], "")
		if empVal, err := strconv.Atoi(digits); err == nil {
			switch {
			case criteria.MinEmployees > 0 && criteria.MaxEmployees > 0 &&
				empVal >= criteria.MinEmployees && empVal <= criteria.MaxEmployees:
				score += 8
				reasons = append(reasons, fmt.Sprintf("Employees in range (%d)", empVal))
			case (criteria.MinEmployees > 0 && empVal < criteria.MinEmployees) ||
				(criteria.MaxEmployees > 0 && empVal > criteria.MaxEmployees):
				score -= 5
				reasons = append(reasons, fmt.Sprintf("Employees (%d) out of range", empVal))
			}
		}
	}

	revStr := orUnknown(co.Revenue, co.AskingPrice)
	if revVal, ok := parseMoney(revStr); ok {
		switch {
		case criteria.MinRevenue > 0 && criteria.MaxRevenue > 0:
			if revVal >= criteria.MinRevenue && revVal <= criteria.MaxRevenue {
				score += 8
				reasons = append(reasons, "Revenue/price in range ("+revStr+")")
			} else {
				score -= 4
				reasons = append(reasons, "Revenue/price out of range ("+revStr+")")
			}
		case criteria.MinRevenue > 0 && revVal >= criteria.MinRevenue:
			score += 4
			reasons = append(reasons, "Revenue above minimum ("+revStr+")")
		case criteria.MaxRevenue > 0 && revVal <= criteria.MaxRevenue:
			score += 4
			reasons = append(reasons, "Revenue within maximum ("+revStr+")")
		}
	}

	if co.AskingPrice != "" {
		score += 2
		reasons = append(reasons, "Has asking price: "+co.AskingPrice)
	}
	if co.Revenue != "" {
		score += 2
		reasons = append(reasons, "Has revenue data")
	}

	sourceBonus := map[string]int{
		"DealStream": 6, "NPPES": 6, "WebSearch": 3,
	}
	score += sourceBonus[co.Source]

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, reasons
}

func locationFilterTerms(location string) map[string]bool {
	loc := strings.ToLower(strings.TrimSpace(location))
	if loc == "" {
		return nil
	}
	terms := map[string]bool{loc: true}
	for _, w := range strings.Fields(loc) {
		if len(w) > 2 {
			terms[w] = true
		}
	}
	if abbrev, ok := usStateAbbrevs[loc]; ok {
		terms[strings.ToLower(abbrev)] = true
	}
	for name, abbrev := range usStateAbbrevs {
		if strings.EqualFold(loc, abbrev) {
			terms[name] = true
			terms[strings.ToLower(abbrev)] = true
		}
	}
	return terms
}

func passesLocationFilter(co SourcedCompany, terms map[string]bool) bool {
	resultLoc := strings.ToLower(strings.TrimSpace(co.Location))
	if resultLoc == "" {
		// Can't confirm a match without location data.
		return false
	}
	for term := range terms {
		if strings.Contains(resultLoc, term) {
			return true
		}
	}
	return false
}

func headOf(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
