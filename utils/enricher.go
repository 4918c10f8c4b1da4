package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"dealforge/models"
)

// Enricher finds the principal owner of a company: web research, LLM
// extraction, email discovery with SMTP probing, and an optional Apollo.io
// fallback. Results land on the company's principal-owner contact.
type Enricher struct {
	DB           *gorm.DB
	LLM          TextGenerator
	Search       WebSearcher
	Logger       *log.Logger
	ApolloAPIKey string
	HTTP         *http.Client

	// ProjectDelay spaces out companies in a project-wide run so search
	// providers don't throttle us.
	ProjectDelay time.Duration
}

func NewEnricher(db *gorm.DB, llm TextGenerator, search WebSearcher, logger *log.Logger, apolloKey string) *Enricher {
	return &Enricher{
		DB:           db,
		LLM:          llm,
		Search:       search,
		Logger:       logger,
		ApolloAPIKey: apolloKey,
		HTTP:         &http.Client{Timeout: 20 * time.Second},
		ProjectDelay: 1500 * time.Millisecond,
	}
}

// EnrichmentResult is the outcome of enriching one company.
type EnrichmentResult struct {
	Status      string `json:"status"` // completed, failed, already_enriched, error
	ContactID   uint   `json:"contact_id,omitempty"`
	Name        string `json:"name,omitempty"`
	Title       string `json:"title,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	LinkedinURL string `json:"linkedin_url,omitempty"`
	Source      string `json:"source,omitempty"`
	IsFallback  bool   `json:"is_fallback_contact,omitempty"`
	Message     string `json:"message,omitempty"`
	CompanyID   uint   `json:"company_id,omitempty"`
}

// ownerProfile is what the LLM extracts from raw research text.
type ownerProfile struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	LinkedinURL string `json:"linkedin_url"`
	FacebookURL string `json:"facebook_url"`
	Confidence  string `json:"confidence"`
}

// EnrichCompany runs the full enrichment pipeline for one company.
// Companies with a completed principal owner are skipped, so re-running is
// safe and cheap.
func (e *Enricher) EnrichCompany(ctx context.Context, companyID uint) (*EnrichmentResult, error) {
	var company models.Company
	if err := e.DB.First(&company, companyID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &NotFoundError{Entity: "company", ID: companyID}
		}
		return nil, err
	}

	var existing models.Contact
	err := e.DB.Where("company_id = ? AND is_principal_owner = ? AND enrichment_status = ?",
		company.ID, true, models.EnrichmentCompleted).First(&existing).Error
	if err == nil {
		return &EnrichmentResult{
			Status:    "already_enriched",
			ContactID: existing.ID,
			Name:      existing.Name,
			Email:     existing.Email,
		}, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	website := company.Website
	discovery := map[string]interface{}{}

	// Phase 0: the stored website is often a registry listing or missing
	// outright. Find the real one before anything else.
	if website == "" || IsRegistryOrAggregator(website) {
		if sc, ok := e.Search.(*SearchClient); ok {
			if found := sc.DiscoverCompanyWebsite(ctx, company.Name, company.HQLocation); found != "" {
				e.Logger.Printf("Discovered website %s for %s", found, company.Name)
				website = found
				discovery["domain_source"] = "discovered"
				e.DB.Model(&company).Update("website", found)
			} else {
				discovery["domain_source"] = "none"
				website = ""
			}
		}
	} else {
		discovery["domain_source"] = "stored"
	}
	domain := domainOf(website)

	// Phase 1: parallel web research, then LLM extraction.
	e.Logger.Printf("Researching owner of %s", company.Name)
	research := e.researchOwner(ctx, company.Name, company.HQLocation, website)
	owner := e.extractOwner(ctx, company.Name, company.HQLocation, website, research, false)

	isFallback := false
	source := models.EnrichmentSourceWeb

	// Phase 2: no owner found, look for the most senior person instead.
	if owner.Name == "" && owner.Email == "" {
		e.Logger.Printf("Owner not found for %s, searching senior employees", company.Name)
		senior := e.researchSeniorEmployees(ctx, company.Name, company.HQLocation, domain)
		if len(senior) > 0 {
			for k, v := range senior {
				research[k] = v
			}
			owner = e.extractOwner(ctx, company.Name, company.HQLocation, website, senior, true)
			if owner.Name != "" {
				isFallback = true
			}
		}
	}

	// Phase 3: name but no email. Scrape the site, then probe candidate
	// patterns over SMTP.
	domainUsable := domain != "" && !IsRegistryOrAggregator("https://"+domain)
	if owner.Name != "" && owner.Email == "" && domainUsable {
		if scraped := e.scrapeWebsiteEmails(ctx, website); len(scraped) > 0 {
			owner.Email = scraped[0]
			discovery["method"] = "website_scraped"
			discovery["verified_email"] = scraped[0]
		} else {
			first, last := CleanNameParts(owner.Name)
			candidates := EmailCandidates(first, last, domain)
			discovery["candidates_tested"] = len(candidates)
			if email, method := e.probeCandidates(candidates); email != "" {
				owner.Email = email
				discovery["method"] = method
				discovery["verified_email"] = email
			}
		}
	}

	// Apollo fallback when web and SMTP came up empty.
	if owner.Email == "" && e.ApolloAPIKey != "" {
		if apollo := e.enrichWithApollo(ctx, company.Name, domain, owner.Name); apollo != nil {
			mergeProfile(&owner, apollo)
			if apollo.Email != "" {
				source = models.EnrichmentSourceApollo
				discovery["method"] = "apollo"
				discovery["verified_email"] = apollo.Email
			}
		}
	}

	enrichmentData := map[string]interface{}{
		"research":            truncateResearch(research, 500),
		"email_discovery":     discovery,
		"is_fallback_contact": isFallback,
	}

	if owner.Name == "" && owner.Email == "" {
		contact, err := e.upsertPrincipalOwner(company.ID, models.Contact{
			Name:             "Owner of " + company.Name,
			IsPrincipalOwner: true,
			EnrichmentStatus: models.EnrichmentFailed,
			EnrichmentData:   enrichmentData,
			EnrichmentSource: source,
			EnrichedAt:       timePtr(time.Now()),
		})
		if err != nil {
			return nil, err
		}
		return &EnrichmentResult{
			Status:    "failed",
			ContactID: contact.ID,
			Message:   "Could not identify principal owner from available sources. You can add contact info manually.",
		}, nil
	}

	enrichmentData["extracted"] = owner
	contactName := owner.Name
	if contactName == "" {
		contactName = "Owner of " + company.Name
	}

	contact, err := e.upsertPrincipalOwner(company.ID, models.Contact{
		Name:             contactName,
		Title:            owner.Title,
		Email:            strings.ToLower(owner.Email),
		Phone:            owner.Phone,
		LinkedinURL:      owner.LinkedinURL,
		FacebookURL:      owner.FacebookURL,
		IsPrincipalOwner: true,
		EnrichmentStatus: models.EnrichmentCompleted,
		EnrichmentData:   enrichmentData,
		EnrichmentSource: source,
		EnrichedAt:       timePtr(time.Now()),
	})
	if err != nil {
		return nil, err
	}

	e.Logger.Printf("Enrichment completed: %s (%s) for %s [fallback=%v source=%s]",
		contactName, orUnknown(owner.Email, "no email"), company.Name, isFallback, source)

	return &EnrichmentResult{
		Status:      "completed",
		ContactID:   contact.ID,
		Name:        contact.Name,
		Title:       contact.Title,
		Email:       contact.Email,
		Phone:       contact.Phone,
		LinkedinURL: contact.LinkedinURL,
		Source:      source,
		IsFallback:  isFallback,
	}, nil
}

// ProjectEnrichmentSummary tallies a project-wide run.
type ProjectEnrichmentSummary struct {
	Total    int                 `json:"total"`
	Enriched int                 `json:"enriched"`
	Failed   int                 `json:"failed"`
	Skipped  int                 `json:"skipped"`
	Results  []*EnrichmentResult `json:"results"`
}

// EnrichProject enriches every company in a project that has no completed
// principal owner. Sequential with a delay between companies; one failure
// never stops the run.
func (e *Enricher) EnrichProject(ctx context.Context, projectID uint) (*ProjectEnrichmentSummary, error) {
	var links []models.ProjectCompany
	if err := e.DB.Where("project_id = ?", projectID).Find(&links).Error; err != nil {
		return nil, err
	}

	summary := &ProjectEnrichmentSummary{Total: len(links)}
	if len(links) == 0 {
		summary.Results = []*EnrichmentResult{}
		return summary, nil
	}

	companyIDs := make([]uint, 0, len(links))
	for _, l := range links {
		companyIDs = append(companyIDs, l.CompanyID)
	}

	var done []uint
	if err := e.DB.Model(&models.Contact{}).
		Where("company_id IN ? AND is_principal_owner = ? AND enrichment_status = ?",
			companyIDs, true, models.EnrichmentCompleted).
		Pluck("company_id", &done).Error; err != nil {
		return nil, err
	}
	doneSet := make(map[uint]bool, len(done))
	for _, id := range done {
		doneSet[id] = true
	}
	summary.Skipped = len(doneSet)

	for _, cid := range companyIDs {
		if doneSet[cid] {
			continue
		}
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		res, err := e.EnrichCompany(ctx, cid)
		if err != nil {
			e.Logger.Printf("Error enriching company %d: %v", cid, err)
			summary.Failed++
			summary.Results = append(summary.Results, &EnrichmentResult{
				Status: "error", CompanyID: cid, Message: err.Error(),
			})
		} else {
			summary.Results = append(summary.Results, res)
			if res.Status == "completed" {
				summary.Enriched++
			} else {
				summary.Failed++
			}
		}

		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		case <-time.After(e.ProjectDelay):
		}
	}
	return summary, nil
}

// EnrichmentStatus reports where a company's principal owner stands.
type EnrichmentStatus struct {
	Status  string          `json:"status"` // not_started, pending, completed, failed
	Contact *models.Contact `json:"contact"`
}

func (e *Enricher) GetStatus(companyID uint) (*EnrichmentStatus, error) {
	var contact models.Contact
	err := e.DB.Where("company_id = ? AND is_principal_owner = ?", companyID, true).
		Order("updated_at DESC").First(&contact).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return &EnrichmentStatus{Status: "not_started"}, nil
		}
		return nil, err
	}
	status := contact.EnrichmentStatus
	if status == "" {
		status = "unknown"
	}
	return &EnrichmentStatus{Status: status, Contact: &contact}, nil
}

// researchOwner fans out the owner searches concurrently and merges the
// snippet text by search type.
func (e *Enricher) researchOwner(ctx context.Context, companyName, location, website string) map[string]string {
	if website != "" {
		for _, bad := range []string{"npiregistry", "openstreetmap", "google.com/maps"} {
			if strings.Contains(website, bad) {
				website = ""
				break
			}
		}
	}
	domain := domainOf(website)

	state := ""
	if m := regexp.MustCompile(`\b([A-Z]{2})\b`).FindStringSubmatch(location); m != nil {
		state = m[1]
	}

	type task struct {
		key   string
		query string
		chars int
	}
	tasks := []task{
		{"search_owner", fmt.Sprintf(`"%s" owner OR CEO OR founder OR president %s`, companyName, location), 3000},
		{"search_contact", fmt.Sprintf(`"%s" owner email contact %s`, companyName, domain), 2500},
		{"search_linkedin", fmt.Sprintf(`site:linkedin.com/in "%s" owner OR CEO OR founder`, companyName), 2000},
		{"search_facebook", fmt.Sprintf(`site:facebook.com "%s" %s`, companyName, location), 1500},
		{"search_bbb", fmt.Sprintf(`site:bbb.org "%s" %s`, companyName, location), 2000},
		{"search_crunchbase", fmt.Sprintf(`site:crunchbase.com "%s"`, companyName), 1500},
	}
	if state != "" {
		tasks = append(tasks, task{
			"search_filings",
			fmt.Sprintf(`"%s" "registered agent" OR "registered owner" OR "principal" %s`, companyName, state),
			2000,
		})
	}

	research := make(map[string]string)
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, t := range tasks {
		t := t
		g.Go(func() error {
			text, err := e.Search.SearchText(gctx, t.query, t.chars)
			if err != nil || text == "" {
				return nil
			}
			mu.Lock()
			research[t.key] = text
			mu.Unlock()
			return nil
		})
	}

	// About/team pages on the company's own site.
	if website != "" && strings.HasPrefix(website, "http") {
		base := strings.TrimSuffix(website, "/")
		for _, page := range []string{"/about", "/team", "/leadership", "/about-us", "/our-team"} {
			pageURL := base + page
			g.Go(func() error {
				text, err := e.Search.FetchText(gctx, pageURL, 3000)
				if err != nil || text == "" {
					return nil
				}
				mu.Lock()
				if existing := research["website_about"]; existing != "" {
					research["website_about"] = existing + " " + text
				} else {
					research["website_about"] = text
				}
				mu.Unlock()
				return nil
			})
		}
	}

	g.Wait()
	return research
}

func (e *Enricher) researchSeniorEmployees(ctx context.Context, companyName, location, domain string) map[string]string {
	queries := map[string]string{
		"search_senior":        fmt.Sprintf(`"%s" VP OR "Vice President" OR Director OR COO OR CFO OR "Managing Director" %s`, companyName, location),
		"search_linkedin_mgmt": fmt.Sprintf(`site:linkedin.com/in "%s" "Vice President" OR Director OR Manager`, companyName),
		"search_team":          fmt.Sprintf(`"%s" "our team" OR "meet the team" OR "leadership team" %s`, companyName, domain),
	}

	research := make(map[string]string)
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for key, query := range queries {
		key, query := key, query
		g.Go(func() error {
			text, err := e.Search.SearchText(gctx, query, 2500)
			if err != nil || text == "" {
				return nil
			}
			mu.Lock()
			research[key] = text
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return research
}

func (e *Enricher) extractOwner(ctx context.Context, companyName, location, website string, research map[string]string, fallbackMode bool) ownerProfile {
	var sections []string
	for k, v := range research {
		if v != "" {
			sections = append(sections, fmt.Sprintf("[%s]\n%s", strings.ToUpper(k), v))
		}
	}
	if len(sections) == 0 {
		return ownerProfile{}
	}
	researchText := capChars(strings.Join(sections, "\n\n"), 8000)

	targetDesc := "the PRINCIPAL OWNER, CEO, PRESIDENT, or FOUNDER of this specific company. " +
		"Only include information you are confident about from the research."
	if fallbackMode {
		targetDesc = "the MOST SENIOR decision-maker available. Prioritize in this order: " +
			"CEO/Owner/President/Founder > COO/CFO/Managing Director > " +
			"VP/Senior Director > Director > Senior Manager. " +
			"Set the title field to their ACTUAL title, not 'Owner' if they're a VP."
	}

	prompt := fmt.Sprintf(`You are a research analyst. Extract contact information for %s

COMPANY: %s
LOCATION: %s
WEBSITE: %s

RESEARCH DATA:
%s

Do not guess or fabricate. Return ONLY a JSON object:
{
  "name": "Full Name",
  "title": "Their actual title (CEO, Owner, VP Operations, etc.)",
  "email": "their@email.com",
  "phone": "phone number",
  "linkedin_url": "https://linkedin.com/in/...",
  "facebook_url": "https://facebook.com/...",
  "confidence": "high|medium|low"
}

Use null for unknown fields. Return ONLY the JSON. No other text.`,
		targetDesc, companyName, location, website, researchText)

	raw, err := e.LLM.Generate(ctx, prompt, 500)
	if err != nil {
		e.Logger.Printf("Owner extraction failed for %s: %v", companyName, err)
		return ruleBasedExtraction(research)
	}

	jsonStr, ok := ExtractJSONObject(raw)
	if !ok {
		return ruleBasedExtraction(research)
	}
	var profile ownerProfile
	if err := json.Unmarshal([]byte(jsonStr), &profile); err != nil {
		e.Logger.Printf("Failed to parse owner extraction for %s: %v", companyName, err)
		return ruleBasedExtraction(research)
	}
	return profile
}

var (
	emailRe    = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	linkedinRe = regexp.MustCompile(`https?://(?:www\.)?linkedin\.com/in/[a-zA-Z0-9\-_%]+`)
	facebookRe = regexp.MustCompile(`https?://(?:www\.)?facebook\.com/[a-zA-Z0-9.\-_]+`)
	phoneRe    = regexp.MustCompile(`(?:\+?1[\-.\s]?)?\(?\d{3}\)?[\-.\s]?\d{3}[\-.\s]?\d{4}`)
	// Name adjacent to a leadership title, in either order.
	titlePat     = `(?:CEO|Chief Executive Officer|Owner|President|Founder|Managing Partner|Principal|Director|Vice President|VP|COO|CFO|Managing Director)`
	nameBeforeRe = regexp.MustCompile(`([A-Z][a-z]+ (?:[A-Z]\.? )?[A-Z][a-z]+)[\s,\-]+(?:is |as )?` + titlePat)
	nameAfterRe  = regexp.MustCompile(titlePat + `[\s:,\-]+([A-Z][a-z]+ (?:[A-Z]\.? )?[A-Z][a-z]+)`)
	titleOnlyRe  = regexp.MustCompile(titlePat)
)

var genericPrefixes = []string{
	"info@", "contact@", "support@", "hello@", "admin@", "sales@",
	"office@", "mail@", "noreply@", "webmaster@", "help@", "enquiries@",
	"general@", "careers@", "jobs@", "privacy@", "press@", "media@",
}

func isGenericEmail(email string) bool {
	lower := strings.ToLower(email)
	for _, g := range genericPrefixes {
		if strings.HasPrefix(lower, g) {
			return true
		}
	}
	return false
}

// ruleBasedExtraction is the regex fallback when the LLM is unavailable.
// Less accurate but keeps enrichment limping along without an API key.
func ruleBasedExtraction(research map[string]string) ownerProfile {
	var combined strings.Builder
	for _, v := range research {
		combined.WriteString(v)
		combined.WriteString(" ")
	}
	text := combined.String()
	if strings.TrimSpace(text) == "" {
		return ownerProfile{}
	}

	var profile ownerProfile
	for _, email := range emailRe.FindAllString(text, -1) {
		if !isGenericEmail(email) {
			profile.Email = email
			break
		}
	}
	if m := linkedinRe.FindString(text); m != "" {
		profile.LinkedinURL = m
	}
	if m := facebookRe.FindString(text); m != "" {
		profile.FacebookURL = m
	}
	if m := phoneRe.FindString(text); m != "" {
		profile.Phone = m
	}
	if m := nameBeforeRe.FindStringSubmatch(text); m != nil {
		profile.Name = strings.TrimSpace(m[1])
	} else if m := nameAfterRe.FindStringSubmatch(text); m != nil {
		profile.Name = strings.TrimSpace(m[1])
	}
	if profile.Name != "" {
		profile.Title = titleOnlyRe.FindString(text)
	}
	profile.Confidence = "low"
	return profile
}

// scrapeWebsiteEmails pulls personal email addresses off the company's
// contact and team pages.
func (e *Enricher) scrapeWebsiteEmails(ctx context.Context, website string) []string {
	if website == "" || !strings.HasPrefix(website, "http") {
		return nil
	}
	base := strings.TrimSuffix(website, "/")
	pages := []string{
		base, base + "/contact", base + "/contact-us",
		base + "/about", base + "/about-us", base + "/team", base + "/our-team",
	}

	var mu sync.Mutex
	var found []string
	seen := make(map[string]bool)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, page := range pages {
		page := page
		g.Go(func() error {
			text, err := e.Search.FetchText(gctx, page, 5000)
			if err != nil || text == "" {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			for _, email := range emailRe.FindAllString(text, -1) {
				lower := strings.ToLower(email)
				if seen[lower] || isGenericEmail(lower) {
					continue
				}
				if strings.HasSuffix(lower, ".png") || strings.HasSuffix(lower, ".jpg") ||
					strings.HasSuffix(lower, ".gif") || strings.HasSuffix(lower, ".svg") {
					continue
				}
				seen[lower] = true
				found = append(found, lower)
			}
			return nil
		})
	}
	g.Wait()
	return found
}

// probeCandidates SMTP-verifies candidate addresses in order. Returns the
// first deliverable one plus how we concluded that, or the best guess when
// every probe is inconclusive.
func (e *Enricher) probeCandidates(candidates []string) (string, string) {
	if len(candidates) == 0 {
		return "", ""
	}
	for _, candidate := range candidates {
		result, err := VerifyEmailAddress(candidate)
		if err != nil {
			continue
		}
		switch result.Status {
		case "valid":
			return candidate, "smtp_verified"
		case "catch-all":
			return candidate, "catch_all_guess"
		}
	}
	// Inconclusive everywhere: first.last is statistically the best bet.
	return candidates[0], "pattern_guess"
}

// CleanNameParts splits a full name into first/last, stripping titles and
// suffixes like Dr. and Jr.
func CleanNameParts(fullName string) (string, string) {
	prefixes := map[string]bool{"dr": true, "mr": true, "mrs": true, "ms": true, "prof": true}
	suffixes := map[string]bool{
		"jr": true, "sr": true, "ii": true, "iii": true, "iv": true,
		"md": true, "phd": true, "esq": true, "cpa": true, "dds": true, "do": true,
	}

	parts := strings.Fields(fullName)
	for len(parts) > 0 && prefixes[strings.ToLower(strings.Trim(parts[0], ".,"))] {
		parts = parts[1:]
	}
	for len(parts) > 0 && suffixes[strings.ToLower(strings.Trim(parts[len(parts)-1], ".,"))] {
		parts = parts[:len(parts)-1]
	}

	alpha := regexp.MustCompile(`[^a-z]`)
	if len(parts) == 0 {
		return "", ""
	}
	first := alpha.ReplaceAllString(strings.ToLower(parts[0]), "")
	if len(parts) < 2 {
		return first, ""
	}
	last := alpha.ReplaceAllString(strings.ToLower(parts[len(parts)-1]), "")
	return first, last
}

// enrichWithApollo queries Apollo.io for leadership contacts at the
// company. Returns nil when nothing useful comes back.
func (e *Enricher) enrichWithApollo(ctx context.Context, companyName, domain, ownerName string) *ownerProfile {
	search := map[string]interface{}{
		"api_key":             e.ApolloAPIKey,
		"q_organization_name": companyName,
		"person_titles":       []string{"CEO", "Owner", "President", "Founder", "Managing Partner", "Principal"},
		"page":                1,
		"per_page":            3,
	}
	if domain != "" {
		search["q_organization_domains"] = domain
	}

	var peopleResp struct {
		People []struct {
			Name         string `json:"name"`
			Title        string `json:"title"`
			Email        string `json:"email"`
			LinkedinURL  string `json:"linkedin_url"`
			PhoneNumbers []struct {
				SanitizedNumber string `json:"sanitized_number"`
			} `json:"phone_numbers"`
		} `json:"people"`
	}
	if err := e.apolloPost(ctx, "https://api.apollo.io/v1/mixed_people/search", search, &peopleResp); err != nil {
		e.Logger.Printf("Apollo people search failed: %v", err)
	} else if len(peopleResp.People) > 0 {
		p := peopleResp.People[0]
		profile := &ownerProfile{
			Name:        p.Name,
			Title:       p.Title,
			Email:       p.Email,
			LinkedinURL: p.LinkedinURL,
		}
		if len(p.PhoneNumbers) > 0 {
			profile.Phone = p.PhoneNumbers[0].SanitizedNumber
		}
		return profile
	}

	// Known name: try the email finder instead.
	if ownerName != "" && domain != "" {
		parts := strings.Fields(ownerName)
		if len(parts) >= 2 {
			var matchResp struct {
				Person struct {
					Name        string `json:"name"`
					Title       string `json:"title"`
					Email       string `json:"email"`
					LinkedinURL string `json:"linkedin_url"`
				} `json:"person"`
			}
			match := map[string]interface{}{
				"api_key":           e.ApolloAPIKey,
				"first_name":        parts[0],
				"last_name":         strings.Join(parts[1:], " "),
				"organization_name": companyName,
				"domain":            domain,
			}
			if err := e.apolloPost(ctx, "https://api.apollo.io/v1/people/match", match, &matchResp); err == nil &&
				matchResp.Person.Email != "" {
				return &ownerProfile{
					Name:        firstNonEmpty(matchResp.Person.Name, ownerName),
					Title:       matchResp.Person.Title,
					Email:       matchResp.Person.Email,
					LinkedinURL: matchResp.Person.LinkedinURL,
				}
			}
		}
	}
	return nil
}

func (e *Enricher) apolloPost(ctx context.Context, endpoint string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := e.HTTP.Do(req)
	if err != nil {
		return &ExternalServiceError{Service: "apollo", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &ExternalServiceError{Service: "apollo", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// upsertPrincipalOwner writes the enriched contact and guarantees the
// company ends up with exactly one principal owner.
func (e *Enricher) upsertPrincipalOwner(companyID uint, data models.Contact) (*models.Contact, error) {
	var contact models.Contact
	err := e.DB.Where("company_id = ? AND is_principal_owner = ?", companyID, true).
		Order("updated_at DESC").First(&contact).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		data.CompanyID = companyID
		if createErr := e.DB.Create(&data).Error; createErr != nil {
			return nil, createErr
		}
		contact = data
	case err != nil:
		return nil, err
	default:
		updates := map[string]interface{}{
			"name":              data.Name,
			"is_principal_owner": true,
			"enrichment_status": data.EnrichmentStatus,
			"enrichment_data":   data.EnrichmentData,
			"enrichment_source": data.EnrichmentSource,
			"enriched_at":       data.EnrichedAt,
		}
		if data.Title != "" {
			updates["title"] = data.Title
		}
		if data.Email != "" {
			updates["email"] = data.Email
		}
		if data.Phone != "" {
			updates["phone"] = data.Phone
		}
		if data.LinkedinURL != "" {
			updates["linkedin_url"] = data.LinkedinURL
		}
		if data.FacebookURL != "" {
			updates["facebook_url"] = data.FacebookURL
		}
		if err := e.DB.Model(&contact).Updates(updates).Error; err != nil {
			return nil, err
		}
	}

	// Demote any stragglers so the flag stays unique per company.
	if err := e.DB.Model(&models.Contact{}).
		Where("company_id = ? AND is_principal_owner = ? AND id <> ?", companyID, true, contact.ID).
		Update("is_principal_owner", false).Error; err != nil {
		return nil, err
	}
	return &contact, nil
}

func mergeProfile(dst *ownerProfile, src *ownerProfile) {
	if dst.Name == "" {
		dst.Name = src.Name
	}
	if dst.Title == "" {
		dst.Title = src.Title
	}
	if dst.Email == "" {
		dst.Email = src.Email
	}
	if dst.Phone == "" {
		dst.Phone = src.Phone
	}
	if dst.LinkedinURL == "" {
		dst.LinkedinURL = src.LinkedinURL
	}
}

func truncateResearch(research map[string]string, n int) map[string]string {
	out := make(map[string]string, len(research))
	for k, v := range research {
		out[k] = capChars(v, n)
	}
	return out
}

func domainOf(website string) string {
	if website == "" {
		return ""
	}
	u, err := url.Parse(website)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func timePtr(t time.Time) *time.Time { return &t }
