package utils

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/badoux/checkmail"
	"github.com/likexian/whois"
)

// VerificationResult is the outcome of probing one candidate email during
// enrichment.
type VerificationResult struct {
	Email        string `json:"email"`
	Status       string `json:"status"` // valid, invalid, catch-all, unknown
	Details      string `json:"details"`
	IsReachable  bool   `json:"is_reachable"`
	IsBounceRisk bool   `json:"is_bounce_risk"`
	WHOIS        string `json:"whois,omitempty"`
}

var (
	// Free providers get submission ports probed first.
	freeEmailProviders = []string{
		"gmail.com", "yahoo.com", "outlook.com", "hotmail.com",
		"aol.com", "protonmail.com", "icloud.com", "mail.com",
	}

	mxCache = struct {
		sync.RWMutex
		m map[string][]*net.MX
	}{m: make(map[string][]*net.MX)}

	smtpTimeout = 15 * time.Second
)

// VerifyEmailAddress checks a candidate address: format, MX records, then
// an SMTP RCPT probe. A "valid" or "catch-all" result is good enough to
// attach the address to a contact; anything else keeps the candidate out.
func VerifyEmailAddress(email string) (*VerificationResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	result := &VerificationResult{
		Email:        email,
		Status:       "unknown",
		IsReachable:  false,
		IsBounceRisk: true,
	}

	if err := checkmail.ValidateFormat(email); err != nil {
		result.Status = "invalid"
		result.Details = "Invalid email format: " + err.Error()
		return result, nil
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		result.Status = "invalid"
		result.Details = "Invalid email format"
		return result, nil
	}
	domain := parts[1]

	if err := checkmail.ValidateHost(domain); err != nil {
		result.Status = "invalid"
		result.Details = "Domain validation failed: " + err.Error()
		return result, nil
	}

	smtpResult, err := verifySMTP(domain, email)
	if err != nil {
		return result, err
	}

	if whoisInfo, err := whois.Whois(domain); err == nil {
		smtpResult.WHOIS = whoisInfo
	}

	return smtpResult, nil
}

// ExtractDomain returns the domain part of an email address, or "" when
// the address is malformed.
func ExtractDomain(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) == 2 {
		return parts[1]
	}
	return ""
}

// EmailCandidates builds the usual first.last permutations for a person at
// a company domain. Order matters: most likely patterns first.
func EmailCandidates(firstName, lastName, domain string) []string {
	first := strings.ToLower(strings.TrimSpace(firstName))
	last := strings.ToLower(strings.TrimSpace(lastName))
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" || first == "" {
		return nil
	}

	var candidates []string
	add := func(local string) {
		if local == "" {
			return
		}
		candidates = append(candidates, local+"@"+domain)
	}

	if last != "" {
		add(first + "." + last)
		add(first)
		add(string(first[0]) + last)
		add(first + last)
		add(first + "_" + last)
	} else {
		add(first)
	}
	add("info")
	add("contact")
	return candidates
}

func isFreeEmailProvider(domain string) bool {
	for _, provider := range freeEmailProviders {
		if domain == provider {
			return true
		}
	}
	return false
}

func verifySMTP(domain, email string) (*VerificationResult, error) {
	result := &VerificationResult{
		Email:        email,
		Status:       "unknown",
		IsReachable:  false,
		IsBounceRisk: true,
	}

	mxRecords, err := getMXRecords(domain)
	if err != nil || len(mxRecords) == 0 {
		result.Status = "invalid"
		result.Details = "Domain has no MX records"
		return result, nil
	}

	for _, mx := range mxRecords {
		mailServer := strings.TrimSuffix(mx.Host, ".")

		portsToTry := []string{"25", "587", "465"}
		if isFreeEmailProvider(domain) {
			portsToTry = []string{"587", "465", "25"}
		}

		for _, port := range portsToTry {
			addr := fmt.Sprintf("%s:%s", mailServer, port)
			smtpResult, err := checkSMTP(addr, domain, email)
			if err == nil {
				return smtpResult, nil
			}
		}
	}

	result.Details = "All verification attempts failed"
	return result, nil
}

func getMXRecords(domain string) ([]*net.MX, error) {
	mxCache.RLock()
	if records, ok := mxCache.m[domain]; ok {
		mxCache.RUnlock()
		return records, nil
	}
	mxCache.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var resolver net.Resolver
	mxRecords, err := resolver.LookupMX(ctx, domain)
	if err != nil {
		return nil, err
	}

	mxCache.Lock()
	mxCache.m[domain] = mxRecords
	mxCache.Unlock()

	return mxRecords, nil
}

func checkSMTP(addr, domain, email string) (*VerificationResult, error) {
	conn, err := net.DialTimeout("tcp", addr, smtpTimeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, domain)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	deadline := time.Now().Add(smtpTimeout)
	conn.SetDeadline(deadline)

	if err = client.Hello("verify.dealforge.io"); err != nil {
		return &VerificationResult{
			Email:        email,
			Status:       "unknown",
			Details:      "HELO failed: " + err.Error(),
			IsBounceRisk: true,
		}, nil
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err = client.StartTLS(nil); err != nil {
			return &VerificationResult{
				Email:        email,
				Status:       "unknown",
				Details:      "STARTTLS failed: " + err.Error(),
				IsBounceRisk: true,
			}, nil
		}
	}

	if err = client.Mail("noreply@dealforge.io"); err != nil {
		return &VerificationResult{
			Email:        email,
			Status:       "unknown",
			Details:      "MAIL FROM failed: " + err.Error(),
			IsBounceRisk: true,
		}, nil
	}

	err = client.Rcpt(email)
	if err == nil {
		return &VerificationResult{
			Email:        email,
			Status:       "valid",
			Details:      "Recipient accepted",
			IsReachable:  true,
			IsBounceRisk: false,
		}, nil
	}

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "250"):
		// Some servers accept every RCPT.
		return &VerificationResult{
			Email:        email,
			Status:       "catch-all",
			Details:      "Server accepts all emails (catch-all)",
			IsReachable:  true,
			IsBounceRisk: false,
		}, nil
	case strings.Contains(errMsg, "550"):
		return &VerificationResult{
			Email:        email,
			Status:       "invalid",
			Details:      "Mailbox doesn't exist",
			IsReachable:  false,
			IsBounceRisk: true,
		}, nil
	case strings.Contains(errMsg, "421"), strings.Contains(errMsg, "450"), strings.Contains(errMsg, "451"):
		return &VerificationResult{
			Email:        email,
			Status:       "unknown",
			Details:      "Temporary failure: " + err.Error(),
			IsReachable:  false,
			IsBounceRisk: true,
		}, nil
	default:
		return &VerificationResult{
			Email:        email,
			Status:       "unknown",
			Details:      "SMTP error: " + err.Error(),
			IsReachable:  false,
			IsBounceRisk: true,
		}, nil
	}
}
