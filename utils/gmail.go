package utils

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"gopkg.in/gomail.v2"
)

const gmailSendURL = "https://gmail.googleapis.com/gmail/v1/users/me/messages/send"

// MailTransport is the outbound email capability. The credential is
// supplied per call and never stored.
type MailTransport interface {
	Send(ctx context.Context, credential string, msg OutboundMessage) (*SendReceipt, error)
}

// OutboundMessage is one email handed to the transport.
type OutboundMessage struct {
	From     string
	To       string
	Subject  string
	BodyHTML string
	// ThreadID threads the message onto an existing provider conversation
	// when set (replies and follow-ups).
	ThreadID string
}

// SendReceipt carries the provider identifiers of a dispatched message.
type SendReceipt struct {
	ProviderMessageID string
	ProviderThreadID  string
}

// GmailTransport sends through the Gmail REST API using the caller's OAuth
// access token.
type GmailTransport struct {
	Timeout time.Duration
}

func NewGmailTransport() *GmailTransport {
	return &GmailTransport{Timeout: 30 * time.Second}
}

var htmlTagRe = regexp.MustCompile(`<[^>]+>`)

// Send builds a multipart MIME message (plain-text fallback plus HTML) and
// posts it raw to Gmail. Failures come back as SendError.
func (g *GmailTransport) Send(ctx context.Context, credential string, msg OutboundMessage) (*SendReceipt, error) {
	if credential == "" {
		return nil, &MissingCredentialError{}
	}

	m := gomail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)

	plain := strings.TrimSpace(html.UnescapeString(htmlTagRe.ReplaceAllString(msg.BodyHTML, "")))
	m.SetBody("text/plain", plain)
	m.AddAlternative("text/html", msg.BodyHTML)

	var mime bytes.Buffer
	if _, err := m.WriteTo(&mime); err != nil {
		return nil, &SendError{Reason: "building MIME message", Err: err}
	}

	payload := map[string]string{
		"raw": base64.URLEncoding.EncodeToString(mime.Bytes()),
	}
	if msg.ThreadID != "" {
		payload["threadId"] = msg.ThreadID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &SendError{Reason: "encoding request", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: credential,
		TokenType:   "Bearer",
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, gmailSendURL, bytes.NewReader(body))
	if err != nil {
		return nil, &SendError{Reason: "building request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &SendError{Reason: "gmail request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &SendError{
			Reason: fmt.Sprintf("gmail returned %d: %s", resp.StatusCode, truncate(string(respBody), 200)),
		}
	}

	var out struct {
		ID       string `json:"id"`
		ThreadID string `json:"threadId"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, &SendError{Reason: "decoding gmail response", Err: err}
	}

	return &SendReceipt{
		ProviderMessageID: out.ID,
		ProviderThreadID:  out.ThreadID,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
