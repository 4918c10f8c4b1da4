package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"

	"dealforge/models"
)

// TextGenerator is the single-shot completion capability the drafter needs.
// *LLMClient satisfies it; tests substitute a canned implementation.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Drafter turns (company, contact, thread history, message type) into a
// generated subject/body pair. Deterministic post-processing wraps one
// nondeterministic completion call.
type Drafter struct {
	DB        *gorm.DB
	LLM       TextGenerator
	Logger    *log.Logger
	FirmName  string
	FirmIntro string
}

func NewDrafter(db *gorm.DB, llm TextGenerator, logger *log.Logger, firmName, firmIntro string) *Drafter {
	if firmName == "" {
		firmName = "Dealforge Capital"
	}
	return &Drafter{DB: db, LLM: llm, Logger: logger, FirmName: firmName, FirmIntro: firmIntro}
}

type draftJSON struct {
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html"`
}

// GenerateDraft appends a new draft message to the thread at the next
// sequence number. Regeneration is just calling this again: prior drafts
// stay put and callers pick the latest one.
func (d *Drafter) GenerateDraft(ctx context.Context, threadID uint, messageType, customPrompt string, slots []models.ProposedSlot) (*models.OutreachThreadMessage, error) {
	var thread models.OutreachThread
	err := d.DB.Preload("Company").Preload("Contact").Preload("Project").
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		First(&thread, threadID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &NotFoundError{Entity: "thread", ID: threadID}
		}
		return nil, err
	}

	contact := thread.Contact

	// Late-bind the principal owner if the thread predates enrichment.
	if contact == nil {
		owner, err := models.PrincipalOwner(d.DB, thread.CompanyID)
		if err != nil {
			return nil, err
		}
		if owner != nil {
			thread.ContactID = &owner.ID
			thread.Contact = owner
			contact = owner
			if err := d.DB.Model(&thread).Update("contact_id", owner.ID).Error; err != nil {
				return nil, err
			}
		}
	}

	if contact == nil {
		return nil, &MissingContactError{
			Reason: "thread has no contact associated; enrich this company or add contact info manually",
		}
	}
	if !contact.HasDeliverableEmail() {
		return nil, &MissingContactError{
			Reason: fmt.Sprintf("contact %q has no email address; add an email to this contact", contact.Name),
		}
	}

	var prompt string
	var maxTokens int
	switch messageType {
	case models.MessageInitial:
		prompt = d.initialPrompt(&thread, contact, customPrompt)
		maxTokens = 400
	case models.MessageFollowUp:
		prompt = d.followUpPrompt(&thread, contact)
		maxTokens = 250
	case models.MessageSchedulingReply:
		if len(slots) < 2 {
			return nil, &InsufficientSlotsError{Given: len(slots)}
		}
		prompt = d.schedulingPrompt(&thread, contact, slots)
		maxTokens = 400
	default:
		return nil, fmt.Errorf("unknown message type %q", messageType)
	}

	raw, err := d.LLM.Generate(ctx, prompt, maxTokens)
	if err != nil {
		return nil, err
	}

	draft := d.parseDraft(raw, d.fallbackSubject(messageType, &thread))
	if messageType == models.MessageSchedulingReply {
		draft.BodyHTML = ensureSlotsEmbedded(draft.BodyHTML, slots)
	}

	seq, err := models.NextSequence(d.DB, thread.ID)
	if err != nil {
		return nil, err
	}

	message := models.OutreachThreadMessage{
		ThreadID:    thread.ID,
		Sequence:    seq,
		MessageType: messageType,
		ToEmail:     contact.Email,
		Subject:     draft.Subject,
		BodyHTML:    draft.BodyHTML,
		Status:      models.MessageDraft,
	}
	if err := d.DB.Create(&message).Error; err != nil {
		return nil, err
	}

	if messageType == models.MessageFollowUp {
		if err := d.DB.Model(&thread).
			Update("follow_up_count", gorm.Expr("follow_up_count + ?", 1)).Error; err != nil {
			return nil, err
		}
	}

	d.Logger.Printf("Generated %s draft seq=%d for thread %d (%s)",
		messageType, seq, thread.ID, contact.Email)
	return &message, nil
}

// UpdateMessage edits a draft or approved message. Sent messages are
// immutable.
func (d *Drafter) UpdateMessage(messageID uint, subject, bodyHTML, status *string) (*models.OutreachThreadMessage, error) {
	var message models.OutreachThreadMessage
	if err := d.DB.First(&message, messageID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &NotFoundError{Entity: "message", ID: messageID}
		}
		return nil, err
	}

	if !message.Editable() {
		return nil, &ImmutableStateError{
			Reason: fmt.Sprintf("message %d is %s and can no longer be edited", message.ID, message.Status),
		}
	}

	if subject != nil {
		message.Subject = *subject
	}
	if bodyHTML != nil {
		message.BodyHTML = *bodyHTML
	}
	if status != nil {
		if *status != models.MessageDraft && *status != models.MessageApproved {
			return nil, &ImmutableStateError{
				Reason: fmt.Sprintf("message status can only be set to draft or approved, not %q", *status),
			}
		}
		message.Status = *status
	}

	if err := d.DB.Save(&message).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

// ComposeCampaignEmail generates one personalized email for the legacy
// flat campaign model from its subject template and body prompt.
func (d *Drafter) ComposeCampaignEmail(ctx context.Context, company *models.Company, contact *models.Contact, project *models.Project, campaign *models.OutreachCampaign) (subject, bodyHTML string, err error) {
	prompt := fmt.Sprintf(`You are a skilled business development professional writing a personalized outreach email.

RECIPIENT:
- Name: %s
- Title: %s
- Company: %s
- Location: %s
- Sector: %s
- Company Revenue: %s
- Employees: %s

PROJECT CONTEXT (our investment thesis):
- Project: %s
- Description: %s

CAMPAIGN INSTRUCTIONS:
- Subject line guidance: %s
- Email approach/angle: %s

IMPORTANT RULES:
1. Reference specific details about their company, their role, their industry
2. Keep it concise (3-5 short paragraphs max)
3. Sound natural and human, not like a template
4. Include a clear but soft call-to-action (suggest a brief call)
5. Do NOT use generic phrases like "I came across your company"
6. Sign off with just a first name placeholder: [SENDER_NAME]

Return ONLY a JSON object:
{"subject": "...", "body_html": "<p>...</p>"}`,
		contact.Name, orUnknown(contact.Title, "Owner/Principal"), company.Name,
		orUnknown(company.HQLocation, "Unknown"), orUnknown(company.Sector, "Unknown"),
		revenueRange(company), employeeStr(company),
		project.Name, orUnknown(project.Description, "Investment opportunity evaluation"),
		campaign.SubjectTemplate, campaign.BodyPrompt)

	raw, err := d.LLM.Generate(ctx, prompt, 600)
	if err != nil {
		return "", "", err
	}
	draft := d.parseDraft(raw, fmt.Sprintf("Regarding %s", company.Name))
	return draft.Subject, draft.BodyHTML, nil
}

// --- prompt builders ---

func (d *Drafter) initialPrompt(thread *models.OutreachThread, contact *models.Contact, customPrompt string) string {
	company := &thread.Company
	project := &thread.Project
	firstName := firstNameOf(contact.Name)

	var b strings.Builder
	fmt.Fprintf(&b, "Write a cold outreach email from a partner at %s.\n\n", d.FirmName)
	if d.FirmIntro != "" {
		fmt.Fprintf(&b, "WHO WE ARE: %s\n\n", d.FirmIntro)
	}
	fmt.Fprintf(&b, `RECIPIENT:
- Name: %s (use %q in greeting)
- Title: %s
- Company: %s
- Location: %s
- Sector: %s
- Revenue: %s

RESEARCH ON THEM:
%s
`, contact.Name, firstName, orUnknown(contact.Title, "Owner"), company.Name,
		orUnknown(company.HQLocation, "Unknown"), orUnknown(company.Sector, "Unknown"),
		revenueRange(company), orUnknown(enrichmentNotes(contact), "No additional research available."))

	fmt.Fprintf(&b, "\nINVESTMENT THESIS: %s — %s\n",
		project.Name, orUnknown(project.Description, "Investment opportunity evaluation"))
	if customPrompt != "" {
		fmt.Fprintf(&b, "\nEXTRA INSTRUCTIONS: %s\n", customPrompt)
	}

	b.WriteString(`
EMAIL STRUCTURE (follow exactly):
1. Opening line: one specific observation about THEM. Lead with them, not you.
2. Bridge: one sentence connecting that observation to why you're writing.
3. Value prop: one to two sentences, framed entirely as value to them.
4. CTA: one simple question, under 12 words.
5. Sign-off: [SENDER_NAME]

HARD RULES:
- MAXIMUM 125 words in the body. Maximum 5 sentences before the sign-off.
- Subject line: lowercase, 3-7 words, spark curiosity.
- Tone: smart peer, not pitch deck.
- NEVER use: "I hope this finds you well", "I came across your company", "leverage", "synergies", "cutting-edge", "I'd love to"

Return ONLY valid JSON, nothing else:
{"subject": "the lowercase subject line", "body_html": "<p>the email body in html paragraphs</p>"}`)
	return b.String()
}

func (d *Drafter) followUpPrompt(thread *models.OutreachThread, contact *models.Contact) string {
	company := &thread.Company

	var priorContext, priorSubject string
	var sentCount int
	for _, m := range thread.Messages {
		if m.Status == models.MessageSent {
			sentCount++
			priorSubject = m.Subject
			sentDate := "recently"
			if m.SentAt != nil {
				sentDate = m.SentAt.Format("January 2")
			}
			priorContext = fmt.Sprintf(
				"- Previous email sent on %s\n- Previous subject: %s\n- This will be follow-up #%d",
				sentDate, m.Subject, sentCount)
		}
	}
	if priorContext == "" {
		priorContext = "Initial email was sent recently."
	}
	if priorSubject == "" {
		priorSubject = company.Name
	}

	return fmt.Sprintf(`Write a follow-up cold email for a %s partner. No response yet to the initial email.

RECIPIENT: %s (%s) at %s (%s)

PREVIOUS OUTREACH:
%s

STRUCTURE (exactly this):
1. One sentence: acknowledge the previous email casually. No guilt.
2. One to two sentences: a NEW angle relevant to their business.
3. One sentence: binary CTA question, easy to reply to.
4. [SENDER_NAME]

HARD RULES:
- MAXIMUM 60 words total. Maximum 3 sentences before sign-off.
- Subject: "Re: %s" (keep the thread)
- Tone: casual, human, zero pressure.
- NEVER use: "just circling back", "touching base", "checking in"

Return ONLY valid JSON, nothing else:
{"subject": "Re: ...", "body_html": "<p>...</p>"}`,
		d.FirmName, contact.Name, orUnknown(contact.Title, "Owner"), company.Name,
		orUnknown(company.Sector, "services"), priorContext, priorSubject)
}

func (d *Drafter) schedulingPrompt(thread *models.OutreachThread, contact *models.Contact, slots []models.ProposedSlot) string {
	company := &thread.Company

	var slotLines strings.Builder
	for i, slot := range slots {
		label := slot.Label
		if label == "" {
			label = slot.Datetime
		}
		fmt.Fprintf(&slotLines, "  %d. %s\n", i+1, label)
	}

	return fmt.Sprintf(`You are writing an email as a scheduling assistant at %s. You are responding
to %s at %s who has expressed interest in a conversation.

PROPOSED MEETING TIMES:
%s
RULES:
1. Write as a professional scheduling assistant on behalf of [SENDER_NAME] from %s
2. Thank them briefly for their interest
3. Present the time slots clearly, numbered, using the labels exactly as given
4. Ask them to pick whatever works best, or suggest alternatives
5. Keep it brief: 2-3 short paragraphs max
6. Sign off as "Best regards,\n[ASSISTANT_NAME]\nScheduling · %s"

Return ONLY JSON:
{"subject": "Scheduling a conversation — %s × %s", "body_html": "<p>...</p>"}`,
		d.FirmName, contact.Name, company.Name, slotLines.String(),
		d.FirmName, d.FirmName, d.FirmName, company.Name)
}

// --- post-processing ---

func (d *Drafter) parseDraft(raw, fallbackSubject string) draftJSON {
	if obj, ok := ExtractJSONObject(raw); ok {
		var parsed draftJSON
		if err := json.Unmarshal([]byte(obj), &parsed); err == nil {
			if parsed.Subject == "" {
				parsed.Subject = fallbackSubject
			}
			if parsed.BodyHTML == "" {
				parsed.BodyHTML = "<p>Email generation failed. Please edit this email manually.</p>"
			}
			return parsed
		}
	}
	d.Logger.Printf("Failed to parse draft completion, using fallback subject %q", fallbackSubject)
	return draftJSON{
		Subject:  fallbackSubject,
		BodyHTML: "<p>Email generation failed. Please edit this email manually.</p>",
	}
}

func (d *Drafter) fallbackSubject(messageType string, thread *models.OutreachThread) string {
	company := thread.Company.Name
	switch messageType {
	case models.MessageFollowUp:
		for _, m := range thread.Messages {
			if m.Status == models.MessageSent {
				company = m.Subject
			}
		}
		return "Re: " + company
	case models.MessageSchedulingReply:
		return fmt.Sprintf("Scheduling a conversation — %s × %s", d.FirmName, company)
	default:
		return fmt.Sprintf("quick question about %s", company)
	}
}

// ensureSlotsEmbedded guarantees every proposed slot label appears in the
// body, appending a numbered list for any the model dropped. Callers rely
// on the recipient seeing all offered times regardless of model output.
func ensureSlotsEmbedded(bodyHTML string, slots []models.ProposedSlot) string {
	var missing []models.ProposedSlot
	for _, slot := range slots {
		label := slot.Label
		if label == "" {
			label = slot.Datetime
		}
		if !strings.Contains(bodyHTML, label) {
			missing = append(missing, slot)
		}
	}
	if len(missing) == 0 {
		return bodyHTML
	}

	var b strings.Builder
	b.WriteString(bodyHTML)
	b.WriteString("<p>Proposed times:</p><ol>")
	for _, slot := range missing {
		label := slot.Label
		if label == "" {
			label = slot.Datetime
		}
		fmt.Fprintf(&b, "<li>%s</li>", label)
	}
	b.WriteString("</ol>")
	return b.String()
}

// --- small formatting helpers ---

func firstNameOf(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func orUnknown(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func revenueRange(company *models.Company) string {
	switch {
	case company.RevenueLow > 0 && company.RevenueHigh > 0:
		return fmt.Sprintf("$%.0f - $%.0f", company.RevenueLow, company.RevenueHigh)
	case company.RevenueLow > 0:
		return fmt.Sprintf("$%.0f+", company.RevenueLow)
	default:
		return "Unknown"
	}
}

func employeeStr(company *models.Company) string {
	if company.EmployeeCount > 0 {
		return fmt.Sprintf("%d", company.EmployeeCount)
	}
	return "Unknown"
}

func enrichmentNotes(contact *models.Contact) string {
	if contact.EnrichmentData == nil {
		return ""
	}
	var parts []string
	if extracted, ok := contact.EnrichmentData["extracted"]; ok {
		if blob, err := json.Marshal(extracted); err == nil {
			parts = append(parts, "Extracted info: "+string(blob))
		}
	}
	if personality, ok := contact.EnrichmentData["personality"].(map[string]interface{}); ok {
		if angle, ok := personality["outreach_angle"].(string); ok && angle != "" {
			parts = append(parts, "Recommended outreach angle: "+angle)
		}
		if style, ok := personality["communication_style"].(string); ok && style != "" {
			parts = append(parts, "Communication style: "+style)
		}
	}
	return strings.Join(parts, "\n")
}
