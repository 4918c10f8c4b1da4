package models

import (
	"time"

	"gorm.io/gorm"
)

// Thread statuses. A thread starts in draft the moment it is created,
// before any message exists.
const (
	ThreadDraft            = "draft"
	ThreadSent             = "sent"
	ThreadAwaitingResponse = "awaiting_response"
	ThreadResponded        = "responded"
	ThreadMeetingScheduled = "meeting_scheduled"
	ThreadPassed           = "passed"
)

// Message statuses
const (
	MessageDraft    = "draft"
	MessageApproved = "approved"
	MessageSent     = "sent"
	MessageFailed   = "failed"
	MessageBounced  = "bounced"
)

// Message types
const (
	MessageInitial         = "initial"
	MessageFollowUp        = "follow_up"
	MessageSchedulingReply = "scheduling_reply"
)

// Campaign statuses (legacy flat bulk-blast model)
const (
	CampaignDraft      = "draft"
	CampaignGenerating = "generating"
	CampaignReady      = "ready"
	CampaignSending    = "sending"
	CampaignSent       = "sent"
	CampaignPaused     = "paused"
)

// ProposedSlot is one candidate meeting time offered in a scheduling reply.
type ProposedSlot struct {
	Datetime string `json:"datetime"`
	Label    string `json:"label"`
}

// OutreachThread tracks the full outreach lifecycle for one company within
// a project: initial email through follow-ups, response, and scheduling.
// At most one thread exists per (project, company) pair.
type OutreachThread struct {
	gorm.Model
	ProjectID uint  `gorm:"not null;index;uniqueIndex:uq_thread_project_company" json:"project_id"`
	CompanyID uint  `gorm:"not null;index;uniqueIndex:uq_thread_project_company" json:"company_id"`
	ContactID *uint `gorm:"index" json:"contact_id"`

	Status string `gorm:"default:'draft';index" json:"status"`

	// Follow-up tracking
	FollowUpCount  int        `gorm:"default:0" json:"follow_up_count"`
	NextFollowUpAt *time.Time `json:"next_follow_up_at"`
	LastSentAt     *time.Time `json:"last_sent_at"`

	// Response tracking
	ResponseReceivedAt *time.Time `json:"response_received_at"`
	ResponseSummary    string     `json:"response_summary"`

	ProposedSlots []ProposedSlot `gorm:"type:jsonb;serializer:json" json:"proposed_slots,omitempty"`

	CreatedBy uint `json:"created_by"`

	// Relations
	Project  Project                 `json:"-"`
	Company  Company                 `json:"-"`
	Contact  *Contact                `json:"-"`
	Messages []OutreachThreadMessage `gorm:"foreignKey:ThreadID" json:"messages,omitempty"`
}

// OutreachThreadMessage is one email inside a thread. Sequence numbers are
// strictly increasing from 1 with no gaps; sending is one-way (a failed
// message is retried as-is or superseded by a fresh draft, its own history
// is never rewritten).
type OutreachThreadMessage struct {
	gorm.Model
	ThreadID    uint   `gorm:"not null;index" json:"thread_id"`
	Sequence    int    `gorm:"not null;default:1" json:"sequence"`
	MessageType string `gorm:"default:'initial'" json:"message_type"`

	ToEmail  string `gorm:"not null" json:"to_email"`
	Subject  string `gorm:"not null" json:"subject"`
	BodyHTML string `gorm:"not null" json:"body_html"`

	Status string `gorm:"default:'draft'" json:"status"`

	SentAt         *time.Time `json:"sent_at"`
	GmailMessageID string     `json:"gmail_message_id"`
	GmailThreadID  string     `json:"gmail_thread_id"`
	ErrorMessage   string     `json:"error_message"`

	// Relations
	Thread OutreachThread `json:"-"`
}

// Editable reports whether subject/body may still be changed.
func (m *OutreachThreadMessage) Editable() bool {
	return m.Status == MessageDraft || m.Status == MessageApproved
}

// Sendable reports whether the message may be handed to the send gateway.
func (m *OutreachThreadMessage) Sendable() bool {
	return m.Status == MessageDraft || m.Status == MessageApproved ||
		m.Status == MessageFailed
}

// OutreachCampaign is the legacy bulk-blast model: one flat list of emails
// generated from a template prompt across a project's contacts. It coexists
// with threads as the coarse-grained variant of the same batch runner.
type OutreachCampaign struct {
	gorm.Model
	ProjectID uint `gorm:"not null;index" json:"project_id"`

	Name            string `gorm:"not null" json:"name"`
	SubjectTemplate string `gorm:"not null" json:"subject_template"`
	BodyPrompt      string `gorm:"not null" json:"body_prompt"`
	SenderEmail     string `gorm:"not null" json:"sender_email"`

	Status    string `gorm:"default:'draft'" json:"status"`
	CreatedBy uint   `json:"created_by"`

	// Relations
	Project Project         `json:"-"`
	Emails  []OutreachEmail `gorm:"foreignKey:CampaignID" json:"emails,omitempty"`
}

// OutreachEmail is one generated email in a legacy campaign.
type OutreachEmail struct {
	gorm.Model
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`
	ContactID  uint `gorm:"not null" json:"contact_id"`
	CompanyID  uint `gorm:"not null" json:"company_id"`

	ToEmail  string `gorm:"not null" json:"to_email"`
	Subject  string `gorm:"not null" json:"subject"`
	BodyHTML string `gorm:"not null" json:"body_html"`

	Status string `gorm:"default:'draft'" json:"status"`

	SentAt         *time.Time `json:"sent_at"`
	GmailMessageID string     `json:"gmail_message_id"`
	ErrorMessage   string     `json:"error_message"`

	// Relations
	Campaign OutreachCampaign `json:"-"`
	Contact  Contact          `json:"contact,omitempty"`
	Company  Company          `json:"company,omitempty"`
}

// threadTransitions enumerates every legal thread status change. The
// generic PATCH endpoint and the named operations both consult this table;
// neither can bypass it.
var threadTransitions = map[string][]string{
	ThreadDraft:            {ThreadSent, ThreadAwaitingResponse, ThreadPassed},
	ThreadSent:             {ThreadAwaitingResponse, ThreadResponded, ThreadPassed},
	ThreadAwaitingResponse: {ThreadResponded, ThreadSent, ThreadPassed},
	ThreadResponded:        {ThreadMeetingScheduled, ThreadAwaitingResponse, ThreadPassed},
	ThreadMeetingScheduled: {ThreadPassed},
	ThreadPassed:           {},
}

// CanTransition reports whether a thread may move from one status to
// another. Same-status writes are allowed (no-op patches).
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	for _, next := range threadTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a thread status admits no further transitions
// other than itself.
func ThreadTerminal(status string) bool {
	return status == ThreadPassed
}

// NeedsFollowUp classifies a thread as overdue for a follow-up. This is
// derived at read time from last_sent_at, never stored.
func (t *OutreachThread) NeedsFollowUp(now time.Time, threshold time.Duration) bool {
	if t.Status != ThreadSent && t.Status != ThreadAwaitingResponse {
		return false
	}
	if t.LastSentAt == nil {
		return false
	}
	return now.Sub(*t.LastSentAt) > threshold
}

// DeriveCampaignStatus computes a campaign's aggregate status from its
// emails. The result is monotonic with respect to irreversible states: the
// campaign never reports sent unless every email is past the point of no
// return.
func DeriveCampaignStatus(stored string, emails []OutreachEmail) string {
	if stored == CampaignGenerating {
		return CampaignGenerating
	}
	if len(emails) == 0 {
		return CampaignDraft
	}

	var sent, failed, pending int
	for _, e := range emails {
		switch e.Status {
		case MessageSent:
			sent++
		case MessageFailed, MessageBounced:
			failed++
		default:
			pending++
		}
	}

	switch {
	case stored == CampaignSending && pending > 0:
		return CampaignSending
	case pending == 0 && failed == 0:
		return CampaignSent
	case sent > 0 || failed > 0:
		// Partially dispatched: some emails irreversibly sent or failed.
		return CampaignPaused
	default:
		return CampaignReady
	}
}

// FindOrCreateThread returns the thread for (project, company), creating it
// when absent. Creation is idempotent: concurrent or repeated calls for the
// same pair converge on one row via the unique index.
func FindOrCreateThread(db *gorm.DB, projectID, companyID uint, contactID *uint, createdBy uint) (*OutreachThread, bool, error) {
	var thread OutreachThread
	err := db.Where("project_id = ? AND company_id = ?", projectID, companyID).
		First(&thread).Error
	if err == nil {
		// Late-bind a contact discovered after the thread was created.
		if thread.ContactID == nil && contactID != nil {
			thread.ContactID = contactID
			if err := db.Save(&thread).Error; err != nil {
				return nil, false, err
			}
		}
		return &thread, false, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, false, err
	}

	thread = OutreachThread{
		ProjectID: projectID,
		CompanyID: companyID,
		ContactID: contactID,
		Status:    ThreadDraft,
		CreatedBy: createdBy,
	}
	if err := db.Create(&thread).Error; err != nil {
		// Unique index hit: another caller created it first.
		var existing OutreachThread
		if ferr := db.Where("project_id = ? AND company_id = ?", projectID, companyID).
			First(&existing).Error; ferr == nil {
			return &existing, false, nil
		}
		return nil, false, err
	}
	return &thread, true, nil
}

// NextSequence returns the sequence number the thread's next message takes.
func NextSequence(db *gorm.DB, threadID uint) (int, error) {
	var max int
	err := db.Model(&OutreachThreadMessage{}).
		Where("thread_id = ?", threadID).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// LatestDraft returns the highest-sequence draft message of a thread, the
// one "latest draft wins" editing and sending operate on. Returns nil when
// the thread has no draft.
func LatestDraft(db *gorm.DB, threadID uint) (*OutreachThreadMessage, error) {
	var msg OutreachThreadMessage
	err := db.Where("thread_id = ? AND status = ?", threadID, MessageDraft).
		Order("sequence DESC").
		First(&msg).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}
