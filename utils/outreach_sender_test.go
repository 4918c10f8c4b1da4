package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"dealforge/models"
)

type fakeTransport struct {
	mu       sync.Mutex
	sent     []OutboundMessage
	err      error
	failTo   map[string]error // per-recipient failures
	threadID string
}

func (f *fakeTransport) Send(_ context.Context, _ string, msg OutboundMessage) (*SendReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if err, ok := f.failTo[msg.To]; ok {
		return nil, err
	}
	f.sent = append(f.sent, msg)
	threadID := f.threadID
	if threadID == "" {
		threadID = "gthread-1"
	}
	return &SendReceipt{
		ProviderMessageID: fmt.Sprintf("gmsg-%d", len(f.sent)),
		ProviderThreadID:  threadID,
	}, nil
}

func newTestSender(db *gorm.DB, transport MailTransport) *OutreachSender {
	return NewOutreachSender(db, transport, testLogger(), time.Millisecond)
}

func seedDraftMessage(t *testing.T, db *gorm.DB, thread *models.OutreachThread, seq int, to string) *models.OutreachThreadMessage {
	t.Helper()
	msg := models.OutreachThreadMessage{
		ThreadID: thread.ID, Sequence: seq, MessageType: models.MessageInitial,
		ToEmail: to, Subject: "s", BodyHTML: "<p>b</p>", Status: models.MessageDraft,
	}
	require.NoError(t, db.Create(&msg).Error)
	return &msg
}

func TestSendThreadMessageRequiresCredential(t *testing.T) {
	db := testDB(t)
	transport := &fakeTransport{}
	sender := newTestSender(db, transport)

	_, err := sender.SendThreadMessage(context.Background(), 1, "", "gp@firm.com")
	var missing *MissingCredentialError
	require.ErrorAs(t, err, &missing)
	// The guard fires before any lookup or I/O.
	assert.Empty(t, transport.sent)

	_, err = sender.BulkSendThreadMessages(context.Background(), []uint{1}, "", "gp@firm.com", nil)
	require.ErrorAs(t, err, &missing)

	_, err = sender.SendCampaign(context.Background(), 1, "")
	require.ErrorAs(t, err, &missing)
}

func TestSendThreadMessageSuccess(t *testing.T) {
	db := testDB(t)
	thread := seedThread(t, db, "pat@acmeheating.com")
	msg := seedDraftMessage(t, db, thread, 1, "pat@acmeheating.com")

	transport := &fakeTransport{}
	sender := newTestSender(db, transport)

	result, err := sender.SendThreadMessage(context.Background(), msg.ID, "ya29.token", "gp@firm.com")
	require.NoError(t, err)
	assert.Equal(t, msg.ID, result.MessageID)
	assert.Equal(t, "gmsg-1", result.GmailMessageID)

	var sent models.OutreachThreadMessage
	require.NoError(t, db.First(&sent, msg.ID).Error)
	assert.Equal(t, models.MessageSent, sent.Status)
	require.NotNil(t, sent.SentAt)
	assert.Equal(t, "gmsg-1", sent.GmailMessageID)
	assert.Equal(t, "gthread-1", sent.GmailThreadID)

	var reloaded models.OutreachThread
	require.NoError(t, db.First(&reloaded, thread.ID).Error)
	assert.Equal(t, models.ThreadAwaitingResponse, reloaded.Status)
	require.NotNil(t, reloaded.LastSentAt)

	require.Len(t, transport.sent, 1)
	assert.Equal(t, "gp@firm.com", transport.sent[0].From)
	assert.Equal(t, "pat@acmeheating.com", transport.sent[0].To)
}

func TestSendThreadMessageAlreadySent(t *testing.T) {
	db := testDB(t)
	thread := seedThread(t, db, "pat@acmeheating.com")
	msg := seedDraftMessage(t, db, thread, 1, "pat@acmeheating.com")
	require.NoError(t, db.Model(msg).Update("status", models.MessageSent).Error)

	transport := &fakeTransport{}
	sender := newTestSender(db, transport)

	_, err := sender.SendThreadMessage(context.Background(), msg.ID, "ya29.token", "gp@firm.com")
	var immutable *ImmutableStateError
	require.ErrorAs(t, err, &immutable)
	assert.Empty(t, transport.sent)
}

func TestSendThreadMessageTransportFailure(t *testing.T) {
	db := testDB(t)
	thread := seedThread(t, db, "pat@acmeheating.com")
	msg := seedDraftMessage(t, db, thread, 1, "pat@acmeheating.com")

	transport := &fakeTransport{err: errors.New("gmail send failed with status 429: " + strings.Repeat("x", 600))}
	sender := newTestSender(db, transport)

	_, err := sender.SendThreadMessage(context.Background(), msg.ID, "ya29.token", "gp@firm.com")
	require.Error(t, err)

	var failed models.OutreachThreadMessage
	require.NoError(t, db.First(&failed, msg.ID).Error)
	assert.Equal(t, models.MessageFailed, failed.Status)
	assert.Nil(t, failed.SentAt)
	assert.NotEmpty(t, failed.ErrorMessage)
	assert.LessOrEqual(t, len(failed.ErrorMessage), 500)

	// Thread state is untouched on failure.
	var reloaded models.OutreachThread
	require.NoError(t, db.First(&reloaded, thread.ID).Error)
	assert.Equal(t, models.ThreadDraft, reloaded.Status)
	assert.Nil(t, reloaded.LastSentAt)

	// A failed message may be retried once the transport recovers.
	transport.err = nil
	_, err = sender.SendThreadMessage(context.Background(), msg.ID, "ya29.token", "gp@firm.com")
	require.NoError(t, err)
	require.NoError(t, db.First(&failed, msg.ID).Error)
	assert.Equal(t, models.MessageSent, failed.Status)
	assert.Empty(t, failed.ErrorMessage)
}

func TestSendThreadMessageThreadsOntoPriorConversation(t *testing.T) {
	db := testDB(t)
	thread := seedThread(t, db, "pat@acmeheating.com")
	first := seedDraftMessage(t, db, thread, 1, "pat@acmeheating.com")
	require.NoError(t, db.Model(first).Updates(map[string]interface{}{
		"status": models.MessageSent, "gmail_thread_id": "gthread-original",
	}).Error)
	followUp := seedDraftMessage(t, db, thread, 2, "pat@acmeheating.com")

	transport := &fakeTransport{}
	sender := newTestSender(db, transport)

	_, err := sender.SendThreadMessage(context.Background(), followUp.ID, "ya29.token", "gp@firm.com")
	require.NoError(t, err)
	require.Len(t, transport.sent, 1)
	assert.Equal(t, "gthread-original", transport.sent[0].ThreadID)
}

func TestBulkSendIndependentFailures(t *testing.T) {
	db := testDB(t)
	thread := seedThread(t, db, "pat@acmeheating.com")
	ok1 := seedDraftMessage(t, db, thread, 1, "a@x.com")
	bad := seedDraftMessage(t, db, thread, 2, "b@x.com")
	ok2 := seedDraftMessage(t, db, thread, 3, "c@x.com")

	transport := &fakeTransport{failTo: map[string]error{"b@x.com": errors.New("mailbox full")}}
	sender := newTestSender(db, transport)

	type progressEvent struct {
		messageID uint
		sent      bool
		errMsg    string
	}
	var events []progressEvent
	progress := func(messageID uint, sent bool, errMsg string) {
		events = append(events, progressEvent{messageID, sent, errMsg})
	}

	result, err := sender.BulkSendThreadMessages(context.Background(),
		[]uint{ok1.ID, bad.ID, ok2.ID}, "ya29.token", "gp@firm.com", progress)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 1, result.Failed)

	// One failure leaves siblings untouched.
	var statuses []string
	for _, id := range []uint{ok1.ID, bad.ID, ok2.ID} {
		var m models.OutreachThreadMessage
		require.NoError(t, db.First(&m, id).Error)
		statuses = append(statuses, m.Status)
	}
	assert.Equal(t, []string{models.MessageSent, models.MessageFailed, models.MessageSent}, statuses)

	require.Len(t, events, 3)
	assert.True(t, events[0].sent)
	assert.False(t, events[1].sent)
	assert.Equal(t, "mailbox full", events[1].errMsg)
	assert.True(t, events[2].sent)
}

func TestBulkSendCancellationReturnsPartialTally(t *testing.T) {
	db := testDB(t)
	thread := seedThread(t, db, "pat@acmeheating.com")
	first := seedDraftMessage(t, db, thread, 1, "a@x.com")
	second := seedDraftMessage(t, db, thread, 2, "b@x.com")

	transport := &fakeTransport{}
	sender := NewOutreachSender(db, transport, testLogger(), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := sender.BulkSendThreadMessages(ctx, []uint{first.ID, second.ID}, "ya29.token", "gp@firm.com", nil)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Sent)

	// The first dispatch stands; cancellation never unwinds it.
	var m models.OutreachThreadMessage
	require.NoError(t, db.First(&m, first.ID).Error)
	assert.Equal(t, models.MessageSent, m.Status)
}

func TestSendCampaign(t *testing.T) {
	db := testDB(t)
	project := models.Project{Name: "P"}
	require.NoError(t, db.Create(&project).Error)
	campaign := models.OutreachCampaign{
		ProjectID: project.ID, Name: "Q3 blast", SubjectTemplate: "intro",
		BodyPrompt: "be brief", SenderEmail: "gp@firm.com", Status: models.CampaignReady,
	}
	require.NoError(t, db.Create(&campaign).Error)

	emails := []models.OutreachEmail{
		{CampaignID: campaign.ID, ContactID: 1, CompanyID: 1, ToEmail: "a@x.com", Subject: "s", BodyHTML: "<p>b</p>", Status: models.MessageDraft},
		{CampaignID: campaign.ID, ContactID: 2, CompanyID: 2, ToEmail: "b@x.com", Subject: "s", BodyHTML: "<p>b</p>", Status: models.MessageApproved},
		{CampaignID: campaign.ID, ContactID: 3, CompanyID: 3, ToEmail: "c@x.com", Subject: "s", BodyHTML: "<p>b</p>", Status: models.MessageSent},
	}
	for i := range emails {
		require.NoError(t, db.Create(&emails[i]).Error)
	}

	transport := &fakeTransport{failTo: map[string]error{"b@x.com": errors.New("bounced")}}
	sender := newTestSender(db, transport)

	result, err := sender.SendCampaign(context.Background(), campaign.ID, "ya29.token")
	require.NoError(t, err)
	// The already-sent email is never re-dispatched.
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 1, result.Failed)

	var reloaded models.OutreachCampaign
	require.NoError(t, db.First(&reloaded, campaign.ID).Error)
	assert.Equal(t, models.CampaignPaused, reloaded.Status)
}

func TestSendCampaignNothingSendable(t *testing.T) {
	db := testDB(t)
	campaign := models.OutreachCampaign{
		ProjectID: 1, Name: "Empty", SubjectTemplate: "s", BodyPrompt: "b",
		SenderEmail: "gp@firm.com", Status: models.CampaignSent,
	}
	require.NoError(t, db.Create(&campaign).Error)

	transport := &fakeTransport{}
	sender := newTestSender(db, transport)

	result, err := sender.SendCampaign(context.Background(), campaign.ID, "ya29.token")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
	assert.Empty(t, transport.sent)
}
