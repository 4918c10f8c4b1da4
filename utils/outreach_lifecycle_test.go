package utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealforge/models"
)

// Walks one thread through the whole lifecycle: initial draft and send,
// unanswered follow-up, response, scheduling reply, meeting, pass.
func TestThreadLifecycle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	thread := seedThread(t, db, "pat@acmeheating.com")

	llm := &fakeLLM{response: `{"subject": "quick question about acme", "body_html": "<p>Hi Pat, Tue 3pm or Wed 10am</p>"}`}
	drafter := NewDrafter(db, llm, testLogger(), "Test Capital", "")
	transport := &fakeTransport{threadID: "gthread-acme"}
	sender := NewOutreachSender(db, transport, testLogger(), time.Millisecond)

	reload := func() models.OutreachThread {
		var reloaded models.OutreachThread
		require.NoError(t, db.First(&reloaded, thread.ID).Error)
		return reloaded
	}

	// Initial draft and send.
	initial, err := drafter.GenerateDraft(ctx, thread.ID, models.MessageInitial, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, initial.Sequence)
	assert.Equal(t, models.ThreadDraft, reload().Status)

	_, err = sender.SendThreadMessage(ctx, initial.ID, "ya29.token", "gp@firm.com")
	require.NoError(t, err)
	assert.Equal(t, models.ThreadAwaitingResponse, reload().Status)

	// No response: follow up on the same provider conversation.
	followUp, err := drafter.GenerateDraft(ctx, thread.ID, models.MessageFollowUp, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, followUp.Sequence)
	assert.Equal(t, 1, reload().FollowUpCount)

	_, err = sender.SendThreadMessage(ctx, followUp.ID, "ya29.token", "gp@firm.com")
	require.NoError(t, err)
	require.Len(t, transport.sent, 2)
	assert.Equal(t, "gthread-acme", transport.sent[1].ThreadID)
	assert.Equal(t, models.ThreadAwaitingResponse, reload().Status)

	// They reply; the analyst records it.
	require.True(t, models.CanTransition(reload().Status, models.ThreadResponded))
	now := time.Now()
	require.NoError(t, db.Model(&models.OutreachThread{}).Where("id = ?", thread.ID).
		Updates(map[string]interface{}{
			"status": models.ThreadResponded, "response_received_at": now,
		}).Error)

	// Scheduling reply with slots, then send.
	slots := []models.ProposedSlot{
		{Datetime: "2026-09-02T15:00:00Z", Label: "Tue 3pm"},
		{Datetime: "2026-09-03T10:00:00Z", Label: "Wed 10am"},
	}
	scheduling, err := drafter.GenerateDraft(ctx, thread.ID, models.MessageSchedulingReply, "", slots)
	require.NoError(t, err)
	assert.Equal(t, 3, scheduling.Sequence)
	assert.Contains(t, scheduling.BodyHTML, "Tue 3pm")
	assert.Contains(t, scheduling.BodyHTML, "Wed 10am")

	_, err = sender.SendThreadMessage(ctx, scheduling.ID, "ya29.token", "gp@firm.com")
	require.NoError(t, err)
	assert.Equal(t, models.ThreadAwaitingResponse, reload().Status)

	// They pick a slot: responded again, then the meeting is booked.
	require.NoError(t, db.Model(&models.OutreachThread{}).Where("id = ?", thread.ID).
		Update("status", models.ThreadResponded).Error)
	require.True(t, models.CanTransition(models.ThreadResponded, models.ThreadMeetingScheduled))
	require.NoError(t, db.Model(&models.OutreachThread{}).Where("id = ?", thread.ID).
		Update("status", models.ThreadMeetingScheduled).Error)

	// Sequences stayed gapless across the whole run.
	var messages []models.OutreachThreadMessage
	require.NoError(t, db.Where("thread_id = ?", thread.ID).Order("sequence ASC").Find(&messages).Error)
	require.Len(t, messages, 3)
	for i, m := range messages {
		assert.Equal(t, i+1, m.Sequence)
		assert.Equal(t, models.MessageSent, m.Status)
	}

	// Passing is terminal.
	require.True(t, models.CanTransition(models.ThreadMeetingScheduled, models.ThreadPassed))
	require.NoError(t, db.Model(&models.OutreachThread{}).Where("id = ?", thread.ID).
		Update("status", models.ThreadPassed).Error)
	assert.True(t, models.ThreadTerminal(reload().Status))
	assert.False(t, models.CanTransition(models.ThreadPassed, models.ThreadDraft))
}
