package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&User{}, &Company{}, &Contact{}, &Project{}, &ProjectCompany{},
		&OutreachThread{}, &OutreachThreadMessage{},
		&OutreachCampaign{}, &OutreachEmail{},
	))
	return db
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{ThreadDraft, ThreadSent, true},
		{ThreadDraft, ThreadAwaitingResponse, true},
		{ThreadDraft, ThreadPassed, true},
		{ThreadDraft, ThreadResponded, false},
		{ThreadDraft, ThreadMeetingScheduled, false},
		{ThreadSent, ThreadResponded, true},
		{ThreadSent, ThreadAwaitingResponse, true},
		{ThreadAwaitingResponse, ThreadSent, true}, // follow-up send
		{ThreadAwaitingResponse, ThreadResponded, true},
		{ThreadAwaitingResponse, ThreadMeetingScheduled, false},
		{ThreadResponded, ThreadMeetingScheduled, true},
		{ThreadResponded, ThreadAwaitingResponse, true}, // scheduling reply sent
		{ThreadResponded, ThreadSent, false},
		{ThreadMeetingScheduled, ThreadPassed, true},
		{ThreadMeetingScheduled, ThreadResponded, false},
		{ThreadPassed, ThreadDraft, false},
		{ThreadPassed, ThreadSent, false},
		// no-op patches are always legal
		{ThreadPassed, ThreadPassed, true},
		{ThreadDraft, ThreadDraft, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to),
			"transition %s -> %s", tc.from, tc.to)
	}
}

func TestThreadTerminal(t *testing.T) {
	assert.True(t, ThreadTerminal(ThreadPassed))
	assert.False(t, ThreadTerminal(ThreadMeetingScheduled))
	assert.False(t, ThreadTerminal(ThreadDraft))
}

func TestNeedsFollowUp(t *testing.T) {
	now := time.Now()
	threshold := 5 * 24 * time.Hour
	old := now.Add(-6 * 24 * time.Hour)
	recent := now.Add(-time.Hour)

	tests := []struct {
		name   string
		thread OutreachThread
		want   bool
	}{
		{"awaiting and overdue", OutreachThread{Status: ThreadAwaitingResponse, LastSentAt: &old}, true},
		{"sent and overdue", OutreachThread{Status: ThreadSent, LastSentAt: &old}, true},
		{"awaiting but recent", OutreachThread{Status: ThreadAwaitingResponse, LastSentAt: &recent}, false},
		{"responded never needs follow-up", OutreachThread{Status: ThreadResponded, LastSentAt: &old}, false},
		{"passed never needs follow-up", OutreachThread{Status: ThreadPassed, LastSentAt: &old}, false},
		{"never sent", OutreachThread{Status: ThreadAwaitingResponse}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.thread.NeedsFollowUp(now, threshold))
		})
	}
}

func TestFindOrCreateThreadIdempotent(t *testing.T) {
	db := testDB(t)

	first, created, err := FindOrCreateThread(db, 1, 2, nil, 9)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, ThreadDraft, first.Status)

	second, created, err := FindOrCreateThread(db, 1, 2, nil, 9)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	db.Model(&OutreachThread{}).Count(&count)
	assert.EqualValues(t, 1, count)

	// Different pair gets its own thread.
	third, created, err := FindOrCreateThread(db, 1, 3, nil, 9)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestFindOrCreateThreadLateBindsContact(t *testing.T) {
	db := testDB(t)

	first, _, err := FindOrCreateThread(db, 1, 2, nil, 9)
	require.NoError(t, err)
	require.Nil(t, first.ContactID)

	contactID := uint(77)
	second, created, err := FindOrCreateThread(db, 1, 2, &contactID, 9)
	require.NoError(t, err)
	assert.False(t, created)
	require.NotNil(t, second.ContactID)
	assert.Equal(t, contactID, *second.ContactID)
}

func TestNextSequence(t *testing.T) {
	db := testDB(t)
	thread, _, err := FindOrCreateThread(db, 1, 2, nil, 9)
	require.NoError(t, err)

	seq, err := NextSequence(db, thread.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, seq)

	for i := 1; i <= 3; i++ {
		require.NoError(t, db.Create(&OutreachThreadMessage{
			ThreadID: thread.ID, Sequence: i, ToEmail: "a@b.co",
			Subject: "s", BodyHTML: "<p>b</p>", Status: MessageDraft,
		}).Error)
	}

	seq, err = NextSequence(db, thread.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, seq)
}

func TestLatestDraft(t *testing.T) {
	db := testDB(t)
	thread, _, err := FindOrCreateThread(db, 1, 2, nil, 9)
	require.NoError(t, err)

	draft, err := LatestDraft(db, thread.ID)
	require.NoError(t, err)
	assert.Nil(t, draft)

	require.NoError(t, db.Create(&OutreachThreadMessage{
		ThreadID: thread.ID, Sequence: 1, ToEmail: "a@b.co",
		Subject: "first", BodyHTML: "<p>b</p>", Status: MessageSent,
	}).Error)
	require.NoError(t, db.Create(&OutreachThreadMessage{
		ThreadID: thread.ID, Sequence: 2, ToEmail: "a@b.co",
		Subject: "second", BodyHTML: "<p>b</p>", Status: MessageDraft,
	}).Error)
	require.NoError(t, db.Create(&OutreachThreadMessage{
		ThreadID: thread.ID, Sequence: 3, ToEmail: "a@b.co",
		Subject: "third", BodyHTML: "<p>b</p>", Status: MessageDraft,
	}).Error)

	draft, err = LatestDraft(db, thread.ID)
	require.NoError(t, err)
	require.NotNil(t, draft)
	assert.Equal(t, "third", draft.Subject)
	assert.Equal(t, 3, draft.Sequence)
}

func TestDeriveCampaignStatus(t *testing.T) {
	sent := OutreachEmail{Status: MessageSent}
	failed := OutreachEmail{Status: MessageFailed}
	draft := OutreachEmail{Status: MessageDraft}

	assert.Equal(t, CampaignGenerating, DeriveCampaignStatus(CampaignGenerating, nil))
	assert.Equal(t, CampaignDraft, DeriveCampaignStatus(CampaignDraft, nil))
	assert.Equal(t, CampaignReady, DeriveCampaignStatus(CampaignReady, []OutreachEmail{draft, draft}))
	assert.Equal(t, CampaignSent, DeriveCampaignStatus(CampaignSending, []OutreachEmail{sent, sent}))
	assert.Equal(t, CampaignSending, DeriveCampaignStatus(CampaignSending, []OutreachEmail{sent, draft}))
	assert.Equal(t, CampaignSending, DeriveCampaignStatus(CampaignSending, []OutreachEmail{sent, failed, draft, draft}))
	// Partial dispatch outside an active send is paused, never back to ready.
	assert.Equal(t, CampaignPaused, DeriveCampaignStatus(CampaignReady, []OutreachEmail{sent, draft}))
	// A finished send with failures is paused, not sent.
	assert.Equal(t, CampaignPaused, DeriveCampaignStatus(CampaignSending, []OutreachEmail{sent, failed}))
}

func TestMessageEditableAndSendable(t *testing.T) {
	assert.True(t, (&OutreachThreadMessage{Status: MessageDraft}).Editable())
	assert.True(t, (&OutreachThreadMessage{Status: MessageApproved}).Editable())
	assert.False(t, (&OutreachThreadMessage{Status: MessageSent}).Editable())
	assert.False(t, (&OutreachThreadMessage{Status: MessageFailed}).Editable())

	assert.True(t, (&OutreachThreadMessage{Status: MessageFailed}).Sendable())
	assert.True(t, (&OutreachThreadMessage{Status: MessageDraft}).Sendable())
	assert.False(t, (&OutreachThreadMessage{Status: MessageSent}).Sendable())
}

func TestPrincipalOwner(t *testing.T) {
	db := testDB(t)

	owner, err := PrincipalOwner(db, 5)
	require.NoError(t, err)
	assert.Nil(t, owner)

	require.NoError(t, db.Create(&Contact{CompanyID: 5, Name: "Jane Roe"}).Error)
	require.NoError(t, db.Create(&Contact{CompanyID: 5, Name: "John Doe", IsPrincipalOwner: true}).Error)

	owner, err = PrincipalOwner(db, 5)
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, "John Doe", owner.Name)
}
