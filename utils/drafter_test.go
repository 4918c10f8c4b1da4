package utils

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dealforge/models"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.RefreshToken{},
		&models.Company{}, &models.Contact{},
		&models.Project{}, &models.ProjectCompany{},
		&models.OutreachThread{}, &models.OutreachThreadMessage{},
		&models.OutreachCampaign{}, &models.OutreachEmail{},
	))
	return db
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

type fakeLLM struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeLLM) Generate(_ context.Context, prompt string, _ int) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

// seedThread creates a project, company, contact, and thread bound to that
// contact, returning the thread.
func seedThread(t *testing.T, db *gorm.DB, contactEmail string) *models.OutreachThread {
	t.Helper()
	project := models.Project{Name: "HVAC Roll-Up", Description: "Residential HVAC thesis"}
	require.NoError(t, db.Create(&project).Error)
	company := models.Company{Name: "Acme Heating", Sector: "HVAC", Stage: models.StageIdentified, AddedBy: 1}
	require.NoError(t, db.Create(&company).Error)

	contact := models.Contact{
		CompanyID: company.ID, Name: "Pat Miller", Title: "Owner",
		Email: contactEmail, IsPrincipalOwner: true,
	}
	require.NoError(t, db.Create(&contact).Error)

	thread, _, err := models.FindOrCreateThread(db, project.ID, company.ID, &contact.ID, 1)
	require.NoError(t, err)
	return thread
}

func TestGenerateDraftInitial(t *testing.T) {
	db := testDB(t)
	thread := seedThread(t, db, "pat@acmeheating.com")
	llm := &fakeLLM{response: `{"subject": "quick question about acme", "body_html": "<p>Hi Pat,</p><p>[SENDER_NAME]</p>"}`}
	drafter := NewDrafter(db, llm, testLogger(), "Test Capital", "")

	msg, err := drafter.GenerateDraft(context.Background(), thread.ID, models.MessageInitial, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, msg.Sequence)
	assert.Equal(t, models.MessageDraft, msg.Status)
	assert.Equal(t, models.MessageInitial, msg.MessageType)
	assert.Equal(t, "pat@acmeheating.com", msg.ToEmail)
	assert.Equal(t, "quick question about acme", msg.Subject)
	assert.Contains(t, msg.BodyHTML, "Hi Pat")

	// Regeneration appends, it never overwrites.
	msg2, err := drafter.GenerateDraft(context.Background(), thread.ID, models.MessageInitial, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, msg2.Sequence)

	var count int64
	db.Model(&models.OutreachThreadMessage{}).Where("thread_id = ?", thread.ID).Count(&count)
	assert.EqualValues(t, 2, count)
}

func TestGenerateDraftNoContact(t *testing.T) {
	db := testDB(t)
	project := models.Project{Name: "P"}
	require.NoError(t, db.Create(&project).Error)
	company := models.Company{Name: "No Owner LLC", AddedBy: 1}
	require.NoError(t, db.Create(&company).Error)
	thread, _, err := models.FindOrCreateThread(db, project.ID, company.ID, nil, 1)
	require.NoError(t, err)

	llm := &fakeLLM{response: `{"subject": "s", "body_html": "<p>b</p>"}`}
	drafter := NewDrafter(db, llm, testLogger(), "", "")

	_, err = drafter.GenerateDraft(context.Background(), thread.ID, models.MessageInitial, "", nil)
	var missing *MissingContactError
	require.ErrorAs(t, err, &missing)

	// No completion call and no message row on a guard failure.
	assert.Empty(t, llm.prompts)
	var count int64
	db.Model(&models.OutreachThreadMessage{}).Count(&count)
	assert.EqualValues(t, 0, count)
}

func TestGenerateDraftContactWithoutEmail(t *testing.T) {
	db := testDB(t)
	thread := seedThread(t, db, "")
	drafter := NewDrafter(db, &fakeLLM{}, testLogger(), "", "")

	_, err := drafter.GenerateDraft(context.Background(), thread.ID, models.MessageInitial, "", nil)
	var missing *MissingContactError
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, missing.Reason, "no email address")
}

func TestGenerateDraftLateBindsPrincipalOwner(t *testing.T) {
	db := testDB(t)
	project := models.Project{Name: "P"}
	require.NoError(t, db.Create(&project).Error)
	company := models.Company{Name: "Late Bind Co", AddedBy: 1}
	require.NoError(t, db.Create(&company).Error)
	thread, _, err := models.FindOrCreateThread(db, project.ID, company.ID, nil, 1)
	require.NoError(t, err)

	owner := models.Contact{
		CompanyID: company.ID, Name: "Dana Owner",
		Email: "dana@latebind.co", IsPrincipalOwner: true,
	}
	require.NoError(t, db.Create(&owner).Error)

	llm := &fakeLLM{response: `{"subject": "s", "body_html": "<p>b</p>"}`}
	drafter := NewDrafter(db, llm, testLogger(), "", "")

	msg, err := drafter.GenerateDraft(context.Background(), thread.ID, models.MessageInitial, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "dana@latebind.co", msg.ToEmail)

	var reloaded models.OutreachThread
	require.NoError(t, db.First(&reloaded, thread.ID).Error)
	require.NotNil(t, reloaded.ContactID)
	assert.Equal(t, owner.ID, *reloaded.ContactID)
}

func TestGenerateDraftFollowUpIncrementsCount(t *testing.T) {
	db := testDB(t)
	thread := seedThread(t, db, "pat@acmeheating.com")
	llm := &fakeLLM{response: `{"subject": "Re: acme", "body_html": "<p>bump</p>"}`}
	drafter := NewDrafter(db, llm, testLogger(), "", "")

	msg, err := drafter.GenerateDraft(context.Background(), thread.ID, models.MessageFollowUp, "", nil)
	require.NoError(t, err)
	assert.Equal(t, models.MessageFollowUp, msg.MessageType)

	var reloaded models.OutreachThread
	require.NoError(t, db.First(&reloaded, thread.ID).Error)
	assert.Equal(t, 1, reloaded.FollowUpCount)

	// The counter tracks generation, not sending.
	_, err = drafter.GenerateDraft(context.Background(), thread.ID, models.MessageFollowUp, "", nil)
	require.NoError(t, err)
	require.NoError(t, db.First(&reloaded, thread.ID).Error)
	assert.Equal(t, 2, reloaded.FollowUpCount)
}

func TestGenerateDraftSchedulingNeedsSlots(t *testing.T) {
	db := testDB(t)
	thread := seedThread(t, db, "pat@acmeheating.com")
	drafter := NewDrafter(db, &fakeLLM{}, testLogger(), "", "")

	oneSlot := []models.ProposedSlot{{Datetime: "2026-09-02T15:00:00Z", Label: "Tue 3pm"}}
	_, err := drafter.GenerateDraft(context.Background(), thread.ID, models.MessageSchedulingReply, "", oneSlot)
	var insufficient *InsufficientSlotsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 1, insufficient.Given)

	_, err = drafter.GenerateDraft(context.Background(), thread.ID, models.MessageSchedulingReply, "", nil)
	require.ErrorAs(t, err, &insufficient)
}

func TestGenerateDraftSchedulingEmbedsSlots(t *testing.T) {
	db := testDB(t)
	thread := seedThread(t, db, "pat@acmeheating.com")
	// Model output mentions only the first slot; the second must be appended.
	llm := &fakeLLM{response: `{"subject": "scheduling", "body_html": "<p>Would Tue 3pm work?</p>"}`}
	drafter := NewDrafter(db, llm, testLogger(), "", "")

	slots := []models.ProposedSlot{
		{Datetime: "2026-09-02T15:00:00Z", Label: "Tue 3pm"},
		{Datetime: "2026-09-03T10:00:00Z", Label: "Wed 10am"},
	}
	msg, err := drafter.GenerateDraft(context.Background(), thread.ID, models.MessageSchedulingReply, "", slots)
	require.NoError(t, err)
	assert.Contains(t, msg.BodyHTML, "Tue 3pm")
	assert.Contains(t, msg.BodyHTML, "Wed 10am")
}

func TestGenerateDraftFallbackOnGarbageCompletion(t *testing.T) {
	db := testDB(t)
	thread := seedThread(t, db, "pat@acmeheating.com")
	llm := &fakeLLM{response: "Sorry, I cannot help with that."}
	drafter := NewDrafter(db, llm, testLogger(), "", "")

	msg, err := drafter.GenerateDraft(context.Background(), thread.ID, models.MessageInitial, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "quick question about Acme Heating", msg.Subject)
	assert.Contains(t, msg.BodyHTML, "edit this email manually")
}

func TestEnsureSlotsEmbedded(t *testing.T) {
	slots := []models.ProposedSlot{
		{Datetime: "2026-09-02T15:00:00Z", Label: "Tue 3pm"},
		{Datetime: "2026-09-03T10:00:00Z"},
	}

	body := ensureSlotsEmbedded("<p>Pick a time.</p>", slots)
	assert.Contains(t, body, "Tue 3pm")
	// Unlabeled slots fall back to the raw datetime.
	assert.Contains(t, body, "2026-09-03T10:00:00Z")

	complete := "<p>Tue 3pm or 2026-09-03T10:00:00Z?</p>"
	assert.Equal(t, complete, ensureSlotsEmbedded(complete, slots))
}

func TestUpdateMessage(t *testing.T) {
	db := testDB(t)
	thread := seedThread(t, db, "pat@acmeheating.com")
	msg := models.OutreachThreadMessage{
		ThreadID: thread.ID, Sequence: 1, ToEmail: "pat@acmeheating.com",
		Subject: "old", BodyHTML: "<p>old</p>", Status: models.MessageDraft,
	}
	require.NoError(t, db.Create(&msg).Error)

	drafter := NewDrafter(db, &fakeLLM{}, testLogger(), "", "")

	newSubject := "new subject"
	approved := models.MessageApproved
	updated, err := drafter.UpdateMessage(msg.ID, &newSubject, nil, &approved)
	require.NoError(t, err)
	assert.Equal(t, "new subject", updated.Subject)
	assert.Equal(t, "<p>old</p>", updated.BodyHTML)
	assert.Equal(t, models.MessageApproved, updated.Status)

	// Status can only move between draft and approved here.
	sent := models.MessageSent
	_, err = drafter.UpdateMessage(msg.ID, nil, nil, &sent)
	var immutable *ImmutableStateError
	require.ErrorAs(t, err, &immutable)

	// Sent messages are immutable outright.
	require.NoError(t, db.Model(&models.OutreachThreadMessage{}).
		Where("id = ?", msg.ID).Update("status", models.MessageSent).Error)
	_, err = drafter.UpdateMessage(msg.ID, &newSubject, nil, nil)
	require.ErrorAs(t, err, &immutable)

	_, err = drafter.UpdateMessage(9999, &newSubject, nil, nil)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}
