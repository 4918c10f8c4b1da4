package utils

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"gorm.io/gorm"

	"dealforge/models"
)

// OutreachSender is the send gateway: it dispatches thread messages and
// legacy campaign emails through the mail transport and records the
// outcome, driving the thread state machine on success.
type OutreachSender struct {
	DB        *gorm.DB
	Transport MailTransport
	Logger    *log.Logger

	// SendDelay spaces out consecutive sends in a bulk run to stay under
	// Gmail throttling.
	SendDelay time.Duration
}

func NewOutreachSender(db *gorm.DB, transport MailTransport, logger *log.Logger, sendDelay time.Duration) *OutreachSender {
	if sendDelay == 0 {
		sendDelay = 2 * time.Second
	}
	return &OutreachSender{DB: db, Transport: transport, Logger: logger, SendDelay: sendDelay}
}

// SendResult is returned for a successful single-message send.
type SendResult struct {
	MessageID      uint   `json:"message_id"`
	GmailMessageID string `json:"gmail_message_id"`
	GmailThreadID  string `json:"gmail_thread_id"`
}

// BulkResult tallies a batch operation. Per-item failures are counted,
// never raised; one message's failure leaves its siblings untouched.
type BulkResult struct {
	Total  int `json:"total"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// SendThreadMessage dispatches one thread message. On success the message
// becomes sent with provider ids recorded and the thread moves to
// awaiting_response with last_sent_at stamped. On transport failure the
// message becomes failed with the error recorded, eligible for retry.
// Sending is one-way: a message that is already sent is rejected before
// any external I/O.
func (s *OutreachSender) SendThreadMessage(ctx context.Context, messageID uint, credential, senderEmail string) (*SendResult, error) {
	if credential == "" {
		return nil, &MissingCredentialError{}
	}

	var message models.OutreachThreadMessage
	if err := s.DB.First(&message, messageID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &NotFoundError{Entity: "message", ID: messageID}
		}
		return nil, err
	}

	if message.Status == models.MessageSent {
		return nil, &ImmutableStateError{
			Reason: fmt.Sprintf("message %d has already been sent", message.ID),
		}
	}

	var thread models.OutreachThread
	if err := s.DB.Preload("Messages", func(db *gorm.DB) *gorm.DB {
		return db.Order("sequence ASC")
	}).First(&thread, message.ThreadID).Error; err != nil {
		return nil, err
	}

	// Thread the reply onto the earliest provider conversation we know of.
	var priorThreadID string
	for _, m := range thread.Messages {
		if m.ID != message.ID && m.GmailThreadID != "" {
			priorThreadID = m.GmailThreadID
			break
		}
	}

	receipt, err := s.Transport.Send(ctx, credential, OutboundMessage{
		From:     senderEmail,
		To:       message.ToEmail,
		Subject:  message.Subject,
		BodyHTML: message.BodyHTML,
		ThreadID: priorThreadID,
	})
	if err != nil {
		message.Status = models.MessageFailed
		message.ErrorMessage = truncate(err.Error(), 500)
		if dberr := s.DB.Save(&message).Error; dberr != nil {
			s.Logger.Printf("Failed to record send failure for message %d: %v", message.ID, dberr)
		}
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("component", "send-gateway")
			scope.SetExtra("message_id", message.ID)
			scope.SetExtra("to_email", message.ToEmail)
			sentry.CaptureException(err)
		})
		s.Logger.Printf("Failed to send message %d to %s: %v", message.ID, message.ToEmail, err)
		return nil, err
	}

	now := time.Now()
	message.Status = models.MessageSent
	message.SentAt = &now
	message.GmailMessageID = receipt.ProviderMessageID
	message.GmailThreadID = receipt.ProviderThreadID
	message.ErrorMessage = ""
	if err := s.DB.Save(&message).Error; err != nil {
		return nil, err
	}

	if models.CanTransition(thread.Status, models.ThreadAwaitingResponse) {
		thread.Status = models.ThreadAwaitingResponse
	}
	thread.LastSentAt = &now
	if err := s.DB.Model(&thread).Updates(map[string]interface{}{
		"status":       thread.Status,
		"last_sent_at": now,
	}).Error; err != nil {
		return nil, err
	}

	s.Logger.Printf("Sent message %d to %s (gmail_id=%s)", message.ID, message.ToEmail, receipt.ProviderMessageID)
	return &SendResult{
		MessageID:      message.ID,
		GmailMessageID: receipt.ProviderMessageID,
		GmailThreadID:  receipt.ProviderThreadID,
	}, nil
}

// BulkProgress reports one bulk-send outcome as it happens (websocket
// progress stream). May be nil.
type BulkProgress func(messageID uint, sent bool, errMsg string)

// BulkSendThreadMessages sends a batch sequentially with a delay between
// dispatches. Best-effort by design: every item is attempted, outcomes are
// tallied independently, nothing is rolled back.
func (s *OutreachSender) BulkSendThreadMessages(ctx context.Context, messageIDs []uint, credential, senderEmail string, progress BulkProgress) (*BulkResult, error) {
	if credential == "" {
		return nil, &MissingCredentialError{}
	}

	result := &BulkResult{Total: len(messageIDs)}
	for i, mid := range messageIDs {
		_, err := s.SendThreadMessage(ctx, mid, credential, senderEmail)
		if err != nil {
			result.Failed++
			s.Logger.Printf("Bulk send: message %d failed: %v", mid, err)
			if progress != nil {
				progress(mid, false, err.Error())
			}
		} else {
			result.Sent++
			if progress != nil {
				progress(mid, true, "")
			}
		}

		if i < len(messageIDs)-1 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(s.SendDelay):
			}
		}
	}
	return result, nil
}

// SendCampaign dispatches every sendable email in a legacy campaign and
// re-derives the campaign's aggregate status from the resulting email
// states.
func (s *OutreachSender) SendCampaign(ctx context.Context, campaignID uint, credential string) (*BulkResult, error) {
	if credential == "" {
		return nil, &MissingCredentialError{}
	}

	var campaign models.OutreachCampaign
	if err := s.DB.Preload("Emails").First(&campaign, campaignID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &NotFoundError{Entity: "campaign", ID: campaignID}
		}
		return nil, err
	}

	var sendable []models.OutreachEmail
	for _, e := range campaign.Emails {
		if e.Status == models.MessageDraft || e.Status == models.MessageApproved {
			sendable = append(sendable, e)
		}
	}
	if len(sendable) == 0 {
		return &BulkResult{}, nil
	}

	if err := s.DB.Model(&campaign).Update("status", models.CampaignSending).Error; err != nil {
		return nil, err
	}

	result := &BulkResult{Total: len(sendable)}
	for i := range sendable {
		email := &sendable[i]
		receipt, err := s.Transport.Send(ctx, credential, OutboundMessage{
			From:     campaign.SenderEmail,
			To:       email.ToEmail,
			Subject:  email.Subject,
			BodyHTML: email.BodyHTML,
		})
		if err != nil {
			email.Status = models.MessageFailed
			email.ErrorMessage = truncate(err.Error(), 500)
			result.Failed++
			s.Logger.Printf("Campaign %d: failed to send to %s: %v", campaign.ID, email.ToEmail, err)
		} else {
			now := time.Now()
			email.Status = models.MessageSent
			email.SentAt = &now
			email.GmailMessageID = receipt.ProviderMessageID
			result.Sent++
		}
		if dberr := s.DB.Save(email).Error; dberr != nil {
			s.Logger.Printf("Campaign %d: failed to persist email %d: %v", campaign.ID, email.ID, dberr)
		}

		if i < len(sendable)-1 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(s.SendDelay):
			}
		}
	}

	var emails []models.OutreachEmail
	if err := s.DB.Where("campaign_id = ?", campaign.ID).Find(&emails).Error; err != nil {
		return nil, err
	}
	derived := models.DeriveCampaignStatus(models.CampaignSending, emails)
	if err := s.DB.Model(&campaign).Update("status", derived).Error; err != nil {
		return nil, err
	}

	return result, nil
}
