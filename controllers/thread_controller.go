package controller

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"dealforge/config"
	"dealforge/models"
	"dealforge/utils"
)

type ThreadController struct {
	DB      *gorm.DB
	Drafter *utils.Drafter
	Sender  *utils.OutreachSender
	Logger  *log.Logger
}

func NewThreadController(db *gorm.DB, drafter *utils.Drafter, sender *utils.OutreachSender, logger *log.Logger) *ThreadController {
	return &ThreadController{
		DB:      db,
		Drafter: drafter,
		Sender:  sender,
		Logger:  logger,
	}
}

func followUpThreshold() time.Duration {
	days := 5
	if config.AppConfig != nil && config.AppConfig.FollowUpDays > 0 {
		days = config.AppConfig.FollowUpDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// threadView decorates a thread with the derived needs_follow_up flag.
type threadView struct {
	models.OutreachThread
	NeedsFollowUp bool            `json:"needs_follow_up"`
	Company       *models.Company `json:"company,omitempty"`
	Contact       *models.Contact `json:"contact,omitempty"`
}

func toThreadView(t models.OutreachThread, now time.Time) threadView {
	view := threadView{
		OutreachThread: t,
		NeedsFollowUp:  t.NeedsFollowUp(now, followUpThreshold()),
	}
	if t.Company.ID != 0 {
		company := t.Company
		view.Company = &company
	}
	view.Contact = t.Contact
	return view
}

type createThreadInput struct {
	ProjectID uint  `json:"project_id" validate:"required"`
	CompanyID uint  `json:"company_id" validate:"required"`
	ContactID *uint `json:"contact_id"`
}

// CreateThread creates (or returns) the thread for a (project, company)
// pair. Creation is idempotent; when no contact is given the company's
// principal owner is picked automatically.
func (tc *ThreadController) CreateThread(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input createThreadInput
	if err := c.BodyParser(&input); err != nil {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var member models.ProjectCompany
	if err := tc.DB.Where("project_id = ? AND company_id = ?", input.ProjectID, input.CompanyID).
		First(&member).Error; err != nil {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Company is not in this project", nil)
	}

	contactID := input.ContactID
	if contactID == nil {
		owner, err := models.PrincipalOwner(tc.DB, input.CompanyID)
		if err != nil {
			return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to look up principal owner", err)
		}
		if owner != nil {
			contactID = &owner.ID
		}
	}

	thread, created, err := models.FindOrCreateThread(tc.DB, input.ProjectID, input.CompanyID, contactID, user.ID)
	if err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to create thread", err)
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(utils.SuccessResponse(fiber.Map{
		"thread":  toThreadView(*thread, time.Now()),
		"created": created,
	}))
}

// GetThreads lists threads, filterable by project, status, and the
// derived needs_follow_up flag.
func (tc *ThreadController) GetThreads(c *fiber.Ctx) error {
	query := tc.DB.Model(&models.OutreachThread{}).
		Preload("Company").Preload("Contact").
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		})

	if projectID := c.Query("project_id"); projectID != "" {
		query = query.Where("project_id = ?", utils.ParseUint(projectID))
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var threads []models.OutreachThread
	if err := query.Order("updated_at DESC").Find(&threads).Error; err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to fetch threads", err)
	}

	now := time.Now()
	onlyNeedsFollowUp := c.Query("needs_follow_up") == "true"
	views := make([]threadView, 0, len(threads))
	for _, t := range threads {
		view := toThreadView(t, now)
		if onlyNeedsFollowUp && !view.NeedsFollowUp {
			continue
		}
		views = append(views, view)
	}

	return c.JSON(utils.SuccessResponse(views))
}

// GetThread returns one thread with its full message history.
func (tc *ThreadController) GetThread(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	var thread models.OutreachThread
	err := tc.DB.Preload("Company").Preload("Contact").
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		First(&thread, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, &utils.NotFoundError{Entity: "thread", ID: id})
		}
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to fetch thread", err)
	}

	return c.JSON(utils.SuccessResponse(toThreadView(thread, time.Now())))
}

type updateThreadInput struct {
	Status          *string               `json:"status"`
	ContactID       *uint                 `json:"contact_id"`
	ResponseSummary *string               `json:"response_summary"`
	NextFollowUpAt  *time.Time            `json:"next_follow_up_at"`
	ProposedSlots   []models.ProposedSlot `json:"proposed_slots"`
}

// UpdateThread is the generic patch. Status changes go through the same
// transition table as the named operations; nothing bypasses it.
func (tc *ThreadController) UpdateThread(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	var thread models.OutreachThread
	if err := tc.DB.First(&thread, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, &utils.NotFoundError{Entity: "thread", ID: id})
		}
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to fetch thread", err)
	}

	var input updateThreadInput
	if err := c.BodyParser(&input); err != nil {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if input.Status != nil && *input.Status != thread.Status {
		if !models.CanTransition(thread.Status, *input.Status) {
			return utils.ErrorResponse(c, &utils.InvalidTransitionError{
				From: thread.Status, To: *input.Status,
			})
		}
		thread.Status = *input.Status
	}
	if input.ContactID != nil {
		var contact models.Contact
		if err := tc.DB.First(&contact, *input.ContactID).Error; err != nil {
			return utils.ErrorResponse(c, &utils.NotFoundError{Entity: "contact", ID: *input.ContactID})
		}
		if contact.CompanyID != thread.CompanyID {
			return utils.FailResponse(c, fiber.StatusBadRequest, "Contact belongs to a different company", nil)
		}
		thread.ContactID = input.ContactID
	}
	if input.ResponseSummary != nil {
		thread.ResponseSummary = *input.ResponseSummary
	}
	if input.NextFollowUpAt != nil {
		thread.NextFollowUpAt = input.NextFollowUpAt
	}
	if input.ProposedSlots != nil {
		thread.ProposedSlots = input.ProposedSlots
	}

	if err := tc.DB.Save(&thread).Error; err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to update thread", err)
	}

	return c.JSON(utils.SuccessResponse(toThreadView(thread, time.Now())))
}

// DeleteThread removes a thread and its messages. Explicit deletion is
// the one path that erases history.
func (tc *ThreadController) DeleteThread(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	var thread models.OutreachThread
	if err := tc.DB.First(&thread, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, &utils.NotFoundError{Entity: "thread", ID: id})
		}
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to fetch thread", err)
	}

	err := tc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("thread_id = ?", id).
			Delete(&models.OutreachThreadMessage{}).Error; err != nil {
			return err
		}
		return tx.Delete(&thread).Error
	})
	if err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to delete thread", err)
	}

	return c.JSON(fiber.Map{"message": "Thread deleted"})
}

type generateDraftInput struct {
	MessageType   string                `json:"message_type" validate:"omitempty,oneof=initial follow_up scheduling_reply"`
	CustomPrompt  string                `json:"custom_prompt"`
	ProposedSlots []models.ProposedSlot `json:"proposed_slots"`
}

// GenerateDraft appends a new AI draft to the thread. Regeneration is
// the same call again; the latest draft wins.
func (tc *ThreadController) GenerateDraft(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	var input generateDraftInput
	if err := c.BodyParser(&input); err != nil {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if input.MessageType == "" {
		input.MessageType = models.MessageInitial
	}

	message, err := tc.Drafter.GenerateDraft(c.Context(), id, input.MessageType, input.CustomPrompt, input.ProposedSlots)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(message))
}

// SchedulingReply stores the proposed slots on the thread and drafts the
// scheduling email embedding them. Requires 2-5 slots.
func (tc *ThreadController) SchedulingReply(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	var input struct {
		ProposedSlots []models.ProposedSlot `json:"proposed_slots"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if len(input.ProposedSlots) < 2 || len(input.ProposedSlots) > 5 {
		return utils.ErrorResponse(c, &utils.InsufficientSlotsError{Given: len(input.ProposedSlots)})
	}

	var thread models.OutreachThread
	if err := tc.DB.First(&thread, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, &utils.NotFoundError{Entity: "thread", ID: id})
		}
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to fetch thread", err)
	}

	message, err := tc.Drafter.GenerateDraft(c.Context(), id, models.MessageSchedulingReply, "", input.ProposedSlots)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	thread.ProposedSlots = input.ProposedSlots
	if err := tc.DB.Save(&thread).Error; err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to store proposed slots", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(message))
}

type updateMessageInput struct {
	Subject  *string `json:"subject"`
	BodyHTML *string `json:"body_html"`
	Status   *string `json:"status"`
}

// UpdateMessage edits a draft/approved message. Sent messages are
// immutable.
func (tc *ThreadController) UpdateMessage(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	var input updateMessageInput
	if err := c.BodyParser(&input); err != nil {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	message, err := tc.Drafter.UpdateMessage(id, input.Subject, input.BodyHTML, input.Status)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	return c.JSON(utils.SuccessResponse(message))
}

// MarkResponded records that the target wrote back. Legal only from sent
// or awaiting_response.
func (tc *ThreadController) MarkResponded(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	var input struct {
		ResponseSummary string `json:"response_summary"`
	}
	_ = c.BodyParser(&input)

	var thread models.OutreachThread
	if err := tc.DB.First(&thread, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, &utils.NotFoundError{Entity: "thread", ID: id})
		}
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to fetch thread", err)
	}

	if thread.Status != models.ThreadSent && thread.Status != models.ThreadAwaitingResponse {
		return utils.ErrorResponse(c, &utils.InvalidTransitionError{
			From: thread.Status, To: models.ThreadResponded,
		})
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":               models.ThreadResponded,
		"response_received_at": now,
	}
	if input.ResponseSummary != "" {
		updates["response_summary"] = input.ResponseSummary
	}
	if err := tc.DB.Model(&thread).Updates(updates).Error; err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to update thread", err)
	}

	return c.JSON(utils.SuccessResponse(toThreadView(thread, now)))
}

// Pass closes the thread. Legal from any non-terminal state; terminal.
func (tc *ThreadController) Pass(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	var thread models.OutreachThread
	if err := tc.DB.First(&thread, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, &utils.NotFoundError{Entity: "thread", ID: id})
		}
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to fetch thread", err)
	}

	if !models.CanTransition(thread.Status, models.ThreadPassed) {
		return utils.ErrorResponse(c, &utils.InvalidTransitionError{
			From: thread.Status, To: models.ThreadPassed,
		})
	}

	if err := tc.DB.Model(&thread).Update("status", models.ThreadPassed).Error; err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to update thread", err)
	}

	return c.JSON(utils.SuccessResponse(toThreadView(thread, time.Now())))
}

type bulkGenerateInput struct {
	ProjectID  uint   `json:"project_id" validate:"required"`
	CompanyIDs []uint `json:"company_ids"`
}

type bulkGenerateResult struct {
	Total     int      `json:"total"`
	Generated int      `json:"generated"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors"`
}

// BulkGenerate ensures a thread per company and drafts the initial email
// for each, with bounded concurrency. Companies without a usable
// principal-owner email, or whose initial is already sent, are skipped.
// Always 200 with a tally.
func (tc *ThreadController) BulkGenerate(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input bulkGenerateInput
	if err := c.BodyParser(&input); err != nil {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	companyIDs := input.CompanyIDs
	if len(companyIDs) == 0 {
		if err := tc.DB.Model(&models.ProjectCompany{}).
			Where("project_id = ?", input.ProjectID).
			Pluck("company_id", &companyIDs).Error; err != nil {
			return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to list project companies", err)
		}
	}

	result := bulkGenerateResult{Total: len(companyIDs), Errors: []string{}}
	var mu sync.Mutex

	limit := 5
	if config.AppConfig != nil && config.AppConfig.MaxConcurrentGenerations > 0 {
		limit = config.AppConfig.MaxConcurrentGenerations
	}
	g, gctx := errgroup.WithContext(c.Context())
	g.SetLimit(limit)

	for _, cid := range companyIDs {
		companyID := cid
		g.Go(func() error {
			skip := func(reason string) {
				mu.Lock()
				result.Skipped++
				if reason != "" {
					result.Errors = append(result.Errors, reason)
				}
				mu.Unlock()
			}

			owner, err := models.PrincipalOwner(tc.DB, companyID)
			if err != nil {
				skip(fmt.Sprintf("company %d: %v", companyID, err))
				return nil
			}

			var contactID *uint
			if owner != nil {
				contactID = &owner.ID
			}
			thread, _, err := models.FindOrCreateThread(tc.DB, input.ProjectID, companyID, contactID, user.ID)
			if err != nil {
				skip(fmt.Sprintf("company %d: %v", companyID, err))
				return nil
			}

			if !owner.HasDeliverableEmail() {
				skip("")
				return nil
			}

			var sentInitial int64
			tc.DB.Model(&models.OutreachThreadMessage{}).
				Where("thread_id = ? AND message_type = ? AND status = ?",
					thread.ID, models.MessageInitial, models.MessageSent).
				Count(&sentInitial)
			if sentInitial > 0 {
				skip("")
				return nil
			}

			if _, err := tc.Drafter.GenerateDraft(gctx, thread.ID, models.MessageInitial, "", nil); err != nil {
				skip(fmt.Sprintf("company %d: %v", companyID, err))
				return nil
			}

			mu.Lock()
			result.Generated++
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	tc.Logger.Printf("Bulk generate: project=%d total=%d generated=%d skipped=%d",
		input.ProjectID, result.Total, result.Generated, result.Skipped)
	return c.JSON(utils.SuccessResponse(result))
}

// SendMessage dispatches one message through the Gmail gateway. The
// OAuth token arrives in X-Gmail-Token and is never stored.
func (tc *ThreadController) SendMessage(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	id := utils.ParseUint(c.Params("id"))

	var input struct {
		SenderEmail string `json:"sender_email"`
	}
	_ = c.BodyParser(&input)
	if input.SenderEmail == "" {
		input.SenderEmail = user.Email
	}

	credential := c.Get("X-Gmail-Token")
	result, err := tc.Sender.SendThreadMessage(c.Context(), id, credential, input.SenderEmail)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	return c.JSON(utils.SuccessResponse(result))
}

type bulkSendInput struct {
	MessageIDs  []uint `json:"message_ids" validate:"required,min=1"`
	SenderEmail string `json:"sender_email"`
}

// BulkSend dispatches a batch sequentially with the configured delay.
// Per-message outcomes stream to websocket subscribers; the response is
// the final tally. One failure never aborts its siblings.
func (tc *ThreadController) BulkSend(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input bulkSendInput
	if err := c.BodyParser(&input); err != nil {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if input.SenderEmail == "" {
		input.SenderEmail = user.Email
	}

	credential := c.Get("X-Gmail-Token")
	total := len(input.MessageIDs)
	var done int

	result, err := tc.Sender.BulkSendThreadMessages(c.Context(), input.MessageIDs, credential, input.SenderEmail,
		func(messageID uint, sent bool, errMsg string) {
			done++
			BroadcastSendProgress(SendProgressEvent{
				MessageID: messageID,
				Sent:      sent,
				Error:     errMsg,
				Done:      done,
				Total:     total,
			})
		})
	if err != nil {
		if result == nil {
			return utils.ErrorResponse(c, err)
		}
		// Context cancelled mid-batch: report what was attempted.
		tc.Logger.Printf("Bulk send interrupted: %v", err)
	}

	return c.JSON(utils.SuccessResponse(result))
}
