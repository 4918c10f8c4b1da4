package controller

import (
	"log"
	"sync"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"dealforge/config"
	"dealforge/models"
	"dealforge/utils"
)

// CampaignController drives the legacy flat bulk-blast model: one
// template prompt generating an email per contact across a project.
type CampaignController struct {
	DB      *gorm.DB
	Drafter *utils.Drafter
	Sender  *utils.OutreachSender
	Logger  *log.Logger
}

func NewCampaignController(db *gorm.DB, drafter *utils.Drafter, sender *utils.OutreachSender, logger *log.Logger) *CampaignController {
	return &CampaignController{
		DB:      db,
		Drafter: drafter,
		Sender:  sender,
		Logger:  logger,
	}
}

type campaignInput struct {
	ProjectID       uint   `json:"project_id" validate:"required"`
	Name            string `json:"name" validate:"required,max=200"`
	SubjectTemplate string `json:"subject_template" validate:"required,max=500"`
	BodyPrompt      string `json:"body_prompt" validate:"required"`
	SenderEmail     string `json:"sender_email" validate:"required,email"`
}

// CreateCampaign creates a campaign in draft.
func (cc *CampaignController) CreateCampaign(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input campaignInput
	if err := c.BodyParser(&input); err != nil {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var project models.Project
	if err := cc.DB.First(&project, input.ProjectID).Error; err != nil {
		return utils.ErrorResponse(c, &utils.NotFoundError{Entity: "project", ID: input.ProjectID})
	}

	campaign := models.OutreachCampaign{
		ProjectID:       input.ProjectID,
		Name:            input.Name,
		SubjectTemplate: input.SubjectTemplate,
		BodyPrompt:      input.BodyPrompt,
		SenderEmail:     input.SenderEmail,
		Status:          models.CampaignDraft,
		CreatedBy:       user.ID,
	}
	if err := cc.DB.Create(&campaign).Error; err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to create campaign", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(campaign))
}

// GetCampaigns lists campaigns with derived status and email tallies.
func (cc *CampaignController) GetCampaigns(c *fiber.Ctx) error {
	query := cc.DB.Model(&models.OutreachCampaign{}).Preload("Emails")
	if projectID := c.Query("project_id"); projectID != "" {
		query = query.Where("project_id = ?", utils.ParseUint(projectID))
	}

	var campaigns []models.OutreachCampaign
	if err := query.Order("created_at DESC").Find(&campaigns).Error; err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to fetch campaigns", err)
	}

	type campaignView struct {
		models.OutreachCampaign
		DerivedStatus string `json:"derived_status"`
		EmailCount    int    `json:"email_count"`
		SentCount     int    `json:"sent_count"`
	}
	views := make([]campaignView, 0, len(campaigns))
	for _, cp := range campaigns {
		sent := 0
		for _, e := range cp.Emails {
			if e.Status == models.MessageSent {
				sent++
			}
		}
		views = append(views, campaignView{
			OutreachCampaign: cp,
			DerivedStatus:    models.DeriveCampaignStatus(cp.Status, cp.Emails),
			EmailCount:       len(cp.Emails),
			SentCount:        sent,
		})
	}

	return c.JSON(utils.SuccessResponse(views))
}

// GetCampaign returns one campaign with its generated emails.
func (cc *CampaignController) GetCampaign(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	var campaign models.OutreachCampaign
	err := cc.DB.Preload("Emails.Contact").Preload("Emails.Company").
		First(&campaign, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, &utils.NotFoundError{Entity: "campaign", ID: id})
		}
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to fetch campaign", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"campaign":       campaign,
		"derived_status": models.DeriveCampaignStatus(campaign.Status, campaign.Emails),
	}))
}

// DeleteCampaign removes a campaign and its emails.
func (cc *CampaignController) DeleteCampaign(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	var campaign models.OutreachCampaign
	if err := cc.DB.First(&campaign, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, &utils.NotFoundError{Entity: "campaign", ID: id})
		}
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to fetch campaign", err)
	}

	err := cc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("campaign_id = ?", id).Delete(&models.OutreachEmail{}).Error; err != nil {
			return err
		}
		return tx.Delete(&campaign).Error
	})
	if err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to delete campaign", err)
	}

	return c.JSON(fiber.Map{"message": "Campaign deleted"})
}

type generateEmailsResult struct {
	Total     int      `json:"total"`
	Generated int      `json:"generated"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors"`
}

// GenerateEmails drafts one personalized email per reachable contact in
// the campaign's project. Regeneration deletes prior unsent drafts first;
// sent emails are never touched.
func (cc *CampaignController) GenerateEmails(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	var campaign models.OutreachCampaign
	if err := cc.DB.First(&campaign, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, &utils.NotFoundError{Entity: "campaign", ID: id})
		}
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to fetch campaign", err)
	}
	if campaign.Status == models.CampaignSending || campaign.Status == models.CampaignGenerating {
		return utils.ErrorResponse(c, &utils.ImmutableStateError{
			Reason: "campaign is currently " + campaign.Status,
		})
	}

	var project models.Project
	if err := cc.DB.First(&project, campaign.ProjectID).Error; err != nil {
		return utils.ErrorResponse(c, &utils.NotFoundError{Entity: "project", ID: campaign.ProjectID})
	}

	var links []models.ProjectCompany
	if err := cc.DB.Where("project_id = ?", campaign.ProjectID).Find(&links).Error; err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to list project companies", err)
	}

	if err := cc.DB.Model(&campaign).Update("status", models.CampaignGenerating).Error; err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to update campaign", err)
	}
	if err := cc.DB.Where("campaign_id = ? AND status IN ?", id,
		[]string{models.MessageDraft, models.MessageApproved}).
		Delete(&models.OutreachEmail{}).Error; err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to clear prior drafts", err)
	}

	result := generateEmailsResult{Total: len(links), Errors: []string{}}
	var mu sync.Mutex

	limit := 5
	if config.AppConfig != nil && config.AppConfig.MaxConcurrentGenerations > 0 {
		limit = config.AppConfig.MaxConcurrentGenerations
	}
	g, gctx := errgroup.WithContext(c.Context())
	g.SetLimit(limit)

	for _, link := range links {
		companyID := link.CompanyID
		g.Go(func() error {
			var company models.Company
			if err := cc.DB.First(&company, companyID).Error; err != nil {
				mu.Lock()
				result.Skipped++
				mu.Unlock()
				return nil
			}

			owner, err := models.PrincipalOwner(cc.DB, companyID)
			if err != nil || !owner.HasDeliverableEmail() {
				mu.Lock()
				result.Skipped++
				mu.Unlock()
				return nil
			}

			subject, bodyHTML, err := cc.Drafter.ComposeCampaignEmail(gctx, &company, owner, &project, &campaign)
			if err != nil {
				mu.Lock()
				result.Skipped++
				result.Errors = append(result.Errors, company.Name+": "+err.Error())
				mu.Unlock()
				return nil
			}

			email := models.OutreachEmail{
				CampaignID: campaign.ID,
				ContactID:  owner.ID,
				CompanyID:  company.ID,
				ToEmail:    owner.Email,
				Subject:    subject,
				BodyHTML:   bodyHTML,
				Status:     models.MessageDraft,
			}
			if err := cc.DB.Create(&email).Error; err != nil {
				mu.Lock()
				result.Skipped++
				result.Errors = append(result.Errors, company.Name+": "+err.Error())
				mu.Unlock()
				return nil
			}

			mu.Lock()
			result.Generated++
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	finalStatus := models.CampaignReady
	if result.Generated == 0 {
		finalStatus = models.CampaignDraft
	}
	if err := cc.DB.Model(&campaign).Update("status", finalStatus).Error; err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to update campaign", err)
	}

	cc.Logger.Printf("Campaign %d: generated=%d skipped=%d", id, result.Generated, result.Skipped)
	return c.JSON(utils.SuccessResponse(result))
}

// UpdateEmail edits one generated email while it is still draft/approved.
func (cc *CampaignController) UpdateEmail(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("emailId"))

	var email models.OutreachEmail
	if err := cc.DB.First(&email, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, &utils.NotFoundError{Entity: "email", ID: id})
		}
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to fetch email", err)
	}
	if email.Status != models.MessageDraft && email.Status != models.MessageApproved {
		return utils.ErrorResponse(c, &utils.ImmutableStateError{
			Reason: "email has already been " + email.Status,
		})
	}

	var input updateMessageInput
	if err := c.BodyParser(&input); err != nil {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if input.Subject != nil {
		email.Subject = *input.Subject
	}
	if input.BodyHTML != nil {
		email.BodyHTML = *input.BodyHTML
	}
	if input.Status != nil {
		if *input.Status != models.MessageDraft && *input.Status != models.MessageApproved {
			return utils.ErrorResponse(c, &utils.ImmutableStateError{
				Reason: "email status can only be set to draft or approved",
			})
		}
		email.Status = *input.Status
	}

	if err := cc.DB.Save(&email).Error; err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to update email", err)
	}
	return c.JSON(utils.SuccessResponse(email))
}

// SendCampaign dispatches every sendable email sequentially. Always 200
// with the tally unless the credential is missing entirely.
func (cc *CampaignController) SendCampaign(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	credential := c.Get("X-Gmail-Token")
	result, err := cc.Sender.SendCampaign(c.Context(), id, credential)
	if err != nil {
		if result == nil {
			return utils.ErrorResponse(c, err)
		}
		cc.Logger.Printf("Campaign %d send interrupted: %v", id, err)
	}

	return c.JSON(utils.SuccessResponse(result))
}
