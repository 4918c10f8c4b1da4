package controller

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"dealforge/models"
	"dealforge/utils"
)

type ContactController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewContactController(db *gorm.DB, logger *log.Logger) *ContactController {
	return &ContactController{
		DB:     db,
		Logger: logger,
	}
}

type contactInput struct {
	Name             string `json:"name" validate:"required,max=200"`
	Title            string `json:"title" validate:"omitempty,max=200"`
	Email            string `json:"email" validate:"omitempty,email"`
	Phone            string `json:"phone" validate:"omitempty,max=50"`
	LinkedinURL      string `json:"linkedin_url" validate:"omitempty,max=500"`
	FacebookURL      string `json:"facebook_url" validate:"omitempty,max=500"`
	IsPrincipalOwner bool   `json:"is_principal_owner"`
	Notes            string `json:"notes"`
}

// CreateContact adds a person to a company. A manually entered contact is
// marked enrichment_source=manual and completed, which is just as valid
// for drafting as an enriched one.
func (cn *ContactController) CreateContact(c *fiber.Ctx) error {
	companyID := utils.ParseUint(c.Params("companyId"))

	var company models.Company
	if err := cn.DB.First(&company, companyID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, &utils.NotFoundError{Entity: "company", ID: companyID})
		}
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to fetch company", err)
	}

	var input contactInput
	if err := c.BodyParser(&input); err != nil {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	now := time.Now()
	contact := models.Contact{
		CompanyID:        companyID,
		Name:             input.Name,
		Title:            input.Title,
		Email:            input.Email,
		Phone:            input.Phone,
		LinkedinURL:      input.LinkedinURL,
		FacebookURL:      input.FacebookURL,
		IsPrincipalOwner: input.IsPrincipalOwner,
		Notes:            input.Notes,
		EnrichmentSource: models.EnrichmentSourceManual,
		EnrichmentStatus: models.EnrichmentCompleted,
		EnrichedAt:       &now,
	}

	err := cn.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&contact).Error; err != nil {
			return err
		}
		if contact.IsPrincipalOwner {
			// One principal owner per company.
			return tx.Model(&models.Contact{}).
				Where("company_id = ? AND id <> ? AND is_principal_owner = ?", companyID, contact.ID, true).
				Update("is_principal_owner", false).Error
		}
		return nil
	})
	if err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to create contact", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(contact))
}

// GetContacts lists a company's contacts, principal owner first.
func (cn *ContactController) GetContacts(c *fiber.Ctx) error {
	companyID := utils.ParseUint(c.Params("companyId"))

	var contacts []models.Contact
	if err := cn.DB.Where("company_id = ?", companyID).
		Order("is_principal_owner DESC, created_at ASC").
		Find(&contacts).Error; err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to fetch contacts", err)
	}

	return c.JSON(utils.SuccessResponse(contacts))
}

// UpdateContact patches a contact. Setting an email on a previously
// email-less contact unblocks drafting for its threads.
func (cn *ContactController) UpdateContact(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	var contact models.Contact
	if err := cn.DB.First(&contact, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, &utils.NotFoundError{Entity: "contact", ID: id})
		}
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to fetch contact", err)
	}

	var input map[string]interface{}
	if err := c.BodyParser(&input); err != nil {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	allowed := map[string]bool{
		"name": true, "title": true, "email": true, "phone": true,
		"linkedin_url": true, "facebook_url": true,
		"is_principal_owner": true, "notes": true,
		"enrichment_source": true, "enrichment_status": true,
	}
	updates := map[string]interface{}{}
	for k, v := range input {
		if allowed[k] {
			updates[k] = v
		}
	}

	// A manual correction counts as completed enrichment.
	if src, ok := updates["enrichment_source"].(string); ok && src == models.EnrichmentSourceManual {
		updates["enrichment_status"] = models.EnrichmentCompleted
		updates["enriched_at"] = time.Now()
	}

	err := cn.DB.Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(&contact).Updates(updates).Error; err != nil {
				return err
			}
		}
		if promote, ok := updates["is_principal_owner"].(bool); ok && promote {
			return tx.Model(&models.Contact{}).
				Where("company_id = ? AND id <> ? AND is_principal_owner = ?", contact.CompanyID, contact.ID, true).
				Update("is_principal_owner", false).Error
		}
		return nil
	})
	if err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to update contact", err)
	}

	return c.JSON(utils.SuccessResponse(contact))
}

// DeleteContact removes a contact and unlinks it from any threads.
func (cn *ContactController) DeleteContact(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	var contact models.Contact
	if err := cn.DB.First(&contact, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, &utils.NotFoundError{Entity: "contact", ID: id})
		}
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to fetch contact", err)
	}

	err := cn.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.OutreachThread{}).
			Where("contact_id = ?", id).
			Update("contact_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&contact).Error
	})
	if err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to delete contact", err)
	}

	return c.JSON(fiber.Map{"message": "Contact deleted"})
}
