package controller

import (
	"log"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"dealforge/models"
	"dealforge/utils"
)

type CompanyController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewCompanyController(db *gorm.DB, logger *log.Logger) *CompanyController {
	return &CompanyController{
		DB:     db,
		Logger: logger,
	}
}

type companyInput struct {
	Name          string  `json:"name" validate:"required,max=200"`
	Website       string  `json:"website" validate:"omitempty,max=500"`
	HQLocation    string  `json:"hq_location" validate:"omitempty,max=200"`
	EmployeeCount int     `json:"employee_count" validate:"omitempty,gte=0"`
	Sector        string  `json:"sector" validate:"omitempty,max=100"`
	OwnershipType string  `json:"ownership_type" validate:"omitempty,max=50"`
	RevenueLow    float64 `json:"revenue_low" validate:"omitempty,gte=0"`
	RevenueHigh   float64 `json:"revenue_high" validate:"omitempty,gte=0"`
	EBITDALow     float64 `json:"ebitda_low"`
	EBITDAHigh    float64 `json:"ebitda_high"`
	Stage         string  `json:"stage" validate:"omitempty,max=50"`
	Source        string  `json:"source" validate:"omitempty,max=200"`
	Notes         string  `json:"notes"`
}

// CreateCompany adds a target business to the pipeline.
func (cc *CompanyController) CreateCompany(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input companyInput
	if err := c.BodyParser(&input); err != nil {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	company := models.Company{
		Name:          input.Name,
		Website:       input.Website,
		HQLocation:    input.HQLocation,
		EmployeeCount: input.EmployeeCount,
		Sector:        input.Sector,
		OwnershipType: input.OwnershipType,
		RevenueLow:    input.RevenueLow,
		RevenueHigh:   input.RevenueHigh,
		EBITDALow:     input.EBITDALow,
		EBITDAHigh:    input.EBITDAHigh,
		Stage:         input.Stage,
		Source:        input.Source,
		Notes:         input.Notes,
		AddedBy:       user.ID,
	}
	if company.Sector == "" {
		company.Sector = "Other"
	}
	if company.Stage == "" {
		company.Stage = models.StageIdentified
	}

	if err := cc.DB.Create(&company).Error; err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to create company", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(company))
}

// GetCompanies returns a paginated, filterable list.
func (cc *CompanyController) GetCompanies(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit > 200 {
		limit = 200
	}

	query := cc.DB.Model(&models.Company{})
	if stage := c.Query("stage"); stage != "" {
		query = query.Where("stage = ?", stage)
	}
	if sector := c.Query("sector"); sector != "" {
		query = query.Where("sector = ?", sector)
	}
	if search := c.Query("search"); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(hq_location) LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to count companies", err)
	}

	var companies []models.Company
	if err := query.Preload("Contacts").
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&companies).Error; err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to fetch companies", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  companies,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetCompany returns one company with contacts.
func (cc *CompanyController) GetCompany(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	var company models.Company
	if err := cc.DB.Preload("Contacts").First(&company, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, &utils.NotFoundError{Entity: "company", ID: id})
		}
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to fetch company", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"company":      company,
		"sector_color": models.SectorColor(company.Sector),
	}))
}

// UpdateCompany patches fields; zero values are ignored except notes and
// stage, which accept explicit values.
func (cc *CompanyController) UpdateCompany(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	var company models.Company
	if err := cc.DB.First(&company, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, &utils.NotFoundError{Entity: "company", ID: id})
		}
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to fetch company", err)
	}

	var input map[string]interface{}
	if err := c.BodyParser(&input); err != nil {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	allowed := map[string]bool{
		"name": true, "website": true, "hq_location": true,
		"employee_count": true, "sector": true, "ownership_type": true,
		"revenue_low": true, "revenue_high": true,
		"ebitda_low": true, "ebitda_high": true,
		"stage": true, "ai_fit_score": true, "source": true, "notes": true,
	}
	updates := map[string]interface{}{}
	for k, v := range input {
		if allowed[k] {
			updates[k] = v
		}
	}
	if stage, ok := updates["stage"].(string); ok {
		valid := false
		for _, s := range models.PipelineStages {
			if s == stage {
				valid = true
				break
			}
		}
		if !valid {
			return utils.FailResponse(c, fiber.StatusBadRequest, "Unknown pipeline stage: "+stage, nil)
		}
	}

	if len(updates) > 0 {
		if err := cc.DB.Model(&company).Updates(updates).Error; err != nil {
			return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to update company", err)
		}
	}

	return c.JSON(utils.SuccessResponse(company))
}

// DeleteCompany removes a company, its contacts, and project memberships.
func (cc *CompanyController) DeleteCompany(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	var company models.Company
	if err := cc.DB.First(&company, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, &utils.NotFoundError{Entity: "company", ID: id})
		}
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to fetch company", err)
	}

	err := cc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("company_id = ?", id).Delete(&models.Contact{}).Error; err != nil {
			return err
		}
		if err := tx.Where("company_id = ?", id).Delete(&models.ProjectCompany{}).Error; err != nil {
			return err
		}
		return tx.Delete(&company).Error
	})
	if err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to delete company", err)
	}

	cc.Logger.Printf("Deleted company %d (%s)", id, company.Name)
	return c.JSON(fiber.Map{"message": "Company deleted"})
}
