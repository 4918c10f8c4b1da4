package controller

import (
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"dealforge/models"
	"dealforge/utils"
)

type SourcingController struct {
	DB       *gorm.DB
	Sourcer  *utils.Sourcer
	Analyzer *utils.Analyzer
	Logger   *log.Logger
}

func NewSourcingController(db *gorm.DB, sourcer *utils.Sourcer, analyzer *utils.Analyzer, logger *log.Logger) *SourcingController {
	return &SourcingController{
		DB:       db,
		Sourcer:  sourcer,
		Analyzer: analyzer,
		Logger:   logger,
	}
}

// Search fans a criteria search out over the deal-listing feeds, the
// NPPES registry, and web discovery, returning scored, ranked targets.
// Identical criteria within the cache TTL come back from redis.
func (sc *SourcingController) Search(c *fiber.Ctx) error {
	var criteria utils.SourcingCriteria
	if err := c.BodyParser(&criteria); err != nil {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if criteria.Sector == "" && criteria.Keywords == "" {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Provide a sector or keywords to search", nil)
	}

	results, cached, err := sc.Sourcer.RunSearch(c.Context(), criteria)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"cached":  cached,
		"count":   len(results),
		"data":    results,
	})
}

// ClearCache drops every cached sourcing search.
func (sc *SourcingController) ClearCache(c *fiber.Ctx) error {
	cleared, err := sc.Sourcer.ClearCache(c.Context())
	if err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to clear cache", err)
	}
	return c.JSON(fiber.Map{"message": "Sourcing cache cleared", "cleared": cleared})
}

type analyzeInput struct {
	Company  utils.SourcedCompany   `json:"company" validate:"required"`
	Criteria utils.SourcingCriteria `json:"criteria"`
	Mode     string                 `json:"mode" validate:"omitempty,oneof=fit_summary deep_dive"`
}

// Analyze writes either a quick fit summary or a full deep-dive profile
// for a sourced target.
func (sc *SourcingController) Analyze(c *fiber.Ctx) error {
	var input analyzeInput
	if err := c.BodyParser(&input); err != nil {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if input.Company.Name == "" {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Company name is required", nil)
	}

	switch input.Mode {
	case "deep_dive":
		profile, err := sc.Analyzer.GenerateDeepDive(c.Context(), input.Company, input.Criteria)
		if err != nil {
			return utils.ErrorResponse(c, err)
		}
		return c.JSON(utils.SuccessResponse(profile))
	default:
		summary, err := sc.Analyzer.GenerateFitSummary(c.Context(), input.Company, input.Criteria)
		if err != nil {
			// Fit summaries degrade to the rule-based reasons rather than
			// failing the card.
			sc.Logger.Printf("Fit summary generation failed for %s: %v", input.Company.Name, err)
			summary = ruleBasedFitSummary(input.Company)
		}
		return c.JSON(utils.SuccessResponse(fiber.Map{"fit_summary": summary}))
	}
}

func ruleBasedFitSummary(co utils.SourcedCompany) string {
	score := 0
	if co.FitScore != nil {
		score = *co.FitScore
	}
	summary := co.Name + " scored " + strconv.Itoa(score) + "/100 against the search criteria."
	for i, reason := range co.FitReasons {
		if i >= 3 {
			break
		}
		summary += " " + reason + "."
	}
	return summary
}

type saveToProjectInput struct {
	ProjectID uint                 `json:"project_id" validate:"required"`
	Company   utils.SourcedCompany `json:"company" validate:"required"`
}

// SaveToProject persists a sourced result as a Company and links it into
// the project. Re-saving the same name is deduped against existing rows.
func (sc *SourcingController) SaveToProject(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input saveToProjectInput
	if err := c.BodyParser(&input); err != nil {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if input.Company.Name == "" {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Company name is required", nil)
	}

	var project models.Project
	if err := sc.DB.First(&project, input.ProjectID).Error; err != nil {
		return utils.ErrorResponse(c, &utils.NotFoundError{Entity: "project", ID: input.ProjectID})
	}

	var company models.Company
	err := sc.DB.Where("LOWER(name) = LOWER(?)", input.Company.Name).First(&company).Error
	if err == gorm.ErrRecordNotFound {
		fitScore := 0
		if input.Company.FitScore != nil {
			fitScore = *input.Company.FitScore
		}
		company = models.Company{
			Name:       input.Company.Name,
			Website:    input.Company.Website,
			HQLocation: input.Company.Location,
			Sector:     input.Company.Sector,
			Stage:      models.StageIdentified,
			AIFitScore: fitScore,
			Source:     input.Company.Source,
			Notes:      input.Company.Description,
			AddedBy:    user.ID,
		}
		if company.Sector == "" {
			company.Sector = "Other"
		}
		if err := sc.DB.Create(&company).Error; err != nil {
			return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to save company", err)
		}
	} else if err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to look up company", err)
	}

	var membership models.ProjectCompany
	err = sc.DB.Where("project_id = ? AND company_id = ?", input.ProjectID, company.ID).
		First(&membership).Error
	if err == gorm.ErrRecordNotFound {
		membership = models.ProjectCompany{
			ProjectID: input.ProjectID,
			CompanyID: company.ID,
			AddedBy:   user.ID,
			Notes:     "Saved from sourcing (" + input.Company.Source + ")",
		}
		if err := sc.DB.Create(&membership).Error; err != nil {
			return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to link company to project", err)
		}
	} else if err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to check membership", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(fiber.Map{
		"company":    company,
		"membership": membership,
	}))
}
