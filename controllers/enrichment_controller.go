package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"dealforge/utils"
)

type EnrichmentController struct {
	DB       *gorm.DB
	Enricher *utils.Enricher
	Logger   *log.Logger
}

func NewEnrichmentController(db *gorm.DB, enricher *utils.Enricher, logger *log.Logger) *EnrichmentController {
	return &EnrichmentController{
		DB:       db,
		Enricher: enricher,
		Logger:   logger,
	}
}

// EnrichCompany runs the full owner-discovery pipeline for one company.
// Companies that already have a completed principal owner come back as
// already_enriched without touching the web.
func (ec *EnrichmentController) EnrichCompany(c *fiber.Ctx) error {
	companyID := utils.ParseUint(c.Params("id"))

	result, err := ec.Enricher.EnrichCompany(c.Context(), companyID)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(utils.SuccessResponse(result))
}

// EnrichProject enriches every un-enriched company in a project. Always
// 200 with a tally; per-company failures are counted, never raised.
func (ec *EnrichmentController) EnrichProject(c *fiber.Ctx) error {
	projectID := utils.ParseUint(c.Params("id"))

	summary, err := ec.Enricher.EnrichProject(c.Context(), projectID)
	if err != nil && summary == nil {
		return utils.ErrorResponse(c, err)
	}
	// A cancelled run still reports what it finished.
	return c.JSON(utils.SuccessResponse(summary))
}

// GetStatus reports where a company's principal-owner enrichment stands.
func (ec *EnrichmentController) GetStatus(c *fiber.Ctx) error {
	companyID := utils.ParseUint(c.Params("id"))

	status, err := ec.Enricher.GetStatus(companyID)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(utils.SuccessResponse(status))
}
