package controller

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"dealforge/models"
	"dealforge/utils"
)

type AnalyticsController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewAnalyticsController(db *gorm.DB, logger *log.Logger) *AnalyticsController {
	return &AnalyticsController{
		DB:     db,
		Logger: logger,
	}
}

type statusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// GetDashboard aggregates the pipeline and outreach views: company counts
// per stage, thread counts per status, and the threads overdue for a
// follow-up.
func (ac *AnalyticsController) GetDashboard(c *fiber.Ctx) error {
	// Pipeline: companies per stage, in kanban order even when zero.
	var stageCounts []statusCount
	if err := ac.DB.Model(&models.Company{}).
		Select("stage AS status, COUNT(*) AS count").
		Group("stage").
		Scan(&stageCounts).Error; err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to aggregate pipeline", err)
	}
	byStage := map[string]int64{}
	for _, sc := range stageCounts {
		byStage[sc.Status] = sc.Count
	}
	pipeline := make([]statusCount, 0, len(models.PipelineStages))
	for _, stage := range models.PipelineStages {
		pipeline = append(pipeline, statusCount{Status: stage, Count: byStage[stage]})
	}

	var threadCounts []statusCount
	if err := ac.DB.Model(&models.OutreachThread{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&threadCounts).Error; err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to aggregate threads", err)
	}

	// Follow-up overdue is derived, so filter in memory over the two
	// candidate statuses.
	var candidates []models.OutreachThread
	if err := ac.DB.Preload("Company").Preload("Contact").
		Where("status IN ?", []string{models.ThreadSent, models.ThreadAwaitingResponse}).
		Find(&candidates).Error; err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to fetch threads", err)
	}

	now := time.Now()
	threshold := followUpThreshold()
	needsFollowUp := make([]fiber.Map, 0)
	for _, t := range candidates {
		if !t.NeedsFollowUp(now, threshold) {
			continue
		}
		entry := fiber.Map{
			"thread_id":       t.ID,
			"project_id":      t.ProjectID,
			"company_id":      t.CompanyID,
			"company_name":    t.Company.Name,
			"status":          t.Status,
			"follow_up_count": t.FollowUpCount,
			"last_sent_at":    t.LastSentAt,
		}
		if t.LastSentAt != nil {
			entry["overdue_for"] = utils.FormatDuration(now.Sub(*t.LastSentAt))
		}
		if t.Contact != nil {
			entry["contact_name"] = t.Contact.Name
		}
		needsFollowUp = append(needsFollowUp, entry)
	}

	var companyTotal, contactTotal, projectTotal int64
	ac.DB.Model(&models.Company{}).Count(&companyTotal)
	ac.DB.Model(&models.Contact{}).Count(&contactTotal)
	ac.DB.Model(&models.Project{}).Count(&projectTotal)

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"pipeline":        pipeline,
		"threads":         threadCounts,
		"needs_follow_up": needsFollowUp,
		"totals": fiber.Map{
			"companies": companyTotal,
			"contacts":  contactTotal,
			"projects":  projectTotal,
		},
	}))
}
