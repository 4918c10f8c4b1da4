package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"dealforge/models"
	"dealforge/utils"
)

type ProjectController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewProjectController(db *gorm.DB, logger *log.Logger) *ProjectController {
	return &ProjectController{
		DB:     db,
		Logger: logger,
	}
}

type projectInput struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"omitempty,max=2000"`
	Color       string `json:"color" validate:"omitempty,max=30"`
}

// CreateProject creates a deal-thesis folder.
func (pc *ProjectController) CreateProject(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input projectInput
	if err := c.BodyParser(&input); err != nil {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	project := models.Project{
		Name:        input.Name,
		Description: input.Description,
		Color:       input.Color,
		CreatedBy:   user.ID,
	}
	if project.Color == "" {
		project.Color = "slate"
	}

	if err := pc.DB.Create(&project).Error; err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to create project", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(project))
}

// GetProjects lists all projects with company counts.
func (pc *ProjectController) GetProjects(c *fiber.Ctx) error {
	var projects []models.Project
	if err := pc.DB.Order("created_at DESC").Find(&projects).Error; err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to fetch projects", err)
	}

	type projectSummary struct {
		models.Project
		CompanyCount int64 `json:"company_count"`
		ThreadCount  int64 `json:"thread_count"`
	}
	summaries := make([]projectSummary, 0, len(projects))
	for _, p := range projects {
		var companies, threads int64
		pc.DB.Model(&models.ProjectCompany{}).Where("project_id = ?", p.ID).Count(&companies)
		pc.DB.Model(&models.OutreachThread{}).Where("project_id = ?", p.ID).Count(&threads)
		summaries = append(summaries, projectSummary{Project: p, CompanyCount: companies, ThreadCount: threads})
	}

	return c.JSON(utils.SuccessResponse(summaries))
}

// GetProject returns one project with its companies.
func (pc *ProjectController) GetProject(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	var project models.Project
	if err := pc.DB.Preload("Companies.Company.Contacts").First(&project, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, &utils.NotFoundError{Entity: "project", ID: id})
		}
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to fetch project", err)
	}

	return c.JSON(utils.SuccessResponse(project))
}

// UpdateProject patches name/description/color.
func (pc *ProjectController) UpdateProject(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	var project models.Project
	if err := pc.DB.First(&project, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, &utils.NotFoundError{Entity: "project", ID: id})
		}
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to fetch project", err)
	}

	var input map[string]interface{}
	if err := c.BodyParser(&input); err != nil {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	allowed := map[string]bool{"name": true, "description": true, "color": true}
	updates := map[string]interface{}{}
	for k, v := range input {
		if allowed[k] {
			updates[k] = v
		}
	}
	if len(updates) > 0 {
		if err := pc.DB.Model(&project).Updates(updates).Error; err != nil {
			return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to update project", err)
		}
	}

	return c.JSON(utils.SuccessResponse(project))
}

// DeleteProject removes a project, its memberships, and its threads.
// Companies themselves are never deleted.
func (pc *ProjectController) DeleteProject(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	var project models.Project
	if err := pc.DB.First(&project, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.ErrorResponse(c, &utils.NotFoundError{Entity: "project", ID: id})
		}
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to fetch project", err)
	}

	err := pc.DB.Transaction(func(tx *gorm.DB) error {
		var threadIDs []uint
		if err := tx.Model(&models.OutreachThread{}).
			Where("project_id = ?", id).
			Pluck("id", &threadIDs).Error; err != nil {
			return err
		}
		if len(threadIDs) > 0 {
			if err := tx.Where("thread_id IN ?", threadIDs).
				Delete(&models.OutreachThreadMessage{}).Error; err != nil {
				return err
			}
			if err := tx.Where("project_id = ?", id).
				Delete(&models.OutreachThread{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("project_id = ?", id).Delete(&models.ProjectCompany{}).Error; err != nil {
			return err
		}
		return tx.Delete(&project).Error
	})
	if err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to delete project", err)
	}

	pc.Logger.Printf("Deleted project %d (%s)", id, project.Name)
	return c.JSON(fiber.Map{"message": "Project deleted"})
}

type membershipInput struct {
	CompanyID uint   `json:"company_id" validate:"required"`
	Notes     string `json:"notes"`
}

// AddCompany links a company into the project. Duplicate adds are a no-op.
func (pc *ProjectController) AddCompany(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	projectID := utils.ParseUint(c.Params("id"))

	var input membershipInput
	if err := c.BodyParser(&input); err != nil {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.FailResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var project models.Project
	if err := pc.DB.First(&project, projectID).Error; err != nil {
		return utils.ErrorResponse(c, &utils.NotFoundError{Entity: "project", ID: projectID})
	}
	var company models.Company
	if err := pc.DB.First(&company, input.CompanyID).Error; err != nil {
		return utils.ErrorResponse(c, &utils.NotFoundError{Entity: "company", ID: input.CompanyID})
	}

	var existing models.ProjectCompany
	err := pc.DB.Where("project_id = ? AND company_id = ?", projectID, input.CompanyID).
		First(&existing).Error
	if err == nil {
		return c.JSON(utils.SuccessResponse(existing))
	}
	if err != gorm.ErrRecordNotFound {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to check membership", err)
	}

	membership := models.ProjectCompany{
		ProjectID: projectID,
		CompanyID: input.CompanyID,
		Notes:     input.Notes,
		AddedBy:   user.ID,
	}
	if err := pc.DB.Create(&membership).Error; err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to add company to project", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(membership))
}

// RemoveCompany unlinks a company from the project. The company record
// survives; its thread in this project is removed with its messages.
func (pc *ProjectController) RemoveCompany(c *fiber.Ctx) error {
	projectID := utils.ParseUint(c.Params("id"))
	companyID := utils.ParseUint(c.Params("companyId"))

	err := pc.DB.Transaction(func(tx *gorm.DB) error {
		var thread models.OutreachThread
		if err := tx.Where("project_id = ? AND company_id = ?", projectID, companyID).
			First(&thread).Error; err == nil {
			if err := tx.Where("thread_id = ?", thread.ID).
				Delete(&models.OutreachThreadMessage{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&thread).Error; err != nil {
				return err
			}
		}
		return tx.Where("project_id = ? AND company_id = ?", projectID, companyID).
			Delete(&models.ProjectCompany{}).Error
	})
	if err != nil {
		return utils.FailResponse(c, fiber.StatusInternalServerError, "Failed to remove company from project", err)
	}

	return c.JSON(fiber.Map{"message": "Company removed from project"})
}
