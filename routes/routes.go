package routes

import (
	"log"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"

	"dealforge/config"
	controller "dealforge/controllers"
	"dealforge/middleware"
	"dealforge/models"
	"dealforge/utils"
)

// newRedisClient returns nil when Redis is disabled; the sourcing cache
// degrades to live searches.
func newRedisClient() *redis.Client {
	if !config.AppConfig.Redis.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.Redis.Address,
		Password: config.AppConfig.Redis.Password,
		DB:       config.AppConfig.Redis.DB,
	})
}

// SetupRoutes wires every endpoint. Domain services are built once here
// and shared by the controllers that need them.
func SetupRoutes(app *fiber.App, db *gorm.DB) {
	requestLog := logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	})

	// Shared domain services
	llm := utils.NewLLMClient(utils.LLMConfig{
		APIKey: config.AppConfig.OpenAIAPIKey,
		Model:  config.AppConfig.OpenAIModel,
	}, log.New(os.Stdout, "LLM: ", log.LstdFlags))

	search := utils.NewSearchClient(
		config.AppConfig.SerperAPIKey,
		config.AppConfig.TavilyAPIKey,
		log.New(os.Stdout, "SEARCH: ", log.LstdFlags))

	drafter := utils.NewDrafter(db, llm,
		log.New(os.Stdout, "DRAFT: ", log.LstdFlags),
		config.AppConfig.FirmName, "")

	sender := utils.NewOutreachSender(db, utils.NewGmailTransport(),
		log.New(os.Stdout, "SEND: ", log.LstdFlags),
		config.AppConfig.SendDelay)

	enricher := utils.NewEnricher(db, llm, search,
		log.New(os.Stdout, "ENRICH: ", log.LstdFlags),
		config.AppConfig.ApolloAPIKey)

	sourcer := utils.NewSourcer(newRedisClient(), search,
		log.New(os.Stdout, "SOURCE: ", log.LstdFlags))
	if ttl := config.AppConfig.SourcingCacheTTL; ttl > 0 {
		sourcer.CacheTTL = ttl
	}

	analyzer := utils.NewAnalyzer(llm, search,
		log.New(os.Stdout, "ANALYZE: ", log.LstdFlags))

	// Controllers
	companyController := controller.NewCompanyController(db, log.New(os.Stdout, "COMPANY: ", log.LstdFlags))
	contactController := controller.NewContactController(db, log.New(os.Stdout, "CONTACT: ", log.LstdFlags))
	projectController := controller.NewProjectController(db, log.New(os.Stdout, "PROJECT: ", log.LstdFlags))
	enrichmentController := controller.NewEnrichmentController(db, enricher, log.New(os.Stdout, "ENRICH: ", log.LstdFlags))
	threadController := controller.NewThreadController(db, drafter, sender, log.New(os.Stdout, "THREAD: ", log.LstdFlags))
	campaignController := controller.NewCampaignController(db, drafter, sender, log.New(os.Stdout, "CAMPAIGN: ", log.LstdFlags))
	sourcingController := controller.NewSourcingController(db, sourcer, analyzer, log.New(os.Stdout, "SOURCE: ", log.LstdFlags))
	analyticsController := controller.NewAnalyticsController(db, log.New(os.Stdout, "ANALYTICS: ", log.LstdFlags))

	// Auth (public)
	auth := app.Group("/api/v1/auth", requestLog)
	auth.Get("/google", controller.GoogleOAuth)
	auth.Get("/google/callback", controller.GoogleOAuthCallback)
	auth.Post("/refresh", controller.RefreshToken)

	protectedAuth := auth.Group("", middleware.Protected())
	protectedAuth.Post("/logout", controller.Logout)
	protectedAuth.Get("/me", controller.GetCurrentUser)

	// Protected API
	api := app.Group("/api/v1", middleware.Protected(), requestLog)

	// Companies + contacts
	companies := api.Group("/companies")
	companies.Post("/", companyController.CreateCompany)
	companies.Get("/", companyController.GetCompanies)
	companies.Get("/:id", companyController.GetCompany)
	companies.Patch("/:id", companyController.UpdateCompany)
	companies.Delete("/:id", companyController.DeleteCompany)
	companies.Post("/:companyId/contacts", contactController.CreateContact)
	companies.Get("/:companyId/contacts", contactController.GetContacts)

	// Enrichment
	companies.Post("/:id/enrich", enrichmentController.EnrichCompany)
	companies.Get("/:id/enrichment", enrichmentController.GetStatus)

	contacts := api.Group("/contacts")
	contacts.Patch("/:id", contactController.UpdateContact)
	contacts.Delete("/:id", contactController.DeleteContact)

	// Projects
	projects := api.Group("/projects")
	projects.Post("/", projectController.CreateProject)
	projects.Get("/", projectController.GetProjects)
	projects.Get("/:id", projectController.GetProject)
	projects.Patch("/:id", projectController.UpdateProject)
	projects.Delete("/:id", projectController.DeleteProject)
	projects.Post("/:id/companies", projectController.AddCompany)
	projects.Delete("/:id/companies/:companyId", projectController.RemoveCompany)
	projects.Post("/:id/enrich", enrichmentController.EnrichProject)

	// Outreach threads
	outreach := api.Group("/outreach")
	threads := outreach.Group("/threads")
	threads.Post("/", threadController.CreateThread)
	threads.Get("/", threadController.GetThreads)
	threads.Get("/:id", threadController.GetThread)
	threads.Patch("/:id", threadController.UpdateThread)
	threads.Delete("/:id", threadController.DeleteThread)
	threads.Post("/:id/generate", threadController.GenerateDraft)
	threads.Post("/:id/scheduling-reply", threadController.SchedulingReply)
	threads.Post("/:id/mark-responded", threadController.MarkResponded)
	threads.Post("/:id/pass", threadController.Pass)

	messages := outreach.Group("/messages")
	messages.Patch("/:id", threadController.UpdateMessage)
	messages.Post("/:id/send", middleware.SendRateLimiter(), threadController.SendMessage)

	outreach.Post("/bulk-generate", threadController.BulkGenerate)
	outreach.Post("/bulk-send", middleware.SendRateLimiter(), threadController.BulkSend)

	// Bulk-send progress stream
	outreach.Use("/progress", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	outreach.Get("/progress", websocket.New(controller.HandleOutreachProgressWS))

	// Legacy campaigns
	campaigns := api.Group("/campaigns")
	campaigns.Post("/", campaignController.CreateCampaign)
	campaigns.Get("/", campaignController.GetCampaigns)
	campaigns.Get("/:id", campaignController.GetCampaign)
	campaigns.Delete("/:id", campaignController.DeleteCampaign)
	campaigns.Post("/:id/generate", campaignController.GenerateEmails)
	campaigns.Post("/:id/send", middleware.SendRateLimiter(), campaignController.SendCampaign)
	campaigns.Patch("/emails/:emailId", campaignController.UpdateEmail)

	// Sourcing
	sourcing := api.Group("/sourcing")
	sourcing.Post("/search", sourcingController.Search)
	sourcing.Post("/analyze", sourcingController.Analyze)
	sourcing.Post("/save", sourcingController.SaveToProject)
	sourcing.Post("/cache/clear", middleware.RequireRole(models.RoleGP, models.RoleAdmin), sourcingController.ClearCache)

	// Analytics
	api.Get("/dashboard", analyticsController.GetDashboard)
}
