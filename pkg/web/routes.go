package web

import "github.com/gofiber/fiber/v3"

// RegisterRoutes mounts the full API surface on the app. The same table
// backs the server binary and the handler tests.
func RegisterRoutes(app *fiber.App, handlers *APIHandlers) {
	t := app.Group("/templates")
	t.Get("/", handlers.GetTemplates)
	t.Post("/", handlers.CreateTemplate)
	t.Post("/import", handlers.ImportTemplate)
	t.Get("/:id", handlers.GetTemplate)
	t.Patch("/:id", handlers.UpdateTemplate)
	t.Delete("/:id", handlers.DeleteTemplate)

	// Approval lifecycle
	t.Post("/:id/submit", handlers.SubmitTemplate)
	t.Post("/:id/approve", handlers.ApproveTemplate)
	t.Post("/:id/request-changes", handlers.RequestChanges)
	t.Post("/:id/reopen", handlers.ReopenTemplate)
	t.Post("/:id/clone", handlers.CloneTemplate)
	t.Get("/:id/export", handlers.ExportTemplate)

	// Graph editing
	t.Post("/:id/nodes", handlers.CreateNode)
	t.Patch("/:id/nodes/:nodeId", handlers.UpdateNode)
	t.Delete("/:id/nodes/:nodeId", handlers.DeleteNode)
	t.Put("/:id/positions", handlers.RepositionNodes)
	t.Post("/:id/options", handlers.CreateOption)
	t.Patch("/:id/options/:optionId", handlers.UpdateOption)
	t.Delete("/:id/options/:optionId", handlers.DeleteOption)
	t.Post("/:id/links", handlers.CreateLink)
	t.Delete("/:id/links/:linkId", handlers.DeleteLink)
	t.Put("/:id/styles/:nodeType", handlers.UpsertStyle)
	t.Delete("/:id/styles/:nodeType", handlers.DeleteStyle)
	t.Post("/:id/styles/copy", handlers.CopyStyles)

	i := app.Group("/instances")
	i.Get("/", handlers.GetInstances)
	i.Post("/", handlers.StartInstance)
	i.Get("/:id", handlers.GetInstance)
	i.Post("/:id/advance", handlers.AdvanceInstance)
	i.Post("/:id/abandon", handlers.AbandonInstance)

	app.Get("/health", handlers.HealthCheck)
}
