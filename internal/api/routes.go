package api

import "github.com/gofiber/fiber/v2"

// RegisterRoutes wires the resource endpoints. deviceRuleMW is the
// conditional-validation interceptor; it runs ahead of the device
// handlers so no invalid payload reaches business logic.
func RegisterRoutes(app *fiber.App, h *Handler, authMW, adminMW, deviceRuleMW fiber.Handler) {
	root := app.Group("/api", authMW)

	root.Get("/accounts", adminMW, h.ListAccounts)
	root.Post("/accounts", adminMW, h.CreateAccount)
	root.Get("/accounts/:id", h.GetAccount)
	root.Put("/accounts/:id", h.UpdateAccount)
	root.Delete("/accounts/:id", adminMW, h.DeleteAccount)

	devices := root.Group("/devices", deviceRuleMW)
	devices.Get("/", adminMW, h.ListDevices)
	devices.Get("/types", adminMW, h.ListDeviceTypes)
	devices.Get("/:id", h.GetDevice)
	devices.Post("/", adminMW, h.CreateDevice)
	devices.Put("/:id", h.UpdateDevice)
	devices.Delete("/:id", adminMW, h.DeleteDevice)

	root.Get("/employees", adminMW, h.ListEmployees)
	root.Post("/employees", adminMW, h.CreateEmployee)
	root.Get("/employees/:id", adminMW, h.GetEmployee)

	root.Get("/positions", adminMW, h.ListPositions)
	root.Get("/roles", adminMW, h.ListRoles)
}
