package httpserver

import (
	"github.com/labstack/echo/v4"

	"github.com/medlab/diagnosis-backend/internal/handlers"
	authmw "github.com/medlab/diagnosis-backend/internal/middleware/auth"
	"github.com/medlab/diagnosis-backend/internal/models"
)

type Deps struct {
	Resolver *authmw.Resolver

	AuthHandler       *handlers.AuthHandler
	UserHandler       *handlers.UserHandler
	PatientHandler    *handlers.PatientHandler
	ConsultantHandler *handlers.ConsultantHandler
	LabTestHandler    *handlers.LabTestHandler
	OrderHandler      *handlers.OrderHandler
	ReportHandler     *handlers.ReportHandler
	BillingHandler    *handlers.BillingHandler
	SearchHandler     *handlers.SearchHandler
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	v1 := e.Group("/v1")

	// Public session endpoints.
	v1.POST("/auth/signup", d.AuthHandler.Signup)
	v1.POST("/auth/login", d.AuthHandler.Login)
	v1.POST("/auth/refresh", d.AuthHandler.Refresh)

	// Any authenticated user.
	session := v1.Group("", d.Resolver.RequireAuth)
	session.POST("/auth/logout", d.AuthHandler.Logout)
	session.GET("/auth/me", d.AuthHandler.Me)
	session.PATCH("/auth/me", d.AuthHandler.UpdateMe)
	session.POST("/auth/change-password", d.AuthHandler.ChangePassword)

	// Lab staff: day-to-day reads and writes.
	staff := v1.Group("", d.Resolver.RequireAuth,
		authmw.RequireRoles(models.RoleAdmin, models.RoleLabAssistant))

	staff.GET("/patients", d.PatientHandler.ListPatients)
	staff.GET("/patients/search", d.SearchHandler.SearchPatients)
	staff.GET("/patients/:id", d.PatientHandler.GetPatient)
	staff.POST("/patients", d.PatientHandler.CreatePatient)
	staff.PATCH("/patients/:id", d.PatientHandler.UpdatePatient)

	staff.GET("/consultants", d.ConsultantHandler.ListConsultants)
	staff.GET("/consultants/:id", d.ConsultantHandler.GetConsultant)
	staff.POST("/consultants", d.ConsultantHandler.CreateConsultant)
	staff.PATCH("/consultants/:id", d.ConsultantHandler.UpdateConsultant)

	staff.GET("/tests", d.LabTestHandler.ListLabTests)
	staff.GET("/tests/:id", d.LabTestHandler.GetLabTest)
	staff.POST("/tests", d.LabTestHandler.CreateLabTest)
	staff.PATCH("/tests/:id", d.LabTestHandler.UpdateLabTest)

	staff.GET("/orders", d.OrderHandler.ListOrders)
	staff.GET("/orders/:id", d.OrderHandler.GetOrder)
	staff.POST("/orders", d.OrderHandler.CreateOrder)
	staff.PATCH("/orders/:id/status", d.OrderHandler.UpdateOrderStatus)
	staff.POST("/order-tests/:id/collect", d.OrderHandler.CollectSample)

	staff.GET("/reports/:id", d.ReportHandler.GetReport)
	staff.GET("/orders/:id/reports", d.ReportHandler.ListOrderReports)
	staff.POST("/reports", d.ReportHandler.CreateReport)

	staff.GET("/orders/:id/billing", d.BillingHandler.GetOrderBilling)
	staff.POST("/billings/:id/pay", d.BillingHandler.RecordPayment)

	// Admin: user management and destructive operations.
	admin := v1.Group("/admin", d.Resolver.RequireAuth, authmw.RequireRoles(models.RoleAdmin))
	admin.GET("/users", d.UserHandler.ListUsers)
	admin.GET("/users/:id", d.UserHandler.GetUser)
	admin.PATCH("/users/:id", d.UserHandler.UpdateUser)
	admin.POST("/users/:id/activate", d.UserHandler.ActivateUser)
	admin.POST("/users/:id/deactivate", d.UserHandler.DeactivateUser)
	admin.DELETE("/users/:id", d.UserHandler.DeleteUser)

	adminOnly := v1.Group("", d.Resolver.RequireAuth, authmw.RequireRoles(models.RoleAdmin))
	adminOnly.DELETE("/patients/:id", d.PatientHandler.DeletePatient)
	adminOnly.DELETE("/consultants/:id", d.ConsultantHandler.DeleteConsultant)
	adminOnly.DELETE("/tests/:id", d.LabTestHandler.DeleteLabTest)
	adminOnly.DELETE("/orders/:id", d.OrderHandler.DeleteOrder)
	adminOnly.DELETE("/reports/:id", d.ReportHandler.DeleteReport)
}
