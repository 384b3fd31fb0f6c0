package routes

import (
	"github.com/labstack/echo/v4"

	"helpdesk-system/internal/controllers"
)

func runTicketRouter(secureGroup *echo.Group, ctrl *controllers.TicketController) {
	tickets := secureGroup.Group("/tickets")
	{
		tickets.POST("", ctrl.SubmitTicket)
		tickets.GET("", ctrl.GetTickets)
		tickets.GET("/:id", ctrl.GetTicket)
		tickets.PUT("/:id", ctrl.UpdateTicket)
		tickets.GET("/:id/history", ctrl.GetHistory)

		tickets.POST("/:id/assign", ctrl.Assign)
		tickets.POST("/:id/start", ctrl.Start)
		tickets.POST("/:id/pause", ctrl.Pause)
		tickets.POST("/:id/continue", ctrl.Continue)
		tickets.POST("/:id/reject", ctrl.Reject)
		tickets.POST("/:id/resolve", ctrl.Resolve)
		tickets.POST("/:id/close", ctrl.Close)
	}
}
