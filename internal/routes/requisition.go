package routes

import (
	"github.com/labstack/echo/v4"

	"helpdesk-system/internal/controllers"
)

func runRequisitionRouter(secureGroup *echo.Group, ctrl *controllers.RequisitionController) {
	requisitions := secureGroup.Group("/requisitions")
	{
		requisitions.POST("/validate", ctrl.ValidateBatch)
		requisitions.POST("", ctrl.CreateRequisition)
		requisitions.GET("", ctrl.GetRequisitions)
		requisitions.GET("/:id", ctrl.GetRequisition)
	}
}
