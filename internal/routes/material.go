package routes

import (
	"github.com/labstack/echo/v4"

	"helpdesk-system/internal/controllers"
)

func runMaterialRouter(secureGroup *echo.Group, ctrl *controllers.MaterialController) {
	materials := secureGroup.Group("/materials")
	{
		materials.POST("", ctrl.CreateMaterial)
		materials.GET("", ctrl.GetMaterials)
		materials.GET("/alerts", ctrl.GetStockAlerts)
		materials.GET("/stats", ctrl.GetStats)
		materials.GET("/logs", ctrl.GetMaterialLogs)

		materials.GET("/:id", ctrl.GetMaterial)
		materials.PUT("/:id", ctrl.UpdateMaterial)
		materials.DELETE("/:id", ctrl.DeleteMaterial)
		materials.PUT("/:id/variants/:variantId/price", ctrl.UpdatePrice)
		materials.POST("/:id/variants/:variantId/stock", ctrl.MutateStock)
	}
}
