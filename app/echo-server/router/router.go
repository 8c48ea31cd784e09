package router

import (
	"splitEngine/internal/rest"

	"github.com/labstack/echo/v4"
)

func SetEvaluationRoutes(api *echo.Group, handler *rest.EvaluationHandler) {
	api.POST("/assign/:campaignKey", handler.Assign)
	api.POST("/flags/evaluate", handler.EvaluateFlags)
	api.POST("/flags/:flagKey/evaluate", handler.EvaluateFlag)
	api.POST("/track/:campaignKey/convert", handler.Convert)
}

func SetCampaignRoutes(api *echo.Group, handler *rest.CampaignHandler) {
	campaigns := api.Group("/campaigns")

	campaigns.POST("", handler.Create)
	campaigns.GET("", handler.List)
	campaigns.GET("/:key", handler.Get)
	campaigns.PUT("/:key", handler.Update)
	campaigns.POST("/:key/start", handler.Start)
	campaigns.POST("/:key/stop", handler.Stop)
	campaigns.POST("/:key/complete", handler.Complete)
	campaigns.POST("/:key/archive", handler.Archive)
	campaigns.POST("/:key/reseed", handler.Reseed)
}

func SetExperimentRoutes(api *echo.Group, handler *rest.ExperimentHandler) {
	campaigns := api.Group("/campaigns")

	campaigns.POST("/:key/override", handler.Override)
	campaigns.DELETE("/:key/override/:subjectId", handler.ClearOverride)
	campaigns.GET("/:key/assignments/:subjectId", handler.GetAssignment)
	campaigns.POST("/:key/reallocate", handler.Reallocate)
	campaigns.GET("/:key/allocations", handler.Allocations)
	campaigns.GET("/:key/results", handler.Results)
}

func SetIdentityRoutes(api *echo.Group, handler *rest.IdentityHandler) {
	api.POST("/identity/merge", handler.Merge)
}
