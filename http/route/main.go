package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/harborcrm/crm-import-orchestrator/http/controller"
	middlewares "github.com/harborcrm/crm-import-orchestrator/http/middleware"
)

func SetupRouter(ctrl *controller.Controller) *gin.Engine {
	r := gin.Default()
	middles, err := middlewares.NewMiddlewares(ctrl)
	if err != nil {
		panic(err)
	}

	r.Use(middles.CORSMiddleware)

	apiRoutes := r.Group("/api/v1/crm")
	{
		apiRoutes.Use(middles.AuthMiddleware)

		jobRoutes := apiRoutes.Group("/jobs")
		{
			jobRoutes.POST("/", ctrl.CreateJob)
			jobRoutes.POST("/upload", ctrl.ImportFile)
			jobRoutes.GET("/", ctrl.ListJobs)
			jobRoutes.GET("/:id", ctrl.GetJob)
			jobRoutes.POST("/:id/cancel", ctrl.CancelJob)
			jobRoutes.POST("/:id/chunk", ctrl.ProcessChunk)
		}

		dedupRoutes := apiRoutes.Group("/dedup")
		{
			dedupRoutes.POST("/scan", ctrl.DedupScan)
			dedupRoutes.POST("/delete-chunk", ctrl.DedupDeleteChunk)
		}
	}
	return r
}
