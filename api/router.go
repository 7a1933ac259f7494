package api

import (
	"audiograb/config"

	"github.com/gin-gonic/gin"
)

func SetupRouter(sub Submitter, cfg *config.Config, outputDir string) *gin.Engine {
	r := gin.Default()
	h := NewHandler(sub, cfg, outputDir)

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Artifact retrieval stays open; artifact names are the only handle a
	// client holds.
	r.GET("/files/:filename", h.handleGetFile)

	locked := r.Group("/")
	locked.Use(UnlockMiddleware(cfg))
	{
		locked.POST("/download", h.handleDownload)
		locked.POST("/command", h.handleCommand)
	}
	return r
}
