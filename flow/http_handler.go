package flow

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RunRequest is the POST /runs body: one run of one design against one backend.
type RunRequest struct {
	Design   string         `json:"design" binding:"required"`
	Backend  string         `json:"backend" binding:"required"`
	Strategy string         `json:"strategy"`
	Options  map[string]any `json:"options"`
}

// NewHTTPHandler registers the orchestration API on a gin engine:
//
//	POST /runs               run a flow, respond with the verdict
//	GET  /backends           list registered backend IDs
//	GET  /backends/:id/parts list a backend's supported parts
//
// Each request gets its own Orchestrator; independent runs execute in
// parallel, serialized only by the run-directory collision check.
func NewHTTPHandler(l *slog.Logger, project *Project, registry *Registry, g *gin.Engine) {
	g.GET("/backends", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"backends": registry.IDs()})
	})

	g.GET("/backends/:id/parts", func(c *gin.Context) {
		b, err := registry.Get(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"backend": b.ID(), "parts": b.SupportedParts()})
	})

	g.POST("/runs", handleRun(l, project, registry))
}

func handleRun(l *slog.Logger, project *Project, registry *Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body: " + err.Error()})
			return
		}

		d, err := project.Design(req.Design)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}

		settings, projectStrategy := project.FlowSettings(req.Backend)
		strategyName := req.Strategy
		if strategyName == "" {
			strategyName = projectStrategy
		}
		if strategyName == "" {
			strategyName = string(StrategyDefault)
		}
		strategy, err := ParseStrategy(strategyName)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}

		for k, v := range req.Options {
			settings[k] = v
		}
		opts, err := DecodeOptions(settings)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}

		def := NewFlowDefinition(req.Backend, strategy)
		orch := NewOrchestrator(l, registry)
		verdict, err := orch.Execute(c.Request.Context(), d, def, opts)
		if err != nil {
			l.Error("flow execution failed",
				"design", d.Name, "backend", req.Backend, "error", err.Error())
			if _, ok := AsConfigurationError(err); ok {
				c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
				return
			}
			c.JSON(http.StatusBadGateway, gin.H{"message": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"design":  d.Name,
			"backend": req.Backend,
			"verdict": verdict,
		})
	}
}
