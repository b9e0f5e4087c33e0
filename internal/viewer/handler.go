package viewer

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/checkline-lab/checkline/internal/core/timeline"
)

// Service serves the rendered timeline over HTTP for the local viewer.
// The timeline snapshot is fixed at construction; a new run means a new
// service.
type Service struct {
	timeline *timeline.Timeline
}

func NewService(t *timeline.Timeline) *Service {
	if t == nil {
		panic("viewer: timeline must not be nil")
	}
	return &Service{timeline: t}
}

// RegisterRoutes registers the viewer routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/", s.PageHandler)
	r.GET("/api/timeline", s.TimelineHandler)
}

// PageHandler serves the rendered HTML page.
func (s *Service) PageHandler(c *gin.Context) {
	page, err := RenderHTML(s.timeline)
	if err != nil {
		slog.Error("Failed to render timeline page", "error", err)
		c.String(http.StatusInternalServerError, "render failed")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

// TimelineHandler serves the JSON projection for tooling.
func (s *Service) TimelineHandler(c *gin.Context) {
	c.JSON(http.StatusOK, BuildView(s.timeline))
}
