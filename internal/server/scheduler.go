package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RunSchedulerTick runs one scheduler tick inline, honoring the tick lock.
func (s *Server) RunSchedulerTick(c *gin.Context) {
	if s.scheduler == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	report, err := s.scheduler.RunOnce(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"skipped":    report.Skipped,
			"alerts":     report.Alerts,
			"advisories": report.Advisories,
		},
	})
}
