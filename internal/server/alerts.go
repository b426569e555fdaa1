package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	alertdomain "github.com/smallbiznis/wattwatch/internal/alert/domain"
)

func (s *Server) EvaluateAll(c *gin.Context) {
	report, err := s.alertSvc.EvaluateAll(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": report})
}

func (s *Server) CreateAlertRule(c *gin.Context) {
	var req alertdomain.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	rule, err := s.alertSvc.CreateRule(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": rule})
}

func (s *Server) GetAlertRule(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	rule, err := s.alertSvc.GetRule(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rule})
}

func (s *Server) UpdateAlertRule(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req alertdomain.UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	rule, err := s.alertSvc.UpdateRule(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rule})
}

func (s *Server) DeactivateAlertRule(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.alertSvc.DeactivateRule(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) EvaluateAlertRule(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	event, err := s.alertSvc.EvaluateRule(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"triggered": event != nil,
			"event":     event,
		},
	})
}

func (s *Server) TestAlertRule(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	result, err := s.alertSvc.TestEvaluateRule(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ListAlertEvents(c *gin.Context) {
	ownerID, err := parseSnowflakeID(c.Query("owner_id"))
	if err != nil {
		AbortWithError(c, newValidationError("owner_id", "invalid_owner_id", "invalid owner_id"))
		return
	}
	read, err := parseOptionalBool(c.Query("read"))
	if err != nil {
		AbortWithError(c, newValidationError("read", "invalid_read", "invalid read"))
		return
	}
	resolved, err := parseOptionalBool(c.Query("resolved"))
	if err != nil {
		AbortWithError(c, newValidationError("resolved", "invalid_resolved", "invalid resolved"))
		return
	}
	pageSize, err := parseOptionalInt(c.Query("page_size"))
	if err != nil {
		AbortWithError(c, newValidationError("page_size", "invalid_page_size", "invalid page_size"))
		return
	}

	resp, err := s.alertSvc.ListTriggeredEvents(c.Request.Context(), alertdomain.ListEventsRequest{
		OwnerID:   ownerID,
		Read:      read,
		Resolved:  resolved,
		PageToken: strings.TrimSpace(c.Query("page_token")),
		PageSize:  pageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":      resp.Events,
		"page_info": resp.PageInfo,
	})
}

func (s *Server) MarkAlertEventRead(c *gin.Context) {
	s.updateAlertEvent(c, s.alertSvc.MarkRead)
}

func (s *Server) MarkAlertEventResolved(c *gin.Context) {
	s.updateAlertEvent(c, s.alertSvc.MarkResolved)
}

func (s *Server) updateAlertEvent(c *gin.Context, update func(ctx context.Context, id snowflake.ID) (alertdomain.TriggeredAlertEvent, error)) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	event, err := update(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": event})
}
