package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/wattwatch/internal/period"
	scopedomain "github.com/smallbiznis/wattwatch/internal/scope/domain"
)

const maxDailyHistory = 90

func (s *Server) GetHomeUsage(c *gin.Context) {
	s.scopeUsage(c, scopedomain.KindHome)
}

func (s *Server) GetDeviceUsage(c *gin.Context) {
	s.scopeUsage(c, scopedomain.KindDevice)
}

// scopeUsage returns the period aggregate for a scope, plus per-day totals when days is set.
func (s *Server) scopeUsage(c *gin.Context, kind scopedomain.Kind) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	p, err := period.Parse(strings.TrimSpace(c.DefaultQuery("period", string(period.Daily))))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	days, err := parseOptionalInt(c.Query("days"))
	if err != nil || days < 0 || days > maxDailyHistory {
		AbortWithError(c, newValidationError("days", "invalid_days", "days must be between 0 and 90"))
		return
	}

	ctx := c.Request.Context()
	scope, err := s.scopes.Resolve(ctx, scopedomain.Ref{Kind: kind, ID: id})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	agg, err := s.usageSvc.Aggregate(ctx, scope, p)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	data := gin.H{
		"scope":     scope,
		"period":    p,
		"aggregate": agg,
	}
	if days > 0 {
		from := period.StartOfDay(agg.WindowEnd.In(s.cfg.Location())).AddDate(0, 0, -days+1)
		totals, err := s.usageSvc.DailyTotals(ctx, scope, from, agg.WindowEnd)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		data["daily"] = totals
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}
