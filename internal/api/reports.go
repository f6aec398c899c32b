package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/baiirun/mesa/internal/analytics"
	"github.com/baiirun/mesa/internal/apperr"
)

func (s *Server) summary(c *gin.Context) {
	s.report(c, analytics.Monthly, truthy(c.Query("extended")))
}

// dashboard is the extended summary, daily unless a period is given.
func (s *Server) dashboard(c *gin.Context) {
	s.report(c, analytics.Daily, true)
}

func (s *Server) report(c *gin.Context, def analytics.Period, extended bool) {
	period, err := analytics.ParsePeriod(c.Query("period"), def)
	if err != nil {
		fail(c, apperr.Invalid("%s", err.Error()))
		return
	}
	sum, err := s.svc.Summary(c.Request.Context(), currentUser(c), period, extended)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) productivity(c *gin.Context) {
	start, err := queryTime(c, "start", false)
	if err != nil {
		fail(c, err)
		return
	}
	end, err := queryTime(c, "end", false)
	if err != nil {
		fail(c, err)
		return
	}
	if start == nil || end == nil {
		fail(c, apperr.Invalid("start and end are required"))
		return
	}
	rep, err := s.svc.Productivity(c.Request.Context(), currentUser(c), *start, *end)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}
