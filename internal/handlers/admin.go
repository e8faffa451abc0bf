package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/feedbackloop/backend/internal/cache"
	"github.com/emilythestrangee/feedbackloop/backend/internal/reporting"
)

type AdminHandler struct {
	ledger   Ledger
	reporter *reporting.Reporter
	weeks    *weekCache
}

func NewAdminHandler(ledger Ledger, reporter *reporting.Reporter, weeks *weekCache) *AdminHandler {
	return &AdminHandler{ledger: ledger, reporter: reporter, weeks: weeks}
}

// WeeklySummary reports on the current week, or on the week containing
// ?date=YYYY-MM-DD. ?format=csv returns the summary tables as CSV.
func (h *AdminHandler) WeeklySummary(c *gin.Context) {
	format := c.DefaultQuery("format", "json")
	if format != "json" && format != "csv" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be json or csv"})
		return
	}

	week := h.reporter.CurrentWeek()
	if raw := c.Query("date"); raw != "" {
		day, err := time.ParseInLocation("2006-01-02", raw, h.reporter.Location())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		week = h.reporter.DateWeek(day)
	}

	summary, err := cache.Fetch(c.Request.Context(), h.weeks.summaries, week, h.reporter.Build)
	if err != nil {
		respondError(c, err, "Failed to fetch weekly summary")
		return
	}

	if format == "csv" {
		filename := fmt.Sprintf("weekly-summary-%s.csv", week.Start.Format("2006-01-02"))
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Status(http.StatusOK)
		if err := reporting.WriteCSV(c.Writer, summary); err != nil {
			_ = c.Error(err)
		}
		return
	}
	c.JSON(http.StatusOK, summary)
}

// AuditPost compares a post's counters with its ledger rows.
func (h *AdminHandler) AuditPost(c *gin.Context) {
	report, err := h.ledger.Audit(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to audit post")
		return
	}
	c.JSON(http.StatusOK, report)
}
