package handlers

import (
	"net/http"

	"github.com/arnavshah/timetable-wizard-go/pkg/database"
	"github.com/gin-gonic/gin"
)

// GetMyUsage returns usage stats for the authenticated API key
func (h *Handler) GetMyUsage(c *gin.Context) {
	apiKeyRaw, exists := c.Get("apiKey")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "API Key context missing"})
		return
	}
	apiKey := apiKeyRaw.(*database.APIKey)

	usage, err := database.RecentUsage(h.DB, apiKey.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch usage details"})
		return
	}

	var totalRequests, totalAssignments, totalConstraints, totalExtractions int64
	for _, u := range usage {
		totalRequests += int64(u.RequestCount)
		totalAssignments += int64(u.TotalAssignments)
		totalConstraints += int64(u.TotalConstraints)
		totalExtractions += int64(u.TotalExtractions)
	}

	c.JSON(http.StatusOK, gin.H{
		"key_name":      apiKey.Name,
		"rate_limit":    apiKey.RateLimit,
		"usage_history": usage,
		"totals": gin.H{
			"requests":    totalRequests,
			"assignments": totalAssignments,
			"constraints": totalConstraints,
			"extractions": totalExtractions,
		},
	})
}
