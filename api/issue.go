package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/openvelo/rental-backend/internal/middleware"
	"github.com/openvelo/rental-backend/issue"
)

type issueResponse struct {
	ID          uuid.UUID `json:"id"`
	BikeID      uuid.UUID `json:"bikeId"`
	ReportedAt  time.Time `json:"reportedAt"`
	Description string    `json:"description"`
}

func toIssueResponse(i issue.Issue) issueResponse {
	return issueResponse{
		ID:          i.ID,
		BikeID:      i.BikeID,
		ReportedAt:  i.ReportedAt,
		Description: i.Description,
	}
}

type issueRequest struct {
	BikeID      string `json:"bikeId"`
	Description string `json:"description"`
}

func (a *API) createIssueHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var req issueRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bikeID, err := uuid.Parse(req.BikeID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_ID", "message": "bikeId must be a UUID"})
		return
	}
	if req.Description == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_DESCRIPTION", "message": "Description is required"})
		return
	}

	cust, ok := a.currentCustomer(c)
	if !ok {
		return
	}

	i, err := a.issues.CreateIssue(c, cust.ID, bikeID, req.Description)
	if err != nil {
		if errors.Is(err, issue.ErrBikeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "BIKE_NOT_FOUND", "message": "Bike not found"})
			return
		}
		logger.ErrorContext(c, "failed to create issue", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusCreated, toIssueResponse(i))
}

func (a *API) myIssuesHandler(c *gin.Context) {
	cust, ok := a.currentCustomer(c)
	if !ok {
		return
	}

	issues, err := a.issues.IssuesForCustomer(c, cust.ID)
	if err != nil {
		middleware.GetLogger(c).ErrorContext(c, "failed to list issues", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	resp := make([]issueResponse, 0, len(issues))
	for _, i := range issues {
		resp = append(resp, toIssueResponse(i))
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) bikeIssuesHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	issues, err := a.issues.IssuesForBike(c, id)
	if err != nil {
		middleware.GetLogger(c).ErrorContext(c, "failed to list issues", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	resp := make([]issueResponse, 0, len(issues))
	for _, i := range issues {
		resp = append(resp, toIssueResponse(i))
	}
	c.JSON(http.StatusOK, resp)
}
