package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/openvelo/rental-backend/bike"
	"github.com/openvelo/rental-backend/internal/middleware"
)

type bikeResponse struct {
	ID           uuid.UUID `json:"id"`
	Type         string    `json:"type"`
	PricePerHour int64     `json:"pricePerHour"`
	Status       string    `json:"status"`
	Lng          float64   `json:"lng"`
	Lat          float64   `json:"lat"`
}

func toBikeResponse(b bike.Bike) bikeResponse {
	return bikeResponse{
		ID:           b.ID,
		Type:         b.Type,
		PricePerHour: b.PricePerHour,
		Status:       b.Status.String(),
		Lng:          b.Location.P.X,
		Lat:          b.Location.P.Y,
	}
}

func (a *API) bikesHandler(c *gin.Context) {
	bikes, err := a.bikes.GetBikes(c)
	if err != nil {
		middleware.GetLogger(c).ErrorContext(c, "failed to list bikes", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	resp := make([]bikeResponse, 0, len(bikes))
	for _, b := range bikes {
		resp = append(resp, toBikeResponse(b))
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) bikeHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	b, err := a.bikes.GetBike(c, id)
	if err != nil {
		if errors.Is(err, bike.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "BIKE_NOT_FOUND", "message": "Bike not found"})
			return
		}
		middleware.GetLogger(c).ErrorContext(c, "failed to get bike", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, toBikeResponse(b))
}

type bikeRequest struct {
	Type         string  `json:"type"`
	PricePerHour int64   `json:"pricePerHour"`
	Status       string  `json:"status"`
	Lng          float64 `json:"lng"`
	Lat          float64 `json:"lat"`
}

func (r bikeRequest) status() (bike.Status, error) {
	if r.Status == "" {
		return bike.Available, nil
	}
	return bike.ParseStatus(r.Status)
}

func (r bikeRequest) location() pgtype.Point {
	return pgtype.Point{P: pgtype.Vec2{X: r.Lng, Y: r.Lat}, Valid: true}
}

func (a *API) createBikeHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var req bikeRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status, err := req.status()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_STATUS", "message": err.Error()})
		return
	}

	b, err := a.bikes.CreateBike(c, req.Type, req.PricePerHour, status, req.location())
	if err != nil {
		a.bikeError(c, err)
		return
	}

	a.broadcastBike(b)
	c.JSON(http.StatusCreated, toBikeResponse(b))
}

func (a *API) updateBikeHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	id, ok := parseID(c)
	if !ok {
		return
	}

	var req bikeRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status, err := req.status()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_STATUS", "message": err.Error()})
		return
	}

	b, err := a.bikes.UpdateBike(c, id, req.Type, req.PricePerHour, status, req.location())
	if err != nil {
		a.bikeError(c, err)
		return
	}

	a.broadcastBike(b)
	c.JSON(http.StatusOK, toBikeResponse(b))
}

type locationRequest struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

func (a *API) updateBikeLocationHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	id, ok := parseID(c)
	if !ok {
		return
	}

	var req locationRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b, err := a.bikes.UpdateLocation(c, id, pgtype.Point{P: pgtype.Vec2{X: req.Lng, Y: req.Lat}, Valid: true})
	if err != nil {
		a.bikeError(c, err)
		return
	}

	a.broadcastBike(b)
	c.JSON(http.StatusOK, toBikeResponse(b))
}

type statusRequest struct {
	Status string `json:"status"`
}

func (a *API) overrideBikeStatusHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	id, ok := parseID(c)
	if !ok {
		return
	}

	var req statusRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status, err := bike.ParseStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_STATUS", "message": err.Error()})
		return
	}

	b, err := a.bikes.OverrideStatus(c, id, status)
	if err != nil {
		a.bikeError(c, err)
		return
	}

	a.broadcastBike(b)
	c.JSON(http.StatusOK, toBikeResponse(b))
}

func (a *API) deleteBikeHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := a.bikes.DeleteBike(c, id); err != nil {
		a.bikeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) bikeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, bike.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "BIKE_NOT_FOUND", "message": "Bike not found"})
	case errors.Is(err, bike.ErrInvalidPrice):
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PRICE", "message": "Price per hour must be positive"})
	case errors.Is(err, bike.ErrRentalOpen):
		c.JSON(http.StatusConflict, gin.H{"code": "RENTAL_OPEN", "message": "Bike has an open rental"})
	case errors.Is(err, bike.ErrBusyManaged):
		c.JSON(http.StatusConflict, gin.H{"code": "STATUS_MANAGED", "message": "Busy status is managed by the rental flow"})
	default:
		middleware.GetLogger(c).ErrorContext(c, "bike operation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
