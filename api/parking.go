package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/openvelo/rental-backend/geo"
	"github.com/openvelo/rental-backend/internal/middleware"
	"github.com/openvelo/rental-backend/parking"
)

type spotResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Lng  float64   `json:"lng"`
	Lat  float64   `json:"lat"`
}

func toSpotResponse(s parking.Spot) spotResponse {
	return spotResponse{
		ID:   s.ID,
		Name: s.Name,
		Lng:  s.Location.P.X,
		Lat:  s.Location.P.Y,
	}
}

func (a *API) spotsHandler(c *gin.Context) {
	spots, err := a.spots.GetSpots(c)
	if err != nil {
		middleware.GetLogger(c).ErrorContext(c, "failed to list parking spots", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	resp := make([]spotResponse, 0, len(spots))
	for _, s := range spots {
		resp = append(resp, toSpotResponse(s))
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) spotHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	s, err := a.spots.GetSpot(c, id)
	if err != nil {
		a.spotError(c, err)
		return
	}

	c.JSON(http.StatusOK, toSpotResponse(s))
}

type spotRequest struct {
	Name string  `json:"name"`
	Lng  float64 `json:"lng"`
	Lat  float64 `json:"lat"`
}

func (a *API) createSpotHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var req spotRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_NAME", "message": "Name is required"})
		return
	}

	s, err := a.spots.CreateSpot(c, req.Name, pgtype.Point{P: pgtype.Vec2{X: req.Lng, Y: req.Lat}, Valid: true})
	if err != nil {
		a.spotError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toSpotResponse(s))
}

func (a *API) updateSpotHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	id, ok := parseID(c)
	if !ok {
		return
	}

	var req spotRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := a.spots.UpdateSpot(c, id, req.Name, pgtype.Point{P: pgtype.Vec2{X: req.Lng, Y: req.Lat}, Valid: true})
	if err != nil {
		a.spotError(c, err)
		return
	}

	c.JSON(http.StatusOK, toSpotResponse(s))
}

func (a *API) deleteSpotHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := a.spots.DeleteSpot(c, id); err != nil {
		a.spotError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type nearbySpotResponse struct {
	spotResponse
	Meters float64 `json:"meters"`
}

func (a *API) nearbySpotsHandler(c *gin.Context) {
	p, ok := parsePoint(c)
	if !ok {
		return
	}

	spots, err := a.spots.GetSpots(c)
	if err != nil {
		middleware.GetLogger(c).ErrorContext(c, "failed to list parking spots", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	nearest := parking.NearestSpots(p, spots, parking.NearbyLimit)
	resp := make([]nearbySpotResponse, 0, len(nearest))
	for _, r := range nearest {
		resp = append(resp, nearbySpotResponse{
			spotResponse: toSpotResponse(r.Item),
			Meters:       r.Meters,
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) spotError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, parking.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "SPOT_NOT_FOUND", "message": "Parking spot not found"})
	case errors.Is(err, parking.ErrDuplicateName):
		c.JSON(http.StatusConflict, gin.H{"code": "DUPLICATE_NAME", "message": "Parking spot name already in use"})
	default:
		middleware.GetLogger(c).ErrorContext(c, "parking operation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parsePoint(c *gin.Context) (geo.Point, bool) {
	lng, lngErr := strconv.ParseFloat(c.Query("lng"), 64)
	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
	if lngErr != nil || latErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_LOCATION", "message": "lng and lat query parameters are required"})
		return geo.Point{}, false
	}
	return geo.Point{Lng: lng, Lat: lat}, true
}
