package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openvelo/rental-backend/internal/geocode"
	"github.com/openvelo/rental-backend/internal/middleware"
)

func (a *API) addressHandler(c *gin.Context) {
	if a.geocoder == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "GEOCODING_DISABLED", "message": "Address lookup is not configured"})
		return
	}

	p, ok := parsePoint(c)
	if !ok {
		return
	}

	addr, err := a.geocoder.Address(c, p)
	if err != nil {
		if errors.Is(err, geocode.ErrNoAddress) {
			c.JSON(http.StatusNotFound, gin.H{"code": "NO_ADDRESS", "message": "No address found for location"})
			return
		}
		middleware.GetLogger(c).ErrorContext(c, "failed to resolve address", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"address": addr})
}
