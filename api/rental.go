package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	stripecustomer "github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/invoice"
	"go.opentelemetry.io/otel"

	"github.com/openvelo/rental-backend/customer"
	"github.com/openvelo/rental-backend/internal/middleware"
	"github.com/openvelo/rental-backend/rental"
)

// minDescriptionLen is boundary policy, not a core invariant: the state
// machine accepts any string.
const minDescriptionLen = 10

type rentalResponse struct {
	ID          uuid.UUID  `json:"id"`
	BikeID      uuid.UUID  `json:"bikeId"`
	StartedAt   time.Time  `json:"startedAt"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
	TotalCost   *int64     `json:"totalCost,omitempty"`
	Description string     `json:"description,omitempty"`
}

func toRentalResponse(r rental.Rental) rentalResponse {
	resp := rentalResponse{
		ID:          r.ID,
		BikeID:      r.BikeID,
		StartedAt:   r.StartedAt,
		Description: r.Description,
	}
	if r.EndedAt.Valid {
		resp.EndedAt = &r.EndedAt.Time
	}
	if r.TotalCost.Valid {
		resp.TotalCost = &r.TotalCost.Int64
	}
	return resp
}

type startRentalRequest struct {
	BikeID string `json:"bikeId"`
}

func (a *API) startRentalHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var req startRentalRequest
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

	cust, ok := a.currentCustomer(c)
	if !ok {
		return
	}

	r, err := a.rentals.Start(c, cust.ID, bikeID)
	if err != nil {
		a.rentalError(c, err)
		return
	}

	a.rentalsStarted.Inc()
	c.JSON(http.StatusCreated, toRentalResponse(r))
}

type finishRentalRequest struct {
	Description string `json:"description"`
}

func (a *API) finishRentalHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var req finishRentalRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Description) < minDescriptionLen {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "DESCRIPTION_TOO_SHORT",
			"message": fmt.Sprintf("Description must be at least %d characters", minDescriptionLen),
		})
		return
	}

	cust, ok := a.currentCustomer(c)
	if !ok {
		return
	}

	r, err := a.rentals.Finish(c, cust.ID, req.Description)
	if err != nil {
		a.rentalError(c, err)
		return
	}

	a.rentalsFinished.Inc()
	if a.invoicing {
		go a.issueInvoice(logger, cust, r)
	}

	c.JSON(http.StatusOK, toRentalResponse(r))
}

func (a *API) activeRentalHandler(c *gin.Context) {
	_, span := otel.GetTracerProvider().Tracer("api").Start(c.Request.Context(), "activeRentalHandler")
	defer span.End()

	cust, ok := a.currentCustomer(c)
	if !ok {
		return
	}

	r, err := a.rentals.Active(c, cust.ID)
	if err != nil {
		if errors.Is(err, rental.ErrNoActiveRental) {
			c.JSON(http.StatusOK, gin.H{"active": false})
			return
		}
		middleware.GetLogger(c).ErrorContext(c, "failed to get active rental", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"active": true, "rental": toRentalResponse(r)})
}

func (a *API) rentalHistoryHandler(c *gin.Context) {
	cust, ok := a.currentCustomer(c)
	if !ok {
		return
	}

	rentals, err := a.rentals.History(c, cust.ID)
	if err != nil {
		middleware.GetLogger(c).ErrorContext(c, "failed to get rental history", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	resp := make([]rentalResponse, 0, len(rentals))
	for _, r := range rentals {
		resp = append(resp, toRentalResponse(r))
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) rentalError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, rental.ErrBikeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "BIKE_NOT_FOUND", "message": "Bike not found"})
	case errors.Is(err, rental.ErrBikeUnavailable):
		c.JSON(http.StatusConflict, gin.H{"code": "BIKE_UNAVAILABLE", "message": "Bike is not available"})
	case errors.Is(err, rental.ErrBikeNotBusy):
		c.JSON(http.StatusConflict, gin.H{"code": "BIKE_NOT_BUSY", "message": "Bike is not busy"})
	case errors.Is(err, rental.ErrRentalConflict):
		c.JSON(http.StatusConflict, gin.H{"code": "RENTAL_CONFLICT", "message": "An open rental already exists"})
	case errors.Is(err, rental.ErrNoActiveRental):
		c.JSON(http.StatusConflict, gin.H{"code": "NO_ACTIVE_RENTAL", "message": "No active rental"})
	case errors.Is(err, rental.ErrNotInParkingZone):
		// Retryable from the rider's side: move the bike inside a parking
		// zone and finish again.
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_IN_PARKING_ZONE", "message": "Bike is not inside any parking spot"})
	default:
		middleware.GetLogger(c).ErrorContext(c, "rental operation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// issueInvoice bills the closed rental through Stripe, creating the Stripe
// customer on first use. Fire and forget: the rental is already closed, so
// billing failures only log.
func (a *API) issueInvoice(logger *slog.Logger, cust customer.Customer, r rental.Rental) {
	if !cust.StripeID.Valid {
		stripeCustomer, err := stripecustomer.New(&stripe.CustomerParams{
			Metadata: map[string]string{
				"auth0_id": cust.Auth0ID,
				"id":       cust.ID.String(),
			},
		})
		if err != nil {
			logger.Error("Failed to create stripe customer", "error", err)
			return
		}

		cust.StripeID.String = stripeCustomer.ID
		cust.StripeID.Valid = true

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.customers.AddStripeID(ctx, cust.Auth0ID, stripeCustomer.ID); err != nil {
			logger.Error("Failed to save stripe customer ID to customer", "error", err)
			return
		}
	}

	mins := int(r.EndedAt.Time.Sub(r.StartedAt).Minutes())

	inParams := &stripe.InvoiceParams{
		Customer: stripe.String(cust.StripeID.String),
	}
	in, err := invoice.New(inParams)
	if err != nil {
		logger.Error("Failed to create invoice", "error", err)
		return
	}

	ilParams := &stripe.InvoiceAddLinesParams{
		Lines: []*stripe.InvoiceAddLinesLineParams{
			{
				Amount:      stripe.Int64(r.TotalCost.Int64),
				Description: stripe.String(fmt.Sprintf("Bike rental - %d minutes", mins)),
			},
		},
	}
	if _, err := invoice.AddLines(in.ID, ilParams); err != nil {
		logger.Error("Failed to add lines to invoice", "error", err)
		return
	}

	if _, err := invoice.FinalizeInvoice(in.ID, &stripe.InvoiceFinalizeInvoiceParams{}); err != nil {
		logger.Error("Failed to finalize invoice", "error", err)
		return
	}
	if _, err := invoice.Pay(in.ID, nil); err != nil {
		logger.Error("Failed to pay invoice", "error", err)
	}
}
