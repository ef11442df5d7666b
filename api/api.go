package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openvelo/rental-backend/bike"
	"github.com/openvelo/rental-backend/customer"
	"github.com/openvelo/rental-backend/geo"
	"github.com/openvelo/rental-backend/internal/auth0"
	"github.com/openvelo/rental-backend/internal/middleware"
	"github.com/openvelo/rental-backend/internal/o11y"
	"github.com/openvelo/rental-backend/issue"
	"github.com/openvelo/rental-backend/parking"
	"github.com/openvelo/rental-backend/rental"
)

// BikeRegistry is the exclusive owner of bike status and location writes
// outside the rental flow.
type BikeRegistry interface {
	GetBikes(ctx context.Context) ([]bike.Bike, error)
	GetBike(ctx context.Context, id uuid.UUID) (bike.Bike, error)
	CreateBike(ctx context.Context, typ string, pricePerHour int64, status bike.Status, location pgtype.Point) (bike.Bike, error)
	UpdateBike(ctx context.Context, id uuid.UUID, typ string, pricePerHour int64, status bike.Status, location pgtype.Point) (bike.Bike, error)
	UpdateLocation(ctx context.Context, id uuid.UUID, location pgtype.Point) (bike.Bike, error)
	OverrideStatus(ctx context.Context, id uuid.UUID, status bike.Status) (bike.Bike, error)
	DeleteBike(ctx context.Context, id uuid.UUID) error
}

type SpotDirectory interface {
	GetSpots(ctx context.Context) ([]parking.Spot, error)
	GetSpot(ctx context.Context, id uuid.UUID) (parking.Spot, error)
	CreateSpot(ctx context.Context, name string, location pgtype.Point) (parking.Spot, error)
	UpdateSpot(ctx context.Context, id uuid.UUID, name string, location pgtype.Point) (parking.Spot, error)
	DeleteSpot(ctx context.Context, id uuid.UUID) error
}

type IssueBook interface {
	CreateIssue(ctx context.Context, customerID, bikeID uuid.UUID, description string) (issue.Issue, error)
	IssuesForBike(ctx context.Context, bikeID uuid.UUID) ([]issue.Issue, error)
	IssuesForCustomer(ctx context.Context, customerID uuid.UUID) ([]issue.Issue, error)
}

type CustomerDirectory interface {
	GetByAuth0ID(ctx context.Context, auth0ID string) (customer.Customer, error)
	Create(ctx context.Context, auth0ID string) (customer.Customer, error)
	AddStripeID(ctx context.Context, auth0ID, stripeID string) error
	UpdateProfile(ctx context.Context, auth0ID, email, name string) error
}

type Geocoder interface {
	Address(ctx context.Context, p geo.Point) (string, error)
}

type Deps struct {
	Bikes     BikeRegistry
	Spots     SpotDirectory
	Issues    IssueBook
	Customers CustomerDirectory
	Rentals   *rental.Service
	Events    rental.Publisher
	Geocoder  Geocoder
	Auth0     auth0.Client
	Obs       *o11y.Observability
}

type Config struct {
	Auth0Domain     string
	Audience        string
	MetricsUsername string
	MetricsPassword string
	Invoicing       bool

	// Auth overrides the JWT middleware; tests install a fake here.
	Auth gin.HandlerFunc
}

type API struct {
	r         *gin.Engine
	bikes     BikeRegistry
	spots     SpotDirectory
	issues    IssueBook
	customers CustomerDirectory
	rentals   *rental.Service
	events    rental.Publisher
	geocoder  Geocoder
	auth0c    auth0.Client
	logger    *slog.Logger
	invoicing bool

	rentalsStarted  prometheus.Counter
	rentalsFinished prometheus.Counter
}

func New(d Deps, cfg Config) (*API, error) {
	a := &API{
		r:         gin.New(),
		bikes:     d.Bikes,
		spots:     d.Spots,
		issues:    d.Issues,
		customers: d.Customers,
		rentals:   d.Rentals,
		events:    d.Events,
		geocoder:  d.Geocoder,
		auth0c:    d.Auth0,
		logger:    d.Obs.Logger,
		invoicing: cfg.Invoicing,
		rentalsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rentals_started_total",
			Help: "Total number of rentals started",
		}),
		rentalsFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rentals_finished_total",
			Help: "Total number of rentals finished",
		}),
	}
	d.Obs.Registry.MustRegister(a.rentalsStarted, a.rentalsFinished)

	a.r.Use(gin.Recovery())
	a.r.Use(middleware.Tracing())
	a.r.Use(middleware.Logging(d.Obs.Logger))
	a.r.Use(middleware.Metrics(d.Obs.Registry))

	a.r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	metrics := promhttp.HandlerFor(d.Obs.Registry, promhttp.HandlerOpts{})
	if cfg.MetricsUsername != "" {
		a.r.GET("/metrics",
			gin.BasicAuth(gin.Accounts{cfg.MetricsUsername: cfg.MetricsPassword}),
			gin.WrapH(metrics))
	} else {
		a.r.GET("/metrics", gin.WrapH(metrics))
	}

	auth := cfg.Auth
	if auth == nil {
		var err error
		auth, err = middleware.JWT(cfg.Auth0Domain, cfg.Audience)
		if err != nil {
			return nil, err
		}
	}

	protected := a.r.Group("/")
	protected.Use(auth)
	{
		protected.GET("/bikes", a.bikesHandler)
		protected.GET("/bikes/:id", a.bikeHandler)
		protected.POST("/bikes", a.createBikeHandler)
		protected.PUT("/bikes/:id", a.updateBikeHandler)
		protected.PUT("/bikes/:id/location", a.updateBikeLocationHandler)
		protected.PUT("/bikes/:id/status", a.overrideBikeStatusHandler)
		protected.DELETE("/bikes/:id", a.deleteBikeHandler)
		protected.GET("/bikes/:id/issues", a.bikeIssuesHandler)

		protected.GET("/parking", a.spotsHandler)
		protected.GET("/parking/:id", a.spotHandler)
		protected.POST("/parking", a.createSpotHandler)
		protected.PUT("/parking/:id", a.updateSpotHandler)
		protected.DELETE("/parking/:id", a.deleteSpotHandler)
		protected.GET("/parking/nearby", a.nearbySpotsHandler)

		protected.POST("/rentals/start", a.startRentalHandler)
		protected.POST("/rentals/finish", a.finishRentalHandler)
		protected.GET("/rentals/active", a.activeRentalHandler)
		protected.GET("/rentals", a.rentalHistoryHandler)

		protected.POST("/issues", a.createIssueHandler)
		protected.GET("/issues", a.myIssuesHandler)

		protected.GET("/geo/address", a.addressHandler)
	}

	return a, nil
}

func (a *API) Router() *gin.Engine {
	return a.r
}

// currentCustomer resolves the authenticated subject to a customer row,
// creating one on first contact. Writes the error response itself when
// resolution fails.
func (a *API) currentCustomer(c *gin.Context) (customer.Customer, bool) {
	logger := middleware.GetLogger(c)

	sub, ok := middleware.GetAuth0ID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "Authentication required"})
		return customer.Customer{}, false
	}

	cust, err := a.customers.GetByAuth0ID(c, sub)
	if errors.Is(err, customer.ErrNotFound) {
		cust, err = a.customers.Create(c, sub)
		if err == nil {
			a.enrichProfile(c, sub)
		}
	}
	if err != nil {
		logger.ErrorContext(c, "failed to resolve customer", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return customer.Customer{}, false
	}
	return cust, true
}

// enrichProfile backfills email and name from Auth0's userinfo endpoint.
// Best effort; a failed fetch only logs.
func (a *API) enrichProfile(c *gin.Context, sub string) {
	if a.auth0c == nil {
		return
	}
	token := middleware.GetBearerToken(c)
	if token == "" {
		return
	}
	logger := middleware.GetLogger(c)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		info, err := a.auth0c.GetUserInfo(ctx, token)
		if err != nil {
			logger.Warn("failed to fetch user info", "error", err)
			return
		}
		if err := a.customers.UpdateProfile(ctx, sub, info.Email, info.Name); err != nil {
			logger.Warn("failed to update customer profile", "error", err)
		}
	}()
}

// broadcastBike publishes a bike snapshot after an admin mutation. The
// mutation already committed; a publish failure is only logged.
func (a *API) broadcastBike(b bike.Bike) {
	if a.events == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := a.events.Publish(ctx, rental.EventBikeUpdated, rental.Snapshot(b)); err != nil {
			a.logger.Warn("failed to publish bike update", "bikeId", b.ID, "error", err)
		}
	}()
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_ID", "message": "id must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}
