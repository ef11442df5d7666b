package acceptance

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/openvelo/rental-backend/api"
	"github.com/openvelo/rental-backend/bike"
	"github.com/openvelo/rental-backend/internal/auth0"
	"github.com/openvelo/rental-backend/internal/events"
	"github.com/openvelo/rental-backend/internal/memstore"
	"github.com/openvelo/rental-backend/internal/o11y"
	"github.com/openvelo/rental-backend/parking"
	"github.com/openvelo/rental-backend/rental"
)

type TestServer struct {
	Store  *memstore.Store
	Router *gin.Engine
}

func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	gin.SetMode(gin.TestMode)

	st := memstore.New()
	obs := o11y.ForTesting()
	pub := &events.LogPublisher{Logger: obs.Logger}

	a, err := api.New(api.Deps{
		Bikes:     st,
		Spots:     st,
		Issues:    st,
		Customers: st,
		Rentals:   rental.NewService(st, st, pub, obs.Logger),
		Events:    pub,
		Auth0:     auth0.NewFakeClient(),
		Obs:       obs,
	}, api.Config{
		Auth: fakeAuthMiddleware(),
	})
	if err != nil {
		t.Fatalf("failed to build server: %v", err)
	}

	return &TestServer{Store: st, Router: a.Router()}
}

// fakeAuthMiddleware trusts the X-User-ID header and stores claims the way
// the JWT middleware would.
func fakeAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "Authentication required"})
			c.Abort()
			return
		}
		claims := &validator.ValidatedClaims{
			RegisteredClaims: validator.RegisteredClaims{Subject: userID},
		}
		ctx := context.WithValue(c.Request.Context(), jwtmiddleware.ContextKey{}, claims)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// Helper methods for making requests

func (ts *TestServer) GET(path string, headers map[string]string) *httptest.ResponseRecorder {
	return ts.do(http.MethodGet, path, nil, headers)
}

func (ts *TestServer) POST(path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	return ts.do(http.MethodPost, path, body, headers)
}

func (ts *TestServer) PUT(path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	return ts.do(http.MethodPut, path, body, headers)
}

func (ts *TestServer) DELETE(path string, headers map[string]string) *httptest.ResponseRecorder {
	return ts.do(http.MethodDelete, path, nil, headers)
}

func (ts *TestServer) do(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

// Helper to create a test bike directly in the store
func (ts *TestServer) CreateTestBike(t *testing.T, pricePerHour int64, lng, lat float64) bike.Bike {
	t.Helper()
	b, err := ts.Store.CreateBike(context.Background(), "city", pricePerHour, bike.Available,
		pgtype.Point{P: pgtype.Vec2{X: lng, Y: lat}, Valid: true})
	if err != nil {
		t.Fatalf("failed to create test bike: %v", err)
	}
	return b
}

// Helper to create a test parking spot directly in the store
func (ts *TestServer) CreateTestSpot(t *testing.T, name string, lng, lat float64) parking.Spot {
	t.Helper()
	s, err := ts.Store.CreateSpot(context.Background(), name,
		pgtype.Point{P: pgtype.Vec2{X: lng, Y: lat}, Valid: true})
	if err != nil {
		t.Fatalf("failed to create test spot: %v", err)
	}
	return s
}

// SetRentalStarted rewinds a rental's start time for duration-based billing
// tests.
func (ts *TestServer) SetRentalStarted(t *testing.T, id uuid.UUID, startedAt time.Time) {
	t.Helper()
	ts.Store.SetRentalStarted(id, startedAt)
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", w.Body.String(), err)
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Code string `json:"code"`
	}
	decode(t, w, &resp)
	return resp.Code
}
