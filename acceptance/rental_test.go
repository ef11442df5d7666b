package acceptance

import (
	"net/http"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
)

// Spot at the base coordinates; a bike at spotLat+0.0001 sits roughly 11m
// away, well inside the 50m geofence. +0.0018 is roughly 200m, outside.
const (
	spotLng = 13.4050
	spotLat = 52.5200
)

type rentalResponse struct {
	ID          uuid.UUID  `json:"id"`
	BikeID      uuid.UUID  `json:"bikeId"`
	StartedAt   time.Time  `json:"startedAt"`
	EndedAt     *time.Time `json:"endedAt"`
	TotalCost   *int64     `json:"totalCost"`
	Description string     `json:"description"`
}

type activeResponse struct {
	Active bool            `json:"active"`
	Rental *rentalResponse `json:"rental"`
}

func TestRentalFlow_StartActiveFinish(t *testing.T) {
	ts := NewTestServer(t)

	ts.CreateTestSpot(t, "Station North", spotLng, spotLat)
	b := ts.CreateTestBike(t, 100, spotLng, spotLat+0.0001)

	user := map[string]string{"X-User-ID": "auth0|rider-1"}

	w := ts.POST("/rentals/start", map[string]string{"bikeId": b.ID.String()}, user)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	var started rentalResponse
	decode(t, w, &started)
	if started.BikeID != b.ID {
		t.Errorf("expected bikeId %s, got %s", b.ID, started.BikeID)
	}
	if started.EndedAt != nil {
		t.Errorf("new rental should not have an end time")
	}

	// The bike is now busy
	w = ts.GET("/bikes/"+b.ID.String(), user)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	var bk struct {
		Status string `json:"status"`
	}
	decode(t, w, &bk)
	if bk.Status != "busy" {
		t.Errorf("expected bike status busy, got %q", bk.Status)
	}

	w = ts.GET("/rentals/active", user)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	var active activeResponse
	decode(t, w, &active)
	if !active.Active {
		t.Fatalf("expected an active rental")
	}
	if active.Rental == nil || active.Rental.ID != started.ID {
		t.Errorf("active rental does not match the started one: %s", spew.Sdump(active))
	}

	w = ts.POST("/rentals/finish", map[string]string{"description": "Parked at Station North"}, user)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	var finished rentalResponse
	decode(t, w, &finished)
	if finished.EndedAt == nil {
		t.Fatalf("finished rental should have an end time")
	}
	if finished.TotalCost == nil || *finished.TotalCost != 100 {
		t.Errorf("expected total cost 100 for a sub-hour rental, got %v", finished.TotalCost)
	}

	// Bike is released
	w = ts.GET("/bikes/"+b.ID.String(), user)
	decode(t, w, &bk)
	if bk.Status != "available" {
		t.Errorf("expected bike status available after finish, got %q", bk.Status)
	}

	w = ts.GET("/rentals/active", user)
	decode(t, w, &active)
	if active.Active {
		t.Errorf("expected no active rental after finish")
	}
}

func TestStartRental_SecondOpenRentalRejected(t *testing.T) {
	ts := NewTestServer(t)

	b1 := ts.CreateTestBike(t, 100, spotLng, spotLat)
	b2 := ts.CreateTestBike(t, 100, spotLng, spotLat)

	user := map[string]string{"X-User-ID": "auth0|rider-1"}

	w := ts.POST("/rentals/start", map[string]string{"bikeId": b1.ID.String()}, user)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}

	w = ts.POST("/rentals/start", map[string]string{"bikeId": b2.ID.String()}, user)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d: %s", http.StatusConflict, w.Code, w.Body.String())
	}
	if code := errorCode(t, w); code != "RENTAL_CONFLICT" {
		t.Errorf("expected code RENTAL_CONFLICT, got %q", code)
	}
}

func TestStartRental_BikeAlreadyTaken(t *testing.T) {
	ts := NewTestServer(t)

	b := ts.CreateTestBike(t, 100, spotLng, spotLat)

	w := ts.POST("/rentals/start", map[string]string{"bikeId": b.ID.String()},
		map[string]string{"X-User-ID": "auth0|rider-1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}

	w = ts.POST("/rentals/start", map[string]string{"bikeId": b.ID.String()},
		map[string]string{"X-User-ID": "auth0|rider-2"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d: %s", http.StatusConflict, w.Code, w.Body.String())
	}
	if code := errorCode(t, w); code != "BIKE_UNAVAILABLE" {
		t.Errorf("expected code BIKE_UNAVAILABLE, got %q", code)
	}
}

func TestFinishRental_OutsideGeofenceThenRetry(t *testing.T) {
	ts := NewTestServer(t)

	ts.CreateTestSpot(t, "Station North", spotLng, spotLat)
	b := ts.CreateTestBike(t, 100, spotLng, spotLat+0.0018)

	user := map[string]string{"X-User-ID": "auth0|rider-1"}

	w := ts.POST("/rentals/start", map[string]string{"bikeId": b.ID.String()}, user)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}

	w = ts.POST("/rentals/finish", map[string]string{"description": "Leaving it right here"}, user)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d: %s", http.StatusNotFound, w.Code, w.Body.String())
	}
	if code := errorCode(t, w); code != "NOT_IN_PARKING_ZONE" {
		t.Errorf("expected code NOT_IN_PARKING_ZONE, got %q", code)
	}

	// Rental stays open and the bike stays busy
	w = ts.GET("/rentals/active", user)
	var active activeResponse
	decode(t, w, &active)
	if !active.Active {
		t.Fatalf("failed finish must not close the rental")
	}

	// Ride into the geofence and try again
	w = ts.PUT("/bikes/"+b.ID.String()+"/location",
		map[string]float64{"lng": spotLng, "lat": spotLat + 0.0001}, user)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	w = ts.POST("/rentals/finish", map[string]string{"description": "Parked at Station North"}, user)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
}

func TestFinishRental_DescriptionTooShort(t *testing.T) {
	ts := NewTestServer(t)

	ts.CreateTestSpot(t, "Station North", spotLng, spotLat)
	b := ts.CreateTestBike(t, 100, spotLng, spotLat)

	user := map[string]string{"X-User-ID": "auth0|rider-1"}

	w := ts.POST("/rentals/start", map[string]string{"bikeId": b.ID.String()}, user)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}

	w = ts.POST("/rentals/finish", map[string]string{"description": "short"}, user)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d: %s", http.StatusBadRequest, w.Code, w.Body.String())
	}
	if code := errorCode(t, w); code != "DESCRIPTION_TOO_SHORT" {
		t.Errorf("expected code DESCRIPTION_TOO_SHORT, got %q", code)
	}
}

func TestFinishRental_NoActiveRental(t *testing.T) {
	ts := NewTestServer(t)

	w := ts.POST("/rentals/finish", map[string]string{"description": "Nothing to finish here"},
		map[string]string{"X-User-ID": "auth0|rider-1"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d: %s", http.StatusConflict, w.Code, w.Body.String())
	}
	if code := errorCode(t, w); code != "NO_ACTIVE_RENTAL" {
		t.Errorf("expected code NO_ACTIVE_RENTAL, got %q", code)
	}
}

func TestFinishRental_MultiHourBilling(t *testing.T) {
	ts := NewTestServer(t)

	ts.CreateTestSpot(t, "Station North", spotLng, spotLat)
	b := ts.CreateTestBike(t, 150, spotLng, spotLat)

	user := map[string]string{"X-User-ID": "auth0|rider-1"}

	w := ts.POST("/rentals/start", map[string]string{"bikeId": b.ID.String()}, user)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	var started rentalResponse
	decode(t, w, &started)

	// Pretend the rental started just over an hour ago
	ts.SetRentalStarted(t, started.ID, time.Now().UTC().Add(-61*time.Minute))

	w = ts.POST("/rentals/finish", map[string]string{"description": "Parked at Station North"}, user)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	var finished rentalResponse
	decode(t, w, &finished)
	if finished.TotalCost == nil || *finished.TotalCost != 300 {
		t.Errorf("expected total cost 300 for a rental just over an hour, got %v", finished.TotalCost)
	}
}

func TestRentalHistory(t *testing.T) {
	ts := NewTestServer(t)

	ts.CreateTestSpot(t, "Station North", spotLng, spotLat)
	b := ts.CreateTestBike(t, 100, spotLng, spotLat)

	user := map[string]string{"X-User-ID": "auth0|rider-1"}

	for i := 0; i < 2; i++ {
		w := ts.POST("/rentals/start", map[string]string{"bikeId": b.ID.String()}, user)
		if w.Code != http.StatusCreated {
			t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
		}
		w = ts.POST("/rentals/finish", map[string]string{"description": "Parked at Station North"}, user)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
		}
	}

	w := ts.GET("/rentals", user)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	var history []rentalResponse
	decode(t, w, &history)
	if len(history) != 2 {
		t.Fatalf("expected 2 rentals in history, got %d", len(history))
	}
	for _, r := range history {
		if r.EndedAt == nil {
			t.Errorf("rental %s in history should be closed", r.ID)
		}
	}

	// Another rider sees an empty history
	w = ts.GET("/rentals", map[string]string{"X-User-ID": "auth0|rider-2"})
	var other []rentalResponse
	decode(t, w, &other)
	if len(other) != 0 {
		t.Errorf("expected empty history for another rider, got %d", len(other))
	}
}

func TestRentalRoutes_RequireAuth(t *testing.T) {
	ts := NewTestServer(t)

	w := ts.GET("/rentals/active", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}
