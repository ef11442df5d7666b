package rental_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/openvelo/rental-backend/bike"
	"github.com/openvelo/rental-backend/internal/memstore"
	"github.com/openvelo/rental-backend/rental"
)

func point(lng, lat float64) pgtype.Point {
	return pgtype.Point{P: pgtype.Vec2{X: lng, Y: lat}, Valid: true}
}

// recordingPublisher captures broadcast events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(ctx context.Context, event string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func newService(t *testing.T) (*rental.Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	return rental.NewService(store, store, &recordingPublisher{}, nil), store
}

func createBike(t *testing.T, store *memstore.Store, price int64, lng, lat float64) bike.Bike {
	t.Helper()
	b, err := store.CreateBike(context.Background(), "city", price, bike.Available, point(lng, lat))
	if err != nil {
		t.Fatalf("create bike: %v", err)
	}
	return b
}

func createSpot(t *testing.T, store *memstore.Store, name string, lng, lat float64) {
	t.Helper()
	if _, err := store.CreateSpot(context.Background(), name, point(lng, lat)); err != nil {
		t.Fatalf("create spot: %v", err)
	}
}

func TestStart(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	b := createBike(t, store, 100, 13.4050, 52.5200)
	rider := uuid.New()

	r, err := svc.Start(ctx, rider, b.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !r.Open() {
		t.Error("new rental should be open")
	}
	if r.BikeID != b.ID || r.CustomerID != rider {
		t.Errorf("unexpected rental: %+v", r)
	}

	got, err := store.GetBike(ctx, b.ID)
	if err != nil {
		t.Fatalf("get bike: %v", err)
	}
	if got.Status != bike.Busy {
		t.Errorf("bike status = %v, want busy", got.Status)
	}
}

func TestStart_BikeMissing(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Start(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, rental.ErrBikeNotFound) {
		t.Errorf("err = %v, want ErrBikeNotFound", err)
	}
}

func TestStart_BikeNotAvailable(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)

	for _, status := range []bike.Status{bike.Maintenance, bike.Off} {
		b, err := store.CreateBike(ctx, "city", 100, status, point(0, 0))
		if err != nil {
			t.Fatalf("create bike: %v", err)
		}
		if _, err := svc.Start(ctx, uuid.New(), b.ID); !errors.Is(err, rental.ErrBikeUnavailable) {
			t.Errorf("start %v bike: err = %v, want ErrBikeUnavailable", status, err)
		}
	}
}

func TestStart_SecondRiderRejected(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	b := createBike(t, store, 100, 0, 0)

	if _, err := svc.Start(ctx, uuid.New(), b.ID); err != nil {
		t.Fatalf("first start: %v", err)
	}
	_, err := svc.Start(ctx, uuid.New(), b.ID)
	if !errors.Is(err, rental.ErrBikeUnavailable) && !errors.Is(err, rental.ErrRentalConflict) {
		t.Errorf("second start: err = %v, want unavailable or conflict", err)
	}
}

func TestStart_OneOpenRentalPerRider(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	first := createBike(t, store, 100, 0, 0)
	second := createBike(t, store, 100, 0, 0)
	rider := uuid.New()

	if _, err := svc.Start(ctx, rider, first.ID); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if _, err := svc.Start(ctx, rider, second.ID); !errors.Is(err, rental.ErrRentalConflict) {
		t.Errorf("second bike: err = %v, want ErrRentalConflict", err)
	}
}

func TestFinish_NoActiveRental(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Finish(context.Background(), uuid.New(), "left by the entrance")
	if !errors.Is(err, rental.ErrNoActiveRental) {
		t.Errorf("err = %v, want ErrNoActiveRental", err)
	}
}

func TestFinish_OutsideGeofence(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	// Bike ~200m north of the only spot; geofence radius is 50m.
	b := createBike(t, store, 100, 13.4050, 52.5218)
	createSpot(t, store, "central", 13.4050, 52.5200)
	rider := uuid.New()

	if _, err := svc.Start(ctx, rider, b.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err := svc.Finish(ctx, rider, "left by the entrance")
	if !errors.Is(err, rental.ErrNotInParkingZone) {
		t.Fatalf("err = %v, want ErrNotInParkingZone", err)
	}

	// The failed finish must leave everything untouched.
	got, _ := store.GetBike(ctx, b.ID)
	if got.Status != bike.Busy {
		t.Errorf("bike status = %v, want busy after failed finish", got.Status)
	}
	if _, err := svc.Active(ctx, rider); err != nil {
		t.Errorf("rental should still be open: %v", err)
	}
}

func TestFinish_InsideGeofence(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	// Bike ~11m from the spot, well inside the radius.
	b := createBike(t, store, 100, 13.4050, 52.5201)
	createSpot(t, store, "central", 13.4050, 52.5200)
	rider := uuid.New()

	started, err := svc.Start(ctx, rider, b.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	r, err := svc.Finish(ctx, rider, "left by the entrance")
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if !r.EndedAt.Valid || r.EndedAt.Time.Before(started.StartedAt) {
		t.Errorf("endedAt not set correctly: %+v", r.EndedAt)
	}
	if !r.TotalCost.Valid || r.TotalCost.Int64 != 100 {
		t.Errorf("sub-hour rental should bill one hour (100), got %+v", r.TotalCost)
	}
	if r.Description != "left by the entrance" {
		t.Errorf("description = %q", r.Description)
	}

	got, _ := store.GetBike(ctx, b.ID)
	if got.Status != bike.Available {
		t.Errorf("bike status = %v, want available", got.Status)
	}
	if _, err := svc.Active(ctx, rider); !errors.Is(err, rental.ErrNoActiveRental) {
		t.Errorf("rental should be closed, got %v", err)
	}
}

func TestFinish_MultiHourBilling(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	b := createBike(t, store, 150, 13.4050, 52.5201)
	createSpot(t, store, "central", 13.4050, 52.5200)
	rider := uuid.New()

	r, err := svc.Start(ctx, rider, b.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	store.SetRentalStarted(r.ID, time.Now().UTC().Add(-61*time.Minute))

	closed, err := svc.Finish(ctx, rider, "back at the rack")
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if closed.TotalCost.Int64 != 300 {
		t.Errorf("61 minutes at 150/h should bill 300, got %d", closed.TotalCost.Int64)
	}
}

func TestStartAfterFinishCycles(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	b := createBike(t, store, 100, 13.4050, 52.5201)
	createSpot(t, store, "central", 13.4050, 52.5200)

	first := uuid.New()
	if _, err := svc.Start(ctx, first, b.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.Finish(ctx, first, "back at the rack"); err != nil {
		t.Fatalf("finish: %v", err)
	}

	// Any rider can start the bike again once it returned to available.
	if _, err := svc.Start(ctx, uuid.New(), b.ID); err != nil {
		t.Errorf("restart after finish: %v", err)
	}
}

func TestConcurrentStartSameBike(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	b := createBike(t, store, 100, 0, 0)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Start(ctx, uuid.New(), b.ID)
			errs <- err
		}()
	}

	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, rental.ErrBikeUnavailable) && !errors.Is(err, rental.ErrRentalConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 successful start, got %d", success)
	}
}

func TestConcurrentStartSameRider(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	rider := uuid.New()

	const attempts = 6
	bikes := make([]bike.Bike, attempts)
	for i := range bikes {
		bikes[i] = createBike(t, store, 100, float64(i)/1000, 0)
	}

	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_, err := svc.Start(ctx, rider, bikes[id].ID)
			errs <- err
		}(i)
	}

	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
		} else if !errors.Is(err, rental.ErrRentalConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 successful start for the rider, got %d", success)
	}
}

func TestConcurrentFinishSameRider(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	b := createBike(t, store, 100, 13.4050, 52.5201)
	createSpot(t, store, "central", 13.4050, 52.5200)
	rider := uuid.New()

	if _, err := svc.Start(ctx, rider, b.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	const attempts = 4
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.Finish(ctx, rider, fmt.Sprintf("attempt %d at the rack", n))
			errs <- err
		}(i)
	}

	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
		} else if !errors.Is(err, rental.ErrNoActiveRental) && !errors.Is(err, rental.ErrBikeNotBusy) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 successful finish, got %d", success)
	}
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	b := createBike(t, store, 100, 13.4050, 52.5201)
	createSpot(t, store, "central", 13.4050, 52.5200)
	rider := uuid.New()

	for i := 0; i < 2; i++ {
		if _, err := svc.Start(ctx, rider, b.ID); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		if _, err := svc.Finish(ctx, rider, "back at the rack"); err != nil {
			t.Fatalf("finish %d: %v", i, err)
		}
	}

	history, err := svc.History(ctx, rider)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 rentals in history, got %d", len(history))
	}
	for _, r := range history {
		if r.Open() {
			t.Errorf("history rental still open: %+v", r)
		}
	}
}
