package matching

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"binary-comp-engine/internal/domain"
)

func buildTree(t *testing.T, f *fixture) {
	t.Helper()
	f.place(t, "root", "", domain.LegNone, true)
	f.place(t, "s", "root", domain.LegNone, false)
	f.place(t, "t", "root", domain.LegRight, false)
	f.place(t, "a", "s", domain.LegLeft, false)
	f.place(t, "b", "s", domain.LegRight, false)
	f.place(t, "a1", "a", domain.LegRight, false)
}

func TestPostVolume_WalksAncestors(t *testing.T) {
	f := newFixture(t)
	buildTree(t, f)

	touched := f.post(t, "a1", 250, domain.LegLeft)
	want := []string{"a1", "a", "s"}
	if len(touched) != len(want) {
		t.Fatalf("touched: got %v, want %v", touched, want)
	}
	for i := range want {
		if touched[i] != want[i] {
			t.Errorf("touched[%d]: got %s, want %s", i, touched[i], want[i])
		}
	}

	assertDec(t, "a1 left", f.node(t, "a1").LeftBusiness, 250)
	assertDec(t, "a right", f.node(t, "a").RightBusiness, 250)
	assertDec(t, "s left", f.node(t, "s").LeftBusiness, 250)

	// s is an untagged root child, so the root is not credited.
	root := f.node(t, "root")
	if !root.TotalBusiness().IsZero() {
		t.Errorf("root business: got %s, want 0", root.TotalBusiness())
	}
}

func TestPostVolume_TaggedRootChildReachesRoot(t *testing.T) {
	f := newFixture(t)
	buildTree(t, f)

	touched := f.post(t, "t", 80, domain.LegLeft)
	if len(touched) != 2 || touched[1] != "root" {
		t.Fatalf("touched: got %v", touched)
	}
	assertDec(t, "root right", f.node(t, "root").RightBusiness, 80)
}

func TestPostVolume_RejectsBadInput(t *testing.T) {
	f := newFixture(t)
	buildTree(t, f)
	ctx := context.Background()

	tests := []struct {
		name   string
		id     string
		amount decimal.Decimal
		leg    domain.Leg
		want   error
	}{
		{"zero amount", "a", decimal.Zero, domain.LegLeft, domain.ErrInvalidAmount},
		{"negative amount", "a", d(-5), domain.LegLeft, domain.ErrInvalidAmount},
		{"no leg", "a", d(5), domain.LegNone, domain.ErrInvalidLeg},
		{"unknown participant", "ghost", d(5), domain.LegLeft, domain.ErrParticipantNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.engine.PostVolume(ctx, tt.id, tt.amount, tt.leg); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if !f.node(t, "s").TotalBusiness().IsZero() {
		t.Error("rejected posts must not change state")
	}
}

func TestPostVolume_ConcurrentPostsOnSharedAncestor(t *testing.T) {
	f := newFixture(t)
	buildTree(t, f)

	const perSide = 25
	var wg sync.WaitGroup
	errs := make(chan error, 2*perSide)
	for i := 0; i < perSide; i++ {
		for _, id := range []string{"a", "b"} {
			id := id
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.engine.PostVolume(context.Background(), id, d(10), domain.LegLeft)
				errs <- err
			}()
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("PostVolume failed: %v", err)
		}
	}

	s := f.node(t, "s")
	assertDec(t, "s left", s.LeftBusiness, 10*perSide)
	assertDec(t, "s right", s.RightBusiness, 10*perSide)
	assertInvariants(t, s)
}

type failingCareer struct {
	mu    sync.Mutex
	calls []string
}

func (c *failingCareer) Evaluate(_ context.Context, id string) (*domain.CareerProgress, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, id)
	return nil, errors.New("career store unavailable")
}

func TestPostVolume_CareerFailureDoesNotFailPost(t *testing.T) {
	f := newFixture(t)
	buildTree(t, f)
	career := &failingCareer{}
	f.engine = New(f.store, f.ledger, Options{Career: career, Logger: zerolog.Nop()})

	touched, err := f.engine.PostVolume(context.Background(), "a", d(10), domain.LegLeft)
	if err != nil {
		t.Fatalf("PostVolume failed: %v", err)
	}
	if len(career.calls) != len(touched) {
		t.Errorf("career evaluated %d times, want %d", len(career.calls), len(touched))
	}
	assertDec(t, "a left", f.node(t, "a").LeftBusiness, 10)
}
