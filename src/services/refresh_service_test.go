package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/tradingpro/backend/src/logger"
	"github.com/username/tradingpro/backend/src/models"
)

// stubViewSource overrides only GetView; the embedded interface panics on
// anything else, which is what we want in these tests.
type stubViewSource struct {
	PortfolioService
	getView func(portfolioID string, days int) (*models.PortfolioView, error)
}

func (s *stubViewSource) GetView(portfolioID string, days int) (*models.PortfolioView, error) {
	return s.getView(portfolioID, days)
}

func viewWithValue(v float64) *models.PortfolioView {
	return &models.PortfolioView{Summary: models.PortfolioSummary{TotalValue: v}}
}

func TestViewPoller_DeliversAppliedView(t *testing.T) {
	p := NewViewPoller(nil, "p1", 30, time.Second)
	p.apply(1, viewWithValue(100))

	select {
	case got := <-p.Updates():
		assert.Equal(t, 100.0, got.Summary.TotalValue)
	default:
		t.Fatal("expected a pending snapshot")
	}
}

func TestViewPoller_StaleResultIgnored(t *testing.T) {
	p := NewViewPoller(nil, "p1", 30, time.Second)

	// the second issued fetch returned first
	p.apply(2, viewWithValue(200))
	p.apply(1, viewWithValue(100))

	got := <-p.Updates()
	assert.Equal(t, 200.0, got.Summary.TotalValue)
	select {
	case extra := <-p.Updates():
		t.Fatalf("stale snapshot was applied: %v", extra.Summary.TotalValue)
	default:
	}
}

func TestViewPoller_UndrainedSnapshotReplaced(t *testing.T) {
	p := NewViewPoller(nil, "p1", 30, time.Second)

	p.apply(1, viewWithValue(100))
	p.apply(2, viewWithValue(200))

	got := <-p.Updates()
	assert.Equal(t, 200.0, got.Summary.TotalValue)
}

func TestViewPoller_PollDeliversFetchedView(t *testing.T) {
	if logger.L == nil {
		logger.InitLogger("error")
	}
	src := &stubViewSource{getView: func(portfolioID string, days int) (*models.PortfolioView, error) {
		assert.Equal(t, "p1", portfolioID)
		assert.Equal(t, 30, days)
		return viewWithValue(42), nil
	}}
	p := NewViewPoller(src, "p1", 30, time.Second)
	p.poll(context.Background())

	select {
	case got := <-p.Updates():
		assert.Equal(t, 42.0, got.Summary.TotalValue)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for polled view")
	}
}

func TestViewPoller_PollErrorDeliversNothing(t *testing.T) {
	if logger.L == nil {
		logger.InitLogger("error")
	}
	done := make(chan struct{})
	src := &stubViewSource{getView: func(string, int) (*models.PortfolioView, error) {
		defer close(done)
		return nil, errors.New("source down")
	}}
	p := NewViewPoller(src, "p1", 30, time.Second)
	p.poll(context.Background())

	<-done
	select {
	case got := <-p.Updates():
		t.Fatalf("unexpected snapshot after failed fetch: %v", got.Summary.TotalValue)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestViewPoller_RunStopsOnCancel(t *testing.T) {
	if logger.L == nil {
		logger.InitLogger("error")
	}
	src := &stubViewSource{getView: func(string, int) (*models.PortfolioView, error) {
		return viewWithValue(1), nil
	}}
	p := NewViewPoller(src, "p1", 30, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(stopped)
	}()

	// let a few ticks land, then cancel
	select {
	case <-p.Updates():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first snapshot")
	}
	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop after cancel")
	}
	require.NotNil(t, ctx.Err())
}
