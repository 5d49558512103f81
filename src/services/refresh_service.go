package services

import (
	"context"
	"sync"
	"time"

	"github.com/username/tradingpro/backend/src/logger"
	"github.com/username/tradingpro/backend/src/models"
)

// ViewPoller re-fetches one portfolio's assembled view on an interval and
// delivers fresh snapshots on a channel. Fetches run concurrently and may
// complete out of order; each poll is stamped with an issuance sequence
// and a result is applied only when its sequence is newer than the last
// applied one, so a slow early fetch can never overwrite a later result.
type ViewPoller struct {
	svc         PortfolioService
	portfolioID string
	days        int
	interval    time.Duration

	mu      sync.Mutex
	issued  uint64
	applied uint64

	updates chan *models.PortfolioView
}

func NewViewPoller(svc PortfolioService, portfolioID string, days int, interval time.Duration) *ViewPoller {
	return &ViewPoller{
		svc:         svc,
		portfolioID: portfolioID,
		days:        days,
		interval:    interval,
		updates:     make(chan *models.PortfolioView, 1),
	}
}

// Updates delivers applied views. The channel holds one pending snapshot;
// when the consumer lags, the stale pending snapshot is replaced rather
// than queued behind.
func (p *ViewPoller) Updates() <-chan *models.PortfolioView {
	return p.updates
}

// Run polls immediately, then on every interval tick, until the context
// is cancelled. Each tick starts a fetch without waiting for the previous
// one to finish.
func (p *ViewPoller) Run(ctx context.Context) {
	p.poll(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *ViewPoller) poll(ctx context.Context) {
	p.mu.Lock()
	p.issued++
	seq := p.issued
	p.mu.Unlock()

	go func() {
		view, err := p.svc.GetView(p.portfolioID, p.days)
		if err != nil {
			logger.L.Warn("View poll failed", "portfolioID", p.portfolioID, "error", err)
			return
		}
		if ctx.Err() != nil {
			return
		}
		p.apply(seq, view)
	}()
}

func (p *ViewPoller) apply(seq uint64, view *models.PortfolioView) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if seq <= p.applied {
		// a newer fetch already landed
		return
	}
	p.applied = seq

	select {
	case p.updates <- view:
	default:
		// consumer has not drained the previous snapshot; replace it
		select {
		case <-p.updates:
		default:
		}
		p.updates <- view
	}
}
