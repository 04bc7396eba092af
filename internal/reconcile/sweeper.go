package reconcile

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/eventloom/ticketpay/internal/domain"
	"github.com/eventloom/ticketpay/internal/gateway"
	"github.com/eventloom/ticketpay/internal/observability"
)

type Store interface {
	PendingWithSession(ctx context.Context, limit int) ([]domain.Attendee, error)
}

type Gateway interface {
	Lookup(ctx context.Context, pidx string) (gateway.Verification, error)
}

type Settler interface {
	VerifyAndApply(ctx context.Context, att domain.Attendee, v gateway.Verification) error
	MarkFailed(ctx context.Context, attendeeID uuid.UUID, reason string) error
}

// Sweeper is the recovery path for missed or failed callbacks: it
// re-verifies every PENDING attendee with a recorded session and settles
// or fails it. PENDING rows are never deleted, only transitioned.
type Sweeper struct {
	store       Store
	gw          Gateway
	settler     Settler
	logger      observability.Logger
	batchSize   int
	concurrency int
}

func NewSweeper(store Store, gw Gateway, settler Settler, logger observability.Logger) *Sweeper {
	return &Sweeper{
		store:       store,
		gw:          gw,
		settler:     settler,
		logger:      logger,
		batchSize:   100,
		concurrency: 8,
	}
}

func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("reconciliation sweep failed", err)
			}
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) error {
	pending, err := s.store.PendingWithSession(ctx, s.batchSize)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	s.logger.WithField("count", len(pending)).Info("reconciling pending payments")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, att := range pending {
		att := att
		g.Go(func() error {
			s.reconcileOne(gctx, att)
			return nil
		})
	}
	return g.Wait()
}

func (s *Sweeper) reconcileOne(ctx context.Context, att domain.Attendee) {
	if att.Pidx == nil {
		return
	}
	log := s.logger.WithField("attendee_id", att.ID).WithField("pidx", *att.Pidx)

	v, err := s.gw.Lookup(ctx, *att.Pidx)
	if err != nil {
		if errors.Is(err, domain.ErrGatewayUnavailable) {
			// Transient; the next sweep will retry.
			log.Debug("gateway unavailable during sweep")
			return
		}
		log.Error("sweep lookup failed", err)
		return
	}

	switch {
	case v.Status == gateway.StatusCompleted:
		if err := s.settler.VerifyAndApply(ctx, att, v); err != nil {
			// Settlement of a verified completion is never dropped; a
			// conflict here resurfaces on the next sweep.
			log.Error("sweep settlement failed", err)
		}
	case v.Status.Terminal():
		if err := s.settler.MarkFailed(ctx, att.ID, string(v.Status)); err != nil {
			log.Error("sweep failed to mark payment failed", err)
		} else {
			log.Info("payment marked failed: ", v.Status)
		}
	default:
		// Still in flight at the gateway.
	}
}
