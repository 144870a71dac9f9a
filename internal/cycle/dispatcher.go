package cycle

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/slugwatch/citation-cli/internal/geo"
	"github.com/slugwatch/citation-cli/internal/ledger"
	"github.com/slugwatch/citation-cli/internal/mailer"
	"github.com/slugwatch/citation-cli/internal/metrics"
	"github.com/slugwatch/citation-cli/internal/model"
)

// Dispatcher turns newly recorded citations into proximity alerts. It holds
// the cycle's live session set, refreshed at the start of every cycle, and
// the cross-cycle sent-alert ledger that keeps a (session, citation) pair
// from being emailed twice.
type Dispatcher struct {
	index      *geo.LocationIndex
	mail       mailer.Mailer
	sent       *ledger.SentAlerts
	metrics    *metrics.Metrics
	radiusFeet float64
	now        func() time.Time
	log        *zap.Logger

	mu       sync.Mutex
	sessions []model.ParkingSession
}

// NewDispatcher wires an alert dispatcher. now may be nil for time.Now.
func NewDispatcher(index *geo.LocationIndex, mail mailer.Mailer, sent *ledger.SentAlerts,
	m *metrics.Metrics, radiusFeet float64, now func() time.Time) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		index:      index,
		mail:       mail,
		sent:       sent,
		metrics:    m,
		radiusFeet: radiusFeet,
		now:        now,
		log:        zap.L().With(zap.String("component", "alerts")),
	}
}

// SetSessions replaces the live session set.
func (d *Dispatcher) SetSessions(sessions []model.ParkingSession) {
	d.mu.Lock()
	d.sessions = sessions
	d.mu.Unlock()
}

// CitationDiscovered resolves the citation's location and emails every
// in-radius parker who has not already been alerted for this citation.
// Mail failures are logged per recipient and never abort the citation.
func (d *Dispatcher) CitationDiscovered(ctx context.Context, rec model.CitationRecord) {
	coord, ok := d.index.Resolve(rec.Location)
	if !ok {
		d.log.Debug("alerts: location not in lot table",
			zap.String("citation", rec.ID), zap.String("location", rec.Location))
		return
	}

	d.mu.Lock()
	sessions := d.sessions
	d.mu.Unlock()

	for _, ev := range geo.FindAlertTargets(rec, coord, d.index, sessions, d.radiusFeet, d.now()) {
		log := d.log.With(
			zap.String("citation", rec.ID),
			zap.String("email", ev.Session.Email),
			zap.Float64("distance_feet", ev.DistanceFeet),
		)
		if d.sent.IsSent(ev.Session.Email, rec.ID) {
			d.metrics.AlertsSuppressed.Inc()
			log.Debug("alerts: already sent, suppressing")
			continue
		}

		subject, body := mailer.AlertMessage(ev)
		if err := d.mail.Send(ctx, ev.Session.Email, subject, body); err != nil {
			log.Error("alerts: send failed", zap.Error(err))
			continue
		}
		if err := d.sent.Record(ev.Session.Email, rec.ID); err != nil {
			log.Error("alerts: sent-ledger append failed", zap.Error(err))
		}
		d.metrics.AlertsSent.Inc()
		log.Info("alerts: sent")
	}
}
