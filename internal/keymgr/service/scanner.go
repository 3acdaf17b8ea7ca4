package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/fluxtrade/keymgr/internal/keymgr/metrics"
	"github.com/fluxtrade/keymgr/internal/keymgr/store"
)

// ScannerActor is the attribution recorded on transitions the scanner
// performs on its own authority.
const ScannerActor = "scanner"

// ScannerService periodically sweeps key records: it warns about
// upcoming expiries, expires records past their lifetime, revokes
// grace records whose grace period has elapsed, and drains the
// lifecycle service's retry backlogs.
type ScannerService struct {
	Lifecycle *LifecycleService
	Store     store.Store
	Logger    *slog.Logger
	Interval  time.Duration

	// WarningWindow is how far ahead of expiry warnings begin.
	WarningWindow time.Duration

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewScannerService creates a scanner with the given cadence. A zero or
// negative interval defaults to 5 minutes; a zero or negative warning
// window defaults to 7 days.
func NewScannerService(lifecycle *LifecycleService, st store.Store, logger *slog.Logger, interval, warningWindow time.Duration) *ScannerService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if warningWindow <= 0 {
		warningWindow = 7 * 24 * time.Hour
	}

	return &ScannerService{
		Lifecycle:     lifecycle,
		Store:         st,
		Logger:        logger,
		Interval:      interval,
		WarningWindow: warningWindow,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop() for a
// graceful shutdown.
func (s *ScannerService) Start() {
	go s.run()
	s.Logger.Info("scanner started", "interval", s.Interval, "warning_window", s.WarningWindow)
}

// Stop shuts down the worker, blocking until any in-progress pass
// finishes.
func (s *ScannerService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("scanner stopped")
}

func (s *ScannerService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run a pass immediately on startup so a restart never extends the
	// effective scan interval.
	s.Pass(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Pass(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Pass executes one full sweep. Record-level failures are logged and
// counted but never abort the rest of the pass; each record is swept
// independently.
func (s *ScannerService) Pass(ctx context.Context) {
	now := s.Lifecycle.Now().UTC()
	s.Logger.Debug("scanner pass starting")

	var failures int

	// Grace periods that have run out. Revocation goes through the
	// lifecycle service so the audit trail and notifications are the
	// same as for a manual revoke.
	elapsed, err := s.Store.Keys().ListGraceElapsedKeyRecords(ctx, now)
	if err != nil {
		s.Logger.Error("listing grace-elapsed keys failed", "error", err)
		failures++
	}
	for _, rec := range elapsed {
		if _, err := s.Lifecycle.Revoke(ctx, rec.ID, nil, "grace period elapsed", ScannerActor); err != nil {
			s.Logger.Error("auto-revoke failed", "key_id", rec.ID, "error", err)
			failures++
		}
	}

	// Hard expiries. ListExpiringKeyRecords with a cutoff of now yields
	// exactly the records whose lifetime has elapsed.
	due, err := s.Store.Keys().ListExpiringKeyRecords(ctx, now)
	if err != nil {
		s.Logger.Error("listing expired keys failed", "error", err)
		failures++
	}
	for _, rec := range due {
		if err := s.Lifecycle.expire(ctx, rec); err != nil {
			s.Logger.Error("auto-expire failed", "key_id", rec.ID, "error", err)
			failures++
		}
	}

	// Expiry warnings, deduplicated per UTC day via LastWarnedAt.
	upcoming, err := s.Store.Keys().ListExpiringKeyRecords(ctx, now.Add(s.WarningWindow))
	if err != nil {
		s.Logger.Error("listing expiring keys failed", "error", err)
		failures++
	}
	for _, rec := range upcoming {
		if !rec.ExpiresWithin(now, s.WarningWindow) {
			continue
		}
		if err := s.Lifecycle.warnExpiring(ctx, rec); err != nil {
			s.Logger.Error("expiry warning failed", "key_id", rec.ID, "error", err)
			failures++
		}
	}

	s.Lifecycle.FlushBacklogs(ctx)

	metrics.ScannerPassesTotal.Inc()
	if failures > 0 {
		metrics.ScannerErrorsTotal.Add(float64(failures))
	}
	s.Logger.Debug("scanner pass completed",
		"grace_elapsed", len(elapsed),
		"expired", len(due),
		"failures", failures,
	)
}
