package daemon

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/cardview/pkg/cardview/blockdev"
	"github.com/jamesainslie/cardview/pkg/cardview/logging"
	"github.com/jamesainslie/cardview/pkg/cardview/scan"
)

// Scanner is the periodic storage-scanning task. Exactly one scanner
// exists per process; it exclusively owns the bus between cycles and is
// the only writer to the catalog. Failures are never fatal and the
// interval is constant regardless of outcome. There is no on-demand
// trigger; a forced rescan between intervals is not supported.
type Scanner struct {
	drv      scan.Driver
	bus      *blockdev.Bus
	catalog  *Catalog
	settle   time.Duration
	interval time.Duration
}

// NewScanner creates a scanner over bus, publishing into catalog. The
// settle delay runs once before the first cycle; interval separates
// consecutive cycles.
func NewScanner(drv scan.Driver, bus *blockdev.Bus, catalog *Catalog, settle, interval time.Duration) *Scanner {
	return &Scanner{
		drv:      drv,
		bus:      bus,
		catalog:  catalog,
		settle:   settle,
		interval: interval,
	}
}

// Run executes the scan loop until ctx is canceled. Cancellation is only
// observed between cycles; an in-progress attempt always completes so the
// bus ownership round-trip is never interrupted.
func (s *Scanner) Run(ctx context.Context) {
	log := logging.Get("scanner")
	log.Info("scanner started", "device", s.bus.Path(),
		"settle", s.settle, "interval", s.interval)

	if !sleep(ctx, s.settle) {
		log.Info("scanner stopped before first cycle")
		return
	}

	for {
		s.runCycle(log)

		if !sleep(ctx, s.interval) {
			log.Info("scanner stopped")
			return
		}
	}
}

// runCycle performs one scan attempt and publishes its outcome.
func (s *Scanner) runCycle(log *logging.Logger) {
	scanID := uuid.NewString()
	start := time.Now()

	outcome := scan.Attempt(s.drv, s.bus)
	// The attempt hands the bus back on every path; thread it into the
	// next cycle.
	s.bus = outcome.Bus

	elapsed := time.Since(start)
	scanDuration.Observe(elapsed.Seconds())

	if outcome.Err != nil {
		s.catalog.SetError(outcome.Err.Diagnostic, scanID)
		scanCyclesTotal.WithLabelValues("failure").Inc()
		scanFailuresTotal.WithLabelValues(outcome.Err.Stage.String()).Inc()
		log.Warn("scan cycle failed", "scan_id", scanID,
			"stage", outcome.Err.Stage.String(), "error", outcome.Err.Cause,
			"elapsed", elapsed)
		return
	}

	s.catalog.SetReady(outcome.Entries, scanID)
	scanCyclesTotal.WithLabelValues("success").Inc()
	catalogEntries.Set(float64(len(outcome.Entries)))
	if outcome.Skipped > 0 {
		scanEntriesSkipped.Add(float64(outcome.Skipped))
	}

	if outcome.EnumErr != nil {
		log.Warn("enumeration cut short", "scan_id", scanID, "error", outcome.EnumErr)
	}
	log.Info("scan cycle finished", "scan_id", scanID,
		"entries", len(outcome.Entries), "skipped", outcome.Skipped,
		"elapsed", elapsed)
}

// sleep waits for d or until ctx is canceled, reporting false on
// cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
