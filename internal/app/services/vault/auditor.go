package vault

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/gas_vault/internal/app/metrics"
	"github.com/R3E-Network/gas_vault/internal/app/storage"
	"github.com/R3E-Network/gas_vault/internal/app/storage/rediscache"
	"github.com/R3E-Network/gas_vault/internal/app/system"
	"github.com/R3E-Network/gas_vault/internal/events"
	core "github.com/R3E-Network/gas_vault/internal/vault"
	"github.com/R3E-Network/gas_vault/pkg/logger"
)

// Report summarizes one reconciliation pass.
type Report struct {
	CheckedAccounts int
	LedgerHeld      int64
	StoredHeld      int64
	Findings        []string
}

// Clean reports whether the pass found no drift.
func (r Report) Clean() bool { return len(r.Findings) == 0 }

// Auditor periodically reconciles the ledger against its projections: the
// per-account sum against the held counter, persisted rows against live
// snapshots, and the cached stats against the ledger's. It reconciles live
// state, so a finding during a write burst can be transient; repeated drift
// is the signal that a projection went bad.
type Auditor struct {
	service  *Service
	store    storage.Store
	cache    *rediscache.Cache
	events   events.EventLogger
	log      *logger.Logger
	schedule string

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

var _ system.Service = (*Auditor)(nil)

// NewAuditor creates a lifecycle-managed auditor. store and cache may be nil;
// whatever is absent is skipped during reconciliation.
func NewAuditor(service *Service, store storage.Store, cache *rediscache.Cache, eventLog events.EventLogger, log *logger.Logger) *Auditor {
	if eventLog == nil {
		eventLog = events.NoOpLogger{}
	}
	if log == nil {
		log = logger.NewDefault("vault-auditor")
	}
	return &Auditor{
		service:  service,
		store:    store,
		cache:    cache,
		events:   eventLog,
		log:      log,
		schedule: "@every 1m",
	}
}

// WithSchedule overrides the reconciliation schedule. Standard cron
// expressions and @every descriptors are accepted.
func (a *Auditor) WithSchedule(schedule string) {
	if trimmed := strings.TrimSpace(schedule); trimmed != "" {
		a.mu.Lock()
		a.schedule = trimmed
		a.mu.Unlock()
	}
}

func (a *Auditor) Name() string { return "vault-auditor" }

func (a *Auditor) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(a.schedule, func() {
		if _, err := a.RunOnce(context.Background()); err != nil {
			a.log.WithError(err).Warn("scheduled audit failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid audit schedule %q: %w", a.schedule, err)
	}
	c.Start()

	a.cron = c
	a.running = true
	a.log.WithField("schedule", a.schedule).Info("vault auditor started")
	return nil
}

func (a *Auditor) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	c := a.cron
	a.cron = nil
	a.running = false
	a.mu.Unlock()

	stopped := c.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	a.log.Info("vault auditor stopped")
	return nil
}

// RunOnce executes a single reconciliation pass and publishes the outcome.
func (a *Auditor) RunOnce(ctx context.Context) (Report, error) {
	start := time.Now()

	report, err := a.reconcile(ctx)
	if err != nil {
		metrics.RecordAuditRun("error", time.Since(start))
		return report, err
	}

	metrics.RecordAuditFindings(len(report.Findings))
	if report.Clean() {
		metrics.RecordAuditRun("clean", time.Since(start))
		events.NewEvent(events.EventAuditCompleted).
			Message(fmt.Sprintf("%d accounts reconciled", report.CheckedAccounts)).
			LogToWithContext(ctx, a.events)
		return report, nil
	}

	metrics.RecordAuditRun("drift", time.Since(start))
	events.NewEvent(events.EventAuditDrift).
		Severity(events.SeverityWarning).
		Message(fmt.Sprintf("%d findings across %d accounts", len(report.Findings), report.CheckedAccounts)).
		Metadata("findings", strings.Join(report.Findings, "; ")).
		LogToWithContext(ctx, a.events)
	for _, finding := range report.Findings {
		a.log.WithField("finding", finding).Warn("vault audit drift")
	}
	return report, nil
}

func (a *Auditor) reconcile(ctx context.Context) (Report, error) {
	var report Report

	views := a.service.Accounts()
	stats := a.service.Stats()
	report.CheckedAccounts = len(views)
	report.LedgerHeld = stats.HeldValue

	var sum int64
	byAddress := make(map[string]core.AccountView, len(views))
	for _, view := range views {
		sum += view.Balance
		byAddress[strings.ToLower(view.Address)] = view
		if view.WithdrawnInWindow > stats.Allowance {
			report.Findings = append(report.Findings,
				fmt.Sprintf("account %s window usage %d exceeds allowance %d", view.Address, view.WithdrawnInWindow, stats.Allowance))
		}
	}
	if sum != stats.HeldValue {
		report.Findings = append(report.Findings,
			fmt.Sprintf("account balances sum to %d but held counter is %d", sum, stats.HeldValue))
	}
	if stats.HeldValue > stats.Capacity {
		report.Findings = append(report.Findings,
			fmt.Sprintf("held value %d exceeds capacity %d", stats.HeldValue, stats.Capacity))
	}

	if a.store != nil {
		rows, err := a.store.ListVaultAccounts(ctx)
		if err != nil {
			return report, fmt.Errorf("list persisted accounts: %w", err)
		}
		persisted := make(map[string]bool, len(rows))
		var stored int64
		for _, row := range rows {
			stored += row.Balance
			key := strings.ToLower(row.Address)
			persisted[key] = true
			view, ok := byAddress[key]
			if !ok {
				report.Findings = append(report.Findings,
					fmt.Sprintf("account %s persisted but missing from ledger", row.Address))
				continue
			}
			if view.Balance != row.Balance {
				report.Findings = append(report.Findings,
					fmt.Sprintf("account %s holds %d but is persisted as %d", row.Address, view.Balance, row.Balance))
			}
		}
		report.StoredHeld = stored
		for key, view := range byAddress {
			if !persisted[key] {
				report.Findings = append(report.Findings,
					fmt.Sprintf("account %s in ledger but not persisted", view.Address))
			}
		}
		if stored != stats.HeldValue {
			report.Findings = append(report.Findings,
				fmt.Sprintf("persisted balances sum to %d but ledger holds %d", stored, stats.HeldValue))
		}
	}

	if a.cache != nil {
		if cached, ok := a.cache.GetStats(ctx); ok && cached.HeldValue != stats.HeldValue {
			report.Findings = append(report.Findings,
				fmt.Sprintf("cached held value %d behind ledger %d", cached.HeldValue, stats.HeldValue))
		}
	}

	return report, nil
}
