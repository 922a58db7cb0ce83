package jobqueue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/ManuelReschke/MemberFox/internal/pkg/cache"
	"github.com/ManuelReschke/MemberFox/internal/pkg/database"
	"github.com/ManuelReschke/MemberFox/internal/pkg/env"
	"github.com/ManuelReschke/MemberFox/internal/pkg/membership"
	metrics "github.com/ManuelReschke/MemberFox/internal/pkg/metrics/counter"
	"github.com/gofiber/fiber/v2/log"
)

const (
	reconcileLockKey = "reconcile:sweep:lock"
	reconcileLockTTL = 30 * time.Minute
)

// Manager manages the background tasks: the periodic reconciliation sweep and
// the webhook counter flush.
type Manager struct {
	reconcileTicker    *time.Ticker
	counterFlushTicker *time.Ticker
	reconciler         *membership.Reconciler
	stopCh             chan struct{}
	wg                 sync.WaitGroup
	mu                 sync.Mutex
	running            bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = &Manager{
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// Start starts the background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	m.reconciler = membership.NewReconcilerFromDB(database.GetDB())
	log.Info("[Job Manager] Starting background tasks")

	reconcileInterval := 24 * time.Hour
	if v, err := strconv.Atoi(env.GetEnv("RECONCILE_INTERVAL_MINUTES", "")); err == nil && v > 0 {
		reconcileInterval = time.Duration(v) * time.Minute
	}
	m.reconcileTicker = time.NewTicker(reconcileInterval)
	m.wg.Add(1)
	go m.reconcileWorker(reconcileInterval)

	// Counter flush worker (Redis -> DB) every 5 seconds
	m.counterFlushTicker = time.NewTicker(5 * time.Second)
	m.wg.Add(1)
	go m.counterFlushWorker()

	log.Info("[Job Manager] Started successfully")
}

// Stop stops the background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Job Manager] Stopping background tasks...")

	if m.reconcileTicker != nil {
		m.reconcileTicker.Stop()
	}
	if m.counterFlushTicker != nil {
		m.counterFlushTicker.Stop()
	}

	close(m.stopCh)
	m.running = false

	m.wg.Wait()

	log.Info("[Job Manager] Stopped successfully")
}

// reconcileWorker runs the reconciliation sweep on its schedule
func (m *Manager) reconcileWorker(interval time.Duration) {
	defer m.wg.Done()
	log.Infof("[Job Manager] Started reconcile worker (interval: %s)", interval)

	for {
		select {
		case <-m.stopCh:
			log.Info("[Job Manager] Reconcile worker stopping")
			return
		case <-m.reconcileTicker.C:
			if _, err := m.runReconcileSweepOnce(); err != nil {
				log.Errorf("[Job Manager] Reconciliation sweep error: %v", err)
			}
		}
	}
}

// counterFlushWorker periodically flushes webhook counters from Redis to DB
func (m *Manager) counterFlushWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[Job Manager] Counter flush worker stopping")
			return
		case <-m.counterFlushTicker.C:
			if err := metrics.FlushAll(); err != nil {
				log.Errorf("[Job Manager] Counter flush error: %v", err)
			}
		}
	}
}

// runReconcileSweepOnce takes the cross-process lock and runs one sweep.
// Losing the lock is normal when another instance is sweeping.
func (m *Manager) runReconcileSweepOnce() (*membership.SweepResult, error) {
	acquired, err := cache.AcquireLock(reconcileLockKey, reconcileLockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		log.Info("[Job Manager] Reconciliation sweep skipped, another instance holds the lock")
		return nil, nil
	}
	defer func() {
		if err := cache.ReleaseLock(reconcileLockKey); err != nil {
			log.Errorf("[Job Manager] Failed to release reconcile lock: %v", err)
		}
	}()

	return m.reconciler.ReconcileOnce(context.Background())
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// RunReconcileSweepOnce exposes a manual trigger for a single sweep (admin use).
func (m *Manager) RunReconcileSweepOnce() (*membership.SweepResult, error) {
	m.mu.Lock()
	if m.reconciler == nil {
		m.reconciler = membership.NewReconcilerFromDB(database.GetDB())
	}
	m.mu.Unlock()
	return m.runReconcileSweepOnce()
}
