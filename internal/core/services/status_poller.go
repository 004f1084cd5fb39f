package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"omvstack.control/internal/core/domain"
	"omvstack.control/internal/core/logger"
	"omvstack.control/internal/core/ports"
)

// StatusSource is a stack whose status can be polled.
type StatusSource interface {
	Name() string
	Status(ctx context.Context) (domain.StackStatus, error)
}

type StatusSnapshot struct {
	Service   string             `json:"service"`
	Status    domain.StackStatus `json:"status"`
	Error     string             `json:"error,omitempty"`
	CheckedAt time.Time          `json:"checked_at"`
}

// StatusPoller refreshes stack status on a cron schedule and publishes a
// status_changed event whenever a stack's snapshot differs from the last one.
type StatusPoller struct {
	sources  []StatusSource
	bus      ports.EventBus
	schedule string

	mu     sync.RWMutex
	latest map[string]StatusSnapshot
	cron   *cron.Cron
}

func NewStatusPoller(bus ports.EventBus, schedule string, sources ...StatusSource) *StatusPoller {
	return &StatusPoller{
		sources:  sources,
		bus:      bus,
		schedule: schedule,
		latest:   make(map[string]StatusSnapshot),
	}
}

// Start schedules polling and runs a first poll in the background. The
// scheduler stops when ctx is done.
func (p *StatusPoller) Start(ctx context.Context) error {
	p.cron = cron.New()

	_, err := p.cron.AddFunc(p.schedule, func() {
		p.PollOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule status poll: %w", err)
	}

	p.cron.Start()
	logger.Info("Status poller started", "schedule", p.schedule, "stacks", len(p.sources))

	go p.PollOnce(ctx)
	go func() {
		<-ctx.Done()
		p.Stop()
	}()

	return nil
}

// Stop stops the cron scheduler and waits for a running poll to finish.
func (p *StatusPoller) Stop() {
	if p.cron != nil {
		<-p.cron.Stop().Done()
	}
}

// PollOnce checks every source once.
func (p *StatusPoller) PollOnce(ctx context.Context) {
	for _, src := range p.sources {
		if ctx.Err() != nil {
			return
		}

		snap := StatusSnapshot{Service: src.Name(), CheckedAt: time.Now()}
		status, err := src.Status(ctx)
		if err != nil {
			snap.Error = err.Error()
			logger.Warn("Status poll failed", "service", snap.Service, "error", err)
		} else {
			snap.Status = status
			running := 0.0
			if status.Running {
				running = 1
			}
			stackRunning.WithLabelValues(snap.Service).Set(running)
		}

		if p.store(snap) {
			p.publish(ctx, snap)
		}
	}
}

func (p *StatusPoller) store(snap StatusSnapshot) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev, seen := p.latest[snap.Service]
	p.latest[snap.Service] = snap
	return !seen || prev.Status != snap.Status || prev.Error != snap.Error
}

func (p *StatusPoller) publish(ctx context.Context, snap StatusSnapshot) {
	if p.bus == nil {
		return
	}
	err := p.bus.Publish(ctx, domain.Event{
		Type:    domain.EventStatusChanged,
		Service: snap.Service,
		Error:   snap.Error,
		Payload: snap.Status,
		At:      snap.CheckedAt,
	})
	if err != nil {
		logger.Warn("Failed to publish status change", "service", snap.Service, "error", err)
	}
}

// Snapshot returns the last polled status of service.
func (p *StatusPoller) Snapshot(service string) (StatusSnapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	snap, ok := p.latest[service]
	return snap, ok
}

// Snapshots returns every known snapshot ordered by service name.
func (p *StatusPoller) Snapshots() []StatusSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]StatusSnapshot, 0, len(p.latest))
	for _, snap := range p.latest {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}
