// Package service hosts the Approval Coordinator: the stateful component
// that sits between the Proxy Engine's policy decision and the Notifier,
// owning the Grant state machine and the pending-approval registry.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/clawguard/clawguard/internal/domain/audit"
	"github.com/clawguard/clawguard/internal/domain/grant"
	"github.com/clawguard/clawguard/internal/domain/notify"
)

var tracer = otel.Tracer("clawguard/service")

// Coordinator implements the Approval Coordinator's on-check algorithm,
// revocation, and startup hydration.
type Coordinator struct {
	registry *grant.Registry
	store    audit.Store
	notifier notify.Notifier
	logger   *slog.Logger

	// deadline is the per-request approval wait timeout, independent of
	// any Grant TTL. Exposed via config per the (b) Open Question
	// resolution.
	deadline time.Duration

	liveGrants   prometheus.Gauge
	waitLatency  prometheus.Histogram
}

// NewCoordinator builds a Coordinator. reg may be nil, in which case
// Prometheus instrumentation is skipped.
func NewCoordinator(store audit.Store, notifier notify.Notifier, deadline time.Duration, logger *slog.Logger, reg prometheus.Registerer) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		registry: grant.NewRegistry(),
		store:    store,
		notifier: notifier,
		logger:   logger,
		deadline: deadline,
	}
	if reg != nil {
		c.liveGrants = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clawguard_live_grants",
			Help: "Number of services with a currently live Grant.",
		})
		c.waitLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "clawguard_approval_wait_seconds",
			Help:    "Time spent waiting for an approval decision.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		})
		reg.MustRegister(c.liveGrants, c.waitLatency)
	}
	return c
}

// Hydrate implements the startup algorithm: GC expired approvals rows,
// then load the remaining non-revoked rows newest-first, keeping the
// first encountered per service.
func (c *Coordinator) Hydrate(ctx context.Context) error {
	now := time.Now()
	if _, err := c.store.GCExpiredApprovals(ctx, now); err != nil {
		return fmt.Errorf("coordinator: gc expired approvals: %w", err)
	}
	rows, err := c.store.LiveApprovals(ctx, now)
	if err != nil {
		return fmt.Errorf("coordinator: load live approvals: %w", err)
	}
	grants := make([]grant.Grant, 0, len(rows))
	for _, r := range rows {
		grants = append(grants, grant.Grant{
			Service:    r.Service,
			ApprovedBy: r.ApprovedBy,
			GrantedAt:  r.Timestamp,
			ExpiresAt:  r.ExpiresAt,
			Revoked:    r.Revoked,
		})
	}
	c.registry.SeedGrants(grants)
	c.logger.Info("hydrated live grants from audit store", "count", len(grants))
	return nil
}

// Check implements the on-check algorithm for a require_approval request.
// It returns true if the request may proceed.
func (c *Coordinator) Check(ctx context.Context, service, method, path, agentAddress string) (bool, error) {
	ctx, span := tracer.Start(ctx, "coordinator.check", trace.WithAttributes(
		attribute.String("clawguard.service", service),
	))
	defer span.End()

	now := time.Now()
	if _, ok := c.registry.LiveGrant(service, now); ok {
		span.SetAttributes(attribute.Bool("clawguard.live_grant", true))
		return true, nil
	}

	requestID := uuid.NewString()
	span.SetAttributes(attribute.String("clawguard.request_id", requestID))
	deadlineAt := now.Add(c.deadline)
	pending := grant.NewPendingApproval(requestID, service, method, path, agentAddress, now, deadlineAt)
	c.registry.Register(pending)

	waitStart := time.Now()
	defer func() {
		if c.waitLatency != nil {
			c.waitLatency.Observe(time.Since(waitStart).Seconds())
		}
	}()

	if err := c.notifier.Prompt(notify.Prompt{
		RequestID:    requestID,
		Service:      service,
		Method:       method,
		Path:         path,
		AgentAddress: agentAddress,
		RequestedAt:  now,
	}); err != nil {
		c.logger.Warn("failed to deliver approval prompt", "error", err, "request_id", requestID)
		c.registry.Resolve(requestID, grant.Decision{Approved: false, ApprovedBy: grant.ApproverTelegram})
	}

	decision, timedOut := c.await(ctx, pending, deadlineAt)
	if timedOut {
		c.registry.Resolve(requestID, grant.Decision{Approved: false, ApprovedBy: grant.ApproverTimeout})
		decision = grant.Decision{Approved: false, ApprovedBy: grant.ApproverTimeout}
	}
	span.SetAttributes(
		attribute.Bool("clawguard.approved", decision.Approved),
		attribute.String("clawguard.approved_by", decision.ApprovedBy),
	)

	if !decision.Approved {
		return false, nil
	}

	g := grant.Grant{
		Service:    service,
		ApprovedBy: decision.ApprovedBy,
		GrantedAt:  now,
		ExpiresAt:  now.Add(decision.TTL),
	}
	// Persist then install: a crash between these two leaves a persisted
	// grant that the next startup's hydration will pick up.
	if err := c.store.AppendApproval(ctx, audit.ApprovalRow{
		Timestamp: g.GrantedAt, Service: g.Service, ApprovedBy: g.ApprovedBy,
		TTLSeconds: int64(decision.TTL.Seconds()), ExpiresAt: g.ExpiresAt,
	}); err != nil {
		c.logger.Error("failed to persist grant", "error", err, "service", service)
	}
	c.registry.InstallGrant(g)
	c.updateLiveGrantsMetric()
	return true, nil
}

// await races the PendingApproval's reply channel against the absolute
// deadline, reporting timedOut=true if the deadline wins.
func (c *Coordinator) await(ctx context.Context, p *grant.PendingApproval, deadlineAt time.Time) (grant.Decision, bool) {
	timer := time.NewTimer(time.Until(deadlineAt))
	defer timer.Stop()

	result := make(chan grant.Decision, 1)
	go func() { result <- p.Await() }()

	select {
	case d := <-result:
		return d, false
	case <-timer.C:
		return grant.Decision{}, true
	case <-ctx.Done():
		return grant.Decision{}, true
	}
}

// Revoke implements the revoke(service) operation. Persistence-first: the
// durable MarkRevoked write happens before the in-memory Grant is dropped,
// so a crash between the two still leaves the revocation durable.
func (c *Coordinator) Revoke(ctx context.Context, service string) bool {
	if !c.registry.Exists(service) {
		return false
	}
	if err := c.store.MarkRevoked(ctx, service); err != nil {
		c.logger.Error("failed to persist revocation", "error", err, "service", service)
	}
	existed := c.registry.Revoke(service)
	if existed {
		c.updateLiveGrantsMetric()
	}
	return existed
}

// RevokeAll implements revokeAll(). Persistence-first, as in Revoke: every
// durable MarkRevoked write happens before the in-memory Grants are
// dropped wholesale.
func (c *Coordinator) RevokeAll(ctx context.Context, services []string) int {
	for _, svc := range services {
		if err := c.store.MarkRevoked(ctx, svc); err != nil {
			c.logger.Error("failed to persist revocation", "error", err, "service", svc)
		}
	}
	n := c.registry.RevokeAll()
	c.updateLiveGrantsMetric()
	return n
}

// Snapshot returns the live Grants view for the /__status endpoint.
func (c *Coordinator) Snapshot() map[string]grant.Grant {
	return c.registry.Snapshot(time.Now())
}

// Resolve implements telegram.ReplyResolver: it routes an out-of-band
// reply into the matching PendingApproval. Wired into the Notifier at
// construction time so a human's reply reaches the waiting Check call.
func (c *Coordinator) Resolve(requestID string, decision grant.Decision) bool {
	return c.registry.Resolve(requestID, decision)
}

func (c *Coordinator) updateLiveGrantsMetric() {
	if c.liveGrants == nil {
		return
	}
	c.liveGrants.Set(float64(len(c.registry.Snapshot(time.Now()))))
}
