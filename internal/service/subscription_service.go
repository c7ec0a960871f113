package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/queaccounting/backend/internal/domain"
	"github.com/queaccounting/backend/internal/infrastructure/redis"
	"github.com/queaccounting/backend/internal/observability/metrics"
	"github.com/queaccounting/backend/internal/reliability/circuitbreaker"
	"github.com/queaccounting/backend/internal/security/audit"
)

// SubscriptionService manages subscription lifecycle and answers the gate's
// is-active question. Gate lookups go through a short-TTL Redis cache behind a
// circuit breaker; when Redis misbehaves the service falls through to postgres
// rather than failing the request.
type SubscriptionService struct {
	subscriptions domain.SubscriptionRepository
	businesses    domain.BusinessRepository
	cache         *redis.Client
	breaker       *circuitbreaker.CircuitBreaker
	cacheTTL      time.Duration
	auditLog      *audit.Logger
	logger        *slog.Logger
}

// NewSubscriptionService creates a new subscription service. cache may be nil
// to run without the Redis layer.
func NewSubscriptionService(
	subscriptions domain.SubscriptionRepository,
	businesses domain.BusinessRepository,
	cache *redis.Client,
	cacheTTL time.Duration,
	auditLog *audit.Logger,
	logger *slog.Logger,
) *SubscriptionService {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	s := &SubscriptionService{
		subscriptions: subscriptions,
		businesses:    businesses,
		cache:         cache,
		breaker:       circuitbreaker.NewCircuitBreaker(5, 2, 30*time.Second),
		cacheTTL:      cacheTTL,
		auditLog:      auditLog,
		logger:        logger,
	}
	s.breaker.SetStateChangeCallback(func(from, to circuitbreaker.State) {
		logger.Warn("subscription cache breaker state change",
			slog.Int("from", int(from)),
			slog.Int("to", int(to)),
		)
	})
	return s
}

func cacheKey(businessID string) string {
	return "sub:active:" + businessID
}

// maxDurationMonths caps one activation or extension at three years
const maxDurationMonths = 36

// IsActive reports whether the business's subscription currently grants
// access. This is the hot path behind every gated request.
func (s *SubscriptionService) IsActive(ctx context.Context, businessID string) (bool, error) {
	if s.cache != nil && s.breaker.AllowRequest() {
		val, err := s.cache.Get(ctx, cacheKey(businessID))
		switch {
		case err == nil:
			s.breaker.RecordSuccess()
			metrics.ObserveSubscriptionCache("hit")
			return val == "1", nil
		case err == redis.ErrCacheMiss:
			s.breaker.RecordSuccess()
			metrics.ObserveSubscriptionCache("miss")
		default:
			s.breaker.RecordFailure()
			metrics.ObserveSubscriptionCache("error")
			s.logger.Warn("subscription cache read failed",
				slog.String("business_id", businessID),
				slog.String("error", err.Error()),
			)
		}
	}

	sub, err := s.subscriptions.GetByBusinessID(ctx, businessID)
	if err != nil {
		if err == domain.ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to load subscription: %w", err)
	}
	active := sub.IsCurrentlyActive(time.Now())

	if s.cache != nil && s.breaker.AllowRequest() {
		val := "0"
		if active {
			val = "1"
		}
		if err := s.cache.Set(ctx, cacheKey(businessID), val, s.cacheTTL); err != nil {
			s.breaker.RecordFailure()
		} else {
			s.breaker.RecordSuccess()
		}
	}
	return active, nil
}

// Get returns a business's subscription. A stored ACTIVE row whose expiry has
// passed is reclassified to EXPIRED on the spot; there is no background sweep.
func (s *SubscriptionService) Get(ctx context.Context, businessID string) (*domain.Subscription, error) {
	sub, err := s.subscriptions.GetByBusinessID(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if sub.Status == domain.SubscriptionActive && !sub.IsCurrentlyActive(time.Now()) {
		sub.Status = domain.SubscriptionExpired
		if err := s.subscriptions.Update(ctx, sub); err != nil {
			s.logger.Warn("failed to persist expiry reclassification",
				slog.String("business_id", businessID),
				slog.String("error", err.Error()),
			)
		}
		s.invalidate(ctx, businessID)
	}
	return sub, nil
}

// Activate turns a subscription on for the given number of months and marks
// the business active. Activation always restarts the clock from now.
func (s *SubscriptionService) Activate(ctx context.Context, actor *domain.Principal, businessID string, months int, planName, notes string) (*domain.Subscription, error) {
	if months < 1 || months > maxDurationMonths {
		return nil, fmt.Errorf("durationMonths must be between 1 and %d", maxDurationMonths)
	}
	sub, err := s.subscriptions.GetByBusinessID(ctx, businessID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expires := now.AddDate(0, months, 0)
	sub.Status = domain.SubscriptionActive
	sub.StartDate = &now
	sub.ExpiresAt = &expires
	if planName != "" {
		sub.PlanName = planName
	}
	if notes != "" {
		sub.Notes = notes
	}
	if err := s.subscriptions.Update(ctx, sub); err != nil {
		return nil, err
	}
	if err := s.businesses.SetActive(ctx, businessID, true); err != nil {
		return nil, fmt.Errorf("failed to activate business: %w", err)
	}

	s.invalidate(ctx, businessID)
	s.auditLog.LogSubscriptionAdmin(ctx, businessID, actor.ID, "subscription_activate",
		fmt.Sprintf("%d months", months))
	return sub, nil
}

// Extend pushes the expiry out by the given number of months. Only a
// subscription that is currently active and unexpired extends from its stored
// expiry, so paying early never costs time; anything lapsed, expired or
// switched off restarts from now.
func (s *SubscriptionService) Extend(ctx context.Context, actor *domain.Principal, businessID string, months int) (*domain.Subscription, error) {
	if months < 1 || months > maxDurationMonths {
		return nil, fmt.Errorf("durationMonths must be between 1 and %d", maxDurationMonths)
	}
	sub, err := s.subscriptions.GetByBusinessID(ctx, businessID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	base := now
	if sub.IsCurrentlyActive(now) {
		base = *sub.ExpiresAt
	}
	expires := base.AddDate(0, months, 0)
	sub.Status = domain.SubscriptionActive
	if sub.StartDate == nil {
		sub.StartDate = &now
	}
	sub.ExpiresAt = &expires
	if err := s.subscriptions.Update(ctx, sub); err != nil {
		return nil, err
	}
	if err := s.businesses.SetActive(ctx, businessID, true); err != nil {
		return nil, fmt.Errorf("failed to activate business: %w", err)
	}

	s.invalidate(ctx, businessID)
	s.auditLog.LogSubscriptionAdmin(ctx, businessID, actor.ID, "subscription_extend",
		fmt.Sprintf("%d months", months))
	return sub, nil
}

// Deactivate switches the subscription off without touching its dates. The
// business flag stays as-is: tenant data remains readable under a read-only
// gate while the subscription is off.
func (s *SubscriptionService) Deactivate(ctx context.Context, actor *domain.Principal, businessID string) (*domain.Subscription, error) {
	sub, err := s.subscriptions.GetByBusinessID(ctx, businessID)
	if err != nil {
		return nil, err
	}
	sub.Status = domain.SubscriptionInactive
	if err := s.subscriptions.Update(ctx, sub); err != nil {
		return nil, err
	}

	s.invalidate(ctx, businessID)
	s.auditLog.LogSubscriptionAdmin(ctx, businessID, actor.ID, "subscription_deactivate", "")
	return sub, nil
}

// List returns subscriptions filtered by stored status, paginated
func (s *SubscriptionService) List(ctx context.Context, status string, page, limit int) ([]*domain.Subscription, error) {
	return s.subscriptions.List(ctx, status, page, limit)
}

// Stats aggregates subscription state across all tenants
func (s *SubscriptionService) Stats(ctx context.Context) (*domain.SubscriptionStats, error) {
	now := time.Now()

	total, err := s.businesses.Count(ctx)
	if err != nil {
		return nil, err
	}
	active, err := s.subscriptions.CountActive(ctx, now)
	if err != nil {
		return nil, err
	}
	expired, err := s.subscriptions.CountExpired(ctx, now)
	if err != nil {
		return nil, err
	}
	breakdown, err := s.subscriptions.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	return &domain.SubscriptionStats{
		TotalBusinesses:       total,
		ActiveSubscriptions:   active,
		ExpiredSubscriptions:  expired,
		InactiveSubscriptions: breakdown[domain.SubscriptionInactive],
		StatusBreakdown:       breakdown,
	}, nil
}

func (s *SubscriptionService) invalidate(ctx context.Context, businessID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cacheKey(businessID)); err != nil {
		s.logger.Warn("failed to invalidate subscription cache",
			slog.String("business_id", businessID),
			slog.String("error", err.Error()),
		)
	}
}
