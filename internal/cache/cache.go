// Package cache holds the optional report cache. Reports are derived from a
// full snapshot of the owner's book, so instead of tracking fine-grained keys
// every mutation bumps a per-owner version; stale entries simply age out.
package cache

import (
	"context"
	"time"

	"github.com/ayyanshiraz/inv/internal/domain"
)

type ReportCache interface {
	GetReport(ctx context.Context, key string) (*domain.LedgerReport, bool, error)
	SetReport(ctx context.Context, key string, value *domain.LedgerReport, ttl time.Duration) error
	GetDashboard(ctx context.Context, key string) (*domain.DashboardStats, bool, error)
	SetDashboard(ctx context.Context, key string, value *domain.DashboardStats, ttl time.Duration) error
	// Version returns the owner's current cache generation; keys embed it so
	// Invalidate retires every cached figure for the owner at once.
	Version(ctx context.Context, ownerID string) (int64, error)
	Invalidate(ctx context.Context, ownerID string) error
}

type NoopReportCache struct{}

func (NoopReportCache) GetReport(_ context.Context, _ string) (*domain.LedgerReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) SetReport(_ context.Context, _ string, _ *domain.LedgerReport, _ time.Duration) error {
	return nil
}

func (NoopReportCache) GetDashboard(_ context.Context, _ string) (*domain.DashboardStats, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) SetDashboard(_ context.Context, _ string, _ *domain.DashboardStats, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Version(_ context.Context, _ string) (int64, error) {
	return 0, nil
}

func (NoopReportCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
