package allocation

import (
	"context"
)

// Repository persists allocation proposals for turnover and performance analysis
type Repository interface {
	Save(ctx context.Context, alloc *PortfolioAllocation) error
	ListRecent(ctx context.Context, limit int) ([]*PortfolioAllocation, error)
}
