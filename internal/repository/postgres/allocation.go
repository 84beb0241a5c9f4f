package postgres

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"

	"tradecouncil/internal/domain/allocation"
	"tradecouncil/pkg/errors"
)

// Compile-time check
var _ allocation.Repository = (*AllocationRepository)(nil)

const defaultListLimit = 20

// AllocationRepository implements allocation.Repository using sqlx.
// The full allocation is kept as JSONB; per-asset rows serve reporting queries.
type AllocationRepository struct {
	db *sqlx.DB
}

// NewAllocationRepository creates a new allocation repository
func NewAllocationRepository(db *sqlx.DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

// Save inserts the allocation and its asset rows in one transaction
func (r *AllocationRepository) Save(ctx context.Context, p *allocation.PortfolioAllocation) error {
	if p == nil {
		return errors.Wrap(errors.ErrInvalidInput, "nil allocation")
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "failed to marshal allocation")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin allocation transaction")
	}
	defer tx.Rollback()

	query := `
		INSERT INTO portfolio_allocations (
			id, created_at, method, total_value,
			turnover, rebalancing_needed, rebalancing_cost,
			confidence, is_fallback, payload
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)`

	_, err = tx.ExecContext(ctx, query,
		p.ID, p.Timestamp, string(p.AllocationMethod), p.TotalPortfolioValue,
		p.Turnover, p.RebalancingNeeded, p.RebalancingCost,
		p.AllocationConfidence, p.IsFallback(), payload,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to insert allocation %s", p.ID)
	}

	assetQuery := `
		INSERT INTO allocation_assets (
			allocation_id, symbol,
			target_weight, current_weight, weight_change,
			risk_contribution, expected_return, volatility
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)`

	for _, sym := range p.Symbols() {
		a := p.TargetAllocations[sym]
		_, err := tx.ExecContext(ctx, assetQuery,
			p.ID, sym,
			a.TargetWeight, a.CurrentWeight, a.WeightChange,
			a.RiskContribution, a.ExpectedReturn, a.Volatility,
		)
		if err != nil {
			return errors.Wrapf(err, "failed to insert allocation asset %s", sym)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit allocation")
	}
	return nil
}

// ListRecent returns up to limit allocations, newest first
func (r *AllocationRepository) ListRecent(ctx context.Context, limit int) ([]*allocation.PortfolioAllocation, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	var rows []struct {
		Payload []byte `db:"payload"`
	}
	query := `
		SELECT payload FROM portfolio_allocations
		ORDER BY created_at DESC
		LIMIT $1`

	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, errors.Wrap(err, "failed to list allocations")
	}

	out := make([]*allocation.PortfolioAllocation, 0, len(rows))
	for _, row := range rows {
		var p allocation.PortfolioAllocation
		if err := json.Unmarshal(row.Payload, &p); err != nil {
			return nil, errors.Wrapf(errors.ErrMalformedMessage, "allocation payload: %v", err)
		}
		out = append(out, &p)
	}
	return out, nil
}
