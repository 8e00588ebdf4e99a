package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voltarb/arbrouter/internal/domain"
)

// OutcomeStore implements domain.OutcomeStore using PostgreSQL. Rows are
// append-only; nothing ever updates or deletes an outcome besides pruning.
type OutcomeStore struct {
	pool *pgxpool.Pool
}

// NewOutcomeStore creates an OutcomeStore backed by the given pool.
func NewOutcomeStore(pool *pgxpool.Pool) *OutcomeStore {
	return &OutcomeStore{pool: pool}
}

// Append inserts one outcome record.
func (s *OutcomeStore) Append(ctx context.Context, o domain.ProviderOutcome) error {
	const query = `
		INSERT INTO provider_outcomes (
			id, provider_id, chain_id, success, latency_ms, reason, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.pool.Exec(ctx, query,
		o.ID, o.ProviderID, int64(o.ChainID), o.Success,
		o.Latency.Milliseconds(), o.Reason, o.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append outcome %s: %w", o.ID, err)
	}
	return nil
}

// ListRecent returns the provider's newest outcomes, most recent first.
func (s *OutcomeStore) ListRecent(ctx context.Context, providerID string, limit int) ([]domain.ProviderOutcome, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
		SELECT id, provider_id, chain_id, success, latency_ms, reason, recorded_at
		FROM provider_outcomes
		WHERE provider_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, providerID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list outcomes %s: %w", providerID, err)
	}
	defer rows.Close()
	return scanOutcomeRows(rows)
}

// PruneBefore deletes outcomes recorded before the cutoff and returns how
// many rows were removed.
func (s *OutcomeStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM provider_outcomes WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: prune outcomes: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanOutcomeRows(rows pgx.Rows) ([]domain.ProviderOutcome, error) {
	var out []domain.ProviderOutcome
	for rows.Next() {
		var (
			o         domain.ProviderOutcome
			chainID   int64
			latencyMs int64
		)
		if err := rows.Scan(
			&o.ID, &o.ProviderID, &chainID, &o.Success,
			&latencyMs, &o.Reason, &o.RecordedAt,
		); err != nil {
			return nil, err
		}
		o.ChainID = uint64(chainID)
		o.Latency = time.Duration(latencyMs) * time.Millisecond
		out = append(out, o)
	}
	return out, rows.Err()
}

// Compile-time interface check.
var _ domain.OutcomeStore = (*OutcomeStore)(nil)
