package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tickflow/internal/model"
)

// Store provides Postgres persistence for replay output.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// PutEventBatch inserts or updates replay events keyed by sequence number.
func (s *Store) PutEventBatch(events []model.EventRecord) error {
	return s.UpsertEvents(context.Background(), events)
}

// UpsertEvents inserts or updates replay events.
func (s *Store) UpsertEvents(ctx context.Context, events []model.EventRecord) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(`
			INSERT INTO pool_events (
				seq, op, event_time, owner, recipient, tick_lower, tick_upper,
				amount0, amount1, sqrt_price_x96, tick, liquidity, err, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now(),now())
			ON CONFLICT (seq)
			DO UPDATE SET
				op = EXCLUDED.op,
				event_time = EXCLUDED.event_time,
				owner = EXCLUDED.owner,
				recipient = EXCLUDED.recipient,
				tick_lower = EXCLUDED.tick_lower,
				tick_upper = EXCLUDED.tick_upper,
				amount0 = EXCLUDED.amount0,
				amount1 = EXCLUDED.amount1,
				sqrt_price_x96 = EXCLUDED.sqrt_price_x96,
				tick = EXCLUDED.tick,
				liquidity = EXCLUDED.liquidity,
				err = EXCLUDED.err,
				updated_at = now()
		`,
			int64(e.Seq),
			e.Op,
			int64(e.Time),
			e.Owner,
			e.Recipient,
			e.TickLower,
			e.TickUpper,
			e.Amount0,
			e.Amount1,
			e.SqrtPriceX96,
			e.Tick,
			e.Liquidity,
			e.Err,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertSnapshot stores a pool snapshot keyed by the sequence it was taken at.
func (s *Store) UpsertSnapshot(ctx context.Context, seq uint64, snap *model.PoolSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO pool_snapshots (seq, state, created_at, updated_at)
		VALUES ($1, $2, now(), now())
		ON CONFLICT (seq) DO UPDATE
		SET state = EXCLUDED.state, updated_at = now()
	`, int64(seq), payload)
	return err
}

// LoadState returns the last processed sequence for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var seq uint64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_seq FROM replay_state WHERE name=$1`, name)
	if err := row.Scan(&seq); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return seq, true, nil
}

// SaveState upserts the last processed sequence for a name.
func (s *Store) SaveState(ctx context.Context, name string, seq uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO replay_state (name, last_processed_seq, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_seq = EXCLUDED.last_processed_seq, updated_at = now()
	`, name, seq)
	return err
}
