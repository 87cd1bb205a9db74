package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	qb "github.com/lunarbet/arbscan/internal/platform/querybuilder"
)

type FingerprintRepository struct {
	db *sqlx.DB
}

func NewFingerprintRepository(db *sqlx.DB) *FingerprintRepository {
	return &FingerprintRepository{db: db}
}

type fingerprintTableModel struct {
	Key  string `db:"key"`
	Hash string `db:"hash"`
}

func (r *FingerprintRepository) BatchLookup(ctx context.Context, keys []string) (map[string]string, error) {
	if len(keys) == 0 {
		return map[string]string{}, nil
	}

	query, args, err := qb.Select("key", "hash").From("odds_fingerprints").
		Where(qb.In("key", toAnySlice(keys))).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build fingerprint lookup query: %w", err)
	}

	var rows []fingerprintTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("lookup fingerprints: %w", err)
	}

	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Hash
	}
	return out, nil
}

func (r *FingerprintRepository) Upsert(ctx context.Context, key, hash string) error {
	query, args, err := qb.InsertModel("odds_fingerprints", fingerprintTableModel{Key: key, Hash: hash}, `ON CONFLICT (key)
DO UPDATE SET
    hash = EXCLUDED.hash,
    updated_at = NOW()`)
	if err != nil {
		return fmt.Errorf("build upsert fingerprint query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert fingerprint: %w", err)
	}
	return nil
}
