package resultref

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/noetl/noetl/common/db"
	"github.com/noetl/noetl/internal/model"
)

// PostgresBackend is the durable Backend: result_refs rows alongside the
// event/queue/projection tables, so a ref outlives the writing worker's
// process the same way the event log does.
type PostgresBackend struct {
	db *db.DB
}

// NewPostgresBackend builds a PostgresBackend over an existing pool.
func NewPostgresBackend(database *db.DB) *PostgresBackend {
	return &PostgresBackend{db: database}
}

// Write implements Backend.
func (p *PostgresBackend) Write(ctx context.Context, ref *model.ResultRef, payload []byte) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO result_refs (ref_id, store, scope, execution_id, node_id, size_bytes, content_type, payload, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
		ON CONFLICT (ref_id) DO UPDATE SET payload = EXCLUDED.payload, size_bytes = EXCLUDED.size_bytes`,
		ref.RefID, ref.Store, ref.Scope, ref.ExecutionID, ref.NodeID, ref.SizeBytes, ref.ContentType, payload)
	if err != nil {
		return fmt.Errorf("resultref: postgres write %q: %w", ref.RefID, err)
	}
	return nil
}

// Read implements Backend.
func (p *PostgresBackend) Read(ctx context.Context, refID string) ([]byte, error) {
	var payload []byte
	err := p.db.QueryRow(ctx, `SELECT payload FROM result_refs WHERE ref_id = $1`, refID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resultref: postgres read %q: %w", refID, err)
	}
	return payload, nil
}

// Delete implements Backend.
func (p *PostgresBackend) Delete(ctx context.Context, refID string) error {
	_, err := p.db.Exec(ctx, `DELETE FROM result_refs WHERE ref_id = $1`, refID)
	if err != nil {
		return fmt.Errorf("resultref: postgres delete %q: %w", refID, err)
	}
	return nil
}

// DeleteByScope implements Backend.
func (p *PostgresBackend) DeleteByScope(ctx context.Context, scope model.ResultRefScope, executionID int64) (int64, error) {
	cmd, err := p.db.Exec(ctx, `DELETE FROM result_refs WHERE scope = $1 AND execution_id = $2`, scope, executionID)
	if err != nil {
		return 0, fmt.Errorf("resultref: postgres delete by scope %s: %w", scope, err)
	}
	return cmd.RowsAffected(), nil
}
