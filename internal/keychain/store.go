package keychain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/noetl/noetl/common/db"
	"github.com/noetl/noetl/common/logger"
	"github.com/noetl/noetl/internal/model"
)

// ErrMiss is returned by Resolve when no cache row exists for the key at
// all (as opposed to an expired one, which returns a Resolution with
// Status "expired" and no error).
var ErrMiss = errors.New("keychain: cache miss")

// Store is the Postgres-backed, AEAD-sealed credential cache described by
// spec §4.6: one table serves both the execution-scoped layer and the
// global derived-token layer, distinguished only by Scope/CacheKey.
type Store struct {
	db         *db.DB
	cipher     *Cipher
	log        *logger.Logger
	renewAhead time.Duration
}

// New constructs a Store.
func New(database *db.DB, cipher *Cipher, log *logger.Logger, renewAhead time.Duration) *Store {
	if renewAhead <= 0 {
		renewAhead = 300 * time.Second
	}
	return &Store{db: database, cipher: cipher, log: log, renewAhead: renewAhead}
}

// Resolution is what Resolve hands back to a worker resolving `keychain.*`
// scope references before rendering a task's auth material.
type Resolution struct {
	Status      string            // "ok" | "expired"
	Fields      map[string]string
	AutoRenew   bool
	RenewConfig map[string]any
}

// Resolve looks up a cache_key, decrypting its payload on a live hit. An
// expired entry with auto_renew set returns Status="expired" plus its
// renew_config so the worker can perform the renewal call itself (spec
// §4.6); resolution never blocks on a network call internally.
func (s *Store) Resolve(ctx context.Context, cacheKey string) (*Resolution, error) {
	var (
		sealed      []byte
		expiresAt   time.Time
		autoRenew   bool
		renewRaw    []byte
	)
	err := s.db.QueryRow(ctx, `
		SELECT data_encrypted, expires_at, auto_renew, renew_config
		FROM keychain_entries WHERE cache_key = $1`, cacheKey).
		Scan(&sealed, &expiresAt, &autoRenew, &renewRaw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("keychain: resolve %q: %w", cacheKey, err)
	}

	if _, err := s.db.Exec(ctx, `
		UPDATE keychain_entries SET accessed_at = now(), access_count = access_count + 1 WHERE cache_key = $1`, cacheKey); err != nil {
		s.log.Warn("keychain: touch access stats failed", "cache_key", cacheKey, "error", err)
	}

	var renewConfig map[string]any
	if len(renewRaw) > 0 {
		if err := json.Unmarshal(renewRaw, &renewConfig); err != nil {
			return nil, fmt.Errorf("keychain: decode renew_config: %w", err)
		}
	}

	if !time.Now().Before(expiresAt) {
		return &Resolution{Status: "expired", AutoRenew: autoRenew, RenewConfig: renewConfig}, nil
	}

	plaintext, err := s.cipher.Open(sealed)
	if err != nil {
		return nil, err
	}
	var fields map[string]string
	if err := json.Unmarshal(plaintext, &fields); err != nil {
		return nil, fmt.Errorf("keychain: decode plaintext fields: %w", err)
	}
	return &Resolution{Status: "ok", Fields: fields, AutoRenew: autoRenew, RenewConfig: renewConfig}, nil
}

// Upsert seals fields and inserts or refreshes the cache row for entry's
// CacheKey, per spec §4.6's "ON CONFLICT update data_encrypted,
// accessed_at, access_count, expires_at".
func (s *Store) Upsert(ctx context.Context, entry *model.KeychainEntry, fields map[string]string) error {
	plaintext, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("keychain: encode fields: %w", err)
	}
	sealed, err := s.cipher.Seal(plaintext)
	if err != nil {
		return err
	}
	var renewRaw []byte
	if len(entry.RenewConfig) > 0 {
		renewRaw, err = json.Marshal(entry.RenewConfig)
		if err != nil {
			return fmt.Errorf("keychain: encode renew_config: %w", err)
		}
	}
	var schemaRaw []byte
	if len(entry.Schema) > 0 {
		schemaRaw, err = json.Marshal(entry.Schema)
		if err != nil {
			return fmt.Errorf("keychain: encode schema: %w", err)
		}
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO keychain_entries (
			cache_key, name, catalog_id, scope, execution_id, parent_execution_id,
			credential_type, cache_type, data_encrypted, expires_at, accessed_at,
			access_count, auto_renew, renew_config, schema
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),0,$11,$12,$13)
		ON CONFLICT (cache_key) DO UPDATE SET
			data_encrypted = EXCLUDED.data_encrypted,
			accessed_at = now(),
			access_count = keychain_entries.access_count + 1,
			expires_at = EXCLUDED.expires_at,
			auto_renew = EXCLUDED.auto_renew,
			renew_config = EXCLUDED.renew_config`,
		entry.CacheKey, entry.Name, entry.CatalogID, entry.Scope, entry.ExecutionID, entry.ParentExecutionID,
		entry.CredentialType, entry.CacheType, sealed, entry.ExpiresAt,
		entry.AutoRenew, renewRaw, schemaRaw,
	)
	if err != nil {
		return fmt.Errorf("keychain: upsert %q: %w", entry.CacheKey, err)
	}
	return nil
}

// NeedsRenewal reports whether a live resolution has crossed the
// refresh-ahead threshold and should be renewed before its caller's lease
// on it expires (global derived-token layer's refresh-ahead path).
func (s *Store) NeedsRenewal(expiresAt time.Time, autoRenew bool) bool {
	return autoRenew && !time.Now().Before(expiresAt.Add(-s.renewAhead))
}

// Sweep deletes every row past its TTL, run on a timer by the owning
// process (spec §4.6 "TTL sweep").
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	cmd, err := s.db.Exec(ctx, `DELETE FROM keychain_entries WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("keychain: sweep: %w", err)
	}
	return cmd.RowsAffected(), nil
}

// FinalizeExecution deletes every local-scope row owned by executionID,
// the scope-finalization hook spec §4.6 requires on execution completion.
func (s *Store) FinalizeExecution(ctx context.Context, executionID int64) (int64, error) {
	cmd, err := s.db.Exec(ctx, `
		DELETE FROM keychain_entries WHERE scope = $1 AND execution_id = $2`,
		model.ScopeLocal, executionID)
	if err != nil {
		return 0, fmt.Errorf("keychain: finalize execution %d: %w", executionID, err)
	}
	return cmd.RowsAffected(), nil
}
