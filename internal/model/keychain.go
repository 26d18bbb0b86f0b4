package model

import (
	"strconv"
	"time"
)

// KeychainScope controls the cache-key suffix and therefore how widely a
// cached credential is shared: local to an execution (and its children),
// shared across a parent-child execution tree, global to a catalog entry,
// or a namespaced global (catalog).
type KeychainScope string

const (
	ScopeLocal   KeychainScope = "local"
	ScopeGlobal  KeychainScope = "global"
	ScopeShared  KeychainScope = "shared"
	ScopeCatalog KeychainScope = "catalog"
)

// CacheType distinguishes a raw secret from a derived, short-lived token.
type CacheType string

const (
	CacheSecret CacheType = "secret"
	CacheToken  CacheType = "token"
)

// KeychainEntry is a cached, encrypted credential. Plaintext never reaches
// the event log or any projection; only DataEncrypted (ciphertext+nonce,
// AEAD-sealed) is persisted. CacheKey is derived from Name, CatalogID and
// Scope per the suffix rules the keychain package enforces.
type KeychainEntry struct {
	CacheKey            string         `json:"cache_key"`
	Name                string         `json:"name"`
	CatalogID           int64          `json:"catalog_id"`
	Scope               KeychainScope  `json:"scope"`
	ExecutionID         *int64         `json:"execution_id,omitempty"`
	ParentExecutionID   *int64         `json:"parent_execution_id,omitempty"`
	CredentialType      string         `json:"credential_type"`
	CacheType           CacheType      `json:"cache_type"`
	DataEncrypted       []byte         `json:"data_encrypted"`
	ExpiresAt           time.Time      `json:"expires_at"`
	AccessedAt          time.Time      `json:"accessed_at"`
	AccessCount         int64          `json:"access_count"`
	AutoRenew           bool           `json:"auto_renew"`
	RenewConfig         map[string]any `json:"renew_config,omitempty"`
	Schema              map[string]any `json:"schema,omitempty"`
}

// Expired reports whether the entry's TTL has elapsed as of now.
func (k *KeychainEntry) Expired(now time.Time) bool {
	return !now.Before(k.ExpiresAt)
}

// RenewAt returns the instant renewAhead seconds before expiry at which
// auto-renewal should be triggered.
func (k *KeychainEntry) RenewAt(renewAhead time.Duration) time.Time {
	return k.ExpiresAt.Add(-renewAhead)
}

// NeedsRenewal reports whether the entry has crossed its renew-ahead
// threshold and auto-renewal is enabled.
func (k *KeychainEntry) NeedsRenewal(now time.Time, renewAhead time.Duration) bool {
	return k.AutoRenew && !now.Before(k.RenewAt(renewAhead))
}

// CacheKeyFor computes the cache_key for a (name, catalog_id, scope) triple
// given the owning execution tree, per spec §4.6:
//
//	local:   {name}:{catalog_id}:{execution_id}
//	shared:  {name}:{catalog_id}:shared:{root_execution_id}
//	global:  {name}:{catalog_id}:global
//	catalog: {name}:{catalog_id}:catalog
func CacheKeyFor(name string, catalogID int64, scope KeychainScope, executionID, rootExecutionID int64) string {
	switch scope {
	case ScopeLocal:
		return formatCacheKey(name, catalogID, strconv.FormatInt(executionID, 10))
	case ScopeShared:
		return formatCacheKey(name, catalogID, "shared:"+strconv.FormatInt(rootExecutionID, 10))
	case ScopeGlobal:
		return formatCacheKey(name, catalogID, "global")
	case ScopeCatalog:
		return formatCacheKey(name, catalogID, "catalog")
	default:
		return formatCacheKey(name, catalogID, strconv.FormatInt(executionID, 10))
	}
}

func formatCacheKey(name string, catalogID int64, suffix string) string {
	return name + ":" + strconv.FormatInt(catalogID, 10) + ":" + suffix
}
