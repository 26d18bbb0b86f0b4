package ratelimit

// CatalogConfig is the default per-catalog-entry admission limit applied
// to `POST /api/run/playbook` when a catalog entry does not override it.
type CatalogConfig struct {
	Limit         int64
	WindowSeconds int
}

// DefaultCatalogConfig bounds how many executions a single playbook can
// have admitted per window before `POST /api/run/playbook` starts
// returning 429s for it.
var DefaultCatalogConfig = CatalogConfig{
	Limit:         20,
	WindowSeconds: 60,
}

// GlobalConfig contains service-wide limits spanning every catalog entry.
type GlobalConfig struct {
	Limit         int64
	WindowSeconds int
}

// DefaultGlobalConfig bounds total execution admissions across the whole
// service regardless of which catalog entry they target.
var DefaultGlobalConfig = GlobalConfig{
	Limit:         500,
	WindowSeconds: 60,
}
