package types

// CacheEntry summarizes one published cache slot for GET /cache.
type CacheEntry struct {
	// Engine fingerprint (cache key).
	// example: 9f86d081884c7d659a2feaa0c55ad015
	Fingerprint string `json:"fingerprint" example:"9f86d081884c7d659a2feaa0c55ad015"`
	// Absolute path of the published engine directory.
	// example: /var/cache/engined/engines/9f86d081884c7d659a2feaa0c55ad015
	Path string `json:"path" example:"/var/cache/engined/engines/9f86d081884c7d659a2feaa0c55ad015"`
	// Total size of the slot in bytes.
	// example: 734003200
	SizeBytes int64 `json:"size_bytes" example:"734003200"`
	// Publish time in unix seconds.
	// example: 1700000000
	CreatedUnix int64 `json:"created_unix" example:"1700000000"`
	// Last reuse time in unix seconds.
	// example: 1700003600
	LastUsedUnix int64 `json:"last_used_unix" example:"1700003600"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Root directory of the build cache.
	// example: /var/cache/engined
	CacheRoot string `json:"cache_root" example:"/var/cache/engined"`
	// Published cache slots.
	Entries []CacheEntry `json:"entries"`
	// Free storage under the cache root in GiB.
	// example: 42.5
	FreeStorageGB float64 `json:"free_storage_gb" example:"42.5"`
	// Stats of the most recent build attempt, if any.
	LastBuild *BuildStats `json:"last_build,omitempty"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid fingerprint
	Error string `json:"error" example:"invalid fingerprint"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}
