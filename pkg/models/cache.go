package models

// NamespaceStats reports cache performance for one namespace.
type NamespaceStats struct {
	Namespace  string `json:"namespace"`
	TTLSeconds int64  `json:"ttl_seconds"`
	Hits       int64  `json:"hits"`
	Misses     int64  `json:"misses"`
}

// CacheStats reports cache performance metrics.
type CacheStats struct {
	Backend    string           `json:"backend"`
	Entries    int64            `json:"entries"`
	Hits       int64            `json:"hits"`
	Misses     int64            `json:"misses"`
	Namespaces []NamespaceStats `json:"namespaces"`
}
