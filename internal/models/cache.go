package models

// CacheConfig holds cache purge configuration.
type CacheConfig struct {
	Method        string   // "ssh" (default) or "http"
	Hosts         []Host   // ssh: hosts that run BanCommand
	BanCommand    []string // ssh: argument vector, e.g. varnishadm ban req.url ~ .
	URL           string   // http: BAN request target
	BanHeader     string   // http: header carrying BanExpression
	BanExpression string
}
