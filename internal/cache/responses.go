package cache

import (
	"context"
	"crypto/sha1"
	"fmt"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-booking/internal/config"
)

// ResponseKey builds the Redis key of a cached response.  The strategy
// selects which request parts take part in the key; the default is
// path plus raw query.
func ResponseKey(cfg config.CacheConfig, method, path, query string) string {
	var parts []string
	switch strings.ToLower(cfg.KeyStrategy) {
	case "path":
		parts = []string{"path", path}
	case "method_path":
		parts = []string{"method", method, "path", path}
	case "method_path_query":
		parts = []string{"method", method, "path", path, "q", query}
	default: // "path_query"
		parts = []string{"path", path, "q", query}
	}
	sum := sha1.Sum([]byte(strings.Join(parts, ":")))
	return fmt.Sprintf("%s:%x", cfg.Prefix, sum[:])
}

// ShowtimePath is the public URL path of a showtime.
func ShowtimePath(id uint64) string {
	return fmt.Sprintf("/v1/showtimes/%d", id)
}

// Responses drops cached responses whose content went stale.
type Responses struct {
	rdb *redis.Client
	cfg config.CacheConfig
}

// NewResponses returns nil when caching is off, which makes every method a
// no-op.
func NewResponses(rdb *redis.Client, cfg config.CacheConfig) *Responses {
	if rdb == nil || !cfg.Enabled {
		return nil
	}
	return &Responses{rdb: rdb, cfg: cfg}
}

// InvalidateShowtime removes the cached detail of a showtime, whose seat
// counter changes on every confirmation.
func (r *Responses) InvalidateShowtime(ctx context.Context, id uint64) error {
	if r == nil {
		return nil
	}
	return r.rdb.Del(ctx, ResponseKey(r.cfg, http.MethodGet, ShowtimePath(id), "")).Err()
}
