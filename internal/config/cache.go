package config

import (
    "strings"
    "time"

    "github.com/caarlos0/env/v11"
)

// CacheConfig defines settings for the response cache middleware used on
// showtime detail reads.  When Enabled is false or no Redis client is
// configured, caching is disabled.  Seat maps are never cached since seat
// availability changes with every claim.
type CacheConfig struct {
    Enabled      bool            `env:"CACHE_ENABLED" envDefault:"true"`
    MethodList   string          `env:"CACHE_METHODS" envDefault:"GET"`
    Methods      map[string]bool
    TTL          time.Duration   `env:"CACHE_TTL" envDefault:"30s"`
    KeyStrategy  string          `env:"CACHE_KEY_STRATEGY" envDefault:"path_query"`
    Prefix       string          `env:"CACHE_PREFIX" envDefault:"cache"`
    MaxBodyBytes int             `env:"CACHE_MAX_BODY_BYTES" envDefault:"1048576"`
}

// LoadCacheConfig reads environment variables to build a CacheConfig.  All
// methods are upper-cased.
func LoadCacheConfig() CacheConfig {
    var c CacheConfig
    _ = env.Parse(&c)
    c.Methods = parseMethods(c.MethodList)
    return c
}

func parseMethods(s string) map[string]bool {
    m := map[string]bool{}
    for _, p := range strings.Split(s, ",") {
        p = strings.TrimSpace(strings.ToUpper(p))
        if p != "" {
            m[p] = true
        }
    }
    return m
}
