package server

import (
	"fmt"
	"strings"
	"time"

	appconfig "github.com/healthtrack/healthtrack-analytics/internal/config"
)

// defaultAllowedOrigins are accepted when no origins are configured.
var defaultAllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// httpAddr returns the HTTP listen address.
func httpAddr(cfg *appconfig.Config) string {
	return fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
}

// grpcAddr returns the gRPC listen address.
func grpcAddr(cfg *appconfig.Config) string {
	return fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort)
}

// timeouts returns the configured read and write timeouts, falling back to
// 30s each.
func timeouts(cfg *appconfig.Config) (read, write time.Duration) {
	read, write = 30*time.Second, 30*time.Second
	if cfg.Server.ReadTimeoutSeconds > 0 {
		read = time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	}
	if cfg.Server.WriteTimeoutSeconds > 0 {
		write = time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second
	}
	return read, write
}

// normalizeOrigins lowercases origins and drops empty entries.
func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if t := strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/")); t != "" {
			out = append(out, t)
		}
	}
	return out
}
