package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SplitList splits a comma separated list, trimming blanks and dropping
// empty and repeated entries. Order of first appearance is kept.
func SplitList(s string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, ok := seen[part]; ok {
			continue
		}
		seen[part] = struct{}{}
		out = append(out, part)
	}
	return out
}

// HostPort extracts host:port from a URL such as http://node:9650/ext/bc/C/rpc
// or postgres://u:p@db/rewards. A bare host:port is returned as is. When the
// URL has no port, defaultPort is used.
func HostPort(raw, defaultPort string) (string, error) {
	if raw == "" {
		return "", errors.New("invalid address: must not be empty")
	}
	if !strings.Contains(raw, "://") {
		if _, _, err := net.SplitHostPort(raw); err != nil {
			return "", fmt.Errorf("invalid address %q: %w", raw, err)
		}
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", raw, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("invalid address %q: missing host", raw)
	}
	port := u.Port()
	if port == "" {
		port = defaultPort
	}
	if port == "" {
		return "", fmt.Errorf("invalid address %q: missing port", raw)
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

// WaitForTCP dials addr every interval until it accepts a connection or
// timeout elapses.
func WaitForTCP(ctx context.Context, log *zap.SugaredLogger, addr string, timeout, interval time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for attempt := 1; ; attempt++ {
		dialCtx, dialCancel := context.WithTimeout(ctx, interval)
		conn, err := d.DialContext(dialCtx, "tcp", addr)
		dialCancel()
		if err == nil {
			_ = conn.Close()
			log.Infow("dependency reachable", "addr", addr, "attempts", attempt)
			return nil
		}
		log.Debugw("dependency not reachable yet", "addr", addr, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for %s after %d attempts: %w", addr, attempt, err)
		case <-ticker.C:
		}
	}
}
