package service

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// ConfigError reports a port-spec whose shape is outside the accepted set.
// It is fatal to the service being started, never to the whole node.
type ConfigError struct {
	Spec   any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid port spec %v: %s", e.Spec, e.Reason)
}

// Resolve turns a declared port spec into a concrete (host, port) pair.
// Accepted shapes:
//   - nil: any free port on the default host
//   - integer: that port on the default host
//   - "host:port" or "host" string
//   - one-element sequence: host, any free port
//   - two-element sequence: host and port
//
// A default host of "0.0.0.0" is rewritten to "" so the bind covers both
// IPv4 and IPv6 interfaces. Resolve performs no network operations.
func Resolve(spec any, defaultHost string) (string, int, error) {
	var (
		host   string
		parts  []any
		hasSeq bool
	)
	port := 0

	switch v := spec.(type) {
	case nil:
	case string:
		hasSeq = true
		for _, p := range strings.Split(v, ":") {
			parts = append(parts, p)
		}
	case []string:
		hasSeq = true
		for _, p := range v {
			parts = append(parts, p)
		}
	case []any:
		hasSeq = true
		parts = v
	default:
		p, err := cast.ToIntE(v)
		if err != nil {
			return "", 0, &ConfigError{Spec: spec, Reason: "unrecognized shape"}
		}
		port = p
	}

	switch len(parts) {
	case 0:
		if hasSeq {
			return "", 0, &ConfigError{Spec: spec, Reason: "expected host, port or host:port"}
		}
	case 1:
		host = cast.ToString(parts[0])
	case 2:
		host = cast.ToString(parts[0])
		p, err := cast.ToIntE(parts[1])
		if err != nil {
			return "", 0, &ConfigError{Spec: spec, Reason: "port is not a number"}
		}
		port = p
	default:
		return "", 0, &ConfigError{Spec: spec, Reason: "expected host, port or host:port"}
	}

	if host == "" {
		host = CleanHost(defaultHost)
	}
	return host, port, nil
}

// CleanHost normalizes a default listen host. "0.0.0.0" means all
// interfaces and maps to the empty string for dual-stack listeners.
func CleanHost(host string) string {
	if host == "0.0.0.0" {
		return ""
	}
	return host
}
