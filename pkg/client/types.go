package client

import "github.com/loykin/gridnode/internal/logbuf"

// Info describes a node's identity as reported by its management endpoint.
type Info struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Address string `json:"address"`
}

// Health is the liveness view of a node.
type Health struct {
	Status string `json:"status"`
}

// LogEntry is one captured log record.
type LogEntry = logbuf.Entry

// HostVersions describes the runtime environment of a node.
type HostVersions struct {
	GoVersion string `json:"go-version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	Hostname  string `json:"hostname"`
}

// Versions is a node's version report, used to spot environment skew
// between peers.
type Versions struct {
	Version  string            `json:"version"`
	Host     HostVersions      `json:"host"`
	Packages map[string]string `json:"packages"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
