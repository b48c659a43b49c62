package node

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a node.
type Status string

const (
	StatusCreated  Status = "created"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusClosing  Status = "closing"
	StatusClosed   Status = "closed"
)

// ErrInvalidState reports a lifecycle operation attempted in a state that
// does not permit it, such as starting a closed node.
var ErrInvalidState = errors.New("invalid node state")

// StartupTimeoutError reports that a node failed to reach running within
// its death timeout. The node is unusable afterwards; a best-effort close
// has already been attempted.
type StartupTimeoutError struct {
	NodeType string
	Timeout  time.Duration
}

func (e *StartupTimeoutError) Error() string {
	return fmt.Sprintf("%s failed to start in %s", e.NodeType, e.Timeout)
}
