package alivescan

import (
	"context"
	"net"
)

// Target is one entry the management client hands the engine: an address to probe and the
// caller-owned handle to associate with it.
type Target struct {
	Addr   net.IP
	Handle TargetHandle
}

// ManagementClient is the engine's upstream, read-only collaborator: it supplies the target
// list for a run and the scan's opaque identifier for log context. Everything else upstream
// -- parsing the management protocol, polling task state, reporting results back -- is out
// of scope and lives entirely on the caller's side of this interface.
type ManagementClient interface {
	// ScanID returns the opaque identifier of the current scan, used only for log context.
	ScanID() string
	// Targets returns every target to probe in this run. The engine calls this exactly once,
	// during lifecycle step 3.
	Targets(ctx context.Context) ([]Target, error)
}

// StaticManagementClient is a ManagementClient backed by a fixed, in-memory target list,
// used by tests and by simple callers that already have their targets resolved.
type StaticManagementClient struct {
	ID    string
	Hosts []Target
}

func (c *StaticManagementClient) ScanID() string { return c.ID }

func (c *StaticManagementClient) Targets(context.Context) ([]Target, error) {
	return c.Hosts, nil
}
