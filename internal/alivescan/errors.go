package alivescan

import (
	"fmt"

	"github.com/netreach/alivescan/internal/alivescan/rawsock"
)

// ConfigError signals a resolved ScanConfig that cannot be used to run a scan. Validate
// returns it for an empty method set; out-of-range caps are normalized instead.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("alivescan: config error: %s", e.Reason) }

// SocketError wraps a failure to open one of the raw sockets a method needs. It is always
// fatal for the run: initialization aborts and no probing begins.
type SocketError struct {
	Kind rawsock.SocketKind
	Err  error
}

func (e *SocketError) Error() string {
	return fmt.Sprintf("alivescan: socket error (%s): %v", e.Kind, e.Err)
}
func (e *SocketError) Unwrap() error { return e.Err }

// CaptureError wraps a failure to open the capture handle, compile the BPF filter, or
// install it. Fatal.
type CaptureError struct {
	Err error
}

func (e *CaptureError) Error() string { return fmt.Sprintf("alivescan: capture error: %v", e.Err) }
func (e *CaptureError) Unwrap() error { return e.Err }

// SendError records a single-probe emission failure. Never propagated: logged and counted,
// iteration continues.
type SendError struct {
	Dst  string
	Kind rawsock.SocketKind
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("alivescan: send error to %s (%s): %v", e.Dst, e.Kind, e.Err)
}
func (e *SendError) Unwrap() error { return e.Err }

// QueueError records a failure publishing to the downstream queue. Never propagated: logged,
// the run continues with degraded downstream accounting.
type QueueError struct {
	Op  string
	Err error
}

func (e *QueueError) Error() string {
	return fmt.Sprintf("alivescan: queue error during %s: %v", e.Op, e.Err)
}
func (e *QueueError) Unwrap() error { return e.Err }

// CleanupError aggregates one or more resource-release failures observed during teardown.
type CleanupError struct {
	Errs []error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("alivescan: cleanup reported %d error(s): %v", len(e.Errs), e.Errs)
}

func (e *CleanupError) Unwrap() []error { return e.Errs }

// addCleanupErr appends err to errs if non-nil, returning the (possibly extended) slice.
func addCleanupErr(errs []error, err error) []error {
	if err != nil {
		errs = append(errs, err)
	}
	return errs
}
