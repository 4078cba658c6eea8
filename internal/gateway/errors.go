package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var ErrAccountNotFound = errors.New("account not found")

// TransientError marks failures worth retrying with backoff: transport
// faults, RPC rate limits, expired blockhashes. The transaction may or may
// not have landed; the caller must treat re-fetched chain state, not local
// bookkeeping, as the source of truth.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// RejectionError marks a program-level rejection. Retrying an identical
// submission cannot succeed, so these are surfaced instead of retried.
type RejectionError struct {
	Err error
}

func (e *RejectionError) Error() string { return fmt.Sprintf("chain rejection: %v", e.Err) }
func (e *RejectionError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

func IsRejection(err error) bool {
	var r *RejectionError
	return errors.As(err, &r)
}

// rejectionMarkers identify program-level failures inside RPC error text.
// The JSON-RPC layer flattens simulation results to strings, so string
// matching is the only signal available.
var rejectionMarkers = []string{
	"instructionerror",
	"custom program error",
	"insufficient funds for",
	"invalid instruction data",
	"program failed to complete",
	"invalid account data",
}

var transientMarkers = []string{
	"blockhash not found",
	"blockhash expired",
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"too many requests",
	"429",
	"node is behind",
	"service unavailable",
	"502",
	"503",
}

// classify wraps an RPC error as transient or rejection. Unrecognized
// errors default to transient: an unknown transport fault is recoverable,
// while a missed rejection only costs one more bounded retry cycle.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	text := strings.ToLower(err.Error())
	for _, marker := range rejectionMarkers {
		if strings.Contains(text, marker) {
			return &RejectionError{Err: err}
		}
	}
	for _, marker := range transientMarkers {
		if strings.Contains(text, marker) {
			return &TransientError{Err: err}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &TransientError{Err: err}
	}
	return &TransientError{Err: err}
}
