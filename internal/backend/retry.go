package backend

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/documentdb/gatewaygw/internal/gwerror"
)

// RetryAction is the outcome of classifying a backend error against the
// retry table in spec.md §4.3.
type RetryAction int

const (
	RetryNone RetryAction = iota
	RetryShort            // 50ms backoff
	RetryLong             // 5s backoff
)

const (
	retryShortDelay = 50 * time.Millisecond
	retryLongDelay  = 5 * time.Second
)

// Delay returns the backoff duration for a, or 0 for RetryNone.
func (a RetryAction) Delay() time.Duration {
	switch a {
	case RetryShort:
		return retryShortDelay
	case RetryLong:
		return retryLongDelay
	default:
		return 0
	}
}

// classify implements the retry table from spec.md §4.3. requestType is the
// lowercase command name ("update", "find", ...); isReplicaCluster comes
// from the dynamic configuration snapshot in effect for this request.
func classify(err error, requestType string, isReplicaCluster bool) RetryAction {
	if isConnectionClosed(err) {
		return RetryShort
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		var gwErr *gwerror.Error
		if errors.As(err, &gwErr) && gwErr.SQLState != "" {
			return classifySQLState(gwErr.SQLState, requestType, isReplicaCluster)
		}
		return RetryNone
	}
	return classifySQLState(pgErr.Code, requestType, isReplicaCluster)
}

func classifySQLState(state, requestType string, isReplicaCluster bool) RetryAction {
	switch state {
	case gwerror.SQLStateAdminShutdown:
		return RetryShort
	case gwerror.SQLStateReadOnlySQLTransaction:
		if isReplicaCluster {
			return RetryNone
		}
		return RetryLong
	case gwerror.SQLStateConnectionFailure:
		return RetryLong
	case gwerror.SQLStateInvalidAuthorizationSpec:
		return RetryLong
	case gwerror.SQLStateDeadlockDetected:
		if requestType == "update" {
			return RetryLong
		}
		return RetryNone
	default:
		return RetryNone
	}
}

func isConnectionClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return !netErr.Timeout()
	}
	return false
}

// WithRetry runs fn, retrying per the retry table above, until it succeeds,
// retry is not applicable, or the cumulative elapsed time exceeds timeout.
// It does not know about transactions: the caller (internal/dispatch) is
// responsible for aborting an open transaction when a find or aggregate
// command ultimately fails, since that logic needs gwcontext, which this
// package cannot import without a cycle.
func WithRetry(ctx context.Context, timeout time.Duration, requestType string, isReplicaCluster bool, fn func(context.Context) error) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		action := classify(lastErr, requestType, isReplicaCluster)
		if action == RetryNone {
			return lastErr
		}
		if time.Now().Add(action.Delay()).After(deadline) {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(action.Delay()):
		}
	}
}
