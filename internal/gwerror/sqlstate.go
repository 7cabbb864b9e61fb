package gwerror

import (
	"fmt"
	"regexp"
	"strings"
)

// Well-known PostgreSQL SQL-states the translation table matches against.
// Names follow the upstream SQLSTATE mnemonic, not the gateway's own Code
// names, to keep this table legible against the Postgres documentation.
const (
	SQLStateUniqueViolation               = "23505"
	SQLStateExclusionViolation             = "23P01"
	SQLStateDiskFull                       = "53100"
	SQLStateUndefinedTable                 = "42P01"
	SQLStateQueryCanceled                  = "57014"
	SQLStateLockNotAvailable               = "55P03"
	SQLStateFeatureNotSupported            = "0A000"
	SQLStateDataException                  = "22000"
	SQLStateProgramLimitExceeded           = "54000"
	SQLStateNumericValueOutOfRange         = "22003"
	SQLStateObjectNotInPrerequisiteState   = "55000"
	SQLStateInternalError                  = "XX000"
	SQLStateInvalidTextRepresentation      = "22P02"
	SQLStateInvalidParameterValue          = "22023"
	SQLStateInvalidArgumentForNthValue     = "22014"
	SQLStateReadOnlySQLTransaction         = "25006"
	SQLStateInsufficientPrivilege          = "42501"
	SQLStateDeadlockDetected               = "40P01"
	SQLStateAdminShutdown                  = "57P01"
	SQLStateConnectionFailure              = "08006"
	SQLStateInvalidAuthorizationSpec       = "28000"
)

// apiErrorCodeMin/Max bound the reserved range the backend extension uses
// to smuggle a DocumentDBError code through a Postgres SQL-state: codes in
// [apiErrorCodeMin, apiErrorCodeMax) decode to a gateway code by subtracting
// apiErrorCodeMin.
const (
	apiErrorCodeMin = 687865856
	apiErrorCodeMax = 696254464
)

var (
	vectorIndexLengthConstraintRe = regexp.MustCompile(`column cannot have more than (\d+) dimensions for`)
	vectorDimensionsExceededRe    = regexp.MustCompile(`vector cannot have more than (\d+) dimensions`)
	vectorDiskannLengthRe         = regexp.MustCompile(`vector dimension cannot be larger than (\d+) dimensions for diskann index`)
)

// SQLStateToInt32 packs a 5-character SQL-state into a 32-bit integer, six
// bits per ASCII character, least-significant character first. This is the
// inverse of Int32ToSQLState and round-trips for any code the backend
// extension actually emits (it only ever uses digits and uppercase ASCII,
// both of which fit in six bits relative to '0').
func SQLStateToInt32(state string) int32 {
	var res int32
	var shift uint
	for i := 0; i < len(state) && i < 5; i++ {
		res += (int32(state[i]-'0') & 0x3F) << shift
		shift += 6
	}
	return res
}

// Int32ToSQLState is the inverse of SQLStateToInt32.
func Int32ToSQLState(code int32) string {
	chars := make([]byte, 5)
	for i := range chars {
		chars[i] = byte(code&0x3F) + '0'
		code >>= 6
	}
	return string(chars)
}

// BackendErrorContext carries the handful of connection-scoped facts the
// translation table needs without importing the gwcontext package (which
// itself depends on gwerror for its own error returns).
type BackendErrorContext struct {
	InTransaction   bool
	IsReplicaCluster bool
}

// KnownPGError maps a backend SQL-state and message to a gateway code plus
// an optional replacement message and codeName override, mirroring the
// original implementation's known_pg_error table. ok=false means no rule
// matched and the caller should fall back to a generic Backend error.
func KnownPGError(ctx BackendErrorContext, sqlState, msg string) (code Code, overrideMsg, overrideCodeName string, ok bool) {
	if packed := SQLStateToInt32(sqlState); packed >= apiErrorCodeMin && packed < apiErrorCodeMax {
		return Code(packed - apiErrorCodeMin), "", "", true
	}

	switch sqlState {
	case SQLStateUniqueViolation, SQLStateExclusionViolation:
		if ctx.InTransaction {
			return CodeWriteConflict, "", "", true
		}
		return CodeDuplicateKey, "Duplicate key violation on the requested collection", "", true

	case SQLStateDiskFull:
		return CodeOutOfDiskSpace, "The database disk is full", "", true

	case SQLStateUndefinedTable:
		return CodeNamespaceNotFound, "", "", true

	case SQLStateQueryCanceled:
		return CodeExceededTimeLimit, "", "", true

	case SQLStateLockNotAvailable:
		if ctx.InTransaction {
			return CodeWriteConflict, "", "", true
		}
		return CodeLockTimeout, "", "", true

	case SQLStateFeatureNotSupported:
		return CodeCommandNotSupported, "", "", true

	case SQLStateDataException:
		if containsAny(msg, "dimensions, not", "not allowed in vector") {
			return CodeBadValue, "", "", true
		}
		return CodeInternalError, "An unexpected internal error has occurred", "", true

	case SQLStateProgramLimitExceeded:
		switch {
		case containsAny(msg, "MB, maintenance_work_mem is"):
			return CodeExceededMemoryLimit, "index creation requires resources too large to fit in the resource memory limit, please try creating index with less number of documents or creating index before inserting documents into collection", "", true
		case vectorIndexLengthConstraintRe.MatchString(msg):
			d := vectorIndexLengthConstraintRe.FindStringSubmatch(msg)[1]
			return CodeBadValue, fmt.Sprintf("field cannot have more than %s dimensions for vector index", d), "", true
		case vectorDimensionsExceededRe.MatchString(msg):
			d := vectorDimensionsExceededRe.FindStringSubmatch(msg)[1]
			return CodeBadValue, fmt.Sprintf("field cannot have more than %s dimensions for vector index", d), "", true
		default:
			return CodeInternalError, "", "", true
		}

	case SQLStateNumericValueOutOfRange:
		if containsAny(msg, "is out of range for type halfvec") {
			return CodeBadValue, "Some values in the vector are out of range for half vector index", "", true
		}
		return 0, "", "", false

	case SQLStateObjectNotInPrerequisiteState:
		if containsAny(msg, "diskann index needs to be upgraded to version") {
			return CodeInvalidOptions, "The diskann index needs to be upgraded to the latest version, please drop and recreate the index", "", true
		}
		return 0, "", "", false

	case SQLStateInternalError:
		if vectorDiskannLengthRe.MatchString(msg) {
			d := vectorDiskannLengthRe.FindStringSubmatch(msg)[1]
			return CodeBadValue, fmt.Sprintf("field cannot have more than %s dimensions for diskann index", d), "", true
		}
		return CodeInternalError, "", "", true

	case SQLStateInvalidTextRepresentation, SQLStateInvalidParameterValue, SQLStateInvalidArgumentForNthValue:
		return CodeBadValue, "", "", true

	case SQLStateReadOnlySQLTransaction:
		if ctx.IsReplicaCluster {
			return CodeIllegalOperation, "Cannot execute the operation on this replica cluster", "", true
		}
		return CodeExceededTimeLimit, "Timed out while waiting for new primary to be elected", "ExceededTimeLimit", true

	case SQLStateInsufficientPrivilege:
		return CodeUnauthorized, "User is not authorized to perform this action", "Unauthorized", true

	case SQLStateDeadlockDetected:
		return CodeLockTimeout, "Could not acquire lock for operation due to deadlock", "", true

	default:
		return 0, "", "", false
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// FromPGError translates a raw backend SQL-state/message pair into a typed
// gateway *Error, applying the known-mapping table first and falling back
// to a generic Backend error (Kind=KindBackend) when nothing matches, so
// callers (retry.go in particular) can still classify it by SQLState alone.
func FromPGError(ctx BackendErrorContext, sqlState, msg string) *Error {
	if code, overrideMsg, overrideCodeName, ok := KnownPGError(ctx, sqlState, msg); ok {
		message := msg
		if overrideMsg != "" {
			message = overrideMsg
		}
		return &Error{
			Kind:     KindBackendTyped,
			Code:     code,
			CodeName: overrideCodeName,
			Message:  message,
			SQLState: sqlState,
		}
	}
	return FromBackend(sqlState, msg)
}
