// Package gwerror defines the gateway's wire-facing error taxonomy: a typed
// error code enum, error kinds, SQL-state translation and the CommandError
// BSON shape written back to clients.
package gwerror

// Code is a MongoDB-wire-compatible numeric error code.
type Code int32

// Error codes understood by clients of the wire protocol. Values match the
// document-database driver's well-known error code table.
const (
	CodeOK                                  Code = 0
	CodeInternalError                       Code = 1
	CodeBadValue                            Code = 2
	CodeUnauthorized                        Code = 13
	CodeTypeMismatch                        Code = 14
	CodeAuthenticationFailed                Code = 18
	CodeIllegalOperation                    Code = 20
	CodeLockTimeout                         Code = 24
	CodeNamespaceNotFound                   Code = 26
	CodeCursorNotFound                      Code = 43
	CodeExceededTimeLimit                   Code = 50
	CodeInvalidOptions                      Code = 72
	CodeInvalidNamespace                    Code = 73
	CodeShutdownInProgress                  Code = 91
	CodeWriteConflict                       Code = 112
	CodeCommandNotSupported                 Code = 115
	CodeConflictingOperationInProgress      Code = 117
	CodeExceededMemoryLimit                 Code = 146
	CodeClientMetadataCannotBeMutated       Code = 186
	CodeTransactionTooOld                   Code = 225
	CodeNoSuchTransaction                   Code = 251
	CodeTransactionCommitted                Code = 256
	CodeOperationNotSupportedInTransaction  Code = 263
	CodeDuplicateKey                        Code = 11000
	CodeOutOfDiskSpace                      Code = 14031
	CodeUnknownBsonField                    Code = 40415

	// CodeReauthenticationRequired matches the wire protocol's standard
	// reauthentication code. Used specifically for an expired OIDC token,
	// distinct from a plain authentication failure, so a driver can tell
	// the two apart and retry authentication rather than give up.
	CodeReauthenticationRequired Code = 391
)

// codeNames mirrors the driver's codeName strings for well-known codes.
var codeNames = map[Code]string{
	CodeOK:                                 "OK",
	CodeInternalError:                      "InternalError",
	CodeBadValue:                           "BadValue",
	CodeUnauthorized:                       "Unauthorized",
	CodeTypeMismatch:                       "TypeMismatch",
	CodeAuthenticationFailed:               "AuthenticationFailed",
	CodeIllegalOperation:                   "IllegalOperation",
	CodeLockTimeout:                        "LockTimeout",
	CodeNamespaceNotFound:                  "NamespaceNotFound",
	CodeCursorNotFound:                     "CursorNotFound",
	CodeExceededTimeLimit:                  "ExceededTimeLimit",
	CodeInvalidOptions:                     "InvalidOptions",
	CodeInvalidNamespace:                   "InvalidNamespace",
	CodeShutdownInProgress:                 "ShutdownInProgress",
	CodeWriteConflict:                      "WriteConflict",
	CodeCommandNotSupported:                "CommandNotSupported",
	CodeConflictingOperationInProgress:     "ConflictingOperationInProgress",
	CodeExceededMemoryLimit:                "ExceededMemoryLimit",
	CodeClientMetadataCannotBeMutated:      "ClientMetadataCannotBeMutated",
	CodeTransactionTooOld:                  "TransactionTooOld",
	CodeNoSuchTransaction:                  "NoSuchTransaction",
	CodeTransactionCommitted:               "TransactionCommitted",
	CodeOperationNotSupportedInTransaction: "OperationNotSupportedInTransaction",
	CodeDuplicateKey:                       "DuplicateKey",
	CodeOutOfDiskSpace:                     "OutOfDiskSpace",
	CodeUnknownBsonField:                   "UnknownBsonField",
	CodeReauthenticationRequired:           "ReauthenticationRequired",
}

// Name returns the driver codeName for c, or "Error" if c has no known name.
func (c Code) Name() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return "Error"
}
