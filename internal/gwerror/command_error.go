package gwerror

// CommandError is the BSON document shape written back to the client for
// any handler error: {ok:0, code, codeName, errmsg}. It is the only error
// shape ever placed on the wire — the connection loop recovers every
// handler error into one of these and keeps the connection open.
type CommandError struct {
	OK      int32  `bson:"ok"`
	Code    int32  `bson:"code"`
	CodeName string `bson:"codeName"`
	Errmsg  string `bson:"errmsg"`
}

// FromError builds the wire CommandError for any error surfaced by a
// handler. Non-gateway errors (plain Go errors from I/O, bson decode, pool
// exhaustion) are reported as InternalError with err.Error() as errmsg.
func FromError(err error) CommandError {
	if gerr, ok := err.(*Error); ok {
		return CommandError{
			OK:       0,
			Code:     int32(gerr.Code),
			CodeName: gerr.Name(),
			Errmsg:   gerr.Message,
		}
	}
	return CommandError{
		OK:       0,
		Code:     int32(CodeInternalError),
		CodeName: CodeInternalError.Name(),
		Errmsg:   err.Error(),
	}
}
