package dispatch

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/documentdb/gatewaygw/internal/gwerror"
)

// transformWriteErrors walks a write command's reply looking for a
// writeErrors array, remapping each entry's backend-flavored SQLSTATE code
// through the same table every other backend error goes through. A handful
// of codes (write conflicts, lock timeouts, auth failures, internal errors)
// are serious enough that the whole command fails rather than reporting a
// per-item writeError, matching a driver's expectation that those are
// operation-level failures, not document-level ones.
func transformWriteErrors(errCtx gwerror.BackendErrorContext, raw []byte) ([]byte, error) {
	var top bson.M
	if err := bson.Unmarshal(raw, &top); err != nil {
		return raw, nil
	}
	errs, ok := top["writeErrors"].(bson.A)
	if !ok || len(errs) == 0 {
		return raw, nil
	}

	mutated := false
	for i, item := range errs {
		entry, ok := item.(bson.M)
		if !ok {
			continue
		}
		codeVal, hasCode := int64Field(entry, "code")
		if !hasCode {
			continue
		}
		msg, _ := stringField(entry, "errmsg")
		sqlState := gwerror.Int32ToSQLState(int32(codeVal))
		code, overrideMsg, overrideCodeName, matched := gwerror.KnownPGError(errCtx, sqlState, msg)
		if !matched {
			continue
		}

		switch code {
		case gwerror.CodeWriteConflict, gwerror.CodeInternalError, gwerror.CodeLockTimeout, gwerror.CodeUnauthorized:
			message := msg
			if overrideMsg != "" {
				message = overrideMsg
			}
			return nil, gwerror.Typed(code, message)
		}

		entry["code"] = int32(code)
		if overrideMsg != "" {
			entry["errmsg"] = overrideMsg
		}
		if overrideCodeName != "" {
			entry["codeName"] = overrideCodeName
		} else {
			entry["codeName"] = code.Name()
		}
		errs[i] = entry
		mutated = true
	}

	if !mutated {
		return raw, nil
	}
	top["writeErrors"] = errs
	out, err := bson.Marshal(top)
	if err != nil {
		return nil, gwerror.Wrap(gwerror.KindBson, err)
	}
	return out, nil
}
