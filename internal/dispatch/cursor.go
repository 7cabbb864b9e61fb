package dispatch

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/documentdb/gatewaygw/internal/backend"
	"github.com/documentdb/gatewaygw/internal/gwcontext"
	"github.com/documentdb/gatewaygw/internal/gwerror"
)

// cursorFirstPage is the decoded form of a cursor-bearing response's
// trailing three columns, grounded on the four-column convention the
// backend uses for find/aggregate/listCollections/listIndexes first-page
// replies: column 1 is an optional continuation, column 2 reports whether
// the cursor must be pinned to the connection it was opened on, and column
// 3 is the cursor id the client will page through with getMore.
type cursorFirstPage struct {
	HasContinuation bool
	Continuation    []byte
	Persist         bool
	CursorID        int64
}

// extractCursorFirstPage reports ok=false for any row that isn't shaped
// like a cursor-bearing reply (wrong column count), so callers can use it
// unconditionally on both cursor and non-cursor catalog calls.
func extractCursorFirstPage(row backend.Row) (cursorFirstPage, bool) {
	if len(row) != 4 {
		return cursorFirstPage{}, false
	}
	page := cursorFirstPage{
		Persist:  bytesToBool(row[2]),
		CursorID: bytesToInt64(row[3]),
	}
	if row[1] != nil {
		page.HasContinuation = true
		page.Continuation = row[1]
	}
	return page, true
}

// extractGetMoreContinuation reads the lone continuation column a
// cursor_get_more call returns, present only when more results remain.
func extractGetMoreContinuation(row backend.Row) ([]byte, bool) {
	if len(row) < 2 || row[1] == nil {
		return nil, false
	}
	return row[1], true
}

// saveCursor persists the cursor a first-page reply opened, if any. A
// cursor whose backend marked it "persist" is pinned to the specific
// connection it was opened on (a fresh Client wrapping the same pool entry
// every getMore for this cursor must reuse); others are serviced from
// whatever connection the pool hands out next.
func saveCursor(ctx context.Context, req *gwcontext.Request, env envelope, row backend.Row) error {
	page, ok := extractCursorFirstPage(row)
	if !ok || !page.HasContinuation {
		return nil
	}

	conn := req.Connection
	username := conn.Auth.Username()

	var pinned *backend.Client
	if page.Persist {
		client, err := conn.Client(ctx)
		if err != nil {
			return err
		}
		pinned = client
	}

	conn.AddCursor(page.CursorID, username, gwcontext.CursorStoreEntry{
		Pool:       pinned,
		Cursor:     gwcontext.Cursor{CursorID: page.CursorID, Continuation: bson.Raw(page.Continuation)},
		DB:         env.DB,
		Collection: env.Collection,
		SessionID:  conn.SessionID(),
	})
	return nil
}

func handleGetMore(ctx context.Context, req *gwcontext.Request, cmd bson.M) ([]byte, error) {
	id, ok := int64Field(cmd, "getMore")
	if !ok {
		return nil, gwerror.BadValue("getMore must be of type long")
	}

	conn := req.Connection
	username := conn.Auth.Username()
	entry, found := conn.GetCursor(id, username)
	if !found {
		return nil, gwerror.CursorNotFound(fmt.Sprintf("cursor id %d not found", id))
	}

	args := []any{entry.DB, req.Wire.Command, []byte(entry.Cursor.Continuation)}

	var result *backend.Result
	var err error
	if entry.Pool != nil {
		result, err = entry.Pool.Query(ctx, backend.TimeoutNone, 0, conn.Service.Catalog.CursorGetMore, args...)
	} else {
		client, cErr := conn.Client(ctx)
		if cErr != nil {
			return nil, cErr
		}
		result, err = client.Query(ctx, backend.TimeoutCommand, conn.Service.CommandTimeout, conn.Service.Catalog.CursorGetMore, args...)
	}
	if err != nil {
		return nil, err
	}

	row, err := result.First()
	if err != nil {
		return nil, err
	}

	if continuation, more := extractGetMoreContinuation(row); more {
		conn.AddCursor(id, username, gwcontext.CursorStoreEntry{
			Pool:       entry.Pool,
			Cursor:     gwcontext.Cursor{CursorID: id, Continuation: bson.Raw(continuation)},
			DB:         entry.DB,
			Collection: entry.Collection,
			SessionID:  entry.SessionID,
		})
	}

	return replyDocFromRow(req, row)
}

func handleKillCursors(req *gwcontext.Request, cmd bson.M) ([]byte, error) {
	ids, _ := int64ArrayField(cmd, "cursors")
	conn := req.Connection
	username := conn.Auth.Username()

	var removed, missing []int64
	if txn, ok := conn.Transaction(); ok {
		removed, missing = txn.Cursors.KillCursors(username, ids)
	} else {
		removed, missing = conn.Service.Cursors.KillCursors(username, ids)
	}

	doc := bson.D{
		{Key: "cursorsKilled", Value: int64sToA(removed)},
		{Key: "cursorsNotFound", Value: int64sToA(missing)},
		{Key: "cursorsAlive", Value: bson.A{}},
		{Key: "cursorsUnknown", Value: bson.A{}},
		{Key: "ok", Value: float64(1)},
	}
	return bson.Marshal(doc)
}
