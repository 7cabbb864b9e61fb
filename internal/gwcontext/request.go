package gwcontext

import (
	"time"

	"github.com/google/uuid"

	"github.com/documentdb/gatewaygw/internal/wire"
)

// Request ties one inbound wire request to the connection it arrived on
// and an activity id for log correlation, plus simple phase timing
// (MarkPhase/Phases). No handler records phases and nothing logs them.
type Request struct {
	ActivityID string
	Connection *Connection
	Wire       *wire.Request

	phaseStart time.Time
	phases     map[string]time.Duration
}

// NewRequest builds a Request, reusing header.ActivityID (assigned
// when the wire header was read) rather than minting a second uuid.
func NewRequest(conn *Connection, w *wire.Request, activityID string) *Request {
	if activityID == "" {
		activityID = uuid.NewString()
	}
	return &Request{
		ActivityID: activityID,
		Connection: conn,
		Wire:       w,
		phaseStart: time.Now(),
		phases:     make(map[string]time.Duration),
	}
}

// MarkPhase records the elapsed time since the last MarkPhase call (or
// construction) under name, for handlers that want to report time spent
// parsing vs. querying vs. encoding.
func (r *Request) MarkPhase(name string) {
	now := time.Now()
	r.phases[name] = now.Sub(r.phaseStart)
	r.phaseStart = now
}

func (r *Request) Phases() map[string]time.Duration { return r.phases }
