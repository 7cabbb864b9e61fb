package server

import (
	"context"
	"log/slog"
	"net"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/documentdb/gatewaygw/internal/auth"
	"github.com/documentdb/gatewaygw/internal/dispatch"
	"github.com/documentdb/gatewaygw/internal/gwcontext"
	"github.com/documentdb/gatewaygw/internal/gwerror"
	"github.com/documentdb/gatewaygw/internal/metrics"
	"github.com/documentdb/gatewaygw/internal/wire"
)

// connection runs one accepted socket's read-dispatch-write loop until the
// peer disconnects or a transport-level error occurs.
type connection struct {
	ctx     context.Context
	log     *slog.Logger
	metrics *metrics.Collector
	conn    net.Conn
	gw      *gwcontext.Connection
}

func newConnection(ctx context.Context, svc *gwcontext.ServiceContext, m *metrics.Collector, log *slog.Logger, netConn net.Conn, remoteAddr net.Addr, sslProtocol string) *connection {
	return &connection{
		ctx:     ctx,
		log:     log,
		metrics: m,
		conn:    netConn,
		gw:      gwcontext.NewConnection(svc, remoteAddr, sslProtocol),
	}
}

// run reads one request at a time off the socket, authenticates or
// dispatches it, and writes back the reply, keeping the connection open
// across handler errors the way spec.md §7 requires — only a transport
// failure (a read/write error, or the peer closing the socket) ends the
// loop.
func (c *connection) run() {
	c.log.Info("connection accepted", "id", c.gw.ID, "remote", c.gw.RemoteAddr, "tls", c.gw.SSLProtocol)
	defer c.log.Info("connection closed", "id", c.gw.ID, "remote", c.gw.RemoteAddr)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		header, err := wire.ReadHeader(c.conn)
		if err != nil {
			wire.WriteErrorWithoutHeader("", err, c.conn)
			return
		}
		if header == nil {
			return
		}

		body, err := wire.ReadBody(header, c.conn)
		if err != nil {
			wire.WriteErrorWithoutHeader(header.ActivityID, err, c.conn)
			return
		}

		if err := c.handle(header, body); err != nil {
			c.log.Error("failed writing response", "id", c.gw.ID, "activity", header.ActivityID, "error", err)
			return
		}
	}
}

// handle parses, authenticates and dispatches a single request, and writes
// back either its reply or the translated error document. Only an error
// from the write itself is returned to the caller: everything upstream of
// that is reported to the client over the wire, not by closing the socket.
func (c *connection) handle(header *wire.Header, body []byte) error {
	start := time.Now()

	wireReq, err := wire.ParseRequest(header, body)
	if err != nil {
		return wire.WriteError(header, err, c.conn)
	}

	req := gwcontext.NewRequest(c.gw, wireReq, header.ActivityID)

	resp, cmdErr := c.process(req)
	if cmdErr != nil {
		c.recordOutcome(wireReq.Type, start, gwerror.FromError(cmdErr).CodeName)
		return wire.WriteError(header, cmdErr, c.conn)
	}

	c.recordOutcome(wireReq.Type, start, "ok")
	return wire.WriteResponse(header, resp, c.conn)
}

// process runs the auth gate ahead of the dispatcher: saslStart/
// saslContinue/logout are served directly by the auth package, any other
// command arriving before authentication completes is rejected there, and
// everything else falls through to the command dispatcher.
func (c *connection) process(req *gwcontext.Request) ([]byte, error) {
	authClient := c.gw.Service.AuthClient()
	resp, handled, err := auth.Gate(c.ctx, authClient, c.gw.Service.BlockedRolePrefixes, c.gw.Auth, req.Wire)
	if handled {
		if err != nil {
			if req.Wire.Type == wire.ReqSaslStart || req.Wire.Type == wire.ReqSaslContinue {
				c.metrics.AuthAttempt(string(req.Wire.Type), "failure")
			}
			return nil, err
		}
		if req.Wire.Type == wire.ReqSaslStart || req.Wire.Type == wire.ReqSaslContinue {
			outcome := "continue"
			if c.gw.Auth.Authorized() {
				outcome = "success"
			}
			c.metrics.AuthAttempt(string(req.Wire.Type), outcome)
		}
		return bson.Marshal(resp)
	}

	return dispatch.Dispatch(c.ctx, req)
}

func (c *connection) recordOutcome(reqType wire.RequestType, start time.Time, outcome string) {
	if c.metrics == nil {
		return
	}
	c.metrics.CommandCompleted(string(reqType), time.Since(start), outcome)
}
