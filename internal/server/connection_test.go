package server

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/documentdb/gatewaygw/internal/backend"
	"github.com/documentdb/gatewaygw/internal/gwcontext"
	"github.com/documentdb/gatewaygw/internal/wire"
)

func TestTLSVersionName(t *testing.T) {
	cases := map[uint16]string{
		tls.VersionTLS12: "TLSv1.2",
		tls.VersionTLS13: "TLSv1.3",
		0x9999:           "unknown",
	}
	for version, want := range cases {
		if got := tlsVersionName(version); got != want {
			t.Errorf("tlsVersionName(%x) = %q, want %q", version, got, want)
		}
	}
}

// newTestService builds a ServiceContext backed by a real backend.Manager
// pointed at a placeholder endpoint. pgxpool.NewWithConfig never dials
// eagerly (MinConns stays 0), so this succeeds without a live Postgres and
// gives ping — the only command this package's tests drive all the way
// through — a non-nil AuthClient() to build auth.Gate's argument from.
func newTestService(t *testing.T) *gwcontext.ServiceContext {
	t.Helper()
	var catalog backend.Catalog
	catalog.FillDefaults()

	pools, err := backend.NewManager(context.Background(),
		backend.Endpoint{Host: "127.0.0.1", Port: 5432, Database: "postgres"},
		backend.Credential{Username: "gateway", Password: "unused"}, nil, discardLogger())
	if err != nil {
		t.Fatalf("building test pool manager: %v", err)
	}

	return gwcontext.NewServiceContext(context.Background(), pools, catalog, nil,
		time.Minute, time.Minute, time.Minute, nil)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeOpMsg frames doc as a single-section OP_MSG request, the same shape
// the real driver sends for a command like {ping: 1}.
func writeOpMsg(t *testing.T, w io.Writer, requestID int32, doc bson.D) {
	t.Helper()
	body, err := bson.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	header := &wire.Header{
		RequestID: requestID,
		OpCode:    wire.OpMsg,
		Length:    int32(wire.HeaderLength + 4 + 1 + len(body)),
	}
	if err := header.WriteTo(w); err != nil {
		t.Fatal(err)
	}
	var flags [4]byte
	if _, err := w.Write(flags[:]); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte{0}); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(body); err != nil {
		t.Fatal(err)
	}
}

// TestConnectionHandlesPing drives one request/response round trip through
// connection.handle over a net.Pipe, exercising ping (allowed before
// authentication) end to end without needing a live backend.
func TestConnectionHandlesPing(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	c := newConnection(context.Background(), newTestService(t), nil, discardLogger(), serverConn, clientConn.RemoteAddr(), "")

	serverDone := make(chan error, 1)
	go func() {
		header, err := wire.ReadHeader(serverConn)
		if err != nil || header == nil {
			serverDone <- err
			return
		}
		body, err := wire.ReadBody(header, serverConn)
		if err != nil {
			serverDone <- err
			return
		}
		serverDone <- c.handle(header, body)
	}()

	writeOpMsg(t, clientConn, 42, bson.D{{Key: "ping", Value: int32(1)}})

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	respHeader, err := wire.ReadHeader(clientConn)
	if err != nil {
		t.Fatalf("reading response header: %v", err)
	}
	if respHeader == nil {
		t.Fatal("expected a response header, got a clean disconnect")
	}
	if respHeader.OpCode != wire.OpMsg {
		t.Fatalf("expected OP_MSG reply, got %s", respHeader.OpCode)
	}
	if respHeader.ResponseTo != 42 {
		t.Fatalf("expected responseTo 42, got %d", respHeader.ResponseTo)
	}

	respBody, err := wire.ReadBody(respHeader, clientConn)
	if err != nil {
		t.Fatalf("reading response body: %v", err)
	}
	var reply bson.M
	if err := bson.Unmarshal(respBody[5:], &reply); err != nil {
		t.Fatalf("unmarshaling reply doc: %v", err)
	}
	if reply["ok"] != float64(1) {
		t.Fatalf("expected ok:1 in ping reply, got %+v", reply)
	}

	if err := <-serverDone; err != nil {
		t.Fatalf("connection.handle returned an error: %v", err)
	}
}
