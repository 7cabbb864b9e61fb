package server

import (
	"net"
	"testing"
	"time"
)

func TestServerListenAndStop(t *testing.T) {
	svc := newTestService(t)
	s := NewServer(svc, nil, nil, discardLogger())

	if err := s.Listen("127.0.0.1", 0); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	addr := s.listener.Addr().String()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dialing listener: %v", err)
	}
	conn.Close()

	s.Stop()

	if _, err := net.DialTimeout("tcp", addr, time.Second); err == nil {
		t.Fatal("expected dialing a stopped listener to fail")
	}
}
