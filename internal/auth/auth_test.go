package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/documentdb/gatewaygw/internal/wire"
)

func TestGenerateServerNonceAppendsSuffix(t *testing.T) {
	nonce, err := generateServerNonce("clientnonce")
	if err != nil {
		t.Fatalf("generateServerNonce: %v", err)
	}
	if len(nonce) != len("clientnonce")+serverNonceSuffixLength {
		t.Fatalf("expected nonce of length %d, got %q", len("clientnonce")+serverNonceSuffixLength, nonce)
	}
	if nonce[:len("clientnonce")] != "clientnonce" {
		t.Fatalf("expected server nonce to start with client nonce, got %q", nonce)
	}
}

func TestParseSaslPayloadWithHeader(t *testing.T) {
	doc, err := bson.Marshal(bson.D{
		{Key: "payload", Value: bson.Binary{Subtype: 0, Data: []byte("n,,n=alice,r=abc123")}},
	})
	if err != nil {
		t.Fatal(err)
	}
	p, err := parseSaslPayload(bson.Raw(doc), true)
	if err != nil {
		t.Fatalf("parseSaslPayload: %v", err)
	}
	if p.username != "alice" || p.nonce != "abc123" {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestParseSaslPayloadRejectsBadHeader(t *testing.T) {
	doc, err := bson.Marshal(bson.D{
		{Key: "payload", Value: bson.Binary{Subtype: 0, Data: []byte("x,,n=alice,r=abc123")}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := parseSaslPayload(bson.Raw(doc), true); err == nil {
		t.Fatal("expected error for invalid GS2 header")
	}
}

func TestParseSaslPayloadWithoutHeader(t *testing.T) {
	doc, err := bson.Marshal(bson.D{
		{Key: "payload", Value: bson.Binary{Subtype: 0, Data: []byte("c=biws,r=abc123xy,p=proofvalue")}},
	})
	if err != nil {
		t.Fatal(err)
	}
	p, err := parseSaslPayload(bson.Raw(doc), false)
	if err != nil {
		t.Fatalf("parseSaslPayload: %v", err)
	}
	if p.channelBinding != "biws" || p.nonce != "abc123xy" || p.proof != "proofvalue" {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestParseAndValidateJWTRejectsMalformed(t *testing.T) {
	if _, _, err := parseAndValidateJWT("not-a-jwt"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}

func TestParseAndValidateJWTExpired(t *testing.T) {
	claims := map[string]any{
		"oid": "user-oid",
		"aud": "https://ossrdbms-aad.database.windows.net",
		"exp": float64(time.Now().Add(-time.Hour).Unix()),
	}
	token := buildUnsignedJWT(t, claims)
	_, _, err := parseAndValidateJWT(token)
	if err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestParseAndValidateJWTRejectsWrongAudience(t *testing.T) {
	claims := map[string]any{
		"oid": "user-oid",
		"aud": "https://not-allowed.example.com",
		"exp": float64(time.Now().Add(time.Hour).Unix()),
	}
	token := buildUnsignedJWT(t, claims)
	if _, _, err := parseAndValidateJWT(token); err == nil {
		t.Fatal("expected error for disallowed audience")
	}
}

func TestParseAndValidateJWTAccepts(t *testing.T) {
	exp := time.Now().Add(30 * time.Minute)
	claims := map[string]any{
		"oid": "user-oid",
		"aud": "https://ossrdbms-aad.database.windows.net",
		"exp": float64(exp.Unix()),
	}
	token := buildUnsignedJWT(t, claims)
	oid, until, err := parseAndValidateJWT(token)
	if err != nil {
		t.Fatalf("parseAndValidateJWT: %v", err)
	}
	if oid != "user-oid" {
		t.Fatalf("expected oid %q, got %q", "user-oid", oid)
	}
	if until <= 0 || until > 31*time.Minute {
		t.Fatalf("unexpected expiry duration: %v", until)
	}
}

func TestGateAllowsIntrospectionBeforeAuth(t *testing.T) {
	state := NewState()
	_, handled, err := Gate(context.Background(), nil, nil, state, &wire.Request{Type: wire.ReqPing})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handled {
		t.Fatal("expected ping to fall through to normal dispatch")
	}
}

func TestGateRejectsUnauthorizedCommand(t *testing.T) {
	state := NewState()
	_, handled, err := Gate(context.Background(), nil, nil, state, &wire.Request{Type: wire.ReqFind})
	if err == nil {
		t.Fatal("expected unauthorized error")
	}
	if !handled {
		t.Fatal("expected the gate to have handled (rejected) the request")
	}
}

func TestGatePassesThroughOnceAuthorized(t *testing.T) {
	state := NewState()
	state.setAuthorized(true)
	_, handled, err := Gate(context.Background(), nil, nil, state, &wire.Request{Type: wire.ReqFind})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handled {
		t.Fatal("expected an authorized connection's find to fall through to dispatch")
	}
}

func TestLogoutResetsState(t *testing.T) {
	state := NewState()
	state.setAuthorized(true)
	state.username = "alice"

	cmd, err := bson.Marshal(bson.D{{Key: "logout", Value: int32(1)}})
	if err != nil {
		t.Fatal(err)
	}
	req := &wire.Request{Type: wire.ReqLogout, Command: cmd}
	resp, err := Handle(context.Background(), nil, nil, state, req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(resp) == 0 {
		t.Fatal("expected a response document")
	}
	if state.Authorized() {
		t.Fatal("expected logout to clear authorized")
	}
	if state.Username() != "" {
		t.Fatal("expected logout to clear username")
	}
}

// buildUnsignedJWT builds a structurally valid (but unsigned) three-segment
// JWT carrying claims, matching the shape parseAndValidateJWT expects.
func buildUnsignedJWT(t *testing.T, claims map[string]any) string {
	t.Helper()
	header := base64URLJSON(t, map[string]any{"alg": "none", "typ": "JWT"})
	payload := base64URLJSON(t, claims)
	return header + "." + payload + ".signature"
}

func base64URLJSON(t *testing.T, v map[string]any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return base64.RawURLEncoding.EncodeToString(data)
}
