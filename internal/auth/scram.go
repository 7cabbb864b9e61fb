package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/documentdb/gatewaygw/internal/backend"
	"github.com/documentdb/gatewaygw/internal/gwerror"
)

// nonceCharset matches the printable-ASCII range SCRAM reserves for
// nonces (RFC 5802 excludes ',' from the value; this set also leaves out
// '=' and whitespace).
const nonceCharset = "!\"#$%&'()*+-./0123456789:;<>?@ABCDEFGHIJKLMNOPQRSTUVWXYZ[\\]^_`abcdefghijklmnopqrstuvwxyz{|}~"

const serverNonceSuffixLength = 2

// generateServerNonce appends a short random suffix to the client nonce,
// the combined value becoming the nonce both sides authenticate against
// for the rest of the exchange.
func generateServerNonce(clientNonce string) (string, error) {
	var suffix [serverNonceSuffixLength]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return "", fmt.Errorf("generating server nonce: %w", err)
	}
	b := make([]byte, serverNonceSuffixLength)
	for i, v := range suffix {
		b[i] = nonceCharset[int(v)%len(nonceCharset)]
	}
	return clientNonce + string(b), nil
}

// scramPayload is the decoded form of a SCRAM client message's comma-
// separated key=value pairs.
type scramPayload struct {
	username       string
	nonce          string
	proof          string
	channelBinding string
}

// parseSaslPayload decodes the "payload" binary field of a saslStart or
// saslContinue command. withHeader strips and validates the GS2 header
// ("n,,"/"p,,"/"y,,") that only the client-first message carries.
func parseSaslPayload(doc bson.Raw, withHeader bool) (scramPayload, error) {
	val, err := doc.LookupErr("payload")
	if err != nil {
		return scramPayload{}, gwerror.BadValue("Failed to parse: payload missing")
	}
	subtype, data, ok := val.BinaryOK()
	_ = subtype
	if !ok {
		return scramPayload{}, gwerror.BadValue("Failed to parse: payload is not binary")
	}
	text := string(data)

	if withHeader {
		if len(text) < 3 {
			return scramPayload{}, gwerror.SaslPayloadInvalid()
		}
		switch text[0:3] {
		case "n,,", "p,,", "y,,":
		default:
			return scramPayload{}, gwerror.SaslPayloadInvalid()
		}
		text = text[3:]
	}

	var p scramPayload
	for _, field := range strings.Split(text, ",") {
		idx := strings.IndexByte(field, '=')
		if idx < 0 {
			return scramPayload{}, gwerror.SaslPayloadInvalid()
		}
		k, v := field[:idx], field[idx+1:]
		switch k {
		case "n":
			p.username = v
		case "r":
			p.nonce = v
		case "p":
			p.proof = v
		case "c":
			p.channelBinding = v
		default:
			return scramPayload{}, gwerror.Unauthorized("Sasl payload was invalid.")
		}
	}
	return p, nil
}

// AuthConn is the subset of backend.Client the auth package needs: enough
// to run the catalog's authentication procedures against whichever
// connection pool is reserved for authentication traffic. Kept narrow so
// this package doesn't need to import the gateway's connection-context
// layer.
type AuthConn interface {
	Query(ctx context.Context, strategy backend.TimeoutStrategy, timeout time.Duration, query string, args ...any) (*backend.Result, error)
	Catalog() backend.Catalog
}

// HandleSaslStart dispatches a saslStart command to the SCRAM or OIDC
// branch based on its declared mechanism.
func HandleSaslStart(ctx context.Context, conn AuthConn, blockedPrefixes []string, state *State, cmd bson.Raw) (bson.D, error) {
	mechanism, err := cmd.LookupErr("mechanism")
	if err != nil {
		return nil, gwerror.BadValue("Failed to parse: mechanism missing")
	}
	mech, ok := mechanism.StringValueOK()
	if !ok {
		return nil, gwerror.BadValue("Failed to parse: mechanism is not a string")
	}

	switch mech {
	case "SCRAM-SHA-256":
		return handleScramStart(ctx, conn, blockedPrefixes, state, cmd)
	case "MONGODB-OIDC":
		return HandleOIDCStart(ctx, conn, state, cmd)
	default:
		return nil, gwerror.Unauthorized(fmt.Sprintf("Only SCRAM-SHA-256 and MONGODB-OIDC are supported, got: %s", mech))
	}
}

func handleScramStart(ctx context.Context, conn AuthConn, blockedPrefixes []string, state *State, cmd bson.Raw) (bson.D, error) {
	payload, err := parseSaslPayload(cmd, true)
	if err != nil {
		return nil, err
	}
	if payload.username == "" {
		return nil, gwerror.Unauthorized("Username missing from SaslStart.")
	}
	if payload.nonce == "" {
		return nil, gwerror.Unauthorized("Nonce missing from SaslStart.")
	}

	serverNonce, err := generateServerNonce(payload.nonce)
	if err != nil {
		return nil, gwerror.Wrap(gwerror.KindIO, err)
	}

	salt, iterations, err := getSaltAndIterations(ctx, conn, blockedPrefixes, payload.username)
	if err != nil {
		return nil, err
	}
	response := fmt.Sprintf("r=%s,s=%s,i=%d", serverNonce, salt, iterations)

	state.mu.Lock()
	state.first = &firstState{
		nonce:            serverNonce,
		firstMessageBare: fmt.Sprintf("n=%s,r=%s", payload.username, payload.nonce),
		firstMessage:     response,
	}
	state.username = payload.username
	state.mu.Unlock()
	state.setKind(KindNative)

	return bson.D{
		{Key: "payload", Value: bson.Binary{Subtype: 0, Data: []byte(response)}},
		{Key: "ok", Value: int32(1)},
		{Key: "conversationId", Value: int32(1)},
		{Key: "done", Value: false},
	}, nil
}

// HandleSaslContinue verifies the client's proof against the stored
// firstState and, on success, authorizes the connection.
func HandleSaslContinue(ctx context.Context, conn AuthConn, state *State, cmd bson.Raw) (bson.D, error) {
	payload, err := parseSaslPayload(cmd, false)
	if err != nil {
		return nil, err
	}

	state.mu.RLock()
	first := state.first
	storedUsername := state.username
	state.mu.RUnlock()

	if first == nil {
		return nil, gwerror.Unauthorized("SaslContinue called without SaslStart state.")
	}

	// mechanism is optional on saslContinue; only reject it if present and
	// it names a mechanism that can't appear here.
	if mechVal, err := cmd.LookupErr("mechanism"); err == nil {
		if mech, ok := mechVal.StringValueOK(); ok && mech == "MONGODB-OIDC" {
			return nil, gwerror.Unauthorized("Auth mechanism MONGODB-OIDC is not supported in SaslContinue")
		}
	}

	if payload.nonce == "" {
		return nil, gwerror.Unauthorized("Nonce missing from SaslContinue.")
	}
	if payload.proof == "" {
		return nil, gwerror.Unauthorized("Proof missing from SaslContinue.")
	}
	if payload.channelBinding == "" {
		return nil, gwerror.Unauthorized("Channel binding missing from SaslContinue.")
	}
	username := payload.username
	if username == "" {
		username = storedUsername
	}
	if username == "" {
		return nil, gwerror.InternalError("Username missing from SaslContinue")
	}

	if payload.nonce != first.nonce {
		return nil, gwerror.Unauthorized("Nonce did not match expected nonce.")
	}

	authMessage := fmt.Sprintf("%s,%s,c=%s,r=%s",
		first.firstMessageBare, first.firstMessage, payload.channelBinding, payload.nonce)

	ok, serverSignature, err := verifyScramProof(ctx, conn, username, authMessage, payload.proof)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, gwerror.Unauthorized("Invalid key")
	}

	respPayload := fmt.Sprintf("v=%s", serverSignature)

	oid, err := getUserOID(ctx, conn, username)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	state.password = ""
	state.userOID = oid
	state.hasUserOID = true
	state.mu.Unlock()
	state.setAuthorized(true)

	return bson.D{
		{Key: "payload", Value: bson.Binary{Subtype: 0, Data: []byte(respPayload)}},
		{Key: "ok", Value: int32(1)},
		{Key: "conversationId", Value: int32(1)},
		{Key: "done", Value: true},
	}, nil
}

func getSaltAndIterations(ctx context.Context, conn AuthConn, blockedPrefixes []string, username string) (salt string, iterations int32, err error) {
	lower := strings.ToLower(username)
	for _, prefix := range blockedPrefixes {
		if strings.HasPrefix(lower, strings.ToLower(prefix)) {
			return "", 0, gwerror.Unauthorized("Username is invalid.")
		}
	}

	result, err := conn.Query(ctx, backend.TimeoutNone, 0, conn.Catalog().SaltAndIterations, username)
	if err != nil {
		return "", 0, err
	}
	row, err := result.First()
	if err != nil {
		return "", 0, err
	}
	doc := bson.Raw(row[0])
	if v, dErr := doc.LookupErr("ok"); dErr != nil || asInt32(v) != 1 {
		return "", 0, gwerror.AuthenticationFailed("Invalid account: User details not found in the database")
	}
	iterVal, err := doc.LookupErr("iterations")
	if err != nil {
		return "", 0, gwerror.Wrap(gwerror.KindValueAccess, err)
	}
	saltVal, err := doc.LookupErr("salt")
	if err != nil {
		return "", 0, gwerror.Wrap(gwerror.KindValueAccess, err)
	}
	saltStr, ok := saltVal.StringValueOK()
	if !ok {
		return "", 0, gwerror.BadValue("PG returned invalid response: salt is not a string")
	}
	return saltStr, asInt32(iterVal), nil
}

// verifyScramProof delegates proof verification to the backend, which
// holds the stored key and can compute the expected client signature
// without the gateway ever needing the plaintext password.
func verifyScramProof(ctx context.Context, conn AuthConn, username, authMessage, proof string) (ok bool, serverSignature string, err error) {
	result, err := conn.Query(ctx, backend.TimeoutNone, 0, conn.Catalog().AuthenticateWithScramSHA256, username, authMessage, proof)
	if err != nil {
		return false, "", err
	}
	row, err := result.First()
	if err != nil {
		return false, "", err
	}
	doc := bson.Raw(row[0])
	okVal, err := doc.LookupErr("ok")
	if err != nil {
		return false, "", gwerror.Wrap(gwerror.KindValueAccess, err)
	}
	if asInt32(okVal) != 1 {
		return false, "", nil
	}
	sigVal, err := doc.LookupErr("ServerSignature")
	if err != nil {
		return false, "", gwerror.Wrap(gwerror.KindValueAccess, err)
	}
	sig, ok := sigVal.StringValueOK()
	if !ok {
		return false, "", gwerror.BadValue("PG returned invalid response: ServerSignature is not a string")
	}
	return true, sig, nil
}

func getUserOID(ctx context.Context, conn AuthConn, username string) (uint32, error) {
	result, err := conn.Query(ctx, backend.TimeoutNone, 0, "SELECT oid FROM pg_roles WHERE rolname = $1", username)
	if err != nil {
		return 0, err
	}
	row, err := result.First()
	if err != nil {
		return 0, err
	}
	// pg_roles.oid comes back as a plain bytea-free column in this query
	// (unlike the catalog procedures, which all return one bson document
	// column); decode it as a 4-byte big-endian oid.
	return decodeOID(row[0])
}

// decodeOID interprets a pg_roles.oid column value. pgx's extended
// protocol returns int4-family columns in binary (4-byte big-endian) once
// it has cached a statement description; fall back to decimal text for
// drivers/modes that return text instead.
func decodeOID(raw []byte) (uint32, error) {
	if len(raw) == 4 {
		return uint32(raw[0])<<24 | uint32(raw[1])<<16 | uint32(raw[2])<<8 | uint32(raw[3]), nil
	}
	var oid uint32
	if _, err := fmt.Sscanf(string(raw), "%d", &oid); err != nil {
		return 0, gwerror.BadValue("PG returned invalid response: oid is not numeric")
	}
	return oid, nil
}

func asInt32(v bson.RawValue) int32 {
	i, ok := v.Int32OK()
	if ok {
		return i
	}
	if i64, ok := v.Int64OK(); ok {
		return int32(i64)
	}
	return 0
}
