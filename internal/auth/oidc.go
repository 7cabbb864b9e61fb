package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/documentdb/gatewaygw/internal/backend"
	"github.com/documentdb/gatewaygw/internal/gwerror"
)

// validAudiences are the only "aud" claim values the gateway accepts.
// Signature verification is deliberately not implemented (an open
// question in the source this was ported from): the backend call below
// re-validates the raw token server-side, so an unsigned or tampered
// token still fails, just one round trip later than a JWKS check would
// catch it.
var validAudiences = map[string]bool{
	"https://ossrdbms-aad.database.windows.net": true,
}

// HandleOIDCStart handles a saslStart with mechanism=MONGODB-OIDC: a
// single-step exchange, unlike SCRAM's two-step start/continue.
func HandleOIDCStart(ctx context.Context, conn AuthConn, state *State, cmd bson.Raw) (bson.D, error) {
	val, err := cmd.LookupErr("payload")
	if err != nil {
		return nil, gwerror.BadValue("Failed to parse: payload missing")
	}
	_, data, ok := val.BinaryOK()
	if !ok {
		return nil, gwerror.BadValue("Failed to parse: payload is not binary")
	}

	payloadDoc := bson.Raw(data)
	jwtVal, err := payloadDoc.LookupErr("jwt")
	if err != nil {
		return nil, gwerror.Unauthorized("JWT token missing from OIDC payload")
	}
	jwt, ok := jwtVal.StringValueOK()
	if !ok {
		return nil, gwerror.Unauthorized("JWT token missing from OIDC payload")
	}

	return handleOIDCTokenAuthentication(ctx, conn, state, jwt)
}

func handleOIDCTokenAuthentication(ctx context.Context, conn AuthConn, state *State, token string) (bson.D, error) {
	oid, expiresIn, err := parseAndValidateJWT(token)
	if err != nil {
		return nil, err
	}

	result, err := conn.Query(ctx, backend.TimeoutNone, 0, conn.Catalog().AuthenticateWithToken, oid, token)
	if err != nil {
		return nil, err
	}
	row, err := result.First()
	if err != nil {
		return nil, err
	}
	authResult := strings.TrimSpace(string(row[0]))
	if authResult != oid {
		return nil, gwerror.Unauthorized("Token validation failed")
	}

	userOID, err := getUserOID(ctx, conn, oid)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	state.username = oid
	state.password = token
	state.userOID = userOID
	state.hasUserOID = true
	state.mu.Unlock()
	state.setAuthorized(true)
	state.setKind(KindExternalIdentity)

	state.startExpiryTimer(ctx, expiresIn, nil)

	return bson.D{
		{Key: "payload", Value: bson.Binary{Subtype: 0, Data: []byte{}}},
		{Key: "ok", Value: int32(1)},
		{Key: "conversationId", Value: int32(1)},
		{Key: "done", Value: true},
	}, nil
}

// parseAndValidateJWT extracts and structurally validates the oid/aud/exp
// claims out of a JWT's unverified payload segment. The signature is not
// checked here; see the doc comment on validAudiences.
func parseAndValidateJWT(token string) (oid string, timeUntilExpiry time.Duration, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", 0, gwerror.Unauthorized("Invalid JWT token format.")
	}

	payloadBytes, decErr := base64.RawURLEncoding.DecodeString(parts[1])
	if decErr != nil {
		return "", 0, gwerror.Unauthorized("Invalid JWT token encoding.")
	}

	var claims map[string]any
	if err := json.Unmarshal(payloadBytes, &claims); err != nil {
		return "", 0, gwerror.Unauthorized("Invalid JWT token payload.")
	}

	oidClaim, ok := claims["oid"].(string)
	if !ok {
		return "", 0, gwerror.Unauthorized("Token does not contain OID.")
	}

	audClaim, ok := claims["aud"].(string)
	if !ok {
		return "", 0, gwerror.Unauthorized("Token does not contain audience claim.")
	}

	expClaim, ok := claims["exp"].(float64)
	if !ok {
		return "", 0, gwerror.Unauthorized("Token does not contain expiry time.")
	}

	if !validAudiences[audClaim] {
		return "", 0, gwerror.Unauthorized("Invalid audience claim.")
	}

	expiry := time.Unix(int64(expClaim), 0)
	now := time.Now()
	if expiry.Before(now) {
		return "", 0, gwerror.ReauthenticationRequired("Token has expired.")
	}

	return oidClaim, expiry.Sub(now), nil
}
