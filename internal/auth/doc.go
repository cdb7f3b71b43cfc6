// Package auth provides authentication and authorization for turtle-gateway.
//
// # Tokens
//
// Operators and dashboards authenticate with HS256 JWTs signed with the
// configured auth.jwt_secret. A token carries:
//
//   - sub: the operator name recorded as the actor of ledger events
//   - role: "operator" (may change turtle state) or "viewer" (read only)
//   - exp: expiration time
//
// Tokens are minted by `turtle-gateway token`:
//
//	verifier, _ := NewJWTVerifier(secret)
//	token, err := verifier.Generate("alice", RoleOperator, 24*time.Hour)
//
// # HTTP Middleware
//
// HTTPAuthMiddleware reads the token from the Authorization header, or from
// the token query parameter when the header is absent, and attaches an
// AuthContext to the request:
//
//	mux.Handle("/api/", auth.HTTPAuthMiddleware(verifier)(api))
//
// RequireOperatorHTTP rejects viewers with 403.
//
// When no secret is configured the verifier is nil, the middleware lets
// every request through as an anonymous operator, and the gateway logs a
// warning at startup.
//
// Turtles themselves never authenticate; /ws is open.
package auth
