// Package auth implements multi tenant authentication for the project
// management backend: signup of company managers and team members, login
// with account status gates, JWT access tokens paired with rotating refresh
// tokens, password reset, and the approval workflow that moves companies and
// members out of pending.
//
// Tokens:
//   - Access tokens are short lived HS256 JWTs carrying the user id, role and
//     company. Revoked access tokens are blacklisted by jti until they expire.
//   - Refresh tokens are opaque, stored hashed and grouped in families. Each
//     refresh rotates the token; presenting a rotated token again revokes the
//     whole family.
//
// Approvals:
//   - Companies and members start pending. ApprovalService drives the
//     ApprovalStateMachine inside a transaction and publishes ActivityEvents
//     only after commit.
//
// HTTP:
//   - AuthController and ApprovalController render the JSON envelope used by
//     every route. RouteAuthenticator protects routes through the jwtware
//     middleware and maps go-errors categories to status codes.
package auth
