// Package auth provides authentication and authorization for moltbot-gateway.
//
// # Authentication Methods
//
//   - Shared token: the operator token from auth.token, compared in constant time.
//   - Password: checked against the bcrypt hash in auth.password_hash.
//   - JWT: HS256 tokens issued by `moltbot-gateway token issue`. The "sub"
//     claim names a principal in the store; revoked principals are rejected.
//
// The same Authenticator backs the WebSocket connect handshake and the
// bearer middleware on HTTP endpoints.
//
// # Roles and Scopes
//
// Clients connect as "operator" or "node". Operators carry scopes:
//
//   - operator.admin: everything
//   - operator.read / operator.write: status queries / agent.send
//   - operator.approvals: exec.approval.* events
//   - operator.pairing: device.pair.* and node.pair.* events
//
// IsAuthorizedForEvent is consulted by the broadcaster for every client on
// every event; events outside the scope table reach everyone.
package auth
