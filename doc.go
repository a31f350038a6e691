// Package dirauth is an identity and access core that reconciles an
// authoritative LDAP directory with a secondary profile store.
//
// Stores:
//   - Directory is authoritative for identity, credentials and group
//     membership. Credentials are only ever verified through a bind as the
//     candidate entry; nothing is hashed or compared locally.
//   - ProfileStore keeps profile documents and the activity log. It is never
//     consulted for identity or authorization decisions and swallows its own
//     faults so that an unavailable store cannot block a login.
//
// Tokens:
//   - TokenService issues HMAC signed JWTs carrying the subject, a snapshot of
//     the groups at issuance time and an absolute expiry. Tokens are never
//     persisted; validity is signature plus expiry.
//
// Gates:
//   - Gate verifies a token, checks the subject still exists in the directory
//     and checks the required group against a live lookup. The group snapshot
//     in the token is informational only.
//
// Orchestration:
//   - Auther is the only component that spans both stores: Register provisions
//     in the directory and mirrors a profile best-effort, Login binds, refreshes
//     login metadata best-effort and mints a token, WhoAmI merges live groups
//     with the profile document.
package dirauth
