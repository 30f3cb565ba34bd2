// Package oauth implements the protocol layer of the OAuth 2.0 / OpenID
// Connect authorization code flow with PKCE.
//
// The package is organized around the wire artifacts of the flow:
//
//   - ServiceConfiguration / DiscoveryDocument: provider endpoints, built
//     from OIDC discovery or manual construction (Client.Discover).
//   - PKCE / GenerateState: the per-request secrets binding a code to the
//     client that requested it.
//   - AuthorizationRequest / AuthorizationResponse: the browser-delivered
//     authorization leg, with deterministic URL serialization and strict
//     state and redirect-URI verification on the way back.
//   - TokenRequest / TokenResponse: the form-encoded token endpoint leg,
//     covering code exchange and refresh, with client authentication via
//     HTTP Basic or body parameters.
//   - Values: an ordered query/form codec preserving insertion order of
//     keys and repeated values, so serialization round-trips exactly.
//
// All components here are stateless or single-use; tracking a pending flow
// and managing the token lifecycle is the concern of the internal/flow and
// internal/authstate packages.
//
// Errors are typed by kind: NetworkError, ServerError, ProtocolError,
// UserCancelledError and ConfigurationError, all usable with errors.As.
package oauth
