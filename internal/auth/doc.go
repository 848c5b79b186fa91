// Package auth supplies bearer credentials for calls to the agent API.
//
// Two sources are supported:
//
//   - StaticToken: a programmatic access token sent unchanged on every call.
//   - KeyPair: a short-lived RS256 JWT minted from an RSA private key.
//
// # Key-pair tokens
//
// The JWT identifies the user by account, user name and public key
// fingerprint:
//
//	iss = ACCOUNT.USER.SHA256:<base64 sha256 of the DER public key>
//	sub = ACCOUNT.USER
//	exp = iat + 59m
//
// The account is upper-cased and anything after the first dot (region, cloud)
// is dropped. Tokens are cached and re-minted once they reach DefaultRenewal;
// concurrent callers that find no valid token share a single mint.
//
// Private keys are PEM (PKCS#1, PKCS#8 or OpenSSH). Encrypted keys need the
// passphrase; encrypted PKCS#8 is not supported and must be converted first.
package auth
