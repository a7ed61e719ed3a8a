// Package valkey provides a Valkey storage backend for the oauth-core server.
//
// Valkey is wire-compatible with Redis. The Store type implements
// [storage.Store], which lets several server replicas share login sessions,
// authorization codes and access tokens.
//
// # Key Schema
//
// All keys use a configurable prefix (default "oauth:"):
//
//	{prefix}client:{clientID}   -> JSON(Client)
//	{prefix}user:{email}        -> JSON(User), email lower-cased
//	{prefix}login:{loginID}     -> JSON(LoginSession) (with TTL)
//	{prefix}code:{code}         -> JSON(AuthorizationCode) (with TTL)
//	{prefix}token:{token}       -> JSON(AccessToken) (with TTL)
//
// Ephemeral keys expire one minute after the record's own expires_at, so a
// request that arrives just after expiry is still rejected as expired rather
// than unknown. Expiry itself is always decided by the server's clock.
//
// # Atomic Operations
//
// Login sessions and authorization codes are single-use. Both are consumed
// with GETDEL, so only one of any number of concurrent requests can redeem
// the same record.
//
// # Configuration
//
//	store, err := valkey.New(valkey.Config{
//	    Address:   "localhost:6379",
//	    KeyPrefix: "oauth:",
//	})
//
// With TLS:
//
//	store, err := valkey.New(valkey.Config{
//	    Address:  "valkey.example.com:6379",
//	    Password: os.Getenv("VALKEY_PASSWORD"),
//	    TLS:      &tls.Config{MinVersion: tls.VersionTLS12},
//	})
//
// # Encryption at Rest
//
// Client secrets, user passwords and the e-mail addresses inside codes and
// tokens can be sealed with AES-256-GCM:
//
//	key, _ := security.GenerateKey()
//	encryptor, _ := security.NewEncryptor(key)
//	store.SetEncryptor(encryptor)
//
// User lookup keys are not encrypted.
package valkey
