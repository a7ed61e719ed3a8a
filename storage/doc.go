// Package storage provides the repository interfaces and entity types for the
// OAuth authorization core.
//
// The storage package defines one typed interface per entity:
//   - ClientStore: read-only registry of OAuth clients
//   - UserStore: read-only registry of end users
//   - LoginSessionStore: pending login sessions created by the authorize step
//   - AuthorizationCodeStore: single-use authorization codes
//   - AccessTokenStore: issued access tokens
//
// The "pop" operations (PopLoginSession, PopAuthorizationCode) are atomic
// fetch-and-delete operations. Two concurrent pops of the same key must never
// both return the entity.
//
// This package also provides shared helpers used by backend implementations,
// including encryption helpers for fields that contain personal data.
//
// Implementations are provided in subpackages:
//   - storage/memory: In-memory storage for development and testing
//   - storage/valkey: Valkey/Redis-compatible distributed storage
//   - storage/postgres: PostgreSQL storage
//   - storage/cache: Read-through cache for the client and user registries
//   - storage/mock: Mock storage for unit testing
package storage
