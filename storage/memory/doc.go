// Package memory provides an in-memory implementation of storage.Store.
//
// All collections live in maps guarded by a single sync.RWMutex, which makes
// PopLoginSession and PopAuthorizationCode atomic: of any number of
// concurrent pops for the same key exactly one returns the entity.
//
// Expired entries are kept until popped unless a cleanup interval is given.
// The server judges expiry itself, so sweeping only bounds memory.
//
// Example usage:
//
//	store := memory.New()
//	if err := store.Init(ctx, seed); err != nil {
//		return err
//	}
//	defer store.Shutdown(ctx)
//
// For multi-instance deployments use storage/valkey or storage/postgres.
package memory
