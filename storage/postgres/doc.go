// Package postgres provides a PostgreSQL storage backend built on pgxpool.
//
// Tables are created from the embedded schema.sql when Config.Migrate is set.
// Login sessions and authorization codes are consumed with
// DELETE ... RETURNING, which returns a row to at most one caller.
//
//	store, err := postgres.New(ctx, postgres.Config{
//	    DSN:     os.Getenv("OAUTH_POSTGRES_DSN"),
//	    Migrate: true,
//	})
package postgres
