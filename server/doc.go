// Package server implements the OAuth 2.0 authorization state machine.
//
// A flow moves through three steps, each a method on Server:
//
//   - Authorize validates the client, redirect URI and response type of an
//     authorize request and persists a pending login session
//   - Login consumes that session, checks the user's credentials and issues
//     an authorization code (response_type=code) or an access token
//     (response_type=token)
//   - ExchangeToken authenticates the client and redeems a code for an
//     access token
//
// Every failure is returned as an *Error whose Kind tells the HTTP layer how
// to render it. Login sessions and codes are single-use: they are removed
// from the store on lookup, before any further validation.
//
// Example usage:
//
//	store := memory.New()
//	if err := store.Init(ctx, seed); err != nil {
//	    log.Fatal(err)
//	}
//
//	srv, err := server.New(store, &server.Config{
//	    Issuer: "https://auth.example.com",
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
package server
