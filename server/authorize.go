package server

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/giantswarm/oauth-core/instrumentation"
	"github.com/giantswarm/oauth-core/security"
	"github.com/giantswarm/oauth-core/storage"
)

// AuthorizeRequest carries the parameters of GET /authorize.
// Empty strings mean "absent".
type AuthorizeRequest struct {
	ClientID     string
	ResponseType string
	RedirectURI  string
	State        string

	// OriginalURL is the request URI the login form returns to after a
	// failed credential check
	OriginalURL string

	// ClientIP is used for audit logging only
	ClientIP string
}

// Authorize validates an authorize request and persists a pending login
// session for it.
//
// Client and redirect URI failures carry no RedirectURL and must be shown to
// the user directly. Once both are established, response_type failures carry
// a RedirectURL pointing at the client.
func (s *Server) Authorize(ctx context.Context, req AuthorizeRequest) (*storage.LoginSession, error) {
	ctx, span := s.startSpan(ctx, "authorize")
	defer span.End()
	instrumentation.AddAuthorizeAttributes(span, req.ClientID, req.ResponseType, req.RedirectURI != "", req.State != "")

	session, err := s.authorize(ctx, req)
	finishSpan(span, err)

	outcome := "success"
	if err != nil {
		outcome = "rejected"
		if e, ok := AsError(err); ok {
			outcome = string(e.Kind)
		}
	}
	s.metrics.RecordAuthorizeRequest(ctx, req.ClientID, outcome)
	return session, err
}

func (s *Server) authorize(ctx context.Context, req AuthorizeRequest) (*storage.LoginSession, error) {
	if req.ClientID == "" {
		s.Auditor.LogAuthorizationRequestRejected("", req.ClientIP, "missing_client_id")
		return nil, newError(KindMissingParameter, DescMissingClientID)
	}

	client, err := s.store.GetClient(ctx, req.ClientID)
	if err != nil {
		if !errors.Is(err, storage.ErrClientNotFound) {
			return nil, serverError("get client", err)
		}
		s.Auditor.LogAuthorizationRequestRejected(req.ClientID, req.ClientIP, "unknown_client")
		return nil, newError(KindInvalidClientID, "Invalid client ID: "+req.ClientID)
	}

	if len(client.RedirectURIs) == 0 {
		s.Auditor.LogInvalidRedirect(client.ID, req.ClientIP, req.RedirectURI, "no_redirect_uris")
		return nil, newError(KindNoRedirectURIs, DescNoRedirectURIs)
	}

	if req.RedirectURI != "" && !client.HasRedirectURI(req.RedirectURI) {
		s.Auditor.LogInvalidRedirect(client.ID, req.ClientIP, req.RedirectURI, "not_registered")
		return nil, newError(KindInvalidRedirectURI, "Invalid redirect URI: "+req.RedirectURI)
	}

	// From here on the redirect target is trusted.
	target := effectiveRedirectURI(client, req.RedirectURI)

	responseType := storage.ResponseType(req.ResponseType)
	switch responseType {
	case storage.ResponseTypeCode, storage.ResponseTypeToken:
	case "":
		return nil, s.redirectError(client, req, target, KindMissingParameter,
			ErrorCodeInvalidRequest, DescMissingResponseType)
	default:
		return nil, s.redirectError(client, req, target, KindInvalidResponseType,
			ErrorCodeUnsupportedResponseType, DescInvalidResponseType)
	}

	session := &storage.LoginSession{
		ID:                 loginSessionPrefix + uuid.NewString(),
		ClientID:           client.ID,
		ResponseType:       responseType,
		RedirectURI:        storage.StringPtr(req.RedirectURI),
		OriginalRequestURL: req.OriginalURL,
		ExpiresAt:          security.ExpiresAt(s.clock, security.SecondsToDuration(s.Config.LoginSessionTTL)),
		State:              storage.StringPtr(req.State),
	}
	if err := s.store.CreateLoginSession(ctx, session); err != nil {
		return nil, serverError("create login session", err)
	}

	s.Auditor.LogLoginSessionCreated(client.ID, req.ClientIP, string(responseType))
	s.Logger.Debug("Created login session",
		"client_id", client.ID,
		"response_type", responseType,
		"redirect_uri_present", req.RedirectURI != "",
		"expires_at", session.ExpiresAt)

	return session, nil
}

// redirectError builds a protocol error reported to the client's redirect URI
func (s *Server) redirectError(client *storage.Client, req AuthorizeRequest, target string, kind ErrorKind, code, description string) error {
	s.Auditor.LogAuthorizationRequestRejected(client.ID, req.ClientIP, code)

	redirectURL, err := errorRedirect(target, code, description, req.State)
	if err != nil {
		return serverError("build error redirect", err)
	}

	e := newError(kind, description)
	e.RedirectURL = redirectURL
	return e
}
