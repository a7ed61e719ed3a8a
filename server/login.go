package server

import (
	"context"
	"errors"

	"github.com/giantswarm/oauth-core/internal/util"
	"github.com/giantswarm/oauth-core/security"
	"github.com/giantswarm/oauth-core/storage"
)

// LoginRequest carries the fields of POST /login
type LoginRequest struct {
	LoginID  string
	Username string
	Password string

	// ClientIP is used for audit logging only
	ClientIP string
}

// LoginResult is the outcome of a successful login
type LoginResult struct {
	// RedirectURL sends the browser back to the client with the grant
	RedirectURL  string
	ClientID     string
	Email        string
	ResponseType storage.ResponseType
}

// Login resolves a pending login session with the submitted credentials and
// issues the grant the session asked for.
//
// The session is consumed on lookup, before credentials are checked, so each
// login id can be submitted once. A wrong password therefore requires a new
// authorize request; the invalid_credentials error points back at it.
func (s *Server) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	ctx, span := s.startSpan(ctx, "login")
	defer span.End()

	result, err := s.login(ctx, req)
	finishSpan(span, err)

	outcome := "success"
	if err != nil {
		outcome = "error"
		if e, ok := AsError(err); ok {
			outcome = string(e.Kind)
		}
	}
	s.metrics.RecordLoginAttempt(ctx, outcome)
	return result, err
}

func (s *Server) login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if req.LoginID == "" {
		s.Auditor.LogLoginSessionInvalid(req.ClientIP, "missing_login_id")
		return nil, newError(KindInvalidSession, DescMissingLoginID)
	}

	session, err := s.store.PopLoginSession(ctx, req.LoginID)
	if err != nil {
		if !errors.Is(err, storage.ErrLoginSessionNotFound) {
			return nil, serverError("pop login session", err)
		}
		s.Auditor.LogLoginSessionInvalid(req.ClientIP, "unknown_login_id")
		return nil, newError(KindInvalidSession, DescInvalidLoginSession)
	}
	if security.IsExpired(s.clock, session.ExpiresAt) {
		s.Auditor.LogLoginSessionInvalid(req.ClientIP, "expired")
		s.Logger.Debug("Rejected expired login session",
			"login_id", util.SafeTruncate(session.ID, len(loginSessionPrefix)+tokenIDLogLength),
			"expired_at", session.ExpiresAt)
		return nil, newError(KindInvalidSession, DescInvalidLoginSession)
	}

	user, err := s.authenticateUser(ctx, session, req)
	if err != nil {
		return nil, err
	}

	target := storage.StringValue(session.RedirectURI)
	if target == "" {
		client, err := s.store.GetClient(ctx, session.ClientID)
		if err != nil {
			if !errors.Is(err, storage.ErrClientNotFound) {
				return nil, serverError("get client", err)
			}
			return nil, newError(KindInvalidClientID, "Invalid client ID: "+session.ClientID)
		}
		target = client.DefaultRedirectURI()
		if target == "" {
			return nil, newError(KindNoRedirectURIs, DescNoRedirectURIs)
		}
	}

	result := &LoginResult{
		ClientID:     session.ClientID,
		Email:        user.Email,
		ResponseType: session.ResponseType,
	}

	switch session.ResponseType {
	case storage.ResponseTypeToken:
		result.RedirectURL, err = s.grantToken(ctx, session, user, target, req.ClientIP)
	default:
		result.RedirectURL, err = s.grantCode(ctx, session, user, target, req.ClientIP)
	}
	if err != nil {
		return nil, err
	}

	s.Auditor.LogLoginSucceeded(user.Email, session.ClientID, req.ClientIP, string(session.ResponseType))
	return result, nil
}

// authenticateUser checks the submitted credentials. Unknown users and wrong
// passwords fail identically.
func (s *Server) authenticateUser(ctx context.Context, session *storage.LoginSession, req LoginRequest) (*storage.User, error) {
	fail := func(reason string) error {
		s.Auditor.LogLoginFailed(req.Username, session.ClientID, req.ClientIP, reason)
		e := newError(KindInvalidCredentials, DescInvalidCredentials)
		e.RedirectURL = session.OriginalRequestURL
		return e
	}

	if req.Username == "" || req.Password == "" {
		return nil, fail("missing_credentials")
	}

	user, err := s.store.GetUserByEmail(ctx, req.Username)
	if err != nil {
		if !errors.Is(err, storage.ErrUserNotFound) {
			return nil, serverError("get user", err)
		}
		security.RejectUnknown(req.Password)
		return nil, fail("unknown_user")
	}
	if !security.VerifySecret(user.Password, user.PasswordHash, req.Password) {
		return nil, fail("wrong_password")
	}
	return user, nil
}

// grantCode persists an authorization code bound to the session's original
// redirect_uri (possibly absent) and returns the code redirect.
func (s *Server) grantCode(ctx context.Context, session *storage.LoginSession, user *storage.User, target, clientIP string) (string, error) {
	code, err := newAuthorizationCode()
	if err != nil {
		return "", serverError("generate authorization code", err)
	}

	ac := &storage.AuthorizationCode{
		Code: code,
		Context: storage.CodeContext{
			ClientID:    session.ClientID,
			RedirectURI: session.RedirectURI,
			Email:       user.Email,
			ExpiresAt:   security.ExpiresAt(s.clock, security.SecondsToDuration(s.Config.AuthorizationCodeTTL)),
		},
	}
	if err := s.store.CreateAuthorizationCode(ctx, ac); err != nil {
		return "", serverError("create authorization code", err)
	}

	redirectURL, err := codeRedirect(target, code, storage.StringValue(session.State))
	if err != nil {
		return "", serverError("build code redirect", err)
	}

	s.metrics.RecordCodeIssued(ctx, session.ClientID)
	s.Auditor.LogAuthorizationCodeIssued(user.Email, session.ClientID, clientIP)
	s.Logger.Debug("Issued authorization code",
		"code_prefix", util.SafeTruncate(code, tokenIDLogLength),
		"client_id", session.ClientID,
		"expires_at", ac.Context.ExpiresAt)
	return redirectURL, nil
}

// grantToken issues an access token directly and returns the fragment redirect
func (s *Server) grantToken(ctx context.Context, session *storage.LoginSession, user *storage.User, target, clientIP string) (string, error) {
	token, err := s.IssueAccessToken(ctx, session.ClientID, user.Email)
	if err != nil {
		return "", serverError("issue access token", err)
	}

	redirectURL, err := tokenRedirect(target, token.Token, s.ExpiresIn(), storage.StringValue(session.State))
	if err != nil {
		return "", serverError("build token redirect", err)
	}

	s.metrics.RecordTokenIssued(ctx, session.ClientID, grantImplicit)
	s.Auditor.LogTokenIssued(user.Email, session.ClientID, clientIP, grantImplicit)
	return redirectURL, nil
}
