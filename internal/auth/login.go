package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/abelbrown/sharkbox/internal/logging"
)

// CallbackError is an error reported by the identity provider on the
// redirect, e.g. the user denied consent.
type CallbackError struct {
	Code        string
	Description string
}

func (e *CallbackError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("login failed: %s: %s", e.Code, e.Description)
	}
	return "login failed: " + e.Code
}

// LoginOptions configures one interactive login.
type LoginOptions struct {
	Settings

	Scopes []string

	// ListenAddr is where the loopback callback listens. Defaults to
	// 127.0.0.1:0 (any free port).
	ListenAddr string

	// OpenURL shows the authorization URL to the user, usually by launching
	// a browser. It must not block until the login completes.
	OpenURL func(authURL string) error

	// HTTPClient is used for discovery, key fetches and the token exchange.
	HTTPClient *http.Client
}

type callbackResult struct {
	code string
	err  error
}

// Login runs the authorization-code flow with PKCE against the provider at
// opts.Authority and returns the verified session. It does not persist it.
func Login(ctx context.Context, opts LoginOptions) (*Session, error) {
	if opts.Authority == "" || opts.ClientID == "" {
		return nil, errors.New("login: authority and client id are required")
	}
	if opts.OpenURL == nil {
		return nil, errors.New("login: OpenURL is required")
	}
	if opts.HTTPClient != nil {
		ctx = oidc.ClientContext(ctx, opts.HTTPClient)
	}
	log := logging.WithPrefix("auth")

	provider, err := oidc.NewProvider(ctx, opts.Authority)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", opts.Authority, err)
	}

	addr := opts.ListenAddr
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen for callback: %w", err)
	}

	scopes := opts.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	endpoint := provider.Endpoint()
	endpoint.AuthStyle = oauth2.AuthStyleInParams
	conf := &oauth2.Config{
		ClientID:    opts.ClientID,
		Endpoint:    endpoint,
		RedirectURL: fmt.Sprintf("http://%s/callback", ln.Addr().String()),
		Scopes:      scopes,
	}

	state := uuid.NewString()
	nonce := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	results := make(chan callbackResult, 1)
	srv := &http.Server{
		Handler:           callbackRouter(state, results),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("callback server stopped", "err", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := conf.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier), oidc.Nonce(nonce))
	log.Info("starting login", "authority", opts.Authority, "redirect", conf.RedirectURL)
	if err := opts.OpenURL(authURL); err != nil {
		return nil, fmt.Errorf("open login page: %w", err)
	}

	var res callbackResult
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-results:
	}
	if res.err != nil {
		return nil, res.err
	}

	tok, err := conf.Exchange(ctx, res.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	rawID, ok := tok.Extra("id_token").(string)
	if !ok || rawID == "" {
		return nil, errors.New("token response has no id_token")
	}
	idToken, err := provider.Verifier(&oidc.Config{ClientID: opts.ClientID}).Verify(ctx, rawID)
	if err != nil {
		return nil, fmt.Errorf("verify id token: %w", err)
	}
	if idToken.Nonce != nonce {
		return nil, errors.New("verify id token: nonce mismatch")
	}
	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("read id token claims: %w", err)
	}

	sess := &Session{
		Issuer:   idToken.Issuer,
		ClientID: opts.ClientID,
		TokenURL: endpoint.TokenURL,
		Claims:   claims,
	}
	sess.apply(tok)
	sess.IDToken = rawID
	log.Info("login complete", "user", claims.Username())
	return sess, nil
}

// callbackRouter serves /callback once. Later hits get a plain notice.
func callbackRouter(state string, results chan<- callbackResult) http.Handler {
	r := chi.NewRouter()
	r.Get("/callback", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		var res callbackResult
		switch {
		case q.Get("error") != "":
			res.err = &CallbackError{Code: q.Get("error"), Description: q.Get("error_description")}
		case q.Get("state") != state:
			res.err = ErrStateMismatch
		case q.Get("code") == "":
			res.err = errors.New("login failed: callback carried no code")
		default:
			res.code = q.Get("code")
		}

		select {
		case results <- res:
		default:
			http.Error(w, "This login has already completed.", http.StatusGone)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if res.err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, "Sign-in failed: %v\nReturn to the terminal.\n", res.err)
			return
		}
		fmt.Fprintln(w, "Signed in to sharkbox. You can close this window.")
	})
	return r
}
