// Package auth signs the CLI in against the forum's OpenID Connect provider
// and keeps the resulting tokens on disk.
package auth

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/abelbrown/sharkbox/internal/model"
)

var (
	// ErrNoSession means nobody is signed in.
	ErrNoSession = errors.New("not signed in")

	// ErrStateMismatch means the callback's state did not match the request.
	ErrStateMismatch = errors.New("login state mismatch")
)

// DefaultScopes are requested on every login.
var DefaultScopes = []string{"openid", "profile", "email"}

// expiryLeeway refreshes tokens slightly before they actually expire.
const expiryLeeway = 30 * time.Second

// Claims are the identity fields read from a verified ID token.
type Claims struct {
	Subject           string `json:"sub"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Email             string `json:"email,omitempty"`
	Name              string `json:"name,omitempty"`
}

// Username is the handle shown in the UI and used for /v1/user/{name} lookups.
func (c Claims) Username() string {
	switch {
	case c.PreferredUsername != "":
		return c.PreferredUsername
	case c.Email != "":
		name, _, _ := strings.Cut(c.Email, "@")
		return name
	default:
		return c.Subject
	}
}

// Session is what is persisted after a successful login.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`

	// Where and as whom to refresh, so refresh works without discovery.
	Issuer   string `json:"issuer"`
	ClientID string `json:"client_id"`
	TokenURL string `json:"token_url"`

	Claims Claims `json:"claims"`
}

// Valid reports whether the access token can be used at now.
func (s *Session) Valid(now time.Time) bool {
	if s == nil || s.AccessToken == "" {
		return false
	}
	return s.Expiry.IsZero() || now.Add(expiryLeeway).Before(s.Expiry)
}

// Owns reports whether userID (a record's userId) is the signed-in subject.
func (s *Session) Owns(userID string) bool {
	return s != nil && userID != "" && userID == s.Claims.Subject
}

// oauth2Config rebuilds the client config needed for refresh.
func (s *Session) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID: s.ClientID,
		Endpoint: oauth2.Endpoint{TokenURL: s.TokenURL, AuthStyle: oauth2.AuthStyleInParams},
		Scopes:   DefaultScopes,
	}
}

func (s *Session) token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		Expiry:       s.Expiry,
	}
}

// apply copies a refreshed token into the session. Providers may omit the
// refresh token or ID token on refresh; the old ones are kept then.
func (s *Session) apply(tok *oauth2.Token) {
	s.AccessToken = tok.AccessToken
	s.TokenType = tok.TokenType
	s.Expiry = tok.Expiry
	if tok.RefreshToken != "" {
		s.RefreshToken = tok.RefreshToken
	}
	if raw, ok := tok.Extra("id_token").(string); ok && raw != "" {
		s.IDToken = raw
	}
}

// Settings identify the identity provider and client.
type Settings struct {
	Authority string
	ClientID  string
}

// Resolve prefers what the backend advertises and falls back to local
// configuration field by field.
func Resolve(advertised model.AuthConfig, fallback Settings) Settings {
	out := fallback
	if a := strings.TrimSpace(advertised.Authority); a != "" {
		out.Authority = a
	}
	if c := strings.TrimSpace(advertised.ClientID); c != "" {
		out.ClientID = c
	}
	out.Authority = strings.TrimRight(out.Authority, "/")
	return out
}
