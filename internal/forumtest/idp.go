package forumtest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-jose/go-jose/v4"
)

// IdP is a minimal OpenID Connect provider: discovery, an authorization
// endpoint that approves immediately by redirecting, a PKCE-checking token
// endpoint with refresh support, and a JWKS.
type IdP struct {
	*httptest.Server

	ClientID string

	key    *rsa.PrivateKey
	signer jose.Signer

	mu        sync.Mutex
	subject   string
	username  string
	ttl       time.Duration
	deny      string
	grants    map[string]grant
	refreshes int
	revoked   bool
	tokenHits int
}

type grant struct {
	challenge string
	nonce     string
	redirect  string
}

// NewIdP starts a provider whose issuer is URL()+"/realms/sharkbox".
func NewIdP(t testing.TB, clientID string) *IdP {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: jose.JSONWebKey{Key: key, KeyID: "test-key"}},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	p := &IdP{
		ClientID: clientID,
		key:      key,
		signer:   signer,
		subject:  "user-1",
		username: "alice",
		ttl:      time.Hour,
		grants:   make(map[string]grant),
	}
	p.Server = httptest.NewServer(p.routes())
	t.Cleanup(p.Close)
	return p
}

// Issuer is the authority URL clients discover from.
func (p *IdP) Issuer() string { return p.URL + "/realms/sharkbox" }

// SetUser changes who the next login signs in as.
func (p *IdP) SetUser(subject, username string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subject, p.username = subject, username
}

// SetTokenTTL sets the access token lifetime reported as expires_in.
func (p *IdP) SetTokenTTL(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ttl = d
}

// Deny makes the authorization endpoint redirect back with error=code.
func (p *IdP) Deny(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deny = code
}

// RevokeRefresh makes refresh grants fail with invalid_grant.
func (p *IdP) RevokeRefresh() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked = true
}

// Refreshes counts successful refresh grants.
func (p *IdP) Refreshes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshes
}

func (p *IdP) routes() http.Handler {
	r := chi.NewRouter()
	r.Route("/realms/sharkbox", func(r chi.Router) {
		r.Get("/.well-known/openid-configuration", p.handleDiscovery)
		r.Get("/auth", p.handleAuthorize)
		r.Post("/token", p.handleToken)
		r.Get("/certs", p.handleKeys)
	})
	return r
}

func (p *IdP) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	iss := p.Issuer()
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                iss,
		"authorization_endpoint":                iss + "/auth",
		"token_endpoint":                        iss + "/token",
		"jwks_uri":                              iss + "/certs",
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"code_challenge_methods_supported":      []string{"S256"},
	})
}

func (p *IdP) handleKeys(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &p.key.PublicKey,
		KeyID:     "test-key",
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}}})
}

func (p *IdP) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirect, err := url.Parse(q.Get("redirect_uri"))
	if err != nil || q.Get("client_id") != p.ClientID {
		http.Error(w, "bad client", http.StatusBadRequest)
		return
	}
	back := redirect.Query()
	back.Set("state", q.Get("state"))

	p.mu.Lock()
	deny := p.deny
	code := ""
	if deny == "" && q.Get("code_challenge_method") == "S256" {
		code = "code-" + strconv.Itoa(len(p.grants)+1)
		p.grants[code] = grant{challenge: q.Get("code_challenge"), nonce: q.Get("nonce"), redirect: q.Get("redirect_uri")}
	}
	p.mu.Unlock()

	switch {
	case deny != "":
		back.Set("error", deny)
		back.Set("error_description", "user declined")
	case code == "":
		back.Set("error", "invalid_request")
		back.Set("error_description", "PKCE required")
	default:
		back.Set("code", code)
	}
	redirect.RawQuery = back.Encode()
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

func (p *IdP) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		tokenError(w, "invalid_request")
		return
	}
	if r.PostForm.Get("client_id") != p.ClientID {
		tokenError(w, "invalid_client")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenHits++

	nonce := ""
	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		g, ok := p.grants[r.PostForm.Get("code")]
		delete(p.grants, r.PostForm.Get("code"))
		if !ok || g.redirect != r.PostForm.Get("redirect_uri") {
			tokenError(w, "invalid_grant")
			return
		}
		sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
		if base64.RawURLEncoding.EncodeToString(sum[:]) != g.challenge {
			tokenError(w, "invalid_grant")
			return
		}
		nonce = g.nonce
	case "refresh_token":
		if p.revoked || r.PostForm.Get("refresh_token") == "" {
			tokenError(w, "invalid_grant")
			return
		}
		p.refreshes++
	default:
		tokenError(w, "unsupported_grant_type")
		return
	}

	idToken, err := p.idTokenLocked(nonce)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  "access-" + strconv.Itoa(p.tokenHits),
		"token_type":    "Bearer",
		"expires_in":    int(p.ttl.Seconds()),
		"refresh_token": "refresh-" + strconv.Itoa(p.tokenHits),
		"id_token":      idToken,
	})
}

func (p *IdP) idTokenLocked(nonce string) (string, error) {
	now := time.Now()
	claims := map[string]any{
		"iss":                p.Issuer(),
		"sub":                p.subject,
		"aud":                p.ClientID,
		"iat":                now.Unix(),
		"exp":                now.Add(time.Hour).Unix(),
		"preferred_username": p.username,
		"email":              p.username + "@example.com",
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	obj, err := p.signer.Sign(payload)
	if err != nil {
		return "", err
	}
	return obj.CompactSerialize()
}

func tokenError(w http.ResponseWriter, code string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": code})
}
