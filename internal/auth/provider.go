package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/abelbrown/sharkbox/internal/logging"
	"github.com/abelbrown/sharkbox/internal/otel"
)

// Provider hands out access tokens from the stored session, refreshing them
// when they expire. It satisfies api.TokenProvider.
type Provider struct {
	store  *FileStore
	events *otel.Logger
	client *http.Client
	now    func() time.Time

	mu      sync.Mutex
	session *Session
	loaded  bool

	refresh singleflight.Group

	onChange func(*Session)
}

// ProviderOptions configures a Provider.
type ProviderOptions struct {
	Events     *otel.Logger
	HTTPClient *http.Client

	// OnChange runs after the session is replaced, refreshed or cleared.
	OnChange func(*Session)
}

// NewProvider reads sessions from store.
func NewProvider(store *FileStore, opts ProviderOptions) *Provider {
	events := opts.Events
	if events == nil {
		events = otel.NewNullLogger()
	}
	return &Provider{
		store:    store,
		events:   events,
		client:   opts.HTTPClient,
		now:      time.Now,
		onChange: opts.OnChange,
	}
}

// Session returns the current session or ErrNoSession.
func (p *Provider) Session() (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionLocked()
}

func (p *Provider) sessionLocked() (*Session, error) {
	if !p.loaded {
		s, err := p.store.Load()
		if err != nil && !errors.Is(err, ErrNoSession) {
			return nil, err
		}
		p.session, p.loaded = s, true
	}
	if p.session == nil {
		return nil, ErrNoSession
	}
	cp := *p.session
	return &cp, nil
}

// Token returns a usable access token, or "" when nobody is signed in. An
// expired token is refreshed once even if many callers ask at the same time.
func (p *Provider) Token(ctx context.Context) (string, error) {
	s, err := p.Session()
	if errors.Is(err, ErrNoSession) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if s.Valid(p.now()) {
		return s.AccessToken, nil
	}

	v, err, _ := p.refresh.Do("refresh", func() (any, error) {
		return p.refreshSession(ctx, s)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (p *Provider) refreshSession(ctx context.Context, stale *Session) (string, error) {
	log := logging.WithPrefix("auth")

	// Another caller may have refreshed while we waited.
	if cur, err := p.Session(); err == nil && cur.Valid(p.now()) {
		return cur.AccessToken, nil
	}

	if stale.RefreshToken == "" || stale.TokenURL == "" {
		log.Info("session expired without refresh token")
		return "", p.clear("expired")
	}

	if p.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	}
	start := time.Now()
	old := stale.token()
	old.Expiry = time.Unix(1, 0) // force the token source to refresh
	tok, err := stale.oauth2Config().TokenSource(ctx, old).Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			log.Warn("refresh rejected", "code", rerr.ErrorCode)
			p.events.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindAuthRefresh, Comp: "auth",
				Dur: time.Since(start), Err: err.Error()})
			return "", p.clear("refresh rejected")
		}
		p.events.Emit(otel.Event{Level: otel.LevelError, Kind: otel.KindAuthRefresh, Comp: "auth",
			Dur: time.Since(start), Err: err.Error()})
		return "", fmt.Errorf("refresh token: %w", err)
	}

	next := *stale
	next.apply(tok)
	if err := p.store.Save(&next); err != nil {
		return "", err
	}
	p.set(&next)
	p.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindAuthRefresh, Comp: "auth", Dur: time.Since(start)})
	log.Debug("token refreshed", "expiry", next.Expiry)
	return next.AccessToken, nil
}

// Save persists a fresh session, typically right after Login.
func (p *Provider) Save(s *Session) error {
	if err := p.store.Save(s); err != nil {
		return err
	}
	p.set(s)
	p.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindAuthLogin, Comp: "auth", Msg: s.Claims.Username()})
	return nil
}

// Clear signs out. It is also what api.Options.OnUnauthorized should call.
func (p *Provider) Clear() error {
	return p.clear("signed out")
}

func (p *Provider) clear(reason string) error {
	if err := p.store.Clear(); err != nil {
		return err
	}
	p.set(nil)
	p.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindAuthClear, Comp: "auth", Msg: reason})
	logging.WithPrefix("auth").Info("session cleared", "reason", reason)
	return nil
}

// Reload drops the cached session so the next call rereads the file.
func (p *Provider) Reload() {
	p.mu.Lock()
	p.loaded = false
	p.session = nil
	p.mu.Unlock()

	s, _ := p.Session()
	if p.onChange != nil {
		p.onChange(s)
	}
}

// Watch keeps the cached session in step with the file until ctx is done.
func (p *Provider) Watch(ctx context.Context) error {
	return p.store.Watch(ctx, p.Reload)
}

func (p *Provider) set(s *Session) {
	p.mu.Lock()
	p.session, p.loaded = s, true
	p.mu.Unlock()
	if p.onChange != nil {
		p.onChange(s)
	}
}
