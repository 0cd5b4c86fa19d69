package main

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/abelbrown/sharkbox/internal/api"
	"github.com/abelbrown/sharkbox/internal/auth"
	"github.com/abelbrown/sharkbox/internal/config"
	"github.com/abelbrown/sharkbox/internal/logging"
	"github.com/abelbrown/sharkbox/internal/otel"
	"github.com/abelbrown/sharkbox/internal/store"
)

// deps holds everything a command needs, built once from the config.
type deps struct {
	cfg      *config.Config
	events   *otel.Logger
	ring     *otel.RingBuffer
	provider *auth.Provider
	client   *api.Client

	eventsFile *os.File
	marks      *store.Store

	mu        sync.Mutex
	onSession func(*auth.Session)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagAPI != "" {
		cfg.APIBaseURL = flagAPI
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// setup loads config and wires logging, events, the session provider and the
// API client. Callers must call close.
func setup() (*deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := logging.Init(cfg.DataDir, flagVerbose); err != nil {
		return nil, err
	}

	if flagTrace {
		otel.SetTraceEnabled(true)
	}

	rt := &deps{cfg: cfg, ring: otel.NewRingBuffer(512)}
	events, f, err := otel.OpenFile(cfg.EventsPath())
	if err != nil {
		logging.Warn("event log unavailable", "err", err)
		events = otel.NewNullLogger()
	}
	events.SetRingBuffer(rt.ring)
	rt.events, rt.eventsFile = events, f
	events.Info(otel.KindStartup, "main", "sharkbox "+version)

	rt.provider = auth.NewProvider(auth.NewFileStore(cfg.SessionPath()), auth.ProviderOptions{
		Events:   events,
		OnChange: rt.sessionChanged,
	})
	rt.client, err = api.New(api.Options{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.Timeout,
		Tokens:  rt.provider,
		OnUnauthorized: func() {
			if err := rt.provider.Clear(); err != nil {
				logging.Warn("clear session", "err", err)
			}
		},
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		Events:            events,
	})
	if err != nil {
		rt.close()
		return nil, err
	}
	return rt, nil
}

// openMarks opens the local read/saved store. Failure is not fatal: the TUI
// runs without marks.
func (rt *deps) openMarks() *store.Store {
	st, err := store.Open(rt.cfg.DBPath())
	if err != nil {
		logging.Warn("local store unavailable", "err", err)
		rt.events.Error(otel.KindStoreError, "store", err)
		return nil
	}
	rt.marks = st
	return st
}

// session returns the signed-in session or nil.
func (rt *deps) session() *auth.Session {
	s, err := rt.provider.Session()
	if err != nil {
		if !errors.Is(err, auth.ErrNoSession) {
			logging.Warn("read session", "err", err)
		}
		return nil
	}
	return s
}

func (rt *deps) setSessionHook(fn func(*auth.Session)) {
	rt.mu.Lock()
	rt.onSession = fn
	rt.mu.Unlock()
}

func (rt *deps) sessionChanged(s *auth.Session) {
	rt.mu.Lock()
	fn := rt.onSession
	rt.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (rt *deps) close() {
	if rt.marks != nil {
		rt.marks.Close()
	}
	rt.events.Info(otel.KindShutdown, "main", "")
	rt.events.Close()
	if rt.eventsFile != nil {
		rt.eventsFile.Close()
	}
	logging.Close()
}
