package peerboard

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultSDKURL    = "https://static.peerboard.com/embed/embed.js"
	DefaultSDKGlobal = "PeerboardSDK"
)

var (
	ErrScriptLoad    = fmt.Errorf("failed to download sdk")
	ErrSDKNotExposed = fmt.Errorf("sdk script loaded but did not expose its global")
)

type LoadState int

const (
	StateNotStarted LoadState = iota
	StateLoading
	StateLoaded
)

func (s LoadState) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	default:
		return fmt.Sprintf("LoadState(%d)", int(s))
	}
}

// Loader fetches the remote embed script at most once per successful load
// and shares a single in-flight signal with every concurrent caller. A failed
// load resets the loader so the next call retries.
type Loader struct {
	logger     *zap.Logger
	page       Page
	defaultURL string
	global     string

	mu       sync.Mutex
	state    LoadState
	inflight *Signal[SDK]
	sdk      SDK
}

type LoaderOption func(*Loader)

// WithDefaultURL overrides the script URL used when a caller does not supply one.
func WithDefaultURL(url string) LoaderOption {
	return func(l *Loader) {
		l.defaultURL = url
	}
}

// WithGlobal overrides the global name the remote script exposes itself under.
func WithGlobal(name string) LoaderOption {
	return func(l *Loader) {
		l.global = name
	}
}

func NewLoader(logger *zap.Logger, page Page, opts ...LoaderOption) (*Loader, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if page == nil {
		return nil, fmt.Errorf("page cannot be nil")
	}

	l := &Loader{
		logger:     logger.With(zap.String("component", "loader")),
		page:       page,
		defaultURL: DefaultSDKURL,
		global:     DefaultSDKGlobal,
	}
	for _, o := range opts {
		o(l)
	}

	return l, nil
}

func (l *Loader) State() LoadState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// EnsureLoaded returns a signal settled once the remote script is available.
// scriptURL may be empty to use the default URL; it is ignored when a load is
// already in flight or complete.
func (l *Loader) EnsureLoaded(scriptURL string) *Signal[SDK] {
	l.mu.Lock()
	switch l.state {
	case StateLoaded:
		sdk := l.sdk
		l.mu.Unlock()
		return Resolved(sdk)
	case StateLoading:
		s := l.inflight
		l.mu.Unlock()
		return s
	}

	s := NewSignal[SDK]()
	l.state = StateLoading
	l.inflight = s
	l.mu.Unlock()

	if scriptURL == "" {
		scriptURL = l.defaultURL
	}

	logger := l.logger.With(
		zap.String("attempt", uuid.NewString()),
		zap.String("src", scriptURL),
	)
	logger.Debug("Inserting sdk script")

	l.page.AppendScript(&Script{
		Src: scriptURL,
		Attrs: map[string]string{
			"async":          "",
			"data-skip-init": "",
		},
		OnLoad: func() {
			sdk, ok := l.page.LookupSDK(l.global)
			if !ok {
				l.fail(logger, s, fmt.Errorf("%w: %s", ErrSDKNotExposed, l.global))
				return
			}
			l.complete(logger, s, sdk)
		},
		OnError: func(err error) {
			if err == nil {
				err = fmt.Errorf("script error")
			}
			l.fail(logger, s, err)
		},
	})

	return s
}

func (l *Loader) complete(logger *zap.Logger, s *Signal[SDK], sdk SDK) {
	l.mu.Lock()
	if l.inflight != s {
		l.mu.Unlock()
		return
	}
	l.state = StateLoaded
	l.inflight = nil
	l.sdk = sdk
	l.mu.Unlock()

	logger.Info("Sdk loaded")
	s.Resolve(sdk)
}

func (l *Loader) fail(logger *zap.Logger, s *Signal[SDK], err error) {
	l.mu.Lock()
	if l.inflight != s {
		l.mu.Unlock()
		return
	}
	l.state = StateNotStarted
	l.inflight = nil
	l.mu.Unlock()

	logger.Error("Failed to download sdk", zap.Error(err))
	s.Reject(fmt.Errorf("%w: %w", ErrScriptLoad, err))
}
