package peerboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrForumFailed  = fmt.Errorf("forum failed to load")
	ErrWidgetFailed = fmt.Errorf("comment widget failed to load")
	ErrNoPage       = fmt.Errorf("no page context available")
	ErrPageClosed   = fmt.Errorf("page was closed")
)

// Embedder creates forums and comment widgets on a host page through the
// remote embed script. Creation calls never block; each returns a Signal
// settled once the remote script reports readiness or failure. There is no
// timeout: a script that never calls back leaves the signal pending until
// the page itself is closed.
type Embedder struct {
	logger *zap.Logger
	page   Page
	loader *Loader
	now    func() time.Time
}

type Option func(*Embedder)

// WithLoader shares an existing Loader, so that several embedders on the
// same page download the script once.
func WithLoader(l *Loader) Option {
	return func(e *Embedder) {
		e.loader = l
	}
}

func withClock(now func() time.Time) Option {
	return func(e *Embedder) {
		e.now = now
	}
}

// New returns an Embedder for page. A nil page means no DOM is available;
// creation calls then resolve to nil without loading anything.
func New(logger *zap.Logger, page Page, opts ...Option) (*Embedder, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	e := &Embedder{
		logger: logger,
		page:   page,
		now:    time.Now,
	}
	for _, o := range opts {
		o(e)
	}

	if e.page != nil && e.loader == nil {
		l, err := NewLoader(logger, page)
		if err != nil {
			return nil, err
		}
		e.loader = l
	}

	return e, nil
}

// LoadSDK starts loading the remote script ahead of any creation call.
func (e *Embedder) LoadSDK(sdkURL string) *Signal[SDK] {
	if e.page == nil {
		return Rejected[SDK](ErrNoPage)
	}
	return e.loader.EnsureLoaded(sdkURL)
}

// CreateForum renders forum forumID into container. The signal resolves with
// the forum handle once the remote script reports it ready.
func (e *Embedder) CreateForum(forumID int64, container Element, opts Options) *Signal[Handle] {
	logger := e.logger.With(zap.Int64("forumID", forumID))
	if e.page == nil {
		logger.Warn("No page context available, skipping forum creation")
		return Resolved[Handle](nil)
	}

	checkToken(logger, "jwt", opts.JWTToken, e.now())

	defaults := forumDefaults()
	defaults.OnTitleChanged = e.page.SetTitle
	defaults.OnPathChanged = func(path string) {
		e.page.ReplaceState(e.page.Title(), path)
	}

	internal, err := resolveOptions(defaults, environment(e.page.Location(), opts), opts.internal())
	if err != nil {
		return e.reject(logger, "forum", err, opts.OnFail)
	}

	return e.create(logger, "forum", ErrForumFailed, opts.SDKURL, internal, opts.OnReady, opts.OnFail,
		func(sdk SDK, in *InternalOptions) (Handle, error) {
			return sdk.CreateForum(forumID, container, in)
		},
	)
}

// CreateCommentWidget renders the comment widget of communityID into
// container. spaceID 0 means no specific space. Navigation inside a widget
// does not rewrite the host page history unless opts.OnPathChanged is set.
func (e *Embedder) CreateCommentWidget(communityID int64, container Element, exclude []ExcludeFlag, spaceID int64, opts WidgetOptions) *Signal[Handle] {
	logger := e.logger.With(
		zap.Int64("communityID", communityID),
		zap.Int64("spaceID", spaceID),
	)
	if e.page == nil {
		logger.Warn("No page context available, skipping comment widget creation")
		return Resolved[Handle](nil)
	}

	now := e.now()
	checkToken(logger, "jwt", opts.JWTToken, now)
	checkToken(logger, "widget", opts.WidgetToken, now)

	defaults := widgetDefaults()
	defaults.OnTitleChanged = e.page.SetTitle

	internal, err := resolveOptions(defaults, environment(e.page.Location(), opts.Options), opts.internal())
	if err != nil {
		return e.reject(logger, "comment widget", err, opts.OnFail)
	}

	excluded := append([]ExcludeFlag(nil), exclude...)

	return e.create(logger, "comment widget", ErrWidgetFailed, opts.SDKURL, internal, opts.OnReady, opts.OnFail,
		func(sdk SDK, in *InternalOptions) (Handle, error) {
			return sdk.CreateCommentWidget(communityID, excluded, container, spaceID, in)
		},
	)
}

type factory func(sdk SDK, opts *InternalOptions) (Handle, error)

func (e *Embedder) create(
	logger *zap.Logger,
	kind string,
	failure error,
	sdkURL string,
	opts *InternalOptions,
	onReady, onFail func(),
	call factory,
) *Signal[Handle] {
	result := NewSignal[Handle]()
	ready := NewSignal[struct{}]()

	var failOnce sync.Once
	notifyFail := func() {
		failOnce.Do(func() {
			if onFail != nil {
				onFail()
			}
		})
	}
	fail := func(err error) {
		logger.Error("Error creating "+kind, zap.Error(err))
		notifyFail()
		result.Reject(err)
	}

	opts.OnReady = func() {
		if onReady != nil {
			onReady()
		}
		ready.Resolve(struct{}{})
	}
	opts.OnFail = func() {
		notifyFail()
		ready.Reject(failure)
	}

	load := e.loader.EnsureLoaded(sdkURL)

	go func() {
		sdk, err := waitOrClosed(load, e.page.Done())
		if err != nil {
			fail(err)
			return
		}

		handle, err := call(sdk, opts)
		if err != nil {
			fail(fmt.Errorf("%w: %w", failure, err))
			return
		}

		if _, err := waitOrClosed(ready, e.page.Done()); err != nil {
			fail(err)
			return
		}

		logger.Debug("Embed ready", zap.String("kind", kind))
		result.Resolve(handle)
	}()

	return result
}

func (e *Embedder) reject(logger *zap.Logger, kind string, err error, onFail func()) *Signal[Handle] {
	logger.Error("Error creating "+kind, zap.Error(err))
	if onFail != nil {
		onFail()
	}
	return Rejected[Handle](err)
}

// waitOrClosed waits for s, giving up with ErrPageClosed once closed is
// done. A nil closed channel waits for s alone.
func waitOrClosed[T any](s *Signal[T], closed <-chan struct{}) (T, error) {
	select {
	case <-s.Done():
		return s.Wait(context.Background())
	case <-closed:
		var zero T
		return zero, ErrPageClosed
	}
}
