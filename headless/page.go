package headless

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
	gojaurl "github.com/dop251/goja_nodejs/url"
	"github.com/puzpuzpuz/xsync/v2"
	"go.uber.org/zap"

	"go.miragespace.co/peerboard"
)

var ErrPageClosed = peerboard.ErrPageClosed

const (
	defaultFetchTimeout = 10 * time.Second
	defaultMaxFetches   = 4
	closeTimeout        = 5 * time.Second
)

type Config struct {
	// URL is the address of the host page, e.g. "https://example.com/community/".
	URL   string
	Title string

	FetchTimeout time.Duration
	// MaxFetches bounds concurrent script downloads.
	MaxFetches int64
	Transport  http.RoundTripper
}

type HistoryEntry struct {
	Title string
	URL   string
}

// Page is a peerboard.Page backed by a JavaScript event loop. Scripts
// appended to it are downloaded and evaluated with a minimal window,
// document and history surface.
//
// Option callbacks invoked by page scripts run on the event loop; they must
// not wait on the page itself (Eval, Close).
type Page struct {
	logger  *zap.Logger
	loop    *eventloop.EventLoop
	fetcher *fetcher
	handles *xsync.MapOf[string, *jsHandle]
	ctx     context.Context
	cancel  context.CancelFunc
	vm      *goja.Runtime

	mu      sync.RWMutex
	url     *url.URL
	title   string
	history []HistoryEntry
	scripts []*peerboard.Script
}

var _ peerboard.Page = (*Page)(nil)

func NewPage(logger *zap.Logger, cfg Config) (*Page, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("error parsing page url: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("page url must be absolute: %q", cfg.URL)
	}
	if u.Path == "" {
		u.Path = "/"
	}

	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.MaxFetches <= 0 {
		cfg.MaxFetches = defaultMaxFetches
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Page{
		logger:  logger.With(zap.String("component", "headless"), zap.String("page", u.String())),
		fetcher: newFetcher(cfg.Transport, cfg.FetchTimeout, cfg.MaxFetches),
		handles: xsync.NewMapOf[*jsHandle](),
		ctx:     ctx,
		cancel:  cancel,
		url:     u,
		title:   cfg.Title,
	}

	if err := p.start(); err != nil {
		cancel()
		return nil, err
	}

	return p, nil
}

func (p *Page) start() (err error) {
	prog, err := compileBootstrap()
	if err != nil {
		return fmt.Errorf("error compiling bootstrap: %w", err)
	}

	registry := require.NewRegistry()
	registry.RegisterNativeModule(consoleModuleName, requireConsole(p.logger.Named("console")))

	p.loop = eventloop.NewEventLoop(
		eventloop.EnableConsole(false),
		eventloop.WithRegistry(registry),
	)
	p.loop.Start()

	defer func() {
		if err != nil {
			p.loop.StopNoWait()
		}
	}()

	setup := make(chan error, 1)
	p.loop.RunOnLoop(func(vm *goja.Runtime) {
		gojaurl.Enable(vm)
		vm.Set("console", require.Require(vm, consoleModuleName))
		vm.Set(nativePageSymbol, map[string]any{
			"location":     p.locationObject,
			"title":        p.Title,
			"setTitle":     p.SetTitle,
			"replaceState": p.ReplaceState,
		})

		if _, err := vm.RunProgram(prog); err != nil {
			setup <- fmt.Errorf("error setting up page globals: %w", err)
			return
		}

		p.vm = vm // reference is kept for .Interrupt

		setup <- nil
	})

	return <-setup
}

func (p *Page) locationObject() map[string]any {
	p.mu.RLock()
	u := *p.url
	p.mu.RUnlock()

	loc := locationOf(&u)
	return map[string]any{
		"href":     u.String(),
		"origin":   u.Scheme + "://" + u.Host,
		"protocol": u.Scheme + ":",
		"host":     u.Host,
		"hostname": loc.Hostname,
		"port":     u.Port(),
		"pathname": loc.Pathname,
		"search":   loc.Search,
		"hash":     loc.Hash,
	}
}

func locationOf(u *url.URL) peerboard.Location {
	loc := peerboard.Location{
		Hostname: u.Hostname(),
		Pathname: u.EscapedPath(),
	}
	if u.RawQuery != "" {
		loc.Search = "?" + u.RawQuery
	}
	if u.Fragment != "" {
		loc.Hash = "#" + u.EscapedFragment()
	}
	return loc
}

func (p *Page) Location() peerboard.Location {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return locationOf(p.url)
}

func (p *Page) URL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.url.String()
}

func (p *Page) Title() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.title
}

func (p *Page) SetTitle(title string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.title = title
}

// ReplaceState replaces the current history entry. Cross-origin paths are
// rejected the way browsers reject them.
func (p *Page) ReplaceState(title, path string) {
	ref, err := url.Parse(path)
	if err != nil {
		p.logger.Warn("Ignoring invalid history path", zap.String("path", path), zap.Error(err))
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	next := p.url.ResolveReference(ref)
	if next.Scheme != p.url.Scheme || next.Host != p.url.Host {
		p.logger.Warn("Ignoring cross-origin history path", zap.String("path", path))
		return
	}

	p.url = next
	p.history = append(p.history, HistoryEntry{
		Title: title,
		URL:   next.String(),
	})
}

func (p *Page) History() []HistoryEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]HistoryEntry(nil), p.history...)
}

// Scripts returns the script elements inserted into the document head.
func (p *Page) Scripts() []*peerboard.Script {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*peerboard.Script(nil), p.scripts...)
}

// AppendScript inserts s into the document head. The script is downloaded
// and evaluated asynchronously; s.OnLoad or s.OnError is called off the
// event loop afterwards.
func (p *Page) AppendScript(s *peerboard.Script) {
	p.mu.Lock()
	p.scripts = append(p.scripts, s)
	base := p.url
	p.mu.Unlock()

	go p.load(s, base)
}

func (p *Page) load(s *peerboard.Script, base *url.URL) {
	logger := p.logger.With(zap.String("src", s.Src))

	src, err := base.Parse(s.Src)
	if err != nil {
		p.scriptError(logger, s, fmt.Errorf("error parsing script src: %w", err))
		return
	}

	start := time.Now()
	body, err := p.fetcher.fetch(p.ctx, src.String())
	if err != nil {
		p.scriptError(logger, s, err)
		return
	}

	if err := p.evaluate(s, body); err != nil {
		p.scriptError(logger, s, err)
		return
	}

	logger.Debug("Script evaluated",
		zap.Duration("duration", time.Since(start)),
		zap.Int("size", len(body)),
	)
	if s.OnLoad != nil {
		s.OnLoad()
	}
}

func (p *Page) scriptError(logger *zap.Logger, s *peerboard.Script, err error) {
	logger.Warn("Script failed", zap.Error(err))
	if s.OnError != nil {
		s.OnError(err)
	}
}

// Done is closed once Close was called.
func (p *Page) Done() <-chan struct{} {
	return p.ctx.Done()
}

func (p *Page) closed() bool {
	return p.ctx.Err() != nil
}

func (p *Page) evaluate(s *peerboard.Script, body string) error {
	if p.closed() {
		return ErrPageClosed
	}

	prog, err := goja.Compile(s.Src, body, false)
	if err != nil {
		return fmt.Errorf("error compiling script: %w", err)
	}

	errCh := make(chan error, 1)
	p.loop.RunOnLoop(func(vm *goja.Runtime) {
		document := vm.Get("document").ToObject(vm)
		document.Set("currentScript", scriptValue(vm, s))
		defer document.Set("currentScript", goja.Null())

		if _, err := vm.RunProgram(prog); err != nil {
			errCh <- fmt.Errorf("error evaluating script: %w", err)
			return
		}
		errCh <- nil
	})

	return p.await(errCh)
}

func (p *Page) await(errCh <-chan error) error {
	select {
	case err := <-errCh:
		return err
	case <-p.ctx.Done():
		return ErrPageClosed
	}
}

// LookupSDK returns a proxy of the global object a script exposed.
func (p *Page) LookupSDK(global string) (peerboard.SDK, bool) {
	if p.closed() {
		return nil, false
	}

	objCh := make(chan *goja.Object, 1)
	p.loop.RunOnLoop(func(vm *goja.Runtime) {
		v := vm.Get(global)
		if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
			objCh <- nil
			return
		}
		objCh <- v.ToObject(vm)
	})

	select {
	case obj := <-objCh:
		if obj == nil {
			return nil, false
		}
		return &sdkProxy{page: p, obj: obj}, true
	case <-p.ctx.Done():
		return nil, false
	}
}

// Eval evaluates expr on the page and exports the result to Go.
func (p *Page) Eval(expr string) (any, error) {
	if p.closed() {
		return nil, ErrPageClosed
	}

	type result struct {
		val any
		err error
	}
	resCh := make(chan result, 1)
	p.loop.RunOnLoop(func(vm *goja.Runtime) {
		v, err := vm.RunString(expr)
		if err != nil {
			resCh <- result{err: err}
			return
		}
		resCh <- result{val: v.Export()}
	})

	select {
	case res := <-resCh:
		return res.val, res.err
	case <-p.ctx.Done():
		return nil, ErrPageClosed
	}
}

// Handles returns the container ids of forums and widgets still rendered.
func (p *Page) Handles() []string {
	ids := make([]string, 0, p.handles.Size())
	p.handles.Range(func(id string, _ *jsHandle) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}

// Close destroys every live handle and stops the event loop. A script that
// does not yield within a few seconds is interrupted.
func (p *Page) Close() {
	if p.closed() {
		return
	}

	p.handles.Range(func(_ string, h *jsHandle) bool {
		h.Destroy()
		return true
	})

	drained := make(chan struct{})
	p.loop.RunOnLoop(func(*goja.Runtime) {
		close(drained)
	})

	select {
	case <-drained:
	case <-time.After(closeTimeout):
		p.logger.Warn("Page did not drain, interrupting")
		if p.vm != nil {
			p.vm.Interrupt(context.Canceled)
		}
	}

	p.cancel()
	p.loop.StopNoWait()
}
