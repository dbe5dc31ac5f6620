package peerboard

import (
	"sync"
)

type testElement string

func (e testElement) ElementID() string {
	return string(e)
}

type fakePage struct {
	mu       sync.Mutex
	location Location
	title    string
	history  []string
	scripts  []*Script
	sdk      SDK
	autoLoad bool
	done     chan struct{}
	once     sync.Once
}

var _ Page = (*fakePage)(nil)

func newFakePage(sdk SDK) *fakePage {
	return &fakePage{
		location: Location{
			Hostname: "example.com",
			Pathname: "/",
		},
		title: "Host",
		sdk:   sdk,
		done:  make(chan struct{}),
	}
}

func (p *fakePage) Location() Location {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.location
}

func (p *fakePage) Title() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title
}

func (p *fakePage) SetTitle(title string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.title = title
}

func (p *fakePage) ReplaceState(title, path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, path)
}

func (p *fakePage) AppendScript(s *Script) {
	p.mu.Lock()
	p.scripts = append(p.scripts, s)
	auto := p.autoLoad
	p.mu.Unlock()

	if auto {
		go s.OnLoad()
	}
}

func (p *fakePage) LookupSDK(global string) (SDK, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sdk == nil || global != DefaultSDKGlobal {
		return nil, false
	}
	return p.sdk, true
}

func (p *fakePage) Done() <-chan struct{} {
	return p.done
}

func (p *fakePage) close() {
	p.once.Do(func() {
		close(p.done)
	})
}

func (p *fakePage) scriptCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.scripts)
}

func (p *fakePage) script(i int) *Script {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scripts[i]
}

func (p *fakePage) historyEntries() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.history...)
}

type forumCall struct {
	forumID   int64
	container Element
	opts      *InternalOptions
}

type widgetCall struct {
	communityID int64
	exclude     []ExcludeFlag
	container   Element
	spaceID     int64
	opts        *InternalOptions
}

type fakeHandle struct {
	mu        sync.Mutex
	destroyed bool
}

func (h *fakeHandle) Destroy() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.destroyed = true
}

type fakeSDK struct {
	mu      sync.Mutex
	fail    bool
	silent  bool
	err     error
	forums  []forumCall
	widgets []widgetCall
}

var _ SDK = (*fakeSDK)(nil)

func (s *fakeSDK) CreateForum(forumID int64, container Element, opts *InternalOptions) (Handle, error) {
	s.mu.Lock()
	s.forums = append(s.forums, forumCall{forumID, container, opts})
	s.mu.Unlock()
	return s.settle(opts)
}

func (s *fakeSDK) CreateCommentWidget(communityID int64, exclude []ExcludeFlag, container Element, spaceID int64, opts *InternalOptions) (Handle, error) {
	s.mu.Lock()
	s.widgets = append(s.widgets, widgetCall{communityID, exclude, container, spaceID, opts})
	s.mu.Unlock()
	return s.settle(opts)
}

func (s *fakeSDK) settle(opts *InternalOptions) (Handle, error) {
	s.mu.Lock()
	fail, silent, err := s.fail, s.silent, s.err
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if silent {
		return &fakeHandle{}, nil
	}

	go func() {
		if fail {
			opts.OnFail()
		} else {
			opts.OnReady()
		}
	}()

	return &fakeHandle{}, nil
}

func (s *fakeSDK) forumCalls() []forumCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]forumCall(nil), s.forums...)
}

func (s *fakeSDK) widgetCalls() []widgetCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]widgetCall(nil), s.widgets...)
}
