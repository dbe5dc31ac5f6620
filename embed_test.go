package peerboard

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func newTestEmbedder(t *testing.T, page Page, opts ...Option) *Embedder {
	e, err := New(zaptest.NewLogger(t), page, opts...)
	require.NoError(t, err)
	return e
}

func TestNewRequiresLogger(t *testing.T) {
	_, err := New(nil, newFakePage(nil))
	require.Error(t, err)
}

func TestCreateForumWithoutPage(t *testing.T) {
	as := require.New(t)
	e := newTestEmbedder(t, nil)

	var failed int
	s := e.CreateForum(1, testElement("forum"), Options{OnFail: func() { failed++ }})
	as.True(s.Settled())

	h, err := s.Wait(waitCtx(t))
	as.NoError(err)
	as.Nil(h)
	as.Equal(0, failed)

	w, err := e.CreateCommentWidget(1, testElement("widget"), nil, 0, WidgetOptions{}).Wait(waitCtx(t))
	as.NoError(err)
	as.Nil(w)

	_, err = e.LoadSDK("").Wait(waitCtx(t))
	as.ErrorIs(err, ErrNoPage)
}

func TestCreateForumConcurrentCallsShareOneFetch(t *testing.T) {
	as := require.New(t)
	sdk := &fakeSDK{}
	page := newFakePage(sdk)
	e := newTestEmbedder(t, page)

	const callers = 8
	signals := make([]*Signal[Handle], callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			signals[i] = e.CreateForum(int64(i+1), testElement(fmt.Sprintf("forum-%d", i)), Options{})
		}(i)
	}
	wg.Wait()

	as.Equal(1, page.scriptCount())
	page.script(0).OnLoad()

	for _, s := range signals {
		h, err := s.Wait(waitCtx(t))
		as.NoError(err)
		as.NotNil(h)
	}
	as.Len(sdk.forumCalls(), callers)
	as.Equal(1, page.scriptCount())
}

func TestCreateForumAfterLoadDoesNotRefetch(t *testing.T) {
	as := require.New(t)
	page := newFakePage(&fakeSDK{})
	page.autoLoad = true
	e := newTestEmbedder(t, page)

	_, err := e.LoadSDK("").Wait(waitCtx(t))
	as.NoError(err)
	as.Equal(1, page.scriptCount())

	_, err = e.CreateForum(1, testElement("forum"), Options{}).Wait(waitCtx(t))
	as.NoError(err)
	_, err = e.CreateCommentWidget(2, testElement("widget"), nil, 0, WidgetOptions{}).Wait(waitCtx(t))
	as.NoError(err)

	as.Equal(1, page.scriptCount())
}

func TestCreateForumRetriesAfterFailedLoad(t *testing.T) {
	as := require.New(t)
	page := newFakePage(&fakeSDK{})
	e := newTestEmbedder(t, page)

	var failed atomic.Int32
	s := e.CreateForum(1, testElement("forum"), Options{OnFail: func() { failed.Add(1) }})
	page.script(0).OnError(fmt.Errorf("404"))

	_, err := s.Wait(waitCtx(t))
	as.ErrorIs(err, ErrScriptLoad)
	as.Equal(int32(1), failed.Load())

	s = e.CreateForum(1, testElement("forum"), Options{})
	as.Equal(2, page.scriptCount())

	page.script(1).OnLoad()
	_, err = s.Wait(waitCtx(t))
	as.NoError(err)
}

func TestCreateForumReady(t *testing.T) {
	as := require.New(t)
	page := newFakePage(&fakeSDK{})
	e := newTestEmbedder(t, page)

	var ready, failed atomic.Int32
	var settledEarly atomic.Bool
	var s *Signal[Handle]
	s = e.CreateForum(7, testElement("forum"), Options{
		OnReady: func() {
			settledEarly.Store(s.Settled())
			ready.Add(1)
		},
		OnFail: func() { failed.Add(1) },
	})
	page.script(0).OnLoad()

	h, err := s.Wait(waitCtx(t))
	as.NoError(err)
	as.NotNil(h)
	as.Equal(int32(1), ready.Load())
	as.Equal(int32(0), failed.Load())
	as.False(settledEarly.Load(), "onReady must run before the signal resolves")
}

func TestCreateForumRemoteFailure(t *testing.T) {
	as := require.New(t)
	sdk := &fakeSDK{fail: true}
	page := newFakePage(sdk)
	e := newTestEmbedder(t, page)

	var ready, failed atomic.Int32
	var settledEarly atomic.Bool
	var s *Signal[Handle]
	s = e.CreateForum(7, testElement("forum"), Options{
		OnReady: func() { ready.Add(1) },
		OnFail: func() {
			settledEarly.Store(s.Settled())
			failed.Add(1)
		},
	})
	page.script(0).OnLoad()

	h, err := s.Wait(waitCtx(t))
	as.ErrorIs(err, ErrForumFailed)
	as.Nil(h)
	as.Equal(int32(0), ready.Load())
	as.Equal(int32(1), failed.Load())
	as.False(settledEarly.Load(), "onFail must run before the signal rejects")
	as.Equal(StateLoaded, e.loader.State())
}

func TestCreateForumPageClosedWhileWaitingForReady(t *testing.T) {
	as := require.New(t)
	page := newFakePage(&fakeSDK{silent: true})
	page.autoLoad = true
	e := newTestEmbedder(t, page)

	var failed atomic.Int32
	s := e.CreateForum(7, testElement("forum"), Options{
		OnFail: func() { failed.Add(1) },
	})
	as.Eventually(func() bool {
		return e.loader.State() == StateLoaded
	}, time.Second, 10*time.Millisecond)
	as.False(s.Settled())

	page.close()

	_, err := s.Wait(waitCtx(t))
	as.ErrorIs(err, ErrPageClosed)
	as.Equal(int32(1), failed.Load())
}

func TestCreateForumPageClosedWhileLoading(t *testing.T) {
	as := require.New(t)
	page := newFakePage(&fakeSDK{})
	e := newTestEmbedder(t, page)

	var failed atomic.Int32
	s := e.CreateCommentWidget(9, testElement("comments"), nil, 0, WidgetOptions{
		Options: Options{OnFail: func() { failed.Add(1) }},
	})
	as.Equal(1, page.scriptCount())

	page.close()

	_, err := s.Wait(waitCtx(t))
	as.ErrorIs(err, ErrPageClosed)
	as.Equal(int32(1), failed.Load())
}

func TestCreateForumFactoryError(t *testing.T) {
	as := require.New(t)
	sdk := &fakeSDK{err: fmt.Errorf("container missing")}
	page := newFakePage(sdk)
	page.autoLoad = true
	e := newTestEmbedder(t, page)

	var failed atomic.Int32
	_, err := e.CreateForum(7, testElement("forum"), Options{
		OnFail: func() { failed.Add(1) },
	}).Wait(waitCtx(t))

	as.ErrorIs(err, ErrForumFailed)
	as.Equal(int32(1), failed.Load())
}

func TestCreateForumOptions(t *testing.T) {
	as := require.New(t)
	sdk := &fakeSDK{}
	page := newFakePage(sdk)
	page.autoLoad = true
	page.location = Location{
		Hostname: "example.com",
		Pathname: "/help/topics/5",
		Search:   "?x=1",
		Hash:     "#a",
	}
	e := newTestEmbedder(t, page)

	_, err := e.CreateForum(42, testElement("forum"), Options{
		Prefix:    "/help",
		JWTToken:  "opaque",
		MinHeight: 500,
	}).Wait(waitCtx(t))
	as.NoError(err)

	calls := sdk.forumCalls()
	as.Len(calls, 1)
	as.Equal(int64(42), calls[0].forumID)
	as.Equal("forum", calls[0].container.ElementID())

	opts := calls[0].opts
	as.Equal("/topics/5?x=1#a", opts.Path)
	as.Equal("/help", opts.Prefix)
	as.Equal("https://peerboard.example.com", opts.BaseURL)
	as.Equal("opaque", opts.JWTToken)
	as.Equal(500, opts.MinHeight)
	as.True(*opts.Resize)
	as.True(*opts.HideMenu)
	as.True(*opts.ScrollToTopOnNavigationChanged)

	opts.OnTitleChanged("Forum title")
	as.Equal("Forum title", page.Title())

	opts.OnPathChanged("/help/topics/6")
	as.Equal([]string{"/help/topics/6"}, page.historyEntries())
}

func TestCreateForumPathWithoutPrefix(t *testing.T) {
	for _, prefix := range []string{"", "/"} {
		t.Run(fmt.Sprintf("prefix=%q", prefix), func(t *testing.T) {
			as := require.New(t)
			sdk := &fakeSDK{}
			page := newFakePage(sdk)
			page.autoLoad = true
			page.location = Location{
				Hostname: "example.com",
				Pathname: "/help/topics/5",
				Search:   "?x=1",
				Hash:     "#a",
			}
			e := newTestEmbedder(t, page)

			_, err := e.CreateForum(1, testElement("forum"), Options{Prefix: prefix}).Wait(waitCtx(t))
			as.NoError(err)
			as.Equal("/help/topics/5?x=1#a", sdk.forumCalls()[0].opts.Path)
		})
	}
}

func TestCreateForumPathOverrides(t *testing.T) {
	as := require.New(t)
	sdk := &fakeSDK{}
	page := newFakePage(sdk)
	page.autoLoad = true
	page.location = Location{Hostname: "example.com", Pathname: "/help/topics/5"}
	e := newTestEmbedder(t, page)

	_, err := e.CreateForum(1, testElement("a"), Options{Prefix: "/help", UsePathFromQs: true}).Wait(waitCtx(t))
	as.NoError(err)
	_, err = e.CreateForum(1, testElement("b"), Options{Prefix: "/help", Path: "/explicit"}).Wait(waitCtx(t))
	as.NoError(err)

	calls := sdk.forumCalls()
	as.Len(calls, 2)
	as.Equal("", calls[0].opts.Path)
	as.True(calls[0].opts.UsePathFromQs)
	as.Equal("/explicit", calls[1].opts.Path)
}

func TestCreateForumCallerOverridesDefaults(t *testing.T) {
	as := require.New(t)
	sdk := &fakeSDK{}
	page := newFakePage(sdk)
	page.autoLoad = true
	e := newTestEmbedder(t, page)

	var titles []string
	_, err := e.CreateForum(1, testElement("forum"), Options{
		BaseURL:        "http://localhost:3000",
		Resize:         Bool(false),
		HideMenu:       Bool(false),
		OnTitleChanged: func(title string) { titles = append(titles, title) },
	}).Wait(waitCtx(t))
	as.NoError(err)

	opts := sdk.forumCalls()[0].opts
	as.Equal("http://localhost:3000", opts.BaseURL)
	as.False(*opts.Resize)
	as.False(*opts.HideMenu)

	opts.OnTitleChanged("Custom")
	as.Equal([]string{"Custom"}, titles)
	as.Equal("Host", page.Title())
}

func TestCreateCommentWidget(t *testing.T) {
	as := require.New(t)
	sdk := &fakeSDK{}
	page := newFakePage(sdk)
	page.autoLoad = true
	page.location = Location{Hostname: "blog.example.com", Pathname: "/posts/hello", Search: "?ref=x"}
	e := newTestEmbedder(t, page)

	exclude := []ExcludeFlag{ExcludeSubdomain, ExcludeQueryString}
	var ready atomic.Int32
	h, err := e.CreateCommentWidget(9, testElement("comments"), exclude, 3, WidgetOptions{
		Options:     Options{OnReady: func() { ready.Add(1) }},
		WidgetToken: "widget-token",
		PostTitle:   "Hello",
		PostContent: "First post",
	}).Wait(waitCtx(t))
	as.NoError(err)
	as.NotNil(h)
	as.Equal(int32(1), ready.Load())

	calls := sdk.widgetCalls()
	as.Len(calls, 1)
	as.Equal(int64(9), calls[0].communityID)
	as.Equal(int64(3), calls[0].spaceID)
	as.Equal(exclude, calls[0].exclude)
	as.Equal("comments", calls[0].container.ElementID())

	opts := calls[0].opts
	as.Equal("widget-token", opts.WidgetToken)
	as.Equal("Hello", opts.PostTitle)
	as.Equal("First post", opts.PostContent)
	as.Equal("https://peerboard.blog.example.com", opts.BaseURL)
	as.Equal("/posts/hello?ref=x", opts.Path)
	as.Nil(opts.OnPathChanged)
	as.Nil(opts.ScrollToTopOnNavigationChanged)
	as.NotNil(opts.OnTitleChanged)

	exclude[0] = "mutated"
	as.Equal(ExcludeSubdomain, sdk.widgetCalls()[0].exclude[0])
}

func TestCreateCommentWidgetRemoteFailure(t *testing.T) {
	as := require.New(t)
	page := newFakePage(&fakeSDK{fail: true})
	page.autoLoad = true
	e := newTestEmbedder(t, page)

	var failed atomic.Int32
	_, err := e.CreateCommentWidget(9, testElement("comments"), nil, 0, WidgetOptions{
		Options: Options{OnFail: func() { failed.Add(1) }},
	}).Wait(waitCtx(t))

	as.ErrorIs(err, ErrWidgetFailed)
	as.Equal(int32(1), failed.Load())
}

func TestCreateForumWarnsOnExpiredToken(t *testing.T) {
	as := require.New(t)
	core, logs := observer.New(zap.WarnLevel)

	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "member-1",
		ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
	}).SignedString([]byte("secret"))
	as.NoError(err)

	sdk := &fakeSDK{}
	page := newFakePage(sdk)
	page.autoLoad = true
	e, err := New(zap.New(core), page, withClock(func() time.Time { return now }))
	as.NoError(err)

	_, err = e.CreateForum(1, testElement("forum"), Options{JWTToken: token}).Wait(waitCtx(t))
	as.NoError(err)
	as.Equal(token, sdk.forumCalls()[0].opts.JWTToken)

	expired := logs.FilterMessage("Token has expired").All()
	as.Len(expired, 1)
	as.Equal("member-1", expired[0].ContextMap()["subject"])
}

func TestEmbeddersShareLoader(t *testing.T) {
	as := require.New(t)
	page := newFakePage(&fakeSDK{})
	logger := zaptest.NewLogger(t)

	l, err := NewLoader(logger, page)
	as.NoError(err)

	a := newTestEmbedder(t, page, WithLoader(l))
	b := newTestEmbedder(t, page, WithLoader(l))

	sa := a.CreateForum(1, testElement("a"), Options{})
	sb := b.CreateCommentWidget(2, testElement("b"), nil, 0, WidgetOptions{})
	as.Equal(1, page.scriptCount())

	page.script(0).OnLoad()
	_, err = sa.Wait(waitCtx(t))
	as.NoError(err)
	_, err = sb.Wait(waitCtx(t))
	as.NoError(err)
}
