//go:build js && wasm

package wasm

import (
	"fmt"
	"sync"
	"syscall/js"

	"go.miragespace.co/peerboard"
)

// Page is a peerboard.Page backed by the browser document.
type Page struct {
	window   js.Value
	document js.Value
}

var _ peerboard.Page = (*Page)(nil)

// NewPage returns the current browser page. ok is false when no document is
// available, e.g. in a worker or outside a browser.
func NewPage() (page *Page, ok bool) {
	window := js.Global()
	document := window.Get("document")
	if !document.Truthy() {
		return nil, false
	}
	return &Page{
		window:   window,
		document: document,
	}, true
}

func (p *Page) Location() peerboard.Location {
	loc := p.document.Get("location")
	return peerboard.Location{
		Hostname: loc.Get("hostname").String(),
		Pathname: loc.Get("pathname").String(),
		Search:   loc.Get("search").String(),
		Hash:     loc.Get("hash").String(),
	}
}

func (p *Page) Title() string {
	return p.document.Get("title").String()
}

func (p *Page) SetTitle(title string) {
	p.document.Set("title", title)
}

func (p *Page) ReplaceState(title, path string) {
	p.window.Get("history").Call("replaceState", js.ValueOf(map[string]any{}), title, path)
}

// AppendScript inserts a script element into document.head. Load callbacks
// are dispatched on new goroutines so they never block the browser event
// loop.
func (p *Page) AppendScript(s *peerboard.Script) {
	script := p.document.Call("createElement", "script")
	script.Set("src", s.Src)
	for name, v := range s.Attrs {
		script.Call("setAttribute", name, v)
	}

	var (
		once    sync.Once
		onLoad  js.Func
		onError js.Func
	)
	release := func() {
		once.Do(func() {
			script.Set("onload", js.Null())
			script.Set("onerror", js.Null())
			onLoad.Release()
			onError.Release()
		})
	}

	onLoad = js.FuncOf(func(this js.Value, args []js.Value) any {
		release()
		if s.OnLoad != nil {
			go s.OnLoad()
		}
		return nil
	})
	onError = js.FuncOf(func(this js.Value, args []js.Value) any {
		release()
		js.Global().Get("console").Call("error", "failed to download sdk")
		if s.OnError != nil {
			go s.OnError(fmt.Errorf("error loading script %s", s.Src))
		}
		return nil
	})
	script.Set("onload", onLoad)
	script.Set("onerror", onError)

	p.document.Get("head").Call("append", script)
}

// Done returns nil: the browser page outlives every embed created on it.
func (p *Page) Done() <-chan struct{} {
	return nil
}

func (p *Page) LookupSDK(global string) (peerboard.SDK, bool) {
	v := p.window.Get(global)
	if !v.Truthy() {
		return nil, false
	}
	return &sdk{value: v}, true
}
