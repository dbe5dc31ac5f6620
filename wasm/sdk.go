//go:build js && wasm

package wasm

import (
	"fmt"
	"sync"
	"syscall/js"

	"go.miragespace.co/peerboard"
)

// Element wraps a DOM element used as an embed container.
type Element struct {
	Value js.Value
}

var _ peerboard.Element = Element{}

// ElementByID looks up a container in the current document.
func ElementByID(id string) (Element, bool) {
	v := js.Global().Get("document").Call("getElementById", id)
	if !v.Truthy() {
		return Element{}, false
	}
	return Element{Value: v}, true
}

func (e Element) ElementID() string {
	return e.Value.Get("id").String()
}

type sdk struct {
	value js.Value
}

var _ peerboard.SDK = (*sdk)(nil)

func (s *sdk) CreateForum(forumID int64, container peerboard.Element, opts *peerboard.InternalOptions) (peerboard.Handle, error) {
	options, funcs := optionsValue(opts)
	return s.call("createForum", funcs, forumID, elementValue(container), options)
}

func (s *sdk) CreateCommentWidget(communityID int64, exclude []peerboard.ExcludeFlag, container peerboard.Element, spaceID int64, opts *peerboard.InternalOptions) (peerboard.Handle, error) {
	flags := make([]any, len(exclude))
	for i, f := range exclude {
		flags[i] = string(f)
	}
	options, funcs := optionsValue(opts)
	return s.call("createCommentWidget", funcs, communityID, flags, elementValue(container), spaceID, options)
}

func (s *sdk) call(name string, funcs *funcSet, args ...any) (h peerboard.Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			funcs.release()
			err = fmt.Errorf("%s threw: %v", name, r)
		}
	}()

	ret := s.value.Call(name, args...)
	return &handle{value: ret, funcs: funcs}, nil
}

func elementValue(e peerboard.Element) js.Value {
	switch el := e.(type) {
	case Element:
		return el.Value
	case *Element:
		return el.Value
	case nil:
		return js.Null()
	default:
		v := js.Global().Get("document").Call("getElementById", e.ElementID())
		if !v.Truthy() {
			return js.Null()
		}
		return v
	}
}

// optionsValue converts opts into a JS object. Callbacks are wrapped in
// js.Func values that stay alive until the handle is destroyed or the script
// reports failure through onFail.
func optionsValue(opts *peerboard.InternalOptions) (js.Value, *funcSet) {
	obj := js.Global().Get("Object").New()
	funcs := &funcSet{}
	if opts == nil {
		return obj, funcs
	}

	wrap := func(fn func(args []js.Value)) js.Func {
		f := js.FuncOf(func(this js.Value, args []js.Value) any {
			// callbacks may block on Go state; keep the event loop free
			go fn(args)
			return nil
		})
		funcs.funcs = append(funcs.funcs, f)
		return f
	}
	arg := func(args []js.Value) string {
		if len(args) == 0 || args[0].Type() != js.TypeString {
			return ""
		}
		return args[0].String()
	}

	for k, v := range opts.Map() {
		switch fn := v.(type) {
		case func():
			if k == "onFail" {
				// a failed embed is never destroyed by its owner
				obj.Set(k, wrap(func([]js.Value) {
					fn()
					funcs.release()
				}))
				continue
			}
			obj.Set(k, wrap(func([]js.Value) { fn() }))
		case func(string):
			obj.Set(k, wrap(func(args []js.Value) { fn(arg(args)) }))
		default:
			obj.Set(k, js.ValueOf(v))
		}
	}

	return obj, funcs
}

type handle struct {
	once  sync.Once
	value js.Value
	funcs *funcSet
}

func (h *handle) Destroy() {
	h.once.Do(func() {
		if h.value.Truthy() {
			if destroy := h.value.Get("destroy"); destroy.Type() == js.TypeFunction {
				h.value.Call("destroy")
			}
		}
		h.funcs.release()
	})
}

// funcSet holds the callbacks handed to one factory call. It is released
// once, by whichever of Destroy, onFail or a throwing factory comes first.
type funcSet struct {
	once  sync.Once
	funcs []js.Func
}

func (s *funcSet) release() {
	s.once.Do(func() {
		for _, f := range s.funcs {
			f.Release()
		}
	})
}
