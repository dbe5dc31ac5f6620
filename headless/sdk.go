package headless

import (
	"fmt"
	"sync/atomic"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"go.miragespace.co/peerboard"
)

var ErrNotAFunction = fmt.Errorf("sdk member is not a function")

type sdkProxy struct {
	page *Page
	obj  *goja.Object
}

var _ peerboard.SDK = (*sdkProxy)(nil)

func (s *sdkProxy) CreateForum(forumID int64, container peerboard.Element, opts *peerboard.InternalOptions) (peerboard.Handle, error) {
	return s.call("createForum", container, opts, func(vm *goja.Runtime, opts *peerboard.InternalOptions) []goja.Value {
		return []goja.Value{
			vm.ToValue(forumID),
			elementValue(vm, container),
			optionsValue(vm, opts),
		}
	})
}

func (s *sdkProxy) CreateCommentWidget(communityID int64, exclude []peerboard.ExcludeFlag, container peerboard.Element, spaceID int64, opts *peerboard.InternalOptions) (peerboard.Handle, error) {
	return s.call("createCommentWidget", container, opts, func(vm *goja.Runtime, opts *peerboard.InternalOptions) []goja.Value {
		flags := make([]any, len(exclude))
		for i, f := range exclude {
			flags[i] = string(f)
		}
		return []goja.Value{
			vm.ToValue(communityID),
			vm.NewArray(flags...),
			elementValue(vm, container),
			vm.ToValue(spaceID),
			optionsValue(vm, opts),
		}
	})
}

func (s *sdkProxy) call(name string, container peerboard.Element, opts *peerboard.InternalOptions, args func(vm *goja.Runtime, opts *peerboard.InternalOptions) []goja.Value) (peerboard.Handle, error) {
	if s.page.closed() {
		return nil, ErrPageClosed
	}

	id := ""
	if container != nil {
		id = container.ElementID()
	}
	h := &jsHandle{
		page: s.page,
		id:   id,
	}

	// a failed embed never lands in the registry, or leaves it on failure
	if opts != nil {
		wrapped := *opts
		onFail := opts.OnFail
		wrapped.OnFail = func() {
			h.failed = true
			h.forget()
			if onFail != nil {
				onFail()
			}
		}
		opts = &wrapped
	}

	resCh := make(chan error, 1)
	s.page.loop.RunOnLoop(func(vm *goja.Runtime) {
		fn, ok := goja.AssertFunction(s.obj.Get(name))
		if !ok {
			resCh <- fmt.Errorf("%w: %s", ErrNotAFunction, name)
			return
		}

		ret, err := fn(s.obj, args(vm, opts)...)
		if err != nil {
			resCh <- err
			return
		}

		if ret != nil && !goja.IsUndefined(ret) && !goja.IsNull(ret) {
			h.obj = ret.ToObject(vm)
		}
		if !h.failed {
			s.page.handles.Store(id, h)
		}
		resCh <- nil
	})

	select {
	case err := <-resCh:
		if err != nil {
			return nil, err
		}
	case <-s.page.ctx.Done():
		return nil, ErrPageClosed
	}

	return h, nil
}

func optionsValue(vm *goja.Runtime, opts *peerboard.InternalOptions) goja.Value {
	obj := vm.NewObject()
	if opts == nil {
		return obj
	}
	for k, v := range opts.Map() {
		obj.Set(k, v)
	}
	return obj
}

type jsHandle struct {
	page *Page
	id   string
	obj  *goja.Object
	// failed is only touched on the event loop
	failed    bool
	destroyed atomic.Bool
}

var _ peerboard.Handle = (*jsHandle)(nil)

// Destroy asks the script to tear the embed down. It does not wait for the
// event loop.
func (h *jsHandle) Destroy() {
	if !h.destroyed.CompareAndSwap(false, true) {
		return
	}

	h.forget()

	if h.obj == nil {
		return
	}

	h.page.loop.RunOnLoop(func(vm *goja.Runtime) {
		fn, ok := goja.AssertFunction(h.obj.Get("destroy"))
		if !ok {
			return
		}
		if _, err := fn(h.obj); err != nil {
			h.page.logger.Warn("Error destroying embed", zap.String("container", h.id), zap.Error(err))
		}
	})
}

func (h *jsHandle) forget() {
	h.page.handles.Compute(h.id, func(cur *jsHandle, loaded bool) (*jsHandle, bool) {
		return cur, !loaded || cur == h
	})
}
