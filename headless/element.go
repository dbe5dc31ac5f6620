package headless

import (
	"github.com/dop251/goja"
	"github.com/google/uuid"

	"go.miragespace.co/peerboard"
)

// Element is a container element of a headless page. Scripts see it as a
// plain object carrying its id.
type Element struct {
	id string
}

var _ peerboard.Element = (*Element)(nil)

// NewElement returns an element with the given id, or a generated one when
// id is empty.
func NewElement(id string) *Element {
	if id == "" {
		id = "peerboard-" + uuid.NewString()
	}
	return &Element{id: id}
}

func (e *Element) ElementID() string {
	return e.id
}

func elementValue(vm *goja.Runtime, e peerboard.Element) goja.Value {
	if e == nil {
		return goja.Null()
	}
	obj := vm.NewObject()
	obj.Set("id", e.ElementID())
	obj.Set("nodeType", 1)
	return obj
}

func scriptValue(vm *goja.Runtime, s *peerboard.Script) goja.Value {
	obj := vm.NewObject()
	obj.Set("src", s.Src)

	dataset := vm.NewObject()
	for name, v := range s.Attrs {
		if key, ok := datasetKey(name); ok {
			dataset.Set(key, v)
		}
	}
	obj.Set("dataset", dataset)

	obj.Set("hasAttribute", func(name string) bool {
		_, ok := s.Attrs[name]
		return ok
	})
	obj.Set("getAttribute", func(name string) goja.Value {
		if v, ok := s.Attrs[name]; ok {
			return vm.ToValue(v)
		}
		return goja.Null()
	})

	return obj
}

// datasetKey maps "data-skip-init" to "skipInit".
func datasetKey(attr string) (string, bool) {
	const prefix = "data-"
	if len(attr) <= len(prefix) || attr[:len(prefix)] != prefix {
		return "", false
	}

	name := attr[len(prefix):]
	key := make([]byte, 0, len(name))
	upper := false
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '-' {
			upper = true
			continue
		}
		if upper && c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		upper = false
		key = append(key, c)
	}
	return string(key), true
}
