package headless

import (
	"text/template"

	"github.com/dop251/goja"
	pool "github.com/libp2p/go-buffer-pool"
)

const nativePageSymbol = "__headlessPage"

var locationKeys = []string{"href", "origin", "protocol", "host", "hostname", "port", "pathname", "search", "hash"}

// The bootstrap exposes the minimal browser surface an embed script touches.
// Every property reads through to the Go page, so there is no state to sync.
const bootstrap = `(function (global, native) {
	var location = {};
	{{- range .LocationKeys}}
	Object.defineProperty(location, "{{.}}", {
		enumerable: true,
		get: function () { return native.location()["{{.}}"]; }
	});
	{{- end}}
	location.toString = function () { return location.href; };

	var document = {
		location: location,
		head: { children: [] },
		currentScript: null
	};
	Object.defineProperty(document, "title", {
		enumerable: true,
		get: function () { return native.title(); },
		set: function (v) { native.setTitle(String(v)); }
	});

	var history = {
		replaceState: function (state, title, path) {
			native.replaceState(title == null ? "" : String(title), path == null ? "" : String(path));
		}
	};

	global.window = global;
	global.self = global;
	global.location = location;
	global.document = document;
	global.history = history;

	delete global.{{.Native}};
})(this, {{.Native}});
`

var bootstrapTemplate = template.Must(template.New("bootstrap").Parse(bootstrap))

func compileBootstrap() (*goja.Program, error) {
	b := pool.NewBuffer(nil)
	defer b.Reset()

	if err := bootstrapTemplate.Execute(b, struct {
		Native       string
		LocationKeys []string
	}{
		Native:       nativePageSymbol,
		LocationKeys: locationKeys,
	}); err != nil {
		return nil, err
	}

	return goja.Compile("bootstrap", b.String(), false)
}
