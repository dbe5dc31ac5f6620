package peerboard

import (
	"fmt"
	"strings"

	"dario.cat/mergo"
)

type ExcludeFlag string

const (
	// ExcludeSubdomain stops the widget from inferring its context from the
	// host subdomain.
	ExcludeSubdomain ExcludeFlag = "subdomain"
	// ExcludeQueryString stops the widget from inferring its context from
	// query parameters.
	ExcludeQueryString ExcludeFlag = "qs"
)

// Options configures an embedded forum. Every field is optional; unset fields
// fall back to defaults derived from the host page.
type Options struct {
	// Prefix is the host path the forum is mounted under, e.g. "/community".
	Prefix   string
	JWTToken string
	// MinHeight of the iframe in pixels.
	MinHeight int
	// MinHeightCSS is the legacy string form of MinHeight, any CSS length
	// such as "300px" or "50vh". MinHeight wins when both are set.
	MinHeightCSS string
	// Path overrides the forum path detected from the host location.
	Path          string
	UsePathFromQs bool

	Anon                bool
	DisableViewportSync bool
	WPPayload           string

	BaseURL  string
	SDKURL   string
	Resize   *bool
	HideMenu *bool

	OnPathChanged   func(path string)
	OnTitleChanged  func(title string)
	OnCustomProfile func(url string)
	OnLogout        func()
	OnReady         func()
	OnFail          func()
}

// WidgetOptions configures an embedded comment widget.
type WidgetOptions struct {
	Options

	// WidgetToken is a pre-signed token carrying the post author identity.
	WidgetToken string
	PostTitle   string
	PostContent string
}

// InternalOptions is the merged record handed to the remote script.
type InternalOptions struct {
	Prefix      string
	PrefixProxy string
	BaseURL     string

	JWTToken    string
	WPPayload   string
	WidgetToken string
	Anon        bool

	Path          string
	UsePathFromQs bool

	Resize              *bool
	MinHeight           int
	MinHeightCSS        string
	HideMenu            *bool
	DisableViewportSync bool

	PostTitle   string
	PostContent string

	OnPathChanged   func(path string)
	OnTitleChanged  func(title string)
	OnCustomProfile func(url string)
	OnLogout        func()
	OnReady         func()
	OnFail          func()

	ScrollToTopOnNavigationChanged *bool
	SendReferrer                   *bool
}

func Bool(v bool) *bool {
	return &v
}

// Map renders the options in the shape the remote script reads, omitting
// unset fields. Callback values keep their Go function types.
func (o *InternalOptions) Map() map[string]any {
	m := make(map[string]any, 24)

	setString := func(key, v string) {
		if v != "" {
			m[key] = v
		}
	}
	setBool := func(key string, v *bool) {
		if v != nil {
			m[key] = *v
		}
	}
	setFlag := func(key string, v bool) {
		if v {
			m[key] = true
		}
	}

	setString("prefix", o.Prefix)
	setString("prefixProxy", o.PrefixProxy)
	setString("baseURL", o.BaseURL)
	setString("jwtToken", o.JWTToken)
	setString("wpPayload", o.WPPayload)
	setString("widgetToken", o.WidgetToken)
	setFlag("anon", o.Anon)
	setString("path", o.Path)
	setFlag("usePathFromQs", o.UsePathFromQs)
	setBool("resize", o.Resize)
	if o.MinHeight > 0 {
		m["minHeight"] = o.MinHeight
	} else {
		setString("minHeight", o.MinHeightCSS)
	}
	setBool("hideMenu", o.HideMenu)
	setFlag("disableViewportSync", o.DisableViewportSync)
	setString("postTitle", o.PostTitle)
	setString("postContent", o.PostContent)
	setBool("scrollToTopOnNavigationChanged", o.ScrollToTopOnNavigationChanged)
	setBool("sendReferrer", o.SendReferrer)

	if o.OnPathChanged != nil {
		m["onPathChanged"] = o.OnPathChanged
	}
	if o.OnTitleChanged != nil {
		m["onTitleChanged"] = o.OnTitleChanged
	}
	if o.OnCustomProfile != nil {
		m["onCustomProfile"] = o.OnCustomProfile
	}
	if o.OnLogout != nil {
		m["onLogout"] = o.OnLogout
	}
	if o.OnReady != nil {
		m["onReady"] = o.OnReady
	}
	if o.OnFail != nil {
		m["onFail"] = o.OnFail
	}

	return m
}

func (o Options) internal() InternalOptions {
	return InternalOptions{
		Prefix:              o.Prefix,
		BaseURL:             o.BaseURL,
		JWTToken:            o.JWTToken,
		WPPayload:           o.WPPayload,
		Anon:                o.Anon,
		Path:                o.Path,
		UsePathFromQs:       o.UsePathFromQs,
		Resize:              o.Resize,
		MinHeight:           o.MinHeight,
		MinHeightCSS:        o.MinHeightCSS,
		HideMenu:            o.HideMenu,
		DisableViewportSync: o.DisableViewportSync,
		OnPathChanged:       o.OnPathChanged,
		OnTitleChanged:      o.OnTitleChanged,
		OnCustomProfile:     o.OnCustomProfile,
		OnLogout:            o.OnLogout,
		OnReady:             o.OnReady,
		OnFail:              o.OnFail,
	}
}

func (o WidgetOptions) internal() InternalOptions {
	in := o.Options.internal()
	in.WidgetToken = o.WidgetToken
	in.PostTitle = o.PostTitle
	in.PostContent = o.PostContent
	return in
}

// resolveOptions merges layers ordered weakest to strongest. Set fields of a
// later layer replace those of earlier ones; pointer fields are replaced, not
// merged through.
func resolveOptions(layers ...InternalOptions) (*InternalOptions, error) {
	merged := &InternalOptions{}
	for i := range layers {
		if err := mergo.Merge(merged, layers[i], mergo.WithOverride, mergo.WithoutDereference); err != nil {
			return nil, fmt.Errorf("error merging options layer %d: %w", i, err)
		}
	}
	return merged, nil
}

// DetectPath derives the forum path from the host location: a non-root
// prefix is stripped from the start of the pathname, then the query string
// and fragment are appended.
func DetectPath(loc Location, prefix string) string {
	pathname := loc.Pathname
	if prefix != "" && prefix != "/" {
		pathname = strings.TrimPrefix(pathname, "/"+strings.TrimPrefix(prefix, "/"))
	}
	return pathname + loc.Search + loc.Hash
}

func forumDefaults() InternalOptions {
	return InternalOptions{
		Resize:                         Bool(true),
		HideMenu:                       Bool(true),
		ScrollToTopOnNavigationChanged: Bool(true),
	}
}

// widgetDefaults leave navigation alone: a widget sits inline and does not
// drive the host page history.
func widgetDefaults() InternalOptions {
	return InternalOptions{
		Resize:   Bool(true),
		HideMenu: Bool(true),
	}
}

func environment(loc Location, opts Options) InternalOptions {
	var env InternalOptions
	if loc.Hostname != "" {
		env.BaseURL = baseURLFor(loc.Hostname)
	}
	if !opts.UsePathFromQs {
		env.Path = DetectPath(loc, opts.Prefix)
	}
	return env
}

// ResolveForumOptions merges forum defaults, the values derived from loc and
// opts. Host page callbacks (title, history) are left unset; they belong to
// whoever owns the page.
func ResolveForumOptions(loc Location, opts Options) (*InternalOptions, error) {
	return resolveOptions(forumDefaults(), environment(loc, opts), opts.internal())
}

func baseURLFor(hostname string) string {
	return "https://peerboard." + hostname
}
