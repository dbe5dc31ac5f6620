package peerboard

// Location is a snapshot of the host document location.
type Location struct {
	Hostname string
	Pathname string
	Search   string
	Hash     string
}

// Script is a script element to be inserted into the document head. Exactly
// one of OnLoad or OnError is expected to be invoked by the page once the
// script was fetched and evaluated.
type Script struct {
	Src     string
	Attrs   map[string]string
	OnLoad  func()
	OnError func(err error)
}

// Element is a container element the remote script renders into.
type Element interface {
	ElementID() string
}

// Page is the host page environment: location, title, history and the
// document head.
type Page interface {
	Location() Location
	Title() string
	SetTitle(title string)
	ReplaceState(title, path string)
	AppendScript(s *Script)
	// LookupSDK returns the interface the remote script exposed under the
	// given global name.
	LookupSDK(global string) (SDK, bool)
	// Done is closed once the page is torn down; pending creations then fail
	// with ErrPageClosed. A page that lives for the whole process may return
	// nil.
	Done() <-chan struct{}
}

// SDK is the factory surface exposed by the remote embed script. Both
// factories return immediately; readiness is reported later through
// InternalOptions.OnReady or InternalOptions.OnFail.
type SDK interface {
	CreateForum(forumID int64, container Element, opts *InternalOptions) (Handle, error)
	CreateCommentWidget(communityID int64, exclude []ExcludeFlag, container Element, spaceID int64, opts *InternalOptions) (Handle, error)
}

// Handle is a rendered forum or widget.
type Handle interface {
	Destroy()
}
