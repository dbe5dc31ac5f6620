package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"go.miragespace.co/peerboard"
	"go.miragespace.co/peerboard/headless"
	"go.miragespace.co/peerboard/sdkstub"
)

const containerID = "peerboard-forum"

// hostPage embeds the forum in a browser. Options are resolved on the server
// by peerboard.ResolveForumOptions and carried in data-options; the inline
// script only appends the fragment, which never reaches the server, and
// wires the title and history callbacks.
var hostPage = template.Must(template.New("host").Parse(`<!doctype html>
<html>
<head>
	<meta charset="utf-8">
	<title>{{.Title}}</title>
</head>
<body>
	<div id="{{.ContainerID}}"></div>
	<script src="{{.SDKURL}}" data-sdk data-options="{{.Options}}" async data-skip-init></script>
	<script>
		(function () {
			var sdk = document.querySelector("script[data-sdk]");
			sdk.addEventListener("load", function () {
				var options = JSON.parse(sdk.dataset.options);
				if (!options.usePathFromQs) {
					options.path = (options.path || "") + location.hash;
				}
				options.onTitleChanged = function (title) { document.title = title; };
				options.onPathChanged = function (p) { history.replaceState({}, document.title, p); };
				window.PeerboardSDK.createForum({{.ForumID}}, document.getElementById({{.ContainerID}}), options);
			});
		})();
	</script>
</body>
</html>
`))

type hostPageData struct {
	Title       string
	ContainerID string
	SDKURL      string
	Options     string
	ForumID     int64
}

type previewResult struct {
	Title   string                  `json:"title"`
	URL     string                  `json:"url"`
	Scripts []string                `json:"scripts"`
	History []headless.HistoryEntry `json:"history"`
	Error   string                  `json:"error,omitempty"`
}

type server struct {
	logger *zap.Logger
	cfg    *config
}

func newRouter(logger *zap.Logger, cfg *config) chi.Router {
	s := &server{
		logger: logger,
		cfg:    cfg,
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Handle(sdkstub.Path, sdkstub.Handler())
	router.Get("/preview", s.preview)
	router.Get("/", s.hostPage)
	if p := strings.TrimSuffix(cfg.Prefix, "/"); p != "" {
		router.Get(p, s.hostPage)
		router.Get(p+"/*", s.hostPage)
	}

	return router
}

func (s *server) origin(r *http.Request) string {
	if s.cfg.PublicURL != "" {
		return strings.TrimSuffix(s.cfg.PublicURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func (s *server) sdkURL(r *http.Request) string {
	if s.cfg.SDKURL != "" {
		return s.cfg.SDKURL
	}
	return s.origin(r) + sdkstub.Path
}

// location is the part of the host page location the server can see.
func (s *server) location(r *http.Request) (peerboard.Location, error) {
	u, err := url.Parse(s.origin(r))
	if err != nil {
		return peerboard.Location{}, fmt.Errorf("error parsing origin: %w", err)
	}
	loc := peerboard.Location{
		Hostname: u.Hostname(),
		Pathname: r.URL.Path,
	}
	if r.URL.RawQuery != "" {
		loc.Search = "?" + r.URL.RawQuery
	}
	return loc, nil
}

func (s *server) forumOptions(r *http.Request) (string, error) {
	loc, err := s.location(r)
	if err != nil {
		return "", err
	}
	opts, err := peerboard.ResolveForumOptions(loc, peerboard.Options{
		Prefix:   s.cfg.Prefix,
		JWTToken: s.cfg.JWTToken,
	})
	if err != nil {
		return "", err
	}
	buf, err := json.Marshal(opts.Map())
	if err != nil {
		return "", fmt.Errorf("error encoding options: %w", err)
	}
	return string(buf), nil
}

func (s *server) hostPage(w http.ResponseWriter, r *http.Request) {
	options, err := s.forumOptions(r)
	if err != nil {
		s.logger.Error("Error resolving forum options", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = hostPage.Execute(w, hostPageData{
		Title:       "Community",
		ContainerID: containerID,
		SDKURL:      s.sdkURL(r),
		Options:     options,
		ForumID:     s.cfg.ForumID,
	})
	if err != nil {
		s.logger.Error("Error rendering host page", zap.Error(err))
	}
}

// preview renders the forum for ?path= in a headless page and reports what
// the embed script did to the page.
func (s *server) preview(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = s.cfg.Prefix
	}
	if !strings.HasPrefix(path, "/") {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, "path must be absolute")
		return
	}

	page, err := headless.NewPage(s.logger, headless.Config{
		URL:   s.origin(r) + path,
		Title: "Community",
	})
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, err)
		return
	}
	defer page.Close()

	embedder, err := peerboard.New(s.logger, page)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.PreviewTimeout)
	defer cancel()

	_, err = embedder.CreateForum(s.cfg.ForumID, headless.NewElement(containerID), peerboard.Options{
		Prefix:   s.cfg.Prefix,
		JWTToken: s.cfg.JWTToken,
		SDKURL:   s.sdkURL(r),
	}).Wait(ctx)

	result := previewResult{
		Title:   page.Title(),
		URL:     page.URL(),
		History: page.History(),
	}
	for _, script := range page.Scripts() {
		result.Scripts = append(result.Scripts, script.Src)
	}

	status := http.StatusOK
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		result.Error = err.Error()
	default:
		status = http.StatusBadGateway
		result.Error = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.logger.Error("Error encoding preview", zap.Error(err))
	}
}
