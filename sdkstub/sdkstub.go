// Package sdkstub serves a stand-in for the remote embed script. It exposes
// the same global and factories, records every call in PeerboardSDK.calls and
// reports readiness for positive ids and failure otherwise.
package sdkstub

import (
	_ "embed"
	"io"
	"net/http"
)

const Path = "/embed.js"

//go:embed sdk.js
var Script string

func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		io.WriteString(w, Script)
	})
}
