package http

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"net/http"
)

//go:embed assets/collector.js
var collectorJS []byte

const defaultCollectorEndpoint = "/save"

// collectorScript fills in the endpoint the script posts to when the page sets none
func collectorScript(endpoint string) []byte {
	if endpoint == "" {
		endpoint = defaultCollectorEndpoint
	}
	quoted, _ := json.Marshal(endpoint)
	return bytes.ReplaceAll(collectorJS, []byte(`"__DEFAULT_ENDPOINT__"`), quoted)
}

// ServeCollector handles GET /collector.js, the browser beacon. Pages include
// it with a script tag; data-endpoint overrides the configured destination
// and data-ip-lookup enables the public IP lookup.
func (h *Handler) ServeCollector(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(h.collectorJS)
	}
}
