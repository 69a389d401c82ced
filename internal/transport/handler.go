package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Handler serves fetcher over the HTTPFetcher wire format at GET /{resource}.
func Handler(fetcher Fetcher, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{resource}", func(w http.ResponseWriter, r *http.Request) {
		resource := r.PathValue("resource")
		params, err := decodeQuery(r.URL.Query())
		if err != nil {
			writeJSON(w, http.StatusBadRequest, response{Error: err.Error()})
			return
		}

		res, err := fetcher.FetchManyByReference(r.Context(), resource, params)
		if err != nil {
			status := http.StatusInternalServerError
			if IsTemporary(err) {
				status = http.StatusServiceUnavailable
			}
			logger.Warn("fetch failed",
				"resource", resource,
				"target", params.Target,
				"id", params.ID.String(),
				"error", err)
			writeJSON(w, status, errorResponse(err))
			return
		}
		writeJSON(w, http.StatusOK, resultResponse(res))
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(body)
}
