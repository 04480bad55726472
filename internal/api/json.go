package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/starford/pfdl/internal/codec"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

var contentTypes = map[codec.Format]string{
	codec.JSON:      "application/json; charset=utf-8",
	codec.Canonical: "application/json; charset=utf-8",
	codec.CBOR:      "application/cbor",
}

// writeReport encodes a report in the format named by the "format" query
// parameter, indented JSON by default.
func writeReport(w http.ResponseWriter, r *http.Request, status int, v any) {
	f := codec.JSON
	if name := r.URL.Query().Get("format"); name != "" {
		var err error
		if f, err = codec.ParseFormat(name); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
	}
	data, err := codec.Marshal(f, v)
	if err != nil {
		slog.Error("report encode failed", slog.String("format", string(f)), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.Header().Set("Content-Type", contentTypes[f])
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}
