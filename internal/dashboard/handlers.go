package dashboard

import (
	"encoding/json"
	"net/http"

	"github.com/equaliser/intake-agent/internal/llm"
)

// usageResponse is the JSON response for the usage endpoint.
type usageResponse struct {
	Total       llm.Usage   `json:"total"`
	ByOperation []llm.Usage `json:"by_operation"`
}

func (d *Dashboard) handleUsage(w http.ResponseWriter, r *http.Request) {
	if d.usage == nil {
		writeJSON(w, http.StatusOK, usageResponse{ByOperation: []llm.Usage{}})
		return
	}
	ops := d.usage.ByOperation()
	if ops == nil {
		ops = []llm.Usage{}
	}
	writeJSON(w, http.StatusOK, usageResponse{
		Total:       d.usage.Total(),
		ByOperation: ops,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
