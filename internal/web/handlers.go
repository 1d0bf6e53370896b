package web

import (
	"encoding/json"
	"net/http"
)

type statusResponse struct {
	Installed      bool   `json:"installed"`
	Maintenance    bool   `json:"maintenance"`
	NeedsDBUpgrade bool   `json:"needsDbUpgrade"`
	Version        string `json:"version"`
	VersionString  string `json:"versionstring"`
	ProductName    string `json:"productname"`
}

// handleStatus reports that the server is up. Clients probe it before
// logging in.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	resp := statusResponse{
		Installed:     true,
		Version:       s.version,
		VersionString: s.version,
		ProductName:   "sharebox",
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, `{"error":"encode failed"}`, http.StatusInternalServerError)
	}
}
