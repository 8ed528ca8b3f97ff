package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

type issueTokenRequest struct {
	APIKey string `json:"api_key"`
	Client string `json:"client"`
}

type issueTokenResponse struct {
	Token string `json:"token"`
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.authSvc.VerifyIngestKey(req.APIKey); err != nil {
		jsonError(w, "invalid api key", http.StatusUnauthorized)
		return
	}

	client := strings.TrimSpace(req.Client)
	if client == "" {
		client = "ingest"
	}
	token, err := s.authSvc.GenerateToken(client)
	if err != nil {
		jsonError(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, http.StatusOK, issueTokenResponse{Token: token})
}
