package rpc

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/chronoplan/chronoplan/agent"
	"github.com/chronoplan/chronoplan/usercontext"
)

// credentialHeaderPrefix marks per-request credential headers on the
// legacy surface: X-User-Credential-RECLAIM_API_KEY and friends, with
// hyphens and underscores interchangeable and case ignored.
const credentialHeaderPrefix = "x-user-credential-"

// mountLegacy wires the pre-A2A HTTP surface kept for old callers.
func (s *Server) mountLegacy(r chi.Router) {
	r.Get("/mcp/needs-setup", s.handleNeedsSetup)
	r.Get("/mcp/tools", s.handleLegacyTools)
	r.Post("/mcp/tools/{name}", s.handleLegacyInvoke)
}

func (s *Server) handleNeedsSetup(w http.ResponseWriter, r *http.Request) {
	creds := credentialsFromHeaders(r)
	var missing []string
	for _, spec := range CredentialsManifest() {
		if creds[spec.Key] == "" {
			missing = append(missing, spec.Key)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"needs_setup": len(missing) > 0,
		"missing":     missing,
	})
}

func (s *Server) handleLegacyTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": agent.Tools})
}

// legacyInvokeBody is the POST /mcp/tools/{name} body. Credentials ride
// in headers; the timezone fields ride here.
type legacyInvokeBody struct {
	Query       string          `json:"query"`
	Timezone    string          `json:"timezone"`
	CurrentDate string          `json:"current_date"`
	CurrentTime string          `json:"current_time"`
	Approved    *bool           `json:"approved"`
	ActionData  json.RawMessage `json:"action_data"`
}

func (s *Server) handleLegacyInvoke(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}
	var in legacyInvokeBody
	if len(body) > 0 {
		if err := json.Unmarshal(body, &in); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
	}

	uctx, err := usercontext.Resolve(usercontext.Params{
		Timezone:    in.Timezone,
		CurrentDate: in.CurrentDate,
		CurrentTime: in.CurrentTime,
		Credentials: credentialsFromHeaders(r),
	}, s.clock)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	args, _ := json.Marshal(agent.Arguments{Query: in.Query})

	var result *agent.Response
	if len(in.ActionData) > 0 {
		approved := in.Approved == nil || *in.Approved
		result, err = s.dispatcher.Approve(r.Context(), name, args, in.ActionData, approved, uctx)
	} else {
		result, err = s.dispatcher.Execute(r.Context(), name, args, uctx)
	}
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, agent.ErrUnknownTool) || strings.Contains(err.Error(), "invalid arguments") {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// credentialsFromHeaders extracts X-User-Credential-* headers into the
// canonical credential map. Header names are case-insensitive and
// hyphen/underscore agnostic after the prefix.
func credentialsFromHeaders(r *http.Request) map[string]string {
	creds := make(map[string]string)
	for name, values := range r.Header {
		lower := strings.ToLower(name)
		if !strings.HasPrefix(lower, credentialHeaderPrefix) || len(values) == 0 {
			continue
		}
		key := strings.ToUpper(strings.ReplaceAll(lower[len(credentialHeaderPrefix):], "-", "_"))
		creds[key] = values[0]
	}
	return creds
}
