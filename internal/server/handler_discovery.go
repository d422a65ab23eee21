package server

import (
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
)

type endpointDoc struct {
	description string
	auth        bool
}

// endpointDocs describes the JSON API routes listed by discovery.
var endpointDocs = map[string]endpointDoc{
	"/api/v1/":             {"This document", false},
	"/api/v1/health":       {"Server health and version", false},
	"/api/v1/auth/login":   {"Exchange email and password for a bearer token", false},
	"/api/v1/me":           {"The authenticated user", true},
	"/api/v1/reports/":     {"List the user's analyzed reports", true},
	"/api/v1/reports/{id}": {"Single report with its analysis", true},
}

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
	Auth        bool     `json:"auth"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

// apiEndpoints walks the router and collects the /api/v1 routes.
func (s *Server) apiEndpoints() []endpointInfo {
	byPath := map[string]*endpointInfo{}
	chi.Walk(s.router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if !strings.HasPrefix(route, "/api/v1/") {
			return nil
		}
		e, ok := byPath[route]
		if !ok {
			doc := endpointDocs[route]
			e = &endpointInfo{
				Path:        strings.TrimSuffix(route, "/"),
				Description: doc.description,
				Auth:        doc.auth,
			}
			byPath[route] = e
		}
		e.Methods = append(e.Methods, method)
		return nil
	})

	out := make([]endpointInfo, 0, len(byPath))
	for _, e := range byPath {
		sort.Strings(e.Methods)
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	respondOK(w, RequestIDFromContext(r.Context()), discoveryResponse{
		Name:        "BloodLens API",
		Version:     "v1",
		Description: "AI-assisted blood report analysis",
		Endpoints:   s.apiEndpoints(),
	})
}
