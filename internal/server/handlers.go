package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	kglti "github.com/hardtochooseaname/kg-lti"
	"github.com/hardtochooseaname/kg-lti/internal/lti"
	"github.com/hardtochooseaname/kg-lti/models"
)

// --- Projections ---

// handleGraph serves the initial view when `init` is absent or "true" (any
// case). Any other value, including an empty one, returns the whole graph.
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	initParam := "true"
	if q := r.URL.Query(); q.Has("init") {
		initParam = q.Get("init")
	}

	var (
		res *models.ProjectionResult
		err error
	)
	if strings.EqualFold(initParam, "true") {
		res, err = s.projections.InitialView(r.Context())
	} else {
		res, err = s.projections.FullView(r.Context())
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, res)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.projections.Search(r.Context(), q.Get("label"), q.Get("keyword"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, res)
}

func (s *Server) handleExpand(w http.ResponseWriter, r *http.Request) {
	res, err := s.projections.Expand(r.Context(), r.PathValue("nodeId"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, res)
}

func (s *Server) handleLabels(w http.ResponseWriter, r *http.Request) {
	labels, err := s.mutations.Labels(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, labels)
}

// --- Mutations ---

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	node, err := s.mutations.GetNode(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, node)
}

func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	var req CreateNodeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	node, err := s.mutations.CreateNode(r.Context(), req.Label, req.Properties)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusCreated, node)
}

func (s *Server) handleUpdateNode(w http.ResponseWriter, r *http.Request) {
	var req UpdateNodeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	node, err := s.mutations.UpdateNode(r.Context(), r.PathValue("id"), req.Properties)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, node)
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.mutations.DeleteNode(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, MessageResponse{
		Message: fmt.Sprintf("Node %s and its relationships deleted successfully", id),
	})
}

func (s *Server) handleCreateRelationship(w http.ResponseWriter, r *http.Request) {
	var req CreateRelationshipRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	edge, err := s.mutations.CreateRelationship(r.Context(), req.Source, req.Target, req.Type, req.Properties)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusCreated, edge)
}

func (s *Server) handleDeleteRelationship(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.mutations.DeleteRelationship(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, MessageResponse{
		Message: fmt.Sprintf("Relationship %s deleted successfully", id),
	})
}

// --- LTI and navigation ---

// forwardedHostPattern accepts a bare host with an optional port.
var forwardedHostPattern = regexp.MustCompile(`^[A-Za-z0-9.-]+(:[0-9]{1,5})?$`)

// handleLTILaunch classifies the launching user and redirects the browser to
// the front-end in the matching view mode.
func (s *Server) handleLTILaunch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, "invalid launch form")
		return
	}

	// 1. No form at all: read-only view.
	mode := lti.ViewStudent
	if len(r.PostForm) > 0 {
		role := lti.Classify(r.PostForm.Get("roles"), r.PostForm.Get("ext_roles"))

		// 2. Map the role, applying the policy for unknown roles.
		var err error
		mode, err = lti.Decide(role, s.opts.UnknownRole)
		if errors.Is(err, lti.ErrRejected) {
			slog.Warn("LTI launch rejected", "roles", r.PostForm.Get("roles"), "ext_roles", r.PostForm.Get("ext_roles"))
			s.writeHTTPError(w, http.StatusForbidden, "no recognised LTI role")
			return
		}
		slog.Info("LTI launch", "role", role.String(), "view_mode", string(mode))
	}

	// 3. Redirect; a proxy-supplied host wins over the configured front-end.
	target := s.frontendURL(mode)
	if host := r.Header.Get("X-Forwarded-Host"); host != "" && forwardedHostPattern.MatchString(host) {
		target = (&url.URL{
			Scheme:   "https",
			Host:     host,
			Path:     "/",
			RawQuery: url.Values{"view_mode": {string(mode)}}.Encode(),
		}).String()
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// handleIndex sends direct visitors to the editor view.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, s.frontendURL(lti.ViewEditor), http.StatusFound)
}

func (s *Server) frontendURL(mode lti.ViewMode) string {
	u, err := url.Parse(s.opts.FrontendURL)
	if err != nil || s.opts.FrontendURL == "" {
		return "/?view_mode=" + url.QueryEscape(string(mode))
	}
	q := u.Query()
	q.Set("view_mode", string(mode))
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Verify(r.Context()); err != nil {
			s.writeHTTPResponse(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: err.Error()})
			return
		}
	}
	s.writeHTTPResponse(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// --- Helpers ---

// decodeJSON reads a size-limited JSON body into dst, keeping numbers exact.
// It writes a 400 and returns false on failure.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			s.writeHTTPError(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			s.writeHTTPError(w, http.StatusBadRequest, "request body is required")
		default:
			s.writeHTTPError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		}
		return false
	}
	return true
}

// writeError maps err onto its HTTP status and writes the client-safe message.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var e *kglti.Error
	if !errors.As(err, &e) {
		slog.Error("unclassified handler error", "error", err)
		s.writeHTTPError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	s.writeHTTPError(w, e.Kind.HTTPStatus(), e.Message)
}

// writeHTTPResponse encodes payload before committing the status, so an
// encoding failure is reported as a 500 instead of a truncated success.
func (s *Server) writeHTTPResponse(w http.ResponseWriter, statusCode int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to encode response", "status", statusCode, "error", err)
		statusCode = http.StatusInternalServerError
		body, _ = json.Marshal(map[string]string{"error": "Internal Server Error"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(append(body, '\n'))
}

func (s *Server) writeHTTPError(w http.ResponseWriter, statusCode int, message string) {
	s.writeHTTPResponse(w, statusCode, map[string]string{"error": message})
}
