package server

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kglti "github.com/hardtochooseaname/kg-lti"
	"github.com/hardtochooseaname/kg-lti/internal/lti"
	"github.com/hardtochooseaname/kg-lti/models"
)

type fakeProjections struct {
	calls  []string
	label  string
	kw     string
	nodeID string
	err    error
}

func result(ids ...string) *models.ProjectionResult {
	res := models.NewProjectionResult()
	for _, id := range ids {
		res.Nodes = append(res.Nodes, &models.WireNode{Data: models.NodeData{
			ID:         id,
			Labels:     []string{"Movie"},
			Properties: models.NewProperties(map[string]any{"title": id}),
		}})
	}
	return res
}

func (f *fakeProjections) InitialView(context.Context) (*models.ProjectionResult, error) {
	f.calls = append(f.calls, "initial")
	if f.err != nil {
		return nil, f.err
	}
	return result("init"), nil
}

func (f *fakeProjections) FullView(context.Context) (*models.ProjectionResult, error) {
	f.calls = append(f.calls, "full")
	if f.err != nil {
		return nil, f.err
	}
	return result("a", "b"), nil
}

func (f *fakeProjections) Search(_ context.Context, label, keyword string) (*models.ProjectionResult, error) {
	f.calls = append(f.calls, "search")
	f.label, f.kw = label, keyword
	if f.err != nil {
		return nil, f.err
	}
	res := result("hit")
	res.CenterIDs = []string{"hit"}
	return res, nil
}

func (f *fakeProjections) Expand(_ context.Context, nodeID string) (*models.ProjectionResult, error) {
	f.calls = append(f.calls, "expand")
	f.nodeID = nodeID
	if f.err != nil {
		return nil, f.err
	}
	return result(nodeID, "neighbor"), nil
}

type fakeMutations struct {
	createdLabel string
	createdProps map[string]any
	updatedID    string
	deleted      []string
	relReq       CreateRelationshipRequest
	err          error
}

func (f *fakeMutations) GetNode(_ context.Context, id string) (*models.WireNode, error) {
	if f.err != nil {
		return nil, f.err
	}
	return result(id).Nodes[0], nil
}

func (f *fakeMutations) CreateNode(_ context.Context, label string, props map[string]any) (*models.WireNode, error) {
	f.createdLabel, f.createdProps = label, props
	if f.err != nil {
		return nil, f.err
	}
	return &models.WireNode{Data: models.NodeData{
		ID:         "new-1",
		Labels:     []string{label},
		Properties: models.NewProperties(props),
	}}, nil
}

func (f *fakeMutations) UpdateNode(_ context.Context, id string, props map[string]any) (*models.WireNode, error) {
	f.updatedID = id
	if f.err != nil {
		return nil, f.err
	}
	return &models.WireNode{Data: models.NodeData{
		ID:         id,
		Labels:     []string{"Movie"},
		Properties: models.NewProperties(props),
	}}, nil
}

func (f *fakeMutations) DeleteNode(_ context.Context, id string) error {
	f.deleted = append(f.deleted, "node:"+id)
	return f.err
}

func (f *fakeMutations) CreateRelationship(_ context.Context, source, target, relType string, props map[string]any) (*models.WireEdge, error) {
	f.relReq = CreateRelationshipRequest{Source: source, Target: target, Type: relType, Properties: props}
	if f.err != nil {
		return nil, f.err
	}
	return &models.WireEdge{Data: models.EdgeData{
		ID:         "rel-1",
		Source:     source,
		Target:     target,
		Label:      relType,
		Properties: models.NewProperties(props),
	}}, nil
}

func (f *fakeMutations) DeleteRelationship(_ context.Context, id string) error {
	f.deleted = append(f.deleted, "rel:"+id)
	return f.err
}

func (f *fakeMutations) Labels(context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []string{"Movie", "Person"}, nil
}

type fakeHealth struct{ err error }

func (f fakeHealth) Verify(context.Context) error { return f.err }

type fixture struct {
	proj   *fakeProjections
	mut    *fakeMutations
	server *Server
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	if opts.FrontendURL == "" {
		opts.FrontendURL = "http://localhost:5173"
	}
	f := &fixture{proj: &fakeProjections{}, mut: &fakeMutations{}}
	f.server = NewServer(f.proj, f.mut, fakeHealth{}, opts)
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestGraphInitSelection(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"", "initial"},
		{"?init=true", "initial"},
		{"?init=TRUE", "initial"},
		{"?init=false", "full"},
		{"?init=0", "full"},
		{"?init=yes", "full"},
		{"?init=", "full"},
		{"?init", "full"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			f := newFixture(t, Options{})
			rec := f.do(t, http.MethodGet, "/api/graph"+tt.query, "")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, []string{tt.want}, f.proj.calls)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			body := decodeBody(t, rec)
			assert.Contains(t, body, "nodes")
			assert.Contains(t, body, "edges")
		})
	}
}

func TestSearchPassesParameters(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.do(t, http.MethodGet, "/api/search?label=Movie&keyword=matrix", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Movie", f.proj.label)
	assert.Equal(t, "matrix", f.proj.kw)
	assert.Equal(t, []any{"hit"}, decodeBody(t, rec)["centerIds"])
}

func TestExpandUsesPathValue(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.do(t, http.MethodGet, "/api/expand/4:abc:12", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "4:abc:12", f.proj.nodeID)
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"bad request", &kglti.Error{Kind: kglti.KindBadRequest, Message: "label and keyword parameters are required"}, http.StatusBadRequest, "label and keyword parameters are required"},
		{"not found", &kglti.Error{Kind: kglti.KindNotFound, Message: "node x not found"}, http.StatusNotFound, "node x not found"},
		{"unavailable", &kglti.Error{Kind: kglti.KindConnectionUnavailable, Message: "database connection error"}, http.StatusServiceUnavailable, "database connection error"},
		{"integrity", &kglti.Error{Kind: kglti.KindIntegrity, Message: "relationship is missing endpoints"}, http.StatusInternalServerError, "relationship is missing endpoints"},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			f.proj.err = tt.err
			rec := f.do(t, http.MethodGet, "/api/search?label=Movie&keyword=x", "")
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.msg, decodeBody(t, rec)["error"])
		})
	}
}

func TestLabels(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.do(t, http.MethodGet, "/api/schema/labels", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["Movie","Person"]`, rec.Body.String())
}

func TestCreateNode(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.do(t, http.MethodPost, "/api/nodes", `{"label":"Movie","properties":{"title":"Heat","released":1995}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Movie", f.mut.createdLabel)
	assert.Equal(t, json.Number("1995"), f.mut.createdProps["released"])

	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, "new-1", data["id"])
	assert.Equal(t, "Heat", data["title"])
}

func TestMalformedBodies(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		body   string
	}{
		{"create node syntax", http.MethodPost, "/api/nodes", `{"label":`},
		{"create node empty", http.MethodPost, "/api/nodes", ""},
		{"update node wrong type", http.MethodPut, "/api/nodes/n1", `{"properties":[1,2]}`},
		{"create relationship syntax", http.MethodPost, "/api/relationships", `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			rec := f.do(t, tt.method, tt.target, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decodeBody(t, rec)["error"])
			assert.Empty(t, f.mut.createdLabel)
			assert.Empty(t, f.mut.updatedID)
		})
	}
}

func TestBodyTooLarge(t *testing.T) {
	f := newFixture(t, Options{MaxBodyBytes: 16})
	rec := f.do(t, http.MethodPost, "/api/nodes", `{"label":"Movie","properties":{"title":"a very long title"}}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestNodeLifecycle(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, http.MethodGet, "/api/nodes/n1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/nodes/n1", `{"properties":{"title":"Renamed"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "n1", f.mut.updatedID)

	rec = f.do(t, http.MethodDelete, "/api/nodes/n1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Node n1 and its relationships deleted successfully", decodeBody(t, rec)["message"])
	assert.Equal(t, []string{"node:n1"}, f.mut.deleted)
}

func TestUpdateMissingNode(t *testing.T) {
	f := newFixture(t, Options{})
	f.mut.err = &kglti.Error{Kind: kglti.KindNotFound, Message: "node n9 not found"}
	rec := f.do(t, http.MethodPut, "/api/nodes/n9", `{"properties":{"title":"x"}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "node n9 not found", decodeBody(t, rec)["error"])
}

func TestRelationshipLifecycle(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, http.MethodPost, "/api/relationships", `{"source":"a","target":"b","type":"acted_in","properties":{"roles":["Neo"]}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "a", f.mut.relReq.Source)
	assert.Equal(t, "b", f.mut.relReq.Target)
	assert.Equal(t, "acted_in", f.mut.relReq.Type)

	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, "rel-1", data["id"])
	assert.Equal(t, "a", data["source"])

	rec = f.do(t, http.MethodDelete, "/api/relationships/rel-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Relationship rel-1 deleted successfully", decodeBody(t, rec)["message"])
}

func launch(t *testing.T, f *fixture, form url.Values, forwardedHost string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/lti_launch", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if forwardedHost != "" {
		req.Header.Set("X-Forwarded-Host", forwardedHost)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestLTILaunchRedirects(t *testing.T) {
	tests := []struct {
		name   string
		policy lti.UnknownRolePolicy
		form   url.Values
		want   string
	}{
		{"no form", lti.UnknownAsStudent, url.Values{}, "student"},
		{"learner", lti.UnknownAsStudent, url.Values{"roles": {"Learner"}}, "student"},
		{"instructor", lti.UnknownAsStudent, url.Values{"roles": {"Instructor,Learner"}}, "editor"},
		{"ext admin", lti.UnknownAsStudent, url.Values{"roles": {"Learner"}, "ext_roles": {"urn:lti:sysrole:ims/lis/Administrator"}}, "editor"},
		{"unknown defaults to student", lti.UnknownAsStudent, url.Values{"roles": {"Guest"}}, "student"},
		{"unknown as editor", lti.UnknownAsEditor, url.Values{"roles": {"Guest"}}, "editor"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{UnknownRole: tt.policy})
			rec := launch(t, f, tt.form, "")
			require.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, "http://localhost:5173?view_mode="+tt.want, rec.Header().Get("Location"))
		})
	}
}

func TestLTILaunchRejectsUnknownRole(t *testing.T) {
	f := newFixture(t, Options{UnknownRole: lti.UnknownRejected})
	rec := launch(t, f, url.Values{"roles": {"Guest"}}, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLTILaunchForwardedHost(t *testing.T) {
	f := newFixture(t, Options{})
	rec := launch(t, f, url.Values{"roles": {"Instructor"}}, "graph.example.edu")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://graph.example.edu/?view_mode=editor", rec.Header().Get("Location"))

	rec = launch(t, f, url.Values{"roles": {"Instructor"}}, "evil.com/path?x=")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "http://localhost:5173?view_mode=editor", rec.Header().Get("Location"))
}

func TestIndexRedirectsToEditor(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "http://localhost:5173?view_mode=editor", rec.Header().Get("Location"))

	rec = f.do(t, http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])

	down := NewServer(&fakeProjections{}, &fakeMutations{}, fakeHealth{err: errors.New("dial tcp: refused")}, Options{})
	rec = httptest.NewRecorder()
	down.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unavailable", decodeBody(t, rec)["status"])
}

func TestRequestIDAndCORS(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, http.MethodGet, "/api/schema/labels", "")
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodGet, "/api/schema/labels", nil)
	req.Header.Set(RequestIDHeader, "fixed-id")
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "fixed-id", rec.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodOptions, "/api/nodes", nil)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, f.mut.createdLabel)
}

type panicProjections struct{ fakeProjections }

func (panicProjections) FullView(context.Context) (*models.ProjectionResult, error) {
	panic("projection exploded")
}

func TestRecoveryMiddleware(t *testing.T) {
	s := NewServer(&panicProjections{}, &fakeMutations{}, fakeHealth{}, Options{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/graph?init=false", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal Server Error", decodeBody(t, rec)["error"])
}

func TestOptionalMounts(t *testing.T) {
	mcpHit := false
	mcp := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mcpHit = true
		w.WriteHeader(http.StatusAccepted)
	})
	f := newFixture(t, Options{MetricsPath: "/metrics", MCPPath: "/mcp", MCPHandler: mcp})

	f.do(t, http.MethodGet, "/api/schema/labels", "")
	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "kglti_http_requests_total")

	rec = f.do(t, http.MethodPost, "/mcp", `{}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, mcpHit)

	bare := newFixture(t, Options{})
	rec = bare.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWriteHTTPResponse_EncodeFailure(t *testing.T) {
	f := newFixture(t, Options{})
	rec := httptest.NewRecorder()
	f.server.writeHTTPResponse(rec, http.StatusOK, map[string]any{"score": math.NaN()})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Internal Server Error", decodeBody(t, rec)["error"])
}
