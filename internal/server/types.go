package server

// CreateNodeRequest is the body of POST /api/nodes.
type CreateNodeRequest struct {
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties"`
}

// UpdateNodeRequest is the body of PUT /api/nodes/{id}.
type UpdateNodeRequest struct {
	Properties map[string]any `json:"properties"`
}

// CreateRelationshipRequest is the body of POST /api/relationships.
type CreateRelationshipRequest struct {
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

// MessageResponse acknowledges a deletion.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
