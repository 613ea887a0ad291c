package handlers

import (
	"net/http"

	"mercator-hq/policyhub/pkg/policy"
	"mercator-hq/policyhub/pkg/policy/catalog"
	"mercator-hq/policyhub/pkg/server/types"
)

// TemplateListResponse is the body of GET /v1/templates.
type TemplateListResponse struct {
	Version   string             `json:"version"`
	Templates []*policy.Template `json:"templates"`
}

// TemplateHandler serves the template catalog.
type TemplateHandler struct {
	catalog *catalog.Catalog
}

// NewTemplateHandler creates a template handler.
func NewTemplateHandler(cat *catalog.Catalog) *TemplateHandler {
	return &TemplateHandler{catalog: cat}
}

// List writes every template sorted by id.
func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	templates := h.catalog.GetAll()
	if templates == nil {
		templates = []*policy.Template{}
	}
	types.WriteJSON(w, http.StatusOK, TemplateListResponse{
		Version:   h.catalog.Version(),
		Templates: templates,
	})
}

// Get writes one template, or 404.
func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	tmpl, ok := h.catalog.Get(id)
	if !ok {
		notFound(w, "template", id)
		return
	}
	types.WriteJSON(w, http.StatusOK, tmpl)
}
