package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/roombook/internal/application"
	"github.com/example/roombook/internal/authz"
)

const headerCache = "X-Cache"

type resourceService interface {
	CreateResource(ctx context.Context, params application.CreateResourceParams) (application.Resource, error)
	UpdateResource(ctx context.Context, params application.UpdateResourceParams) (application.Resource, error)
	DeleteResource(ctx context.Context, subject *authz.Subject, resourceID string) error
	GetResource(ctx context.Context, resourceID string) (application.Resource, error)
	ListResources(ctx context.Context) ([]application.Resource, bool, error)
}

type ResourceHandler struct {
	service   resourceService
	responder responder
	logger    *slog.Logger
}

func NewResourceHandler(service resourceService, logger *slog.Logger) *ResourceHandler {
	base := defaultLogger(logger)
	return &ResourceHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *ResourceHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "ResourceHandler", operation, attrs...)
}

func (h *ResourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req resourceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").InfoContext(r.Context(), "failed to decode resource request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	resource, err := h.service.CreateResource(r.Context(), application.CreateResourceParams{
		Subject: SubjectFromContext(r.Context()),
		Input:   req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	w.Header().Set("Location", "/resources/"+resource.ID)
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, resourceResponse{Resource: toResourceDTO(resource)})
}

func (h *ResourceHandler) Update(w http.ResponseWriter, r *http.Request, resourceID string) {
	if strings.TrimSpace(resourceID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidResourceID)
		return
	}

	var req resourceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "Update", "resource_id", resourceID, "error_kind", "bad_request").InfoContext(r.Context(), "failed to decode resource update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	resource, err := h.service.UpdateResource(r.Context(), application.UpdateResourceParams{
		Subject:    SubjectFromContext(r.Context()),
		ResourceID: resourceID,
		Input:      req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, resourceResponse{Resource: toResourceDTO(resource)})
}

func (h *ResourceHandler) Delete(w http.ResponseWriter, r *http.Request, resourceID string) {
	if err := h.service.DeleteResource(r.Context(), SubjectFromContext(r.Context()), resourceID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *ResourceHandler) Get(w http.ResponseWriter, r *http.Request, resourceID string) {
	resource, err := h.service.GetResource(r.Context(), resourceID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resourceResponse{Resource: toResourceDTO(resource)})
}

// List is public. The X-Cache header and from_cache field report whether the
// catalog snapshot came from the cache.
func (h *ResourceHandler) List(w http.ResponseWriter, r *http.Request) {
	resources, fromCache, err := h.service.ListResources(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	if fromCache {
		w.Header().Set(headerCache, "HIT")
	} else {
		w.Header().Set(headerCache, "MISS")
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listResourcesResponse{
		Resources: toResourceDTOs(resources),
		FromCache: fromCache,
	})
}

type resourceRequest struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
	Category string `json:"category"`
}

func (r resourceRequest) toInput() application.ResourceInput {
	return application.ResourceInput{
		Name:     strings.TrimSpace(r.Name),
		Capacity: r.Capacity,
		Category: strings.TrimSpace(r.Category),
	}
}

type resourceResponse struct {
	Resource resourceDTO `json:"resource"`
}

type listResourcesResponse struct {
	Resources []resourceDTO `json:"resources"`
	FromCache bool          `json:"from_cache"`
}

type resourceDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Capacity  int    `json:"capacity"`
	Category  string `json:"category"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toResourceDTO(resource application.Resource) resourceDTO {
	return resourceDTO{
		ID:        resource.ID,
		Name:      resource.Name,
		Capacity:  resource.Capacity,
		Category:  resource.Category,
		CreatedAt: formatTime(resource.CreatedAt),
		UpdatedAt: formatTime(resource.UpdatedAt),
	}
}

func toResourceDTOs(resources []application.Resource) []resourceDTO {
	out := make([]resourceDTO, 0, len(resources))
	for _, resource := range resources {
		out = append(out, toResourceDTO(resource))
	}
	return out
}
