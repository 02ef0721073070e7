package handlers

import (
	"net/http"

	"chatgate-backend/internal/models"
	"chatgate-backend/internal/services"
)

type modelCatalog interface {
	List() []models.ModelInfo
}

type ModelsHandler struct {
	catalog modelCatalog
}

func NewModelsHandler(catalog modelCatalog) *ModelsHandler {
	return &ModelsHandler{catalog: catalog}
}

// List handles GET /api/models.
func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.ModelsResponse{
		Models:  h.catalog.List(),
		Default: services.DefaultModel,
		Search:  services.SearchModel,
	})
}
