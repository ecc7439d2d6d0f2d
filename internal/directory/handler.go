package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gmfloripa/patrol-relay/internal/server"
)

// SearchPath is the route served by Handler.
const SearchPath = "/api/search-photos"

// Searcher finds employee photos by name.
type Searcher interface {
	SearchPhotos(ctx context.Context, name string) (json.RawMessage, error)
}

// Handler serves GET /api/search-photos.
type Handler struct {
	searcher Searcher
	logger   *slog.Logger
}

// NewHandler creates a photo search handler.
func NewHandler(searcher Searcher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{searcher: searcher, logger: logger}
}

// HandleSearch relays the directory answer for ?name=.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		server.WriteJSON(w, http.StatusBadRequest, map[string]string{
			"error": "O parâmetro 'name' é obrigatório",
		})
		return
	}

	data, err := h.searcher.SearchPhotos(r.Context(), name)
	if err != nil {
		server.AddError(r.Context(), err)

		var apiErr *APIError
		if errors.As(err, &apiErr) {
			server.WriteJSON(w, apiErr.StatusCode, map[string]string{
				"error":   fmt.Sprintf("Erro do serviço Janus: %d", apiErr.StatusCode),
				"details": apiErr.Body,
			})
			return
		}

		h.logger.ErrorContext(r.Context(), "photo search failed", slog.String("error", err.Error()))
		server.WriteJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "Erro interno do servidor",
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
