package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/openrelay/gateway/store"
	"github.com/openrelay/gateway/types"
)

// ModelsHandler serves GET /v1/models, aggregating every provider's cached
// model catalog into a single OpenAI-shaped list, prefixed "provider/model"
// so clients can round-trip the id straight back into /v1/chat/completions.
type ModelsHandler struct {
	providers store.ProviderStore
	cache     store.ModelCache
	logger    *zap.Logger
}

// NewModelsHandler builds a ModelsHandler over the provider and model-cache
// stores.
func NewModelsHandler(providers store.ProviderStore, cache store.ModelCache, logger *zap.Logger) *ModelsHandler {
	return &ModelsHandler{providers: providers, cache: cache, logger: logger}
}

type modelList struct {
	Object string        `json:"object"`
	Data   []types.Model `json:"data"`
}

// HandleList implements GET /v1/models: list every provider, then every
// provider's cached catalog, in provider registration order.
func (h *ModelsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	providers, err := h.providers.ListProviders(r.Context())
	if err != nil {
		WriteError(w, types.NewError(types.ErrStorage, "failed to list providers").WithCause(err), h.logger)
		return
	}

	out := modelList{Object: "list", Data: make([]types.Model, 0, len(providers))}
	for _, p := range providers {
		cached, err := h.cache.CachedModels(r.Context(), p.ID)
		if err != nil {
			WriteError(w, types.NewError(types.ErrStorage, "failed to list cached models").WithCause(err), h.logger)
			return
		}
		for _, m := range cached {
			out.Data = append(out.Data, types.Model{
				ID:      p.Name + "/" + m.ModelID,
				Object:  "model",
				Created: m.Created,
				OwnedBy: ownedByOrDefault(m.OwnedBy, p.Name),
			})
		}
	}

	WriteJSON(w, http.StatusOK, out)
}

func ownedByOrDefault(ownedBy, providerName string) string {
	if ownedBy != "" {
		return ownedBy
	}
	return providerName
}
