package api

import (
	"net/http"

	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/gin-gonic/gin"
)

// ProviderCatalog lists the providers configured per component type.
type ProviderCatalog interface {
	Providers(componentType domain.ComponentType) []string
}

type ProviderHandler struct {
	catalog ProviderCatalog
}

type providerListResponse struct {
	ComponentType string   `json:"component_type"`
	Providers     []string `json:"providers"`
}

func NewProviderHandler(catalog ProviderCatalog) *ProviderHandler {
	return &ProviderHandler{catalog: catalog}
}

func (h *ProviderHandler) Register(router *gin.RouterGroup) {
	router.GET("", h.list)
	router.GET("/:type", h.get)
}

func (h *ProviderHandler) list(c *gin.Context) {
	resp := make([]providerListResponse, 0, len(domain.ComponentTypes))
	for _, ct := range domain.ComponentTypes {
		resp = append(resp, providerListResponse{
			ComponentType: string(ct),
			Providers:     h.catalog.Providers(ct),
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ProviderHandler) get(c *gin.Context) {
	ct, err := domain.ParseComponentType(c.Param("type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, providerListResponse{
		ComponentType: string(ct),
		Providers:     h.catalog.Providers(ct),
	})
}
