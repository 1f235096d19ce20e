package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/Domenick1991/tripbooking/internal/provider"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProviderHandler() *ProviderHandler {
	return NewProviderHandler(provider.NewRegistry(map[domain.ComponentType][]string{
		domain.ComponentFlight: {"sabre", "amadeus"},
		domain.ComponentCar:    {"hertz"},
	}))
}

func TestProviderHandler_list(t *testing.T) {
	handler := newProviderHandler()

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/providers", nil)

	handler.list(c)

	require.Equal(t, http.StatusOK, w.Code)
	var resp []providerListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, len(domain.ComponentTypes))
	assert.Equal(t, providerListResponse{ComponentType: "flight", Providers: []string{"amadeus", "sabre"}}, resp[0])
	assert.Empty(t, resp[1].Providers)
}

func TestProviderHandler_get(t *testing.T) {
	handler := newProviderHandler()

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/providers/car", nil)
	c.Params = gin.Params{{Key: "type", Value: "car"}}

	handler.get(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"component_type":"car","providers":["hertz"]}`, w.Body.String())
}

func TestProviderHandler_getUnknownType(t *testing.T) {
	handler := newProviderHandler()

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/providers/cruise", nil)
	c.Params = gin.Params{{Key: "type", Value: "cruise"}}

	handler.get(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
