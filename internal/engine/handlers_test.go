package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/exec-engine/internal/types"
)

func TestGinHandlers_GetOrderGroup(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fx := newServiceFixture(t, 10_000_000)
	handlers := NewGinHandlers(fx.service)

	router := gin.New()
	router.GET("/orders/:group_id", handlers.GetOrderGroupHandler())

	// Unknown IDs map to 404, not a generic error status.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	group, err := fx.service.SubmitSignal(context.Background(), types.Signal{
		Symbol: "ACME", Side: types.SideBuy, Score: 0.85, Confidence: types.ConfidenceHigh,
	})
	require.NoError(t, err)
	fx.waitForGroup(t, group)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders/"+group.GroupID, nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
