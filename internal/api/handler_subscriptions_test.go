package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gate-access-backend/internal/model"
)

func setupSubscriptionRouter() *gin.Engine {
	r := gin.Default()
	handler := NewHandler(nil, nil, nil, nil)
	r.PUT("/api/subscriptions", handler.PutSubscription)
	return r
}

func TestPutSubscription(t *testing.T) {
	router := setupSubscriptionRouter()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/api/subscriptions", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())
}

func TestSubscriptionLifecycle(t *testing.T) {
	env := newTestServer(t)
	endpoint := "https://push.example.com/send/abc%2Bdef"

	w := env.do(t, "PUT", "/api/admin/subscriptions",
		`{"endpoint":"`+endpoint+`","p256dh":"key","auth":"secret","min_severity":"danger"}`, true)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, "GET", "/api/admin/subscriptions?endpoint="+endpoint, "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"min_severity":"danger"}`, w.Body.String())

	subs, err := env.store.ListSubscriptions(context.Background(), []string{model.SeverityDanger})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, endpoint, subs[0].Endpoint)

	w = env.do(t, "PUT", "/api/admin/subscriptions",
		`{"endpoint":"`+endpoint+`","p256dh":"key","auth":"secret","min_severity":"loud"}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "DELETE", "/api/admin/subscriptions", `{"endpoint":"`+endpoint+`"}`, true)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, "GET", "/api/admin/subscriptions?endpoint="+endpoint, "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "subscription not found"))
}
