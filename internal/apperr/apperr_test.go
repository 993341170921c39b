package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("apply: %w", NotFound("batch not found"))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))

	cause := errors.New("connection reset")
	pe := Persistence("insert chunk", cause)
	assert.ErrorIs(t, pe, cause)
	assert.Equal(t, "insert chunk: connection reset", pe.Error())
}

func TestErrorMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorMiddleware())
	r.GET("/v", func(c *gin.Context) {
		_ = c.Error(Validation("invalid rows", []string{"line 2"}))
	})
	r.GET("/x", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v", nil))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"error":"invalid rows","kind":"validation","details":["line 2"]}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal server error","kind":"internal"}`, w.Body.String())
}
