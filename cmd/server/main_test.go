package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServerDisabledWhenAddrEmpty(t *testing.T) {
	assert.Nil(t, newMetricsServer(""))
}

func TestMetricsServerServesScrapes(t *testing.T) {
	srv := newMetricsServer(":9090")
	require.NotNil(t, srv)
	assert.Equal(t, ":9090", srv.Addr)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
