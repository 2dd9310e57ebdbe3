package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/huolala/internal/server"
	"github.com/tournevent/huolala/internal/telemetry"
	"github.com/tournevent/huolala/pkg/huolala"
	"github.com/tournevent/huolala/pkg/huolala/tokenstore/memory"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

type fixture struct {
	handler   http.Handler
	transport *huolala.MockTransport
	store     *memory.Store
	client    *huolala.Client
}

func newFixture(t *testing.T, redirectURI string) *fixture {
	t.Helper()

	logger := otelzap.New(zap.NewNop())
	transport := huolala.NewMockTransport()
	client := huolala.NewWithTransport(huolala.NewConfig("AK1", "S1"), transport, logger, nil)
	store := memory.New()
	provider := huolala.NewCachingTokenProvider(client, store)

	reg := prometheus.NewRegistry()
	telemetry.NewMetrics(reg).RecordTokenRefresh("success")

	srv := server.New(server.Config{Port: 8080, RedirectURI: redirectURI}, client, provider, reg, logger)
	return &fixture{handler: srv.Handler(), transport: transport, store: store, client: client}
}

func TestServer_Health(t *testing.T) {
	f := newFixture(t, "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestServer_Metrics(t *testing.T) {
	f := newFixture(t, "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "huolala_token_refreshes_total")
}

func TestServer_Authorize_Redirects(t *testing.T) {
	f := newFixture(t, "https://merchant.example.com/cb")

	req := httptest.NewRequest(http.MethodGet, "/oauth/authorize", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, f.client.AuthorizeURL("https://merchant.example.com/cb"), rec.Header().Get("Location"))
}

func TestServer_Authorize_NoRedirectURI(t *testing.T) {
	f := newFixture(t, "")

	req := httptest.NewRequest(http.MethodGet, "/oauth/authorize", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_Callback_StoresToken(t *testing.T) {
	f := newFixture(t, "")
	f.transport.Responses["https://open.huolala.cn/oauth/token"] =
		[]byte(`{"ret":0,"msg":"success","data":{"access_token":"AT1","refresh_token":"RT1","expires_in":7200}}`)

	req := httptest.NewRequest(http.MethodGet, "/oauth/callback?code=CODE123", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "authorized", body["status"])

	record, err := f.store.Get(context.Background(), huolala.TokenKey{AppKey: "AK1"})
	require.NoError(t, err)
	assert.Equal(t, "AT1", record.AccessToken)
	assert.Equal(t, "RT1", record.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), record.ExpiresAt, 5*time.Second)

	requests := f.transport.Requests()
	require.Len(t, requests, 1)
	assert.True(t, strings.HasSuffix(requests[0].URL, "&grant_type=authorization_code&client_id=AK1&code=CODE123"))
	assert.Nil(t, requests[0].Body)
}

func TestServer_Callback_MissingCode(t *testing.T) {
	f := newFixture(t, "")

	req := httptest.NewRequest(http.MethodGet, "/oauth/callback", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.transport.Requests())
}

func TestServer_Callback_ExchangeFails(t *testing.T) {
	f := newFixture(t, "")
	f.transport.Responses["https://open.huolala.cn/oauth/token"] = []byte(`{"ret":10001,"msg":"invalid code"}`)

	req := httptest.NewRequest(http.MethodGet, "/oauth/callback?code=BAD", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)

	_, err := f.store.Get(context.Background(), huolala.TokenKey{AppKey: "AK1"})
	assert.ErrorIs(t, err, huolala.ErrTokenNotFound)
}
