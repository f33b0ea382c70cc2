package observability_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/leadgrid/pkg/observability"
)

// A disabled provider has no instruments; every recording surface must be a
// safe no-op so the pipeline can run without an exporter.
func TestDisabledProviderIsInert(t *testing.T) {
	p, err := observability.New(context.Background(), &observability.Config{Enabled: false})
	require.NoError(t, err)

	ctx := context.Background()
	p.RecordRequest(ctx)
	p.RecordError(ctx, assert.AnError)
	p.LeadCreated(ctx, "acme")
	p.LeadAssigned(ctx, "auto")
	p.LeadParked(ctx)
	p.DuplicateSuppressed(ctx)

	_, done := p.TrackOperation(ctx, "distribute")
	done(nil)

	assert.NoError(t, p.Shutdown(ctx))
}

func TestMiddleware_PassesThroughAndPreservesStatus(t *testing.T) {
	p, err := observability.New(context.Background(), &observability.Config{Enabled: false})
	require.NoError(t, err)

	handler := p.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/webhooks/acme", nil))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	// 5xx responses route through the error path without altering the reply.
	handler = p.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
