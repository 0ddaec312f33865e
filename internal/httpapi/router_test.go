package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lev1nzz/test-bot-kopilka/internal/domain"
	"github.com/lev1nzz/test-bot-kopilka/internal/ledger"
	"github.com/lev1nzz/test-bot-kopilka/internal/logger"
	"github.com/lev1nzz/test-bot-kopilka/internal/repo/memory"
)

func init() { gin.SetMode(gin.TestMode) }

type downPool struct{}

const storeFault = "dial tcp 10.0.0.5:5432: password authentication failed for user \"kopilka\""

func (downPool) Ping(context.Context) error { return errors.New(storeFault) }

func (downPool) PoolSummary(context.Context) (ledger.Summary, error) {
	return ledger.Summary{}, errors.New(storeFault)
}

func do(t *testing.T, r http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	w := do(t, NewRouter(downPool{}, logger.Nop()), "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestRequestIDIsPropagated(t *testing.T) {
	r := NewRouter(downPool{}, logger.Nop())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
}

func TestReadyz(t *testing.T) {
	engine := ledger.New(memory.New())
	assert.Equal(t, http.StatusOK, do(t, NewRouter(engine, logger.Nop()), "/readyz").Code)

	w := do(t, NewRouter(downPool{}, logger.Nop()), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "store_unavailable", env.Error.Code)
	assert.Equal(t, "storage is not available", env.Error.Message)
	assert.NotContains(t, w.Body.String(), "10.0.0.5")
}

func TestPoolSummary(t *testing.T) {
	ctx := context.Background()
	engine := ledger.New(memory.New())
	alice := ledger.Actor{ID: 1, FirstName: "Alice"}
	bob := ledger.Actor{ID: 2, FirstName: "Bob"}
	for _, a := range []ledger.Actor{alice, bob} {
		_, _, err := engine.Register(ctx, a)
		require.NoError(t, err)
	}
	_, err := engine.Contribute(ctx, alice.ID, decimal.RequireFromString("1000.5"), domain.Period{Month: 7, Year: 2024})
	require.NoError(t, err)
	_, err = engine.Borrow(ctx, bob.ID, decimal.NewFromInt(300), domain.DueDate{Day: 15, Month: 7})
	require.NoError(t, err)

	w := do(t, NewRouter(engine, logger.Nop()), "/v1/pool")
	require.Equal(t, http.StatusOK, w.Code)

	var got PoolResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, PoolResponse{
		PoolTotal:   "700.50",
		Members:     2,
		ActiveDebts: 1,
		Outstanding: "300.00",
	}, got)
}

func TestPoolSummaryFailure(t *testing.T) {
	w := do(t, NewRouter(downPool{}, logger.Nop()), "/v1/pool")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, APIError{Message: "internal error", Code: "internal"}, env.Error)
	assert.NotContains(t, w.Body.String(), "password")
}
