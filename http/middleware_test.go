package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"ctgenie/ml"
	"ctgenie/monitoring"
)

type panickingPredictor struct {
	fakePredictor
}

func (p *panickingPredictor) Predict(ctx context.Context, features ml.FeatureVector) (*ml.Prediction, error) {
	panic("booster exploded")
}

func TestLoggerMiddlewareRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	var seen string
	handler := LoggerMiddleware(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/predict", nil))

	header := w.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(header)
	require.NoError(t, err, "request id %q is not a uuid", header)
	assert.Equal(t, header, seen)

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(http.StatusTeapot), fields["status"])
	assert.Equal(t, header, fields["request_id"])
	assert.Equal(t, "/predict", fields["path"])
}

func TestLoggerMiddlewareKeepsIncomingID(t *testing.T) {
	handler := LoggerMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-7")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "upstream-7", w.Header().Get(RequestIDHeader))
}

func TestRecoveryMiddleware(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/predict", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "internal server error", body.Error)
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := CORSMiddleware([]string{"http://dashboard.local"})(next)

	req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://dashboard.local", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestTimeoutMiddlewareSetsDeadline(t *testing.T) {
	var remaining time.Duration
	handler := TimeoutMiddleware(time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok := r.Context().Deadline()
		if !ok {
			t.Error("no deadline on request context")
			return
		}
		remaining = time.Until(deadline)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Greater(t, remaining, time.Duration(0))
	assert.LessOrEqual(t, remaining, time.Minute)
}

func TestRequestSizeLimit(t *testing.T) {
	config := testServerConfig()
	config.MaxBodyBytes = 16
	handler := NewHandler(config, NewHandlers(Options{Predictor: &fakePredictor{prediction: suspectPrediction()}}), zap.NewNop())

	body := `{"ctg_features": {"LB": 120, "AC": 0.003, "ASTV": 45}}`
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	handler := Chain(mark("a"), mark("b"), mark("c"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestMetricsMiddleware(t *testing.T) {
	metrics := monitoring.NewCollector()
	handler := MetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/guidelines/broken" {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))

	for _, path := range []string{"/guidelines/fhr", "/guidelines/broken", "/predict", "/"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	routes := routesByName(metrics)
	require.Len(t, routes, 3)
	assert.Equal(t, int64(2), routes["/guidelines"].Count)
	assert.Equal(t, int64(1), routes["/guidelines"].Errors)
	assert.Equal(t, int64(1), routes["/"].Count)
}

func TestMetricsCountRecoveredPanics(t *testing.T) {
	metrics := monitoring.NewCollector()
	handler := NewHandler(testServerConfig(), NewHandlers(Options{
		Predictor: &panickingPredictor{},
		Metrics:   metrics,
	}), zap.NewNop())

	w := doJSON(t, handler, http.MethodPost, "/predict", map[string]any{"ctg_features": queryFeatures()})
	require.Equal(t, http.StatusInternalServerError, w.Code)

	routes := routesByName(metrics)
	require.Contains(t, routes, "/predict")
	assert.Equal(t, int64(1), routes["/predict"].Count)
	assert.Equal(t, int64(1), routes["/predict"].Errors)
}

func TestRouteOf(t *testing.T) {
	for _, tc := range []struct{ path, want string }{
		{"/", "/"},
		{"/predict", "/predict"},
		{"/ws/telemetry/CASE-0001", "/ws"},
		{"/intervention-algorithm/late", "/intervention-algorithm"},
	} {
		assert.Equal(t, tc.want, routeOf(tc.path), tc.path)
	}
}

func routesByName(metrics *monitoring.Collector) map[string]monitoring.RouteStats {
	routes := map[string]monitoring.RouteStats{}
	for _, route := range metrics.Snapshot().Routes {
		routes[route.Route] = route
	}
	return routes
}
