package api

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
	"FinCast/internal/service/ratelimit"
	"FinCast/internal/usecase"
	xlogger "FinCast/pkg/logger"
)

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestAPI(t *testing.T, limit RateLimit) (*echo.Echo, *usecase.Estimator) {
	t.Helper()
	est := usecase.NewEstimator(usecase.Settings{Seed: 3, EventEvery: 1})
	t.Cleanup(est.Close)
	h := NewEstimatorEchoHandler(xlogger.NewNop(), est, TrainingDefaults{EstimateLength: 2, Hidden: []int{3}, Epochs: 10}, limit)
	e := echo.New()
	h.RegisterRoutes(e)
	return e, est
}

func do(t *testing.T, e *echo.Echo, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func pointsJSON(n int) string {
	points := make([]map[string]float64, n)
	for i := range points {
		x := float64(i)
		points[i] = map[string]float64{
			"close":  100 * math.Exp(0.02*math.Sin(x/3)+0.001*x),
			"volume": 5000 + 800*math.Cos(x/2),
		}
	}
	b, _ := json.Marshal(points)
	return string(b)
}

func TestLoadDataAndTrain(t *testing.T) {
	e, est := newTestAPI(t, RateLimit{})

	code, env := do(t, e, http.MethodPost, "/api/data", `{"output":"close","points":`+pointsJSON(30)+`}`)
	require.Equal(t, http.StatusOK, code)
	var loaded models.LoadDataResponse
	require.NoError(t, json.Unmarshal(env.Data, &loaded))
	assert.Equal(t, 30, loaded.Points)
	assert.Equal(t, []string{"close", "volume"}, loaded.Channels)

	code, env = do(t, e, http.MethodPost, "/api/training/start", `{"hidden":"3, 2","epochs":1000000}`)
	require.Equal(t, http.StatusAccepted, code)
	var st models.TrainingStatus
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.True(t, st.Running)
	assert.Equal(t, 1000000, st.MaxEpochs)

	code, env = do(t, e, http.MethodGet, "/api/estimate", "")
	require.Equal(t, http.StatusOK, code)
	var est1 models.EstimateResponse
	require.NoError(t, json.Unmarshal(env.Data, &est1))
	assert.Equal(t, "close", est1.Channel)
	assert.Greater(t, est1.Value, 0.0)
	assert.Equal(t, 2, est1.EstimateLength)

	code, env = do(t, e, http.MethodPost, "/api/training/stop", "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.False(t, st.Running)
	assert.False(t, est.IsRunning())

	code, _ = do(t, e, http.MethodGet, "/api/training/status", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestErrorStatuses(t *testing.T) {
	e, _ := newTestAPI(t, RateLimit{})

	code, env := do(t, e, http.MethodGet, "/api/estimate", "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, http.StatusConflict, env.Status)

	code, _ = do(t, e, http.MethodPost, "/api/training/start", `{}`)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = do(t, e, http.MethodPost, "/api/data", `{"points":`+pointsJSON(5)+`}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, e, http.MethodPost, "/api/data", `{"output":"open","points":`+pointsJSON(5)+`}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, e, http.MethodPost, "/api/data", `{"output":"close","points":`+pointsJSON(4)+`}`)
	require.Equal(t, http.StatusOK, code)

	code, _ = do(t, e, http.MethodPost, "/api/training/start", `{"estimate_length":2}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = do(t, e, http.MethodPost, "/api/training/start", `{"hidden":"3,x"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, e, http.MethodPost, "/api/data/clickhouse", `{"symbol":"BTCUSDT"}`)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = do(t, e, http.MethodPost, "/api/data/clickhouse", `{"symbol":"BTCUSDT","tf":"1h"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestEstimateRateLimited(t *testing.T) {
	e, _ := newTestAPI(t, RateLimit{Limiter: ratelimit.New(), Capacity: 1, RefillPerSec: 0.001})

	code, _ := do(t, e, http.MethodPost, "/api/data", `{"output":"close","points":`+pointsJSON(20)+`}`)
	require.Equal(t, http.StatusOK, code)
	code, _ = do(t, e, http.MethodPost, "/api/training/start", `{"epochs":1}`)
	require.Equal(t, http.StatusAccepted, code)

	code, _ = do(t, e, http.MethodGet, "/api/estimate", "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(t, e, http.MethodGet, "/api/estimate", "")
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func TestTrainingStream(t *testing.T) {
	e, _ := newTestAPI(t, RateLimit{})
	srv := httptest.NewServer(e)
	defer srv.Close()

	code, _ := do(t, e, http.MethodPost, "/api/data", `{"output":"close","points":`+pointsJSON(20)+`}`)
	require.Equal(t, http.StatusOK, code)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/training/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))

	var st models.TrainingStatus
	require.NoError(t, conn.ReadJSON(&st))
	assert.False(t, st.Running)

	code, _ = do(t, e, http.MethodPost, "/api/training/start", `{"epochs":5}`)
	require.Equal(t, http.StatusAccepted, code)

	seen := map[string]bool{}
	for !seen[models.EventFinished] {
		var ev models.TrainingEvent
		require.NoError(t, conn.ReadJSON(&ev))
		seen[ev.Type] = true
	}
	assert.True(t, seen[models.EventStarted])
}
