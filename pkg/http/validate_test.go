package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Symbol string   `json:"symbol" validate:"required"`
	N      int      `json:"n" default:"10" validate:"gte=3"`
	Side   string   `json:"side" default:"buy" validate:"oneof=buy sell"`
	Tags   []string `json:"tags" validate:"max=2"`
}

func bind(t *testing.T, body string, req interface{}) interface{} {
	t.Helper()
	e := echo.New()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return ReadAndValidateRequest(e.NewContext(r, httptest.NewRecorder()), req)
}

func TestReadAndValidateRequestDefaults(t *testing.T) {
	req := &sampleRequest{}
	require.Nil(t, bind(t, `{"symbol":"BTCUSDT"}`, req))
	assert.Equal(t, 10, req.N)
	assert.Equal(t, "buy", req.Side)
}

func TestReadAndValidateRequestFieldErrors(t *testing.T) {
	verr := bind(t, `{"n":1,"side":"hold","tags":["a","b","c"]}`, &sampleRequest{})
	errs, ok := verr.([]ValidationError)
	require.True(t, ok)

	byField := map[string]ValidationError{}
	for _, e := range errs {
		byField[e.Field] = e
	}
	require.Len(t, byField, 4)
	assert.Equal(t, "ERR_REQUIRED", byField["symbol"].Code)
	assert.Equal(t, "n must be at least 3", byField["n"].Message)
	assert.Equal(t, []string{"buy", "sell"}, byField["side"].Params["options"])
	assert.Equal(t, "tags must be at most 2 items", byField["tags"].Message)
}

func TestReadAndValidateRequestBindError(t *testing.T) {
	errs, ok := bind(t, `{"symbol":`, &sampleRequest{}).([]ValidationError)
	require.True(t, ok)
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_BIND", errs[0].Code)
}
