package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/usecase"
	xhttp "FinCast/pkg/http"
	"FinCast/pkg/http/middleware"
	xlogger "FinCast/pkg/logger"
	"FinCast/pkg/util"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPingPeriod = 30 * time.Second
)

// TrainingDefaults fill the fields a start request leaves empty.
type TrainingDefaults struct {
	EstimateLength int
	Hidden         []int
	Epochs         int
}

// RateLimit configures the token bucket in front of /api/estimate.
type RateLimit struct {
	Limiter      middleware.Allower
	Capacity     float64
	RefillPerSec float64
}

// EstimatorEchoHandler exposes the estimator over HTTP and a websocket
// progress stream.
type EstimatorEchoHandler struct {
	logger   *xlogger.Logger
	est      *usecase.Estimator
	defaults TrainingDefaults
	limit    RateLimit
	upgrader websocket.Upgrader
}

func NewEstimatorEchoHandler(logger *xlogger.Logger, est *usecase.Estimator, defaults TrainingDefaults, limit RateLimit) *EstimatorEchoHandler {
	return &EstimatorEchoHandler{
		logger:   logger,
		est:      est,
		defaults: defaults,
		limit:    limit,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *EstimatorEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/data", h.LoadData)
	g.POST("/data/clickhouse", h.LoadStoredChart)
	g.POST("/training/start", h.StartTraining)
	g.POST("/training/stop", h.StopTraining)
	g.GET("/training/status", h.Status)
	g.GET("/training/stream", h.Stream)

	var mw []echo.MiddlewareFunc
	if h.limit.Limiter != nil {
		mw = append(mw, middleware.RateLimit(h.limit.Limiter, h.limit.Capacity, h.limit.RefillPerSec))
	}
	g.GET("/estimate", h.Estimate, mw...)
}

func (h *EstimatorEchoHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", xlogger.Error(err))
	} else {
		h.logger.Warn(op+" rejected", xlogger.Int("status", appErr.Status), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func (h *EstimatorEchoHandler) LoadData(c echo.Context) error {
	req := &models.LoadDataRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	chart, err := models.NewChart(req.Points)
	if err != nil {
		return h.fail(c, "load data", err)
	}
	if err := h.est.LoadData(chart, req.Output); err != nil {
		return h.fail(c, "load data", err)
	}
	return xhttp.SuccessResponse(c, models.LoadDataResponse{
		Points:   chart.Len(),
		Channels: chart.Keys(),
		Output:   req.Output,
	})
}

func (h *EstimatorEchoHandler) LoadStoredChart(c echo.Context) error {
	req := &models.LoadStoredChartRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	tf, err := domrepo.ParseTimeframe(req.TF)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	channels := req.Channels
	if len(channels) == 0 {
		channels = []string{req.Output}
	}
	q := usecase.ChartQuery{
		Symbol:   req.Symbol,
		N:        req.N,
		TF:       tf,
		Channels: channels,
		Output:   req.Output,
	}
	if req.From != "" || req.To != "" {
		from, ok := util.ParseTime(req.From)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from must be RFC3339 or unix seconds"))
		}
		to := util.ParseTimeDefault(req.To, time.Now())
		q.From, q.To = util.AlignFromTo(from, to, string(q.TF))
	}

	chart, err := h.est.LoadStoredChart(c.Request().Context(), q)
	if err != nil {
		return h.fail(c, "load stored chart", err)
	}
	return xhttp.SuccessResponse(c, models.LoadDataResponse{
		Points:   chart.Len(),
		Channels: chart.Keys(),
		Output:   req.Output,
	})
}

// StartTraining builds a network for the loaded data and starts a run. While
// a run is alive the request changes nothing and reports its progress.
func (h *EstimatorEchoHandler) StartTraining(c echo.Context) error {
	req := &models.StartTrainingRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	params := usecase.TrainParams{
		EstimateLength: h.defaults.EstimateLength,
		Hidden:         h.defaults.Hidden,
		Epochs:         h.defaults.Epochs,
	}
	if req.EstimateLength > 0 {
		params.EstimateLength = req.EstimateLength
	}
	if req.Epochs > 0 {
		params.Epochs = req.Epochs
	}
	if req.Hidden != "" {
		hidden, err := util.ParseIntList(req.Hidden)
		if err != nil {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError("hidden must be a comma separated list of integers").WithError(err))
		}
		params.Hidden = hidden
	}

	p, err := h.est.Train(params)
	if err != nil {
		return h.fail(c, "start training", err)
	}
	return xhttp.AcceptedResponse(c, models.StatusOf(p))
}

func (h *EstimatorEchoHandler) StopTraining(c echo.Context) error {
	h.est.Stop()
	return xhttp.SuccessResponse(c, models.StatusOf(h.est.Progress()))
}

func (h *EstimatorEchoHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, models.StatusOf(h.est.Progress()))
}

func (h *EstimatorEchoHandler) Estimate(c echo.Context) error {
	v, err := h.est.Estimate(c.Request().Context())
	if err != nil {
		return h.fail(c, "estimate", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, models.EstimateResponse{
		Channel:        h.est.OutputChannel(),
		Value:          v,
		EstimateLength: h.est.EstimateLength(),
		Training:       models.StatusOf(h.est.Progress()),
	})
}

// Stream upgrades to a websocket and pushes every training event as JSON
// until the client goes away.
func (h *EstimatorEchoHandler) Stream(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	defer conn.Close()

	events, cancel := h.est.Subscribe(64)
	defer cancel()

	ctx, stop := context.WithCancel(c.Request().Context())
	defer stop()
	go func() {
		defer stop()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if err := h.write(conn, models.StatusOf(h.est.Progress())); err != nil {
		return nil
	}
	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(streamWriteWait))
				return nil
			}
			if err := h.write(conn, ev); err != nil {
				return nil
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (h *EstimatorEchoHandler) write(conn *websocket.Conn, v interface{}) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	if err := conn.WriteJSON(v); err != nil {
		h.logger.Debug("websocket write failed", xlogger.Error(err))
		return err
	}
	return nil
}
