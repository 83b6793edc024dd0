package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	pkgkafka "FinCast/pkg/kafka"
	"FinCast/pkg/logger"
)

// KafkaChartHandler loads charts published on a topic into the estimator.
type KafkaChartHandler struct {
	topic   string
	est     *Estimator
	metrics domrepo.Metrics
	log     *logger.Logger
}

func NewKafkaChartHandler(topic string, est *Estimator, metrics domrepo.Metrics, log *logger.Logger) *KafkaChartHandler {
	return &KafkaChartHandler{topic: topic, est: est, metrics: metrics, log: log}
}

func (h *KafkaChartHandler) Topic() string { return h.topic }

func (h *KafkaChartHandler) Handle(ctx context.Context, b []byte) error {
	start := time.Now()
	defer func() { h.metrics.RecordLatency("chart_message", time.Since(start).Seconds()) }()

	var m models.ChartMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("chart_unmarshal")
		return fmt.Errorf("decode chart message: %w", err)
	}
	chart, err := models.NewChart(m.Points)
	if err != nil {
		h.metrics.RecordError("chart_invalid")
		return fmt.Errorf("chart message: %w", err)
	}
	if err := h.est.LoadData(chart, m.Output); err != nil {
		h.metrics.RecordError("chart_load")
		return err
	}
	h.log.Info("chart loaded from kafka",
		logger.String("topic", h.topic),
		logger.String("trace_id", pkgkafka.TraceID(ctx)),
		logger.Int("points", chart.Len()),
	)

	if m.Train == nil {
		return nil
	}
	_, err = h.est.Train(TrainParams{
		EstimateLength: m.Train.EstimateLength,
		Hidden:         m.Train.Hidden,
		Epochs:         m.Train.Epochs,
	})
	if err != nil {
		h.metrics.RecordError("chart_train")
		return fmt.Errorf("start training: %w", err)
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaChartHandler)(nil)
