package models

// Requests and responses of the estimator HTTP endpoints.

type LoadDataRequest struct {
	Output string       `json:"output" validate:"required"`
	Points []ChartPoint `json:"points" validate:"required,min=2"`
}

type LoadStoredChartRequest struct {
	Symbol   string   `json:"symbol" validate:"required"`
	N        int      `json:"n" default:"500" validate:"gte=3,lte=10000"`
	TF       string   `json:"tf" default:"1m" validate:"oneof=1s 1m 5m"`
	From     string   `json:"from"`
	To       string   `json:"to"`
	Channels []string `json:"channels" validate:"omitempty,dive,oneof=open high low close volume"`
	Output   string   `json:"output" default:"close" validate:"oneof=open high low close volume"`
}

// StartTrainingRequest leaves zero fields to the configured defaults.
// Hidden is a comma separated list such as "3, 4".
type StartTrainingRequest struct {
	EstimateLength int    `json:"estimate_length" validate:"gte=0,lte=1000"`
	Hidden         string `json:"hidden"`
	Epochs         int    `json:"epochs" validate:"gte=0"`
}

type LoadDataResponse struct {
	Points   int      `json:"points"`
	Channels []string `json:"channels"`
	Output   string   `json:"output"`
}

type TrainingStatus struct {
	Running   bool    `json:"running"`
	Epoch     int     `json:"epoch"`
	MaxEpochs int     `json:"max_epochs"`
	Progress  float64 `json:"progress"`
}

type EstimateResponse struct {
	Channel string  `json:"channel"`
	Value   float64 `json:"value"`
	// EstimateLength is how many points ahead Value lies.
	EstimateLength int            `json:"estimate_length"`
	Training       TrainingStatus `json:"training"`
}

// StatusOf converts a Progress snapshot for the wire.
func StatusOf(p Progress) TrainingStatus {
	return TrainingStatus{
		Running:   p.Running,
		Epoch:     p.Epoch,
		MaxEpochs: p.MaxEpochs,
		Progress:  p.Fraction(),
	}
}

// ChartMessage is the payload of the chart ingestion topic. A non-nil Train
// starts a run right after the chart is loaded.
type ChartMessage struct {
	Output string       `json:"output"`
	Points []ChartPoint `json:"points"`
	Train  *struct {
		EstimateLength int   `json:"estimate_length"`
		Hidden         []int `json:"hidden"`
		Epochs         int   `json:"epochs"`
	} `json:"train,omitempty"`
}
