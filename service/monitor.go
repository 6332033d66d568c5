package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/AnTengye/solarflow/config"
	"github.com/AnTengye/solarflow/pkg/logger"
)

const monitorDateLayout = "2006-01-02"

// MonitorService queries the inverter vendor's monitoring cloud.
type MonitorService struct {
	config     *config.MonitorConfig
	httpClient *http.Client
}

// DailyEnergy is the energy an inverter produced on one day.
type DailyEnergy struct {
	Date string  `json:"date"`
	KWh  float64 `json:"kwh"`
}

// EnergyResponse is the vendor envelope of the daily energy query
type EnergyResponse struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
	Data    struct {
		Serial string        `json:"serial"`
		Daily  []DailyEnergy `json:"daily"`
	} `json:"data"`
}

func NewMonitorService(cfg *config.MonitorConfig) *MonitorService {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MonitorService{
		config:     cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// DailyEnergy returns the per-day production of inverter serial between from
// and to inclusive.
func (s *MonitorService) DailyEnergy(ctx context.Context, serial string, from, to time.Time) ([]DailyEnergy, error) {
	q := url.Values{}
	q.Set("from", from.Format(monitorDateLayout))
	q.Set("to", to.Format(monitorDateLayout))
	endpoint := fmt.Sprintf("%s/v1/inverters/%s/energy?%s", s.config.APIURL, url.PathEscape(serial), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.config.APIToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: monitor request: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read monitor response: %v", ErrTransport, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: monitor returned %d: %s", ErrTransport, resp.StatusCode, truncate(body, 200))
	}

	var result EnergyResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if result.Code != 0 {
		return nil, fmt.Errorf("monitor API error for %s: %s", serial, result.Message)
	}

	logger.Debug(ctx, "inverter energy fetched", "serial", serial, "days", len(result.Data.Daily))
	return result.Data.Daily, nil
}
