package gridsd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/GoSim-25-26J-441/gridsearch/pkg/logger"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/models"
	"github.com/GoSim-25-26J-441/gridsearch/pkg/utils"
)

// NotificationPayload is the JSON body posted to a run's callback URL once
// the run is terminal.
type NotificationPayload struct {
	RunID       string             `json:"run_id"`
	Status      models.RunStatus   `json:"status"`
	Error       string             `json:"error,omitempty"`
	Termination models.Termination `json:"termination,omitempty"`
	Objective   *float64           `json:"objective,omitempty"`
	UpperBound  *float64           `json:"upper_bound,omitempty"`
	Gap         *float64           `json:"gap,omitempty"`
	Timestamp   int64              `json:"timestamp"`
}

// Notifier posts run completions to callback URLs with retries.
type Notifier struct {
	httpClient *http.Client
	maxRetries int
	backoff    utils.Backoff
}

func NewNotifier() *Notifier {
	return &Notifier{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		maxRetries: 3,
		backoff:    utils.ExponentialBackoff{Base: time.Second, Max: 30 * time.Second},
	}
}

func newPayload(rec *RunRecord) NotificationPayload {
	p := NotificationPayload{
		RunID:     rec.Run.ID,
		Status:    rec.Run.Status,
		Error:     rec.Run.Error,
		Timestamp: time.Now().UTC().UnixMilli(),
	}
	if res := rec.Run.Result.JSONSafe(); res != nil {
		p.Termination = res.Termination
		p.UpperBound = &res.UpperBound
		p.Gap = &res.Gap
		if res.Incumbent != nil {
			p.Objective = &res.Incumbent.Objective
		}
	}
	return p
}

// Notify sends the notification in the background and returns a channel
// closed once delivery succeeded or every retry failed.
func (n *Notifier) Notify(callbackURL, callbackSecret string, rec *RunRecord) <-chan struct{} {
	done := make(chan struct{})
	if callbackURL == "" || rec == nil {
		close(done)
		return done
	}
	finalURL := strings.ReplaceAll(callbackURL, "{run_id}", rec.Run.ID)
	payload := newPayload(rec)
	go func() {
		defer close(done)
		if err := n.send(finalURL, callbackSecret, payload); err != nil {
			logger.Error("failed to send notification after retries",
				"callback_url", finalURL,
				"run_id", payload.RunID,
				"status", payload.Status,
				"max_retries", n.maxRetries,
				"last_error", err)
		}
	}()
	return done
}

func (n *Notifier) send(callbackURL, callbackSecret string, payload NotificationPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if attempt > 0 {
			delay := n.backoff.Delay(attempt)
			logger.Debug("retrying notification",
				"callback_url", callbackURL,
				"run_id", payload.RunID,
				"attempt", attempt,
				"delay", delay)
			time.Sleep(delay)
		}

		req, err := http.NewRequest(http.MethodPost, callbackURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "gridsearch/1.0")
		if callbackSecret != "" {
			req.Header.Set("X-Gridsearch-Callback-Secret", callbackSecret)
		}

		resp, err := n.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			logger.Warn("notification attempt failed",
				"callback_url", callbackURL,
				"run_id", payload.RunID,
				"attempt", attempt+1,
				"error", err)
			continue
		}
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			logger.Info("notification sent",
				"run_id", payload.RunID,
				"status", payload.Status,
				"status_code", resp.StatusCode)
			return nil
		}
		lastErr = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		logger.Warn("notification returned non-2xx status",
			"callback_url", callbackURL,
			"run_id", payload.RunID,
			"status_code", resp.StatusCode,
			"response_body", string(respBody),
			"attempt", attempt+1)
	}
	return lastErr
}
