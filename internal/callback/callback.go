// Package callback delivers finished batch reports to an external webhook.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spigell/resume-batch/internal/batch"
	"github.com/spigell/resume-batch/internal/logger"
	"github.com/spigell/resume-batch/internal/utils"
	"go.uber.org/zap"
)

const (
	contentType    = "application/json"
	userAgent      = "spigell/resume-batch"
	defaultTimeout = 30 * time.Second
	// Max response body kept for error messages.
	maxBodyLog = 500
)

type Client struct {
	URL        string
	UserAgent  string
	HTTPClient *http.Client
	logger     *zap.Logger
}

func New(logger *zap.Logger, url string, timeout time.Duration) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		URL:       url,
		UserAgent: userAgent,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Send posts the report as JSON and expects a 2xx answer.
func (c *Client) Send(ctx context.Context, report batch.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", c.UserAgent)

	c.logger.Debug("make request", zap.String("url", c.URL), zap.Int("bytes", len(payload)))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyLog))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("bad status: %s: %s", resp.Status, utils.SingleLine(string(body)))
	}

	return nil
}

// Hook adapts the client to a batch finish hook. Delivery errors are logged only.
func (c *Client) Hook() batch.FinishHook {
	return func(ctx context.Context, report batch.Report) {
		log := logger.WithBatch(c.logger, report.BatchID)
		if err := c.Send(ctx, report); err != nil {
			log.Error("failed to deliver batch report", zap.String("url", c.URL), zap.Error(err))
			return
		}
		log.Info("batch report delivered", zap.String("url", c.URL), zap.Int("results", len(report.Results)))
	}
}
