package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/juju/errors"

	"github.com/buckleypaul/dinoflash/internal/store"
)

const DefaultHTTPTimeout = 10 * time.Second

// Collections the remote sink stores records in.
const (
	FlashLogs = "flash_logs"
	QCResults = "qc_results"
	Logs      = "logs"
)

// HTTP posts records as JSON to <BaseURL>/<collection>.
type HTTP struct {
	BaseURL string
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTP returns an HTTP sink for baseURL.
func NewHTTP(baseURL string) *HTTP {
	return &HTTP{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{},
		Timeout: DefaultHTTPTimeout,
	}
}

func (h *HTTP) post(ctx context.Context, collection string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return errors.Trace(err)
	}
	ctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()

	url := h.BaseURL + "/" + collection
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Trace(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.Client.Do(req)
	if err != nil {
		return errors.Annotatef(err, "POST %s", url)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("POST %s: HTTP %d", url, resp.StatusCode)
	}
	return nil
}

// PublishOutcome posts r to the flash_logs collection.
func (h *HTTP) PublishOutcome(ctx context.Context, r store.SessionRecord) error {
	return h.post(ctx, FlashLogs, r)
}

// PublishQC posts r to the qc_results collection.
func (h *HTTP) PublishQC(ctx context.Context, r store.QCRecord) error {
	return h.post(ctx, QCResults, r)
}

// PublishLog posts the session log to the logs collection.
func (h *HTTP) PublishLog(ctx context.Context, l Log) error {
	return h.post(ctx, Logs, l)
}
