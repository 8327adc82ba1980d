// Package workflow is the scheduler's narrow view of the workflow execution
// service: kick off a run, learn whether the kickoff was accepted.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// RunResult is the kickoff outcome. Success reflects the kickoff only; the
// run itself completes independently.
type RunResult struct {
	Success bool   `json:"success"`
	RunID   string `json:"run_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Invoker interface {
	Invoke(ctx context.Context, workflowID string, payload map[string]interface{}) (*RunResult, error)
}

type HTTPInvoker struct {
	endpoint string
	client   *http.Client
	logger   *logrus.Logger
}

func NewHTTPInvoker(endpoint string, timeout time.Duration, logger *logrus.Logger) *HTTPInvoker {
	return &HTTPInvoker{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

func (i *HTTPInvoker) Invoke(ctx context.Context, workflowID string, payload map[string]interface{}) (*RunResult, error) {
	body, err := json.Marshal(map[string]interface{}{"payload": payload})
	if err != nil {
		return nil, fmt.Errorf("fail to marshal invoke payload, err: %w", err)
	}

	url := fmt.Sprintf("%s/workflows/%s/execute", i.endpoint, workflowID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("fail to build invoke request, err: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fail to call workflow execution endpoint, err: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fail to read invoke response, err: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("workflow execution endpoint returned status %d: %s", resp.StatusCode, respBody)
	}

	var result RunResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("fail to parse invoke response, err: %w", err)
	}

	i.logger.WithFields(logrus.Fields{
		"workflow_id": workflowID,
		"run_id":      result.RunID,
		"success":     result.Success,
	}).Info("Workflow kickoff completed")
	return &result, nil
}
