package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/practicepulse/api/internal/config"
	"github.com/practicepulse/api/internal/model"
)

// AgentsClient invokes the analytical sub-agent service over HTTP. When no
// base URL is configured it returns deterministic mock results so the
// pipeline runs end to end in local development.
type AgentsClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// agentRunRequest is the wire request for one sub-agent invocation.
type agentRunRequest struct {
	JobID          string                `json:"jobId"`
	OrganizationID string                `json:"organizationId"`
	Agent          model.MonthlyAgentKey `json:"agent"`
	Payload        json.RawMessage       `json:"payload,omitempty"`
}

// agentRunResponse is the wire response.
type agentRunResponse struct {
	Success  bool   `json:"success"`
	ResultID string `json:"resultId,omitempty"`
	Error    string `json:"error,omitempty"`
}

// NewAgentsClient creates a new sub-agent service client
func NewAgentsClient(cfg *config.AgentsConfig) *AgentsClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &AgentsClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
	}
}

// IsConfigured returns true if a real agent service endpoint is set
func (c *AgentsClient) IsConfigured() bool {
	return c != nil && c.baseURL != ""
}

// RunAgent invokes one sub-agent and folds every failure mode into the
// returned AgentResult. A deadline hit surfaces as error "timeout" so it
// takes the ordinary step-failure path.
func (c *AgentsClient) RunAgent(ctx context.Context, job *model.Job, agent model.MonthlyAgentKey) model.AgentResult {
	if !c.IsConfigured() {
		return c.mockResult(job, agent)
	}

	reqBody := agentRunRequest{
		JobID:          job.ID,
		OrganizationID: job.OrganizationID,
		Agent:          agent,
		Payload:        json.RawMessage(job.Response),
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return failure(fmt.Sprintf("failed to marshal request: %v", err))
	}

	url := fmt.Sprintf("%s/v1/agents/%s/run", c.baseURL, agent)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return failure(fmt.Sprintf("failed to build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return failure("timeout")
		}
		return failure(fmt.Sprintf("agent request failed: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure(fmt.Sprintf("failed to read response: %v", err))
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("Agent %s returned status %d for job %s", agent, resp.StatusCode, job.ID)
		return failure(fmt.Sprintf("agent service returned status %d", resp.StatusCode))
	}

	var result agentRunResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return failure(fmt.Sprintf("invalid agent response: %v", err))
	}

	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = "agent reported failure"
		}
		return failure(msg)
	}

	return model.AgentResult{Success: true, ResultID: result.ResultID}
}

// mockResult fabricates a successful run for development without the agent
// service.
func (c *AgentsClient) mockResult(job *model.Job, agent model.MonthlyAgentKey) model.AgentResult {
	return model.AgentResult{
		Success:  true,
		ResultID: fmt.Sprintf("mock-%s-%s", agent, uuid.NewSHA1(uuid.NameSpaceOID, []byte(job.ID+string(agent))).String()[:8]),
	}
}

func failure(msg string) model.AgentResult {
	return model.AgentResult{Success: false, Error: &msg}
}
