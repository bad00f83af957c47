package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/practicepulse/api/internal/auth"
	"github.com/practicepulse/api/internal/client"
	"github.com/practicepulse/api/internal/config"
	"github.com/practicepulse/api/internal/handler"
	"github.com/practicepulse/api/internal/middleware"
	"github.com/practicepulse/api/internal/pipeline"
	"github.com/practicepulse/api/internal/service"
	"github.com/practicepulse/api/internal/store"
)

const testJWTSecret = "test-secret-for-e2e"

const sampleCSV = "Referral Source,Patient Count,Production,Month\\n" +
	"Dr. Nguyen,14,18250.00,2025-07\\n" +
	"Google Business Profile,22,30125.75,2025-07\\n"

// testApp holds all components needed for testing
type testApp struct {
	app *fiber.App
}

// setupApp creates a Fiber app wired like main.go but fully in-process: the
// in-memory store instead of Redis, the inline enqueuer instead of asynq, and
// an unconfigured agent client so sub-agents return mock results.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	jobStore := store.NewMemoryStore()
	validate := validator.New()

	agentsClient := client.NewAgentsClient(&config.AgentsConfig{}) // no base URL → mock
	engine := pipeline.NewEngine(jobStore, agentsClient, nil, time.Minute)
	enqueuer := service.NewInlineEnqueuer(engine)
	automationService := service.NewAutomationService(jobStore, engine, enqueuer)

	automationHandler := handler.NewAutomationHandler(automationService, validate)
	authMiddleware := middleware.NewAuthMiddleware(testJWTSecret)
	rateLimiter := middleware.NewRateLimiter(nil) // nil redis → limits disabled

	app := fiber.New(fiber.Config{
		BodyLimit: 20 * 1024 * 1024,
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"redis":  false,
				"agents": agentsClient.IsConfigured(),
				"auth":   true,
			},
		})
	})

	api := app.Group("/api", authMiddleware.Authenticate())

	jobs := api.Group("/automation/jobs")
	jobs.Post("/", rateLimiter.JobsLimit(10000), automationHandler.Create)
	jobs.Get("/", automationHandler.List)
	jobs.Get("/active", automationHandler.Active)
	jobs.Get("/:jobId", automationHandler.Status)
	jobs.Get("/:jobId/tasks", automationHandler.Tasks)
	jobs.Get("/:jobId/response", automationHandler.GetResponse)
	jobs.Put("/:jobId/response", automationHandler.UpdateResponse)
	jobs.Post("/:jobId/approval", rateLimiter.ApprovalsLimit(10000), automationHandler.Approve)
	jobs.Post("/:jobId/retry", rateLimiter.RetriesLimit(10000), automationHandler.Retry)
	jobs.Delete("/:jobId", automationHandler.Delete)

	return &testApp{app: app}
}

// generateToken creates an HMAC JWT for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	signed, err := auth.GenerateToken("test-user-123", "test@example.com", "admin", testJWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// createJob posts a job and returns its id.
func createJob(t *testing.T, app *fiber.App, body string) string {
	t.Helper()
	resp, err := doAuthRequest(t, app, http.MethodPost, "/api/automation/jobs", body)
	if err != nil {
		t.Fatalf("create request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)
	result := parseJSON(t, resp)
	jobID, ok := result["jobId"].(string)
	if !ok || jobID == "" {
		t.Fatalf("expected jobId in response, got %v", result)
	}
	return jobID
}

// getStatus fetches the job's status projection.
func getStatus(t *testing.T, app *fiber.App, jobID string) map[string]interface{} {
	t.Helper()
	resp, err := doAuthRequest(t, app, http.MethodGet, "/api/automation/jobs/"+jobID, "")
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	return parseJSON(t, resp)
}

// waitForStatus polls the status endpoint until the job reaches the wanted
// status. The inline enqueuer runs jobs on a goroutine, so progression is
// asynchronous even in-process.
func waitForStatus(t *testing.T, app *fiber.App, jobID, want string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var last map[string]interface{}
	for time.Now().Before(deadline) {
		last = getStatus(t, app, jobID)
		if last["status"] == want {
			return last
		}
		if last["status"] == "failed" && want != "failed" {
			t.Fatalf("job %s failed while waiting for %s: %v", jobID, want, last["error"])
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s, last: %v", jobID, want, last["status"])
	return nil
}

// approve toggles an approval gate and expects 200.
func approve(t *testing.T, app *fiber.App, jobID, which string) map[string]interface{} {
	t.Helper()
	body := fmt.Sprintf(`{"which": %q, "value": true}`, which)
	resp, err := doAuthRequest(t, app, http.MethodPost, "/api/automation/jobs/"+jobID+"/approval", body)
	if err != nil {
		t.Fatalf("approval request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	return parseJSON(t, resp)
}
