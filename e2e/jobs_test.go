package e2e

import (
	"net/http"
	"testing"
)

func TestCreateJob_CSV(t *testing.T) {
	ta := setupApp(t)

	body := `{
		"organizationId": "org-e2e",
		"source": "csv",
		"file": "` + sampleCSV + `"
	}`

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/automation/jobs", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusAccepted)

	result := parseJSON(t, resp)
	if result["jobId"] == "" {
		t.Error("expected non-empty jobId")
	}
	if result["organizationId"] != "org-e2e" {
		t.Errorf("expected organizationId org-e2e, got %v", result["organizationId"])
	}
	if result["source"] != "csv" {
		t.Errorf("expected source csv, got %v", result["source"])
	}
	if result["status"] != "pending" {
		t.Errorf("expected status pending, got %v", result["status"])
	}
}

func TestCreateJob_NoAuth(t *testing.T) {
	ta := setupApp(t)

	body := `{"organizationId": "org-e2e", "source": "csv", "file": "x"}`
	resp, err := doRequest(ta.app, http.MethodPost, "/api/automation/jobs", body, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusUnauthorized)

	result := parseJSON(t, resp)
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatal("expected error object in response")
	}
	if errObj["code"] != "UNAUTHORIZED" {
		t.Errorf("expected error code UNAUTHORIZED, got %v", errObj["code"])
	}
}

func TestCreateJob_MissingFile(t *testing.T) {
	ta := setupApp(t)

	// CSV source without a file payload
	body := `{"organizationId": "org-e2e", "source": "csv"}`
	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/automation/jobs", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)

	result := parseJSON(t, resp)
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatal("expected error object in response")
	}
	if errObj["code"] != "VALIDATION_ERROR" {
		t.Errorf("expected error code VALIDATION_ERROR, got %v", errObj["code"])
	}
}

func TestCreateJob_InvalidSource(t *testing.T) {
	ta := setupApp(t)

	body := `{"organizationId": "org-e2e", "source": "ftp", "file": "x"}`
	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/automation/jobs", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
}

func TestManualJob_CompletesWithoutApprovals(t *testing.T) {
	ta := setupApp(t)

	body := `{
		"organizationId": "org-e2e",
		"source": "manual",
		"manualData": [
			{"referralSource": "Dr. Patel", "patientCount": 5, "production": 4200, "month": "2025-07"},
			{"referralSource": "Community Fair", "patientCount": 3, "production": 950, "month": "2025-07"}
		]
	}`
	jobID := createJob(t, ta.app, body)

	status := waitForStatus(t, ta.app, jobID, "completed")
	if status["progress"] != float64(100) {
		t.Errorf("expected progress 100, got %v", status["progress"])
	}

	steps, ok := status["steps"].(map[string]interface{})
	if !ok {
		t.Fatal("expected steps map in status")
	}
	for _, skipped := range []string{"pms_parser", "admin_approval", "client_approval"} {
		step, ok := steps[skipped].(map[string]interface{})
		if !ok {
			t.Fatalf("missing step %s", skipped)
		}
		if step["status"] != "skipped" {
			t.Errorf("expected step %s skipped, got %v", skipped, step["status"])
		}
	}

	summary, ok := status["summary"].(map[string]interface{})
	if !ok {
		t.Fatal("expected summary on completed job")
	}
	if summary["userTasksCreated"] != float64(2) {
		t.Errorf("expected 2 user tasks, got %v", summary["userTasksCreated"])
	}
	if summary["systemTasksCreated"] != float64(4) {
		t.Errorf("expected 4 system tasks, got %v", summary["systemTasksCreated"])
	}
}

func TestJobStatus_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/automation/jobs/no-such-job", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNotFound)

	result := parseJSON(t, resp)
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatal("expected error object in response")
	}
	if errObj["code"] != "NOT_FOUND" {
		t.Errorf("expected error code NOT_FOUND, got %v", errObj["code"])
	}
}

func TestListAndActiveJobs(t *testing.T) {
	ta := setupApp(t)

	manual := `{
		"organizationId": "org-e2e",
		"source": "manual",
		"manualData": [{"referralSource": "Dr. Patel", "patientCount": 1, "production": 100, "month": "2025-07"}]
	}`
	doneID := createJob(t, ta.app, manual)
	waitForStatus(t, ta.app, doneID, "completed")

	csv := `{"organizationId": "org-e2e", "source": "csv", "file": "` + sampleCSV + `"}`
	parkedID := createJob(t, ta.app, csv)
	waitForStatus(t, ta.app, parkedID, "awaiting_approval")

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/automation/jobs", "")
	if err != nil {
		t.Fatalf("list request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	result := parseJSON(t, resp)
	jobs, ok := result["jobs"].([]interface{})
	if !ok {
		t.Fatal("expected jobs array")
	}
	if len(jobs) != 2 {
		t.Errorf("expected 2 jobs, got %d", len(jobs))
	}

	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/automation/jobs?status=completed", "")
	if err != nil {
		t.Fatalf("filtered list request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	result = parseJSON(t, resp)
	jobs = result["jobs"].([]interface{})
	if len(jobs) != 1 {
		t.Fatalf("expected 1 completed job, got %d", len(jobs))
	}

	// /active excludes the completed job
	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/automation/jobs/active", "")
	if err != nil {
		t.Fatalf("active request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	result = parseJSON(t, resp)
	if result["total"] != float64(1) {
		t.Errorf("expected 1 active job, got %v", result["total"])
	}
	active := result["jobs"].([]interface{})
	first := active[0].(map[string]interface{})
	if first["id"] != parkedID {
		t.Errorf("expected active job %s, got %v", parkedID, first["id"])
	}
}

func TestJobTasks_AfterCompletion(t *testing.T) {
	ta := setupApp(t)

	body := `{
		"organizationId": "org-e2e",
		"source": "manual",
		"manualData": [{"referralSource": "Dr. Patel", "patientCount": 1, "production": 100, "month": "2025-07"}]
	}`
	jobID := createJob(t, ta.app, body)
	waitForStatus(t, ta.app, jobID, "completed")

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/automation/jobs/"+jobID+"/tasks", "")
	if err != nil {
		t.Fatalf("tasks request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	// 1 manual record + 4 task-producing agents
	if result["total"] != float64(5) {
		t.Errorf("expected 5 tasks, got %v", result["total"])
	}
	tasks := result["tasks"].([]interface{})
	origins := map[string]int{}
	for _, raw := range tasks {
		task := raw.(map[string]interface{})
		origins[task["origin"].(string)]++
	}
	if origins["user"] != 1 || origins["system"] != 4 {
		t.Errorf("expected 1 user and 4 system tasks, got %v", origins)
	}
}

func TestDeleteJob(t *testing.T) {
	ta := setupApp(t)

	body := `{
		"organizationId": "org-e2e",
		"source": "manual",
		"manualData": [{"referralSource": "Dr. Patel", "patientCount": 1, "production": 100, "month": "2025-07"}]
	}`
	jobID := createJob(t, ta.app, body)
	waitForStatus(t, ta.app, jobID, "completed")

	resp, err := doAuthRequest(t, ta.app, http.MethodDelete, "/api/automation/jobs/"+jobID, "")
	if err != nil {
		t.Fatalf("delete request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNoContent)

	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/automation/jobs/"+jobID, "")
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}
