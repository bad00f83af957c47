package e2e

import (
	"net/http"
	"testing"
)

func TestCSVJob_FullApprovalFlow(t *testing.T) {
	ta := setupApp(t)

	body := `{"organizationId": "org-e2e", "source": "csv", "file": "` + sampleCSV + `"}`
	jobID := createJob(t, ta.app, body)

	// The run halts at the admin gate.
	status := waitForStatus(t, ta.app, jobID, "awaiting_approval")
	if status["currentStep"] != "admin_approval" {
		t.Fatalf("expected currentStep admin_approval, got %v", status["currentStep"])
	}

	result := approve(t, ta.app, jobID, "admin")
	if result["isApproved"] != true {
		t.Errorf("expected isApproved true, got %v", result["isApproved"])
	}

	// Then at the client gate.
	status = waitForStatus(t, ta.app, jobID, "awaiting_approval")
	if status["currentStep"] != "client_approval" {
		t.Fatalf("expected currentStep client_approval, got %v", status["currentStep"])
	}

	approve(t, ta.app, jobID, "client")

	status = waitForStatus(t, ta.app, jobID, "completed")
	if status["progress"] != float64(100) {
		t.Errorf("expected progress 100, got %v", status["progress"])
	}

	summary, ok := status["summary"].(map[string]interface{})
	if !ok {
		t.Fatal("expected summary on completed job")
	}
	// 2 CSV records + 4 task-producing agents
	if summary["totalTasksCreated"] != float64(6) {
		t.Errorf("expected 6 total tasks, got %v", summary["totalTasksCreated"])
	}
}

func TestApproval_RepeatIsNoOp(t *testing.T) {
	ta := setupApp(t)

	body := `{"organizationId": "org-e2e", "source": "csv", "file": "` + sampleCSV + `"}`
	jobID := createJob(t, ta.app, body)
	waitForStatus(t, ta.app, jobID, "awaiting_approval")

	approve(t, ta.app, jobID, "admin")
	waitForStatus(t, ta.app, jobID, "awaiting_approval")

	// Repeating the same approval changes nothing and does not error.
	result := approve(t, ta.app, jobID, "admin")
	if result["isApproved"] != true {
		t.Errorf("expected isApproved true, got %v", result["isApproved"])
	}

	status := getStatus(t, ta.app, jobID)
	if status["currentStep"] != "client_approval" {
		t.Errorf("expected currentStep client_approval, got %v", status["currentStep"])
	}
}

func TestApproval_InvalidBody(t *testing.T) {
	ta := setupApp(t)

	body := `{"organizationId": "org-e2e", "source": "csv", "file": "` + sampleCSV + `"}`
	jobID := createJob(t, ta.app, body)
	waitForStatus(t, ta.app, jobID, "awaiting_approval")

	resp, err := doAuthRequest(t, ta.app, http.MethodPost,
		"/api/automation/jobs/"+jobID+"/approval", `{"which": "ceo", "value": true}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)

	result := parseJSON(t, resp)
	errObj := result["error"].(map[string]interface{})
	if errObj["code"] != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %v", errObj["code"])
	}
}
