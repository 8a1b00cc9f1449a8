package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/squadlite/squad-lite/internal/domain"
	"github.com/squadlite/squad-lite/internal/eventbus"
	"github.com/squadlite/squad-lite/internal/runtime"
	"github.com/squadlite/squad-lite/internal/sandbox"
	"github.com/squadlite/squad-lite/internal/storetest"
)

func newTestServer(provider sandbox.Provider) (*Server, *httptest.Server) {
	agents := storetest.NewAgentRegistry()
	sandboxes := storetest.NewSandboxStore()
	orchestrator := sandbox.NewOrchestrator(provider, sandboxes, agents, nil)
	server := &Server{
		Agents:       agents,
		Tasks:        storetest.NewTaskStore(),
		Messages:     storetest.NewMessageBus(),
		Sandboxes:    sandboxes,
		Orchestrator: orchestrator,
		Events:       eventbus.NewBus(),
		StartedAt:    time.Now().UTC(),
	}
	return server, httptest.NewServer(server.Handler())
}

func doRequest(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
}

func TestHealthReturnsOK(t *testing.T) {
	_, ts := newTestServer(&fakeProvider{})
	defer ts.Close()

	resp := doRequest(t, http.MethodGet, ts.URL+"/health", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestCreateAndGetAgent(t *testing.T) {
	_, ts := newTestServer(&fakeProvider{})
	defer ts.Close()

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/agents", map[string]any{"type": "director"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var agent domain.Agent
	decodeBody(t, resp, &agent)
	if agent.Type != domain.AgentTypeDirector {
		t.Fatalf("expected director type, got %s", agent.Type)
	}

	resp = doRequest(t, http.MethodGet, ts.URL+"/api/agents/"+agent.AgentID+"/status", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 fetching status, got %d", resp.StatusCode)
	}
}

func TestCreateAgentRejectsUnknownType(t *testing.T) {
	_, ts := newTestServer(&fakeProvider{})
	defer ts.Close()

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/agents", map[string]any{"type": "manager"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var body map[string]any
	decodeBody(t, resp, &body)
	if body["statusCode"].(float64) != http.StatusBadRequest {
		t.Fatalf("expected statusCode in error body, got %+v", body)
	}
}

func TestAgentStatusUnknownAgentIsNotFound(t *testing.T) {
	_, ts := newTestServer(&fakeProvider{})
	defer ts.Close()

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/agents/does-not-exist/status", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestAgentTaskAssignsAndCompletesAsynchronously(t *testing.T) {
	sentinel := runtime.SpecialistOutputStart + "\nall done\n" + runtime.OutputEnd
	_, ts := newTestServer(&fakeProvider{stdout: sentinel, exitCode: 0})
	defer ts.Close()

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/agents", map[string]any{"type": "specialist"})
	var agent domain.Agent
	decodeBody(t, resp, &agent)

	resp = doRequest(t, http.MethodPost, ts.URL+"/api/agents/"+agent.AgentID+"/task", map[string]any{"task": "do the thing"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from task assignment, got %d", resp.StatusCode)
	}
	var assignment map[string]any
	decodeBody(t, resp, &assignment)
	taskID, _ := assignment["taskId"].(string)
	if taskID == "" {
		t.Fatalf("expected a taskId in the response, got %+v", assignment)
	}

	var task domain.Task
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp = doRequest(t, http.MethodGet, ts.URL+"/api/tasks/"+taskID, nil)
		decodeBody(t, resp, &task)
		if task.Status == domain.TaskStatusCompleted {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if task.Status != domain.TaskStatusCompleted {
		t.Fatalf("expected task to complete asynchronously, last status %s", task.Status)
	}
	if task.Result == nil || *task.Result != "all done" {
		t.Fatalf("expected extracted sentinel result, got %+v", task.Result)
	}
}

func TestAgentTaskRequiresTaskField(t *testing.T) {
	_, ts := newTestServer(&fakeProvider{})
	defer ts.Close()

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/agents", map[string]any{"type": "specialist"})
	var agent domain.Agent
	decodeBody(t, resp, &agent)

	resp = doRequest(t, http.MethodPost, ts.URL+"/api/agents/"+agent.AgentID+"/task", map[string]any{"task": ""})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestKillAgentSetsCompletedAndKilled(t *testing.T) {
	_, ts := newTestServer(&fakeProvider{})
	defer ts.Close()

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/agents", map[string]any{"type": "specialist"})
	var agent domain.Agent
	decodeBody(t, resp, &agent)

	resp = doRequest(t, http.MethodDelete, ts.URL+"/api/agents/"+agent.AgentID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var killResult map[string]any
	decodeBody(t, resp, &killResult)
	if killResult["status"] != "killed" {
		t.Fatalf("expected killed status in response, got %+v", killResult)
	}

	resp = doRequest(t, http.MethodGet, ts.URL+"/api/agents/"+agent.AgentID+"/status", nil)
	var after domain.Agent
	decodeBody(t, resp, &after)
	if after.Status != domain.AgentStatusCompleted {
		t.Fatalf("expected completed agent status, got %s", after.Status)
	}
	if after.SandboxStatus != domain.SandboxStatusKilled {
		t.Fatalf("expected killed sandbox status, got %s", after.SandboxStatus)
	}
}

func TestListTasksAndGetTaskItem(t *testing.T) {
	server, ts := newTestServer(&fakeProvider{})
	defer ts.Close()

	task, err := server.Tasks.CreateTask(context.Background(), nil, "a task", "")
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/tasks", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var tasks []domain.Task
	decodeBody(t, resp, &tasks)
	if len(tasks) != 1 || tasks[0].TaskID != task.TaskID {
		t.Fatalf("expected the one created task, got %+v", tasks)
	}

	resp = doRequest(t, http.MethodGet, ts.URL+"/api/tasks/"+task.TaskID, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestListMessagesDefaultLimit(t *testing.T) {
	_, ts := newTestServer(&fakeProvider{})
	defer ts.Close()

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/messages", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var messages []domain.Message
	decodeBody(t, resp, &messages)
	if messages != nil && len(messages) != 0 {
		t.Fatalf("expected no messages, got %d", len(messages))
	}
}

func TestSandboxStatusReportsOrchestratorState(t *testing.T) {
	_, ts := newTestServer(&fakeProvider{})
	defer ts.Close()

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/sandbox/status", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var status map[string]any
	decodeBody(t, resp, &status)
	if status["isReady"] != false {
		t.Fatalf("expected a fresh orchestrator to report not ready, got %+v", status)
	}
}

func TestStaleAgentsReportsOnlyOldWorkingOrWaiting(t *testing.T) {
	server, ts := newTestServer(&fakeProvider{})
	defer ts.Close()

	fresh, err := server.Agents.RegisterAgent(context.Background(), domain.AgentTypeSpecialist, nil, nil, nil)
	if err != nil {
		t.Fatalf("register fresh agent: %v", err)
	}
	if _, err := server.Agents.UpdateStatus(context.Background(), fresh.AgentID, domain.AgentStatusWorking, nil); err != nil {
		t.Fatalf("mark fresh working: %v", err)
	}

	idle, err := server.Agents.RegisterAgent(context.Background(), domain.AgentTypeSpecialist, nil, nil, nil)
	if err != nil {
		t.Fatalf("register idle agent: %v", err)
	}
	_ = idle

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/agents/stale?thresholdSeconds=3600", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		ThresholdSeconds int            `json:"thresholdSeconds"`
		Agents           []domain.Agent `json:"agents"`
	}
	decodeBody(t, resp, &body)
	if body.ThresholdSeconds != 3600 {
		t.Fatalf("expected threshold echoed back, got %d", body.ThresholdSeconds)
	}
	// Fresh heartbeats fall within the hour-long threshold, and the
	// idle agent is never a candidate regardless of age.
	if len(body.Agents) != 0 {
		t.Fatalf("expected no stale agents yet, got %+v", body.Agents)
	}
}

func TestStaleAgentsHelperFiltersByStatusAndAge(t *testing.T) {
	now := time.Now().UTC()
	agents := []domain.Agent{
		{AgentID: "a", Status: domain.AgentStatusWorking, LastHeartbeat: now.Add(-2 * time.Minute)},
		{AgentID: "b", Status: domain.AgentStatusWaiting, LastHeartbeat: now.Add(-10 * time.Second)},
		{AgentID: "c", Status: domain.AgentStatusIdle, LastHeartbeat: now.Add(-2 * time.Minute)},
		{AgentID: "d", Status: domain.AgentStatusCompleted, LastHeartbeat: now.Add(-2 * time.Minute)},
	}
	stale := StaleAgents(agents, now, 60*time.Second)
	if len(stale) != 1 || stale[0].AgentID != "a" {
		t.Fatalf("expected only agent a to be stale, got %+v", stale)
	}
}

func TestSandboxesListAndPauseResumeAfterAgentRegistered(t *testing.T) {
	sentinel := runtime.SpecialistOutputStart + "\nall done\n" + runtime.OutputEnd
	_, ts := newTestServer(&fakeProvider{stdout: sentinel, exitCode: 0})
	defer ts.Close()

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/agents", map[string]any{"type": "specialist"})
	var agent domain.Agent
	decodeBody(t, resp, &agent)

	resp = doRequest(t, http.MethodPost, ts.URL+"/api/agents/"+agent.AgentID+"/task", map[string]any{"task": "do the thing"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from task assignment, got %d", resp.StatusCode)
	}
	var assignment map[string]any
	decodeBody(t, resp, &assignment)
	taskID, _ := assignment["taskId"].(string)

	var task domain.Task
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp = doRequest(t, http.MethodGet, ts.URL+"/api/tasks/"+taskID, nil)
		decodeBody(t, resp, &task)
		if task.Status == domain.TaskStatusCompleted {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if task.Status != domain.TaskStatusCompleted {
		t.Fatalf("expected task to complete asynchronously, last status %s", task.Status)
	}

	resp = doRequest(t, http.MethodGet, ts.URL+"/api/sandboxes", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 listing sandboxes, got %d", resp.StatusCode)
	}
	var records []domain.SandboxRecord
	decodeBody(t, resp, &records)
	if len(records) != 1 || records[0].AgentID != agent.AgentID {
		t.Fatalf("expected one sandbox record for the registered agent, got %+v", records)
	}
	sandboxID := records[0].SandboxID

	resp = doRequest(t, http.MethodGet, ts.URL+"/api/sandboxes/"+sandboxID, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 fetching sandbox by id, got %d", resp.StatusCode)
	}
	var bySandbox []domain.SandboxRecord
	decodeBody(t, resp, &bySandbox)
	if len(bySandbox) != 1 {
		t.Fatalf("expected one record scoped to the sandbox, got %+v", bySandbox)
	}

	resp = doRequest(t, http.MethodPost, ts.URL+"/api/sandboxes/"+sandboxID+"/pause", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 pausing the sandbox, got %d", resp.StatusCode)
	}
	var pauseResult map[string]any
	decodeBody(t, resp, &pauseResult)
	if pauseResult["status"] != string(domain.SandboxRecordPaused) {
		t.Fatalf("expected paused status in response, got %+v", pauseResult)
	}

	resp = doRequest(t, http.MethodGet, ts.URL+"/api/agents/"+agent.AgentID+"/status", nil)
	var afterPause domain.Agent
	decodeBody(t, resp, &afterPause)
	if afterPause.SandboxStatus != domain.SandboxStatusPaused {
		t.Fatalf("expected agent sandboxStatus paused, got %s", afterPause.SandboxStatus)
	}

	resp = doRequest(t, http.MethodPost, ts.URL+"/api/sandboxes/"+sandboxID+"/resume", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 resuming the sandbox, got %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, ts.URL+"/api/agents/"+agent.AgentID+"/status", nil)
	var afterResume domain.Agent
	decodeBody(t, resp, &afterResume)
	if afterResume.SandboxStatus != domain.SandboxStatusActive {
		t.Fatalf("expected agent sandboxStatus active after resume, got %s", afterResume.SandboxStatus)
	}
}

func TestMethodNotAllowedOnAgentsCollection(t *testing.T) {
	_, ts := newTestServer(&fakeProvider{})
	defer ts.Close()

	resp := doRequest(t, http.MethodDelete, ts.URL+"/api/agents", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}
