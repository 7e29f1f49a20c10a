package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/patrol/pkg/engine"
	"github.com/entrhq/patrol/pkg/progress"
	"github.com/entrhq/patrol/pkg/suite"
)

func submitYAML(t *testing.T, h *testHarness, doc string) string {
	t.Helper()

	resp, err := http.Post(h.srv.URL+"/api/v1/executions", "application/yaml", strings.NewReader(doc))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body["id"])
	require.Equal(t, "pending", body["status"])
	return body["id"]
}

func decodeError(t *testing.T, r io.Reader) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.NewDecoder(r).Decode(&resp))
	return resp
}

func TestSubmitYAMLBody(t *testing.T) {
	h := newTestServer(t, passingRunner())

	id := submitYAML(t, h, suiteYAML)

	info := waitTerminal(t, h.eng, id)
	assert.Equal(t, engine.StatusCompleted, info.Status)
	assert.Equal(t, 2, info.Totals.Passed)
}

func TestSubmitJSONEnvelope(t *testing.T) {
	h := newTestServer(t, passingRunner())

	payload, err := json.Marshal(submitRequest{
		Suite:   suiteYAML,
		Options: submitOptions{Mode: "parallel"},
	})
	require.NoError(t, err)

	resp, err := http.Post(h.srv.URL+"/api/v1/executions", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	info := waitTerminal(t, h.eng, body["id"])
	assert.Equal(t, engine.ModeParallel, info.Mode)
	assert.Equal(t, engine.StatusCompleted, info.Status)
}

func TestSubmitRejectsInvalidSuite(t *testing.T) {
	h := newTestServer(t, passingRunner())

	doc := `name: broken
scenarios:
  - name: login
    requirement: user can sign in
    test_type: functional
`
	resp, err := http.Post(h.srv.URL+"/api/v1/executions", "application/yaml", strings.NewReader(doc))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeError(t, resp.Body)
	assert.Equal(t, "login", body.Scenario)
	assert.Equal(t, "url", body.Field)
	assert.Equal(t, "is required", body.Reason)
	assert.Contains(t, body.Error, "invalid scenario")

	// No execution was created for the rejected document.
	assert.Empty(t, h.eng.List())
}

func TestSubmitRejectsBadEnvelope(t *testing.T) {
	h := newTestServer(t, passingRunner())

	post := func(payload string) *http.Response {
		t.Helper()
		resp, err := http.Post(h.srv.URL+"/api/v1/executions", "application/json", strings.NewReader(payload))
		require.NoError(t, err)
		return resp
	}

	t.Run("malformed json", func(t *testing.T) {
		resp := post(`{"suite": `)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, decodeError(t, resp.Body).Error, "invalid request envelope")
	})

	t.Run("missing suite field", func(t *testing.T) {
		resp := post(`{"options": {}}`)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, decodeError(t, resp.Body).Error, "suite is required")
	})

	t.Run("unknown mode", func(t *testing.T) {
		payload, err := json.Marshal(submitRequest{Suite: suiteYAML, Options: submitOptions{Mode: "turbo"}})
		require.NoError(t, err)
		resp := post(string(payload))
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, decodeError(t, resp.Body).Error, `mode "turbo"`)
	})
}

func TestSubmitAfterEngineClose(t *testing.T) {
	h := newTestServer(t, passingRunner())
	h.eng.Close()

	resp, err := http.Post(h.srv.URL+"/api/v1/executions", "application/yaml", strings.NewReader(suiteYAML))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestExecutionStatus(t *testing.T) {
	h := newTestServer(t, passingRunner())

	id := submitYAML(t, h, suiteYAML)
	waitTerminal(t, h.eng, id)

	t.Run("known execution", func(t *testing.T) {
		resp, err := http.Get(h.srv.URL + "/api/v1/executions/" + id)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var info engine.StatusInfo
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
		assert.Equal(t, id, info.ID)
		assert.Equal(t, "checkout", info.SuiteName)
		assert.Equal(t, engine.StatusCompleted, info.Status)
		assert.Equal(t, 2, info.Totals.Passed)
	})

	t.Run("unknown execution", func(t *testing.T) {
		resp, err := http.Get(h.srv.URL + "/api/v1/executions/nope")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Contains(t, decodeError(t, resp.Body).Error, "execution not found")
	})
}

func TestListExecutions(t *testing.T) {
	h := newTestServer(t, passingRunner())

	first := submitYAML(t, h, suiteYAML)
	second := submitYAML(t, h, suiteYAML)
	waitTerminal(t, h.eng, first)
	waitTerminal(t, h.eng, second)

	resp, err := http.Get(h.srv.URL + "/api/v1/executions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Executions []engine.StatusInfo `json:"executions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Executions, 2)
	assert.Equal(t, first, body.Executions[0].ID)
	assert.Equal(t, second, body.Executions[1].ID)
}

func TestExecutionReportFormats(t *testing.T) {
	h := newTestServer(t, passingRunner())

	id := submitYAML(t, h, suiteYAML)
	waitTerminal(t, h.eng, id)

	get := func(query string) *http.Response {
		t.Helper()
		resp, err := http.Get(h.srv.URL + "/api/v1/executions/" + id + "/report" + query)
		require.NoError(t, err)
		return resp
	}

	t.Run("json by default", func(t *testing.T) {
		resp := get("")
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

		var rep struct {
			SuiteName string `json:"suite_name"`
			Total     int    `json:"total"`
			Passed    int    `json:"passed"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&rep))
		assert.Equal(t, "checkout", rep.SuiteName)
		assert.Equal(t, 2, rep.Total)
		assert.Equal(t, 2, rep.Passed)
	})

	t.Run("markdown", func(t *testing.T) {
		resp := get("?format=markdown")
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/markdown")

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "checkout")
	})

	t.Run("text", func(t *testing.T) {
		resp := get("?format=text")
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "login")
	})

	t.Run("unknown format", func(t *testing.T) {
		resp := get("?format=xml")
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, decodeError(t, resp.Body).Error, `unknown report format "xml"`)
	})

	t.Run("unknown execution", func(t *testing.T) {
		resp, err := http.Get(h.srv.URL + "/api/v1/executions/nope/report")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func readEvents(t *testing.T, r io.Reader) []progress.Event {
	t.Helper()
	var events []progress.Event
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev progress.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

func TestEventsStreamUntilTerminal(t *testing.T) {
	gate := newGateRunner()
	h := newTestServer(t, gate)

	st, err := suite.Parse([]byte(suiteYAML))
	require.NoError(t, err)
	id, err := h.eng.Submit(context.Background(), st, engine.Options{})
	require.NoError(t, err)

	// The first scenario is parked inside the runner, so nothing can be
	// published while we connect.
	require.Equal(t, "login", waitArrival(t, gate.arrive))

	resp, err := http.Get(h.srv.URL + "/api/v1/executions/" + id + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected", strings.TrimRight(line, "\n"))

	close(gate.proceed)

	events := readEvents(t, reader)
	require.NotEmpty(t, events)

	types := make([]progress.EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
		assert.Equal(t, id, ev.ExecutionID)
	}
	assert.Equal(t, []progress.EventType{
		progress.EventScenarioCompleted,
		progress.EventScenarioStarted,
		progress.EventScenarioCompleted,
		progress.EventExecutionComplete,
	}, types)
	assert.True(t, events[len(events)-1].Terminal())
}

func TestEventsAfterTerminalEndsImmediately(t *testing.T) {
	h := newTestServer(t, passingRunner())

	id := submitYAML(t, h, suiteYAML)
	waitTerminal(t, h.eng, id)

	resp, err := http.Get(h.srv.URL + "/api/v1/executions/" + id + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The broadcaster has already closed, so the stream ends without
	// delivering any events.
	assert.Empty(t, readEvents(t, resp.Body))
}

func TestEventsUnknownExecution(t *testing.T) {
	h := newTestServer(t, passingRunner())

	resp, err := http.Get(h.srv.URL + "/api/v1/executions/nope/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
}
