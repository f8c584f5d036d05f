package agent_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronoplan/chronoplan/agent"
	"github.com/chronoplan/chronoplan/approval"
	"github.com/chronoplan/chronoplan/interpret"
	"github.com/chronoplan/chronoplan/llm"
	_ "github.com/chronoplan/chronoplan/llm/providers"
	"github.com/chronoplan/chronoplan/model"
	"github.com/chronoplan/chronoplan/provider/nylas"
	"github.com/chronoplan/chronoplan/provider/reclaim"
	"github.com/chronoplan/chronoplan/usercontext"
)

// scriptedLLM serves OpenAI-format responses from per-tool queues, so a
// test can script exactly what each interpreter stage extracts.
type scriptedLLM struct {
	t      *testing.T
	mu     sync.Mutex
	queues map[string][]string
	server *httptest.Server
}

func newScriptedLLM(t *testing.T) *scriptedLLM {
	s := &scriptedLLM{t: t, queues: make(map[string][]string)}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.server.Close)
	return s
}

// on queues one tool-call response for the named tool.
func (s *scriptedLLM) on(tool, arguments string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[tool] = append(s.queues[tool], arguments)
}

func (s *scriptedLLM) handle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ToolChoice struct {
			Function struct {
				Name string `json:"name"`
			} `json:"function"`
		} `json:"tool_choice"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.t.Errorf("mock llm: bad request body: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	tool := body.ToolChoice.Function.Name

	s.mu.Lock()
	queue := s.queues[tool]
	if len(queue) == 0 {
		s.mu.Unlock()
		s.t.Errorf("mock llm: unexpected call to tool %q", tool)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	args := queue[0]
	s.queues[tool] = queue[1:]
	s.mu.Unlock()

	quoted, _ := json.Marshal(args)
	fmt.Fprintf(w, `{
		"id": "chatcmpl-1",
		"model": "test-model",
		"choices": [{
			"message": {
				"role": "assistant",
				"tool_calls": [{
					"id": "call-1",
					"type": "function",
					"function": {"name": %q, "arguments": %s}
				}]
			},
			"finish_reason": "tool_calls"
		}]
	}`, tool, quoted)
}

func newDispatcher(t *testing.T, mock *scriptedLLM, reclaimURL, nylasURL string) *agent.Dispatcher {
	registry := model.NewDefaultRegistry("test", &model.EndpointConfig{
		Provider: "openai",
		URL:      mock.server.URL,
		Model:    "test-model",
	})
	client := llm.NewClient(registry, llm.WithRetryConfig(llm.RetryConfig{
		MaxAttempts:       1,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 1.0,
		MaxBackoff:        time.Millisecond,
	}))
	interp := interpret.New(client)

	var opts []agent.Option
	if reclaimURL != "" {
		opts = append(opts, agent.WithReclaimOptions(reclaim.WithBaseURL(reclaimURL)))
	}
	if nylasURL != "" {
		opts = append(opts, agent.WithNylasOptions(nylas.WithBaseURL(nylasURL)))
	}
	return agent.New(interp, opts...)
}

// Wednesday 2026-03-11 10:00 UTC.
func testUserContext(t *testing.T, creds map[string]string) *usercontext.Context {
	t.Helper()
	uctx, err := usercontext.Resolve(usercontext.Params{
		Timezone:    "UTC",
		CurrentDate: "2026-03-11",
		CurrentTime: "10:00:00",
		UserEmail:   "me@corp.com",
		Credentials: creds,
	}, time.Now)
	require.NoError(t, err)
	return uctx
}

func allCredentials() map[string]string {
	return map[string]string{
		usercontext.CredentialReclaimAPIKey: "rk-test",
		usercontext.CredentialNylasAPIKey:   "ny-test",
		usercontext.CredentialNylasGrantID:  "grant-1",
	}
}

func queryArgs(t *testing.T, query string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(agent.Arguments{Query: query})
	require.NoError(t, err)
	return raw
}

// fakeReclaim is a minimal task provider: a fixed listing plus a log of
// mutation calls.
type fakeReclaim struct {
	mu        sync.Mutex
	listing   string
	listings  int
	mutations []string
	created   []reclaim.Task
	server    *httptest.Server
}

func (f *fakeReclaim) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listings
}

func newFakeReclaim(t *testing.T, listing string) *fakeReclaim {
	f := &fakeReclaim{listing: listing}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/tasks":
			f.listings++
			fmt.Fprint(w, f.listing)
		case r.Method == http.MethodPost && r.URL.Path == "/tasks":
			var task reclaim.Task
			_ = json.NewDecoder(r.Body).Decode(&task)
			task.ID = 99
			f.created = append(f.created, task)
			_ = json.NewEncoder(w).Encode(task)
		default:
			f.mutations = append(f.mutations, r.Method+" "+r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

// fakeNylas is a minimal calendar provider: a fixed listing plus a log
// of created events. Listings honor the start/end query window the way
// the provider does, filtering on event start.
type fakeNylas struct {
	mu      sync.Mutex
	listing string
	created []nylas.Event
	deletes []string
	server  *httptest.Server
}

func newFakeNylas(t *testing.T, listing string) *fakeNylas {
	f := &fakeNylas{listing: listing}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/grants/grant-1/events":
			var all []nylas.Event
			_ = json.Unmarshal([]byte(f.listing), &all)
			start, _ := strconv.ParseInt(r.URL.Query().Get("start"), 10, 64)
			end, _ := strconv.ParseInt(r.URL.Query().Get("end"), 10, 64)
			visible := make([]nylas.Event, 0, len(all))
			for _, e := range all {
				if e.When.StartTime >= start && (end == 0 || e.When.StartTime <= end) {
					visible = append(visible, e)
				}
			}
			env := map[string]any{"request_id": "req", "data": visible}
			_ = json.NewEncoder(w).Encode(env)
		case r.Method == http.MethodPost && r.URL.Path == "/grants/grant-1/events":
			var event nylas.Event
			_ = json.NewDecoder(r.Body).Decode(&event)
			event.ID = "ev-new"
			f.created = append(f.created, event)
			env := map[string]any{"request_id": "req", "data": event}
			_ = json.NewEncoder(w).Encode(env)
		case r.Method == http.MethodDelete:
			f.deletes = append(f.deletes, r.URL.Path)
			fmt.Fprint(w, `{"request_id":"req"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func TestExecute_Validation(t *testing.T) {
	d := newDispatcher(t, newScriptedLLM(t), "", "")
	uctx := testUserContext(t, allCredentials())

	_, err := d.Execute(context.Background(), "send_email", queryArgs(t, "hi"), uctx)
	assert.ErrorIs(t, err, agent.ErrUnknownTool)

	_, err = d.Execute(context.Background(), agent.ToolManageProductivity, json.RawMessage(`{}`), uctx)
	assert.Error(t, err)
}

func TestManage_NeedsSetupWithoutCredentials(t *testing.T) {
	d := newDispatcher(t, newScriptedLLM(t), "", "")
	uctx := testUserContext(t, nil)

	resp, err := d.Execute(context.Background(), agent.ToolManageProductivity,
		queryArgs(t, "create a task to write the report"), uctx)
	require.NoError(t, err)
	assert.True(t, resp.NeedsSetup)
	assert.Contains(t, resp.Message, usercontext.CredentialReclaimAPIKey)
}

func TestManage_TaskCreate_DuplicateGateThenApprove(t *testing.T) {
	mock := newScriptedLLM(t)
	mock.on("route_request", `{"provider":"task","intent_type":"task"}`)
	mock.on("extract_task_intent", `{"operation":"create","task":{"title":"Review Q4 budget"}}`)

	tasks := newFakeReclaim(t, `[{"id":1,"title":"Review Q4 budget","status":"NEW"}]`)
	d := newDispatcher(t, mock, tasks.server.URL, "")
	uctx := testUserContext(t, allCredentials())
	args := queryArgs(t, "create a task to review the Q4 budget")

	resp, err := d.Execute(context.Background(), agent.ToolManageProductivity, args, uctx)
	require.NoError(t, err)
	assert.True(t, resp.NeedsApproval)
	assert.Equal(t, approval.KindTaskCreateDuplicate, resp.ActionType)
	require.NotEmpty(t, resp.ActionData)
	assert.Empty(t, tasks.created, "nothing is created before approval")

	// The approved retry executes without re-running the gate.
	retry, err := d.Approve(context.Background(), agent.ToolManageProductivity,
		args, resp.ActionData, true, uctx)
	require.NoError(t, err)
	require.NotNil(t, retry.Success)
	assert.True(t, *retry.Success)
	assert.False(t, retry.NeedsApproval)
	assert.Equal(t, "task_created", retry.Action)
	require.Len(t, tasks.created, 1)
	assert.Equal(t, "Review Q4 budget", tasks.created[0].Title)
}

func TestManage_TaskComplete_ResolvesReference(t *testing.T) {
	mock := newScriptedLLM(t)
	mock.on("route_request", `{"provider":"task","intent_type":"task"}`)
	mock.on("extract_task_intent", `{"operation":"complete","task_reference":"the report"}`)
	mock.on("resolve_entity_reference", `{"found":true,"id":"1","confidence":0.95}`)

	tasks := newFakeReclaim(t, `[
		{"id":1,"title":"Write report","status":"NEW"},
		{"id":2,"title":"Plan offsite","status":"SCHEDULED"}
	]`)
	d := newDispatcher(t, mock, tasks.server.URL, "")
	uctx := testUserContext(t, allCredentials())

	resp, err := d.Execute(context.Background(), agent.ToolManageProductivity,
		queryArgs(t, "mark the report done"), uctx)
	require.NoError(t, err)
	require.NotNil(t, resp.Success)
	assert.True(t, *resp.Success)
	assert.Equal(t, "task_completed", resp.Action)
	assert.Contains(t, resp.Message, "Write report")
	assert.Equal(t, []string{"POST /planner/done/task/1"}, tasks.mutations)
}

func TestManage_TaskComplete_LowConfidenceIsNotFound(t *testing.T) {
	mock := newScriptedLLM(t)
	mock.on("route_request", `{"provider":"task","intent_type":"task"}`)
	mock.on("extract_task_intent", `{"operation":"complete","task_reference":"that thing"}`)
	// Below the 0.8 gate: the claim is demoted to not-found.
	mock.on("resolve_entity_reference", `{"found":true,"id":"1","confidence":0.5}`)

	tasks := newFakeReclaim(t, `[{"id":1,"title":"Write report","status":"NEW"}]`)
	d := newDispatcher(t, mock, tasks.server.URL, "")
	uctx := testUserContext(t, allCredentials())

	resp, err := d.Execute(context.Background(), agent.ToolManageProductivity,
		queryArgs(t, "finish that thing"), uctx)
	require.NoError(t, err)
	require.NotNil(t, resp.Success)
	assert.False(t, *resp.Success)
	assert.Equal(t, agent.CodeNotFound, resp.Code)
	assert.Empty(t, tasks.mutations)
}

func TestManage_BulkComplete_GateThenExecute(t *testing.T) {
	mock := newScriptedLLM(t)
	mock.on("route_request", `{"provider":"task","intent_type":"task"}`)
	mock.on("extract_task_intent", `{"operation":"complete"}`)

	tasks := newFakeReclaim(t, `[
		{"id":1,"title":"Write report","status":"NEW"},
		{"id":2,"title":"Plan offsite","status":"NEW"}
	]`)
	d := newDispatcher(t, mock, tasks.server.URL, "")
	uctx := testUserContext(t, allCredentials())
	args := queryArgs(t, "complete all my tasks")

	resp, err := d.Execute(context.Background(), agent.ToolManageProductivity, args, uctx)
	require.NoError(t, err)
	assert.True(t, resp.NeedsApproval)
	assert.Equal(t, approval.KindBulkComplete, resp.ActionType)

	rec, err := approval.Decode(resp.ActionData)
	require.NoError(t, err)
	assert.Len(t, rec.BulkMatches, 2)

	retry, err := d.Approve(context.Background(), agent.ToolManageProductivity,
		args, resp.ActionData, true, uctx)
	require.NoError(t, err)
	require.NotNil(t, retry.Success)
	assert.True(t, *retry.Success)
	assert.Equal(t, "bulk_completed", retry.Action)
	assert.Contains(t, retry.Message, "2 of 2")
	assert.ElementsMatch(t, []string{
		"POST /planner/done/task/1",
		"POST /planner/done/task/2",
	}, tasks.mutations)
}

func TestManage_BulkUpdate_GateThenExecute(t *testing.T) {
	mock := newScriptedLLM(t)
	mock.on("route_request", `{"provider":"task","intent_type":"task"}`)
	mock.on("extract_task_intent", `{"operation":"update","updates":{"priority":"P1"}}`)

	tasks := newFakeReclaim(t, `[
		{"id":1,"title":"Write report","status":"NEW"},
		{"id":2,"title":"Plan offsite","status":"NEW"}
	]`)
	d := newDispatcher(t, mock, tasks.server.URL, "")
	uctx := testUserContext(t, allCredentials())
	args := queryArgs(t, "update all my tasks to P1")

	resp, err := d.Execute(context.Background(), agent.ToolManageProductivity, args, uctx)
	require.NoError(t, err)
	assert.True(t, resp.NeedsApproval)
	assert.Equal(t, approval.KindBulkUpdate, resp.ActionType)
	assert.Empty(t, tasks.mutations, "nothing changes before approval")

	rec, err := approval.Decode(resp.ActionData)
	require.NoError(t, err)
	assert.Len(t, rec.BulkMatches, 2)
	require.NotNil(t, rec.TaskIntent)

	retry, err := d.Approve(context.Background(), agent.ToolManageProductivity,
		args, resp.ActionData, true, uctx)
	require.NoError(t, err)
	require.NotNil(t, retry.Success)
	assert.True(t, *retry.Success)
	assert.Equal(t, "bulk_updated", retry.Action)
	assert.Contains(t, retry.Message, "2 of 2")
	assert.ElementsMatch(t, []string{
		"PATCH /tasks/1",
		"PATCH /tasks/2",
	}, tasks.mutations)
}

func TestManage_EventCreate_SoloConflictAutoReschedules(t *testing.T) {
	mock := newScriptedLLM(t)
	mock.on("route_request", `{"provider":"calendar","intent_type":"event"}`)
	mock.on("extract_event_intent",
		`{"operation":"create","title":"Focus block","start":"2026-03-12 10:00","end":"2026-03-12 11:00"}`)

	standupStart := time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)
	calendar := newFakeNylas(t, fmt.Sprintf(
		`[{"id":"ev-1","title":"Standup","when":{"start_time":%d,"end_time":%d}}]`,
		standupStart.Unix(), standupStart.Add(time.Hour).Unix()))

	d := newDispatcher(t, mock, "", calendar.server.URL)
	uctx := testUserContext(t, allCredentials())

	resp, err := d.Execute(context.Background(), agent.ToolManageProductivity,
		queryArgs(t, "block an hour of focus time tomorrow at 10"), uctx)
	require.NoError(t, err)
	require.NotNil(t, resp.Success)
	assert.True(t, *resp.Success)
	assert.False(t, resp.NeedsApproval, "solo events reschedule without approval")
	assert.Contains(t, resp.Message, "rescheduled")

	// 11:00 end plus the 10 minute buffer rounds up to 11:15.
	require.Len(t, calendar.created, 1)
	want := time.Date(2026, 3, 12, 11, 15, 0, 0, time.UTC)
	assert.Equal(t, want.Unix(), calendar.created[0].When.StartTime)
}

func TestManage_EventCreateWithParticipants_GateThenApprove(t *testing.T) {
	mock := newScriptedLLM(t)
	mock.on("route_request", `{"provider":"calendar","intent_type":"event"}`)
	mock.on("extract_event_intent",
		`{"operation":"create","title":"Design review","start":"2026-03-12 14:00","end":"2026-03-12 15:00","participants":["Jordan Lee"]}`)

	calendar := newFakeNylas(t, `[]`)
	d := newDispatcher(t, mock, "", calendar.server.URL)
	uctx := testUserContext(t, allCredentials())
	args := queryArgs(t, "schedule a design review with Jordan tomorrow at 2pm")

	resp, err := d.Execute(context.Background(), agent.ToolManageProductivity, args, uctx)
	require.NoError(t, err)
	assert.True(t, resp.NeedsApproval)
	assert.Equal(t, approval.KindEventCreateWithParticipants, resp.ActionType)
	assert.Empty(t, calendar.created)

	retry, err := d.Approve(context.Background(), agent.ToolManageProductivity,
		args, resp.ActionData, true, uctx)
	require.NoError(t, err)
	require.NotNil(t, retry.Success)
	assert.True(t, *retry.Success)
	assert.False(t, retry.NeedsApproval, "an approved retry never re-gates")

	require.Len(t, calendar.created, 1)
	created := calendar.created[0]
	assert.Equal(t, "Design review", created.Title)
	require.Len(t, created.Participants, 1)
	assert.Equal(t, "jordan.lee@example.com", created.Participants[0].Email)
}

func TestManage_EventCreate_EarlierOverlappingEventStillConflicts(t *testing.T) {
	mock := newScriptedLLM(t)
	mock.on("route_request", `{"provider":"calendar","intent_type":"event"}`)
	mock.on("extract_event_intent",
		`{"operation":"create","title":"Focus block","start":"2026-03-12 10:00","end":"2026-03-12 11:00"}`)

	// The offsite began five hours before the requested hour and runs
	// through it, so it sits outside the duplicate window but must
	// still register as a conflict.
	offsite := time.Date(2026, 3, 12, 5, 0, 0, 0, time.UTC)
	calendar := newFakeNylas(t, fmt.Sprintf(
		`[{"id":"ev-1","title":"Offsite","when":{"start_time":%d,"end_time":%d}}]`,
		offsite.Unix(), offsite.Add(6*time.Hour).Unix()))

	d := newDispatcher(t, mock, "", calendar.server.URL)
	uctx := testUserContext(t, allCredentials())

	resp, err := d.Execute(context.Background(), agent.ToolManageProductivity,
		queryArgs(t, "block an hour of focus time tomorrow at 10"), uctx)
	require.NoError(t, err)
	require.NotNil(t, resp.Success)
	assert.True(t, *resp.Success)
	assert.Contains(t, resp.Message, "rescheduled")

	// 11:00 offsite end plus the buffer rounds up to 11:15.
	require.Len(t, calendar.created, 1)
	want := time.Date(2026, 3, 12, 11, 15, 0, 0, time.UTC)
	assert.Equal(t, want.Unix(), calendar.created[0].When.StartTime)
}

func TestManage_BulkEventUpdate_Gates(t *testing.T) {
	mock := newScriptedLLM(t)
	mock.on("route_request", `{"provider":"calendar","intent_type":"event"}`)
	mock.on("extract_event_intent",
		`{"operation":"update","event_reference":"all my meetings","updates":{"start":"2026-03-12 15:00","time_only":true}}`)

	first := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	second := time.Date(2026, 3, 12, 13, 0, 0, 0, time.UTC)
	calendar := newFakeNylas(t, fmt.Sprintf(
		`[{"id":"ev-1","title":"Standup","when":{"start_time":%d,"end_time":%d}},
		  {"id":"ev-2","title":"Design sync","when":{"start_time":%d,"end_time":%d}}]`,
		first.Unix(), first.Add(time.Hour).Unix(),
		second.Unix(), second.Add(time.Hour).Unix()))

	d := newDispatcher(t, mock, "", calendar.server.URL)
	uctx := testUserContext(t, allCredentials())

	resp, err := d.Execute(context.Background(), agent.ToolManageProductivity,
		queryArgs(t, "move all my meetings tomorrow to 3pm"), uctx)
	require.NoError(t, err)
	assert.True(t, resp.NeedsApproval)
	assert.Equal(t, approval.KindBulkUpdate, resp.ActionType)

	rec, err := approval.Decode(resp.ActionData)
	require.NoError(t, err)
	assert.Len(t, rec.BulkMatches, 2)
	require.NotNil(t, rec.EventIntent)
	require.NotNil(t, rec.EventIntent.Updates)
	assert.True(t, rec.EventIntent.Updates.TimeOnly)
}

func TestManage_EventCancel_CancelledEventsAreNotCandidates(t *testing.T) {
	mock := newScriptedLLM(t)
	mock.on("route_request", `{"provider":"calendar","intent_type":"event"}`)
	mock.on("extract_event_intent", `{"operation":"cancel","event_reference":"the old sync"}`)
	// The resolver names the cancelled event; it is not a candidate,
	// so the claim is demoted to not-found.
	mock.on("resolve_entity_reference", `{"found":true,"id":"ev-old","confidence":0.95}`)

	start := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	calendar := newFakeNylas(t, fmt.Sprintf(
		`[{"id":"ev-old","title":"Old sync","status":"cancelled","when":{"start_time":%d,"end_time":%d}},
		  {"id":"ev-live","title":"Sync","when":{"start_time":%d,"end_time":%d}}]`,
		start.Unix(), start.Add(time.Hour).Unix(),
		start.Add(2*time.Hour).Unix(), start.Add(3*time.Hour).Unix()))

	d := newDispatcher(t, mock, "", calendar.server.URL)
	uctx := testUserContext(t, allCredentials())

	resp, err := d.Execute(context.Background(), agent.ToolManageProductivity,
		queryArgs(t, "cancel the old sync"), uctx)
	require.NoError(t, err)
	require.NotNil(t, resp.Success)
	assert.False(t, *resp.Success)
	assert.Equal(t, agent.CodeNotFound, resp.Code)
	assert.Empty(t, calendar.deletes)
}

func TestApprove_DeclinedCancels(t *testing.T) {
	d := newDispatcher(t, newScriptedLLM(t), "", "")
	uctx := testUserContext(t, allCredentials())

	resp, err := d.Approve(context.Background(), agent.ToolManageProductivity,
		nil, json.RawMessage(`{"id":"x","kind":"bulk_delete"}`), false, uctx)
	require.NoError(t, err)
	require.NotNil(t, resp.Success)
	assert.True(t, *resp.Success)
	assert.Equal(t, "cancelled", resp.Action)
}

func TestApprove_KindMismatchFails(t *testing.T) {
	d := newDispatcher(t, newScriptedLLM(t), "", "")
	uctx := testUserContext(t, allCredentials())

	rec := approval.NewRecord(approval.KindWorkingHoursUpdate, nil, approval.Preview{})
	raw, err := rec.Encode()
	require.NoError(t, err)

	resp, err := d.Approve(context.Background(), agent.ToolManageProductivity,
		queryArgs(t, "whatever"), raw, true, uctx)
	require.NoError(t, err)
	require.NotNil(t, resp.Success)
	assert.False(t, *resp.Success)
	assert.Equal(t, agent.CodeInvalidAction, resp.Code)
}

func TestApprove_UndecodableActionDataFails(t *testing.T) {
	d := newDispatcher(t, newScriptedLLM(t), "", "")
	uctx := testUserContext(t, allCredentials())

	resp, err := d.Approve(context.Background(), agent.ToolManageProductivity,
		nil, json.RawMessage(`{"kind":"not_a_kind"}`), true, uctx)
	require.NoError(t, err)
	require.NotNil(t, resp.Success)
	assert.False(t, *resp.Success)
	assert.Equal(t, agent.CodeInvalidAction, resp.Code)
}

func TestFindAndAnalyze_WorkloadAnalysis(t *testing.T) {
	mock := newScriptedLLM(t)
	mock.on("extract_search_intent", `{"intent":"workload_analysis","scope":"both"}`)

	due := time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC) // yesterday: overdue
	tasks := newFakeReclaim(t, fmt.Sprintf(`[
		{"id":1,"title":"Write report","status":"NEW","timeChunksRequired":8,"due":%q},
		{"id":2,"title":"Plan offsite","status":"NEW","timeChunksRequired":4}
	]`, due.Format(time.RFC3339)))

	meeting := time.Date(2026, 3, 11, 14, 0, 0, 0, time.UTC)
	calendar := newFakeNylas(t, fmt.Sprintf(
		`[{"id":"ev-1","title":"Sync","when":{"start_time":%d,"end_time":%d},
		   "participants":[{"email":"me@corp.com"},{"email":"other@corp.com"}]}]`,
		meeting.Unix(), meeting.Add(time.Hour).Unix()))

	d := newDispatcher(t, mock, tasks.server.URL, calendar.server.URL)
	uctx := testUserContext(t, allCredentials())

	resp, err := d.Execute(context.Background(), agent.ToolFindAndAnalyze,
		queryArgs(t, "how busy am I this week"), uctx)
	require.NoError(t, err)
	require.NotNil(t, resp.Success)
	assert.True(t, *resp.Success)
	assert.Equal(t, "workload_analysis", resp.Action)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	// 2h + 1h tasks plus 1h meeting.
	assert.InDelta(t, 4.0, data["committed_hours"], 1e-9)
	assert.InDelta(t, 10.0, data["busy_percentage"], 1e-9)

	insights, ok := data["insights"].([]string)
	require.True(t, ok)
	joined := strings.Join(insights, " ")
	assert.Contains(t, joined, "overdue")
}

func TestCheckAvailability_SpecificTimeBusy(t *testing.T) {
	mock := newScriptedLLM(t)
	mock.on("extract_availability_intent",
		`{"kind":"specific_time","at":"2026-03-12 10:00","duration_minutes":30}`)

	standup := time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)
	calendar := newFakeNylas(t, fmt.Sprintf(
		`[{"id":"ev-1","title":"Standup","when":{"start_time":%d,"end_time":%d}}]`,
		standup.Unix(), standup.Add(time.Hour).Unix()))
	tasks := newFakeReclaim(t, `[]`)

	d := newDispatcher(t, mock, tasks.server.URL, calendar.server.URL)
	uctx := testUserContext(t, allCredentials())

	resp, err := d.Execute(context.Background(), agent.ToolCheckAvailability,
		queryArgs(t, "am I free tomorrow at 10?"), uctx)
	require.NoError(t, err)
	require.NotNil(t, resp.Success)
	assert.True(t, *resp.Success)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, data["available"])
	assert.Contains(t, resp.Message, "Standup")
}

func TestCheckAvailability_FindSlotsAvoidsBusyTime(t *testing.T) {
	mock := newScriptedLLM(t)
	mock.on("extract_availability_intent",
		`{"kind":"find_slots","duration_minutes":60,"range_keyword":"tomorrow","preferences":{"prefer_morning":true}}`)

	busy := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	calendar := newFakeNylas(t, fmt.Sprintf(
		`[{"id":"ev-1","title":"Standup","when":{"start_time":%d,"end_time":%d}}]`,
		busy.Unix(), busy.Add(time.Hour).Unix()))
	tasks := newFakeReclaim(t, `[]`)

	d := newDispatcher(t, mock, tasks.server.URL, calendar.server.URL)
	uctx := testUserContext(t, allCredentials())

	resp, err := d.Execute(context.Background(), agent.ToolCheckAvailability,
		queryArgs(t, "find me an hour tomorrow morning"), uctx)
	require.NoError(t, err)
	require.NotNil(t, resp.Success)
	assert.True(t, *resp.Success)
	assert.Equal(t, "slots_found", resp.Action)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	slots, ok := data["slots"].([]map[string]any)
	require.True(t, ok)
	require.NotEmpty(t, slots)
	assert.LessOrEqual(t, len(slots), 5)

	// Every suggested slot clears the busy interval and its buffer.
	for _, s := range slots {
		start, err := time.Parse(time.RFC3339, s["start"].(string))
		require.NoError(t, err)
		assert.False(t, start.Before(busy.Add(time.Hour)), "slot %s overlaps the busy block", s["start"])
	}
}

func TestCheckAvailability_FindSlotsReservesTaskTime(t *testing.T) {
	mock := newScriptedLLM(t)
	mock.on("extract_availability_intent",
		`{"kind":"find_slots","duration_minutes":60,"range_keyword":"tomorrow","preferences":{"prefer_morning":true}}`)

	// Two hours of work due at 11:00 reserve 09:00 through 11:00.
	due := time.Date(2026, 3, 12, 11, 0, 0, 0, time.UTC)
	tasks := newFakeReclaim(t, fmt.Sprintf(
		`[{"id":1,"title":"Write report","status":"NEW","timeChunksRequired":8,"due":%q}]`,
		due.Format(time.RFC3339)))
	calendar := newFakeNylas(t, `[]`)

	d := newDispatcher(t, mock, tasks.server.URL, calendar.server.URL)
	uctx := testUserContext(t, allCredentials())

	resp, err := d.Execute(context.Background(), agent.ToolCheckAvailability,
		queryArgs(t, "find me an hour tomorrow morning"), uctx)
	require.NoError(t, err)
	require.NotNil(t, resp.Success)
	assert.True(t, *resp.Success)
	assert.Equal(t, 1, tasks.listCalls(), "slot search consults the task provider")

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	slots, ok := data["slots"].([]map[string]any)
	require.True(t, ok)
	require.NotEmpty(t, slots)

	for _, s := range slots {
		start, err := time.Parse(time.RFC3339, s["start"].(string))
		require.NoError(t, err)
		assert.False(t, start.Before(due), "slot %s overlaps time reserved for the deadline", s["start"])
	}
}
