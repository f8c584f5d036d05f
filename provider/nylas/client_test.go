package nylas_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronoplan/chronoplan/intent"
	"github.com/chronoplan/chronoplan/provider/nylas"
)

func TestSyntheticEmail(t *testing.T) {
	assert.Equal(t, "jordan.lee@example.com", nylas.SyntheticEmail("Jordan Lee"))
	assert.Equal(t, "sam@example.com", nylas.SyntheticEmail("Sam"))
	assert.Equal(t, "participant@example.com", nylas.SyntheticEmail("  "))
}

func TestEventFromDraft(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	start := time.Date(2026, 3, 12, 14, 0, 0, 0, loc)

	e := nylas.EventFromDraft(&intent.EventDraft{
		Title: "Design sync",
		Start: start,
		End:   start.Add(time.Hour),
		Participants: []intent.Participant{
			{Email: "casey@corp.com", Name: "Casey"},
			{Name: "Jordan Lee"},
		},
		RemindersMinutes: []int{10},
	}, "America/New_York")

	assert.Equal(t, start.Unix(), e.When.StartTime)
	assert.Equal(t, "America/New_York", e.When.StartTimezone)
	assert.Equal(t, "America/New_York", e.When.EndTimezone)

	require.Len(t, e.Participants, 2)
	assert.Equal(t, "casey@corp.com", e.Participants[0].Email)
	// Name-only participants get synthetic noreply addresses.
	assert.Equal(t, "jordan.lee@example.com", e.Participants[1].Email)
	assert.Equal(t, "noreply", e.Participants[1].Status)

	require.NotNil(t, e.Reminders)
	require.Len(t, e.Reminders.Overrides, 1)
	assert.Equal(t, 10, e.Reminders.Overrides[0].ReminderMinutes)
}

func TestEventAccessors(t *testing.T) {
	start := time.Date(2026, 3, 12, 14, 0, 0, 0, time.UTC)
	e := &nylas.Event{
		ID:    "ev-1",
		Title: "Design sync",
		When:  nylas.When{StartTime: start.Unix(), EndTime: start.Add(time.Hour).Unix()},
		Participants: []nylas.Participant{
			{Email: "me@corp.com"},
			{Email: "other@corp.com"},
		},
	}

	assert.True(t, e.Start(time.UTC).Equal(start))
	assert.True(t, e.End(time.UTC).Equal(start.Add(time.Hour)))

	iv := e.Interval(time.UTC)
	assert.Equal(t, "ev-1", iv.ID)
	assert.Equal(t, "Design sync", iv.Title)

	assert.True(t, e.HasOtherParticipants("me@corp.com"))
	// Owner matching ignores case.
	assert.True(t, e.HasOtherParticipants("ME@CORP.COM"))

	solo := &nylas.Event{Participants: []nylas.Participant{{Email: "me@corp.com"}}}
	assert.False(t, solo.HasOtherParticipants("me@corp.com"))
}

func TestListEvents(t *testing.T) {
	start := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/grants/grant-1/events", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "primary", q.Get("calendar_id"))
		assert.Equal(t, fmt.Sprint(start.Unix()), q.Get("start"))
		assert.Equal(t, fmt.Sprint(end.Unix()), q.Get("end"))
		assert.Equal(t, "Bearer ny-key", r.Header.Get("Authorization"))

		fmt.Fprintf(w, `{"request_id":"req-1","data":[
			{"id":"ev-1","title":"Standup","when":{"start_time":%d,"end_time":%d}}
		]}`, start.Unix(), start.Add(time.Hour).Unix())
	}))
	defer server.Close()

	client := nylas.New("ny-key", "grant-1", nylas.WithBaseURL(server.URL))
	events, err := client.ListEvents(context.Background(), start, end)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Standup", events[0].Title)
}

func TestCreateEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/grants/grant-1/events", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("notify_participants"))

		var got nylas.Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		got.ID = "ev-new"
		env := map[string]any{"request_id": "req-2", "data": got}
		_ = json.NewEncoder(w).Encode(env)
	}))
	defer server.Close()

	client := nylas.New("ny-key", "grant-1", nylas.WithBaseURL(server.URL))
	created, err := client.CreateEvent(context.Background(), &nylas.Event{Title: "Kickoff"}, true)
	require.NoError(t, err)
	assert.Equal(t, "ev-new", created.ID)
	assert.Equal(t, "Kickoff", created.Title)
}

func TestDestroyEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/grants/grant-1/events/ev-9", r.URL.Path)
		assert.Equal(t, "false", r.URL.Query().Get("notify_participants"))
		fmt.Fprint(w, `{"request_id":"req-3"}`)
	}))
	defer server.Close()

	client := nylas.New("ny-key", "grant-1", nylas.WithBaseURL(server.URL))
	assert.NoError(t, client.DestroyEvent(context.Background(), "ev-9", false))
}

func TestFindGrant(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/grants/grant-1", r.URL.Path)
		fmt.Fprint(w, `{"request_id":"req-4","data":{"id":"grant-1","email":"me@corp.com","grant_status":"valid"}}`)
	}))
	defer server.Close()

	client := nylas.New("ny-key", "grant-1", nylas.WithBaseURL(server.URL))
	grant, err := client.FindGrant(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "me@corp.com", grant.Email)
	assert.Equal(t, "valid", grant.Status)
}

func TestAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid grant"}`)
	}))
	defer server.Close()

	client := nylas.New("ny-key", "grant-1", nylas.WithBaseURL(server.URL))
	_, err := client.FindEvent(context.Background(), "missing")
	require.Error(t, err)

	var apiErr *nylas.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}
