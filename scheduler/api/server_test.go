package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practicekit/libsched/scheduler"
	"github.com/practicekit/libsched/scheduler/storage/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	sched, err := scheduler.New(scheduler.Config{Storage: memory.New()})
	require.NoError(t, err)
	server := httptest.NewServer(NewRouter(NewHandler(sched, nil), RouterConfig{}))
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func createWeeklySeries(t *testing.T, server *httptest.Server) eventResponse {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, server.URL+"/events", eventPayload{
		Type:  "APPOINTMENT",
		Title: "Weekly therapy",
		Start: time.Date(2025, 1, 7, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 1, 7, 10, 50, 0, 0, time.UTC),
		Recurrence: &recurrencePayload{
			Interval: 2,
			Period:   "WEEKLY",
			Weekdays: []string{"TU", "TH"},
			EndAfter: 10,
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var created eventResponse
	require.NoError(t, json.Unmarshal(body, &created))
	return created
}

func TestCreateEvent(t *testing.T) {
	server := newTestServer(t)
	created := createWeeklySeries(t, server)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "FREQ=WEEKLY;INTERVAL=2;BYDAY=TU,TH;COUNT=10;DTSTART=20250107T100000Z",
		created.RecurrenceRule)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/events/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fetched eventResponse
	require.NoError(t, json.Unmarshal(body, &fetched))
	assert.Equal(t, created, fetched)
}

func TestCreateEventValidation(t *testing.T) {
	server := newTestServer(t)

	t.Run("weekly without weekdays", func(t *testing.T) {
		resp, body := doJSON(t, http.MethodPost, server.URL+"/events", eventPayload{
			Type:  "EVENT",
			Start: time.Date(2025, 1, 7, 10, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 1, 7, 11, 0, 0, 0, time.UTC),
			Recurrence: &recurrencePayload{
				Interval: 1,
				Period:   "WEEKLY",
				EndAfter: 5,
			},
		})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var apiErr errorResponse
		require.NoError(t, json.Unmarshal(body, &apiErr))
		assert.Equal(t, "weeklyDays", apiErr.Field)
	})

	t.Run("unknown event type", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodPost, server.URL+"/events", eventPayload{
			Type:  "BANQUET",
			Start: time.Date(2025, 1, 7, 10, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 1, 7, 11, 0, 0, 0, time.UTC),
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("malformed body", func(t *testing.T) {
		resp, err := http.Post(server.URL+"/events", "application/json",
			bytes.NewReader([]byte("{")))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestGetSummary(t *testing.T) {
	server := newTestServer(t)
	created := createWeeklySeries(t, server)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/events/"+created.ID+"/summary", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary map[string]string
	require.NoError(t, json.Unmarshal(body, &summary))
	assert.Equal(t, "Every 2 weeks on Tuesday, Thursday", summary["cadence"])
	assert.Equal(t, "Ends after 10 events", summary["termination"])
}

func TestGetOccurrences(t *testing.T) {
	server := newTestServer(t)
	created := createWeeklySeries(t, server)

	url := fmt.Sprintf("%s/events/%s/occurrences?from=%s&to=%s",
		server.URL, created.ID,
		"2025-01-01T00:00:00Z", "2025-02-01T00:00:00Z")
	resp, body := doJSON(t, http.MethodGet, url, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Occurrences []time.Time `json:"occurrences"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	require.NotEmpty(t, result.Occurrences)
	assert.Equal(t, time.Date(2025, 1, 7, 10, 0, 0, 0, time.UTC), result.Occurrences[0])

	t.Run("missing range", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodGet,
			server.URL+"/events/"+created.ID+"/occurrences", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestDeleteScopes(t *testing.T) {
	server := newTestServer(t)

	t.Run("recurring requires scope", func(t *testing.T) {
		created := createWeeklySeries(t, server)
		resp, _ := doJSON(t, http.MethodDelete, server.URL+"/events/"+created.ID, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("occurrence scope excludes one slot", func(t *testing.T) {
		created := createWeeklySeries(t, server)
		url := fmt.Sprintf("%s/events/%s?scope=occurrence&occurrence=%s",
			server.URL, created.ID, "2025-01-09T10:00:00Z")
		resp, _ := doJSON(t, http.MethodDelete, url, nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp, body := doJSON(t, http.MethodGet, fmt.Sprintf(
			"%s/events/%s/occurrences?from=2025-01-01T00:00:00Z&to=2025-02-01T00:00:00Z",
			server.URL, created.ID), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var result struct {
			Occurrences []time.Time `json:"occurrences"`
		}
		require.NoError(t, json.Unmarshal(body, &result))
		for _, at := range result.Occurrences {
			assert.False(t, at.Equal(time.Date(2025, 1, 9, 10, 0, 0, 0, time.UTC)))
		}
	})

	t.Run("occurrence scope outside the series conflicts", func(t *testing.T) {
		created := createWeeklySeries(t, server)
		url := fmt.Sprintf("%s/events/%s?scope=occurrence&occurrence=%s",
			server.URL, created.ID, "2025-01-14T10:00:00Z")
		resp, _ := doJSON(t, http.MethodDelete, url, nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("all scope removes the record", func(t *testing.T) {
		created := createWeeklySeries(t, server)
		resp, _ := doJSON(t, http.MethodDelete,
			server.URL+"/events/"+created.ID+"?scope=all", nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp, _ = doJSON(t, http.MethodGet, server.URL+"/events/"+created.ID, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("unknown scope", func(t *testing.T) {
		created := createWeeklySeries(t, server)
		resp, _ := doJSON(t, http.MethodDelete,
			server.URL+"/events/"+created.ID+"?scope=everything", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestUpdateSeriesScope(t *testing.T) {
	server := newTestServer(t)
	created := createWeeklySeries(t, server)

	resp, body := doJSON(t, http.MethodPatch,
		server.URL+"/events/"+created.ID+"?scope=series", eventPayload{
			Type:  "APPOINTMENT",
			Title: "Renamed",
			Start: time.Date(2025, 1, 7, 10, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 1, 7, 10, 50, 0, 0, time.UTC),
			Recurrence: &recurrencePayload{
				Interval: 1,
				Period:   "WEEKLY",
				Weekdays: []string{"MO"},
				EndAfter: 4,
			},
		})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var updated eventResponse
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, "FREQ=WEEKLY;INTERVAL=1;BYDAY=MO;COUNT=4;DTSTART=20250107T100000Z",
		updated.RecurrenceRule)
}

func TestExportEvent(t *testing.T) {
	server := newTestServer(t)
	created := createWeeklySeries(t, server)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/events/"+created.ID+"/ics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/calendar", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), "BEGIN:VEVENT")
	assert.Contains(t, string(body), "RRULE:FREQ=WEEKLY;INTERVAL=2;BYDAY=TU,TH;COUNT=10")
	assert.NotContains(t, string(body), "DTSTART=")
}

func TestMonthlyOptions(t *testing.T) {
	server := newTestServer(t)

	// 2025-01-29 is the last Wednesday of its month.
	resp, body := doJSON(t, http.MethodGet,
		server.URL+"/recurrence/monthly-options?start=2025-01-29T10:00:00Z", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Options []struct {
			Kind  string `json:"kind"`
			Label string `json:"label"`
		} `json:"options"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	require.Len(t, result.Options, 3)
	assert.Equal(t, "On day 29", result.Options[0].Label)
	assert.Equal(t, "On the 5th Wednesday", result.Options[1].Label)
	assert.Equal(t, "On the last Wednesday", result.Options[2].Label)

	t.Run("missing start", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodGet, server.URL+"/recurrence/monthly-options", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestListEvents(t *testing.T) {
	server := newTestServer(t)
	createWeeklySeries(t, server)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/events", eventPayload{
		Type:  "OUT_OF_OFFICE",
		Start: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, body = doJSON(t, http.MethodGet, server.URL+"/events?type=OUT_OF_OFFICE", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Events []eventResponse `json:"events"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	require.Len(t, result.Events, 1)
	assert.Equal(t, "OUT_OF_OFFICE", result.Events[0].Type)
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, server.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}
