package sync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientFetchAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/internal/attendance/all", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"studentId":"stu-1","status":"present"},{"id":"2","studentId":2,"status":"late"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	entries, err := c.FetchAll(context.Background())
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, FlexString("1"), entries[0].ID)
	assert.Equal(t, FlexString("2"), entries[1].ID)
	assert.Equal(t, FlexString("2"), entries[1].StudentID)
}

func TestClientFetchUpdatedSince(t *testing.T) {
	since := time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/internal/attendance/updated", r.URL.Path)
		assert.Equal(t, "2024-03-09T08:00:00Z", r.URL.Query().Get("since"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	entries, err := c.FetchUpdatedSince(context.Background(), since)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestClientUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "maintenance window", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.FetchAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream api error 503")
	assert.Contains(t, err.Error(), "maintenance window")
}

func TestClientDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"not":"a list"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.FetchAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode upstream response")
}
