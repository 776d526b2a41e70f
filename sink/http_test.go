package sink

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/warriorguo/checkpoint/types"
)

func newTestSink(t *testing.T, endpoint string) types.ReportSink {
	config := DefaultHTTPConfig()
	config.Endpoint = endpoint
	config.APIKey = "key-123"
	config.RetryBackoff = time.Millisecond
	s, err := NewHTTPSink(config)
	assert.Nil(t, err)
	return s
}

func TestHTTPSinkSubmit(t *testing.T) {
	var gotAuth, gotContentType string
	var gotBatch []*types.Event

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		json.Unmarshal(b, &gotBatch)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	s := newTestSink(t, server.URL)
	batch := []*types.Event{
		{Flow: "checkout", RunID: "run-1", NodeID: "discount_applied", Status: types.Failed,
			Data: types.Data{"subtotal": 100.0, "total_discount": 40.0}},
	}
	assert.Nil(t, s.Submit(context.Background(), batch))

	assert.Equal(t, "Bearer key-123", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, 1, len(gotBatch))
	assert.Equal(t, "discount_applied", gotBatch[0].NodeID)
	assert.Equal(t, types.Failed, gotBatch[0].Status)
	subtotal, _ := gotBatch[0].Data.GetFloat64("subtotal")
	assert.Equal(t, 100.0, subtotal)
}

func TestHTTPSinkStatuses(t *testing.T) {
	status := http.StatusOK
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer server.Close()

	s := newTestSink(t, server.URL)
	batch := []*types.Event{{NodeID: "a"}}

	assert.Nil(t, s.Submit(context.Background(), batch))

	status = http.StatusTooManyRequests
	err := s.Submit(context.Background(), batch)
	re, ok := err.(*types.RetryError)
	assert.True(t, ok)
	assert.Equal(t, time.Millisecond, re.Backoff)

	status = http.StatusInternalServerError
	_, ok = s.Submit(context.Background(), batch).(*types.RetryError)
	assert.True(t, ok)

	status = http.StatusBadRequest
	_, ok = s.Submit(context.Background(), batch).(*types.FatalError)
	assert.True(t, ok)
}

func TestHTTPSinkUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	s := newTestSink(t, server.URL)
	err := s.Submit(context.Background(), []*types.Event{{NodeID: "a"}})
	_, ok := err.(*types.RetryError)
	assert.True(t, ok)
}

func TestHTTPConfig(t *testing.T) {
	_, err := NewHTTPSink(nil)
	assert.NotNil(t, err)

	_, err = NewHTTPSink(&HTTPConfig{})
	assert.NotNil(t, err)

	config := &HTTPConfig{Endpoint: "https://tracking.example.com/v1/events"}
	assert.Nil(t, config.Validate())
	assert.Equal(t, 10*time.Second, config.Timeout)
	assert.Equal(t, time.Second, config.RetryBackoff)
}
