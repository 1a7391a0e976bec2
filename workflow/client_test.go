package workflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoResult struct {
	Value string `json:"value"`
}

func TestCallDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/flow/test-flow", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hi", body["input"])
		json.NewEncoder(w).Encode(map[string]any{
			"code":    0,
			"message": "ok",
			"result":  echoResult{Value: "out"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	got, err := Call[echoResult](context.Background(), c, "test-flow", map[string]string{"input": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "out", got.Value)
}

func TestCallNilResultIsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": 42, "message": "flow exploded"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := Call[echoResult](context.Background(), c, "test-flow", nil)
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 42, se.Code)
	assert.Equal(t, "flow exploded", se.Message)
}

func TestCallHTTPErrorIsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := Call[echoResult](context.Background(), c, "test-flow", nil)
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Code)
}

func TestCallTransportErrorIsClientError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "")
	_, err := Call[echoResult](context.Background(), c, "test-flow", nil)
	var ce *ClientError
	assert.ErrorAs(t, err, &ce)
}

func TestCallMalformedBodyIsClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := Call[echoResult](context.Background(), c, "test-flow", nil)
	var ce *ClientError
	assert.ErrorAs(t, err, &ce)
}

func TestCallStreamDeliversEnvelopesInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/flow/test-flow/stream", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`data: {"code":0,"message":"","result":{"value":"a"}}` + "\n\n"))
		w.Write([]byte(`data: {"code":0,"message":"","result":{"value":"b"}}` + "\n\n"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	var got []string
	err := CallStream(context.Background(), c, "test-flow", nil, func(r *echoResult) error {
		got = append(got, r.Value)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestCallStreamIgnoresNonDataLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(": keepalive\n\n"))
		w.Write([]byte("event: envelope\n"))
		w.Write([]byte(`data: {"code":0,"message":"","result":{"value":"a"}}` + "\n\n"))
		w.Write([]byte("retry: 3000\n"))
		w.Write([]byte(`data: {"code":0,"message":"","result":{"value":"b"}}` + "\n\n"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	var got []string
	err := CallStream(context.Background(), c, "test-flow", nil, func(r *echoResult) error {
		got = append(got, r.Value)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestCallStreamNilResultAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`data: {"code":0,"message":"","result":{"value":"a"}}` + "\n"))
		w.Write([]byte(`data: {"code":7,"message":"mid-stream failure"}` + "\n"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	var got []string
	err := CallStream(context.Background(), c, "test-flow", nil, func(r *echoResult) error {
		got = append(got, r.Value)
		return nil
	})
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 7, se.Code)
	assert.Equal(t, []string{"a"}, got)
}
