package httpx

import (
	"context"
	"errors"
	"fetchq/internal/domain"
	"fetchq/internal/ports"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransport_Execute(t *testing.T) {
	var gotUA, gotReferer string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotReferer = r.Header.Get("Referer")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("X-Trace", "abc")
		_, _ = w.Write([]byte("hello"))
	}))
	defer server.Close()

	tr := New(DefaultOptions())
	defer tr.Close()

	resp, err := tr.Execute(context.Background(), ports.Request{
		URL: server.URL,
		Headers: []domain.Header{
			{Name: "User-Agent", Value: "fetchq-test"},
			{Name: "Referer", Value: "http://ref.example/"},
		},
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", resp.Reason)
	assert.Equal(t, "HTTP/1.1", resp.Proto)
	assert.Equal(t, []byte("hello"), resp.Body)
	assert.Equal(t, "fetchq-test", gotUA)
	assert.Equal(t, "http://ref.example/", gotReferer)

	ct, ok := resp.Header("content-type")
	assert.True(t, ok)
	assert.Equal(t, "text/plain; charset=utf-8", ct)
}

func TestTransport_NonOKIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	tr := New(DefaultOptions())
	resp, err := tr.Execute(context.Background(), ports.Request{URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "Too Many Requests", resp.Reason)
}

func TestTransport_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	tr := New(DefaultOptions())
	start := time.Now()
	_, err := tr.Execute(context.Background(), ports.Request{URL: server.URL, Timeout: 50 * time.Millisecond})
	require.Error(t, err)

	var terr *Error
	assert.True(t, errors.As(err, &terr))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestTransport_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	tr := New(DefaultOptions())
	_, err := tr.Execute(context.Background(), ports.Request{URL: url, Timeout: time.Second})

	var terr *Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, url, terr.URL)
}
