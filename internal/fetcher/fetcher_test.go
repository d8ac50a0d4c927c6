package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html><title>ok</title></html>"))
	}))
	defer srv.Close()

	f := New(Options{Timeout: time.Second, RetryAttempts: 2, MaxConcurrency: 2})
	res, ferr := f.Fetch(context.Background(), srv.URL)
	require.Nil(t, ferr)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(res.Body), "ok")
}

func TestFetchRetriesOn5xxThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := New(Options{Timeout: time.Second, RetryAttempts: 3, MaxConcurrency: 1})
	res, ferr := f.Fetch(context.Background(), srv.URL)
	require.Nil(t, ferr)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, int32(3), calls.Load())
}

func TestFetchGivesUpAfterRetryExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := New(Options{Timeout: time.Second, RetryAttempts: 1, MaxConcurrency: 1})
	_, ferr := f.Fetch(context.Background(), srv.URL)
	require.NotNil(t, ferr)
	require.Equal(t, FailureTransportError, ferr.Kind)
}

func TestFetchRateLimitedRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := New(Options{Timeout: time.Second, RetryAttempts: 3, MaxConcurrency: 1})
	res, ferr := f.Fetch(context.Background(), srv.URL)
	require.Nil(t, ferr)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestFetchHonorsSemaphoreSize(t *testing.T) {
	var inflight atomic.Int32
	var maxObserved atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := inflight.Add(1)
		for {
			m := maxObserved.Load()
			if cur <= m || maxObserved.CompareAndSwap(m, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inflight.Add(-1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := New(Options{Timeout: time.Second, RetryAttempts: 0, MaxConcurrency: 2})
	done := make(chan struct{})
	for i := 0; i < 6; i++ {
		go func() {
			f.Fetch(context.Background(), srv.URL)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 6; i++ {
		<-done
	}
	require.LessOrEqual(t, maxObserved.Load(), int32(2))
}
