package places

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCollyEmailFetcher_Emails(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, err := w.Write([]byte(`<html><body>Reach us at hello@shop.example or orders@shop.example.</body></html>`))
		require.NoError(t, err)
	}))
	defer srv.Close()

	fetcher := NewCollyEmailFetcher("compscout-test/1.0", 5*time.Second)
	emails, err := fetcher.Emails(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "hello@shop.example,orders@shop.example", emails)
}

func TestCollyEmailFetcher_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	fetcher := NewCollyEmailFetcher("compscout-test/1.0", 5*time.Second)
	_, err := fetcher.Emails(context.Background(), srv.URL)
	require.Error(t, err)
}
