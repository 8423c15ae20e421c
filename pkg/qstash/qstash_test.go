package qstash

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublish(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c, err := NewClient(Config{URL: srv.URL, Token: "tok"})
	require.NoError(t, err)
	require.NoError(t, c.Publish(context.Background(), "billing-audit", []byte(`{"type":"x"}`)))

	require.Equal(t, "/v2/publish/billing-audit", gotPath)
	require.Equal(t, "Bearer tok", gotAuth)
	require.Equal(t, `{"type":"x"}`, gotBody)
}

func TestPublishFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := NewClient(Config{URL: srv.URL, Token: "tok"})
	require.NoError(t, err)
	err = c.Publish(context.Background(), "billing-audit", []byte(`{}`))
	require.ErrorContains(t, err, "429")

	_, err = NewClient(Config{URL: srv.URL})
	require.Error(t, err)
}
