package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSendSuccess(t *testing.T) {
	t.Parallel()

	var (
		gotBody        []byte
		gotContentType string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New()

	err := s.Send(context.Background(), srv.URL, []byte(`{"id":1}`))
	require.NoError(t, err)
	require.Equal(t, `{"id":1}`, string(gotBody))
	require.Equal(t, "application/json", gotContentType)
}

func TestSendNon2xxIsError(t *testing.T) {
	t.Parallel()

	for _, code := range []int{http.StatusBadRequest, http.StatusInternalServerError, http.StatusBadGateway} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(code)
		}))

		s := New()

		err := s.Send(context.Background(), srv.URL, []byte(`{}`))
		require.Error(t, err)

		srv.Close()
	}
}

func TestSendContextTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	s := New()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := s.Send(ctx, srv.URL, []byte(`{}`))
	require.Error(t, err)
}
