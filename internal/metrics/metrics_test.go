package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestAuthEvent_CountsByLabels(t *testing.T) {
	t.Parallel()

	m := New()
	m.AuthEvent("rotate", "ok")
	m.AuthEvent("rotate", "ok")
	m.AuthEvent("rotate", "reuse")

	require.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("rotate", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("rotate", "reuse")))
	require.Equal(t, 2, testutil.CollectAndCount(m.events))
}

func TestObserveRequest(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveRequest(http.MethodDelete, "/auth/sessions/{id}", http.StatusNoContent, 20*time.Millisecond)

	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodDelete, "/auth/sessions/{id}", "204")))
	require.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestSessionsPurged_IgnoresZero(t *testing.T) {
	t.Parallel()

	m := New()
	m.SessionsPurged(0)
	m.SessionsPurged(3)

	require.Equal(t, 3.0, testutil.ToFloat64(m.purged))
}

func TestHandler_ExposesCustomRegistry(t *testing.T) {
	t.Parallel()

	m := New()
	m.AuthEvent("login", "invalid")

	srv := httptest.NewServer(m.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	text := string(body)
	require.True(t, strings.Contains(text, `auth_events_total{event="login",outcome="invalid"} 1`))
	require.Contains(t, text, "go_goroutines")
}

func TestNew_IndependentRegistries(t *testing.T) {
	t.Parallel()

	a, b := New(), New()
	a.AuthEvent("logout", "ok")

	require.Equal(t, 0.0, testutil.ToFloat64(b.events.WithLabelValues("logout", "ok")))
}
