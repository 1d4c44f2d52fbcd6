package authclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testServer simulates the auth endpoints. The current access token is
// whatever the last refresh handed out; anything else is rejected.
type testServer struct {
	*httptest.Server

	mu           sync.Mutex
	currentToken string
	refreshFails bool
	logoutStatus int

	refreshCalls int32
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{
		currentToken: "token-1",
		logoutStatus: http.StatusNoContent,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&ts.refreshCalls, 1)

		ts.mu.Lock()
		fails := ts.refreshFails
		if !fails {
			ts.currentToken = "token-" + time.Now().Format("150405.000000000")
		}
		token := ts.currentToken
		ts.mu.Unlock()

		if fails {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "Invalid or expired refresh token", "error_type": "token_invalid"})
			return
		}

		// Simulate the network so concurrent callers overlap.
		time.Sleep(50 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": token,
			"token_type":   "Bearer",
			"expires_in":   900,
			"user_id":      1,
		})
	})
	mux.HandleFunc("/api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if !ts.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":           1,
			"email":        "person@example.com",
			"display_name": "Person",
		})
	})
	mux.HandleFunc("/api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		status := ts.logoutStatus
		ts.mu.Unlock()
		w.WriteHeader(status)
	})
	mux.HandleFunc("/api/tasks", func(w http.ResponseWriter, r *http.Request) {
		if !ts.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "Invalid token", "error_type": "token_invalid"})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"tasks": []string{}, "total": 0})
	})

	ts.Server = httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) authorized(r *http.Request) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return r.Header.Get("Authorization") == "Bearer "+ts.currentToken
}

func (ts *testServer) setRefreshFails(v bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.refreshFails = v
}

func (ts *testServer) invalidateToken() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.currentToken = "rotated-away"
}

func (ts *testServer) token() string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.currentToken
}

func newTestController(t *testing.T, ts *testServer) *Controller {
	t.Helper()
	c, err := New(ts.URL)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestBootstrap_ReturningVisitorNeverSeesUnauthenticated(t *testing.T) {
	ts := newTestServer(t)
	c := newTestController(t, ts)

	var mu sync.Mutex
	var observed []GuardState
	c.OnChange(func(State) {
		mu.Lock()
		observed = append(observed, c.GuardState())
		mu.Unlock()
	})

	assert.Equal(t, Loading, c.GuardState())

	require.NoError(t, c.Bootstrap(context.Background()))

	assert.Equal(t, Authenticated, c.GuardState())
	require.NotNil(t, c.CurrentUser())
	assert.Equal(t, "person@example.com", c.CurrentUser().Email)

	mu.Lock()
	defer mu.Unlock()
	for _, state := range observed {
		assert.NotEqual(t, Unauthenticated, state, "a returning visitor must never be shown the login screen")
	}
}

func TestBootstrap_NoSessionEndsUnauthenticated(t *testing.T) {
	ts := newTestServer(t)
	ts.setRefreshFails(true)
	c := newTestController(t, ts)

	err := c.Bootstrap(context.Background())
	require.Error(t, err)
	assert.Equal(t, Unauthenticated, c.GuardState())
	assert.Nil(t, c.CurrentUser())
}

func TestDo_SingleFlightRefresh(t *testing.T) {
	ts := newTestServer(t)
	c := newTestController(t, ts)
	require.NoError(t, c.Bootstrap(context.Background()))

	// Invalidate the client's token server-side so every call 401s first.
	ts.invalidateToken()
	atomic.StoreInt32(&ts.refreshCalls, 0)

	const concurrency = 8
	var wg sync.WaitGroup
	errs := make([]error, concurrency)
	statuses := make([]int, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/tasks", nil)
			if err != nil {
				errs[i] = err
				return
			}
			resp, err := c.Do(context.Background(), req)
			if err != nil {
				errs[i] = err
				return
			}
			statuses[i] = resp.StatusCode
			resp.Body.Close()
		}(i)
	}
	wg.Wait()

	for i := 0; i < concurrency; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, http.StatusOK, statuses[i])
	}

	// All eight 401s share one network refresh.
	assert.Equal(t, int32(1), atomic.LoadInt32(&ts.refreshCalls))
}

func TestDo_RetryOnceThenSignedOut(t *testing.T) {
	ts := newTestServer(t)
	c := newTestController(t, ts)
	require.NoError(t, c.Bootstrap(context.Background()))

	// The refresh endpoint rejects, so the 401 cannot be recovered.
	ts.invalidateToken()
	ts.setRefreshFails(true)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/tasks", nil)
	require.NoError(t, err)

	_, err = c.Do(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, Unauthenticated, c.GuardState())
}

func TestDo_InvisibleRenewalKeepsAuthenticated(t *testing.T) {
	ts := newTestServer(t)
	c := newTestController(t, ts)
	require.NoError(t, c.Bootstrap(context.Background()))

	var mu sync.Mutex
	var observed []GuardState
	c.OnChange(func(State) {
		mu.Lock()
		observed = append(observed, c.GuardState())
		mu.Unlock()
	})

	// The access token expires mid-session; the next call renews it
	// behind the scenes.
	ts.invalidateToken()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/tasks", nil)
	require.NoError(t, err)
	resp, err := c.Do(context.Background(), req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, Authenticated, c.GuardState())

	mu.Lock()
	defer mu.Unlock()
	for _, state := range observed {
		assert.NotEqual(t, Loading, state, "a background refresh must not re-enter the loading state")
		assert.NotEqual(t, Unauthenticated, state)
	}
}

func TestLogout_ClearsLocallyOnServerError(t *testing.T) {
	ts := newTestServer(t)
	c := newTestController(t, ts)
	require.NoError(t, c.Bootstrap(context.Background()))

	ts.mu.Lock()
	ts.logoutStatus = http.StatusInternalServerError
	ts.mu.Unlock()

	err := c.Logout(context.Background())
	// The request itself went through; a 5xx is not a transport error.
	require.NoError(t, err)

	assert.Equal(t, Unauthenticated, c.GuardState())
	assert.Nil(t, c.CurrentUser())
}

func TestClose_NoCallbacksAfterClose(t *testing.T) {
	ts := newTestServer(t)
	c, err := New(ts.URL)
	require.NoError(t, err)
	require.NoError(t, c.Bootstrap(context.Background()))

	var callbacks int32
	c.OnChange(func(State) {
		atomic.AddInt32(&callbacks, 1)
	})

	c.Close()
	before := atomic.LoadInt32(&callbacks)

	// These would normally notify subscribers.
	c.Logout(context.Background())
	c.SetAccessToken(context.Background(), ts.token())

	assert.Equal(t, before, atomic.LoadInt32(&callbacks))
	assert.Equal(t, Unauthenticated, c.GuardState())
	assert.Nil(t, c.CurrentUser())
}

func TestSetAccessToken_LoginHandOff(t *testing.T) {
	ts := newTestServer(t)
	c := newTestController(t, ts)

	require.NoError(t, c.SetAccessToken(context.Background(), ts.token()))
	assert.Equal(t, Authenticated, c.GuardState())
	require.NotNil(t, c.CurrentUser())
	assert.Equal(t, uint(1), c.CurrentUser().ID)
}
