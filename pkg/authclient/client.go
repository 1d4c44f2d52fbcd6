// Package authclient is the Go client for the tracker-api authentication
// flow. It keeps the access token in memory, refreshes it through the
// HttpOnly cookie session and exposes a guard state for route decisions.
package authclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"
)

// DefaultTimeout bounds every network call made by the controller.
const DefaultTimeout = 10 * time.Second

// User is the authenticated account as reported by the server.
type User struct {
	ID          uint   `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

// State is a snapshot of the controller.
type State struct {
	User    *User
	Loading bool
}

// GuardState tells a router what to render for a protected route.
type GuardState int

const (
	// Loading: session restore is still in flight, render nothing yet.
	Loading GuardState = iota
	// Authenticated: a user is signed in.
	Authenticated
	// Unauthenticated: no session, redirect to login.
	Unauthenticated
)

func (g GuardState) String() string {
	switch g {
	case Loading:
		return "loading"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	UserID      uint   `json:"user_id"`
}

// pendingRefresh is the single-flight slot: the first caller that needs a
// refresh creates it and performs the network call, everyone else waits on
// done and reads the shared result.
type pendingRefresh struct {
	done  chan struct{}
	token string
	err   error
}

// Controller owns the client-side auth state. All methods are safe for
// concurrent use.
type Controller struct {
	baseURL    string
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	user        *User
	loading     bool
	closed      bool
	pending     *pendingRefresh
	subscribers map[int]func(State)
	nextSubID   int
}

// Option customizes a Controller.
type Option func(*Controller)

// WithHTTPClient replaces the default HTTP client. The client should carry
// a cookie jar, otherwise the refresh session cookie is lost.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Controller) {
		c.httpClient = client
	}
}

// WithTimeout changes the timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Controller) {
		c.httpClient.Timeout = timeout
	}
}

// New creates a controller for the API at baseURL. The controller starts
// in the loading state; call Bootstrap to restore a previous session.
func New(baseURL string, opts ...Option) (*Controller, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	c := &Controller{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Jar:     jar,
		},
		loading:     true,
		subscribers: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Bootstrap restores the session of a returning visitor. It attempts a
// cookie refresh and, on success, loads the user profile. The state stays
// in Loading until the outcome is known, so a returning visitor is never
// flashed an Unauthenticated screen.
func (c *Controller) Bootstrap(ctx context.Context) error {
	token, err := c.refresh(ctx)
	if err != nil {
		c.setSignedOut()
		return err
	}

	user, err := c.fetchUser(ctx, token)
	if err != nil {
		c.setSignedOut()
		return err
	}

	c.setSignedIn(user)
	return nil
}

// SetAccessToken installs a token obtained out of band, such as the URL
// fragment of the login callback, and loads the matching user.
func (c *Controller) SetAccessToken(ctx context.Context, token string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("controller is closed")
	}
	c.accessToken = token
	c.mu.Unlock()

	user, err := c.fetchUser(ctx, token)
	if err != nil {
		c.setSignedOut()
		return err
	}

	c.setSignedIn(user)
	return nil
}

// RefreshUser reloads the profile of the signed-in user.
func (c *Controller) RefreshUser(ctx context.Context) error {
	c.mu.Lock()
	token := c.accessToken
	c.mu.Unlock()
	if token == "" {
		return fmt.Errorf("not signed in")
	}

	user, err := c.fetchUser(ctx, token)
	if err != nil {
		return err
	}

	c.setSignedIn(user)
	return nil
}

// Logout ends the session. The server call revokes the refresh session
// and clears the cookie; local state is cleared regardless of whether the
// server call succeeded.
func (c *Controller) Logout(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/logout", nil)
	if err == nil {
		resp, doErr := c.httpClient.Do(req)
		if doErr == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		err = doErr
	}

	c.setSignedOut()
	return err
}

// Do performs an authenticated request. It attaches the current access
// token, and on a 401 response refreshes once (shared across concurrent
// callers) and retries once. A second 401 transitions to signed-out and
// the response is returned as is.
func (c *Controller) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	token := c.accessToken
	c.mu.Unlock()

	resp, err := c.send(ctx, req, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	newToken, err := c.refresh(ctx)
	if err != nil {
		c.setSignedOut()
		return nil, fmt.Errorf("request unauthorized and refresh failed: %w", err)
	}

	retryResp, err := c.send(ctx, req, newToken)
	if err != nil {
		return nil, err
	}
	if retryResp.StatusCode == http.StatusUnauthorized {
		c.setSignedOut()
	}
	return retryResp, nil
}

// GuardState derives the route guard decision from the current state.
// A background refresh never takes the state back to Loading.
func (c *Controller) GuardState() GuardState {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.loading:
		return Loading
	case c.user != nil:
		return Authenticated
	default:
		return Unauthenticated
	}
}

// CurrentUser returns the signed-in user, or nil.
func (c *Controller) CurrentUser() *User {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

// OnChange registers a subscriber that is invoked with a state snapshot
// after every transition. The returned function unsubscribes.
func (c *Controller) OnChange(fn func(State)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return func() {}
	}

	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subscribers, id)
	}
}

// Close shuts the controller down. No state mutation happens and no
// subscriber is called after Close returns; in-flight network calls run to
// completion and their results are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.subscribers = nil
	c.user = nil
	c.accessToken = ""
	c.loading = false
}

// refresh obtains a fresh access token through the cookie session. Only
// one network refresh runs at a time; concurrent callers share its result.
func (c *Controller) refresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", fmt.Errorf("controller is closed")
	}
	if p := c.pending; p != nil {
		c.mu.Unlock()
		select {
		case <-p.done:
			return p.token, p.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	p := &pendingRefresh{done: make(chan struct{})}
	c.pending = p
	c.mu.Unlock()

	token, err := c.doRefresh(ctx)

	p.token = token
	p.err = err

	c.mu.Lock()
	c.pending = nil
	if !c.closed && err == nil {
		c.accessToken = token
	}
	c.mu.Unlock()

	close(p.done)
	return token, err
}

func (c *Controller) doRefresh(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/refresh", nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("refresh rejected with status %d: %s", resp.StatusCode, body)
	}

	var tokenResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("refresh response carried no access token")
	}
	return tokenResp.AccessToken, nil
}

func (c *Controller) fetchUser(ctx context.Context, token string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/auth/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("profile rejected with status %d: %s", resp.StatusCode, body)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode profile response: %w", err)
	}
	return &user, nil
}

// send issues one attempt of an authenticated request. The request body is
// rewound through GetBody so a retry can resend it.
func (c *Controller) send(ctx context.Context, req *http.Request, token string) (*http.Response, error) {
	attempt := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		attempt.Body = body
	}
	if token != "" {
		attempt.Header.Set("Authorization", "Bearer "+token)
	}
	return c.httpClient.Do(attempt)
}

func (c *Controller) setSignedIn(user *User) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.user = user
	c.loading = false
	subs, state := c.snapshotLocked()
	c.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

func (c *Controller) setSignedOut() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.user = nil
	c.accessToken = ""
	c.loading = false
	subs, state := c.snapshotLocked()
	c.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

func (c *Controller) snapshotLocked() ([]func(State), State) {
	subs := make([]func(State), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subs = append(subs, fn)
	}

	state := State{Loading: c.loading}
	if c.user != nil {
		u := *c.user
		state.User = &u
	}
	return subs, state
}
