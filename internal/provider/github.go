package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const (
	githubUserURL   = "https://api.github.com/user"
	githubEmailsURL = "https://api.github.com/user/emails"
)

// GitHubProvider implements Provider for GitHub sign-in. GitHub hides the
// email on the /user endpoint for many accounts, so the primary verified
// address is fetched from /user/emails separately.
type GitHubProvider struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewGitHubProvider builds a GitHub provider from client credentials.
func NewGitHubProvider(clientID, clientSecret, redirectURL string) (*GitHubProvider, error) {
	if strings.TrimSpace(clientID) == "" || strings.TrimSpace(clientSecret) == "" {
		return nil, fmt.Errorf("github client id and secret are required")
	}
	if strings.TrimSpace(redirectURL) == "" {
		return nil, fmt.Errorf("github redirect url is required")
	}
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (p *GitHubProvider) Name() string {
	return "github"
}

func (p *GitHubProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("github code exchange failed: %w", err)
	}
	return token, nil
}

func (p *GitHubProvider) FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	var user struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := p.getJSON(ctx, token, githubUserURL, &user); err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("github user response has no id")
	}

	email := strings.TrimSpace(user.Email)
	if email == "" {
		fetched, err := p.fetchPrimaryEmail(ctx, token)
		if err != nil {
			return nil, err
		}
		email = fetched
	}

	displayName := strings.TrimSpace(user.Name)
	if displayName == "" {
		displayName = strings.TrimSpace(user.Login)
	}

	return &Profile{
		Sub:         strconv.FormatInt(user.ID, 10),
		Email:       email,
		DisplayName: displayName,
		AvatarURL:   strings.TrimSpace(user.AvatarURL),
	}, nil
}

// fetchPrimaryEmail returns the primary verified address, falling back to
// the first verified one.
func (p *GitHubProvider) fetchPrimaryEmail(ctx context.Context, token *oauth2.Token) (string, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := p.getJSON(ctx, token, githubEmailsURL, &emails); err != nil {
		return "", err
	}

	fallback := ""
	for _, e := range emails {
		if !e.Verified {
			continue
		}
		if e.Primary {
			return strings.TrimSpace(e.Email), nil
		}
		if fallback == "" {
			fallback = strings.TrimSpace(e.Email)
		}
	}
	return fallback, nil
}

func (p *GitHubProvider) getJSON(ctx context.Context, token *oauth2.Token, url string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create github request: %w", err)
	}
	token.SetAuthHeader(req)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("github request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("github api status=%d body=%s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(dest); err != nil {
		return fmt.Errorf("failed to parse github response: %w", err)
	}
	return nil
}
