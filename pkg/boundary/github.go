package boundary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// GithubAdapter is the outbound adapter for UnifiedTask ↔ GitHub issue
// linkage (spec §3 `github_issue_number/url/repo/sync_status`; SPEC_FULL
// §C). It talks to the GitHub REST API directly — no `gh` CLI shelling
// (spec §1 Non-goals).
type GithubAdapter struct {
	Token  string
	Client *http.Client
	APIURL string
}

// NewGithubAdapter constructs an adapter against the public GitHub API.
func NewGithubAdapter(token string) *GithubAdapter {
	return &GithubAdapter{
		Token:  token,
		Client: &http.Client{Timeout: 5 * time.Second},
		APIURL: "https://api.github.com",
	}
}

// IssueRef is the result of a successful create/update call.
type IssueRef struct {
	Number int
	URL    string
}

type githubIssuePayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type githubIssueResponse struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

// CreateIssue opens a new issue on repo ("owner/name"). Failures are
// returned to the caller, which leaves sync_status=pending and retries on
// the next sweep (spec §7 "Dependency": "GitHub unreachable ⇒ leave
// sync_status=pending, log, retry next sweep").
func (a *GithubAdapter) CreateIssue(ctx context.Context, repo, title, body string) (*IssueRef, error) {
	payload, err := json.Marshal(githubIssuePayload{Title: title, Body: body})
	if err != nil {
		return nil, fmt.Errorf("encode issue payload: %w", err)
	}
	url := fmt.Sprintf("%s/repos/%s/issues", a.APIURL, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build create-issue request: %w", err)
	}
	a.setHeaders(req)

	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("create issue: github returned %d", resp.StatusCode)
	}

	var out githubIssueResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode create-issue response: %w", err)
	}
	return &IssueRef{Number: out.Number, URL: out.HTMLURL}, nil
}

// UpdateIssue patches an existing issue's title/body.
func (a *GithubAdapter) UpdateIssue(ctx context.Context, repo string, number int, title, body string) error {
	payload, err := json.Marshal(githubIssuePayload{Title: title, Body: body})
	if err != nil {
		return fmt.Errorf("encode issue payload: %w", err)
	}
	url := fmt.Sprintf("%s/repos/%s/issues/%d", a.APIURL, repo, number)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build update-issue request: %w", err)
	}
	a.setHeaders(req)

	resp, err := a.Client.Do(req)
	if err != nil {
		return fmt.Errorf("update issue: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("update issue: github returned %d", resp.StatusCode)
	}
	return nil
}

func (a *GithubAdapter) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+a.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")
}
