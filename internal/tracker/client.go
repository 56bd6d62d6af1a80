// Package tracker reads release data from Jira.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	searchPageSize = 100
	fetchLimit     = 8
)

var (
	// ErrReleaseTicketNotFound indicates no ticket carries the release summary.
	ErrReleaseTicketNotFound = errors.New("tracker: release ticket not found")
	// ErrUnauthorized indicates Jira rejected the credentials.
	ErrUnauthorized = errors.New("tracker: unauthorized")
)

// Config holds Jira connection settings.
type Config struct {
	BaseURL string
	Email   string
	Token   string
	Project string
	Timeout time.Duration
}

// Client is a minimal Jira Cloud REST v3 client.
type Client struct {
	baseURL    string
	email      string
	token      string
	project    string
	httpClient *http.Client
}

// NewClient constructs a Jira client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		email:   cfg.Email,
		token:   cfg.Token,
		project: cfg.Project,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FixVersion is a Jira fix version reference.
type FixVersion struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Issue is the subset of Jira issue fields the extractor needs.
type Issue struct {
	Key         string
	Summary     string
	FixVersions []FixVersion
}

type issueLink struct {
	InwardIssue  *struct{ Key string } `json:"inwardIssue"`
	OutwardIssue *struct{ Key string } `json:"outwardIssue"`
}

type issueDTO struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string       `json:"summary"`
		FixVersions []FixVersion `json:"fixVersions"`
		IssueLinks  []issueLink  `json:"issuelinks"`
	} `json:"fields"`
}

func (d issueDTO) issue() Issue {
	return Issue{Key: d.Key, Summary: d.Fields.Summary, FixVersions: d.Fields.FixVersions}
}

type searchRequest struct {
	JQL           string   `json:"jql"`
	Fields        []string `json:"fields"`
	MaxResults    int      `json:"maxResults"`
	NextPageToken string   `json:"nextPageToken,omitempty"`
}

type searchResponse struct {
	Issues        []issueDTO `json:"issues"`
	NextPageToken string     `json:"nextPageToken"`
	IsLast        bool       `json:"isLast"`
}

// ReleaseSummary is the summary of the release ticket for a date, e.g. "Release 19th October 2026".
func ReleaseSummary(title string) string {
	return "Release " + title
}

// FindReleaseTicket finds the release ticket whose summary matches exactly.
func (c *Client) FindReleaseTicket(ctx context.Context, summary string) (Issue, error) {
	jql := fmt.Sprintf(`project = %s AND summary ~ "%s"`, c.project, escapeJQL(summary))
	issues, err := c.search(ctx, jql, []string{"summary", "fixVersions"})
	if err != nil {
		return Issue{}, err
	}
	for _, issue := range issues {
		if strings.TrimSpace(issue.Fields.Summary) == strings.TrimSpace(summary) {
			return issue.issue(), nil
		}
	}
	return Issue{}, fmt.Errorf("%w: %q", ErrReleaseTicketNotFound, summary)
}

// ReleaseIssues returns the tickets shipped with the release ticket.
// Linked issues are preferred; without links the release ticket's fix versions are searched.
func (c *Client) ReleaseIssues(ctx context.Context, release Issue) ([]Issue, error) {
	var detail issueDTO
	if err := c.do(ctx, http.MethodGet, "issue/"+url.PathEscape(release.Key), url.Values{"fields": {"issuelinks,fixVersions"}}, nil, &detail); err != nil {
		return nil, err
	}

	var keys []string
	for _, link := range detail.Fields.IssueLinks {
		if link.InwardIssue != nil {
			keys = append(keys, link.InwardIssue.Key)
		}
		if link.OutwardIssue != nil {
			keys = append(keys, link.OutwardIssue.Key)
		}
	}
	if len(keys) == 0 {
		versions := make([]string, 0, len(detail.Fields.FixVersions))
		for _, fv := range detail.Fields.FixVersions {
			if fv.Name != "" && !IsHotfix(fv.Name) {
				versions = append(versions, fv.Name)
			}
		}
		if len(versions) == 0 {
			return nil, nil
		}
		found, err := c.searchByFixVersions(ctx, versions, release.Key)
		if err != nil {
			return nil, err
		}
		for _, issue := range found {
			keys = append(keys, issue.Key)
		}
	}
	return c.Issues(ctx, dedupe(keys))
}

// Issues fetches issue details concurrently, preserving the order of keys.
func (c *Client) Issues(ctx context.Context, keys []string) ([]Issue, error) {
	out := make([]Issue, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchLimit)
	for idx, key := range keys {
		g.Go(func() error {
			var dto issueDTO
			if err := c.do(gctx, http.MethodGet, "issue/"+url.PathEscape(key), url.Values{"fields": {"summary,fixVersions"}}, nil, &dto); err != nil {
				return fmt.Errorf("fetch %s: %w", key, err)
			}
			out[idx] = dto.issue()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) searchByFixVersions(ctx context.Context, versions []string, exclude string) ([]issueDTO, error) {
	conds := make([]string, len(versions))
	for idx, v := range versions {
		conds[idx] = fmt.Sprintf(`fixVersion = "%s"`, escapeJQL(v))
	}
	jql := "(" + strings.Join(conds, " OR ") + ")"
	if exclude != "" {
		jql += " AND key != " + exclude
	}
	return c.search(ctx, jql, []string{"summary"})
}

func (c *Client) search(ctx context.Context, jql string, fields []string) ([]issueDTO, error) {
	var (
		out   []issueDTO
		token string
	)
	for {
		var resp searchResponse
		req := searchRequest{JQL: jql, Fields: fields, MaxResults: searchPageSize, NextPageToken: token}
		if err := c.do(ctx, http.MethodPost, "search/jql", nil, req, &resp); err != nil {
			return nil, err
		}
		out = append(out, resp.Issues...)
		if resp.IsLast || resp.NextPageToken == "" {
			return out, nil
		}
		token = resp.NextPageToken
	}
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body, target any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	endpointURL := fmt.Sprintf("%s/rest/api/3/%s", c.baseURL, endpoint)
	if len(query) > 0 {
		endpointURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpointURL, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.email, c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode >= 400:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("jira %s %s returned status %d: %s", method, endpoint, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

func escapeJQL(value string) string {
	return strings.ReplaceAll(value, `"`, `\"`)
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
