package tracker

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/odyssey-erp/relnotes/internal/approval"
)

var (
	yearVersion  = regexp.MustCompile(`^(.+?)\s*\d{4}:\s*Release\s*(.*)$`)
	plainVersion = regexp.MustCompile(`^(.+?):\s*Release\s*(.*)$`)
)

// ParseFixVersion splits a fix-version name into product line and version.
// "DSP Core PL3 2026: Release 4.0" yields ("DSP Core PL3", "4.0").
func ParseFixVersion(name string) (string, string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ""
	}
	for _, re := range []*regexp.Regexp{yearVersion, plainVersion} {
		if m := re.FindStringSubmatch(name); m != nil {
			return strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		}
	}
	if idx := strings.Index(name, ":"); idx > 0 {
		return strings.TrimSpace(name[:idx]), strings.TrimSpace(name[idx+1:])
	}
	return name, ""
}

// IsHotfix reports whether a fix version is a hotfix and must be ignored.
func IsHotfix(name string) bool {
	return strings.Contains(strings.ToLower(name), "hotfix")
}

type productLine struct {
	name    string
	version string
	parsed  *semver.Version
	summary string
}

// Extract groups issues by product line. Each line keeps its highest version
// and the summary of the first ticket seen.
func Extract(issues []Issue, date time.Time) approval.Extraction {
	lines := make(map[string]*productLine)
	for _, issue := range issues {
		if isReleaseTicket(issue.Summary) {
			continue
		}
		for _, fv := range issue.FixVersions {
			if IsHotfix(fv.Name) {
				continue
			}
			name, version := ParseFixVersion(fv.Name)
			if name == "" || version == "" {
				continue
			}
			key := strings.ToLower(name)
			line, ok := lines[key]
			if !ok {
				line = &productLine{name: name, summary: strings.TrimSpace(issue.Summary)}
				lines[key] = line
			}
			line.offer(version)
		}
	}

	names := make([]string, 0, len(lines))
	for key := range lines {
		names = append(names, key)
	}
	sort.Strings(names)

	out := approval.Extraction{ReleaseDate: date.Format(approval.DateLayout)}
	tldr := make([]string, 0, len(names))
	for _, key := range names {
		line := lines[key]
		out.Items = append(out.Items, approval.Seed{Name: line.name, Version: line.version, Summary: line.summary})
		if line.summary != "" {
			tldr = append(tldr, fmt.Sprintf("%s: %s", line.name, line.summary))
		}
	}
	out.TLDR = strings.Join(tldr, "\n")
	return out
}

// offer keeps the higher of the current and candidate versions. Unparseable
// versions only win when nothing parseable has been seen.
func (p *productLine) offer(version string) {
	candidate, err := semver.NewVersion(version)
	switch {
	case p.version == "":
		p.version = version
		if err == nil {
			p.parsed = candidate
		}
	case err != nil:
		// keep current
	case p.parsed == nil || candidate.GreaterThan(p.parsed):
		p.version, p.parsed = version, candidate
	}
}

func isReleaseTicket(summary string) bool {
	lower := strings.ToLower(summary)
	return strings.HasPrefix(lower, "release ") && !strings.Contains(lower, ":")
}

// Extractor resolves a release date to ledger seeds through Jira.
type Extractor struct {
	client *Client
}

// NewExtractor constructs an extractor backed by client.
func NewExtractor(client *Client) *Extractor {
	return &Extractor{client: client}
}

// Extract finds the release ticket for date and groups its issues.
// A date without a release ticket yields an empty extraction.
func (e *Extractor) Extract(ctx context.Context, date time.Time) (approval.Extraction, error) {
	ticket, err := e.client.FindReleaseTicket(ctx, ReleaseSummary(approval.FormatTitle(date)))
	if errors.Is(err, ErrReleaseTicketNotFound) {
		return approval.Extraction{ReleaseDate: date.Format(approval.DateLayout)}, nil
	}
	if err != nil {
		return approval.Extraction{}, err
	}
	issues, err := e.client.ReleaseIssues(ctx, ticket)
	if err != nil {
		return approval.Extraction{}, err
	}
	return Extract(issues, date), nil
}
