// Package extract turns release-notes document text into ledger seeds.
package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/odyssey-erp/relnotes/internal/approval"
)

var (
	ruleLine      = regexp.MustCompile(`^-{3,}\s*(.*?)\s*-{3,}$`)
	bulletLine    = regexp.MustCompile(`^[•●*\-]\s*(.+?)\s*\(([^)]+)\)\s*:\s*(.*)$`)
	releaseLine   = regexp.MustCompile(`^(.+?):\s*(?:.*\b)?Release\s+(\S+)\s*$`)
	versionToken  = regexp.MustCompile(`^v?\d[\w.\-]*$`)
	ordinalDate   = regexp.MustCompile(`^(\d{1,2})(?:st|nd|rd|th)?\s+([A-Za-z]+)\s+(\d{4})$`)
	titlePrefixes = []string{"Daily Deployment Summary:", "Release Notes -", "Release Notes:", "Release "}
)

type mode int

const (
	modeBody mode = iota
	modeTLDR
	modeSection
)

// ParseDocument extracts the release date, TL;DR block and line items from document text.
// Status is never derived from the text.
func ParseDocument(text string) approval.Extraction {
	var (
		out         approval.Extraction
		current     = modeBody
		section     string
		deployments bool
		tldr        []string
		order       []string
		seeds       = make(map[string]*approval.Seed)
		summaries   = make(map[string]string)
	)
	upsert := func(name, version, summary string) {
		name = strings.TrimSpace(name)
		if approval.IsStructuralName(name) {
			return
		}
		key := strings.ToLower(name)
		seed, ok := seeds[key]
		if !ok {
			seed = &approval.Seed{Name: name}
			seeds[key] = seed
			order = append(order, key)
		}
		if seed.Version == "" {
			seed.Version = strings.TrimSpace(version)
		}
		if seed.Summary == "" {
			seed.Summary = strings.TrimSpace(summary)
		}
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "━") || strings.HasPrefix(line, "📅") {
			continue
		}
		if m := ruleLine.FindStringSubmatch(line); m != nil {
			label := strings.TrimSuffix(strings.TrimSpace(m[1]), ":")
			switch {
			case strings.EqualFold(label, "TL;DR"):
				current = modeTLDR
			case label == "":
				current = modeBody
			default:
				current, section = modeSection, label
			}
			continue
		}

		switch current {
		case modeTLDR:
			if isKeyDeployments(line) {
				continue
			}
			tldr = append(tldr, line)
			if m := bulletLine.FindStringSubmatch(line); m != nil {
				upsert(m[1], versionOf(m[2]), m[3])
				continue
			}
			if name, rest, ok := splitLabel(line); ok {
				summaries[strings.ToLower(name)] = rest
			}
		case modeSection:
			name, rest, ok := splitLabel(line)
			if ok && strings.EqualFold(name, section) {
				upsert(name, versionOf(rest), "")
			}
		default:
			if out.ReleaseDate == "" {
				if date, ok := titleDate(line); ok {
					out.ReleaseDate = date
					continue
				}
			}
			if isKeyDeployments(line) {
				deployments = true
				continue
			}
			if m := releaseLine.FindStringSubmatch(line); m != nil {
				upsert(m[1], m[2], "")
				continue
			}
			if name, rest, ok := splitLabel(line); ok && deployments && versionToken.MatchString(rest) {
				upsert(name, rest, "")
			}
		}
	}

	out.TLDR = strings.Join(tldr, "\n")
	for _, key := range order {
		seed := *seeds[key]
		if seed.Summary == "" {
			seed.Summary = summaries[key]
		}
		if seed.WellFormed() {
			out.Items = append(out.Items, seed)
		}
	}
	return out
}

// ParseTitleDate reads "19th October 2026" or "2026-10-19".
func ParseTitleDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if date, err := time.Parse(approval.DateLayout, raw); err == nil {
		return date, true
	}
	m := ordinalDate.FindStringSubmatch(raw)
	if m == nil {
		return time.Time{}, false
	}
	date, err := time.Parse("2 January 2006", m[1]+" "+m[2]+" "+m[3])
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}

func titleDate(line string) (string, bool) {
	for _, prefix := range titlePrefixes {
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		if date, ok := ParseTitleDate(strings.TrimPrefix(line, prefix)); ok {
			return date.Format(approval.DateLayout), true
		}
	}
	return "", false
}

func isKeyDeployments(line string) bool {
	return strings.EqualFold(strings.Trim(line, "*_ "), "Key Deployments:")
}

func splitLabel(line string) (string, string, bool) {
	line = strings.TrimLeft(line, "•●*- ")
	idx := strings.Index(line, ":")
	if idx <= 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}

// versionOf strips fix-version decorations: "DSP Core PL3 2026: Release 4.0" yields "4.0".
func versionOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if idx := strings.LastIndex(raw, "Release "); idx >= 0 {
		return strings.TrimSpace(raw[idx+len("Release "):])
	}
	return raw
}
