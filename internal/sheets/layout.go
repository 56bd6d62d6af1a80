// Package sheets renders releases into a Google Sheet and maps sheet edits back to decisions.
package sheets

import (
	"strings"
	"time"

	"github.com/odyssey-erp/relnotes/internal/approval"
)

// Column indexes, 0-based, of a release section.
const (
	ColName = iota
	ColVersion
	ColTLDR
	ColStatus
	ColVotedBy
	ColVotedAt
	ColApprove
	ColReject
	ColTomorrow
	columnCount
)

// Header is the column header row.
var Header = []string{"PL Name", "Version", "TL;DR", "Status", "Voted By", "Voted At", "✓", "✗", "→"}

// Layout locates the item rows of a release section. Rows are 1-based like the sheet UI.
type Layout struct {
	FirstItemRow int
	Items        int
}

// LayoutFor returns the layout Publisher writes for rel: date header, column header, then items.
func LayoutFor(rel approval.Release) Layout {
	return Layout{FirstItemRow: 3, Items: len(rel.Items)}
}

// EditEvent is a single cell edit reported by the sheet.
type EditEvent struct {
	Row    int
	Column int
	Value  string
}

// EditAction is a vote derived from an edit.
type EditAction struct {
	Position int
	Decision approval.Status
}

// MapEdit converts an edit into a vote. Edits outside the vote columns, on
// header rows or with an empty value are not votes.
func MapEdit(layout Layout, evt EditEvent) (EditAction, bool) {
	if strings.TrimSpace(evt.Value) == "" {
		return EditAction{}, false
	}
	position := evt.Row - layout.FirstItemRow
	if position < 0 || position >= layout.Items {
		return EditAction{}, false
	}
	var decision approval.Status
	switch evt.Column {
	case ColApprove:
		decision = approval.StatusApproved
	case ColReject:
		decision = approval.StatusRejected
	case ColTomorrow:
		decision = approval.StatusDeferred
	default:
		return EditAction{}, false
	}
	return EditAction{Position: position, Decision: decision}, true
}

// Rows renders rel as sheet values.
func Rows(rel approval.Release, loc *time.Location) [][]interface{} {
	if loc == nil {
		loc = time.UTC
	}
	rows := make([][]interface{}, 0, len(rel.Items)+2)
	rows = append(rows, padRow("📅 Release: "+rel.Title))
	header := make([]interface{}, len(Header))
	for idx, h := range Header {
		header[idx] = h
	}
	rows = append(rows, header)
	for _, item := range rel.Items {
		votedBy, votedAt := "-", "-"
		if item.VotedBy != "" {
			votedBy = item.VotedBy
		}
		if item.VotedAt != nil {
			votedAt = item.VotedAt.In(loc).Format("2006-01-02 15:04")
		}
		rows = append(rows, []interface{}{
			item.Name,
			item.Version,
			item.Summary,
			approval.Label(item.Status),
			votedBy,
			votedAt,
			"✓",
			"✗",
			"→",
		})
	}
	return rows
}

func padRow(first string) []interface{} {
	row := make([]interface{}, columnCount)
	row[0] = first
	for idx := 1; idx < columnCount; idx++ {
		row[idx] = ""
	}
	return row
}
