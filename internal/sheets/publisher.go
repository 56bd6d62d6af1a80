package sheets

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/odyssey-erp/relnotes/internal/approval"
)

// Publisher writes each release into its own tab, named by release date.
type Publisher struct {
	svc     *gsheets.Service
	sheetID string
	loc     *time.Location
}

// NewPublisher authenticates with a service account file.
func NewPublisher(ctx context.Context, sheetID, credentialsFile string, loc *time.Location) (*Publisher, error) {
	svc, err := gsheets.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(gsheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("sheets: new service: %w", err)
	}
	return NewPublisherWithService(svc, sheetID, loc), nil
}

// NewPublisherWithService wraps an existing service client.
func NewPublisherWithService(svc *gsheets.Service, sheetID string, loc *time.Location) *Publisher {
	if loc == nil {
		loc = time.UTC
	}
	return &Publisher{svc: svc, sheetID: sheetID, loc: loc}
}

// URL links reviewers to the sheet.
func (p *Publisher) URL() string {
	return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/edit", p.sheetID)
}

// Publish overwrites the release tab with the current ledger.
func (p *Publisher) Publish(ctx context.Context, rel approval.Release) error {
	if err := p.ensureTab(ctx, rel.Date); err != nil {
		return err
	}
	rows := Rows(rel, p.loc)
	target := fmt.Sprintf("'%s'!A1:I%d", rel.Date, len(rows))
	_, err := p.svc.Spreadsheets.Values.Update(p.sheetID, target, &gsheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("sheets: update %s: %w", target, err)
	}
	return nil
}

func (p *Publisher) ensureTab(ctx context.Context, title string) error {
	doc, err := p.svc.Spreadsheets.Get(p.sheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets: get spreadsheet: %w", err)
	}
	for _, sheet := range doc.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == title {
			return nil
		}
	}
	req := &gsheets.BatchUpdateSpreadsheetRequest{Requests: []*gsheets.Request{{
		AddSheet: &gsheets.AddSheetRequest{Properties: &gsheets.SheetProperties{Title: title}},
	}}}
	if _, err := p.svc.Spreadsheets.BatchUpdate(p.sheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("sheets: add tab %s: %w", title, err)
	}
	return nil
}
