package approvalhttp

import (
	"time"

	"github.com/odyssey-erp/relnotes/internal/approval"
)

type seedItemRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Version string `json:"version" validate:"required,max=64"`
	Summary string `json:"summary" validate:"max=2000"`
}

type seedRequest struct {
	Title string            `json:"title" validate:"max=200"`
	TLDR  string            `json:"tldr" validate:"max=10000"`
	Items []seedItemRequest `json:"items" validate:"required,min=1,dive"`
}

type voteRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve approved reject rejected defer deferred tomorrow"`
	Voter    string `json:"voter" validate:"required,max=100"`
}

type editRequest struct {
	Row    int    `json:"row" validate:"required,gt=0"`
	Column int    `json:"column" validate:"gte=0"`
	Value  string `json:"value"`
	Voter  string `json:"voter" validate:"required,max=100"`
}

type resetRequest struct {
	Actor string `json:"actor" validate:"max=100"`
}

type resetAllRequest struct {
	Confirm string `json:"confirm"`
	Actor   string `json:"actor" validate:"max=100"`
}

type announceRequest struct {
	By string `json:"by" validate:"required,max=100"`
}

type itemView struct {
	Position    int        `json:"position"`
	Name        string     `json:"name"`
	Version     string     `json:"version"`
	Summary     string     `json:"summary,omitempty"`
	Status      string     `json:"status"`
	Label       string     `json:"label"`
	VotedBy     string     `json:"voted_by,omitempty"`
	VotedAt     *time.Time `json:"voted_at,omitempty"`
	CarriedOver bool       `json:"carried_over"`
}

type releaseView struct {
	Date        string         `json:"date"`
	Title       string         `json:"title"`
	TLDR        string         `json:"tldr,omitempty"`
	Announced   bool           `json:"announced"`
	AnnouncedAt *time.Time     `json:"announced_at,omitempty"`
	AnnouncedBy string         `json:"announced_by,omitempty"`
	Stats       approval.Stats `json:"stats"`
	Items       []itemView     `json:"items"`
}

func toItemView(item approval.LineItem) itemView {
	return itemView{
		Position:    item.Position,
		Name:        item.Name,
		Version:     item.Version,
		Summary:     item.Summary,
		Status:      string(item.Status),
		Label:       approval.Label(item.Status),
		VotedBy:     item.VotedBy,
		VotedAt:     item.VotedAt,
		CarriedOver: item.CarriedFrom != nil,
	}
}

func toReleaseView(rel approval.Release) releaseView {
	items := make([]itemView, 0, len(rel.Items))
	for _, item := range rel.Items {
		items = append(items, toItemView(item))
	}
	return releaseView{
		Date:        rel.Date,
		Title:       rel.Title,
		TLDR:        rel.TLDR,
		Announced:   rel.Announced,
		AnnouncedAt: rel.AnnouncedAt,
		AnnouncedBy: rel.AnnouncedBy,
		Stats:       approval.ComputeStats(rel),
		Items:       items,
	}
}

func toSeeds(items []seedItemRequest) []approval.Seed {
	out := make([]approval.Seed, len(items))
	for idx, item := range items {
		out[idx] = approval.Seed{Name: item.Name, Version: item.Version, Summary: item.Summary}
	}
	return out
}
