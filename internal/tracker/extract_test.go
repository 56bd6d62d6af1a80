package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/relnotes/internal/approval"
)

func TestParseFixVersion(t *testing.T) {
	cases := []struct {
		in, name, version string
	}{
		{"DSP Core PL3 2026: Release 4.0", "DSP Core PL3", "4.0"},
		{"DSP Core PL1: Release 3.0", "DSP Core PL1", "3.0"},
		{"Developer Experience: Release 6.0", "Developer Experience", "6.0"},
		{"Audiences PL2: 4.1", "Audiences PL2", "4.1"},
		{"Helix", "Helix", ""},
		{"", "", ""},
	}
	for _, tc := range cases {
		name, version := ParseFixVersion(tc.in)
		require.Equal(t, tc.name, name, tc.in)
		require.Equal(t, tc.version, version, tc.in)
	}
}

func TestExtractGroupsByProductLine(t *testing.T) {
	date := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	issues := []Issue{
		{Key: "DI-1", Summary: "Release 19th October 2026", FixVersions: []FixVersion{{Name: "DSP Core PL3 2026: Release 9.0"}}},
		{Key: "DI-2", Summary: "Bid shading for premium", FixVersions: []FixVersion{{Name: "DSP Core PL3 2026: Release 4.0"}}},
		{Key: "DI-3", Summary: "Latency fixes", FixVersions: []FixVersion{{Name: "DSP Core PL3 2026: Release 4.10"}}},
		{Key: "DI-4", Summary: "Lookalikes", FixVersions: []FixVersion{
			{Name: "Audiences PL2: Release 4.1"},
			{Name: "Audiences PL2: Hotfix 4.1.1"},
		}},
		{Key: "DI-5", Summary: "Urgent patch", FixVersions: []FixVersion{{Name: "Helix Hotfix: Release 3.0.1"}}},
		{Key: "DI-6", Summary: "No version"},
	}

	got := Extract(issues, date)
	require.Equal(t, "2026-10-19", got.ReleaseDate)
	require.Equal(t, []approval.Seed{
		{Name: "Audiences PL2", Version: "4.1", Summary: "Lookalikes"},
		{Name: "DSP Core PL3", Version: "4.10", Summary: "Bid shading for premium"},
	}, got.Items)
	require.Equal(t, "Audiences PL2: Lookalikes\nDSP Core PL3: Bid shading for premium", got.TLDR)
}

func TestProductLineOfferPrefersParseableVersions(t *testing.T) {
	line := &productLine{}
	line.offer("next")
	require.Equal(t, "next", line.version)
	line.offer("2.0")
	require.Equal(t, "2.0", line.version)
	line.offer("1.5")
	require.Equal(t, "2.0", line.version)
	line.offer("garbage")
	require.Equal(t, "2.0", line.version)
}
