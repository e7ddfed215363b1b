package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/lead-enrichment/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2026, 6, 15, 10, 30, 0, 0, time.UTC)
	finished := now.Add(2 * time.Minute)
	runs := []model.Run{
		{
			ID:         "abc12345-6789-0000-0000-000000000000",
			Kind:       model.RunKindEnrich,
			Status:     model.RunStatusComplete,
			Total:      12,
			Succeeded:  11,
			Failed:     1,
			Scored:     11,
			CostUSD:    0.0312,
			StartedAt:  now,
			FinishedAt: &finished,
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Kind:      model.RunKindRescore,
			Status:    model.RunStatusRunning,
			StartedAt: now.Add(-1 * time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "KIND")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "abc12345")
	assert.Contains(t, output, "enrich")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "$0.0312")
	assert.Contains(t, output, "2m0s")
	assert.Contains(t, output, "rescore")
	assert.Contains(t, output, "running")
	assert.Contains(t, output, "2026-06-15 10:30")
}

func TestFormatOutcomes(t *testing.T) {
	outcomes := []model.CandidateOutcome{
		{
			CandidateID: "page-1",
			Name:        "Happy Paws Veterinary Clinic of Greater Springfield",
			Outcome:     model.OutcomeSucceeded,
			Attempts:    2,
			Score:       model.IntPtr(81),
			Tier:        "Hot",
		},
		{
			CandidateID: "page-2",
			Name:        "Oak Vet",
			Outcome:     model.OutcomeFailed,
			Attempts:    2,
			Reason:      "crawl: connection failure: no page of https://oak.example.com could be fetched after retries",
		},
	}

	var buf bytes.Buffer
	formatOutcomes(&buf, outcomes)

	output := buf.String()
	assert.Contains(t, output, "Happy Paws Veterinary Clini...")
	assert.Contains(t, output, "succeeded")
	assert.Contains(t, output, "81")
	assert.Contains(t, output, "Hot")
	assert.Contains(t, output, "failed")
	assert.Contains(t, output, "crawl: connection failure")
	assert.Contains(t, output, "...")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}
