package main

import (
	"testing"

	"steamfetch/internal/api"
)

func TestShortID(t *testing.T) {
	if got := shortID("0123456789abcdef"); got != "01234567" {
		t.Fatalf("unexpected short id %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Fatalf("short ids pass through, got %q", got)
	}
}

func TestDescribeState(t *testing.T) {
	cases := []struct {
		name string
		job  api.JobView
		want string
	}{
		{"plain", api.JobView{State: "downloading"}, "downloading"},
		{"guard", api.JobView{State: "downloading", AwaitingGuardCode: true}, "downloading (guard code needed)"},
		{"cancelling", api.JobView{State: "downloading", CancelRequested: true}, "downloading (cancelling)"},
		{"cancelled", api.JobView{State: "cancelled", CancelRequested: true}, "cancelled"},
		{"retry", api.JobView{State: "queued", WillRetry: true, RetryInSeconds: 7}, "queued (retry in 7s)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := describeState(tc.job); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestDescribeProgress(t *testing.T) {
	job := api.JobView{Progress: api.ProgressView{
		Percent:         25.0,
		BytesDownloaded: 256 * 1024 * 1024,
		BytesTotal:      1024 * 1024 * 1024,
		ETASeconds:      90,
	}}
	got := describeProgress(job)
	want := " 25.0%  256 MiB / 1.0 GiB  ETA 1m30s"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	if got := describeProgress(api.JobView{}); got != "-" {
		t.Fatalf("expected placeholder for empty progress, got %q", got)
	}

	bare := api.JobView{Progress: api.ProgressView{Percent: 55.0}}
	if got := describeProgress(bare); got != " 55.0%" {
		t.Fatalf("expected bare percent, got %q", got)
	}
}

func TestJobTitleFallsBackToAppID(t *testing.T) {
	if got := jobTitle(api.JobView{AppID: 440}); got != "app 440" {
		t.Fatalf("unexpected fallback title %q", got)
	}
	if got := jobTitle(api.JobView{AppID: 440, Title: "Team Fortress 2"}); got != "Team Fortress 2" {
		t.Fatalf("unexpected title %q", got)
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable(
		[]string{"A", "B"},
		[][]string{{"1"}},
		[]columnAlignment{alignLeft, alignRight},
	)
	if out == "" {
		t.Fatal("expected rendered table")
	}
}
