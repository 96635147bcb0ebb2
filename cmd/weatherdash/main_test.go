package main

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"weatherdash/internal/ingest"
)

func TestPrintResults(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)

	err := printResults(cmd, []ingestResult{
		{StationKey: "97200", Envelope: ingest.Envelope{StatusCode: http.StatusCreated, Body: `{}`}},
		{StationKey: "71420", Envelope: ingest.Envelope{StatusCode: http.StatusOK, Body: `{}`}},
	})
	if err != nil {
		t.Fatalf("printResults() error = %v", err)
	}
	if got := strings.Count(out.String(), "\n"); got != 2 {
		t.Errorf("printed %d lines, want 2:\n%s", got, out.String())
	}

	out.Reset()
	err = printResults(cmd, []ingestResult{
		{StationKey: "97200", Envelope: ingest.Envelope{StatusCode: http.StatusCreated}},
		{StationKey: "00000", Envelope: ingest.Envelope{StatusCode: http.StatusBadRequest}},
	})
	if err == nil || !strings.Contains(err.Error(), "1 of 2") {
		t.Errorf("printResults() error = %v, want 1 of 2 failed", err)
	}
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "ingest", "migrate", "watch"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("subcommand %q not registered (err=%v)", name, err)
		}
	}
}
