package dataset

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
	"scribe-pipeline-go/internal/logger"
)

func writeManifest(t *testing.T, rows [][]string) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for r, row := range rows {
		for c, v := range row {
			ref, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				t.Fatal(err)
			}
			if err := f.SetCellValue("Sheet1", ref, v); err != nil {
				t.Fatal(err)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "jobs.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadManifest(t *testing.T) {
	path := writeManifest(t, [][]string{
		{"Job ID", "Audio URL", "Tasks"},
		{"visit-1", "https://cdn.example.com/a.wav", "transcribe_audio, generate_note"},
		{"visit-2", "not a url", ""},
		{"", "http://cdn.example.com/c.wav", ""},
	})

	recs, err := Load(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(recs), recs)
	}
	if recs[0].JobID != "visit-1" || fmt.Sprint(recs[0].Tasks) != "[transcribe_audio generate_note]" {
		t.Fatalf("unexpected first record: %+v", recs[0])
	}
	if recs[1].JobID != "row-4" || len(recs[1].Tasks) != 0 {
		t.Fatalf("unexpected second record: %+v", recs[1])
	}
}

func TestLoadLogsThroughGivenLogger(t *testing.T) {
	path := writeManifest(t, [][]string{
		{"Job ID", "Audio URL"},
		{"visit-1", "https://cdn.example.com/a.wav"},
	})
	var buf bytes.Buffer
	if _, err := Load(path, logger.NewWithOutput(&buf, "production", "info")); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "manifest loaded") || !strings.Contains(out, `"component":"dataset"`) {
		t.Fatalf("log output = %q", out)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.xlsx"), nil); err == nil {
		t.Fatal("expected error for missing file")
	}
	headerOnly := writeManifest(t, [][]string{{"Job ID", "Audio URL"}})
	if _, err := Load(headerOnly, nil); err == nil {
		t.Fatal("expected error for header-only sheet")
	}
	noAudio := writeManifest(t, [][]string{{"Job ID", "Notes"}, {"a", "b"}})
	if _, err := Load(noAudio, nil); err == nil {
		t.Fatal("expected error without audio column")
	}
}

func TestSplitTasks(t *testing.T) {
	got := splitTasks(" transcribe_audio;extract_findings | save_record,, ")
	if fmt.Sprint(got) != "[transcribe_audio extract_findings save_record]" {
		t.Fatalf("splitTasks = %v", got)
	}
}
