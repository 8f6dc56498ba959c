package dataset

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
	"scribe-pipeline-go/internal/logger"
	"scribe-pipeline-go/internal/types"
)

// Load reads a batch manifest from the first sheet of an xlsx file. Columns
// are found by header heuristics: a job id, an audio URL and an optional
// comma-separated task list. Rows without an http(s) URL are skipped, and
// rows without an id get one derived from their row number. log may be nil.
func Load(path string, log *logger.Logger) ([]types.JobRecord, error) {
	if log == nil {
		log = logger.Discard()
	}
	entry := log.WithField("component", "dataset").WithField("path", path)
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, fmt.Errorf("no data rows")
	}

	cols := detectColumns(rows[0])
	if cols.audio == -1 {
		return nil, fmt.Errorf("no audio url column in header %v", rows[0])
	}

	var out []types.JobRecord
	skipped := 0
	for i, r := range rows[1:] {
		rec := types.JobRecord{
			JobID:    strings.TrimSpace(cell(r, cols.id)),
			AudioURL: strings.TrimSpace(cell(r, cols.audio)),
			Tasks:    splitTasks(cell(r, cols.tasks)),
		}
		lower := strings.ToLower(rec.AudioURL)
		if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
			skipped++
			continue
		}
		if rec.JobID == "" {
			rec.JobID = fmt.Sprintf("row-%d", i+2)
		}
		out = append(out, rec)
	}
	entry.WithField("jobs", len(out)).WithField("skipped", skipped).Info("manifest loaded")
	return out, nil
}

type columns struct {
	id, audio, tasks int
}

func detectColumns(header []string) columns {
	c := columns{id: -1, audio: -1, tasks: -1}
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(l, "task") || strings.Contains(l, "step"):
			if c.tasks == -1 {
				c.tasks = i
			}
		case strings.Contains(l, "audio") || strings.Contains(l, "record") || strings.Contains(l, "url") || strings.Contains(l, "link"):
			if c.audio == -1 {
				c.audio = i
			}
		case strings.Contains(l, "id"):
			if c.id == -1 {
				c.id = i
			}
		}
	}
	return c
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func splitTasks(s string) []string {
	var out []string
	for _, t := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == '|' }) {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
