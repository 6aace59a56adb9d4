package pipeline

import (
	"context"
	"strings"

	"intake/internal/dedup"
	"intake/internal/logging"
	"intake/internal/services"
	"intake/internal/state"
	"intake/internal/tracks"
)

// firstDataRow is the sheet row number of the first response; row 1 holds
// the headers.
const firstDataRow = 2

// IngestResult summarizes one ingest pass.
type IngestResult struct {
	Rows     int      `json:"rows"`
	Enqueued []string `json:"enqueued"`
	Skipped  int      `json:"skipped"`
}

// Ingest reads the sheet and queues a job for every row not already tracked
// by a job or application. All new jobs are persisted in one save.
func (p *Pipeline) Ingest(ctx context.Context) (IngestResult, error) {
	var result IngestResult
	if p.sheet == nil {
		return result, services.Wrap(services.ErrConfiguration, "pipeline", "ingest", "no sheet reader configured", nil)
	}
	rows, err := p.sheet.ReadAll(ctx)
	if err != nil {
		return result, err
	}
	if len(rows) == 0 {
		return result, nil
	}
	headers := rows[0]
	data := rows[1:]
	result.Rows = len(data)
	keyed := dedup.HasTimestampColumn(headers)
	now := p.now()

	var enqueued []state.PostJob
	err = p.store.Update(ctx, func(doc *state.Document) error {
		enqueued = enqueued[:0]
		result.Skipped = 0
		registry := tracks.FromDocument(doc)
		seen := dedup.NewSeen(doc)
		for i, row := range data {
			rowIndex := firstDataRow + i
			if blankRow(row) {
				continue
			}
			responseKey := ""
			if keyed {
				responseKey = dedup.ResponseKey(headers, row)
			}
			if seen.Contains(rowIndex, responseKey) {
				result.Skipped++
				continue
			}
			sub := dedup.Parse(headers, row)
			job, err := doc.Enqueue(rowIndex, registry.Classify(sub.TrackSelection), responseKey, headers, row, now)
			if err != nil {
				return err
			}
			seen.Add(rowIndex, responseKey)
			enqueued = append(enqueued, job)
		}
		if len(enqueued) == 0 {
			return state.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	for _, job := range enqueued {
		result.Enqueued = append(result.Enqueued, job.ID)
		p.metrics.JobEnqueued()
		p.logger.Info("post job queued",
			logging.String(logging.FieldEventType, "job_enqueued"),
			logging.String(logging.FieldJobID, job.ID),
			logging.Int("row_index", job.RowIndex),
			logging.String("tracks", strings.Join(job.TrackKeys, ",")),
		)
	}
	return result, nil
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
