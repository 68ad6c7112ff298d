package pipeline

import (
	"github.com/sells-group/review-pulse/internal/model"
	"github.com/sells-group/review-pulse/internal/redact"
)

// IngestResult is the outcome of normalizing one fetch batch. Reviews holds
// the canonical records in arrival order; the counters feed RunStats.
type IngestResult struct {
	Reviews           []model.Review
	SkippedMalformed  int
	OutsideWindow     int
	DuplicatesDropped int
}

// Ingest normalizes raw store records into canonical reviews: redact the
// text, validate rating and date, fingerprint, drop records outside the
// window and dedupe keep-first. It is pure; persistence happens in the
// orchestrator so re-running ingest over the same input is always a no-op
// at the store layer.
func Ingest(raw []model.RawReview, window model.Window) IngestResult {
	var res IngestResult
	seen := make(map[string]bool, len(raw))

	for _, r := range raw {
		content := redact.Redact(r.Text)
		if content == "" || !r.Source.Valid() || r.Date.IsZero() || r.Rating < 1 || r.Rating > 5 {
			res.SkippedMalformed++
			continue
		}

		if !window.Contains(r.Date) {
			res.OutsideWindow++
			continue
		}

		fp := model.Fingerprint(content, r.Date, r.Source)
		key := string(r.Source) + "|" + fp
		if seen[key] {
			res.DuplicatesDropped++
			continue
		}
		seen[key] = true

		res.Reviews = append(res.Reviews, model.Review{
			Source:      r.Source,
			ExternalID:  r.ExternalID,
			Content:     content,
			Rating:      r.Rating,
			Date:        r.Date.UTC(),
			ThumbsUp:    r.ThumbsUp,
			AppVersion:  r.AppVersion,
			Fingerprint: fp,
		})
	}

	return res
}
