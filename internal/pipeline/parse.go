package pipeline

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/review-pulse/internal/model"
)

// cleanJSON strips markdown fences and surrounding prose from an LLM
// response, keeping the outermost JSON array or object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	openArr := strings.Index(text, "[")
	openObj := strings.Index(text, "{")

	switch {
	case openArr >= 0 && (openObj < 0 || openArr < openObj):
		if end := strings.LastIndex(text, "]"); end > openArr {
			return text[openArr : end+1]
		}
	case openObj >= 0:
		if end := strings.LastIndex(text, "}"); end > openObj {
			return text[openObj : end+1]
		}
	}
	return text
}

// parseThemes decodes a discovery response into themes. Entries with empty
// names and entries that collide with reserved labels are dropped; the
// result is capped at maxThemes. An empty result is an error so the caller
// can retry with a stricter instruction.
func parseThemes(text string, maxThemes int) ([]model.Theme, error) {
	var raw []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(text)), &raw); err != nil {
		return nil, eris.Wrap(err, "pipeline: parse themes")
	}

	seen := make(map[string]bool, len(raw))
	themes := make([]model.Theme, 0, len(raw))
	for _, r := range raw {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if key == strings.ToLower(model.ThemeNoIssue) || key == strings.ToLower(model.ThemeFallback) {
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		themes = append(themes, model.Theme{Name: name, Description: strings.TrimSpace(r.Description)})
		if len(themes) == maxThemes {
			break
		}
	}

	if len(themes) == 0 {
		return nil, eris.New("pipeline: discovery returned no usable themes")
	}
	return themes, nil
}

// rawClassification is one element of a classification batch response.
// Index is 1-based, matching the numbering in the prompt.
type rawClassification struct {
	Index      int     `json:"index"`
	Theme      string  `json:"theme"`
	Sentiment  string  `json:"sentiment"`
	Confidence float64 `json:"confidence"`
}

// parseClassifications decodes a batch classification response. It does not
// validate indices or labels; the caller reconciles them against the batch.
func parseClassifications(text string) ([]rawClassification, error) {
	var raw []rawClassification
	if err := json.Unmarshal([]byte(cleanJSON(text)), &raw); err != nil {
		return nil, eris.Wrap(err, "pipeline: parse classifications")
	}
	if len(raw) == 0 {
		return nil, eris.New("pipeline: classification returned no entries")
	}
	return raw, nil
}

// parseActions decodes an action generation response. Entries without a
// title are dropped; priority and effort fall back to "medium" when the
// model returns something outside the known labels.
func parseActions(text string) ([]model.ActionItem, error) {
	var raw []model.ActionItem
	if err := json.Unmarshal([]byte(cleanJSON(text)), &raw); err != nil {
		return nil, eris.Wrap(err, "pipeline: parse actions")
	}

	actions := make([]model.ActionItem, 0, len(raw))
	for _, a := range raw {
		a.Title = strings.TrimSpace(a.Title)
		if a.Title == "" {
			continue
		}
		a.Priority = normalizeLabel(a.Priority, "high", "medium", "low")
		a.Effort = normalizeLabel(a.Effort, "quick-win", "medium", "large")
		actions = append(actions, a)
	}

	if len(actions) == 0 {
		return nil, eris.New("pipeline: actions response had no usable entries")
	}
	return actions, nil
}

func normalizeLabel(v string, allowed ...string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return "medium"
}
