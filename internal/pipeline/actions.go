package pipeline

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/review-pulse/internal/model"
	"github.com/sells-group/review-pulse/internal/resilience"
	"github.com/sells-group/review-pulse/pkg/llm"
)

// negativeEscalationThreshold is the per-theme negative review count above
// which an action is forced to high priority.
const negativeEscalationThreshold = 10

// ActionTemplate is a canned recommendation used when the LLM cannot
// produce actions. A template applies to a theme when any match keyword is
// a substring of the theme name; an empty match list is the catch-all.
type ActionTemplate struct {
	Match       []string `yaml:"match"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Effort      string   `yaml:"effort"`
}

// DefaultActionTemplates returns the built-in recommendation templates.
func DefaultActionTemplates() []ActionTemplate {
	return []ActionTemplate{
		{
			Match:       []string{"support", "service"},
			Title:       "Improve customer support response times",
			Description: "Implement ticket prioritization and set SLA targets for response times. Consider adding live chat support.",
			Effort:      "medium",
		},
		{
			Match:       []string{"crash", "app", "performance", "bug"},
			Title:       "Fix app stability and performance issues",
			Description: "Prioritize crash fixes and performance optimization. Add crash reporting for better debugging.",
			Effort:      "medium",
		},
		{
			Match:       []string{"withdrawal", "payment", "refund", "money"},
			Title:       "Streamline withdrawal and payment flows",
			Description: "Review and optimize the payment pipeline. Add status tracking and proactive notifications.",
			Effort:      "large",
		},
		{
			Match:       []string{"data", "price", "accuracy"},
			Title:       "Improve data accuracy and display",
			Description: "Audit data sources for accuracy. Fix display issues and add missing indicators.",
			Effort:      "medium",
		},
		{
			Title:       "Address user complaints",
			Description: "Review user feedback and prioritize fixes based on impact.",
			Effort:      "medium",
		},
	}
}

// LoadActionTemplates reads recommendation templates from a YAML file,
// replacing the built-in set.
func LoadActionTemplates(path string) ([]ActionTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: read action templates")
	}
	var templates []ActionTemplate
	if err := yaml.Unmarshal(data, &templates); err != nil {
		return nil, eris.Wrap(err, "pipeline: parse action templates")
	}
	if len(templates) == 0 {
		return nil, eris.New("pipeline: action templates file is empty")
	}
	return templates, nil
}

// GenerateActions asks the LLM for one recommendation per ranked theme. The
// call is made once; if it fails or the response is unusable after the
// retry budget, deterministic templates take over so the pulse always
// carries actions. Either way a theme with a high negative count escalates
// its action to high priority.
func GenerateActions(
	ctx context.Context,
	ai llm.Client,
	product string,
	themes []model.ThemeSummary,
	templates []ActionTemplate,
	retryCfg resilience.RetryConfig,
) ([]model.ActionItem, model.TokenUsage) {
	var usage model.TokenUsage
	if len(themes) == 0 {
		return nil, usage
	}
	if len(templates) == 0 {
		templates = DefaultActionTemplates()
	}

	log := zap.L().With(zap.String("phase", "actions"))

	if ai != nil {
		prompt := buildActionsPrompt(product, themes)

		cfg := retryCfg
		cfg.ShouldRetry = func(error) bool { return true }
		cfg.OnRetry = resilience.RetryLogger("llm", "generate actions")

		actions, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]model.ActionItem, error) {
			resp, callErr := ai.Complete(ctx, llm.Request{Prompt: prompt, MaxTokens: 2048, JSONOnly: true})
			if callErr != nil {
				return nil, callErr
			}
			usage.Add(model.TokenUsage{
				InputTokens:  int(resp.Usage.InputTokens),
				OutputTokens: int(resp.Usage.OutputTokens),
			})
			return parseActions(resp.Text)
		})
		if err == nil {
			if len(actions) > len(themes) {
				actions = actions[:len(themes)]
			}
			return escalatePriorities(actions, themes), usage
		}
		log.Warn("actions: falling back to templates", zap.Error(err))
	}

	return escalatePriorities(templateActions(themes, templates), themes), usage
}

// templateActions produces one templated recommendation per theme.
func templateActions(themes []model.ThemeSummary, templates []ActionTemplate) []model.ActionItem {
	actions := make([]model.ActionItem, 0, len(themes))
	for _, theme := range themes {
		tpl := matchTemplate(theme.Name, templates)
		actions = append(actions, model.ActionItem{
			Title:          tpl.Title,
			Description:    tpl.Description,
			Priority:       "medium",
			Effort:         tpl.Effort,
			AddressesTheme: theme.Name,
		})
	}
	return actions
}

func matchTemplate(themeName string, templates []ActionTemplate) ActionTemplate {
	lower := strings.ToLower(themeName)
	var catchAll *ActionTemplate
	for i, tpl := range templates {
		if len(tpl.Match) == 0 {
			if catchAll == nil {
				catchAll = &templates[i]
			}
			continue
		}
		for _, kw := range tpl.Match {
			if strings.Contains(lower, strings.ToLower(kw)) {
				return tpl
			}
		}
	}
	if catchAll != nil {
		return *catchAll
	}
	return templates[len(templates)-1]
}

func escalatePriorities(actions []model.ActionItem, themes []model.ThemeSummary) []model.ActionItem {
	negatives := make(map[string]int, len(themes))
	for _, t := range themes {
		negatives[strings.ToLower(t.Name)] = t.NegativeCount
	}
	for i, a := range actions {
		if negatives[strings.ToLower(a.AddressesTheme)] > negativeEscalationThreshold {
			actions[i].Priority = "high"
		}
	}
	return actions
}
