// Package feedback records how users react to suggestions and mines the
// accumulated events for prompt-steering material.
package feedback

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/scentdesk/fragrance-cli/internal/model"
	"github.com/scentdesk/fragrance-cli/internal/store"
)

// ErrInvalidEvent marks feedback rejected by validation, as opposed to a
// storage failure.
var ErrInvalidEvent = eris.New("feedback: invalid event")

// fewShotMinRelevance is the floor for an event to qualify as a few-shot
// exemplar. Below it the selection was too weak to teach from.
const fewShotMinRelevance = 0.8

// scanLimit caps how many events one mining pass reads.
const scanLimit = 2000

// Service mediates between callers and the feedback log.
type Service struct {
	store store.Store
}

// New creates a feedback Service over the given store.
func New(st store.Store) *Service {
	return &Service{store: st}
}

// Record validates and appends one feedback event. Events are append-only;
// duplicate submissions are accepted as-is.
func (s *Service) Record(ctx context.Context, ev model.FeedbackEvent) (*model.FeedbackEvent, error) {
	if !ev.UserAction.Valid() {
		return nil, eris.Wrapf(ErrInvalidEvent, "unknown user action %q", ev.UserAction)
	}
	if strings.TrimSpace(ev.Query) == "" {
		return nil, eris.Wrap(ErrInvalidEvent, "query is required")
	}
	if ev.SessionID == "" {
		return nil, eris.Wrap(ErrInvalidEvent, "session id is required")
	}
	if ev.RelevanceScore != nil {
		clamped := model.ClampConfidence(*ev.RelevanceScore)
		ev.RelevanceScore = &clamped
	}
	return s.store.InsertFeedback(ctx, ev)
}

// List returns raw feedback events matching the filter.
func (s *Service) List(ctx context.Context, filter store.FeedbackFilter) ([]model.FeedbackEvent, error) {
	return s.store.ListFeedback(ctx, filter)
}

// SuccessfulPatterns returns past selections whose query resembles the one
// being typed now. Only selected-and-helpful events count; results come back
// most relevant first, ties broken by recency.
func (s *Service) SuccessfulPatterns(ctx context.Context, userID, opType, query string, limit int) ([]model.Pattern, error) {
	if limit <= 0 {
		limit = 5
	}
	events, err := s.store.ListFeedback(ctx, store.FeedbackFilter{
		UserID:      userID,
		Action:      model.ActionSelected,
		HelpfulOnly: true,
		Limit:       scanLimit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "feedback: list events")
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	var patterns []model.Pattern
	for _, ev := range events {
		if ev.Chosen == nil {
			continue
		}
		if opType != "" && ev.OperationType != opType {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(ev.Query), needle) {
			continue
		}
		var relevance float64
		if ev.RelevanceScore != nil {
			relevance = *ev.RelevanceScore
		}
		patterns = append(patterns, model.Pattern{
			Query:          ev.Query,
			Chosen:         *ev.Chosen,
			RelevanceScore: relevance,
			CreatedAt:      ev.CreatedAt,
		})
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		if patterns[i].RelevanceScore != patterns[j].RelevanceScore {
			return patterns[i].RelevanceScore > patterns[j].RelevanceScore
		}
		return patterns[i].CreatedAt.After(patterns[j].CreatedAt)
	})
	if len(patterns) > limit {
		patterns = patterns[:limit]
	}
	return patterns, nil
}

// FewShotExamples returns up to n prior high-relevance selections as
// input/output pairs for prompt injection. The sample is random so repeat
// queries do not always see the same exemplars.
func (s *Service) FewShotExamples(ctx context.Context, userID, opType string, n int) ([]model.FewShotExample, error) {
	if n <= 0 {
		return nil, nil
	}
	events, err := s.store.ListFeedback(ctx, store.FeedbackFilter{
		UserID:      userID,
		Action:      model.ActionSelected,
		HelpfulOnly: true,
		Limit:       scanLimit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "feedback: list events")
	}

	var eligible []model.FewShotExample
	for _, ev := range events {
		if ev.Chosen == nil || ev.RelevanceScore == nil || *ev.RelevanceScore < fewShotMinRelevance {
			continue
		}
		if opType != "" && ev.OperationType != opType {
			continue
		}
		out, err := renderExampleOutput(*ev.Chosen)
		if err != nil {
			continue
		}
		eligible = append(eligible, model.FewShotExample{Query: ev.Query, Output: out})
	}

	if len(eligible) <= n {
		return eligible, nil
	}
	rand.Shuffle(len(eligible), func(i, j int) {
		eligible[i], eligible[j] = eligible[j], eligible[i]
	})
	return eligible[:n], nil
}

// renderExampleOutput serializes a chosen suggestion the way the providers
// are asked to emit them, so exemplars match the requested output schema.
func renderExampleOutput(c model.CompletionSuggestion) (string, error) {
	b, err := json.Marshal(map[string]any{
		"display_text": c.DisplayText,
		"brand_name":   c.BrandName,
		"confidence":   c.Confidence,
		"kind":         string(c.Kind),
	})
	if err != nil {
		return "", eris.Wrap(err, "feedback: marshal example")
	}
	return string(b), nil
}
