// Package llm asks an Anthropic model for a plain-language review of a
// transfer plan.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/LehuyH/transfer-helper/internal/config"
	"github.com/LehuyH/transfer-helper/internal/plan"
)

// Disclaimer is appended to every review shown to a student.
const Disclaimer = "THIS IS NOT A REPLACEMENT FOR A COLLEGE COUNSELOR"

const maxPromptCourses = 200

var ErrNotConfigured = errors.New("llm review disabled: anthropic_api_key not set")

type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

type Concern struct {
	Major string `json:"major"`
	Note  string `json:"note"`
}

type Review struct {
	Summary     string    `json:"summary"`
	Concerns    []Concern `json:"concerns"`
	Suggestions []string  `json:"suggestions"`
}

type completeFunc func(ctx context.Context, system, user string) (string, Usage, error)

type Reviewer struct {
	complete completeFunc
	logger   *zap.Logger
}

func New(cfg config.Config, logger *zap.Logger) (*Reviewer, error) {
	if !cfg.LLMConfigured() {
		return nil, ErrNotConfigured
	}
	client := anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey))
	model := cfg.LLMModel
	complete := func(ctx context.Context, system, user string) (string, Usage, error) {
		message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(model),
			MaxTokens: 4096,
			System: []anthropic.TextBlockParam{
				{Text: system},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
			},
		})
		if err != nil {
			return "", Usage{}, fmt.Errorf("Anthropic API error: %w", err)
		}
		usage := Usage{InputTokens: message.Usage.InputTokens, OutputTokens: message.Usage.OutputTokens}
		for _, block := range message.Content {
			if block.Type == "text" {
				return block.Text, usage, nil
			}
		}
		return "", usage, fmt.Errorf("no text content in Anthropic response")
	}
	logger.Info("llm review enabled", zap.String("model", model))
	return &Reviewer{complete: complete, logger: logger}, nil
}

func (r *Reviewer) Review(ctx context.Context, report plan.Report) (Review, Usage, error) {
	system, user := BuildReviewPrompts(report)
	text, usage, err := r.complete(ctx, system, user)
	if err != nil {
		r.logger.Error("llm review failed", zap.Error(err))
		return Review{}, usage, err
	}
	r.logger.Info("llm review complete",
		zap.String("plan_id", report.PlanID),
		zap.Int("response_size", len(text)),
		zap.Int64("tokens_in", usage.InputTokens),
		zap.Int64("tokens_out", usage.OutputTokens))
	review, err := parseReviewResponse(text)
	return review, usage, err
}

// BuildReviewPrompts returns the system and user prompts for a report.
func BuildReviewPrompts(report plan.Report) (string, string) {
	system := `You review community college transfer plans.
You are given the requirement status of each target major and the list of courses the student plans to take.
Point out requirements that are still open, courses that look risky (no articulation, reuse conflicts) and simple ways to finish faster.
Never invent requirements that are not in the data.

Respond with JSON only, in this shape:
{"summary": "...", "concerns": [{"major": "...", "note": "..."}], "suggestions": ["..."]}`

	var b strings.Builder
	fmt.Fprintf(&b, "Sending college: %s\n\n", report.FromName)
	for _, m := range report.Majors {
		fmt.Fprintf(&b, "Major: %s\n", plan.MajorLabel(m.SchoolName, m.Major))
		if m.Unavailable != "" {
			fmt.Fprintf(&b, "- unavailable: %s\n\n", m.Unavailable)
			continue
		}
		for _, g := range m.Groups {
			status := "open"
			if g.Fulfilled {
				status = "fulfilled"
			}
			kind := "optional"
			if g.Required {
				kind = "required"
			}
			fmt.Fprintf(&b, "- %s (%s, %s): %s\n", g.Name, kind, status, strings.ReplaceAll(g.Description, "\n", "; "))
			for _, msg := range g.Messages {
				fmt.Fprintf(&b, "  * %s\n", msg)
			}
			for _, s := range g.Sections {
				for _, c := range s.Cells {
					for _, w := range c.Warnings {
						fmt.Fprintf(&b, "  * %s: %s\n", c.Label, w)
					}
				}
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("Courses:\n")
	n := 0
	writeLines := func(lines []plan.CourseLine, kind string) {
		for _, l := range lines {
			if n >= maxPromptCourses {
				return
			}
			n++
			fmt.Fprintf(&b, "- %s %s (%s units, %s) for %s\n", l.Code(), l.Course.CourseTitle, l.Course.UnitsLabel(), kind, strings.Join(l.RequiredBy, "; "))
		}
	}
	writeLines(report.Required, "required")
	writeLines(report.Selected, "selected")
	if n == 0 {
		b.WriteString("- none\n")
	}
	return system, b.String()
}

func parseReviewResponse(responseText string) (Review, error) {
	responseText = strings.TrimSpace(responseText)
	responseText = strings.TrimPrefix(responseText, "```json")
	responseText = strings.TrimPrefix(responseText, "```")
	responseText = strings.TrimSuffix(responseText, "```")
	responseText = strings.TrimSpace(responseText)

	var review Review
	if err := json.Unmarshal([]byte(responseText), &review); err != nil {
		truncated := responseText
		if len(truncated) > 512 {
			truncated = truncated[:512] + fmt.Sprintf("... [truncated, total_length=%d]", len(responseText))
		}
		return Review{}, fmt.Errorf("parsing review response: %w (truncated response: %s)", err, truncated)
	}
	return review, nil
}

// Format renders a review as plain text, ending with the disclaimer.
func Format(review Review) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(review.Summary))
	b.WriteString("\n")
	if len(review.Concerns) > 0 {
		b.WriteString("\nConcerns:\n")
		for _, c := range review.Concerns {
			if c.Major != "" {
				fmt.Fprintf(&b, "- [%s] %s\n", c.Major, c.Note)
			} else {
				fmt.Fprintf(&b, "- %s\n", c.Note)
			}
		}
	}
	if len(review.Suggestions) > 0 {
		b.WriteString("\nSuggestions:\n")
		for _, s := range review.Suggestions {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	b.WriteString("\n" + Disclaimer + "\n")
	return b.String()
}
