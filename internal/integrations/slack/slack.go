// Package slackbot posts plan summaries and refresh results to a Slack
// channel.
package slackbot

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/LehuyH/transfer-helper/internal/config"
	"github.com/LehuyH/transfer-helper/internal/plan"
)

// api is the subset of *slack.Client the notifier needs.
type api interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UploadFileV2Context(ctx context.Context, params slack.UploadFileV2Parameters) (*slack.FileSummary, error)
}

type Notifier struct {
	api       api
	channelID string
	logger    *zap.Logger
}

// New returns nil when Slack is not configured.
func New(cfg config.Config, logger *zap.Logger) *Notifier {
	if !cfg.SlackConfigured() {
		logger.Info("slack sharing disabled (slack_bot_token not set)")
		return nil
	}
	return &Notifier{api: slack.New(cfg.SlackBotToken), channelID: cfg.SlackChannelID, logger: logger}
}

func (n *Notifier) PostText(ctx context.Context, text string) error {
	_, _, err := n.api.PostMessageContext(ctx, n.channelID, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("post slack message: %w", err)
	}
	return nil
}

// SharePlan uploads the plan's CSV export with the summary as comment.
func (n *Notifier) SharePlan(ctx context.Context, r plan.Report, csv []byte, filename string) error {
	_, err := n.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		Reader:         bytes.NewReader(csv),
		FileSize:       len(csv),
		Filename:       filename,
		Channel:        n.channelID,
		Title:          "Transfer plan: " + r.FromName,
		InitialComment: FormatPlanSummary(r),
	})
	if err != nil {
		return fmt.Errorf("upload plan to slack: %w", err)
	}
	n.logger.Info("plan shared to slack", zap.String("plan_id", r.PlanID), zap.String("file", filename))
	return nil
}

// FormatPlanSummary renders a report as Slack mrkdwn.
func FormatPlanSummary(r plan.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Transfer plan from %s*\n", r.FromName)
	for _, m := range r.Majors {
		label := plan.MajorLabel(m.SchoolName, m.Major)
		if m.Unavailable != "" {
			fmt.Fprintf(&b, "• %s: unavailable (%s)\n", label, m.Unavailable)
			continue
		}
		done := 0
		for _, g := range m.Groups {
			if g.Fulfilled {
				done++
			}
		}
		fmt.Fprintf(&b, "• %s: %d/%d groups fulfilled\n", label, done, len(m.Groups))
	}
	fmt.Fprintf(&b, "Hard requirements: %d, selected: %d\n", len(r.Required), len(r.Selected))
	if r.Complete() {
		b.WriteString("Status: complete")
	} else {
		fmt.Fprintf(&b, "Status: %d group(s) outstanding", r.Outstanding())
	}
	return b.String()
}
