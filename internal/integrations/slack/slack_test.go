package slackbot

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/LehuyH/transfer-helper/internal/config"
	"github.com/LehuyH/transfer-helper/internal/plan"
)

type fakeAPI struct {
	channel string
	upload  slack.UploadFileV2Parameters
	body    string
	err     error
}

func (f *fakeAPI) PostMessageContext(_ context.Context, channelID string, _ ...slack.MsgOption) (string, string, error) {
	f.channel = channelID
	return channelID, "1700000000.000100", f.err
}

func (f *fakeAPI) UploadFileV2Context(_ context.Context, params slack.UploadFileV2Parameters) (*slack.FileSummary, error) {
	f.upload = params
	if params.Reader != nil {
		data, _ := io.ReadAll(params.Reader)
		f.body = string(data)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &slack.FileSummary{ID: "F1", Title: params.Title}, nil
}

func sampleReport() plan.Report {
	return plan.Report{
		PlanID:   "plan-1",
		FromName: "De Anza College",
		Majors: []plan.MajorReport{
			{SchoolName: "UC Example", Major: "Biology, B.S.", Groups: []plan.GroupReport{
				{Name: "Major Preparation", Required: true, Fulfilled: true},
				{Name: "Recommended Courses", Fulfilled: false},
			}},
			{SchoolName: "UC Other", Major: "Physics, B.S.", Unavailable: "agreement data: not found"},
		},
		Required: []plan.CourseLine{{}, {}},
	}
}

func TestFormatPlanSummary(t *testing.T) {
	want := "*Transfer plan from De Anza College*\n" +
		"• Biology, B.S. @ UC Example: 1/2 groups fulfilled\n" +
		"• Physics, B.S. @ UC Other: unavailable (agreement data: not found)\n" +
		"Hard requirements: 2, selected: 0\n" +
		"Status: complete"
	if got := FormatPlanSummary(sampleReport()); got != want {
		t.Fatalf("summary mismatch:\nwant %q\n got %q", want, got)
	}
}

func TestFormatPlanSummaryOutstanding(t *testing.T) {
	r := sampleReport()
	r.Majors[0].Groups[0].Fulfilled = false
	got := FormatPlanSummary(r)
	if !strings.HasSuffix(got, "Status: 2 group(s) outstanding") {
		t.Fatalf("unexpected summary: %q", got)
	}
}

func TestNewDisabledWithoutToken(t *testing.T) {
	if n := New(config.Config{}, zap.NewNop()); n != nil {
		t.Fatalf("expected nil notifier, got %+v", n)
	}
}

func TestSharePlanUploadsCSV(t *testing.T) {
	fake := &fakeAPI{}
	n := &Notifier{api: fake, channelID: "C123", logger: zap.NewNop()}

	csv := []byte("Code,Title,Units,Required By,Kind\n")
	if err := n.SharePlan(context.Background(), sampleReport(), csv, "transfer-plan.csv"); err != nil {
		t.Fatalf("SharePlan failed: %v", err)
	}
	if fake.upload.Channel != "C123" || fake.upload.Filename != "transfer-plan.csv" || fake.upload.FileSize != len(csv) {
		t.Fatalf("unexpected upload params: %+v", fake.upload)
	}
	if fake.upload.Title != "Transfer plan: De Anza College" {
		t.Fatalf("unexpected title: %q", fake.upload.Title)
	}
	if fake.body != string(csv) {
		t.Fatalf("unexpected uploaded body: %q", fake.body)
	}
}

func TestPostTextWrapsError(t *testing.T) {
	fake := &fakeAPI{err: errors.New("channel_not_found")}
	n := &Notifier{api: fake, channelID: "C404", logger: zap.NewNop()}

	err := n.PostText(context.Background(), "hello")
	if err == nil || err.Error() != "post slack message: channel_not_found" {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.channel != "C404" {
		t.Fatalf("posted to %q", fake.channel)
	}
}
