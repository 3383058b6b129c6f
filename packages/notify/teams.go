package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/abdul-hamid-achik/capfetch/packages/downloader"
)

// TeamsNotifier sends notifications to Microsoft Teams via webhook
type TeamsNotifier struct {
	webhookURL string
	client     *http.Client
}

// TeamsOption is a functional option for TeamsNotifier
type TeamsOption func(*TeamsNotifier)

func WithTeamsHTTPClient(c *http.Client) TeamsOption {
	return func(t *TeamsNotifier) {
		t.client = c
	}
}

// NewTeamsNotifier creates a new Teams notifier
func NewTeamsNotifier(webhookURL string, opts ...TeamsOption) *TeamsNotifier {
	t := &TeamsNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

func (t *TeamsNotifier) Name() string {
	return "teams"
}

// teamsMessage is an Adaptive Card wrapped for an incoming webhook
type teamsMessage struct {
	Type        string      `json:"type"`
	Attachments []teamsCard `json:"attachments"`
}

type teamsCard struct {
	ContentType string           `json:"contentType"`
	ContentURL  *string          `json:"contentUrl"`
	Content     teamsCardContent `json:"content"`
}

type teamsCardContent struct {
	Schema  string       `json:"$schema"`
	Type    string       `json:"type"`
	Version string       `json:"version"`
	Body    []teamsBlock `json:"body"`
}

type teamsBlock struct {
	Type   string      `json:"type"`
	Size   string      `json:"size,omitempty"`
	Weight string      `json:"weight,omitempty"`
	Text   string      `json:"text,omitempty"`
	Color  string      `json:"color,omitempty"`
	Wrap   bool        `json:"wrap,omitempty"`
	Facts  []teamsFact `json:"facts,omitempty"`
}

type teamsFact struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// Notify sends a notification to Microsoft Teams
func (t *TeamsNotifier) Notify(ctx context.Context, summary *downloader.Summary) error {
	color := "good"
	if summary.HasFailures() {
		color = "attention"
	}

	msg := teamsMessage{
		Type: "message",
		Attachments: []teamsCard{{
			ContentType: "application/vnd.microsoft.card.adaptive",
			Content: teamsCardContent{
				Schema:  "http://adaptivecards.io/schemas/adaptive-card.json",
				Type:    "AdaptiveCard",
				Version: "1.4",
				Body: []teamsBlock{
					{Type: "TextBlock", Size: "Large", Weight: "Bolder", Text: headline(summary), Color: color},
					{Type: "TextBlock", Text: summary.URL, Wrap: true},
					{Type: "FactSet", Facts: []teamsFact{
						{Title: "Completed", Value: fmt.Sprintf("%d", summary.Completed)},
						{Title: "Abandoned", Value: fmt.Sprintf("%d", summary.Abandoned)},
						{Title: "Failed", Value: fmt.Sprintf("%d", summary.Failed)},
						{Title: "Duration", Value: summary.Duration.Round(time.Millisecond).String()},
						{Title: "Run", Value: summary.RunID},
					}},
				},
			},
		}},
	}

	return postJSON(ctx, t.client, t.webhookURL, msg)
}
