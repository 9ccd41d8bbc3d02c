package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rickgao/market-backfill/internal/api"
)

// Embed colours and status markers.
const (
	ColorSuccess = 5763719
	ColorFailure = 15548997

	emojiSuccess = ":white_check_mark:"
	emojiFailure = ":red_square:"
)

// Sink receives the outcome of each job run.
type Sink interface {
	Notify(jobID string, err error)
}

// Nop discards notifications.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(string, error) {}

// Classified is implemented by errors that carry a failure classification.
type Classified interface {
	Classification() string
}

// Deployment describes where the process runs, for links in the embed.
type Deployment struct {
	FrontendURL   string
	LogsURL       string
	CommitMessage string
	RepoOwner     string
	RepoName      string
	CommitSHA     string
}

// DeploymentFromEnv reads the DEPLOY_* variables set by the hosting platform.
func DeploymentFromEnv() Deployment {
	return Deployment{
		FrontendURL:   os.Getenv("DEPLOY_FRONTEND_URL"),
		LogsURL:       os.Getenv("DEPLOY_LOGS_URL"),
		CommitMessage: os.Getenv("DEPLOY_GIT_COMMIT_MESSAGE"),
		RepoOwner:     os.Getenv("DEPLOY_GIT_REPO_OWNER"),
		RepoName:      os.Getenv("DEPLOY_GIT_REPO_NAME"),
		CommitSHA:     os.Getenv("DEPLOY_GIT_COMMIT_SHA"),
	}
}

// CommitURL links to the deployed commit on GitHub.
func (d Deployment) CommitURL() string {
	return fmt.Sprintf("https://github.com/%s/%s/commit/%s", d.RepoOwner, d.RepoName, d.CommitSHA)
}

// Payload is the webhook request body.
type Payload struct {
	Content string  `json:"content"`
	TTS     bool    `json:"tts"`
	Embeds  []Embed `json:"embeds"`
}

// Embed is one rich message block.
type Embed struct {
	Type        string  `json:"type"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	URL         string  `json:"url,omitempty"`
	Color       int     `json:"color"`
	Fields      []Field `json:"fields"`
	Timestamp   string  `json:"timestamp"`
}

// Field is a name/value pair inside an embed.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Webhook posts embeds to a Discord-compatible webhook.
type Webhook struct {
	client  *api.Client
	appName string
	deploy  Deployment
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger

	wg sync.WaitGroup
}

// NewWebhook creates a sink posting to url.
func NewWebhook(url, appName string, timeout time.Duration, deploy Deployment, logger *slog.Logger) *Webhook {
	if logger == nil {
		logger = slog.Default()
	}
	client := api.NewClient("webhook", url, "",
		api.WithTimeout(timeout),
		api.WithRetries(0, 0),
		api.WithLogger(logger),
	)
	return &Webhook{
		client:  client,
		appName: appName,
		deploy:  deploy,
		timeout: timeout,
		now:     time.Now,
		logger:  logger,
	}
}

// Notify sends the job outcome in the background.
func (w *Webhook) Notify(jobID string, err error) {
	payload := w.Build(jobID, err)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()

		if _, postErr := w.client.PostJSON(ctx, "", payload); postErr != nil {
			w.logger.Error("webhook delivery failed", "job", jobID, "err", postErr)
			return
		}
		w.logger.Debug("webhook delivered", "job", jobID)
	}()
}

// Wait blocks until in-flight deliveries finish.
func (w *Webhook) Wait() {
	w.wg.Wait()
}

// Build assembles the webhook payload for one job outcome.
func (w *Webhook) Build(jobID string, err error) Payload {
	color, emoji := ColorSuccess, emojiSuccess
	if err != nil {
		color, emoji = ColorFailure, emojiFailure
	}

	embed := Embed{
		Type:        "rich",
		Title:       emoji + " " + w.appName,
		Description: w.deploy.RepoName,
		Color:       color,
		Timestamp:   w.now().UTC().Format(time.RFC3339),
		Fields: []Field{
			{Name: "Job ID", Value: jobID, Inline: true},
			{Name: "Exception", Value: ErrorClass(err), Inline: true},
			{Name: "Deployment", Value: fmt.Sprintf("[See logs](%s)", w.deploy.LogsURL), Inline: true},
			{Name: "Commit", Value: fmt.Sprintf("[%s](%s)", firstLine(w.deploy.CommitMessage), w.deploy.CommitURL())},
		},
	}
	if w.deploy.FrontendURL != "" {
		embed.URL = "https://" + strings.TrimPrefix(w.deploy.FrontendURL, "https://")
	}
	if err != nil {
		embed.Fields = append(embed.Fields, Field{Name: "Execution", Value: err.Error()})
	}

	return Payload{Embeds: []Embed{embed}}
}

// ErrorClass names the failure class of err, or "None" for success.
func ErrorClass(err error) string {
	if err == nil {
		return "None"
	}
	var c Classified
	if errors.As(err, &c) {
		return c.Classification()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return "unknown"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
