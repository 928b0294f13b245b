package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"
)

// SlackNotifier posts alerts to a Slack "incoming webhook". The webhook
// must already be configured in the slack workplace.
type SlackNotifier struct {
	WebhookURL string
	Client     *http.Client
	Logger     *slog.Logger
}

type slackWebhookBody struct {
	Text string `json:"text"`
}

func (n *SlackNotifier) Notify(ctx context.Context, text string) error {
	body, err := json.Marshal(slackWebhookBody{Text: text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")

	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		n.log().Warn("slack webhook POST failed", "err", err)
		return err
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	if resp.StatusCode != 200 || buf.String() != "ok" {
		err := fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
		n.log().Warn("slack webhook rejected", "status", resp.StatusCode)
		return err
	}
	return nil
}

func (n *SlackNotifier) log() *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return slog.Default()
}
