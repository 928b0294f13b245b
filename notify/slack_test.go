package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
)

func TestSlackNotifier(t *testing.T) {
	assert := assert.New(t)

	var got slackWebhookBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &got)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	n := &SlackNotifier{WebhookURL: srv.URL}
	assert.NoError(n.Notify(context.Background(), "term hit in -100123"))
	assert.Equal("term hit in -100123", got.Text)
}

func TestSlackNotifierRejectedPost(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := &SlackNotifier{WebhookURL: srv.URL}
	assert.Error(n.Notify(context.Background(), "hello"))
}

func TestMultiNotifier(t *testing.T) {
	assert := assert.New(t)

	var texts []string
	rec := notifierFunc(func(ctx context.Context, text string) error {
		texts = append(texts, text)
		return nil
	})

	m := Multi{rec, &LogNotifier{}}
	assert.NoError(m.Notify(context.Background(), "one"))
	assert.Equal([]string{"one"}, texts)
}

type notifierFunc func(ctx context.Context, text string) error

func (f notifierFunc) Notify(ctx context.Context, text string) error {
	return f(ctx, text)
}
