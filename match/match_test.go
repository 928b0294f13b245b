package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/termwatch/termwatch/channel"
)

func TestEvalBasicHit(t *testing.T) {
	assert := assert.New(t)

	msg := Message{
		ChatID:    "-1001234567890",
		MessageID: 42,
		Text:      "buy spam now",
		Time:      time.Unix(1700000000, 0),
	}
	tracked := []channel.Ref{"-1001234567890"}

	hit, ok := Eval(msg, []string{"spam"}, tracked, nil)
	assert.True(ok)
	assert.Equal(channel.Ref("-1001234567890"), hit.Channel)
	assert.Equal("spam", hit.Term)
	assert.Equal(int64(42), hit.MessageID)
}

func TestEvalUntrackedShortCircuits(t *testing.T) {
	assert := assert.New(t)

	msg := Message{ChatID: "-1009999999999", MessageID: 1, Text: "spam"}
	_, ok := Eval(msg, []string{"spam"}, []channel.Ref{"-1001234567890"}, nil)
	assert.False(ok)
}

func TestEvalFirstTermWins(t *testing.T) {
	assert := assert.New(t)

	msg := Message{ChatID: "77", MessageID: 5, Text: "casino and crypto and spam"}
	tracked := []channel.Ref{"77"}

	hit, ok := Eval(msg, []string{"crypto", "spam", "casino"}, tracked, nil)
	assert.True(ok)
	assert.Equal("crypto", hit.Term)

	hit, ok = Eval(msg, []string{"casino", "spam", "crypto"}, tracked, nil)
	assert.True(ok)
	assert.Equal("casino", hit.Term)
}

func TestEvalCaseInsensitive(t *testing.T) {
	assert := assert.New(t)

	msg := Message{ChatID: "77", MessageID: 9, Text: "Buy SPAM Today"}
	hit, ok := Eval(msg, []string{"Spam"}, []channel.Ref{"77"}, nil)
	assert.True(ok)
	assert.Equal("Spam", hit.Term)
}

func TestEvalUsernameTracking(t *testing.T) {
	assert := assert.New(t)

	tracked := []channel.Ref{"@channel1"}
	msg := Message{ChatID: "-1001234567890", Username: "channel1", MessageID: 3, Text: "spam"}

	hit, ok := Eval(msg, []string{"spam"}, tracked, nil)
	assert.True(ok)
	assert.Equal(channel.Ref("@channel1"), hit.Channel)

	// same channel observed without username metadata: only matches once
	// the session layer has resolved the username
	bare := Message{ChatID: "-1001234567890", MessageID: 4, Text: "spam"}
	_, ok = Eval(bare, []string{"spam"}, tracked, nil)
	assert.False(ok)

	_, ok = Eval(bare, []string{"spam"}, tracked, Resolutions{"@channel1": "1234567890"})
	assert.True(ok)
}

func TestEvalEmptyInputs(t *testing.T) {
	assert := assert.New(t)

	_, ok := Eval(Message{ChatID: "77", Text: ""}, []string{"spam"}, []channel.Ref{"77"}, nil)
	assert.False(ok)

	_, ok = Eval(Message{ChatID: "77", Text: "spam"}, nil, []channel.Ref{"77"}, nil)
	assert.False(ok)

	_, ok = Eval(Message{ChatID: "77", Text: "spam"}, []string{""}, []channel.Ref{"77"}, nil)
	assert.False(ok)
}
