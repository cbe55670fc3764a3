package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newsdigest/internal/digest"
	"github.com/deusflow/newsdigest/internal/metrics"
	"github.com/deusflow/newsdigest/internal/news"
)

func TestSplitShortText(t *testing.T) {
	assert.Equal(t, []string{"hello"}, Split("hello", 10))
}

func TestSplitOnLines(t *testing.T) {
	text := "aaaa\nbbbb\ncccc\n"
	parts := Split(text, 10)
	assert.Equal(t, []string{"aaaa\nbbbb", "cccc"}, parts)
}

func TestSplitLongLineAndRunes(t *testing.T) {
	line := strings.Repeat("æ", 25)
	parts := Split(line, 10)
	require.Len(t, parts, 3)
	for _, p := range parts {
		assert.LessOrEqual(t, utf8.RuneCountInString(p), 10)
	}
	assert.Equal(t, line, strings.Join(parts, ""))
}

type fakeAPI struct {
	sent  []tgbotapi.MessageConfig
	fails []error
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if len(f.fails) > 0 {
		err := f.fails[0]
		f.fails = f.fails[1:]
		return tgbotapi.Message{}, err
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func testSender(api *fakeAPI) *BotSender {
	s := newBotSender(api)
	s.retry.Delay = time.Millisecond
	s.retry.MaxDelay = time.Millisecond
	s.metrics = metrics.New()
	return s
}

func TestBotSenderRetriesAndSplits(t *testing.T) {
	api := &fakeAPI{fails: []error{errors.New("connection reset")}}
	s := testSender(api)

	text := strings.Repeat("line of news\n", 400)
	require.NoError(t, s.Send(context.Background(), 42, text))

	require.Len(t, api.sent, 2)
	for _, m := range api.sent {
		assert.Equal(t, int64(42), m.ChatID)
		assert.Equal(t, tgbotapi.ModeHTML, m.ParseMode)
		assert.True(t, m.DisableWebPagePreview)
		assert.LessOrEqual(t, utf8.RuneCountInString(m.Text), MaxMessageLength)
	}
	assert.Equal(t, int64(2), s.metrics.GetStats()["messages_sent"])
}

func TestBotSenderClientErrorNotRetried(t *testing.T) {
	api := &fakeAPI{fails: []error{&tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}}}
	s := testSender(api)

	err := s.Send(context.Background(), 1, "hi")
	require.Error(t, err)
	assert.Empty(t, api.sent)
	assert.Empty(t, api.fails)
	assert.Equal(t, int64(1), s.metrics.GetStats()["messages_failed"])
}

type recordingSender struct {
	chats []int64
	texts []string
}

func (r *recordingSender) Send(_ context.Context, chatID int64, text string) error {
	r.chats = append(r.chats, chatID)
	r.texts = append(r.texts, text)
	return nil
}

type memSubs struct{ ids map[int64]bool }

func (m *memSubs) Subscribe(_ context.Context, id int64) error {
	m.ids[id] = true
	return nil
}

func (m *memSubs) Unsubscribe(_ context.Context, id int64) error {
	delete(m.ids, id)
	return nil
}

func (m *memSubs) Subscribers(context.Context) ([]int64, error) {
	var out []int64
	for id := range m.ids {
		out = append(out, id)
	}
	return out, nil
}

type fixedDigest struct{ builds int }

func (f *fixedDigest) Build(context.Context) digest.Result {
	f.builds++
	return digest.Result{ID: "b1", Text: "<b>digest</b>", Sections: []digest.Section{}}
}

type fakeBriefer struct {
	text string
	err  error
}

func (f fakeBriefer) Brief(context.Context, []string) (string, error) { return f.text, f.err }

func newTestBot() (*Bot, *recordingSender, *memSubs, *fixedDigest) {
	sender := &recordingSender{}
	subs := &memSubs{ids: map[int64]bool{}}
	dg := &fixedDigest{}
	return &Bot{Sender: sender, Subscriptions: subs, Digests: dg, Schedule: []string{"08:00"}}, sender, subs, dg
}

func TestCommandParsing(t *testing.T) {
	assert.Equal(t, "news", command("/news"))
	assert.Equal(t, "news", command("/News@digest_bot now"))
	assert.Equal(t, "", command("hello"))
	assert.Equal(t, "", command(""))
}

func TestBotSubscribeFlow(t *testing.T) {
	b, sender, subs, _ := newTestBot()
	ctx := context.Background()

	require.NoError(t, b.Handle(ctx, 5, "/start"))
	assert.True(t, subs.ids[5])
	assert.Contains(t, sender.texts[0], "08:00")

	require.NoError(t, b.Handle(ctx, 5, "/stop"))
	assert.False(t, subs.ids[5])
}

func TestBotNewsAndBrief(t *testing.T) {
	b, sender, _, dg := newTestBot()
	ctx := context.Background()

	require.NoError(t, b.Handle(ctx, 9, "/news"))
	assert.Equal(t, "<b>digest</b>", sender.texts[0])

	require.NoError(t, b.Handle(ctx, 9, "/brief"))
	assert.Contains(t, sender.texts[1], "not configured")
	assert.True(t, strings.HasSuffix(sender.texts[1], "<b>digest</b>"))
	assert.Equal(t, 2, dg.builds)
}

func TestBotBriefFailureFallsBack(t *testing.T) {
	b, sender, _, _ := newTestBot()
	b.Briefer = fakeBriefer{err: errors.New("quota")}
	b.Digests = briefDigest{}

	require.NoError(t, b.Handle(context.Background(), 9, "/brief"))
	assert.Equal(t, "<b>digest</b>", sender.texts[0])

	b.Briefer = fakeBriefer{text: "Markets <calm>"}
	require.NoError(t, b.Handle(context.Background(), 9, "/brief"))
	assert.Contains(t, sender.texts[1], "Markets &lt;calm&gt;")
}

type briefDigest struct{}

func (briefDigest) Build(context.Context) digest.Result {
	return digest.Result{
		Text:     "<b>digest</b>",
		Sections: []digest.Section{{Entries: []news.Entry{{Title: "Stocks rally"}}}},
	}
}

func TestBotUnknownCommand(t *testing.T) {
	b, sender, _, _ := newTestBot()
	require.NoError(t, b.Handle(context.Background(), 1, "/weather"))
	assert.Contains(t, sender.texts[0], "/help")
}
