package bot

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaybot/internal/relaybot/domain"
	"relaybot/internal/relaybot/pipeline"
	"relaybot/internal/relaybot/progress"
	"relaybot/internal/relaybot/state"
	"relaybot/pkg/config"
)

const userJSON = `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"relay","username":"relaybot"}}`
const messageJSON = `{"ok":true,"result":{"message_id":77,"chat":{"id":99,"type":"private"},"date":1724371200}}`

type apiRecorder struct {
	mu    sync.Mutex
	sent  []string
	edits []string
}

func (a *apiRecorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			fmt.Fprint(w, userJSON)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			a.mu.Lock()
			a.sent = append(a.sent, r.FormValue("text"))
			a.mu.Unlock()
			fmt.Fprint(w, messageJSON)
		case strings.HasSuffix(r.URL.Path, "/editMessageText"):
			a.mu.Lock()
			a.edits = append(a.edits, r.FormValue("text"))
			a.mu.Unlock()
			fmt.Fprint(w, messageJSON)
		default:
			fmt.Fprint(w, `{"ok":true,"result":true}`)
		}
	}
}

func (a *apiRecorder) sentTexts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.sent...)
}

func (a *apiRecorder) editTexts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.edits...)
}

type fetcherFunc func(ctx context.Context, url, destDir string) error

func (f fetcherFunc) Fetch(ctx context.Context, url, destDir string) error {
	return f(ctx, url, destDir)
}

type relayStub struct{}

func (relayStub) Send(ctx context.Context, chatID int64, filePath string, meta pipeline.Metadata, onProgress pipeline.ProgressFunc) (pipeline.SendResult, error) {
	return pipeline.SendResult{LiveProgress: true}, nil
}

type nullHandle struct{ id int }

func (*nullHandle) Edit(string) error { return nil }

func newBotHarness(t *testing.T, owner int64) (*Bot, *apiRecorder, *state.Registry) {
	t.Helper()

	rec := &apiRecorder{}
	server := httptest.NewServer(rec.handler())
	t.Cleanup(server.Close)

	api, err := tgbotapi.NewBotAPIWithAPIEndpoint("TESTTOKEN", server.URL+"/bot%s/%s")
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Bot.Token = "TESTTOKEN"
	cfg.Bot.OwnerID = owner
	cfg.Jobs.DownloadDir = t.TempDir()

	reg := state.NewRegistry()
	p := pipeline.New(pipeline.Options{
		Fetcher:         fetcherFunc(func(ctx context.Context, url, destDir string) error { return nil }),
		Relay:           relayStub{},
		Reporter:        progress.NewReporter(0),
		StabilityWindow: 30 * time.Millisecond,
		StabilityPoll:   10 * time.Millisecond,
		DrainPoll:       10 * time.Millisecond,
	})
	return New(api, reg, p, cfg), rec, reg
}

func commandMessage(fromID int64, text string) *tgbotapi.Message {
	cmd := strings.Fields(text)[0]
	return &tgbotapi.Message{
		MessageID: 5,
		From:      &tgbotapi.User{ID: fromID},
		Chat:      &tgbotapi.Chat{ID: 99},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}
}

func textMessage(fromID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 6,
		From:      &tgbotapi.User{ID: fromID},
		Chat:      &tgbotapi.Chat{ID: 99},
		Text:      text,
	}
}

func TestMegaLinkRegex(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"https://mega.nz/file/AbC123-_#Key456-_", true},
		{"https://mega.nz/folder/AbC123#Key456", true},
		{"grab this: https://mega.nz/file/AbC123#Key456 please", true},
		{"https://mega.nz/file/AbC123", false},
		{"http://mega.nz/file/AbC123#Key", false},
		{"https://mega.nz/view/AbC123#Key", false},
		{"hello there", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, megaLinkRegex.MatchString(tt.text), "text %q", tt.text)
	}
}

func TestRenderStatusNoJobs(t *testing.T) {
	b, _, _ := newBotHarness(t, 1)
	assert.Equal(t, "ℹ️ No active jobs.", b.renderStatus())
}

func TestRenderStatusListsJobsOldestFirst(t *testing.T) {
	b, _, reg := newBotHarness(t, 1)

	older := &domain.Job{
		ID:        "aaa11111",
		SourceURL: "https://mega.nz/file/one#k",
		UserID:    1, ChatID: 99,
		State:     domain.StateRunning,
		StartedAt: time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC),
	}
	newer := &domain.Job{
		ID:        "bbb22222",
		SourceURL: "https://mega.nz/file/two#k",
		UserID:    1, ChatID: 99,
		State:     domain.StateRunning,
		StartedAt: time.Date(2026, 8, 23, 11, 0, 0, 0, time.UTC),
	}
	tk, err := reg.Create(older, &nullHandle{id: 1})
	require.NoError(t, err)
	require.NoError(t, tk.Update(func(j *domain.Job) error { return j.Complete() }))
	_, err = reg.Create(newer, &nullHandle{id: 2})
	require.NoError(t, err)

	status := b.renderStatus()
	assert.True(t, strings.HasPrefix(status, "🧾 Jobs:\n"))
	assert.Contains(t, status, "`aaa11111` — ✅ done — https://mega.nz/file/one#k — started `2026-08-23 10:00:00`")
	assert.Contains(t, status, "`bbb22222` — ⏳ running —")
	assert.Less(t, strings.Index(status, "aaa11111"), strings.Index(status, "bbb22222"))
}

func TestStatusBadge(t *testing.T) {
	assert.Equal(t, "⏳ running", statusBadge(&domain.Job{State: domain.StateRunning}))
	assert.Equal(t, "⚠ cancelled", statusBadge(&domain.Job{State: domain.StateCancelRequested}))
	assert.Equal(t, "✅ done", statusBadge(&domain.Job{State: domain.StateDone}))
	assert.Equal(t, "❌ failed", statusBadge(&domain.Job{State: domain.StateFailed}))
}

func TestOwnerCommandsRejectOthers(t *testing.T) {
	b, rec, _ := newBotHarness(t, 1)

	for _, cmd := range []string{"/status", "/cancel j1", "/clear"} {
		b.handleCommand(commandMessage(555, cmd))
	}

	sent := rec.sentTexts()
	require.Len(t, sent, 3)
	for _, text := range sent {
		assert.Equal(t, "❌ Owner only.", text)
	}
}

func TestStartCommandOpenToAll(t *testing.T) {
	b, rec, _ := newBotHarness(t, 1)

	b.handleCommand(commandMessage(555, "/start"))

	sent := rec.sentTexts()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "Send a public Mega.nz file or folder link")
}

func TestCancelCommand(t *testing.T) {
	b, rec, reg := newBotHarness(t, 1)
	_, err := reg.Create(&domain.Job{
		ID: "jobx1234", SourceURL: "https://mega.nz/file/x#k",
		State: domain.StateRunning, StartedAt: time.Now(),
	}, &nullHandle{})
	require.NoError(t, err)

	b.handleCommand(commandMessage(1, "/cancel jobx1234"))

	job, ok := reg.Get("jobx1234")
	require.True(t, ok)
	assert.Equal(t, domain.StateCancelRequested, job.State)

	sent := rec.sentTexts()
	require.Len(t, sent, 1)
	assert.Equal(t, "⚠️ Cancel requested for `jobx1234`.", sent[0])
}

func TestCancelUnknownJob(t *testing.T) {
	b, rec, _ := newBotHarness(t, 1)

	b.handleCommand(commandMessage(1, "/cancel nope"))

	sent := rec.sentTexts()
	require.Len(t, sent, 1)
	assert.Equal(t, "❌ Job `nope` not found.", sent[0])
}

func TestCancelWithoutArgument(t *testing.T) {
	b, rec, _ := newBotHarness(t, 1)

	b.handleCommand(commandMessage(1, "/cancel"))

	sent := rec.sentTexts()
	require.Len(t, sent, 1)
	assert.Equal(t, "Usage: /cancel <job_id>", sent[0])
}

func TestClearRemovesOldDirs(t *testing.T) {
	b, rec, _ := newBotHarness(t, 1)
	root := b.cfg.Jobs.DownloadDir

	oldDir := filepath.Join(root, "user_1_old1")
	freshDir := filepath.Join(root, "user_1_new1")
	require.NoError(t, os.MkdirAll(oldDir, 0755))
	require.NoError(t, os.MkdirAll(freshDir, 0755))
	stale := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(oldDir, stale, stale))

	b.handleCommand(commandMessage(1, "/clear"))

	_, err := os.Stat(oldDir)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(freshDir)
	assert.NoError(t, err)

	sent := rec.sentTexts()
	require.Len(t, sent, 1)
	assert.Equal(t, "🧹 Cleared 1 old download folder(s).", sent[0])
}

func TestLinkMessageStartsJob(t *testing.T) {
	b, rec, reg := newBotHarness(t, 1)

	b.handleUpdate(context.Background(), tgbotapi.Update{
		Message: textMessage(9, "https://mega.nz/file/AbC123#Key456"),
	})

	jobs := reg.List()
	require.Len(t, jobs, 1)
	job := jobs[0]
	assert.Equal(t, "https://mega.nz/file/AbC123#Key456", job.SourceURL)
	assert.Equal(t, int64(9), job.UserID)
	assert.Equal(t, int64(99), job.ChatID)
	assert.Contains(t, job.WorkDir, "user_9_"+job.ID)
	assert.Len(t, job.ID, 8)

	sent := rec.sentTexts()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0], "🔗 Job `"+job.ID+"` started")
	assert.Contains(t, sent[1], "🔔 Job queued: `"+job.ID+"`")

	// the stub fetch produces nothing, so the job drains to Done
	require.Eventually(t, func() bool {
		got, ok := reg.Get(job.ID)
		return ok && got.State == domain.StateDone
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		edits := rec.editTexts()
		return len(edits) > 0 && strings.Contains(edits[len(edits)-1], "No downloadable content found")
	}, 5*time.Second, 10*time.Millisecond)
}

func TestNonLinkMessageIgnored(t *testing.T) {
	b, rec, reg := newBotHarness(t, 1)

	b.handleUpdate(context.Background(), tgbotapi.Update{
		Message: textMessage(9, "hello bot"),
	})

	assert.Empty(t, reg.List())
	assert.Empty(t, rec.sentTexts())
}
