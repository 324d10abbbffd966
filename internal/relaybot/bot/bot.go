// Package bot runs the chat frontend: the long-poll update loop, the
// owner commands and the link intake that turns messages into jobs.
package bot

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"relaybot/internal/relaybot/domain"
	"relaybot/internal/relaybot/pipeline"
	"relaybot/internal/relaybot/progress"
	"relaybot/internal/relaybot/state"
	"relaybot/internal/relaybot/telegram"
	"relaybot/pkg/config"
	"relaybot/pkg/logger"
)

// megaLinkRegex recognizes public Mega.nz file and folder links with
// their decryption key fragment.
var megaLinkRegex = regexp.MustCompile(`https://mega\.nz/(file|folder)/[A-Za-z0-9_-]+#[A-Za-z0-9_-]+`)

// Bot consumes chat updates and hands accepted links to the pipeline.
type Bot struct {
	api      *tgbotapi.BotAPI
	registry *state.Registry
	pipeline *pipeline.Pipeline
	cfg      *config.Config
	logger   *logger.Logger

	jobs sync.WaitGroup
}

func New(api *tgbotapi.BotAPI, registry *state.Registry, pl *pipeline.Pipeline, cfg *config.Config) *Bot {
	return &Bot{
		api:      api,
		registry: registry,
		pipeline: pl,
		cfg:      cfg,
		logger:   logger.WithField("component", "bot"),
	}
}

// Run blocks on the update loop until ctx is cancelled, then stops
// receiving and waits for running jobs to wind down.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(b.cfg.Bot.PollTimeout.Std().Seconds())
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("bot online", "username", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.jobs.Wait()
			return nil
		case update, ok := <-updates:
			if !ok {
				b.jobs.Wait()
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Text == "" {
		return
	}
	if msg.IsCommand() {
		b.handleCommand(msg)
		return
	}
	if megaLinkRegex.MatchString(strings.TrimSpace(msg.Text)) {
		b.startJob(ctx, msg)
	}
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.reply(msg, "👋 Send a public Mega.nz file or folder link. Owner commands: /status /cancel <job_id> /clear")
	case "status":
		if !b.requireOwner(msg) {
			return
		}
		b.reply(msg, b.renderStatus())
	case "cancel":
		if !b.requireOwner(msg) {
			return
		}
		b.cmdCancel(msg)
	case "clear":
		if !b.requireOwner(msg) {
			return
		}
		b.cmdClear(msg)
	}
}

// requireOwner rejects everyone but the configured owner.
func (b *Bot) requireOwner(msg *tgbotapi.Message) bool {
	if msg.From.ID != b.cfg.Bot.OwnerID {
		b.reply(msg, "❌ Owner only.")
		return false
	}
	return true
}

func (b *Bot) renderStatus() string {
	jobs := b.registry.List()
	if len(jobs) == 0 {
		return "ℹ️ No active jobs."
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartedAt.Before(jobs[j].StartedAt)
	})

	lines := make([]string, 0, len(jobs))
	for _, j := range jobs {
		started := j.StartedAt.UTC().Format("2006-01-02 15:04:05")
		lines = append(lines, fmt.Sprintf("`%s` — %s — %s — started `%s`", j.ID, statusBadge(j), j.SourceURL, started))
	}
	return "🧾 Jobs:\n" + strings.Join(lines, "\n")
}

func statusBadge(j *domain.Job) string {
	switch j.State {
	case domain.StateDone:
		return "✅ done"
	case domain.StateFailed:
		return "❌ failed"
	case domain.StateCancelRequested:
		return "⚠ cancelled"
	default:
		return "⏳ running"
	}
}

func (b *Bot) cmdCancel(msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) == 0 {
		b.reply(msg, "Usage: /cancel <job_id>")
		return
	}
	jobID := args[0]
	if err := b.registry.RequestCancel(jobID); err != nil {
		b.reply(msg, fmt.Sprintf("❌ Job `%s` not found.", jobID))
		return
	}
	b.logger.Info("cancel requested", "jobId", jobID)
	b.reply(msg, fmt.Sprintf("⚠️ Cancel requested for `%s`.", jobID))
}

// cmdClear reaps terminal job records along with their workdirs, then
// sweeps any leftover directories a crashed run may have stranded.
func (b *Bot) cmdClear(msg *tgbotapi.Message) {
	maxAge := b.cfg.Cleanup.MaxAge.Std()
	removed := b.registry.ReapOlderThan(maxAge)
	removed += state.SweepWorkdirs(b.cfg.Jobs.DownloadDir, maxAge)
	b.logger.Info("cleanup ran", "removed", removed)
	b.reply(msg, fmt.Sprintf("🧹 Cleared %d old download folder(s).", removed))
}

// startJob creates the status message, registers the job and launches
// its pipeline run.
func (b *Bot) startJob(ctx context.Context, msg *tgbotapi.Message) {
	url := strings.TrimSpace(msg.Text)
	jobID := uuid.NewString()[:8]

	status, err := b.api.Send(markdownMessage(msg.Chat.ID, progress.RenderJobStarted(jobID, url)))
	if err != nil {
		b.logger.Error("could not create status message", "error", err, "chatId", msg.Chat.ID)
		return
	}
	handle := telegram.NewStatusHandle(b.api, msg.Chat.ID, status.MessageID)

	job := &domain.Job{
		ID:        jobID,
		SourceURL: url,
		UserID:    msg.From.ID,
		ChatID:    msg.Chat.ID,
		WorkDir:   b.cfg.WorkdirFor(msg.From.ID, jobID),
		State:     domain.StateRunning,
		StartedAt: time.Now().UTC(),
	}
	track, err := b.registry.Create(job, handle)
	if err != nil {
		b.logger.Error("could not register job", "jobId", jobID, "error", err)
		return
	}

	b.jobs.Add(1)
	go func() {
		defer b.jobs.Done()
		b.pipeline.Run(ctx, track)
	}()

	b.send(msg.Chat.ID, progress.RenderQueued(jobID))
	b.logger.Info("job accepted", "jobId", jobID, "userId", msg.From.ID, "chatId", msg.Chat.ID, "url", url)
}

func (b *Bot) reply(msg *tgbotapi.Message, text string) {
	m := markdownMessage(msg.Chat.ID, text)
	m.ReplyToMessageID = msg.MessageID
	if _, err := b.api.Send(m); err != nil {
		b.logger.Warn("reply failed", "chatId", msg.Chat.ID, "error", err)
	}
}

func (b *Bot) send(chatID int64, text string) {
	if _, err := b.api.Send(markdownMessage(chatID, text)); err != nil {
		b.logger.Warn("send failed", "chatId", chatID, "error", err)
	}
}

func markdownMessage(chatID int64, text string) tgbotapi.MessageConfig {
	m := tgbotapi.NewMessage(chatID, text)
	m.ParseMode = tgbotapi.ModeMarkdown
	return m
}
