package telegram

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"relaybot/internal/relaybot/pipeline"
	"relaybot/pkg/logger"
)

// uploadTimeout bounds one direct upload end to end.
const uploadTimeout = time.Hour

// Relay sends local files to a chat. It streams the file through a
// direct multipart POST so byte counts can feed live progress, and
// falls back to the plain library upload when the direct path is
// rejected.
type Relay struct {
	bot      *tgbotapi.BotAPI
	client   *http.Client
	endpoint string
	token    string
	logger   *logger.Logger
}

func NewRelay(bot *tgbotapi.BotAPI, token string) *Relay {
	return NewRelayWithEndpoint(bot, token, tgbotapi.APIEndpoint)
}

// NewRelayWithEndpoint targets a non-default API server, such as a
// self-hosted bot API instance. endpoint is a format string taking the
// token and the method name.
func NewRelayWithEndpoint(bot *tgbotapi.BotAPI, token, endpoint string) *Relay {
	return &Relay{
		bot:      bot,
		client:   &http.Client{Timeout: uploadTimeout},
		endpoint: endpoint,
		token:    token,
		logger:   logger.WithField("component", "telegram"),
	}
}

// methodFor maps a media kind to the API method and its file field.
func methodFor(kind pipeline.MediaKind) (method, field string) {
	switch kind {
	case pipeline.KindVideo:
		return "sendVideo", "video"
	case pipeline.KindPhoto:
		return "sendPhoto", "photo"
	case pipeline.KindAudio:
		return "sendAudio", "audio"
	default:
		return "sendDocument", "document"
	}
}

// Send relays one file. The direct path reports live progress through
// onProgress; if it fails for any reason the library fallback is tried
// once, without progress.
func (r *Relay) Send(ctx context.Context, chatID int64, filePath string, meta pipeline.Metadata, onProgress pipeline.ProgressFunc) (pipeline.SendResult, error) {
	kind := pipeline.KindFor(filepath.Base(filePath))

	err := r.directUpload(ctx, chatID, filePath, meta, kind, onProgress)
	if err == nil {
		return pipeline.SendResult{LiveProgress: true}, nil
	}
	r.logger.Warn("direct upload failed, using fallback", "path", filePath, "error", err)

	if err := r.fallback(chatID, filePath, meta, kind); err != nil {
		return pipeline.SendResult{}, err
	}
	return pipeline.SendResult{LiveProgress: false}, nil
}

// countingReader reports cumulative bytes read to onProgress.
type countingReader struct {
	reader     io.Reader
	count      int64
	total      int64
	onProgress pipeline.ProgressFunc
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.reader.Read(p)
	if n > 0 {
		c.count += int64(n)
		if c.onProgress != nil {
			c.onProgress(c.count, c.total)
		}
	}
	return n, err
}

func (r *Relay) directUpload(ctx context.Context, chatID int64, filePath string, meta pipeline.Metadata, kind pipeline.MediaKind, onProgress pipeline.ProgressFunc) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return err
	}
	total := info.Size()
	method, field := methodFor(kind)

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeUpload(mw, chatID, filePath, meta, kind, field, total, onProgress))
	}()

	url := fmt.Sprintf(r.endpoint, r.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("upload rejected: %s: %s", resp.Status, string(body))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// writeUpload streams the multipart body: the scalar fields first,
// then the file piped through the byte counter.
func writeUpload(mw *multipart.Writer, chatID int64, filePath string, meta pipeline.Metadata, kind pipeline.MediaKind, field string, total int64, onProgress pipeline.ProgressFunc) error {
	if err := mw.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return err
	}
	if err := mw.WriteField("caption", meta.Caption); err != nil {
		return err
	}
	if kind == pipeline.KindVideo {
		if err := mw.WriteField("supports_streaming", "true"); err != nil {
			return err
		}
		if err := mw.WriteField("has_spoiler", "true"); err != nil {
			return err
		}
	}

	part, err := mw.CreateFormFile(field, filepath.Base(filePath))
	if err != nil {
		return err
	}
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	counted := &countingReader{reader: f, total: total, onProgress: onProgress}
	if _, err := io.Copy(part, counted); err != nil {
		return err
	}
	return mw.Close()
}

// fallback uses the library upload. No byte counts are available on
// this path, so completion is reported without live progress.
func (r *Relay) fallback(chatID int64, filePath string, meta pipeline.Metadata, kind pipeline.MediaKind) error {
	file := tgbotapi.FilePath(filePath)

	var msg tgbotapi.Chattable
	switch kind {
	case pipeline.KindVideo:
		v := tgbotapi.NewVideo(chatID, file)
		v.Caption = meta.Caption
		v.SupportsStreaming = true
		msg = v
	case pipeline.KindPhoto:
		p := tgbotapi.NewPhoto(chatID, file)
		p.Caption = meta.Caption
		msg = p
	case pipeline.KindAudio:
		a := tgbotapi.NewAudio(chatID, file)
		a.Caption = meta.Caption
		msg = a
	default:
		d := tgbotapi.NewDocument(chatID, file)
		d.Caption = meta.Caption
		msg = d
	}

	_, err := r.bot.Send(msg)
	return err
}
