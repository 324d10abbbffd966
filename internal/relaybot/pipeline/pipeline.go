// Package pipeline drives one job from link to terminal state: it
// launches the retrieval activity into the job's working directory,
// drains settled files out of it one at a time into the relay
// transport, deletes what it relayed and reports progress through the
// job's status handle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"relaybot/internal/relaybot/domain"
	"relaybot/internal/relaybot/progress"
	"relaybot/internal/relaybot/state"
	apperrors "relaybot/pkg/errors"
	"relaybot/pkg/format"
	"relaybot/pkg/logger"
)

// conflictBackoff is the pause between clearing a conflicting local
// path and relaunching the retrieval.
const conflictBackoff = time.Second

// Options configures a Pipeline. Zero values fall back to working
// defaults, except MaxRelayBytes and MaxConcurrent where zero means
// unlimited.
type Options struct {
	Fetcher  Fetcher
	Relay    RelayClient
	Prober   Prober
	Reporter *progress.Reporter

	StabilityWindow  time.Duration
	StabilityPoll    time.Duration
	DrainPoll        time.Duration
	MaxRelayBytes    int64
	RetrievalRetries int
	BarLength        int
	MaxConcurrent    int64
}

// Pipeline runs jobs. One Pipeline serves the whole process; each job
// gets its own Run invocation, usually on its own goroutine.
type Pipeline struct {
	fetcher  Fetcher
	relay    RelayClient
	prober   Prober
	reporter *progress.Reporter
	sem      *semaphore.Weighted

	stabilityWindow time.Duration
	stabilityPoll   time.Duration
	drainPoll       time.Duration
	maxRelayBytes   int64
	retries         int
	barLength       int

	logger *logger.Logger
}

func New(opts Options) *Pipeline {
	p := &Pipeline{
		fetcher:         opts.Fetcher,
		relay:           opts.Relay,
		prober:          opts.Prober,
		reporter:        opts.Reporter,
		stabilityWindow: opts.StabilityWindow,
		stabilityPoll:   opts.StabilityPoll,
		drainPoll:       opts.DrainPoll,
		maxRelayBytes:   opts.MaxRelayBytes,
		retries:         opts.RetrievalRetries,
		barLength:       opts.BarLength,
		logger:          logger.WithField("component", "pipeline"),
	}
	if p.stabilityWindow <= 0 {
		p.stabilityWindow = 3 * time.Second
	}
	if p.stabilityPoll <= 0 {
		p.stabilityPoll = time.Second
	}
	if p.drainPoll <= 0 {
		p.drainPoll = time.Second
	}
	if p.retries <= 0 {
		p.retries = 3
	}
	if p.barLength <= 0 {
		p.barLength = 24
	}
	if p.reporter == nil {
		p.reporter = progress.NewReporter(0)
	}
	if opts.MaxConcurrent > 0 {
		p.sem = semaphore.NewWeighted(opts.MaxConcurrent)
	}
	return p
}

// drainResult carries what the draining phase learned into the
// finishing phase.
type drainResult struct {
	fetchErr  error
	cancelled bool
}

// Run drives one job to its terminal state and returns when the job
// record has been finalized. ctx is the process lifetime; the job's
// own cancellation arrives through track.Context(). An in-flight relay
// is never interrupted by job cancellation, only by process shutdown.
func (p *Pipeline) Run(ctx context.Context, track *state.Track) {
	log := p.logger.WithField("jobId", track.ID())
	job := track.Job()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	stop := context.AfterFunc(track.Context(), cancelRun)
	defer stop()

	if p.sem != nil {
		log.Debug("waiting for a free job slot")
		if err := p.sem.Acquire(runCtx, 1); err != nil {
			p.finish(track, job.WorkDir, drainResult{cancelled: track.CancelRequested()}, log)
			return
		}
		defer p.sem.Release(1)
	}

	log.Info("job starting", "url", job.SourceURL, "workDir", job.WorkDir)

	if err := p.prepareWorkdir(job.WorkDir); err != nil {
		p.finish(track, job.WorkDir, drainResult{
			fetchErr: fmt.Errorf("failed to prepare working directory: %w", err),
		}, log)
		return
	}

	fetchDone := make(chan error, 1)
	go func() {
		fetchDone <- p.runFetch(runCtx, job.SourceURL, job.WorkDir, log)
	}()

	res := p.drain(runCtx, ctx, track, job.ChatID, job.WorkDir, fetchDone, log)
	p.finish(track, job.WorkDir, res, log)
}

// runFetch launches the retrieval and retries it when the tool refuses
// to overwrite an existing local path. Each conflict clears the path,
// waits briefly and consumes one attempt. Any other error is terminal
// right away.
func (p *Pipeline) runFetch(ctx context.Context, url, destDir string, log *logger.Logger) error {
	var lastErr error
	for attempt := 1; attempt <= p.retries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Info("retrieval attempt", "attempt", attempt, "retries", p.retries)

		err := p.fetcher.Fetch(ctx, url, destDir)
		if err == nil {
			return nil
		}
		if path, ok := apperrors.ConflictPath(err); ok {
			log.Warn("conflicting local path, clearing and retrying", "path", path, "attempt", attempt)
			if rmErr := os.RemoveAll(path); rmErr != nil {
				log.Warn("could not clear conflicting path", "path", path, "error", rmErr)
			}
			lastErr = err
			if !sleep(ctx, conflictBackoff) {
				return ctx.Err()
			}
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error("retrieval failed", "error", err)
		return err
	}

	log.Error("retrieval attempts exhausted", "attempts", p.retries, "lastError", lastErr)
	return fmt.Errorf("Download failed after %d retries.", p.retries)
}

// drain routes files out of workDir while the retrieval is running or
// unrouted files remain. Files are handled strictly one at a time, in
// lexicographic path order within each scan. After a cancellation it
// stops routing new files, waits for the retrieval to wind down and
// marks whatever is left on disk as abandoned.
func (p *Pipeline) drain(ctx, relayCtx context.Context, track *state.Track, chatID int64, workDir string, fetchDone <-chan error, log *logger.Logger) drainResult {
	var res drainResult
	fetchRunning := true

drainLoop:
	for {
		if fetchRunning {
			select {
			case err := <-fetchDone:
				fetchRunning = false
				res.fetchErr = err
				log.Debug("retrieval activity finished", "error", res.fetchErr)
			default:
			}
		}
		if ctx.Err() != nil {
			res.cancelled = track.CancelRequested()
			break
		}

		batch := p.scanNew(track, workDir)
		if len(batch) == 0 {
			if !fetchRunning {
				break
			}
			if !sleep(ctx, p.drainPoll) {
				res.cancelled = track.CancelRequested()
				break
			}
			continue
		}

		for _, path := range batch {
			if !p.processFile(ctx, relayCtx, track, chatID, path, log) {
				res.cancelled = track.CancelRequested()
				break drainLoop
			}
		}
	}

	if res.cancelled || ctx.Err() != nil {
		if fetchRunning {
			err := <-fetchDone
			if res.fetchErr == nil {
				res.fetchErr = err
			}
		}
		for _, path := range p.scanNew(track, workDir) {
			p.abandonFile(track, path, log)
		}
	}
	return res
}

// scanNew lists the not-yet-routed files under root, sorted by path.
func (p *Pipeline) scanNew(track *state.Track, root string) []string {
	var batch []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		// megadl writes partials to .megatmp files and renames them into place
		if strings.HasSuffix(d.Name(), ".megatmp") {
			return nil
		}
		if !track.IsProcessed(path) {
			batch = append(batch, path)
		}
		return nil
	})
	sort.Strings(batch)
	return batch
}

// processFile waits for one file to settle, then relays it or skips it
// over the size ceiling. Returns false when the settle wait was cut
// short by cancellation; the file is then kept on disk and marked
// abandoned.
func (p *Pipeline) processFile(ctx, relayCtx context.Context, track *state.Track, chatID int64, path string, log *logger.Logger) bool {
	name := filepath.Base(path)

	log.Debug("waiting for file to settle", "path", path)
	sampler := progress.NewRateSampler(0)
	stable := WaitStable(ctx, path, p.stabilityWindow, p.stabilityPoll, func(size int64) {
		sampler.Observe(time.Now(), size)
		p.emit(track, progress.Snapshot{
			Phase:      progress.PhaseFetching,
			Label:      name,
			BytesDone:  size,
			BytesTotal: progress.Unknown,
			Rate:       sampler.Rate(),
			ETA:        progress.Unknown,
			Text:       progress.RenderFetching(name, size, sampler.Rate()),
		})
	})
	if !stable {
		p.abandonFile(track, path, log)
		return false
	}
	if !track.MarkProcessed(path) {
		return true
	}

	info, err := os.Stat(path)
	if err != nil {
		log.Warn("settled file vanished before relay", "path", path, "error", err)
		return true
	}
	size := info.Size()

	var mediaDur time.Duration
	if p.prober != nil && KindFor(name) == KindVideo {
		mediaDur = p.prober.Duration(ctx, path)
	}

	fetched := progress.RenderFetched(name, size, mediaDur)
	p.emit(track, progress.Snapshot{
		Phase:      progress.PhaseFetching,
		Final:      true,
		Label:      name,
		BytesDone:  size,
		BytesTotal: size,
		Text:       fetched,
	})

	if p.maxRelayBytes > 0 && size > p.maxRelayBytes {
		log.Info("file exceeds relay ceiling, kept on disk", "path", path, "size", size, "ceiling", p.maxRelayBytes)
		p.emit(track, progress.Snapshot{
			Phase:      progress.PhaseFetching,
			Final:      true,
			Label:      name,
			BytesDone:  size,
			BytesTotal: size,
			Text:       progress.RenderTooLarge(fetched, p.maxRelayBytes, path),
		})
		_ = track.Update(func(j *domain.Job) error { j.Files.Skipped++; return nil })
		return true
	}

	p.relayFile(relayCtx, track, chatID, path, name, size, log)
	return true
}

// relayFile sends one settled file and then removes it from disk,
// whether or not the transport accepted it.
func (p *Pipeline) relayFile(ctx context.Context, track *state.Track, chatID int64, path, name string, size int64, log *logger.Logger) {
	log.Info("relaying file", "path", path, "size", size)

	sampler := progress.NewRateSampler(0)
	started := time.Now()
	onProgress := func(sent, total int64) {
		sampler.Observe(time.Now(), sent)
		rate := sampler.Rate()
		eta, known := sampler.ETA(total - sent)
		if !known {
			eta = time.Duration(progress.Unknown)
		}
		p.emit(track, progress.Snapshot{
			Phase:      progress.PhaseRelaying,
			Label:      name,
			BytesDone:  sent,
			BytesTotal: total,
			Rate:       rate,
			ETA:        eta,
			Text:       progress.RenderRelaying(name, sent, total, rate, eta, known, p.barLength),
		})
	}

	meta := Metadata{Caption: fmt.Sprintf("%s\n%s", name, format.Size(size))}
	result, err := p.relay.Send(ctx, chatID, path, meta, onProgress)
	if err != nil {
		log.Error("relay failed", "path", path, "error", err)
		p.emit(track, progress.Snapshot{
			Phase: progress.PhaseRelaying,
			Final: true,
			Label: name,
			Text:  progress.RenderRelayFailed(name, err),
		})
		_ = track.Update(func(j *domain.Job) error { j.Files.Failed++; return nil })
	} else {
		text := progress.RenderRelayed(name, size)
		if result.LiveProgress {
			text = progress.RenderRelayComplete(name, size, time.Since(started), p.barLength)
		}
		p.emit(track, progress.Snapshot{
			Phase:      progress.PhaseRelaying,
			Final:      true,
			Label:      name,
			BytesDone:  size,
			BytesTotal: size,
			Text:       text,
		})
		_ = track.Update(func(j *domain.Job) error { j.Files.Relayed++; return nil })
		log.Info("file relayed", "path", path, "elapsed", time.Since(started))
	}

	if rmErr := os.Remove(path); rmErr != nil {
		log.Debug("could not remove local file", "path", path, "error", rmErr)
	}
}

// abandonFile marks a file as routed without relaying it. The file
// stays on disk for the cleanup sweep to collect later.
func (p *Pipeline) abandonFile(track *state.Track, path string, log *logger.Logger) {
	if !track.MarkProcessed(path) {
		return
	}
	_ = track.Update(func(j *domain.Job) error { j.Files.Abandoned++; return nil })
	log.Info("file abandoned on cancel", "path", path)
}

// finish records the terminal state and posts the job summary.
func (p *Pipeline) finish(track *state.Track, workDir string, res drainResult, log *logger.Logger) {
	failed := res.fetchErr != nil && !res.cancelled &&
		!errors.Is(res.fetchErr, context.Canceled) &&
		!errors.Is(res.fetchErr, context.DeadlineExceeded)

	if failed {
		cause := res.fetchErr.Error()
		if err := track.Update(func(j *domain.Job) error { return j.Fail(cause) }); err != nil {
			log.Warn("could not record job failure", "error", err)
		}
		p.emit(track, progress.Snapshot{
			Phase: progress.PhaseFailed,
			Final: true,
			Text:  progress.RenderFailure(cause),
		})
	} else {
		if err := track.Update(func(j *domain.Job) error { return j.Complete() }); err != nil {
			log.Warn("could not record job completion", "error", err)
		}
		files := track.Job().Files
		text := progress.RenderComplete(files.Relayed, files.Skipped, files.Failed)
		if res.cancelled {
			text = progress.RenderCancelled(files.Relayed, files.Abandoned)
		}
		p.emit(track, progress.Snapshot{
			Phase: progress.PhaseComplete,
			Final: true,
			Text:  text,
		})
	}

	p.removeWorkdirIfEmpty(workDir, log)

	job := track.Job()
	log.Info("job finished",
		"state", string(job.State),
		"relayed", job.Files.Relayed,
		"skipped", job.Files.Skipped,
		"failed", job.Files.Failed,
		"abandoned", job.Files.Abandoned,
		"duration", job.Duration())
}

// emit records the snapshot on the track and pushes it at the status
// handle. Throttling and dedup live in the reporter.
func (p *Pipeline) emit(track *state.Track, snap progress.Snapshot) {
	track.SetSnapshot(snap)
	_ = p.reporter.Emit(track.Handle(), snap)
}

func (p *Pipeline) prepareWorkdir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

func (p *Pipeline) removeWorkdirIfEmpty(dir string, log *logger.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return
	}
	if err := os.Remove(dir); err != nil {
		log.Debug("could not remove empty work directory", "dir", dir, "error", err)
	}
}
