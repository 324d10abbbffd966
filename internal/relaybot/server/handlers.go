package server

import (
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"relaybot/internal/relaybot/domain"
	"relaybot/internal/relaybot/progress"
	"relaybot/internal/relaybot/state"
	"relaybot/pkg/client"
	apperrors "relaybot/pkg/errors"
)

func toJobDTO(j *domain.Job) client.Job {
	return client.Job{
		ID:           j.ID,
		SourceURL:    j.SourceURL,
		UserID:       j.UserID,
		ChatID:       j.ChatID,
		WorkDir:      j.WorkDir,
		State:        string(j.State),
		FailureCause: j.FailureCause,
		Files: client.FileStats{
			Relayed:   j.Files.Relayed,
			Skipped:   j.Files.Skipped,
			Abandoned: j.Files.Abandoned,
			Failed:    j.Files.Failed,
		},
		StartedAt: j.StartedAt,
		EndedAt:   j.EndedAt,
		Duration:  j.Duration().Round(time.Second).String(),
	}
}

func toProgressDTO(s progress.Snapshot) *client.Progress {
	if s.Phase == "" {
		return nil
	}
	return &client.Progress{
		Phase:      string(s.Phase),
		Final:      s.Final,
		Label:      s.Label,
		BytesDone:  s.BytesDone,
		BytesTotal: s.BytesTotal,
		Rate:       s.Rate,
		Text:       s.Text,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	active := 0
	for _, job := range s.registry.List() {
		if job.IsActive() {
			active++
		}
	}
	respondJSON(w, client.Health{Status: "ok", ActiveJobs: active})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.registry.List()
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartedAt.Before(jobs[j].StartedAt)
	})

	out := make([]client.Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, toJobDTO(job))
	}
	respondJSON(w, out)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")

	job, ok := s.registry.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "JOB_NOT_FOUND", "no job with id "+id)
		return
	}

	detail := client.JobDetail{Job: toJobDTO(job)}
	if snap, ok := s.registry.Progress(id); ok {
		detail.Progress = toProgressDTO(snap)
	}
	respondJSON(w, detail)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")

	if err := s.registry.RequestCancel(id); errors.Is(err, apperrors.ErrJobNotFound) {
		respondError(w, http.StatusNotFound, "JOB_NOT_FOUND", "no job with id "+id)
		return
	}

	job, _ := s.registry.Get(id)
	respondJSON(w, toJobDTO(job))
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	maxAge := s.cfg.Cleanup.MaxAge.Std()
	removed := s.registry.ReapOlderThan(maxAge)
	removed += state.SweepWorkdirs(s.cfg.Jobs.DownloadDir, maxAge)

	s.logger.Info("cleanup via API", "removed", removed)
	respondJSON(w, client.CleanupResult{Removed: removed})
}
