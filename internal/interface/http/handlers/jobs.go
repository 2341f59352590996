package handlers

import (
	"net/http"
	"time"

	"github.com/admissions-hub/admissions-core/config"
	"github.com/admissions-hub/admissions-core/internal/infrastructure/scheduler"
)

// JobLister reports the scheduled jobs.
type JobLister interface {
	ListJobs() []scheduler.JobInfo
}

// JobView is the JSON form of a scheduled job.
type JobView struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Enabled     bool       `json:"enabled"`
	Schedule    string     `json:"schedule"`
	NextRun     time.Time  `json:"next_run"`
	RunCount    int64      `json:"run_count"`
	FailCount   int64      `json:"fail_count"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

func viewJob(info scheduler.JobInfo) JobView {
	v := JobView{
		Name:        info.Name,
		Description: info.Description,
		Enabled:     info.Enabled,
		Schedule:    info.Schedule,
		NextRun:     info.NextRun,
		RunCount:    info.RunCount,
		FailCount:   info.FailCount,
	}
	if last := info.LastResult; last != nil {
		at := last.StartedAt
		v.LastRunAt = &at
		if last.Error != nil {
			v.LastError = last.Error.Error()
		}
	}
	return v
}

// Jobs lists the scheduled jobs, or 404 when the worker runs no scheduler.
func Jobs(jobs JobLister) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if jobs == nil {
			WriteError(w, http.StatusNotFound, "not_found", "no scheduler running")
			return
		}
		infos := jobs.ListJobs()
		out := make([]JobView, len(infos))
		for i, info := range infos {
			out[i] = viewJob(info)
		}
		WriteJSON(w, http.StatusOK, out)
	}
}

// FlagLister exposes the current feature flags.
type FlagLister interface {
	Snapshot() []config.Feature
}

type flagView struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Percent     int    `json:"rollout_percent"`
}

// Flags lists the feature flags and their rollout.
func Flags(flags FlagLister) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if flags == nil {
			WriteError(w, http.StatusNotFound, "not_found", "no feature flags loaded")
			return
		}
		snap := flags.Snapshot()
		out := make([]flagView, len(snap))
		for i, f := range snap {
			out[i] = flagView{Name: f.Name, Description: f.Description, Percent: f.Percent}
		}
		WriteJSON(w, http.StatusOK, out)
	}
}
