package cron

import "context"

// Job represents a scheduled task that runs inside the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Entry binds a job to its cron schedule.
type Entry struct {
	Spec string
	Job  Job
}

// Registry tracks registered cron jobs.
type Registry struct {
	entries []Entry
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a job under a robfig/cron spec such as "@every 30m".
func (r *Registry) Register(spec string, job Job) {
	if job == nil || spec == "" {
		return
	}
	r.entries = append(r.entries, Entry{Spec: spec, Job: job})
}

// Entries returns the registered jobs in the order they were added.
func (r *Registry) Entries() []Entry {
	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)
	return entries
}
