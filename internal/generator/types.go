package generator

import (
	"time"

	"github.com/JakeFAU/edge-sitemaps/internal/script"
	"github.com/JakeFAU/edge-sitemaps/internal/sitemap"
)

// Worker outcome statuses recorded in reports, notifications and the ledger.
const (
	StatusDeployed = "deployed"
	StatusDryRun   = "dry_run"
	StatusFailed   = "failed"
)

// Report summarizes a run.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	DryRun     bool
	Workers    []WorkerReport
}

// WorkerReport summarizes one worker. Err is nil on success.
type WorkerReport struct {
	Name      string
	Status    string
	Modules   int
	Pages     int
	Sitemaps  int
	Dropped   int
	Units     int
	Artifacts []string
	Err       error
}

// RunRecord is the ledger row for one worker in one run.
type RunRecord struct {
	RunID      string
	Worker     string
	StartedAt  time.Time
	FinishedAt time.Time
	DryRun     bool
	Modules    int
	Pages      int
	Sitemaps   int
	Dropped    int
	Units      int
	Status     string
	Error      string
	Artifacts  []string
}

// Notification is published once per worker per run.
type Notification struct {
	RunID      string    `json:"run_id"`
	Worker     string    `json:"worker"`
	Status     string    `json:"status"`
	DryRun     bool      `json:"dry_run"`
	Error      string    `json:"error,omitempty"`
	Sitemaps   []string  `json:"sitemaps,omitempty"`
	Scripts    []string  `json:"scripts,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// Attributes lets subscribers filter without decoding the payload.
func (n Notification) Attributes() map[string]string {
	return map[string]string{
		"run_id": n.RunID,
		"worker": n.Worker,
		"status": n.Status,
	}
}

// WorkerBuild is everything produced for one worker before upload.
type WorkerBuild struct {
	Worker string
	Pages  int
	// Sitemaps holds every built sitemap, including any dropped by distribution.
	Sitemaps     []sitemap.Sitemap
	Index        string
	Distribution sitemap.Distribution
	Scripts      []script.Script
}

// Routes merges the routing tables of every unit script.
func (b WorkerBuild) Routes() map[string]string {
	routes := make(map[string]string)
	for _, s := range b.Scripts {
		for path, doc := range s.Routes {
			routes[path] = doc
		}
	}
	return routes
}
