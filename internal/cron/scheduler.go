package cronjob

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/buildtrix/mvp-studio-backend/internal/genlog"
	"github.com/buildtrix/mvp-studio-backend/internal/mvp"
	"github.com/buildtrix/mvp-studio-backend/internal/quota"
	"github.com/buildtrix/mvp-studio-backend/internal/wizard"
)

// sessionRetention is how long completed snapshots are kept before the
// nightly purge removes them.
const sessionRetention = 30 * 24 * time.Hour

type Scheduler struct {
	sessions *wizard.SessionRepo
	projects *mvp.Repo
	counter  *quota.Store
	logs     *genlog.Repo
	window   time.Duration
}

func NewScheduler(sessions *wizard.SessionRepo, projects *mvp.Repo, counter *quota.Store, logs *genlog.Repo, window time.Duration) *Scheduler {
	return &Scheduler{
		sessions: sessions,
		projects: projects,
		counter:  counter,
		logs:     logs,
		window:   window,
	}
}

// Start registers the nightly maintenance job (12:00 AM).
func (s *Scheduler) Start() {
	c := cron.New(cron.WithSeconds())

	_, err := c.AddFunc("0 0 0 * * *", func() {
		s.runNightly()
	})
	if err != nil {
		log.Printf("Failed to create cron job: %v", err)
		return
	}

	log.Println("Cron scheduler started (running nightly at 12:00AM)")
	c.Start()
}

func (s *Scheduler) runNightly() {
	log.Println("Nightly maintenance started (session purge + quota drift check)...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	purged, err := s.sessions.PurgeCompletedBefore(ctx, time.Now().Add(-sessionRetention))
	if err != nil {
		log.Printf("Session purge failed: %v", err)
	} else {
		log.Printf("Session purge removed %d snapshots", purged)
	}

	s.reconcileDrift(ctx)
}

// reconcileDrift clears Redis counters that have drifted ahead of the
// durable count. The durable store is authoritative; an inflated counter
// would deny users slots they still have.
func (s *Scheduler) reconcileDrift(ctx context.Context) {
	now := time.Now()
	users, err := s.projects.ActiveUserIDsSince(ctx, now.Add(-s.window))
	if err != nil {
		log.Printf("Drift check failed to list users: %v", err)
		return
	}

	cleared := 0
	for _, userID := range users {
		fast, err := s.counter.Count(ctx, userID, now)
		if err != nil {
			log.Printf("Drift check failed for user %s: %v", userID, err)
			continue
		}

		durable, _, err := s.projects.CountCreatedSince(ctx, userID, now.Add(-s.window))
		if err != nil {
			log.Printf("Drift check failed for user %s: %v", userID, err)
			continue
		}

		if int(fast) > durable {
			if err := s.counter.Clear(ctx, userID, now); err != nil {
				log.Printf("Drift clear failed for user %s: %v", userID, err)
				continue
			}
			cleared++
		}

		// Cross-check the audit log. Attempt rows are best-effort writes,
		// so fewer attempts than created projects means rows were dropped.
		attempts, err := s.logs.CountByUserSince(userID, now.Add(-s.window))
		if err != nil {
			log.Printf("Audit count failed for user %s: %v", userID, err)
			continue
		}
		if attempts < durable {
			log.Printf("Audit gap for user %s: %d attempts logged, %d projects created", userID, attempts, durable)
		}
	}

	log.Printf("Drift check cleared %d counters for %d active users", cleared, len(users))
}
