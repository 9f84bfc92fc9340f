package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"memoria/internal/config"
	"memoria/internal/database"
)

// How many users consolidate at once during a scheduled sweep.
const consolidationParallelism = 4

// SchedulerService runs periodic consolidation sweeps. Active users are
// discovered from their live context windows in Redis; each user's run is
// independently locked, so multiple engine instances can run this safely.
type SchedulerService struct {
	scheduler     gocron.Scheduler
	redis         *database.Redis
	consolidation *ConsolidationService
	cfg           *config.Config
}

// NewSchedulerService creates the scheduler. The cron expression is validated
// up front so a bad schedule fails at start-up, not at first fire.
func NewSchedulerService(redis *database.Redis, consolidation *ConsolidationService, cfg *config.Config) (*SchedulerService, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(cfg.ConsolidationSchedule); err != nil {
		return nil, fmt.Errorf("invalid consolidation schedule %q: %w", cfg.ConsolidationSchedule, err)
	}

	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &SchedulerService{
		scheduler:     scheduler,
		redis:         redis,
		consolidation: consolidation,
		cfg:           cfg,
	}, nil
}

// Start registers the consolidation sweep and starts the scheduler.
func (s *SchedulerService) Start(ctx context.Context) error {
	log.Println("⏰ Starting consolidation scheduler...")

	_, err := s.scheduler.NewJob(
		gocron.CronJob(s.cfg.ConsolidationSchedule, false),
		gocron.NewTask(func() {
			s.RunSweep(ctx)
		}),
		gocron.WithName("consolidation-sweep"),
	)
	if err != nil {
		return fmt.Errorf("failed to register consolidation job: %w", err)
	}

	s.scheduler.Start()
	log.Printf("✅ Consolidation scheduler started (schedule: %s)", s.cfg.ConsolidationSchedule)
	return nil
}

// Stop shuts the scheduler down, waiting for running jobs.
func (s *SchedulerService) Stop() error {
	log.Println("⏹️ Stopping consolidation scheduler...")
	return s.scheduler.Shutdown()
}

// RunSweep consolidates every active user, a bounded number in parallel.
// Per-user failures are logged and do not stop the sweep.
func (s *SchedulerService) RunSweep(ctx context.Context) {
	start := time.Now()

	users, err := s.activeUsers(ctx)
	if err != nil {
		log.Printf("⚠️ [SCHEDULER] Active-user discovery failed, sweep skipped: %v", err)
		return
	}
	if len(users) == 0 {
		return
	}

	log.Printf("🔄 [SCHEDULER] Consolidation sweep starting for %d users", len(users))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(consolidationParallelism)
	for _, userID := range users {
		group.Go(func() error {
			runStart := time.Now()
			result, err := s.consolidation.Consolidate(groupCtx, userID)
			if err != nil {
				log.Printf("⚠️ [SCHEDULER] Consolidation failed for user %s: %v", userID, err)
				GetMetrics().RecordConsolidation("error", 0, time.Since(runStart))
				return nil // one user's failure never aborts the sweep
			}
			GetMetrics().RecordConsolidation("ok", result.SemanticCreated, time.Since(runStart))
			return nil
		})
	}
	_ = group.Wait()

	log.Printf("✅ [SCHEDULER] Consolidation sweep finished in %v", time.Since(start))
}

// activeUsers scans the live context-window keys. A user with no recent
// activity has an expired window and drops out of scheduled consolidation.
func (s *SchedulerService) activeUsers(ctx context.Context) ([]string, error) {
	var users []string
	iter := s.redis.Client().Scan(ctx, 0, "context:*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if userID := strings.TrimPrefix(key, "context:"); userID != key && userID != "" {
			users = append(users, userID)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return users, nil
}
