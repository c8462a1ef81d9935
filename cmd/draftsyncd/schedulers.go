package main

import (
	"fmt"

	"github.com/angelmondragon/draftsync/internal/cron"
	"github.com/angelmondragon/draftsync/internal/drafts"
	"github.com/angelmondragon/draftsync/internal/uploadqueue"
	"github.com/angelmondragon/draftsync/pkg/config"
	"github.com/angelmondragon/draftsync/pkg/logger"
	"github.com/angelmondragon/draftsync/pkg/metrics"
	"github.com/angelmondragon/draftsync/pkg/redis"
)

const (
	queueSchedulerName       = "queue"
	maintenanceSchedulerName = "maintenance"
)

// newSchedulers builds the periodic upload pass and the slower maintenance
// cycle. Each holds its own lock: Redis when configured, else in-process.
func newSchedulers(
	cfg *config.Config,
	logg *logger.Logger,
	store *drafts.Store,
	processor *uploadqueue.Processor,
	redisClient *redis.Client,
	jobMetrics *metrics.CronJobMetrics,
) ([]*cron.Service, error) {
	uploadJob, err := cron.NewUploadQueueJob(processor, logg)
	if err != nil {
		return nil, err
	}
	cleanupJob, err := cron.NewDraftCleanupJob(cron.DraftCleanupJobParams{
		Logger:     logg,
		Store:      store,
		MaxAgeDays: cfg.Cleanup.MaxAgeDays,
	})
	if err != nil {
		return nil, err
	}
	staleJob, err := cron.NewStaleUploadJob(processor, logg)
	if err != nil {
		return nil, err
	}

	queueLock, err := newLock(redisClient, queueSchedulerName)
	if err != nil {
		return nil, err
	}
	maintenanceLock, err := newLock(redisClient, maintenanceSchedulerName)
	if err != nil {
		return nil, err
	}

	queueJobs, err := cron.NewRegistry(uploadJob)
	if err != nil {
		return nil, fmt.Errorf("queue jobs: %w", err)
	}
	maintenanceJobs, err := cron.NewRegistry(staleJob, cleanupJob)
	if err != nil {
		return nil, fmt.Errorf("maintenance jobs: %w", err)
	}

	queue, err := cron.NewService(cron.ServiceParams{
		Name:     queueSchedulerName,
		Logger:   logg,
		Registry: queueJobs,
		Lock:     queueLock,
		Metrics:  jobMetrics,
		Interval: cfg.Sync.PollInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("queue scheduler: %w", err)
	}
	maintenance, err := cron.NewService(cron.ServiceParams{
		Name:     maintenanceSchedulerName,
		Logger:   logg,
		Registry: maintenanceJobs,
		Lock:     maintenanceLock,
		Metrics:  jobMetrics,
		Interval: cfg.Cleanup.Interval,
	})
	if err != nil {
		return nil, fmt.Errorf("maintenance scheduler: %w", err)
	}
	return []*cron.Service{queue, maintenance}, nil
}

func newLock(redisClient *redis.Client, name string) (cron.Lock, error) {
	if redisClient == nil {
		return cron.NewLocalLock(), nil
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(name), 0)
	if err != nil {
		return nil, err
	}
	return lock, nil
}
