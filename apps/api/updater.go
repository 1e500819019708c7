package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/swcache/core"
	"github.com/trezcool/swcache/core/cache"
)

// updater registers a manager for the configured version until it becomes active.
// A failed install is retried on the next scheduled run.
type updater struct {
	conf    *core.Config
	logger  core.Logger
	reg     *cache.Registration
	newOpts func() cache.Options

	mu    sync.Mutex
	sched *cron.Cron
}

func newUpdater(conf *core.Config, logger core.Logger, reg *cache.Registration, newOpts func() cache.Options) *updater {
	return &updater{
		conf:    conf,
		logger:  logger,
		reg:     reg,
		newOpts: newOpts,
		sched:   cron.New(),
	}
}

func (u *updater) Update(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.reg.IsCurrent(u.conf.Cache.Version) {
		return nil
	}
	m, err := cache.NewManager(u.newOpts())
	if err != nil {
		return errors.Wrap(err, "creating cache manager")
	}
	return u.reg.Register(ctx, m)
}

// Start runs Update once, then on the configured schedule.
func (u *updater) Start(ctx context.Context) error {
	if err := u.Update(ctx); err != nil {
		u.logger.Warn(fmt.Sprintf("installing %s: %v; retrying later", u.conf.Cache.Version, err), err)
	}

	_, err := u.sched.AddFunc(u.conf.Server.UpdateSchedule, func() {
		if u.reg.IsCurrent(u.conf.Cache.Version) {
			return
		}
		if err := u.Update(ctx); err != nil {
			u.logger.Warn(fmt.Sprintf("installing %s: %v", u.conf.Cache.Version, err), err)
		}
	})
	if err != nil {
		return errors.Wrapf(err, "scheduling updates %q", u.conf.Server.UpdateSchedule)
	}
	u.sched.Start()
	return nil
}

// Stop stops the schedule and waits for a running update to finish.
func (u *updater) Stop() {
	<-u.sched.Stop().Done()
}
