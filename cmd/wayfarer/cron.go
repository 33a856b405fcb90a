package main

import (
	"time"

	"Wayfarer/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

const defaultSweepInterval = 10 * time.Minute

// StartCacheSweepCron evicts expired response cache entries on a fixed
// interval. A non-positive interval uses the default.
func StartCacheSweepCron(uc *biz.TravelUsecase, interval time.Duration, logger log.Logger) *cron.Cron {
	helper := log.NewHelper(logger)
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	c := cron.New()
	_, err := c.AddFunc("@every "+interval.String(), func() {
		removed := uc.SweepCache()
		helper.Debugw("msg", "cache sweep completed", "removed", removed)
	})
	if err != nil {
		helper.Errorw("msg", "failed to register cache sweep cron job", "error", err)
		return nil
	}

	c.Start()
	helper.Infow("msg", "cache sweep cron job started", "interval", interval.String())

	return c
}
