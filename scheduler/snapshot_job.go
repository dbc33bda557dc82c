package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/moodlync/EmotionalSync-sub008/services"
	"github.com/moodlync/EmotionalSync-sub008/utils"
)

// SnapshotScheduler exports a ledger snapshot on a cron schedule so an
// operator always has a recent restore point.
type SnapshotScheduler struct {
	cron      *cron.Cron
	snapshots *services.SnapshotGateway
	expr      string
}

// NewSnapshotScheduler creates a scheduler for the given cron expression
// (six-field, with seconds).
func NewSnapshotScheduler(snapshots *services.SnapshotGateway, expr string) *SnapshotScheduler {
	return &SnapshotScheduler{
		cron:      cron.New(cron.WithSeconds()),
		snapshots: snapshots,
		expr:      expr,
	}
}

// Start registers the job and starts the cron loop.
func (s *SnapshotScheduler) Start() error {
	if _, err := s.cron.AddFunc(s.expr, s.export); err != nil {
		return err
	}
	s.cron.Start()
	utils.Sugar.Infof("snapshot scheduler started (%s)", s.expr)
	return nil
}

// Stop halts the cron loop and waits for a running export to finish.
func (s *SnapshotScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	utils.Sugar.Info("snapshot scheduler stopped")
}

func (s *SnapshotScheduler) export() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	meta, err := s.snapshots.Export(ctx, "scheduled snapshot")
	if err != nil {
		utils.Sugar.Errorf("scheduled snapshot failed: %v", err)
		return
	}
	utils.Sugar.Infof("scheduled snapshot %s completed", meta.ID)
}
