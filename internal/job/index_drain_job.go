package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/clavisedu/ragline/internal/service"
)

type IndexDrainJob struct {
	indexer *service.Indexer
}

func NewIndexDrainJob(indexer *service.Indexer) *IndexDrainJob {
	return &IndexDrainJob{indexer: indexer}
}

func (j *IndexDrainJob) Name() string {
	return "index_drain"
}

func (j *IndexDrainJob) Run(ctx context.Context) error {
	if j.indexer == nil {
		return nil
	}
	report, err := j.indexer.DrainQueue(ctx)
	if report.Processed > 0 {
		logutil.GetLogger(ctx).Info("drain report",
			zap.Int("processed", report.Processed),
			zap.Int("succeeded", report.Succeeded),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed),
			zap.Int("poisoned", report.Poisoned))
	}
	return err
}
