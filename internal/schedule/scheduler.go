package schedule

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type JobStatus struct {
	Name      string    `json:"name"`
	Spec      string    `json:"spec"`
	LastStart time.Time `json:"last_start"`
	LastEnd   time.Time `json:"last_end"`
	LastError string    `json:"last_error,omitempty"`
	Running   bool      `json:"running"`
}

type Scheduler interface {
	AddJob(job Job, spec string) error
	Start(ctx context.Context)
	Stop()
}

type jobState struct {
	job     Job
	spec    string
	running atomic.Bool

	mu        sync.Mutex
	lastStart time.Time
	lastEnd   time.Time
	lastErr   error
}

// CronScheduler runs registered jobs on standard 5-field cron specs. A
// job that is still running when its next tick fires is skipped, never
// stacked.
type CronScheduler struct {
	cron *cron.Cron
	ctx  context.Context

	mu   sync.Mutex
	jobs map[string]*jobState
}

func NewCronScheduler() *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &CronScheduler{
		cron: cron.New(cron.WithParser(parser)),
		jobs: make(map[string]*jobState),
	}
}

func (c *CronScheduler) AddJob(job Job, spec string) error {
	name := job.Name()
	c.mu.Lock()
	if _, ok := c.jobs[name]; ok {
		c.mu.Unlock()
		return fmt.Errorf("job already registered: %s", name)
	}
	st := &jobState{job: job, spec: spec}
	c.jobs[name] = st
	c.mu.Unlock()

	logger := logutil.GetLogger(context.Background()).With(zap.String("job", name), zap.String("spec", spec))
	if _, err := c.cron.AddFunc(spec, func() { c.execute(st) }); err != nil {
		c.mu.Lock()
		delete(c.jobs, name)
		c.mu.Unlock()
		logger.Error("schedule job failed", zap.Error(err))
		return err
	}
	logger.Info("job scheduled")
	return nil
}

func (c *CronScheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.ctx = ctx
	c.cron.Start()
}

func (c *CronScheduler) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
}

// TriggerNow runs a registered job outside its schedule. The same
// skip-if-running guard applies.
func (c *CronScheduler) TriggerNow(name string) error {
	c.mu.Lock()
	st, ok := c.jobs[name]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("no such job: %s", name)
	}
	c.execute(st)
	return nil
}

func (c *CronScheduler) Status() []JobStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]JobStatus, 0, len(c.jobs))
	for _, st := range c.jobs {
		st.mu.Lock()
		js := JobStatus{
			Name:      st.job.Name(),
			Spec:      st.spec,
			LastStart: st.lastStart,
			LastEnd:   st.lastEnd,
			Running:   st.running.Load(),
		}
		if st.lastErr != nil {
			js.LastError = st.lastErr.Error()
		}
		st.mu.Unlock()
		out = append(out, js)
	}
	return out
}

func (c *CronScheduler) execute(st *jobState) {
	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	logger := logutil.GetLogger(ctx).With(
		zap.String("job", st.job.Name()),
		zap.String("spec", st.spec),
	)
	if !st.running.CompareAndSwap(false, true) {
		logger.Info("job skipped: still running")
		return
	}
	defer st.running.Store(false)

	start := time.Now()
	st.mu.Lock()
	st.lastStart = start
	st.mu.Unlock()

	logger.Info("job started")
	err := st.job.Run(ctx)
	elapsed := time.Since(start)

	st.mu.Lock()
	st.lastEnd = time.Now()
	st.lastErr = err
	st.mu.Unlock()

	if err != nil {
		logger.Error("job finished", zap.Error(err), zap.Duration("duration", elapsed))
		return
	}
	logger.Info("job finished", zap.Duration("duration", elapsed))
}
