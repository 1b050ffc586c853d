package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/mmmaly/chcemvediet-sub000/internal/clock"
	"github.com/mmmaly/chcemvediet-sub000/internal/database/models"
	"github.com/mmmaly/chcemvediet-sub000/internal/services"
	"github.com/mmmaly/chcemvediet-sub000/pkg/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const slotFormat = "2006-01-02 15:04"

// JobFunc runs one job for one slot. now is the slot's local wall-clock
// instant.
type JobFunc func(now time.Time) error

type registeredJob struct {
	name  string
	slots []string // HH:MM local
	fn    JobFunc
}

// Scheduler drives the periodic jobs of the lifecycle engine. Jobs run at
// configured wall-clock slots; each run is recorded as a JobRun row and a
// slot whose last run succeeded is never run again, so restarting the
// process within the same day does not repeat side-effects.
type Scheduler struct {
	db         *gorm.DB
	logService *services.LogService
	log        *zap.Logger
	clk        clock.Clock
	loc        *time.Location
	collector  *metrics.Collector

	jobs     []registeredJob
	stopChan chan struct{}
	running  bool
	mu       sync.Mutex
	ticking  sync.Mutex // prevents overlapping tick cycles
}

// New creates a scheduler. Jobs are registered before Start and run in
// registration order within one tick.
func New(db *gorm.DB, logService *services.LogService, log *zap.Logger, clk clock.Clock, loc *time.Location, collector *metrics.Collector) *Scheduler {
	return &Scheduler{
		db:         db,
		logService: logService,
		log:        log,
		clk:        clk,
		loc:        loc,
		collector:  collector,
		stopChan:   make(chan struct{}),
	}
}

// Register adds a job with its wall-clock slots.
func (s *Scheduler) Register(name string, slots []string, fn JobFunc) {
	s.jobs = append(s.jobs, registeredJob{name: name, slots: slots, fn: fn})
}

// Start begins the tick loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.log.Info("scheduler starting", zap.Int("jobs", len(s.jobs)))

	go func() {
		select {
		case <-time.After(10 * time.Second):
			s.Tick()
		case <-s.stopChan:
			return
		}

		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.Tick()
			case <-s.stopChan:
				s.log.Info("scheduler stopping")
				return
			}
		}
	}()
}

// Stop stops the tick loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	close(s.stopChan)
	s.running = false
}

// Tick runs every due slot of every job. A slot is due when its wall-clock
// time today has passed and its last recorded run did not succeed. Exported
// so the CLI and tests can drive the scheduler without the loop.
func (s *Scheduler) Tick() {
	if !s.ticking.TryLock() {
		s.log.Warn("previous tick still running, skipping this cycle")
		return
	}
	defer s.ticking.Unlock()

	now := s.clk.Now().In(s.loc)
	today := now.Format("2006-01-02")

	for _, job := range s.jobs {
		for _, slot := range job.slots {
			slotTime, err := time.ParseInLocation("2006-01-02 15:04", today+" "+slot, s.loc)
			if err != nil {
				s.log.Error("invalid slot", zap.String("job", job.name), zap.String("slot", slot), zap.Error(err))
				continue
			}
			if slotTime.After(now) {
				continue
			}
			s.runSlot(job, slotTime.Format(slotFormat), now)
		}
	}
}

// runSlot runs one job for one slot unless that slot already succeeded.
func (s *Scheduler) runSlot(job registeredJob, slotKey string, now time.Time) {
	var last models.JobRun
	err := s.db.Where("job = ? AND slot = ?", job.name, slotKey).
		Order("id DESC").
		First(&last).Error
	if err == nil && last.Success {
		return
	}

	s.log.Info("running job", zap.String("job", job.name), zap.String("slot", slotKey))

	run := models.JobRun{Job: job.name, Slot: slotKey, Success: true}
	started := time.Now()
	if err := job.fn(now); err != nil {
		run.Success = false
		run.Error = err.Error()
		s.logService.LogError(0, models.LogModuleScheduler, job.name, fmt.Sprintf("Job failed: %v", err), map[string]interface{}{
			"slot": slotKey,
		})
		s.collector.Inc("job_runs_failed", job.name)
	} else {
		s.collector.Inc("job_runs", job.name)
	}
	s.collector.ObserveLatency("job:"+job.name, time.Since(started))
	if err := s.db.Create(&run).Error; err != nil {
		s.log.Error("failed to record job run", zap.String("job", job.name), zap.Error(err))
	}
}
