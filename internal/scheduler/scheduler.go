// Package scheduler fires the broadcast tick on a fixed interval.
//
// It is trigger-only: execution lives in the engine. The cron runner is
// located in the broadcast timezone so its log lines read in civil time.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "castbot/pkg/logx"
)

const DefaultInterval = 15 * time.Second

// Ticker runs one pass over due schedules and returns how many ran.
type Ticker interface {
	Tick(ctx context.Context) int
}

type Config struct {
	Interval time.Duration
	Location *time.Location
	// Timeout bounds one pass; zero means no bound.
	Timeout time.Duration
}

type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	t   Ticker

	c       *cron.Cron
	ctx     context.Context
	entryID cron.EntryID

	passes atomic.Uint64
	ran    atomic.Uint64
}

func New(cfg Config, t Ticker, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: normalize(cfg), t: t, log: log}
}

func normalize(cfg Config) Config {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return cfg
}

// Spec is the cron descriptor used for the tick.
func (s *Service) Spec() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return spec(s.cfg.Interval)
}

func spec(d time.Duration) string { return "@every " + d.String() }

// Start begins triggering. ctx is handed to every pass; cancelling it
// aborts in-flight deliveries but not the cron runner, see Stop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.ctx = ctx
	s.c = cron.New(
		cron.WithLocation(s.cfg.Location),
		cron.WithChain(cron.Recover(cronLogger{s.log}), cron.SkipIfStillRunning(cronLogger{s.log})),
	)
	if err := s.registerLocked(); err != nil {
		s.c = nil
		return err
	}
	s.c.Start()
	s.log.Info("service started", logx.String("spec", spec(s.cfg.Interval)), logx.String("tz", s.cfg.Location.String()))
	return nil
}

func (s *Service) registerLocked() error {
	id, err := s.c.AddFunc(spec(s.cfg.Interval), s.fire)
	if err != nil {
		return fmt.Errorf("scheduler: add tick: %w", err)
	}
	s.entryID = id
	return nil
}

// Apply swaps the interval (and timeout) on a running service. The
// location is fixed for the process lifetime.
func (s *Service) Apply(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg = normalize(cfg)
	cfg.Location = s.cfg.Location
	old := s.cfg.Interval
	s.cfg = cfg
	if s.c == nil || old == cfg.Interval {
		return nil
	}
	s.c.Remove(s.entryID)
	if err := s.registerLocked(); err != nil {
		return err
	}
	s.log.Info("tick interval changed", logx.Duration("from", old), logx.Duration("to", cfg.Interval))
	return nil
}

// Stop halts triggering and waits for a pass in progress, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("stop timed out with a pass still running")
	}
	s.log.Info("service stopped", logx.Uint64("passes", s.passes.Load()), logx.Uint64("ran", s.ran.Load()))
}

// Fire runs one pass immediately, outside the cron cadence.
func (s *Service) Fire() int { return s.pass() }

func (s *Service) fire() { s.pass() }

func (s *Service) pass() int {
	s.mu.Lock()
	ctx := s.ctx
	timeout := s.cfg.Timeout
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	n := s.t.Tick(ctx)
	s.passes.Add(1)
	s.ran.Add(uint64(n))
	if n > 0 {
		s.log.Debug("tick ran schedules", logx.Int("ran", n))
	}
	return n
}

// Stats reports total passes and executed schedules since start.
func (s *Service) Stats() (passes, ran uint64) { return s.passes.Load(), s.ran.Load() }

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(strings.ReplaceAll(k, " ", "_"), kv[i+1]))
	}
	return out
}
