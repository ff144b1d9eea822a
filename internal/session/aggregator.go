package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Douglas-Christian/rogue-garmin-bridge-sub000/internal/storage"
	"github.com/Douglas-Christian/rogue-garmin-bridge-sub000/internal/telemetry"
)

var (
	// ErrAlreadyActive is returned by Start while a session is active; the
	// caller must End it first, sessions are never auto-closed.
	ErrAlreadyActive = errors.New("session: a session is already active")
	// ErrNoActiveSession is returned by Ingest and End with nothing active.
	ErrNoActiveSession = errors.New("session: no active session")
	// ErrClosed is returned after the aggregator has been shut down.
	ErrClosed = errors.New("session: aggregator closed")
)

// Workout is one exercise bout. Samples are kept in arrival order, which is
// not necessarily time order.
type Workout struct {
	ID          uuid.UUID
	DeviceClass telemetry.DeviceClass
	StartTime   time.Time
	EndTime     time.Time
	Samples     []telemetry.Sample
}

// Aggregator owns the lifecycle of the single active workout. All state is
// confined to one goroutine; Start, Ingest and End hand off over a command
// channel so a BLE notification callback and session-control calls never
// race on shared memory. Snapshot reads are wait-free.
type Aggregator struct {
	store   storage.Store
	logger  *zap.Logger
	profile AthleteProfile
	now     func() time.Time

	cmds    chan command
	persist chan persistJob
	quit    chan struct{}
	wg      sync.WaitGroup

	snap atomic.Pointer[SummaryStats]
}

type persistJob func(ctx context.Context) error

type command interface{ isCommand() }

type startCmd struct {
	class telemetry.DeviceClass
	reply chan startReply
}

type startReply struct {
	id  uuid.UUID
	err error
}

type ingestCmd struct {
	sample telemetry.Sample
	reply  chan error
}

type endCmd struct {
	reply chan endReply
}

type endReply struct {
	workout *Workout
	stats   *SummaryStats
	err     error
}

func (startCmd) isCommand()  {}
func (ingestCmd) isCommand() {}
func (endCmd) isCommand()    {}

type Option func(*Aggregator)

func WithStore(store storage.Store) Option {
	return func(a *Aggregator) { a.store = store }
}

func WithLogger(logger *zap.Logger) Option {
	return func(a *Aggregator) { a.logger = logger }
}

func WithProfile(profile AthleteProfile) Option {
	return func(a *Aggregator) { a.profile = profile }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		store:   storage.NewMemoryStore(),
		logger:  zap.NewNop(),
		now:     time.Now,
		cmds:    make(chan command),
		persist: make(chan persistJob, 256),
		quit:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.wg.Add(2)
	go a.run()
	go a.persistLoop()
	return a
}

// Start opens a new session for the given device class.
func (a *Aggregator) Start(class telemetry.DeviceClass) (uuid.UUID, error) {
	reply := make(chan startReply, 1)
	select {
	case a.cmds <- startCmd{class: class, reply: reply}:
	case <-a.quit:
		return uuid.Nil, ErrClosed
	}
	select {
	case r := <-reply:
		return r.id, r.err
	case <-a.quit:
		return uuid.Nil, ErrClosed
	}
}

// Ingest folds one decoded sample into the active session. The monotonic
// timestamp is assigned here, at receipt. Samples are stored as reported;
// garbage data is never rejected.
func (a *Aggregator) Ingest(sample telemetry.Sample) error {
	reply := make(chan error, 1)
	select {
	case a.cmds <- ingestCmd{sample: sample, reply: reply}:
	case <-a.quit:
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-a.quit:
		return ErrClosed
	}
}

// End closes the active session and returns the frozen workout together
// with its finalized summary.
func (a *Aggregator) End() (*Workout, *SummaryStats, error) {
	reply := make(chan endReply, 1)
	select {
	case a.cmds <- endCmd{reply: reply}:
	case <-a.quit:
		return nil, nil, ErrClosed
	}
	select {
	case r := <-reply:
		return r.workout, r.stats, r.err
	case <-a.quit:
		return nil, nil, ErrClosed
	}
}

// Snapshot returns the current running summary while a session is active.
// It never blocks on a concurrent Ingest; the result may be momentarily
// stale but is always internally consistent.
func (a *Aggregator) Snapshot() (*SummaryStats, bool) {
	s := a.snap.Load()
	if s == nil {
		return nil, false
	}
	return s, true
}

// Close shuts the aggregator down. Any still-active session is abandoned
// without finalization.
func (a *Aggregator) Close() {
	close(a.quit)
	a.wg.Wait()
}

func (a *Aggregator) run() {
	defer a.wg.Done()

	var (
		active *Workout
		stats  *runningStats
	)

	for {
		select {
		case <-a.quit:
			if active != nil {
				a.logger.Warn("aggregator closed with active session",
					zap.String("session", active.ID.String()))
			}
			return
		case cmd := <-a.cmds:
			switch c := cmd.(type) {
			case startCmd:
				if active != nil {
					c.reply <- startReply{err: ErrAlreadyActive}
					continue
				}
				active = &Workout{
					ID:          uuid.New(),
					DeviceClass: c.class,
					StartTime:   a.now(),
				}
				stats = newRunningStats(c.class)
				a.snap.Store(stats.snapshot())
				a.logger.Info("session started",
					zap.String("session", active.ID.String()),
					zap.Stringer("device", c.class))
				c.reply <- startReply{id: active.ID}

			case ingestCmd:
				if active == nil {
					c.reply <- ErrNoActiveSession
					continue
				}
				sample := c.sample
				sample.MonotonicTime = a.now().Sub(active.StartTime).Seconds()
				if sample.MonotonicTime < stats.lastMonotonic {
					sample.MonotonicTime = stats.lastMonotonic
				}
				active.Samples = append(active.Samples, sample)
				if anomalies := stats.observe(sample); anomalies > 0 {
					a.logger.Warn("cumulative counter went backwards, stored as reported",
						zap.String("session", active.ID.String()),
						zap.Float64("monotonic_time", sample.MonotonicTime))
				}
				a.snap.Store(stats.snapshot())
				a.enqueuePersist(persistSampleJob(a.store, active.ID.String(), sample))
				c.reply <- nil

			case endCmd:
				if active == nil {
					c.reply <- endReply{err: ErrNoActiveSession}
					continue
				}
				active.EndTime = a.now()
				final := stats.finalize(active.EndTime.Sub(active.StartTime).Seconds(), a.profile)
				a.snap.Store(nil)
				a.enqueuePersist(finalizeJob(a.store, active, final))
				a.logger.Info("session ended",
					zap.String("session", active.ID.String()),
					zap.Float64("duration_s", final.Duration),
					zap.Int("samples", final.SampleCount))
				c.reply <- endReply{workout: active, stats: final}
				active = nil
				stats = nil
			}
		}
	}
}

// enqueuePersist hands a storage write to the persistence worker without
// ever blocking the ingest path. A full queue drops the write with a log.
func (a *Aggregator) enqueuePersist(job persistJob) {
	select {
	case a.persist <- job:
	default:
		a.logger.Warn("persist queue full, dropping write")
	}
}

func (a *Aggregator) persistLoop() {
	defer a.wg.Done()
	for {
		select {
		case <-a.quit:
			// Flush what is already queued before exiting; the finalize
			// write enqueued by End must survive a prompt Close.
			for {
				select {
				case job := <-a.persist:
					a.runPersist(job)
				default:
					return
				}
			}
		case job := <-a.persist:
			a.runPersist(job)
		}
	}
}

func (a *Aggregator) runPersist(job persistJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := job(ctx); err != nil {
		a.logger.Warn("storage write failed", zap.Error(err))
	}
}

func persistSampleJob(store storage.Store, sessionID string, sample telemetry.Sample) persistJob {
	fields := make(map[string]float64, len(sample.Fields))
	for k, v := range sample.Fields {
		fields[string(k)] = v
	}
	t := sample.MonotonicTime
	return func(ctx context.Context) error {
		return store.PersistSample(ctx, sessionID, t, fields)
	}
}

func finalizeJob(store storage.Store, w *Workout, stats *SummaryStats) persistJob {
	id := w.ID.String()
	start, end := w.StartTime, w.EndTime
	summary := stats.AsMap()
	return func(ctx context.Context) error {
		return store.FinalizeSession(ctx, id, start, end, stats.Duration, summary)
	}
}
