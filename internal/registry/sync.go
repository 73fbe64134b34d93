package registry

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"

	"github.com/openmatchmaking/auth/internal/config"
	"github.com/openmatchmaking/auth/internal/storage"
)

// Job describes one group-synchronization unit of work produced by a
// registration: the permission ids retracted from the microservice and the
// permissions it newly declared.
type Job struct {
	Microservice string
	Removed      []bson.ObjectID
	Added        []storage.Permission

	done chan struct{}
}

// Synchronizer applies registration diffs to the group graph on a single
// background goroutine. It is deliberately detached from the
// request/response path: registration responds after the authoritative
// writes, and group membership converges afterwards.
//
// Failures are logged and swallowed; a job is never retried and never
// crashes the process. Jobs for the same microservice may interleave when
// registrations arrive in rapid succession, which the design accepts.
type Synchronizer struct {
	groups        storage.GroupStore
	defaultGroups []config.DefaultGroup
	logger        *zap.Logger
	timeout       time.Duration

	ch        chan Job
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu     sync.Mutex
	closed bool
}

// NewSynchronizer starts the worker goroutine. bufferSize bounds the queue
// of pending jobs; Enqueue blocks when it is full, providing backpressure
// to registrations.
func NewSynchronizer(groups storage.GroupStore, defaultGroups []config.DefaultGroup, logger *zap.Logger, bufferSize int) *Synchronizer {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Synchronizer{
		groups:        groups,
		defaultGroups: defaultGroups,
		logger:        logger,
		timeout:       30 * time.Second,
		ch:            make(chan Job, bufferSize),
		done:          make(chan struct{}),
	}

	s.wg.Add(1)
	go s.run()

	return s
}

func (s *Synchronizer) run() {
	defer s.wg.Done()

	for {
		select {
		case job := <-s.ch:
			s.apply(job)
		case <-s.done:
			for {
				select {
				case job := <-s.ch:
					s.apply(job)
				default:
					return
				}
			}
		}
	}
}

// Enqueue schedules a job and returns a channel that closes once the job
// has been applied (successfully or not). Transports discard the channel;
// tests use it instead of sleeping.
//
// The mutex is held across the send: a job either lands in the queue while
// the worker is still guaranteed to drain it, or is rejected with an
// already-closed channel. Without that ordering a send racing Close could
// strand the job in the buffer and its channel would never close.
func (s *Synchronizer) Enqueue(job Job) <-chan struct{} {
	job.done = make(chan struct{})

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		close(job.done)
		return job.done
	}
	s.ch <- job
	return job.done
}

// Close drains pending jobs and stops the worker.
func (s *Synchronizer) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
	})
	s.wg.Wait()
}

// apply retracts removed permissions from every group globally, then
// unions the matching subset of added permissions into each default group
// that carries a predicate.
func (s *Synchronizer) apply(job Job) {
	defer close(job.done)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if len(job.Removed) > 0 {
		if err := s.groups.PullPermissions(ctx, job.Removed); err != nil {
			s.logger.Error("group sync: retract removed permissions",
				zap.String("microservice", job.Microservice),
				zap.Int("removed", len(job.Removed)),
				zap.Error(err),
			)
		}
	}

	if len(job.Added) == 0 {
		return
	}

	for _, group := range s.defaultGroups {
		var matched []bson.ObjectID
		for _, perm := range job.Added {
			if group.Matches(perm.Codename) {
				matched = append(matched, perm.ID)
			}
		}
		if len(matched) == 0 {
			continue
		}
		if err := s.groups.AddPermissions(ctx, group.Name, matched); err != nil {
			s.logger.Error("group sync: grant added permissions",
				zap.String("microservice", job.Microservice),
				zap.String("group", group.Name),
				zap.Int("added", len(matched)),
				zap.Error(err),
			)
		}
	}
}
