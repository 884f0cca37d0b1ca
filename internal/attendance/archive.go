package attendance

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	archiveQueueSize = 256
	archiveTimeout   = 10 * time.Second
)

// Archive mirrors session events to external storage, e.g. a database.
// The session CSV files stay authoritative; archive failures are only logged.
type Archive interface {
	StartSession(ctx context.Context, s Session) error
	RecordAttendance(ctx context.Context, sessionID string, rec Record) error
	EndSession(ctx context.Context, sessionID string, end time.Time) error
}

type archiveOp struct {
	name string
	run  func(ctx context.Context) error
}

// archiver applies archive operations in order on a background goroutine,
// keeping database round trips off the recognition path.
type archiver struct {
	archive Archive
	queue   chan archiveOp
	done    chan struct{}

	mu     sync.Mutex
	closed bool
}

func newArchiver(a Archive) *archiver {
	ar := &archiver{
		archive: a,
		queue:   make(chan archiveOp, archiveQueueSize),
		done:    make(chan struct{}),
	}
	go ar.run()
	return ar
}

func (a *archiver) run() {
	defer close(a.done)
	for op := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		if err := op.run(ctx); err != nil {
			log.Printf("WARNING: attendance archive %s failed: %v", op.name, err)
		}
		cancel()
	}
}

func (a *archiver) enqueue(op archiveOp) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		log.Printf("WARNING: attendance archive closed, dropping %s", op.name)
		return
	}
	select {
	case a.queue <- op:
	default:
		log.Printf("WARNING: attendance archive queue full, dropping %s", op.name)
	}
}

func (a *archiver) startSession(s Session) {
	a.enqueue(archiveOp{name: "start session", run: func(ctx context.Context) error {
		return a.archive.StartSession(ctx, s)
	}})
}

func (a *archiver) recordAttendance(sessionID string, rec Record) {
	a.enqueue(archiveOp{name: "record " + rec.Name, run: func(ctx context.Context) error {
		return a.archive.RecordAttendance(ctx, sessionID, rec)
	}})
}

func (a *archiver) endSession(sessionID string, end time.Time) {
	a.enqueue(archiveOp{name: "end session", run: func(ctx context.Context) error {
		return a.archive.EndSession(ctx, sessionID, end)
	}})
}

// close waits for queued operations to finish.
func (a *archiver) close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
}
