// Package watcher turns external context signals (active editing context
// changed, selected target changed) into cancellations of the affected
// unresolved sessions. Signals arrive on a message queue so producers stay
// decoupled from the pipeline.
package watcher

import (
	"context"
	"log"
	"time"

	"github.com/viant/overlay/service/approval"
	"github.com/viant/overlay/service/guard"
	"github.com/viant/overlay/service/messaging"
)

// Kind discriminates context signals.
type Kind string

const (
	// KindContextActivated reports that a different editing context became
	// the active one.
	KindContextActivated Kind = "context_activated"
	// KindTargetSelected reports that the externally selected target
	// changed within a context.
	KindTargetSelected Kind = "target_selected"
)

// Signal is one observed change of the editing environment.
type Signal struct {
	Kind       Kind   `json:"kind"`
	ContextID  string `json:"contextId"`
	TargetPath string `json:"targetPath,omitempty"`
}

// Service consumes signals and cancels sessions invalidated by them. It is
// inert for approved or already resolved sessions.
type Service struct {
	signals   messaging.Queue[Signal]
	approvals *approval.Service
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a watcher consuming from the given signal queue.
func New(approvals *approval.Service, signals messaging.Queue[Signal]) *Service {
	return &Service{approvals: approvals, signals: signals}
}

// Start launches the signal pump.
func (s *Service) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		for {
			msg, err := s.signals.Consume(ctx)
			if err != nil {
				return
			}
			if msg == nil {
				// non-blocking queues report empty with a nil message
				select {
				case <-ctx.Done():
					return
				case <-time.After(50 * time.Millisecond):
				}
				continue
			}
			s.handle(ctx, msg.T())
			if err := msg.Ack(); err != nil {
				log.Printf("watcher: failed to ack signal: %v", err)
			}
		}
	}()
}

// Stop terminates the signal pump and waits for it to drain.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Service) handle(ctx context.Context, signal *Signal) {
	switch signal.Kind {
	case KindContextActivated:
		sessions, err := s.approvals.Sessions(ctx)
		if err != nil {
			return
		}
		for _, sess := range sessions {
			if sess.ContextID == signal.ContextID || sess.UserApproved {
				continue
			}
			if err := s.approvals.CancelCurrent(ctx, sess.ContextID, guard.ReasonContextChange); err != nil {
				log.Printf("watcher: cancel for context %v failed: %v", sess.ContextID, err)
			}
		}
	case KindTargetSelected:
		current := s.approvals.Current(ctx, signal.ContextID)
		if current == nil || current.UserApproved {
			return
		}
		if current.TargetRef() == signal.TargetPath {
			return
		}
		if err := s.approvals.CancelCurrent(ctx, signal.ContextID, guard.ReasonContextChange); err != nil {
			log.Printf("watcher: cancel for context %v failed: %v", signal.ContextID, err)
		}
	}
}
