package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/dyneval/internal/ir"
)

// session is one evaluation of one record's own dynamic fields. Nested
// entries and the placeholder get sessions of their own.
type session struct {
	ev        *Evaluator
	id        string
	logger    *slog.Logger
	record    *ir.Record
	cell      *stateCell
	receivers []*receiver

	initialized atomic.Bool
	disposed    atomic.Bool
}

func (e *Evaluator) newSession(ctx context.Context, rec *ir.Record) *session {
	fields := dynamicFields(rec)
	id := SessionIDFromContext(ctx)
	s := &session{
		ev:     e,
		id:     id,
		logger: e.logger.With("session_id", id),
		record: rec,
		cell:   newStateCell(newEvalState(rec, len(fields))),
	}
	s.receivers = make([]*receiver, len(fields))
	for i, f := range fields {
		s.receivers[i] = &receiver{index: i, field: f, session: s}
	}
	return s
}

// init binds every receiver, then starts them all on the affinity looper.
// On failure every receiver is closed before the error is returned.
// Calling init twice is a programming error and panics.
func (s *session) init() error {
	if !s.initialized.CompareAndSwap(false, true) {
		panic("engine: session initialized twice")
	}
	if len(s.receivers) == 0 {
		return nil
	}

	binder, err := s.ev.factory(s.ev.binderConfig)
	if err != nil {
		return s.fail(&EvalError{
			Code:    ErrCodeInitFailed,
			Message: "failed to create binder",
			Err:     err,
		})
	}
	if binder == nil {
		return s.fail(&EvalError{
			Code:    ErrCodeInitFailed,
			Message: "binder factory returned nil",
		})
	}

	for _, r := range s.receivers {
		if err := r.bind(binder, s.record); err != nil {
			return s.fail(&EvalError{
				Code:    ErrCodeBindFailed,
				Message: "failed to bind dynamic field",
				Field:   r.field.String(),
				Err:     err,
			})
		}
	}

	err = s.ev.affinity.Invoke(func() {
		for _, r := range s.receivers {
			r.start()
		}
	})
	if err != nil {
		return s.fail(&EvalError{
			Code:    ErrCodeInitFailed,
			Message: "failed to start receivers",
			Err:     err,
		})
	}
	s.logger.Debug("session started", "receivers", len(s.receivers))
	return nil
}

func (s *session) fail(err *EvalError) error {
	err.SessionID = s.id
	s.ev.metrics.InitFailed()
	s.logger.Warn("session init failed", "code", err.Code, "error", err)
	s.dispose()
	return err
}

// observe emits the output of each new snapshot until ctx is done.
func (s *session) observe(ctx context.Context, emit func(*ir.Record)) error {
	var seen uint64
	first := true
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		snap := s.cell.load()
		if first || snap.version != seen {
			first = false
			seen = snap.version
			if out := snap.output(); out != nil {
				emit(out)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.cell.changed:
		}
	}
}

// dispose closes every receiver on the affinity looper. Idempotent.
func (s *session) dispose() {
	if s.disposed.Swap(true) {
		return
	}
	if len(s.receivers) == 0 {
		return
	}
	closeAll := func() {
		for _, r := range s.receivers {
			r.close()
		}
	}
	if err := s.ev.affinity.Invoke(closeAll); err != nil {
		if errors.Is(err, ErrLooperClosed) {
			s.logger.Warn("affinity looper closed, releasing receivers inline")
		}
		closeAll()
	}
	s.logger.Debug("session disposed")
}
