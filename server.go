// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spi

import (
	"errors"

	"go.uber.org/zap"
)

// DefaultLoopCapacity is the handle table size of a ServerLoop: the port and
// one client session.
const DefaultLoopCapacity = 2

type loopState uint8

const (
	stateWaiting loopState = iota
	stateDispatching
	stateAccepting
	stateDraining
	stateShuttingDown
)

func (s loopState) String() string {
	switch s {
	case stateWaiting:
		return "waiting"
	case stateDispatching:
		return "dispatching"
	case stateAccepting:
		return "accepting"
	case stateDraining:
		return "draining"
	case stateShuttingDown:
		return "shutting-down"
	}
	return "unknown"
}

// LoopOption configures a ServerLoop.
type LoopOption func(*ServerLoop)

// WithCapacity sets the handle table size, port included.
func WithCapacity(n int) LoopOption {
	return func(l *ServerLoop) { l.capacity = n }
}

// WithMaxSessions sets the session limit passed when registering the name.
func WithMaxSessions(n int) LoopOption {
	return func(l *ServerLoop) { l.maxSessions = n }
}

// WithLogger sets the loop's logger.
func WithLogger(logger *zap.Logger) LoopOption {
	return func(l *ServerLoop) { l.logger = logger }
}

// ServerLoop serves one published name on one thread. It owns a SessionSet
// and a command buffer, alternating between the kernel's combined
// reply-and-receive wait and dispatching requests.
//
// A loop stops once the shutdown flag is set and every client session has
// gone away. Kernel failures and bookkeeping mismatches abort it.
type ServerLoop struct {
	name        string
	k           SessionKernel
	d           *Dispatcher
	flag        *ShutdownFlag
	capacity    int
	maxSessions int
	logger      *zap.Logger
	buf         CommandBuffer
}

// NewServerLoop returns a loop serving name on k.
func NewServerLoop(name string, k SessionKernel, d *Dispatcher, flag *ShutdownFlag, opts ...LoopOption) *ServerLoop {
	l := &ServerLoop{
		name:        name,
		k:           k,
		d:           d,
		flag:        flag,
		capacity:    DefaultLoopCapacity,
		maxSessions: 1,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	l.logger = l.logger.With(zap.String("endpoint", name))
	return l
}

// Name returns the published name.
func (l *ServerLoop) Name() string { return l.name }

// Run registers the name and serves it until shutdown. It returns nil after
// an orderly shutdown and a *FatalError otherwise.
func (l *ServerLoop) Run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			fe, ok := r.(*FatalError)
			if !ok {
				panic(r)
			}
			err = fe
		}
		if err != nil {
			l.logger.Error("server loop aborted", zap.Error(err))
		}
	}()

	port, err := l.k.RegisterService(l.name, l.maxSessions)
	if err != nil {
		return &FatalError{Op: "register service", Err: err}
	}
	l.logger.Info("service registered", zap.Uint32("port", uint32(port)))
	set := NewSessionSet(port, l.capacity)

	index := -1
	state := stateWaiting
	for state != stateShuttingDown {
		switch state {
		case stateWaiting:
			state, index = l.wait(set)

		case stateAccepting:
			l.accept(set)
			state = stateWaiting

		case stateDispatching:
			l.d.Handle(&l.buf)
			set.SetTarget(index)
			state = stateWaiting

		case stateDraining:
			h, rerr := set.Remove(index)
			if rerr != nil {
				fatal("drain", rerr)
			}
			_ = l.k.CloseHandle(h)
			l.logger.Debug("session closed by peer",
				zap.Uint32("session", uint32(h)),
				zap.Int("clients", set.Clients()))
			state = stateWaiting
		}
	}

	if err := l.k.UnregisterService(l.name); err != nil {
		return &FatalError{Op: "unregister service", Err: err}
	}
	_ = l.k.CloseHandle(port)
	l.logger.Info("service stopped")
	return nil
}

// wait blocks in the kernel and classifies what woke it.
func (l *ServerLoop) wait(set *SessionSet) (loopState, int) {
	target, last := set.Target()
	if target == 0 {
		if l.flag.IsSet() && set.Idle() {
			return stateShuttingDown, -1
		}
		l.buf.Words[0] = idleHeader
	}

	index, err := l.k.ReplyAndReceive(set.Handles(), target, &l.buf)
	set.ClearTarget()

	if err != nil {
		if !errors.Is(err, ResultSessionClosed) {
			fatal("reply and receive", err)
		}
		switch {
		case index == -1:
			if last == -1 {
				fatal("reply target closed", ResultCanceledRange)
			}
			index = last
		case index <= 0 || index >= set.Len():
			fatal("closed session index", ResultCanceledRange)
		}
		return stateDraining, index
	}

	switch {
	case index == 0:
		return stateAccepting, 0
	case index > 0 && index < set.Len():
		return stateDispatching, index
	}
	fatal("signalled index", ResultInternalRange)
	return stateShuttingDown, -1
}

func (l *ServerLoop) accept(set *SessionSet) {
	h, err := l.k.AcceptSession(set.Port())
	if err != nil {
		fatal("accept session", err)
	}
	if !set.Accept(h) {
		_ = l.k.CloseHandle(h)
		l.logger.Debug("session rejected, table full", zap.Uint32("session", uint32(h)))
		return
	}
	l.logger.Debug("session accepted",
		zap.Uint32("session", uint32(h)),
		zap.Int("clients", set.Clients()))
}
