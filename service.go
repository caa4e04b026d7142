// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spi

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Service is the process entry: it owns the arbiter, the bus groups and one
// ServerLoop thread per configured name.
type Service struct {
	k      Kernel
	cfg    Config
	arb    *ArbiterClient
	buses  *BusSet
	disp   *Dispatcher
	flag   ShutdownFlag
	logger *zap.Logger
}

// NewService validates cfg and wires the service over k and hw.
func NewService(k Kernel, hw Hardware, cfg Config, logger *zap.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	arb := NewArbiterClient(k)
	buses := NewBusSet(arb, hw)
	return &Service{
		k:      k,
		cfg:    cfg,
		arb:    arb,
		buses:  buses,
		disp:   NewDispatcher(buses, logger.Named("dispatch")),
		logger: logger,
	}, nil
}

// Buses returns the bus groups.
func (s *Service) Buses() *BusSet { return s.buses }

// ShuttingDown reports whether termination was requested.
func (s *Service) ShuttingDown() bool { return s.flag.IsSet() }

// Run starts every loop and blocks until termination. Termination is the
// kernel's terminate notification or ctx being cancelled; loops then finish
// once their clients disconnect. A loop failing aborts Run with that loop's
// error; the others are told to stop but not waited for.
func (s *Service) Run(ctx context.Context) error {
	if err := s.arb.Init(); err != nil {
		return &FatalError{Op: "arbiter init", Err: err}
	}
	defer s.arb.Teardown()

	s.buses.LoadModes()

	notif, err := s.k.EnableNotification()
	if err != nil {
		return &FatalError{Op: "enable notification", Err: err}
	}
	defer s.k.CloseHandle(notif)

	g, gctx := errgroup.WithContext(context.Background())
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(gctx, cancel)
	defer stop()

	for _, ep := range s.cfg.Endpoints {
		loop := NewServerLoop(ep.Name, s.k, s.disp, &s.flag,
			WithCapacity(s.cfg.Capacity),
			WithMaxSessions(s.cfg.MaxSessions),
			WithLogger(s.logger.Named("loop")))
		th, err := s.k.CreateThread(loop.Run, ep.Priority, ep.Processor)
		if err != nil {
			s.flag.Set()
			s.nudge()
			return &FatalError{Op: "create thread " + ep.Name, Err: err}
		}
		s.logger.Info("loop started",
			zap.String("endpoint", ep.Name),
			zap.Int("priority", ep.Priority),
			zap.Int("processor", ep.Processor))
		g.Go(func() error {
			defer s.k.CloseHandle(th)
			return s.k.WaitThread(th)
		})
	}

	err = s.awaitTermination(waitCtx, notif)
	if gctx.Err() != nil {
		s.flag.Set()
		s.nudge()
		return context.Cause(gctx)
	}
	if err != nil && ctx.Err() == nil {
		return &FatalError{Op: "receive notification", Err: err}
	}

	s.flag.Set()
	s.logger.Info("terminating", zap.Int("loops", len(s.cfg.Endpoints)))
	s.nudge()
	if err := g.Wait(); err != nil {
		return err
	}
	s.logger.Info("all loops stopped")
	return nil
}

func (s *Service) awaitTermination(ctx context.Context, notif Handle) error {
	for !s.flag.IsSet() {
		id, err := s.k.ReceiveNotification(ctx, notif)
		if err != nil {
			return err
		}
		s.logger.Debug("notification", zap.Uint32("id", id))
		if id == NotificationTerminate {
			s.flag.Set()
		}
	}
	return nil
}

// nudge opens and drops one session per name so loops parked with no
// clients wake and observe the shutdown flag. A loop that has not
// registered yet sees the flag on its first check.
func (s *Service) nudge() {
	for _, ep := range s.cfg.Endpoints {
		h, err := s.k.ConnectToService(ep.Name)
		if err != nil {
			if !errors.Is(err, ResultNotFound) {
				s.logger.Warn("nudge failed", zap.String("endpoint", ep.Name), zap.Error(err))
			}
			continue
		}
		_ = s.k.CloseHandle(h)
	}
}
