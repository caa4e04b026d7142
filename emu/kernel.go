// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package emu

import (
	"context"
	"sync"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/spi"
	"go.uber.org/zap"
)

// Option configures a Kernel.
type Option func(*Kernel)

// WithLogger sets the kernel's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(k *Kernel) { k.logger = logger }
}

// WithArbiterLimit caps the number of live address arbiters. A negative
// limit, the default, means unlimited.
func WithArbiterLimit(n int) Option {
	return func(k *Kernel) { k.arbiterLimit = n }
}

// WithAffinity toggles pinning threads created with a non-negative
// processor to that CPU. It is on by default.
func WithAffinity(on bool) Option {
	return func(k *Kernel) { k.affinity = on }
}

// Kernel is an in-process implementation of spi.Kernel. Sessions are
// lock-free SPSC queue pairs, threads are goroutines locked to an OS
// thread, and blocking calls poll with adaptive backoff.
type Kernel struct {
	handles handleCounter

	mu       sync.Mutex
	objects  map[spi.Handle]any
	services map[string]*port
	arbiters int
	notifies []*notifier

	arbiterLimit int
	affinity     bool
	logger       *zap.Logger
}

var _ spi.Kernel = (*Kernel)(nil)

// NewKernel returns an empty kernel.
func NewKernel(opts ...Option) *Kernel {
	k := &Kernel{
		objects:      make(map[spi.Handle]any),
		services:     make(map[string]*port),
		arbiterLimit: -1,
		affinity:     true,
	}
	for _, opt := range opts {
		opt(k)
	}
	if k.logger == nil {
		k.logger = zap.NewNop()
	}
	return k
}

func (k *Kernel) install(obj any) spi.Handle {
	h := k.handles.next()
	k.mu.Lock()
	k.objects[h] = obj
	k.mu.Unlock()
	return h
}

func (k *Kernel) lookup(h spi.Handle) (any, bool) {
	k.mu.Lock()
	obj, ok := k.objects[h]
	k.mu.Unlock()
	return obj, ok
}

// CloseHandle releases h. Closing one end of a session makes the peer
// observe spi.ResultSessionClosed; closing a port closes every session
// still waiting to be accepted.
func (k *Kernel) CloseHandle(h spi.Handle) error {
	k.mu.Lock()
	obj, ok := k.objects[h]
	if ok {
		delete(k.objects, h)
	}
	k.mu.Unlock()
	if !ok {
		return spi.ResultInvalidHandle
	}

	switch o := obj.(type) {
	case *Endpoint:
		o.close()
	case *port:
		o.close()
	case *arbiter:
		o.close()
		k.mu.Lock()
		k.arbiters--
		k.mu.Unlock()
	case *notifier:
		k.mu.Lock()
		for i, n := range k.notifies {
			if n == o {
				k.notifies = append(k.notifies[:i], k.notifies[i+1:]...)
				break
			}
		}
		k.mu.Unlock()
	}
	return nil
}

// Handles returns the number of open handles.
func (k *Kernel) Handles() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.objects)
}

// RegisterService publishes name and returns its port.
func (k *Kernel) RegisterService(name string, maxSessions int) (spi.Handle, error) {
	if name == "" {
		return 0, spi.ResultInvalidIPCParameter
	}
	p := &port{name: name, maxSessions: maxSessions}
	k.mu.Lock()
	if _, dup := k.services[name]; dup {
		k.mu.Unlock()
		return 0, spi.ResultAlreadyExists
	}
	k.services[name] = p
	k.mu.Unlock()
	h := k.install(p)
	k.logger.Debug("service registered", zap.String("name", name), zap.Uint32("port", uint32(h)))
	return h, nil
}

// UnregisterService withdraws name. The port stays valid until closed.
func (k *Kernel) UnregisterService(name string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.services[name]; !ok {
		return spi.ResultNotFound
	}
	delete(k.services, name)
	return nil
}

// Registered reports whether name is currently published.
func (k *Kernel) Registered(name string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.services[name]
	return ok
}

// ConnectToService opens a session to name and returns the client end.
// The server end waits on the port until accepted.
func (k *Kernel) ConnectToService(name string) (spi.Handle, error) {
	k.mu.Lock()
	p, ok := k.services[name]
	k.mu.Unlock()
	if !ok {
		return 0, spi.ResultNotFound
	}
	client, server := newSession()
	if !p.enqueue(server) {
		return 0, spi.ResultNotFound
	}
	return k.install(client), nil
}

// AcceptSession takes the oldest pending session on portHandle and returns
// its server end. It returns iox.ErrWouldBlock when none is pending.
func (k *Kernel) AcceptSession(portHandle spi.Handle) (spi.Handle, error) {
	obj, ok := k.lookup(portHandle)
	p, isPort := obj.(*port)
	if !ok || !isPort {
		return 0, spi.ResultInvalidHandle
	}
	server := p.dequeue()
	if server == nil {
		return 0, iox.ErrWouldBlock
	}
	return k.install(server), nil
}

// ReplyAndReceive sends buf as the reply on target, when non-zero, then
// waits until a port in handles has a pending connection or a session in
// handles has a request, which is copied into buf. The returned index
// names the signalled handle. A peer that closed is reported with
// spi.ResultSessionClosed at its index, or -1 when it was target.
func (k *Kernel) ReplyAndReceive(handles []spi.Handle, target spi.Handle, buf *spi.CommandBuffer) (int, error) {
	if target != 0 {
		ep, err := k.endpoint(target, true)
		if err != nil {
			return -1, err
		}
		var bo iox.Backoff
		for {
			err := ep.send(buf)
			if err == nil {
				break
			}
			if !iox.IsWouldBlock(err) {
				return -1, err
			}
			bo.Wait()
		}
	}

	objs := make([]any, len(handles))
	for i, h := range handles {
		obj, ok := k.lookup(h)
		if !ok {
			return i, spi.ResultInvalidHandle
		}
		switch o := obj.(type) {
		case *port:
		case *Endpoint:
			if !o.server {
				return i, spi.ResultInvalidHandle
			}
		default:
			return i, spi.ResultInvalidHandle
		}
		objs[i] = obj
	}

	var bo iox.Backoff
	for {
		for i, obj := range objs {
			switch o := obj.(type) {
			case *port:
				if o.pending() > 0 {
					return i, nil
				}
			case *Endpoint:
				err := o.tryRecv(buf)
				if err == nil {
					return i, nil
				}
				if !iox.IsWouldBlock(err) {
					return i, err
				}
			}
		}
		bo.Wait()
	}
}

// SendSyncRequest sends buf on the client session h and waits for the
// reply, which overwrites buf.
func (k *Kernel) SendSyncRequest(ctx context.Context, h spi.Handle, buf *spi.CommandBuffer) error {
	ep, err := k.endpoint(h, false)
	if err != nil {
		return err
	}
	var bo iox.Backoff
	for {
		err := ep.send(buf)
		if err == nil {
			break
		}
		if !iox.IsWouldBlock(err) {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		bo.Wait()
	}
	bo.Reset()
	for {
		err := ep.tryRecv(buf)
		if err == nil {
			return nil
		}
		if !iox.IsWouldBlock(err) {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		bo.Wait()
	}
}

func (k *Kernel) endpoint(h spi.Handle, server bool) (*Endpoint, error) {
	obj, ok := k.lookup(h)
	ep, isEp := obj.(*Endpoint)
	if !ok || !isEp || ep.server != server {
		return nil, spi.ResultInvalidHandle
	}
	return ep, nil
}

// port is a published name with its queue of sessions awaiting accept.
type port struct {
	name        string
	maxSessions int

	mu      sync.Mutex
	waiting []*Endpoint
	closed  bool
}

func (p *port) enqueue(server *Endpoint) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.waiting = append(p.waiting, server)
	return true
}

func (p *port) dequeue() *Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.waiting) == 0 {
		return nil
	}
	ep := p.waiting[0]
	p.waiting[0] = nil
	p.waiting = p.waiting[1:]
	return ep
}

func (p *port) pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiting)
}

func (p *port) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for _, ep := range p.waiting {
		ep.close()
	}
	p.waiting = nil
}
