package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/berfenger/sensorhub/internal/core/domain"
	"github.com/berfenger/sensorhub/internal/core/port"
	"github.com/berfenger/sensorhub/internal/core/registry"

	"go.uber.org/zap"
)

const (
	DefaultQueueCapacity    = 15
	DefaultAdmissionTimeout = 10 * time.Millisecond
)

type WorkerState int32

const (
	WorkerIdle WorkerState = iota
	WorkerDequeued
	WorkerDispatching
)

func (s WorkerState) String() string {
	switch s {
	case WorkerDequeued:
		return "dequeued"
	case WorkerDispatching:
		return "dispatching"
	default:
		return "idle"
	}
}

// ReceiverRegistry is the registry of signal receivers.
type ReceiverRegistry = registry.Registry[port.SignalReceiver]

func NewReceiverRegistry(logger *zap.Logger) *ReceiverRegistry {
	r := registry.NewRegistry[port.SignalReceiver]("receiver",
		func(d port.SignalReceiver) string { return d.Description().Name },
		func(d port.SignalReceiver) any { return newReceiverView(d.Description()) },
		logger)
	r.SetValidator(ValidateSignals)
	return r
}

type receiverView struct {
	domain.DeviceDescription
	Signals map[string]uint32 `json:"signals"`
}

func newReceiverView(desc domain.DeviceDescription) receiverView {
	desc = desc.Copy()
	return receiverView{DeviceDescription: desc, Signals: desc.Signals}
}

// ValidateSignals checks every signal name a receiver declares.
func ValidateSignals(d port.SignalReceiver) error {
	desc := d.Description()
	for name := range desc.Signals {
		if !domain.ValidSignalName(name) {
			return fmt.Errorf("%q: %w", name, domain.ErrInvalidSignalName)
		}
	}
	return nil
}

// SignalDispatcher routes signals to receivers, either synchronously or through a
// bounded queue drained by a single worker goroutine.
type SignalDispatcher struct {
	receivers        *ReceiverRegistry
	queue            chan domain.QueuedSignal
	admissionTimeout time.Duration
	state            atomic.Int32
	// gate orders admissions against stopping: senders hold it shared, the
	// stopped flag only flips under the exclusive lock.
	gate     sync.RWMutex
	stopped  bool
	stopOnce sync.Once
	done     chan struct{}
	cancel   context.CancelFunc
	logger   *zap.Logger
}

func NewSignalDispatcher(receivers *ReceiverRegistry, capacity int, admissionTimeout time.Duration, logger *zap.Logger) *SignalDispatcher {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	if admissionTimeout < 0 {
		admissionTimeout = DefaultAdmissionTimeout
	}
	return &SignalDispatcher{
		receivers:        receivers,
		queue:            make(chan domain.QueuedSignal, capacity),
		admissionTimeout: admissionTimeout,
		done:             make(chan struct{}),
		logger:           logger.With(zap.String("component", "dispatcher")),
	}
}

// ResolveSignalID looks a signal name up in the receiver's description.
func (d *SignalDispatcher) ResolveSignalID(id domain.PositionID, name string) (uint32, error) {
	r, err := d.receivers.Get(id)
	if err != nil {
		return 0, err
	}
	signal, ok := r.Description().Signals[name]
	if !ok {
		return 0, fmt.Errorf("receiver %d signal %q: %w", id, name, domain.ErrUnknownSignal)
	}
	return signal, nil
}

// Enqueue admits a signal to the queue, waiting up to the admission timeout for room.
// The signal id is not checked here; an unknown id surfaces when the worker dispatches it.
func (d *SignalDispatcher) Enqueue(id domain.PositionID, signal uint32, payload string) error {
	if _, err := d.receivers.Get(id); err != nil {
		return err
	}
	d.gate.RLock()
	defer d.gate.RUnlock()
	if d.stopped {
		return domain.ErrDispatcherStopped
	}
	item := domain.QueuedSignal{PositionID: id, SignalID: signal, Payload: payload}
	select {
	case d.queue <- item:
		d.logger.Debug("dispatcher@enqueue", zap.Int("position", int(id)), zap.Uint32("signal", signal))
		return nil
	default:
	}
	if d.admissionTimeout == 0 {
		return domain.ErrQueueFull
	}
	timer := time.NewTimer(d.admissionTimeout)
	defer timer.Stop()
	select {
	case d.queue <- item:
		d.logger.Debug("dispatcher@enqueue", zap.Int("position", int(id)), zap.Uint32("signal", signal))
		return nil
	case <-timer.C:
		d.logger.Warn("dispatcher@enqueue queue full", zap.Int("position", int(id)), zap.Uint32("signal", signal))
		return domain.ErrQueueFull
	}
}

func (d *SignalDispatcher) EnqueueByName(id domain.PositionID, name string, payload string) error {
	signal, err := d.ResolveSignalID(id, name)
	if err != nil {
		return err
	}
	return d.Enqueue(id, signal, payload)
}

// DispatchImmediate delivers a signal synchronously on the caller's goroutine.
func (d *SignalDispatcher) DispatchImmediate(id domain.PositionID, signal uint32, payload string) (domain.Response, error) {
	r, err := d.receivers.Get(id)
	if err != nil {
		return domain.Response{}, err
	}
	resp, err := d.deliver(r, signal, payload)
	if err != nil {
		return domain.Response{}, &domain.DeviceError{
			PositionID: id,
			Name:       r.Description().Name,
			Err:        fmt.Errorf("%w: %w", domain.ErrDispatchFailed, err),
		}
	}
	return resp, nil
}

func (d *SignalDispatcher) DispatchImmediateByName(id domain.PositionID, name string, payload string) (domain.Response, error) {
	signal, err := d.ResolveSignalID(id, name)
	if err != nil {
		return domain.Response{}, err
	}
	return d.DispatchImmediate(id, signal, payload)
}

func (d *SignalDispatcher) deliver(r port.SignalReceiver, signal uint32, payload string) (resp domain.Response, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.ReceiveSignal(signal, payload)
}

// Start launches the worker. It runs until ctx is cancelled or Stop is called.
func (d *SignalDispatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	go d.work(ctx)
}

// Stop refuses new signals, lets the worker drain what was already admitted and
// waits for it to exit.
func (d *SignalDispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.fence()
		if d.cancel != nil {
			d.cancel()
			<-d.done
		}
	})
}

// fence refuses further signals. Once it returns no sender is still between the
// stopped check and the queue.
func (d *SignalDispatcher) fence() {
	d.gate.Lock()
	d.stopped = true
	d.gate.Unlock()
}

func (d *SignalDispatcher) State() WorkerState {
	return WorkerState(d.state.Load())
}

// Len returns the number of signals waiting in the queue.
func (d *SignalDispatcher) Len() int {
	return len(d.queue)
}

func (d *SignalDispatcher) Capacity() int {
	return cap(d.queue)
}

func (d *SignalDispatcher) work(ctx context.Context) {
	defer close(d.done)
	d.logger.Info("dispatcher@worker started")
	for {
		select {
		case item := <-d.queue:
			d.process(item)
		case <-ctx.Done():
			d.fence()
			d.drain()
			d.logger.Info("dispatcher@worker stopped")
			return
		}
	}
}

func (d *SignalDispatcher) drain() {
	for {
		select {
		case item := <-d.queue:
			d.process(item)
		default:
			return
		}
	}
}

func (d *SignalDispatcher) process(item domain.QueuedSignal) {
	d.state.Store(int32(WorkerDequeued))
	defer d.state.Store(int32(WorkerIdle))
	r, err := d.receivers.Get(item.PositionID)
	if err != nil {
		d.logger.Error("dispatcher@worker dropped signal", zap.Int("position", int(item.PositionID)), zap.Error(err))
		return
	}
	d.state.Store(int32(WorkerDispatching))
	if _, err := d.deliver(r, item.SignalID, item.Payload); err != nil {
		d.logger.Error("dispatcher@worker signal failed",
			zap.Int("position", int(item.PositionID)),
			zap.String("name", r.Description().Name),
			zap.Uint32("signal", item.SignalID),
			zap.Error(err))
	}
}
