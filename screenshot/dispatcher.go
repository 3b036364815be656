package screenshot

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Dispatcher carries BeginWork and WorkFinished between the worker and the
// owning looper. Each kind is delivered at most once, WorkFinished only after
// BeginWork. The controller is resolved through the registry when a message
// is processed; a missing controller or a closed looper drops the message.
type Dispatcher struct {
	id       uuid.UUID
	looper   *Looper
	registry *Registry
	logf     func(format string, args ...any)

	began    atomic.Bool
	finished atomic.Bool
}

func NewDispatcher(id uuid.UUID, looper *Looper, registry *Registry, logf func(string, ...any)) *Dispatcher {
	return &Dispatcher{
		id:       id,
		looper:   looper,
		registry: registry,
		logf:     debug.Logf(logf),
	}
}

// BeginWork asks the owning looper to start a worker running job. If the
// work never starts, drop is called instead. It reports whether the message
// was accepted.
func (d *Dispatcher) BeginWork(job func() any, drop func()) bool {
	if !d.began.CompareAndSwap(false, true) {
		d.logf("session=%s begin_work duplicate", d.id)
		callIfSet(drop)
		return false
	}
	return d.looper.PostOrCancel(func() {
		c, ok := d.registry.Lookup(d.id)
		if !ok {
			d.logf("session=%s begin_work dropped reason=no_controller", d.id)
			callIfSet(drop)
			return
		}
		c.launchWorker(d, job, drop)
	}, func() {
		d.logf("session=%s begin_work dropped reason=looper_closed", d.id)
		callIfSet(drop)
	})
}

// WorkFinished hands payload to the controller on the owning looper.
func (d *Dispatcher) WorkFinished(payload any) bool {
	if !d.began.Load() {
		d.logf("session=%s work_finished before begin_work", d.id)
		return false
	}
	if !d.finished.CompareAndSwap(false, true) {
		d.logf("session=%s work_finished duplicate", d.id)
		return false
	}
	return d.looper.Post(func() {
		c, ok := d.registry.Lookup(d.id)
		if !ok {
			d.logf("session=%s work_finished dropped reason=no_controller", d.id)
			return
		}
		c.workFinished(payload)
	})
}

func callIfSet(fn func()) {
	if fn != nil {
		fn()
	}
}
