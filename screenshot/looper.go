package screenshot

import (
	"sync"
)

type task struct {
	run    func()
	cancel func()
}

// Looper runs posted tasks one at a time on a single goroutine. It is the
// owning context of a session: controller state only changes inside tasks.
// Closing it tears the owning context down; later posts are refused and
// queued tasks are cancelled instead of run.
type Looper struct {
	mu    sync.Mutex
	tasks []task

	wake chan struct{}
	done chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewLooper() *Looper {
	l := &Looper{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	l.wg.Add(1)
	go l.loop()
	return l
}

// Post queues fn. It never blocks and reports false when the looper is closed.
func (l *Looper) Post(fn func()) bool {
	return l.PostOrCancel(fn, nil)
}

// PostOrCancel queues fn. If the looper closes before fn runs, cancel is
// called instead, exactly once. cancel may be nil.
func (l *Looper) PostOrCancel(fn, cancel func()) bool {
	if l == nil || fn == nil {
		return false
	}

	l.mu.Lock()
	select {
	case <-l.done:
		l.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return false
	default:
	}
	l.tasks = append(l.tasks, task{run: fn, cancel: cancel})
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Done is closed once Close has been called.
func (l *Looper) Done() <-chan struct{} {
	return l.done
}

// Close stops the looper, waits for the running task and cancels queued ones.
// It must not be called from a task.
func (l *Looper) Close() {
	if l == nil {
		return
	}
	l.closeOnce.Do(func() {
		l.mu.Lock()
		close(l.done)
		l.mu.Unlock()
		l.wg.Wait()

		l.mu.Lock()
		pending := l.tasks
		l.tasks = nil
		l.mu.Unlock()
		for _, t := range pending {
			if t.cancel != nil {
				t.cancel()
			}
		}
	})
}

func (l *Looper) next() (task, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.done:
		return task{}, false
	default:
	}
	if len(l.tasks) == 0 {
		return task{}, false
	}
	t := l.tasks[0]
	l.tasks[0] = task{}
	l.tasks = l.tasks[1:]
	return t, true
}

func (l *Looper) loop() {
	defer l.wg.Done()

	for {
		for {
			t, ok := l.next()
			if !ok {
				break
			}
			t.run()
		}

		select {
		case <-l.done:
			return
		case <-l.wake:
		}
	}
}
