package screencast

import (
	"context"
	"fmt"
	"sync"

	"go2tv.app/screenshot/capture"
)

// LocalBroker grants tokens for the direct display backend. The permission
// state comes from ProbeScreenCapture; a prompt state is resolved by Prompt.
type LocalBroker struct {
	// Lookup overrides environment lookups. Defaults to os.LookupEnv.
	Lookup LookupEnvFunc
	// Prompt asks the user. A nil Prompt grants.
	Prompt func(ctx context.Context) (bool, error)

	mu      sync.Mutex
	granted bool
	// issued is the number of tokens handed out, for logging only.
	issued int
}

func (b *LocalBroker) CreateToken() capture.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.granted && ProbeScreenCapture(b.Lookup).Status != StatusGranted {
		return nil
	}
	b.granted = true
	b.issued++
	debug.Printf("broker=local token_issued count=%d", b.issued)
	return capture.NewToken()
}

func (b *LocalBroker) AcquireToken(ctx context.Context, l Listener) {
	probe := ProbeScreenCapture(b.Lookup)
	debug.Printf("broker=local acquire status=%s", probe.Status)

	switch probe.Status {
	case StatusGranted, StatusUnknown:
		b.grant()
		go l.OnGranted()
	case StatusPromptRequired:
		go b.prompt(ctx, l)
	case StatusUnavailable:
		go l.OnDenied(fmt.Errorf("%w: %s", ErrUnavailable, probe.Message))
	default:
		go l.OnDenied(fmt.Errorf("%w: %s", ErrDenied, probe.Message))
	}
}

func (b *LocalBroker) prompt(ctx context.Context, l Listener) {
	ok := true
	if b.Prompt != nil {
		var err error
		ok, err = b.Prompt(ctx)
		if err != nil {
			l.OnDenied(err)
			return
		}
	}
	if !ok {
		l.OnDenied(ErrDenied)
		return
	}
	b.grant()
	l.OnGranted()
}

func (b *LocalBroker) grant() {
	b.mu.Lock()
	b.granted = true
	b.mu.Unlock()
}

// Forget drops a grant obtained through a prompt.
func (b *LocalBroker) Forget() {
	b.mu.Lock()
	b.granted = false
	b.mu.Unlock()
}
