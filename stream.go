package toolbridge

import (
	"context"
	"io"
)

// fragmentStream adapts a producer goroutine to the FragmentStream pull
// interface. The producer writes via emit, which respects cancellation so
// a closed stream never strands the goroutine.
type fragmentStream struct {
	fragments chan Fragment
	errc      chan error
	cancel    context.CancelFunc
	err       error
	drained   bool
}

// newFragmentStream runs produce in a goroutine and returns the stream
// fed by it. produce must send fragments only through the provided emit
// function; its error, if any, is surfaced by the Recv that hits the end.
func newFragmentStream(ctx context.Context, produce func(ctx context.Context, emit func(Fragment) error) error) FragmentStream {
	ctx, cancel := context.WithCancel(ctx)
	s := &fragmentStream{
		fragments: make(chan Fragment, 16),
		errc:      make(chan error, 1),
		cancel:    cancel,
	}
	emit := func(f Fragment) error {
		select {
		case s.fragments <- f:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	go func() {
		err := produce(ctx, emit)
		s.errc <- err
		close(s.fragments)
	}()
	return s
}

// Recv returns the next fragment, io.EOF after a clean end, or the
// producer's error. Single consumer only.
func (s *fragmentStream) Recv() (Fragment, error) {
	f, ok := <-s.fragments
	if ok {
		return f, nil
	}
	if !s.drained {
		s.drained = true
		s.err = <-s.errc
	}
	if s.err != nil {
		return Fragment{}, s.err
	}
	return Fragment{}, io.EOF
}

// Close cancels the producer. Safe to call more than once.
func (s *fragmentStream) Close() error {
	s.cancel()
	return nil
}
