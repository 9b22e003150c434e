package toolbridge

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFragmentStream_OrderAndEOF(t *testing.T) {
	fs := newFragmentStream(context.Background(), func(ctx context.Context, emit func(Fragment) error) error {
		for _, text := range []string{"a", "b", "c"} {
			if err := emit(Fragment{Content: text}); err != nil {
				return err
			}
		}
		return nil
	})
	defer fs.Close()

	var got []string
	for {
		frag, err := fs.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, frag.Content)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)

	// EOF is sticky.
	_, err := fs.Recv()
	assert.Equal(t, io.EOF, err)
}

func TestFragmentStream_ProducerError(t *testing.T) {
	boom := errors.New("boom")
	fs := newFragmentStream(context.Background(), func(ctx context.Context, emit func(Fragment) error) error {
		if err := emit(Fragment{Content: "partial"}); err != nil {
			return err
		}
		return boom
	})
	defer fs.Close()

	frag, err := fs.Recv()
	require.NoError(t, err)
	assert.Equal(t, "partial", frag.Content)

	_, err = fs.Recv()
	assert.ErrorIs(t, err, boom)
	// The error is sticky too.
	_, err = fs.Recv()
	assert.ErrorIs(t, err, boom)
}

func TestFragmentStream_CloseUnblocksProducer(t *testing.T) {
	started := make(chan struct{})
	fs := newFragmentStream(context.Background(), func(ctx context.Context, emit func(Fragment) error) error {
		close(started)
		// Emit far more than the buffer holds; without a reader this
		// blocks until Close cancels the context.
		for i := 0; i < 1000; i++ {
			if err := emit(Fragment{Content: "x"}); err != nil {
				return err
			}
		}
		return nil
	})
	<-started
	require.NoError(t, fs.Close())

	for {
		_, err := fs.Recv()
		if err == nil {
			continue
		}
		if err != io.EOF {
			assert.ErrorIs(t, err, context.Canceled)
		}
		return
	}
}

func TestFragmentStream_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fs := newFragmentStream(ctx, func(ctx context.Context, emit func(Fragment) error) error {
		return emit(Fragment{Content: "never delivered"})
	})
	defer fs.Close()

	for {
		_, err := fs.Recv()
		if err == nil {
			continue
		}
		if err != io.EOF {
			assert.ErrorIs(t, err, context.Canceled)
		}
		return
	}
}
