package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phobos.org.uk/sajtmaskin/internal/logging"
	"phobos.org.uk/sajtmaskin/internal/stream"
	"phobos.org.uk/sajtmaskin/internal/streamstate"
	"phobos.org.uk/sajtmaskin/internal/testutil"
)

func newTestConsumer(t *testing.T) (*Consumer, *Hub, *Store) {
	t.Helper()
	log := logging.New(logging.Config{Output: io.Discard, Level: logging.LevelDebug, Component: "test"})
	hub := NewHub()
	return NewConsumer(hub, log, 0), hub, NewStore(8)
}

func TestConsume_GenerationStream(t *testing.T) {
	t.Parallel()

	consumer, hub, store := newTestConsumer(t)
	sess, err := store.Create(SourceIngest)
	require.NoError(t, err)
	events, unsub := hub.Subscribe(sess.ID, 32)
	defer unsub()

	body := testutil.GenerationStream(t)
	require.NoError(t, consumer.Consume(context.Background(), sess, strings.NewReader(body), ""))

	view := sess.View()
	assert.Equal(t, streamstate.Completed, view.State)
	assert.Equal(t, uint64(8), view.Seq)
	snap := view.Snapshot
	assert.Equal(t, "chat_test0001", snap.ChatID)
	assert.Equal(t, "Planning the layout", snap.Thinking)
	assert.Equal(t, "Hello world", snap.Content)
	assert.Equal(t, "ver_1", snap.VersionID)
	assert.Equal(t, "https://demo.v0.dev/ver_1", snap.DemoURL)
	require.Len(t, snap.Parts, 1)
	assert.Equal(t, "call_1", snap.Parts[0].ToolCallID)
	assert.Equal(t, "output-available", string(snap.Parts[0].State))
	require.Len(t, snap.Signals, 1)
	assert.Equal(t, "neon", snap.Signals[0].Provider)
	assert.True(t, snap.Done)

	require.Len(t, events, 9)
	var last Event
	for len(events) > 0 {
		last = <-events
	}
	assert.Equal(t, streamstate.Completed, last.State)
	require.NotNil(t, last.Snapshot)
	assert.Equal(t, "Hello world", last.Snapshot.Content)
}

func TestConsume_StopsAtDone(t *testing.T) {
	t.Parallel()

	consumer, _, store := newTestConsumer(t)
	sess, _ := store.Create(SourceIngest)

	body := "data: {\"delta\":\"a\"}\n\ndata: [DONE]\n\ndata: {\"delta\":\"ignored\"}\n\n"
	require.NoError(t, consumer.Consume(context.Background(), sess, strings.NewReader(body), "message.delta"))

	view := sess.View()
	assert.Equal(t, streamstate.Completed, view.State)
	assert.Equal(t, "a", view.Snapshot.Content)
	assert.Equal(t, 2, view.Snapshot.Chunks)
}

func TestConsume_DefaultEventName(t *testing.T) {
	t.Parallel()

	consumer, _, store := newTestConsumer(t)
	sess, _ := store.Create(SourceIngest)

	body := "{\"id\":\"chat_plain01\"}\n"
	require.NoError(t, consumer.Consume(context.Background(), sess, strings.NewReader(body), "chat.created"))
	assert.Equal(t, "chat_plain01", sess.View().Snapshot.ChatID)
}

func TestConsume_ReadErrorFails(t *testing.T) {
	t.Parallel()

	consumer, _, store := newTestConsumer(t)
	sess, _ := store.Create(SourceIngest)

	r := io.MultiReader(strings.NewReader("data: {\"delta\":\"x\"}\n\n"), &errReader{err: errors.New("connection reset")})
	err := consumer.Consume(context.Background(), sess, r, "")
	require.Error(t, err)

	view := sess.View()
	assert.Equal(t, streamstate.Failed, view.State)
	assert.Contains(t, view.Error, "connection reset")
	assert.Equal(t, "x", view.Snapshot.Content)
}

func TestConsume_Cancelled(t *testing.T) {
	t.Parallel()

	consumer, _, store := newTestConsumer(t)
	sess, _ := store.Create(SourceIngest)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := consumer.Consume(ctx, sess, strings.NewReader("data: {}\n\n"), "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, streamstate.Cancelled, sess.State())
}

func TestConsume_CancelMidStream(t *testing.T) {
	t.Parallel()

	consumer, hub, store := newTestConsumer(t)
	sess, _ := store.Create(SourceIngest)
	events, unsub := hub.Subscribe(sess.ID, 32)
	defer unsub()

	pr, pw := io.Pipe()
	defer pw.Close()
	errCh := make(chan error, 1)
	go func() {
		errCh <- consumer.Consume(context.Background(), sess, pr, "message.delta")
	}()

	_, err := io.WriteString(pw, "data: {\"delta\":\"a\"}\n\n")
	require.NoError(t, err)
	testutil.Eventually(t, 5*time.Second, func() bool {
		return sess.View().Seq == 1
	})
	require.NoError(t, sess.Cancel())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("consume did not stop after cancel")
	}

	_, err = io.WriteString(pw, "data: {\"delta\":\"b\"}\n\n")
	assert.Error(t, err)

	view := sess.View()
	assert.Equal(t, streamstate.Cancelled, view.State)
	assert.Equal(t, "a", view.Snapshot.Content)
	assert.Equal(t, 1, view.Snapshot.Chunks)

	require.Len(t, events, 2)
	first, last := <-events, <-events
	assert.Equal(t, streamstate.Streaming, first.State)
	assert.Equal(t, streamstate.Cancelled, last.State)
	assert.Equal(t, uint64(1), last.Seq)
}

func TestSession_DropsChunksAfterEnd(t *testing.T) {
	t.Parallel()

	consumer, _, store := newTestConsumer(t)
	sess, _ := store.Create(SourceIngest)
	require.NoError(t, sess.Cancel())

	err := consumer.Consume(context.Background(), sess, strings.NewReader("data: {\"delta\":\"late\"}\n\n"), "")
	assert.ErrorIs(t, err, ErrClosed)

	_, ok := sess.apply(stream.InterpretPayload("message.delta", map[string]any{"delta": "late"}))
	assert.False(t, ok)
	view := sess.View()
	assert.Equal(t, streamstate.Cancelled, view.State)
	assert.Empty(t, view.Snapshot.Content)
	assert.Equal(t, uint64(0), view.Seq)
}

type errReader struct{ err error }

func (r *errReader) Read([]byte) (int, error) { return 0, r.err }

// blockingBody yields its data and then blocks until closed.
type blockingBody struct {
	data   *bytes.Reader
	closed chan struct{}
}

func newBlockingBody(data string) *blockingBody {
	return &blockingBody{data: bytes.NewReader([]byte(data)), closed: make(chan struct{})}
}

func (b *blockingBody) Read(p []byte) (int, error) {
	if b.data.Len() > 0 {
		return b.data.Read(p)
	}
	<-b.closed
	return 0, errors.New("body closed")
}

func (b *blockingBody) Close() error {
	select {
	case <-b.closed:
	default:
		close(b.closed)
	}
	return nil
}

func TestRelay_Completes(t *testing.T) {
	t.Parallel()

	consumer, _, store := newTestConsumer(t)
	sess, _ := store.Create(SourceGenerate)

	body := testutil.GenerationStream(t)
	err := consumer.Relay(context.Background(), sess, func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(body)), nil
	}, "")
	require.NoError(t, err)

	view := sess.View()
	assert.Equal(t, streamstate.Completed, view.State)
	assert.Equal(t, "Hello world", view.Snapshot.Content)
	assert.Equal(t, 8, view.Snapshot.Chunks)
}

func TestRelay_DoneWhileBodyStillOpen(t *testing.T) {
	t.Parallel()

	consumer, _, store := newTestConsumer(t)
	sess, _ := store.Create(SourceGenerate)

	body := newBlockingBody("data: {\"delta\":\"hi\"}\n\nevent: done\ndata: {}\n\n")
	errCh := make(chan error, 1)
	go func() {
		errCh <- consumer.Relay(context.Background(), sess, func(context.Context) (io.ReadCloser, error) {
			return body, nil
		}, "")
	}()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop at the done event")
	}
	assert.Equal(t, streamstate.Completed, sess.State())
	assert.Equal(t, "hi", sess.View().Snapshot.Content)
}

func TestRelay_Cancel(t *testing.T) {
	t.Parallel()

	consumer, _, store := newTestConsumer(t)
	sess, _ := store.Create(SourceGenerate)

	body := newBlockingBody("data: {\"delta\":\"partial\"}\n\n")
	errCh := make(chan error, 1)
	go func() {
		errCh <- consumer.Relay(context.Background(), sess, func(ctx context.Context) (io.ReadCloser, error) {
			return body, nil
		}, "")
	}()

	testutil.Eventually(t, 5*time.Second, func() bool {
		return sess.State() == streamstate.Streaming
	})
	require.NoError(t, sess.Cancel())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop after cancel")
	}
	view := sess.View()
	assert.Equal(t, streamstate.Cancelled, view.State)
	assert.Equal(t, "partial", view.Snapshot.Content)
}

func TestRelay_OpenFails(t *testing.T) {
	t.Parallel()

	consumer, _, store := newTestConsumer(t)
	sess, _ := store.Create(SourceGenerate)

	err := consumer.Relay(context.Background(), sess, func(context.Context) (io.ReadCloser, error) {
		return nil, errors.New("upstream returned 500")
	}, "")
	require.Error(t, err)
	assert.Equal(t, streamstate.Failed, sess.State())
	assert.Contains(t, sess.Summary().Error, "upstream returned 500")

	err = consumer.Relay(context.Background(), sess, nil, "")
	assert.ErrorIs(t, err, ErrClosed)
}
