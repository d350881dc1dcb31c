package session

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"phobos.org.uk/sajtmaskin/internal/logging"
	"phobos.org.uk/sajtmaskin/internal/sse"
	"phobos.org.uk/sajtmaskin/internal/stream"
	"phobos.org.uk/sajtmaskin/internal/streamstate"
)

// relayBuffer is the number of decoded frames queued between the read and
// interpret stages of Relay.
const relayBuffer = 64

// errStreamDone stops the read stage once a done-like chunk was seen.
var errStreamDone = errors.New("stream done")

// Opener opens the body of a live stream. The body must stop reading when
// ctx is cancelled.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// Consumer drives streams through the interpreter into their sessions.
type Consumer struct {
	hub           *Hub
	log           *logging.Logger
	maxFrameBytes int
}

// NewConsumer creates a consumer publishing to hub. A non-positive
// maxFrameBytes selects the decoder default.
func NewConsumer(hub *Hub, log *logging.Logger, maxFrameBytes int) *Consumer {
	return &Consumer{hub: hub, log: log, maxFrameBytes: maxFrameBytes}
}

// Consume reads a complete captured stream from r into sess. Frames without
// an event name are interpreted with defaultEvent. The session ends
// completed at EOF or at a done-like chunk, failed on a read error and
// cancelled when ctx is done or the session is cancelled. If r is an
// io.Closer it is closed on cancellation to unblock a pending read.
func (c *Consumer) Consume(ctx context.Context, sess *Session, r io.Reader, defaultEvent string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !sess.SetCancel(cancel) {
		return fmt.Errorf("consume %s: %w", sess.ID, ErrClosed)
	}
	if closer, ok := r.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { closer.Close() })
		defer stop()
	}

	log := c.log.WithStream(sess.ID)
	chunks := stream.NewChunkLogger(log)
	dec := sse.NewDecoder(r, c.maxFrameBytes)

	for {
		if err := ctx.Err(); err != nil {
			c.finish(sess, streamstate.Cancelled, nil, log)
			return err
		}
		frame, err := dec.Next()
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.finish(sess, streamstate.Cancelled, nil, log)
			return ctxErr
		}
		if errors.Is(err, io.EOF) {
			c.finish(sess, streamstate.Completed, nil, log)
			return nil
		}
		if err != nil {
			c.finish(sess, streamstate.Failed, err, log)
			return fmt.Errorf("consuming stream %s: %w", sess.ID, err)
		}
		if c.handle(sess, frame, defaultEvent, chunks) {
			c.finish(sess, streamstate.Completed, nil, log)
			return nil
		}
	}
}

// Relay opens a live stream and consumes it. Reading and interpreting run
// as separate stages connected by a bounded queue, so a slow subscriber
// path does not stall the network read. Cancel on the session stops the
// relay.
func (c *Consumer) Relay(ctx context.Context, sess *Session, open Opener, defaultEvent string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !sess.SetCancel(cancel) {
		return fmt.Errorf("relay %s: %w", sess.ID, ErrClosed)
	}

	log := c.log.WithStream(sess.ID)
	chunks := stream.NewChunkLogger(log)

	body, err := open(ctx)
	if err != nil {
		if ctx.Err() != nil {
			c.finish(sess, streamstate.Cancelled, nil, log)
			return ctx.Err()
		}
		c.finish(sess, streamstate.Failed, err, log)
		return fmt.Errorf("opening stream %s: %w", sess.ID, err)
	}
	defer body.Close()
	log.Info("stream opened")

	frames := make(chan sse.Frame, relayBuffer)
	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() { body.Close() })
	defer stop()

	g.Go(func() error {
		defer close(frames)
		dec := sse.NewDecoder(body, c.maxFrameBytes)
		for {
			frame, err := dec.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("reading stream: %w", err)
			}
			select {
			case frames <- frame:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	g.Go(func() error {
		for frame := range frames {
			if err := gctx.Err(); err != nil {
				return err
			}
			if c.handle(sess, frame, defaultEvent, chunks) {
				return errStreamDone
			}
		}
		return nil
	})

	err = g.Wait()
	switch {
	case err == nil || errors.Is(err, errStreamDone):
		c.finish(sess, streamstate.Completed, nil, log)
		return nil
	case ctx.Err() != nil:
		c.finish(sess, streamstate.Cancelled, nil, log)
		return ctx.Err()
	default:
		c.finish(sess, streamstate.Failed, err, log)
		return fmt.Errorf("relaying stream %s: %w", sess.ID, err)
	}
}

// handle interprets one frame, applies it and publishes the chunk. It
// reports whether consumption should stop, either because the chunk ended
// the stream or because the session already ended.
func (c *Consumer) handle(sess *Session, frame sse.Frame, defaultEvent string, chunks stream.ChunkLogger) bool {
	event := frame.Event
	if event == "" {
		event = defaultEvent
	}

	var chunk *stream.Chunk
	if frame.Data == "" {
		chunk = stream.InterpretPayload(event, nil)
	} else {
		chunk = stream.Interpret(event, frame.Data)
	}

	seq, ok := sess.apply(chunk)
	if !ok {
		return true
	}
	chunks.Log(chunk)
	c.hub.Publish(Event{
		StreamID: sess.ID,
		Seq:      seq,
		State:    streamstate.Streaming,
		Chunk:    chunk,
	})
	return chunk.Done
}

func (c *Consumer) finish(sess *Session, state streamstate.State, err error, log *logging.StreamLogger) {
	if !sess.finish(state, err) {
		return
	}
	view := sess.View()
	fields := map[string]any{
		"state":  string(view.State),
		"chunks": view.Snapshot.Chunks,
		"parts":  len(view.Snapshot.Parts),
	}
	if err != nil {
		fields["error"] = err.Error()
		log.Error("stream failed", fields)
	} else {
		log.Info("stream finished", fields)
	}

	ev := Event{
		StreamID: sess.ID,
		Seq:      view.Seq,
		State:    view.State,
		Snapshot: &view.Snapshot,
		Error:    view.Error,
	}
	c.hub.Publish(ev)
}
