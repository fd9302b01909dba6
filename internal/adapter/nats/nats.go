// Package nats implements the message queue port using NATS JetStream.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/RuleForge/internal/logger"
	"github.com/Strob0t/RuleForge/internal/port/messagequeue"
)

const streamName = "RULEFORGE"

const (
	headerRequestID  = "X-Request-ID"
	headerRetryCount = "X-Retry-Count"

	// maxRetries bounds redeliveries of a failing message before it is
	// parked on the subject's DLQ.
	maxRetries = 3
)

// Queue implements messagequeue.Queue using NATS JetStream.
type Queue struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes a connection to NATS and ensures the JetStream
// stream exists with subjects covering every RuleForge topic family.
func Connect(ctx context.Context, url string) (*Queue, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"triggers.>", "outcomes.>", "policies.>", "breakers.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Queue{nc: nc, js: js}, nil
}

// Publish sends a message to the given subject. The request ID, when
// present in ctx, travels as a header so consumers log under it.
func (q *Queue) Publish(ctx context.Context, subject string, data []byte) error {
	msg := &nats.Msg{Subject: subject, Data: data, Header: nats.Header{}}
	if id := logger.RequestID(ctx); id != "" {
		msg.Header.Set(headerRequestID, id)
	}
	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a handler for messages on the given subject.
// Payloads are schema-validated before the handler runs; invalid
// messages go straight to the DLQ. A handler error requeues the message
// with a bumped retry count until maxRetries, then parks it.
func (q *Queue) Subscribe(ctx context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		subj := msg.Subject()

		// Wildcard filters also match the .dlq leaves under them; parked
		// messages must never re-enter a live handler.
		if strings.HasSuffix(subj, ".dlq") {
			_ = msg.Ack()
			return
		}

		hdrs := msg.Headers()
		mctx := context.Background()
		if id := hdrs.Get(headerRequestID); id != "" {
			mctx = logger.WithRequestID(mctx, id)
		}
		data := msg.Data()

		if err := messagequeue.Validate(subj, data); err != nil {
			slog.Error("message failed validation", "subject", subj, "error", err)
			q.moveToDLQ(mctx, subj, data, hdrs)
			_ = msg.Ack()
			return
		}

		if err := handler(mctx, subj, data); err != nil {
			slog.Error("message handler failed", "subject", subj, "error", err)
			if retryCount(hdrs) >= maxRetries {
				q.moveToDLQ(mctx, subj, data, hdrs)
			} else {
				q.requeue(mctx, subj, data, hdrs)
			}
			_ = msg.Ack()
			return
		}

		if ackErr := msg.Ack(); ackErr != nil {
			slog.Error("nats ack failed", "error", ackErr)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}

	return cons.Stop, nil
}

// requeue republishes the payload on its own subject with the retry
// count bumped.
func (q *Queue) requeue(ctx context.Context, subject string, data []byte, hdrs nats.Header) {
	msg := &nats.Msg{Subject: subject, Data: data, Header: nats.Header{}}
	if id := hdrs.Get(headerRequestID); id != "" {
		msg.Header.Set(headerRequestID, id)
	}
	msg.Header.Set(headerRetryCount, strconv.Itoa(retryCount(hdrs)+1))
	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		slog.Error("nats requeue failed", "subject", subject, "error", err)
	}
}

// moveToDLQ parks the payload on <subject>.dlq for operator inspection.
func (q *Queue) moveToDLQ(ctx context.Context, subject string, data []byte, hdrs nats.Header) {
	msg := &nats.Msg{Subject: subject + ".dlq", Data: data, Header: nats.Header{}}
	if id := hdrs.Get(headerRequestID); id != "" {
		msg.Header.Set(headerRequestID, id)
	}
	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		slog.Error("nats DLQ publish failed", "subject", subject, "error", err)
		return
	}
	slog.Warn("message moved to DLQ", "subject", subject, "retries", retryCount(hdrs))
}

func retryCount(hdrs nats.Header) int {
	n, err := strconv.Atoi(hdrs.Get(headerRetryCount))
	if err != nil {
		return 0
	}
	return n
}

// KeyValue returns the named KV bucket, creating it with the given TTL
// when absent.
func (q *Queue) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := q.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("nats kv bucket %s: %w", bucket, err)
	}
	return kv, nil
}

// IsConnected reports whether the NATS connection is currently up.
func (q *Queue) IsConnected() bool {
	return q.nc != nil && q.nc.IsConnected()
}

// Drain processes pending messages on all subscriptions, then closes.
func (q *Queue) Drain() error {
	if err := q.nc.Drain(); err != nil {
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}

// Close shuts down the NATS connection immediately.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}
