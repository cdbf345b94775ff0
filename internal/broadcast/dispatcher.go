// Package broadcast announces newly published courses to every active
// subscriber, in fixed-size batches, off the request path.
package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sakif/learnmade/internal/apperror"
	"github.com/sakif/learnmade/internal/background"
	"github.com/sakif/learnmade/internal/email"
	"github.com/sakif/learnmade/internal/model"
)

// DefaultBatchSize stays well under the gateway's 100-per-call limit.
const DefaultBatchSize = 50

// DefaultBatchTimeout bounds one gateway call. The broadcast as a whole has
// no deadline: it runs until every batch has been attempted.
const DefaultBatchTimeout = 2 * time.Minute

// SubscriberSource is the part of the subscriber store a broadcast reads.
type SubscriberSource interface {
	ListActive(ctx context.Context) ([]model.Subscriber, error)
}

// UnsubscribeSigner mints the per-subscriber unsubscribe token.
type UnsubscribeSigner interface {
	GenerateUnsubscribe(subscriberID string) (string, error)
}

// Report summarises one broadcast run.
type Report struct {
	Recipients int
	Batches    int
	Failed     int
}

type Dispatcher struct {
	subscribers  SubscriberSource
	signer       UnsubscribeSigner
	composer     *email.Composer
	newSender    email.Factory
	runner       *background.Runner
	batchSize    int
	batchTimeout time.Duration
	tracer       trace.Tracer
	logger       *slog.Logger
}

func NewDispatcher(
	subscribers SubscriberSource,
	signer UnsubscribeSigner,
	composer *email.Composer,
	newSender email.Factory,
	runner *background.Runner,
	batchSize int,
	logger *slog.Logger,
) *Dispatcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize > email.MaxBatchSize {
		batchSize = email.MaxBatchSize
	}
	return &Dispatcher{
		subscribers:  subscribers,
		signer:       signer,
		composer:     composer,
		newSender:    newSender,
		runner:       runner,
		batchSize:    batchSize,
		batchTimeout: DefaultBatchTimeout,
		tracer:       otel.Tracer("github.com/sakif/learnmade/internal/broadcast"),
		logger:       logger.With(slog.String("component", "broadcast")),
	}
}

// Dispatch schedules a broadcast for course and returns immediately.
// Nothing that happens during the broadcast is reported back to the caller.
// It runs as a long task: only individual batches are time-bounded.
func (d *Dispatcher) Dispatch(ctx context.Context, course *model.Course) {
	snapshot := *course
	d.runner.GoLong(ctx, "broadcast:"+snapshot.Slug, func(ctx context.Context) error {
		_, err := d.Run(ctx, &snapshot)
		return err
	})
}

// Run sends the announcement synchronously. The sender is only built when
// there is at least one recipient.
//
// Batches go out one after another. A failed batch is logged and counted,
// and the next batch is still attempted; nothing is retried.
func (d *Dispatcher) Run(ctx context.Context, course *model.Course) (Report, error) {
	ctx, span := d.tracer.Start(ctx, "broadcast.course",
		trace.WithAttributes(attribute.String("course.slug", course.Slug)))
	defer span.End()

	start := time.Now()
	subs, err := d.subscribers.ListActive(ctx)
	if err != nil {
		span.RecordError(err)
		return Report{}, fmt.Errorf("broadcast: listing active subscribers: %w", err)
	}

	report := Report{Recipients: len(subs)}
	if len(subs) == 0 {
		d.logger.Info("no active subscribers, skipping broadcast", slog.String("slug", course.Slug))
		return report, nil
	}

	sender, err := d.newSender()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "email gateway unavailable")
		return report, apperror.Upstream("creating email sender", err)
	}

	for i, batch := range chunk(subs, d.batchSize) {
		report.Batches++
		if err := d.sendBatch(ctx, sender, course, i, batch); err != nil {
			report.Failed++
			d.logger.Error("broadcast batch failed",
				slog.String("slug", course.Slug),
				slog.Int("batch", i),
				slog.Int("size", len(batch)),
				slog.String("error", err.Error()),
			)
		}
	}

	d.logger.Info("broadcast finished",
		slog.String("slug", course.Slug),
		slog.Int("recipients", report.Recipients),
		slog.Int("batches", report.Batches),
		slog.Int("failed_batches", report.Failed),
		slog.Duration("duration", time.Since(start)),
	)
	return report, nil
}

func (d *Dispatcher) sendBatch(ctx context.Context, sender email.Sender, course *model.Course, index int, batch []model.Subscriber) error {
	ctx, span := d.tracer.Start(ctx, "broadcast.batch", trace.WithAttributes(
		attribute.Int("batch.index", index),
		attribute.Int("batch.size", len(batch)),
	))
	defer span.End()

	msgs := make([]email.Message, 0, len(batch))
	for _, sub := range batch {
		token, err := d.signer.GenerateUnsubscribe(sub.ID)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("signing unsubscribe token for %s: %w", sub.ID, err)
		}
		msg, err := d.composer.NewCourse(course, sub.Email, d.composer.UnsubscribeURL(token))
		if err != nil {
			span.RecordError(err)
			return err
		}
		msgs = append(msgs, msg)
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.batchTimeout)
	defer cancel()
	if err := sender.SendBatch(sendCtx, msgs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch send failed")
		return err
	}
	return nil
}

// chunk splits s into consecutive slices of at most size elements.
func chunk[T any](s []T, size int) [][]T {
	var out [][]T
	for size < len(s) {
		s, out = s[size:], append(out, s[:size:size])
	}
	if len(s) > 0 {
		out = append(out, s)
	}
	return out
}
