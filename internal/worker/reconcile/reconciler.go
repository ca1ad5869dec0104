// Package reconcile はStripe連携の永続化失敗を再調整するワーカーを提供する。
// キューから受け取ったPendingLinkをクラブに冪等に再適用し、
// 失敗した場合は試行回数を増やして再投入する。
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/clubster/internal/metrics"
	"github.com/hitoshi/clubster/internal/model"
	"github.com/hitoshi/clubster/internal/queue"
	"github.com/hitoshi/clubster/internal/repository"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// initialBackoff は再投入前の初回待機時間。
	initialBackoff = time.Second
	// maxBackoff は再投入前の最大待機時間。
	maxBackoff = time.Minute
)

// ErrDeliveriesClosed はブローカーとの接続が切れて受信チャネルが閉じたことを示す。
var ErrDeliveriesClosed = errors.New("deliveries channel closed")

// ClubLinker はPendingLinkをクラブに再適用するインターフェース。
// repository.ClubRepositoryの部分集合。
type ClubLinker interface {
	ApplyPendingLink(ctx context.Context, link model.PendingLink) error
}

// Republisher は再試行するPendingLinkをキューに戻すインターフェース。
type Republisher interface {
	PublishPendingLink(ctx context.Context, link model.PendingLink) error
}

// Reconciler はPendingLinkメッセージを処理するワーカー。
type Reconciler struct {
	clubs       ClubLinker
	publisher   Republisher
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
	maxAttempts int
	backoff     func(attempt int) time.Duration
}

// NewReconciler はReconcilerを生成する。
// maxAttemptsが0以下の場合はデフォルト値5を使用する。
func NewReconciler(
	clubs ClubLinker,
	publisher Republisher,
	m metrics.MetricsCollector,
	logger *slog.Logger,
	maxAttempts int,
) *Reconciler {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Reconciler{
		clubs:       clubs,
		publisher:   publisher,
		metrics:     m,
		logger:      logger,
		maxAttempts: maxAttempts,
		backoff:     CalculateBackoff,
	}
}

// CalculateBackoff は試行回数に基づく指数バックオフ待機時間を返す。
// 初回1秒、2倍ずつ増加、最大1分。
func CalculateBackoff(attempt int) time.Duration {
	delay := initialBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// Run はコンテキストがキャンセルされるまでメッセージを処理する。
// 受信チャネルが閉じた場合はErrDeliveriesClosedを返す。
func (r *Reconciler) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	r.logger.Info("reconcile worker started",
		slog.Int("max_attempts", r.maxAttempts),
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconcile worker stopped")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrDeliveriesClosed
			}
			r.Handle(ctx, d)
		}
	}
}

// Handle は1件のメッセージを処理し、ack/nack/rejectのいずれかを行う。
// 新しい連携で上書き済みの場合とクラブが存在しない場合は再試行せずに確定する。
func (r *Reconciler) Handle(ctx context.Context, d amqp.Delivery) {
	link, err := queue.DecodePendingLink(d.Body)
	if err != nil {
		r.logger.Error("discarding malformed pending link message",
			slog.String("error", err.Error()),
		)
		r.metrics.RecordReconcile(metrics.ReconcileResultDropped)
		r.settle(d.Reject(false))
		return
	}

	attrs := []any{
		slog.String("manager_id", link.ManagerID),
		slog.String("stripe_user_id", link.StripeUserID),
		slog.Int("attempt", link.Attempt),
		slog.Time("occurred_at", link.OccurredAt),
	}

	err = r.clubs.ApplyPendingLink(ctx, link)
	switch {
	case err == nil:
		r.logger.Info("pending link applied", attrs...)
		r.metrics.RecordReconcile(metrics.ReconcileResultApplied)
		r.settle(d.Ack(false))
		return
	case errors.Is(err, repository.ErrStalePendingLink):
		r.logger.Info("pending link superseded by a newer stripe link", attrs...)
		r.metrics.RecordReconcile(metrics.ReconcileResultObsolete)
		r.settle(d.Ack(false))
		return
	case errors.Is(err, repository.ErrClubNotFound):
		r.logger.Error("pending link dropped: manager has no club", attrs...)
		r.metrics.RecordReconcile(metrics.ReconcileResultClubMissing)
		r.settle(d.Ack(false))
		return
	}

	attrs = append(attrs, slog.String("error", err.Error()))

	if link.Attempt >= r.maxAttempts {
		r.logger.Error("giving up on pending link", attrs...)
		r.metrics.RecordReconcile(metrics.ReconcileResultDropped)
		r.settle(d.Ack(false))
		return
	}

	if err := r.retry(ctx, link); err != nil {
		r.logger.Error("failed to requeue pending link",
			append(attrs, slog.String("retry_error", err.Error()))...,
		)
		r.settle(d.Nack(false, true))
		return
	}

	r.logger.Warn("pending link requeued after failed apply", attrs...)
	r.metrics.RecordReconcile(metrics.ReconcileResultRetried)
	r.settle(d.Ack(false))
}

// retry はバックオフ後にattemptを1増やして再投入する。
func (r *Reconciler) retry(ctx context.Context, link model.PendingLink) error {
	if wait := r.backoff(link.Attempt); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return fmt.Errorf("backoff interrupted: %w", ctx.Err())
		case <-timer.C:
		}
	}

	link.Attempt++
	return r.publisher.PublishPendingLink(ctx, link)
}

func (r *Reconciler) settle(err error) {
	if err != nil {
		r.logger.Error("failed to settle delivery",
			slog.String("error", err.Error()),
		)
	}
}
