package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/homeaudit/libs/db"
	"github.com/md-rashed-zaman/homeaudit/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type PublisherConfig struct {
	Brokers   string
	PollEvery time.Duration
	BatchSize int
	// Source is stamped on every message; defaults to "portal-service".
	Source string
}

// Publisher relays committed outbox rows to Kafka, one topic per event type.
type Publisher struct {
	pool    *db.Pool
	repo    *Repository
	logger  *slog.Logger
	brokers []string
	cfg     PublisherConfig
}

func NewPublisher(pool *db.Pool, repo *Repository, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Source == "" {
		cfg.Source = "portal-service"
	}
	return &Publisher{
		pool:    pool,
		repo:    repo,
		logger:  logger,
		brokers: kafkax.SplitBrokers(cfg.Brokers),
		cfg:     cfg,
	}
}

// Enabled reports whether brokers were configured. Without them events stay in the table.
func (p *Publisher) Enabled() bool {
	return len(p.brokers) > 0
}

func (p *Publisher) Run(ctx context.Context) {
	if !p.Enabled() {
		p.logger.Warn("outbox publisher disabled", "reason", "no kafka brokers configured")
		return
	}
	writer := kafkax.NewWriter(p.brokers)
	defer writer.Close()

	p.logger.Info("outbox publisher started", "brokers", len(p.brokers), "poll_every", p.cfg.PollEvery.String())
	ticker := time.NewTicker(p.cfg.PollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx, writer)
		}
	}
}

// drain publishes full batches back to back until the backlog is empty or a batch fails.
func (p *Publisher) drain(ctx context.Context, writer MessageWriter) {
	for ctx.Err() == nil {
		n, err := p.publishBatch(ctx, writer)
		if err != nil {
			p.logger.Error("outbox publish failed", "err", err)
			return
		}
		if n < p.cfg.BatchSize {
			return
		}
	}
}

func (p *Publisher) publishBatch(ctx context.Context, writer MessageWriter) (int, error) {
	var published int
	err := p.pool.InTx(ctx, func(tx pgx.Tx) error {
		records, err := p.repo.FetchUnpublished(ctx, tx, p.cfg.BatchSize)
		if err != nil || len(records) == 0 {
			return err
		}

		msgs := make([]kafka.Message, len(records))
		ids := make([]int64, len(records))
		for i, r := range records {
			msgs[i] = p.toMessage(ctx, r)
			ids[i] = r.ID
		}
		if err := writer.WriteMessages(ctx, msgs...); err != nil {
			return err
		}
		published = len(ids)
		return p.repo.MarkPublished(ctx, tx, ids)
	})
	if err != nil {
		return 0, err
	}
	if published > 0 {
		p.logger.Debug("outbox batch published", "count", published)
	}
	return published, nil
}

// toMessage keys by aggregate id so one appointment's events stay ordered.
// The span that wrote the row becomes the parent of the message.
func (p *Publisher) toMessage(ctx context.Context, r Record) kafka.Message {
	headers := []kafka.Header{
		{Key: "event_id", Value: []byte(r.EventID)},
		{Key: "event_type", Value: []byte(r.EventType)},
		{Key: "aggregate_type", Value: []byte(r.AggregateType)},
		{Key: "source", Value: []byte(p.cfg.Source)},
		{Key: "content_type", Value: []byte("application/json")},
		{Key: "occurred_at", Value: []byte(r.CreatedAt.UTC().Format(time.RFC3339Nano))},
	}
	return kafka.Message{
		Topic:   r.EventType,
		Key:     []byte(r.AggregateID),
		Value:   r.Payload,
		Headers: kafkax.InjectTraceHeaders(r.Trace.Resume(ctx), headers),
		Time:    r.CreatedAt,
	}
}
