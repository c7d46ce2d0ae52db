package ingest

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/nats-io/nats.go"

	"github.com/david1005910/Bio2/engine/domain"
	"github.com/david1005910/Bio2/pkg/natsutil"
)

const (
	// Subject carries papers queued for ingestion.
	Subject = "bio2.ingest.paper"
	// DLQSubject receives papers that kept failing.
	DLQSubject = "bio2.ingest.dlq"
	// MaxRetries before a paper goes to the DLQ.
	MaxRetries = 3

	retryHeader = "X-Retry-Count"
)

// dlqEntry is the DLQ message shape.
type dlqEntry struct {
	Paper   domain.Paper `json:"paper"`
	Error   string       `json:"error"`
	Retries int          `json:"retries"`
}

// StartConsumer subscribes to the ingest subject and runs each paper through
// the pipeline. Validation failures go straight to the DLQ; transient
// failures are requeued with an incremented retry count.
func StartConsumer(nc *nats.Conn, deps Deps) (*nats.Subscription, error) {
	pipeline := NewPipeline(deps)
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	observe := func(outcome string) {
		if deps.Metrics != nil {
			deps.Metrics.ObserveIngest(outcome)
		}
	}

	return natsutil.Subscribe(nc, Subject, func(ctx context.Context, paper domain.Paper, msg *nats.Msg) {
		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get(retryHeader); v != "" {
				retries, _ = strconv.Atoi(v)
			}
		}

		result := pipeline(ctx, paper)
		if result.IsOk() {
			pmid, _ := result.Unwrap()
			log.Info("ingest: paper stored", "pmid", pmid, "retries", retries)
			observe("stored")
			ack(msg)
			return
		}

		_, err := result.Unwrap()
		retries++
		log.Error("ingest: pipeline failed", "pmid", paper.PMID, "retry", retries, "err", err)

		var vErr *domain.ValidationError
		if errors.As(err, &vErr) || retries >= MaxRetries {
			entry := dlqEntry{Paper: paper, Error: err.Error(), Retries: retries}
			if pubErr := natsutil.Publish(ctx, nc, DLQSubject, entry); pubErr != nil {
				log.Error("ingest: DLQ publish failed", "pmid", paper.PMID, "err", pubErr)
			}
			observe("dlq")
			ack(msg)
			return
		}

		headers := map[string]string{retryHeader: strconv.Itoa(retries)}
		if pubErr := natsutil.PublishWithHeaders(ctx, nc, Subject, paper, headers); pubErr != nil {
			log.Error("ingest: requeue failed", "pmid", paper.PMID, "err", pubErr)
		}
		observe("requeued")
		ack(msg)
	})
}

func ack(msg *nats.Msg) {
	if msg.Reply != "" {
		_ = msg.Ack()
	}
}
