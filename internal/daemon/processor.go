package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ArionMiles/smsexpensor/pkg/api"
	"github.com/ArionMiles/smsexpensor/pkg/dedup"
	"github.com/ArionMiles/smsexpensor/pkg/labels"
	"github.com/ArionMiles/smsexpensor/pkg/metrics"
	"github.com/ArionMiles/smsexpensor/pkg/record"
)

// Processor turns captured messages into categorized transactions.
//
// A fingerprint is recorded in the dedup store only after the writer acknowledged
// the transaction. Until then the message is in flight: a redelivery under the
// same ID is forwarded again, and a repeat under another ID is held and
// acknowledged together with the first copy.
type Processor struct {
	builder    *record.Builder
	labels     *labels.Labels
	seen       dedup.Store
	writerName string
	logger     *slog.Logger

	mu       sync.Mutex
	inflight map[string]string  // fingerprint -> message ID
	flights  map[string]*flight // message ID -> flight
}

type flight struct {
	fingerprint string
	held        []string
}

// NewProcessor creates a processor. writerName labels the written-transactions metric.
func NewProcessor(opts Options, writerName string, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		builder:    record.NewBuilder(opts.Classifier),
		labels:     opts.Labels,
		seen:       opts.Dedup,
		writerName: writerName,
		logger:     logger.With("component", "processor"),
		inflight:   make(map[string]string),
		flights:    make(map[string]*flight),
	}
}

// Process returns the transaction for msg, or nil when msg is not a transaction
// message or repeats one that was already written or is being written.
func (p *Processor) Process(ctx context.Context, msg *api.RawMessage) *api.Transaction {
	txn, _ := p.process(ctx, msg)
	return txn
}

// process also reports whether msg was held behind an in-flight copy, in which
// case its acknowledgment is deferred.
func (p *Processor) process(ctx context.Context, msg *api.RawMessage) (*api.Transaction, bool) {
	source := msg.Source
	if source == "" {
		source = "unknown"
	}
	metrics.MessagesReceived.WithLabelValues(source).Inc()
	defer metrics.ObserveProcessing(source, time.Now())

	rec := p.builder.Build(*msg)
	if rec == nil {
		metrics.MessagesClassified.WithLabelValues(metrics.OutcomeRejected).Inc()
		p.logger.Debug("not a transaction message", "message_id", msg.ID, "sender", msg.Sender)
		return nil, false
	}
	metrics.MessagesClassified.WithLabelValues(metrics.OutcomeTransaction).Inc()

	if p.seen != nil {
		fp := dedup.Fingerprint(*msg)

		p.mu.Lock()
		firstID, pending := p.inflight[fp]
		if pending && p.flights[firstID] == nil {
			// The ID was reused for other content and has since been written.
			delete(p.inflight, fp)
			pending = false
		}
		if pending && firstID != msg.ID {
			f := p.flights[firstID]
			f.held = append(f.held, msg.ID)
			p.mu.Unlock()
			metrics.DuplicatesDropped.Inc()
			p.logger.Info("holding duplicate until first copy is written",
				"message_id", msg.ID, "first_message_id", firstID, "sender", msg.Sender)
			return nil, true
		}
		p.mu.Unlock()

		if pending {
			p.logger.Info("forwarding redelivered message", "message_id", msg.ID, "sender", msg.Sender)
		} else {
			dup, err := p.seen.Seen(ctx, fp)
			if err != nil {
				// Processing continues; writers keyed by message ID absorb repeats.
				p.logger.Warn("de-duplication unavailable", "message_id", msg.ID, "error", err)
			} else if dup {
				metrics.DuplicatesDropped.Inc()
				p.logger.Info("dropping duplicate message", "message_id", msg.ID, "sender", msg.Sender)
				return nil, false
			}
			p.track(ctx, fp, msg.ID)
		}
	}

	txn := &api.Transaction{
		TransactionRecord: *rec,
		MessageID:         msg.ID,
		Source:            msg.Source,
		Category:          p.labels.Lookup(msg.Body, rec.Direction),
	}

	p.logger.Info("transaction detected",
		"message_id", txn.MessageID,
		"sender", txn.Sender,
		"amount", txn.Amount,
		"direction", txn.Direction,
		"category", txn.Category,
	)
	return txn, false
}

// track marks fp as in flight under id. Messages without an ID are never
// acknowledged by writers, so their fingerprint is recorded right away.
func (p *Processor) track(ctx context.Context, fp, id string) {
	if id == "" {
		if err := p.seen.Add(ctx, fp); err != nil {
			p.logger.Warn("failed to record fingerprint", "error", err)
		}
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inflight[fp] = id
	p.flights[id] = &flight{fingerprint: fp}
}

// Run processes messages from in until it is closed or ctx is canceled, and then
// closes out. Messages that produce no transaction are acknowledged right away,
// except repeats of a message that is still in flight.
func (p *Processor) Run(ctx context.Context, in <-chan *api.RawMessage, out chan<- *api.Transaction, ackChan chan<- string) {
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				p.logger.Debug("input closed, processor stopping")
				return
			}
			if msg == nil {
				continue
			}

			txn, held := p.process(ctx, msg)
			if held {
				continue
			}
			if txn == nil {
				if !ack(ctx, ackChan, msg.ID) {
					return
				}
				continue
			}

			select {
			case out <- txn:
				metrics.TransactionsWritten.WithLabelValues(p.writerName).Inc()
			case <-ctx.Done():
				return
			}
		}
	}
}

// Acknowledge relays writer acknowledgments from in to out until in is closed or
// ctx is canceled. Each written message gets its fingerprint recorded, and the
// repeats held behind it are acknowledged along with it.
func (p *Processor) Acknowledge(ctx context.Context, in <-chan string, out chan<- string) {
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-in:
			if !ok {
				return
			}
			for _, ackID := range p.written(ctx, id) {
				if !ack(ctx, out, ackID) {
					return
				}
			}
		}
	}
}

// written settles the flight for id and returns the IDs to acknowledge.
func (p *Processor) written(ctx context.Context, id string) []string {
	p.mu.Lock()
	f, ok := p.flights[id]
	p.mu.Unlock()
	if !ok {
		return []string{id}
	}

	// Recorded before leaving flight so a concurrent repeat cannot slip between.
	if err := p.seen.Add(ctx, f.fingerprint); err != nil {
		p.logger.Warn("failed to record fingerprint", "message_id", id, "error", err)
	}

	p.mu.Lock()
	delete(p.flights, id)
	if p.inflight[f.fingerprint] == id {
		delete(p.inflight, f.fingerprint)
	}
	held := f.held
	p.mu.Unlock()

	return append([]string{id}, held...)
}

func ack(ctx context.Context, ackChan chan<- string, id string) bool {
	if id == "" {
		return true
	}
	select {
	case ackChan <- id:
		return true
	case <-ctx.Done():
		return false
	}
}
