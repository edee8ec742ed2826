// Package stream adapts the span detector to the Kafka document stream.
// Each input record is a JSON document {"doc_id": "...", "text": "..."};
// each output record is the detection result keyed by the document id.
package stream

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/turtacn/doctalk/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/doctalk/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/doctalk/internal/intelligence/spandetect"
	"github.com/turtacn/doctalk/pkg/errors"
	"github.com/turtacn/doctalk/pkg/types/clinical"
)

// HeaderContentType marks published results.
const HeaderContentType = "content-type"

// Detector is the part of the span collector the stream needs.
type Detector interface {
	Detect(ctx context.Context, text, docID string) ([]clinical.Span, error)
}

// Handler turns document records into result records.
type Handler struct {
	detector  Detector
	publisher kafka.Publisher
	topic     string
	logger    logging.Logger
}

// NewHandler publishes results for every handled record to topic.
func NewHandler(d Detector, p kafka.Publisher, topic string, logger logging.Logger) *Handler {
	return &Handler{detector: d, publisher: p, topic: topic, logger: logging.OrNop(logger)}
}

// Handle is a kafka.Handler.  Undecodable records and results the producer
// rejects are permanent failures; detector and broker errors are retried
// by the consumer.
func (h *Handler) Handle(ctx context.Context, msg *kafka.Message) error {
	doc, err := decodeDocument(msg)
	if err != nil {
		return kafka.Permanent(err)
	}

	spans, err := h.detector.Detect(ctx, doc.Text, doc.ID)
	if err != nil {
		return err
	}
	if spans == nil {
		spans = []clinical.Span{}
	}
	value, err := json.Marshal(spandetect.Result{DocID: doc.ID, Spans: spans})
	if err != nil {
		return kafka.Permanent(errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode result"))
	}

	key := msg.Key
	if doc.ID != "" {
		key = []byte(doc.ID)
	}
	err = h.publisher.Publish(ctx, &kafka.ProducerMessage{
		Topic:   h.topic,
		Key:     key,
		Value:   value,
		Headers: map[string]string{HeaderContentType: "application/json"},
	})
	if errors.IsCode(err, errors.ErrCodeValidation) {
		return kafka.Permanent(err)
	}
	if err != nil {
		return err
	}
	h.logger.Debug("document detected",
		logging.String("doc_id", doc.ID),
		logging.Int("spans", len(spans)))
	return nil
}

// decodeDocument reads a document record.  A record without doc_id takes
// its id from the record key.
func decodeDocument(msg *kafka.Message) (spandetect.Document, error) {
	var doc spandetect.Document
	if err := json.Unmarshal(msg.Value, &doc); err != nil {
		return doc, errors.Wrap(err, errors.ErrCodeBadRequest, "invalid document record").
			WithDetail("offset=" + strconv.FormatInt(msg.Offset, 10))
	}
	if doc.ID == "" && len(msg.Key) > 0 {
		doc.ID = string(msg.Key)
	}
	return doc, nil
}
