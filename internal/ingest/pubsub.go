package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/xelth-com/eckscan/internal/models"
)

// DLQPublisher publishes undecodable messages to a dead-letter topic
type DLQPublisher interface {
	Publish(ctx context.Context, msg *pubsub.Message, reason string) error
}

// PubSubDLQPublisher implements DLQPublisher using a Pub/Sub topic
type PubSubDLQPublisher struct {
	topic *pubsub.Topic
}

// NewPubSubDLQPublisher returns a publisher for topic. A nil topic makes
// every publish a no-op.
func NewPubSubDLQPublisher(topic *pubsub.Topic) *PubSubDLQPublisher {
	return &PubSubDLQPublisher{topic: topic}
}

func (p *PubSubDLQPublisher) Publish(ctx context.Context, msg *pubsub.Message, reason string) error {
	if p.topic == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	attrs := map[string]string{
		"reason":      reason,
		"orig_msg_id": msg.ID,
	}
	if msg.DeliveryAttempt != nil {
		attrs["delivery_attempt"] = strconv.Itoa(*msg.DeliveryAttempt)
	}
	_, err := p.topic.Publish(ctx, &pubsub.Message{Data: msg.Data, Attributes: attrs}).Get(ctx)
	return err
}

// NoopDLQPublisher is used when no DLQ topic is configured
type NoopDLQPublisher struct{}

func (n *NoopDLQPublisher) Publish(ctx context.Context, msg *pubsub.Message, reason string) error {
	return nil
}

// PubSubSourceID tags scans from messages that name no camera
const PubSubSourceID = "pubsub"

// Ingester is the part of the pipeline a message source needs
type Ingester interface {
	IngestSubmission(ctx context.Context, sub models.Submission, source string, defaults Meta) models.ScanResult
}

// Subscriber feeds Pub/Sub scan messages into the pipeline
type Subscriber struct {
	ingester Ingester
	dlq      DLQPublisher
	log      *zap.Logger
}

func NewSubscriber(ingester Ingester, dlq DLQPublisher, log *zap.Logger) *Subscriber {
	if dlq == nil {
		dlq = &NoopDLQPublisher{}
	}
	return &Subscriber{ingester: ingester, dlq: dlq, log: log.Named("pubsub")}
}

// HandleMessage processes one message and returns true if it should be
// acked (including after a DLQ hand-off) or false to Nack it for redelivery.
func (s *Subscriber) HandleMessage(ctx context.Context, msg *pubsub.Message) bool {
	var sub models.Submission
	if err := json.Unmarshal(msg.Data, &sub); err != nil {
		return s.deadLetter(ctx, msg, "parse_error", err)
	}
	source := sub.CameraID
	if source == "" {
		source = msg.Attributes["cameraId"]
	}
	if source == "" {
		source = PubSubSourceID
	}

	res := s.ingester.IngestSubmission(ctx, sub, source, StreamDefaults())
	switch res.Status {
	case models.OutcomeInvalid:
		return s.deadLetter(ctx, msg, "invalid_code", errors.New(res.Message))
	case models.OutcomeError:
		s.log.Warn("Scan not persisted, requesting redelivery", zap.String("msg_id", msg.ID), zap.String("error", res.Message))
		return false
	}
	return true
}

func (s *Subscriber) deadLetter(ctx context.Context, msg *pubsub.Message, reason string, cause error) bool {
	s.log.Warn("Pushing message to DLQ", zap.String("msg_id", msg.ID), zap.String("reason", reason), zap.Error(cause))
	if err := s.dlq.Publish(ctx, msg, reason); err != nil {
		s.log.Error("Error publishing to DLQ", zap.String("msg_id", msg.ID), zap.Error(err))
		return false
	}
	return true
}

// Run blocks receiving from sub until ctx is cancelled
func (s *Subscriber) Run(ctx context.Context, sub *pubsub.Subscription) error {
	s.log.Info("Subscriber started", zap.String("subscription", sub.ID()))
	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if s.HandleMessage(ctx, msg) {
			msg.Ack()
		} else {
			msg.Nack()
		}
	})
}
