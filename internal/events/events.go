// Package events publishes vote and weekly-summary events to kafka. Delivery
// is best effort: a failed publish is logged and never fails the request.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"github.com/emilythestrangee/feedbackloop/backend/internal/models"
	"github.com/emilythestrangee/feedbackloop/backend/internal/reporting"
	"github.com/emilythestrangee/feedbackloop/backend/internal/voting"
)

// VoteEvent describes the outcome of one CastVote.
type VoteEvent struct {
	PostID     string    `json:"postId"`
	UserID     string    `json:"userId"`
	Requested  string    `json:"requested"`
	State      string    `json:"state"`
	Upvotes    int       `json:"upvotes"`
	Downvotes  int       `json:"downvotes"`
	OccurredAt time.Time `json:"occurredAt"`
}

func NewVoteEvent(userID string, requested models.VoteType, res *voting.Result, at time.Time) VoteEvent {
	return VoteEvent{
		PostID:     res.Post.ID,
		UserID:     userID,
		Requested:  string(requested),
		State:      res.State.String(),
		Upvotes:    res.Post.Upvotes,
		Downvotes:  res.Post.Downvotes,
		OccurredAt: at,
	}
}

// SummaryEvent carries the stats of a finished week.
type SummaryEvent struct {
	Stats       reporting.Stats `json:"stats"`
	GeneratedAt time.Time       `json:"generatedAt"`
}

type Publisher interface {
	PublishVote(ctx context.Context, evt VoteEvent) error
	PublishSummary(ctx context.Context, evt SummaryEvent) error
	Close() error
}

type KafkaPublisher struct {
	votes     *kafka.Writer
	summaries *kafka.Writer
}

// NewKafkaPublisher writes vote events keyed by post id, so events for one
// post stay ordered within a partition.
func NewKafkaPublisher(brokers []string, voteTopic, summaryTopic string) *KafkaPublisher {
	logger := log.WithField("component", "kafka_publisher")
	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
			Async:        true,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					logger.WithError(err).WithFields(log.Fields{
						"topic":    topic,
						"messages": len(messages),
					}).Warn("failed to deliver events")
				}
			},
		}
	}
	return &KafkaPublisher{
		votes:     newWriter(voteTopic),
		summaries: newWriter(summaryTopic),
	}
}

func voteMessage(evt VoteEvent) (kafka.Message, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode vote event: %w", err)
	}
	return kafka.Message{Key: []byte(evt.PostID), Value: data, Time: evt.OccurredAt}, nil
}

func summaryMessage(evt SummaryEvent) (kafka.Message, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode summary event: %w", err)
	}
	key := evt.Stats.WeekStart.UTC().Format("2006-01-02")
	return kafka.Message{Key: []byte(key), Value: data, Time: evt.GeneratedAt}, nil
}

func (p *KafkaPublisher) PublishVote(ctx context.Context, evt VoteEvent) error {
	msg, err := voteMessage(evt)
	if err != nil {
		return err
	}
	if err := p.votes.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish vote event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) PublishSummary(ctx context.Context, evt SummaryEvent) error {
	msg, err := summaryMessage(evt)
	if err != nil {
		return err
	}
	if err := p.summaries.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish summary event: %w", err)
	}
	return nil
}

// Close flushes pending async writes.
func (p *KafkaPublisher) Close() error {
	verr := p.votes.Close()
	serr := p.summaries.Close()
	if verr != nil {
		return verr
	}
	return serr
}

// Nop drops every event.
type Nop struct{}

func (Nop) PublishVote(context.Context, VoteEvent) error       { return nil }
func (Nop) PublishSummary(context.Context, SummaryEvent) error { return nil }
func (Nop) Close() error                                       { return nil }
