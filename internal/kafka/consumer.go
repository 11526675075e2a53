package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/obstacle-community/records/internal/config"
	"github.com/obstacle-community/records/internal/domain"
)

// FinishHandler ingests finish submissions
type FinishHandler interface {
	Finish(ctx context.Context, login, playerName string, req *domain.FinishRequest, scope domain.EventScope, edition *domain.EventEdition) (*domain.FinishResult, error)
	ResolveScope(ctx context.Context, handle string, editionID uint32) (domain.EventScope, *domain.EventEdition, error)
}

// FinishMessage is one finish submission on the wire. Event fields are
// optional; when present the finish counts toward that edition.
type FinishMessage struct {
	Login       string               `json:"login"`
	PlayerName  string               `json:"player_name,omitempty"`
	EventHandle string               `json:"event_handle,omitempty"`
	EditionID   uint32               `json:"edition_id,omitempty"`
	ReqTstp     int64                `json:"req_tstp,omitempty"`
	Body        domain.FinishRequest `json:"body"`
}

// Consumer consumes finish submissions from Kafka. Server restarts replay
// from the committed offset; a finish applied twice is harmless because
// ingestion only ever improves a personal best.
type Consumer struct {
	config        *config.KafkaConfig
	handler       FinishHandler
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, handler FinishHandler, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		handler:       handler,
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    c.ready,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if err == sarama.ErrClosedConsumerGroup {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			// Check if context was cancelled
			if c.ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	// Wait until consumer is ready
	<-c.ready
	c.logger.Info("Kafka consumer ready")

	// Handle errors in separate goroutine
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages from a topic partition
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil

		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			var msg FinishMessage
			if err := json.Unmarshal(message.Value, &msg); err != nil {
				h.consumer.logger.Warn("failed to unmarshal message",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				session.MarkMessage(message, "")
				continue
			}

			if msg.Login == "" || msg.Body.MapUID == "" {
				h.consumer.logger.Warn("invalid finish submission",
					"login", msg.Login,
					"map_uid", msg.Body.MapUID,
				)
				session.MarkMessage(message, "")
				continue
			}

			h.consumer.ingest(&msg)
			session.MarkMessage(message, "")
		}
	}
}

// ingest resolves the optional event scope and runs one finish with a
// bounded timeout. Failures are logged; the offset is committed either way,
// matching trust in the relational store as the point of truth.
func (c *Consumer) ingest(msg *FinishMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	scope := domain.EventScope{}
	var edition *domain.EventEdition
	if msg.EventHandle != "" {
		var err error
		scope, edition, err = c.handler.ResolveScope(ctx, msg.EventHandle, msg.EditionID)
		if err != nil {
			c.logger.Warn("failed to resolve event scope",
				"event_handle", msg.EventHandle,
				"edition_id", msg.EditionID,
				"error", err,
			)
			return
		}
	}

	req := msg.Body
	if msg.ReqTstp > 0 {
		req.RecordedAt = time.Unix(msg.ReqTstp, 0).UTC()
	}

	result, err := c.handler.Finish(ctx, msg.Login, msg.PlayerName, &req, scope, edition)
	if err != nil {
		c.logger.Error("failed to ingest finish",
			"login", msg.Login,
			"map_uid", msg.Body.MapUID,
			"error", err,
		)
		return
	}
	c.logger.Debug("ingested finish",
		"login", msg.Login,
		"map_uid", msg.Body.MapUID,
		"has_improved", result.HasImproved,
	)
}
