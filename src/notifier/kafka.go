package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/tick-analytics/src/eventpubsub"
	"github.com/jiaming2012/tick-analytics/src/models"
	"github.com/jiaming2012/tick-analytics/src/utils"
)

const traceContextHeader = "trace-context"

type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	MaxAttempts  int           `yaml:"max_attempts"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

func (c KafkaConfig) withDefaults() KafkaConfig {
	if c.Topic == "" {
		c.Topic = "analytics.alerts"
	}

	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}

	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 50 * time.Millisecond
	}

	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}

	return c
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Notifier publishes alert triggers to a kafka topic, keyed by symbol.
type Notifier struct {
	writer       MessageWriter
	writeTimeout time.Duration
	handler      func(models.AlertTriggeredEvent)
}

func NewKafkaNotifier(cfg KafkaConfig) *Notifier {
	cfg = cfg.withDefaults()

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		MaxAttempts:            cfg.MaxAttempts,
		BatchTimeout:           cfg.BatchTimeout,
	}

	log.Infof("kafka notifier writing to %s on %v", cfg.Topic, cfg.Brokers)
	return NewNotifier(writer, cfg.WriteTimeout)
}

func NewNotifier(writer MessageWriter, writeTimeout time.Duration) *Notifier {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	return &Notifier{
		writer:       writer,
		writeTimeout: writeTimeout,
	}
}

func (n *Notifier) Notify(ctx context.Context, triggers []models.AlertTrigger) error {
	if len(triggers) == 0 {
		return nil
	}

	var headers []kafka.Header
	if b, ok, err := utils.EncodeTraceContext(ctx); err != nil {
		log.Warnf("notifier: %v", err)
	} else if ok {
		headers = append(headers, kafka.Header{Key: traceContextHeader, Value: b})
	}

	msgs := make([]kafka.Message, 0, len(triggers))
	for _, tr := range triggers {
		data, err := json.Marshal(tr)
		if err != nil {
			return fmt.Errorf("Notifier.Notify: failed to marshal trigger %s: %w", tr.ID, err)
		}

		msgs = append(msgs, kafka.Message{
			Key:     []byte(tr.Symbol),
			Value:   data,
			Headers: headers,
			Time:    tr.FiredAt,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, n.writeTimeout)
	defer cancel()

	if err := n.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("Notifier.Notify: %w", err)
	}

	log.Debugf("notified %d alert triggers", len(msgs))
	return nil
}

// Subscribe forwards every AlertTriggeredEvent on the bus to kafka.
func (n *Notifier) Subscribe() error {
	n.handler = func(ev models.AlertTriggeredEvent) {
		ctx := ev.Ctx
		if ctx == nil {
			ctx = context.Background()
		}

		if err := n.Notify(ctx, ev.Triggers); err != nil {
			log.Errorf("failed to publish alert triggers: %v", err)
		}
	}

	return eventpubsub.Subscribe("notifier", eventpubsub.AlertTriggeredEvent, n.handler)
}

func (n *Notifier) Close() error {
	if n.handler != nil {
		if err := eventpubsub.Unsubscribe(eventpubsub.AlertTriggeredEvent, n.handler); err != nil {
			log.Warnf("notifier: unsubscribe: %v", err)
		}
	}

	return n.writer.Close()
}
