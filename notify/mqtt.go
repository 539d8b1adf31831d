package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sony/gobreaker"

	"github.com/liamcoop/irrigation/internal/logger"
)

// ErrPublishTimeout is returned when the broker does not acknowledge in time
var ErrPublishTimeout = errors.New("mqtt publish timed out")

// MQTTConfig configures the broker connection and publishing
type MQTTConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	ClientID       string        `yaml:"client_id"`
	TopicPrefix    string        `yaml:"topic_prefix"`
	QoS            byte          `yaml:"qos"`
	ConnectRetries int           `yaml:"connect_retries"`
	ConnectWithin  time.Duration `yaml:"connect_within"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
	BreakerFails   uint32        `yaml:"breaker_failures"`
	BreakerOpenFor time.Duration `yaml:"breaker_open_for"`
}

// DefaultMQTTConfig publishes with QoS 1 under irrigation/decision
func DefaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Port:           1883,
		ClientID:       "irrigation-advisor",
		TopicPrefix:    "irrigation/decision",
		QoS:            1,
		ConnectRetries: 5,
		ConnectWithin:  10 * time.Second,
		PublishTimeout: 2 * time.Second,
		BreakerFails:   3,
		BreakerOpenFor: 30 * time.Second,
	}
}

// DialMQTT connects to the broker, retrying with exponential backoff. The
// connection is closed when ctx is done.
func DialMQTT(ctx context.Context, cfg MQTTConfig) (mqtt.Client, error) {
	connAddr := fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(connAddr)
	opts.SetUsername(cfg.User)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = cfg.ConnectWithin
	retries := cfg.ConnectRetries
	if retries < 1 {
		retries = 1
	}

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			logger.Warn("failed to connect to MQTT broker", "broker", connAddr, "error", token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries-1)), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not establish MQTT connection after retries: %w", err)
	}

	logger.Info("connected to MQTT broker", "broker", connAddr)

	go func() {
		<-ctx.Done()
		client.Disconnect(250)
	}()

	return client, nil
}

// MQTTPublisher sends events as JSON. A circuit breaker stops waiting on a
// dead broker; while open, Publish fails immediately.
type MQTTPublisher struct {
	client mqtt.Client
	cfg    MQTTConfig
	cb     *gobreaker.CircuitBreaker
}

// NewMQTTPublisher publishes through an already connected client
func NewMQTTPublisher(client mqtt.Client, cfg MQTTConfig) *MQTTPublisher {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultMQTTConfig().TopicPrefix
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultMQTTConfig().PublishTimeout
	}
	fails := cfg.BreakerFails
	if fails == 0 {
		fails = 3
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "mqtt-publish",
		Timeout: cfg.BreakerOpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= fails
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("publish breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &MQTTPublisher{client: client, cfg: cfg, cb: cb}
}

// Topic returns the topic an event is published on:
// {prefix}/{mode}/{crop}, with the crop lower-cased and spaces as dashes
func (p *MQTTPublisher) Topic(ev DecisionEvent) string {
	return fmt.Sprintf("%s/%s/%s", p.cfg.TopicPrefix, topicSegment(ev.Mode), topicSegment(ev.Crop))
}

// topicSegment removes characters MQTT reserves in topic names
func topicSegment(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ':
			return '-'
		case '/', '+', '#':
			return -1
		}
		return r
	}, s)
}

// Publish sends ev and waits for the broker acknowledgement
func (p *MQTTPublisher) Publish(ctx context.Context, ev DecisionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	topic := p.Topic(ev)

	_, err = p.cb.Execute(func() (any, error) {
		token := p.client.Publish(topic, p.cfg.QoS, false, payload)
		if !token.WaitTimeout(p.cfg.PublishTimeout) {
			return nil, ErrPublishTimeout
		}
		return nil, token.Error()
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	logger.Debug("decision event published", "topic", topic, "id", ev.ID)
	return nil
}

// BreakerState exposes the breaker state for health reporting
func (p *MQTTPublisher) BreakerState() string {
	return p.cb.State().String()
}

// Close disconnects the client
func (p *MQTTPublisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
		logger.Info("MQTT client disconnected")
	}
}
