package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"coop_door/internal/config"
	"coop_door/internal/logger"
	"coop_door/internal/models"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	keepAlive         = 60 * time.Second
	maxReconnectDelay = 2 * time.Minute
	disconnectQuiesce = 1000 // milliseconds

	availabilityOnline  = "online"
	availabilityOffline = "offline"
)

var ErrConnectionFailed = errors.New("mqtt connection failed")

// mqttClient is the subset of pahomqtt.Client the publisher uses.
type mqttClient interface {
	Connect() pahomqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher mirrors the door status to a retained topic so dashboards and
// home-automation hubs see the last known state on subscribe. Availability is
// tracked with a retained online marker and an offline last will.
type MQTTPublisher struct {
	client mqttClient
	qos    byte
	log    *logger.Logger

	statusTopic       string
	availabilityTopic string

	mu   sync.Mutex
	sent bool
}

// StatusTopic returns <prefix>/<door_id>/status.
func StatusTopic(cfg config.MQTTConfig) string {
	return fmt.Sprintf("%s/%s/status", cfg.TopicPrefix, cfg.DoorID)
}

// AvailabilityTopic returns <prefix>/<door_id>/availability.
func AvailabilityTopic(cfg config.MQTTConfig) string {
	return fmt.Sprintf("%s/%s/availability", cfg.TopicPrefix, cfg.DoorID)
}

// NewMQTTPublisher connects to the broker. The online marker is republished on
// every (re)connect.
func NewMQTTPublisher(cfg config.MQTTConfig, log *logger.Logger) (*MQTTPublisher, error) {
	if log == nil {
		log = logger.Nop()
	}
	opts := buildClientOptions(cfg)

	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		log.Infow("mqtt_connected", "broker", cfg.Broker)
		c.Publish(AvailabilityTopic(cfg), byte(cfg.QoS), true, availabilityOnline)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Warnw("mqtt_connection_lost", "err", err)
	})

	client := pahomqtt.NewClient(opts)
	p := newMQTTPublisher(client, cfg, log)

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return p, nil
}

func newMQTTPublisher(client mqttClient, cfg config.MQTTConfig, log *logger.Logger) *MQTTPublisher {
	return &MQTTPublisher{
		client:            client,
		qos:               byte(cfg.QoS),
		log:               log.Named("mqtt"),
		statusTopic:       StatusTopic(cfg),
		availabilityTopic: AvailabilityTopic(cfg),
	}
}

func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetMaxReconnectInterval(maxReconnectDelay)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)
	opts.SetWill(AvailabilityTopic(cfg), availabilityOffline, byte(cfg.QoS), true)
	return opts
}

// Publish sends the status when it changed, and always for the first call so
// the retained topic is populated after a restart. It never waits for the
// broker.
func (p *MQTTPublisher) Publish(st models.DoorStatus, changed bool) {
	p.mu.Lock()
	if p.sent && !changed {
		p.mu.Unlock()
		return
	}
	p.sent = true
	p.mu.Unlock()

	payload, err := json.Marshal(st)
	if err != nil {
		p.log.Errorw("mqtt_marshal_failed", "err", err)
		return
	}
	token := p.client.Publish(p.statusTopic, p.qos, true, payload)
	go p.await(token, p.statusTopic)
}

func (p *MQTTPublisher) await(token pahomqtt.Token, topic string) {
	if !token.WaitTimeout(publishTimeout) {
		p.log.Warnw("mqtt_publish_timeout", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		p.log.Warnw("mqtt_publish_failed", "topic", topic, "err", err)
	}
}

// Close marks the door offline and disconnects.
func (p *MQTTPublisher) Close() error {
	token := p.client.Publish(p.availabilityTopic, p.qos, true, availabilityOffline)
	token.WaitTimeout(publishTimeout)
	p.client.Disconnect(disconnectQuiesce)
	return token.Error()
}
