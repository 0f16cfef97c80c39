package mqtt

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"photo-transform-go/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

var logFields = log.Fields{"component": "mqtt"}

// TransformationEvent wird nach jedem abgeschlossenen Lauf veröffentlicht
type TransformationEvent struct {
	ID             uint      `json:"id"`
	RunID          string    `json:"run_id"`
	Style          string    `json:"style"`
	Status         string    `json:"status"`
	FaceCount      int       `json:"face_count,omitempty"`
	QualityScore   float64   `json:"quality_score,omitempty"`
	FaceSimilarity float64   `json:"face_similarity,omitempty"`
	Passed         bool      `json:"passed"`
	ImageURL       string    `json:"image_url,omitempty"`
	ErrorKind      string    `json:"error_kind,omitempty"`
	DurationMS     int64     `json:"duration_ms"`
	Timestamp      time.Time `json:"timestamp"`
}

// Client ist der MQTT-Client für die Veröffentlichung von Transformationsergebnissen
type Client struct {
	config    config.MQTTConfig
	client    mqtt.Client
	connected atomic.Bool
}

// NewClient erstellt einen neuen MQTT-Client
func NewClient(cfg config.MQTTConfig) *Client {
	return &Client{config: cfg}
}

// AvailabilityTopic meldet online/offline, offline wird als Last Will gesetzt
func (c *Client) AvailabilityTopic() string {
	return c.config.TopicPrefix + "/availability"
}

// EventTopic liefert das Topic für ein Transformationsereignis
func (c *Client) EventTopic(status string) string {
	return fmt.Sprintf("%s/transformations/%s", c.config.TopicPrefix, status)
}

// Start verbindet den Client mit dem Broker
func (c *Client) Start() error {
	if !c.config.Enabled {
		log.WithFields(logFields).Info("MQTT client is disabled in configuration")
		return nil
	}

	opts := mqtt.NewClientOptions()
	brokerURL := fmt.Sprintf("tcp://%s:%d", c.config.Broker, c.config.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(c.config.ClientID)

	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}

	opts.SetWill(c.AvailabilityTopic(), "offline", 1, true)
	opts.SetOnConnectHandler(c.onConnectHandler)
	opts.SetConnectionLostHandler(c.connectionLostHandler)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	c.client = mqtt.NewClient(opts)

	log.WithFields(logFields).Infof("Connecting to MQTT broker at %s", brokerURL)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return nil
}

// Stop meldet den Dienst ab und trennt die Verbindung
func (c *Client) Stop() {
	if c.client == nil || !c.client.IsConnected() {
		return
	}
	if err := c.PublishRetain(c.AvailabilityTopic(), "offline"); err != nil {
		log.WithFields(logFields).Warnf("Failed to publish offline state: %v", err)
	}
	c.client.Disconnect(250)
	c.connected.Store(false)
	log.WithFields(logFields).Info("MQTT client disconnected")
}

// IsConnected prüft, ob der Client verbunden ist
func (c *Client) IsConnected() bool {
	return c.client != nil && c.connected.Load() && c.client.IsConnected()
}

func (c *Client) onConnectHandler(client mqtt.Client) {
	c.connected.Store(true)
	log.WithFields(logFields).Infof("Connected to MQTT broker at %s:%d", c.config.Broker, c.config.Port)

	token := client.Publish(c.AvailabilityTopic(), 1, true, "online")
	if token.Wait() && token.Error() != nil {
		log.WithFields(logFields).Errorf("Failed to publish availability: %v", token.Error())
	}
}

func (c *Client) connectionLostHandler(_ mqtt.Client, err error) {
	log.WithFields(logFields).Errorf("MQTT connection lost: %v", err)
	c.connected.Store(false)
}

// PublishTransformation veröffentlicht das Ergebnis eines Laufs. Ohne
// Verbindung wird das Ereignis verworfen.
func (c *Client) PublishTransformation(event TransformationEvent) error {
	if !c.config.Enabled {
		return nil
	}
	return c.Publish(c.EventTopic(event.Status), event)
}

// PublishMessage veröffentlicht eine Nachricht an ein MQTT-Topic
func (c *Client) PublishMessage(topic string, payload any, retain bool) error {
	if !c.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}

	payloadBytes, err := encodePayload(payload)
	if err != nil {
		return err
	}

	token := c.client.Publish(topic, 1, retain, payloadBytes)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish message to topic %s: %w", topic, token.Error())
	}

	log.WithFields(logFields).Debugf("Published message to topic: %s", topic)
	return nil
}

// PublishRetain veröffentlicht eine Nachricht mit dem Retain-Flag
func (c *Client) PublishRetain(topic string, payload any) error {
	return c.PublishMessage(topic, payload, true)
}

// Publish veröffentlicht eine Nachricht ohne Retain-Flag
func (c *Client) Publish(topic string, payload any) error {
	return c.PublishMessage(topic, payload, false)
}

func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case string:
		return []byte(p), nil
	case []byte:
		return p, nil
	case int, int64, float64, bool:
		return []byte(fmt.Sprintf("%v", p)), nil
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload to JSON: %w", err)
		}
		return b, nil
	}
}
