// Package mqtt announces pipeline events to the local broker so other
// home devices can react to visitor arrivals.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/LakePipiCAKA/self-discovery/config"
	"github.com/LakePipiCAKA/self-discovery/internal/pipeline"
)

var (
	// NewClientFunc allows tests to substitute the Paho constructor.
	NewClientFunc = mqtt.NewClient
)

// Client wraps the Paho MQTT client and publishes pipeline events.
type Client struct {
	Cfg         config.MQTTConfig
	Client      mqtt.Client
	IsConnected bool
}

// IsActuallyConnected checks the status of the underlying Paho client.
func (c *Client) IsActuallyConnected() bool {
	return c.Client != nil && c.Client.IsConnected()
}

// NewClient creates and configures a new MQTT client wrapper. Returns
// (nil, nil) when MQTT is disabled.
func NewClient(cfg config.MQTTConfig) (*Client, error) {
	if !cfg.Enabled {
		log.Info("MQTT client is disabled in the configuration.")
		return nil, nil
	}

	mqttClient := &Client{Cfg: cfg}

	brokerURL := fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetConnectionLostHandler(mqttClient.connectionLostHandler)
	opts.SetOnConnectHandler(mqttClient.onConnectHandler)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	mqttClient.Client = NewClientFunc(opts)

	return mqttClient, nil
}

// Start connects to the MQTT broker.
func (c *Client) Start() error {
	if c.Client == nil {
		return fmt.Errorf("MQTT client not initialized (likely disabled)")
	}
	brokerURL := fmt.Sprintf("tcp://%s:%d", c.Cfg.Broker, c.Cfg.Port)
	log.Infof("Attempting to connect to MQTT broker: %s", brokerURL)
	if token := c.Client.Connect(); token.Wait() && token.Error() != nil {
		log.Errorf("Failed to connect to MQTT broker %s: %v", brokerURL, token.Error())
		// Auto-reconnect keeps trying in the background.
		return token.Error()
	}
	return nil
}

// Stop disconnects the MQTT client.
func (c *Client) Stop() {
	if c.Client != nil && c.Client.IsConnected() {
		log.Info("Disconnecting MQTT client...")
		c.Client.Disconnect(250)
		log.Info("MQTT client disconnected.")
	}
	c.IsConnected = false
}

// Notify implements pipeline.Notifier; greeting and enrollment events are
// published to the configured topic.
func (c *Client) Notify(ev pipeline.Event) {
	if c == nil || !c.IsActuallyConnected() {
		return
	}
	if ev.Type != pipeline.EventGreeting && ev.Type != pipeline.EventEnrollment {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		log.Errorf("Failed to marshal MQTT event: %v", err)
		return
	}

	topic := fmt.Sprintf("%s/%s", c.Cfg.Topic, ev.Type)
	token := c.Client.Publish(topic, 0, false, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			log.Errorf("Failed to publish to %s: %v", topic, token.Error())
		}
	}()
}

func (c *Client) connectionLostHandler(client mqtt.Client, err error) {
	log.Errorf("MQTT connection lost: %v. Attempting to reconnect...", err)
	c.IsConnected = false
}

func (c *Client) onConnectHandler(client mqtt.Client) {
	brokerURL := fmt.Sprintf("tcp://%s:%d", c.Cfg.Broker, c.Cfg.Port)
	log.Infof("Successfully connected to MQTT broker: %s", brokerURL)
	c.IsConnected = true
}
