package telemetry

import (
	"fmt"
	"io"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/pulsewave/internal/monitoring"
)

// MQTTOptions configures an MQTT telemetry subscription.
type MQTTOptions struct {
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
	Username string
	Password string
}

// SubscribeMQTT connects to a broker and subscribes to a topic. Each message
// payload is one telemetry line.
func SubscribeMQTT(opts MQTTOptions, bufSize int) (*Mux[io.ReadCloser], error) {
	if opts.Broker == "" || opts.Topic == "" {
		return nil, fmt.Errorf("mqtt: broker and topic are required")
	}
	if opts.ClientID == "" {
		opts.ClientID = "pulsewave-" + randomID()
	}

	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	co.SetAutoReconnect(true)
	co.SetConnectTimeout(10 * time.Second)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}

	var client mqtt.Client
	port := newChanPort(bufSize, func() {
		if client != nil {
			client.Unsubscribe(opts.Topic)
			client.Disconnect(250)
		}
	})

	co.SetOnConnectHandler(func(c mqtt.Client) {
		monitoring.Logf("[Telemetry] mqtt: connected to %s", opts.Broker)
		token := c.Subscribe(opts.Topic, opts.QoS, func(_ mqtt.Client, msg mqtt.Message) {
			if !port.push(msg.Payload()) {
				monitoring.Debugf("[Telemetry] mqtt: dropped message on %s", msg.Topic())
			}
		})
		if token.Wait() && token.Error() != nil {
			monitoring.Logf("[Telemetry] mqtt: subscribe %s: %v", opts.Topic, token.Error())
		}
	})
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		monitoring.Logf("[Telemetry] mqtt: connection lost: %v", err)
	})

	client = mqtt.NewClient(co)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt: connect %s: %w", opts.Broker, token.Error())
	}
	return NewMux[io.ReadCloser]("mqtt:"+opts.Topic, port, bufSize), nil
}
