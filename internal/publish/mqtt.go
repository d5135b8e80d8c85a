package publish

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// Options configures the broker connection
type Options struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	ConnectTimeout time.Duration
}

// Connect dials the broker. An empty broker disables publishing and returns a nil client.
func Connect(ctx context.Context, o Options, logger *zerolog.Logger) (mqtt.Client, error) {
	if o.Broker == "" {
		logger.Info().Msg("MQTT disabled: MQTT_BROKER not set")
		return nil, nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.Broker)

	clientID := o.ClientID
	if clientID == "" {
		clientID = "listing-matcher"
	}
	opts.SetClientID(clientID)

	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info().Str("broker", o.Broker).Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("MQTT connection lost, auto-reconnect will retry")
	})

	client := mqtt.NewClient(opts)

	timeout := o.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	token := client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("connecting to %s: %w", o.Broker, err)
		}
	case <-timer.C:
		client.Disconnect(0)
		return nil, fmt.Errorf("connecting to %s: timed out after %v", o.Broker, timeout)
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, ctx.Err()
	}

	return client, nil
}
