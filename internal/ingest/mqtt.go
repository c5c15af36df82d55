package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/floodsense/floodsense-go/internal/conf"
	"github.com/floodsense/floodsense-go/internal/datastore/entities"
	"github.com/floodsense/floodsense-go/internal/logger"
)

const (
	connectTimeout = 10 * time.Second
	recordTimeout  = 15 * time.Second
)

// MQTTBridge subscribes to the observation topic and records incoming
// readings. Topics carry the region as their last segment
// (floodsense/observations/42); payloads are observation JSON without the
// region field. Malformed messages are dropped with a warning, never
// requeued.
type MQTTBridge struct {
	recorder *Recorder
	settings conf.IngestSettings
	client   mqtt.Client
	log      logger.Logger
}

// NewMQTTBridge creates the bridge without connecting.
func NewMQTTBridge(recorder *Recorder, settings conf.IngestSettings, log logger.Logger) *MQTTBridge {
	return &MQTTBridge{
		recorder: recorder,
		settings: settings,
		log:      log.Module("ingest.mqtt"),
	}
}

// Start connects to the broker and subscribes. Reconnects and
// resubscription are handled by the client; Start only fails on the initial
// connect.
func (b *MQTTBridge) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(b.settings.Broker).
		SetClientID(b.settings.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetOrderMatters(false)
	if b.settings.Username != "" {
		opts.SetUsername(b.settings.Username)
		opts.SetPassword(b.settings.Password)
	}
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		token := client.Subscribe(b.settings.Topic, 1, b.handleMessage)
		if token.Wait() && token.Error() != nil {
			b.log.Error("failed to subscribe to observation topic",
				logger.String("topic", b.settings.Topic),
				logger.Error(token.Error()))
			return
		}
		b.log.Info("subscribed to observation topic",
			logger.String("broker", b.settings.Broker),
			logger.String("topic", b.settings.Topic))
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		b.log.Warn("broker connection lost", logger.Error(err))
	})

	b.client = mqtt.NewClient(opts)
	token := b.client.Connect()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to connect to broker %s: %w", b.settings.Broker, token.Error())
	}
	return nil
}

// Stop disconnects from the broker, allowing in-flight handlers to finish.
func (b *MQTTBridge) Stop() {
	if b.client != nil && b.client.IsConnected() {
		b.client.Disconnect(250)
	}
}

func (b *MQTTBridge) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	regionID, err := regionFromTopic(msg.Topic())
	if err != nil {
		b.log.Warn("dropping observation with bad topic",
			logger.String("topic", msg.Topic()), logger.Error(err))
		return
	}

	var obs entities.Observation
	if err := json.Unmarshal(msg.Payload(), &obs); err != nil {
		b.log.Warn("dropping malformed observation payload",
			logger.String("topic", msg.Topic()), logger.Error(err))
		return
	}
	obs.ID = 0
	obs.RegionID = regionID

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if _, _, err := b.recorder.Record(ctx, &obs); err != nil {
		b.log.Warn("failed to record observation",
			logger.Uint64("region_id", uint64(regionID)),
			logger.Error(err))
	}
}

// regionFromTopic extracts the region from the topic's last segment.
func regionFromTopic(topic string) (uint, error) {
	idx := strings.LastIndex(topic, "/")
	if idx < 0 || idx == len(topic)-1 {
		return 0, fmt.Errorf("topic %q has no region segment", topic)
	}
	id, err := strconv.ParseUint(topic[idx+1:], 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("topic %q has invalid region segment", topic)
	}
	return uint(id), nil
}
