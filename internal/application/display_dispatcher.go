package application

import (
	"context"

	"github.com/wms-platform/fulfillment-engine/internal/che"
	"github.com/wms-platform/fulfillment-engine/pkg/kafka"
	"github.com/wms-platform/fulfillment-engine/pkg/logging"
)

// DisplayEvent carries one batch of display commands for a device
type DisplayEvent struct {
	DeviceID string               `json:"deviceId"`
	Commands []che.DisplayCommand `json:"commands"`
}

// KafkaDispatcher publishes display command batches to the device events
// topic. Edge gateways subscribed there drive the physical displays.
type KafkaDispatcher struct {
	producer EventPublisher
	logger   *logging.Logger
}

// NewKafkaDispatcher creates a KafkaDispatcher
func NewKafkaDispatcher(producer EventPublisher, logger *logging.Logger) *KafkaDispatcher {
	return &KafkaDispatcher{
		producer: producer,
		logger:   logger.WithComponent("display"),
	}
}

// Send publishes one display batch. Delivery failures are logged and
// swallowed; the HTTP response still carries the commands.
func (d *KafkaDispatcher) Send(deviceID string, commands []che.DisplayCommand) error {
	if len(commands) == 0 {
		return nil
	}

	event := kafka.NewEvent("fulfillment.display.updated", "/fulfillment-engine", deviceID, DisplayEvent{
		DeviceID: deviceID,
		Commands: commands,
	})

	if err := d.producer.PublishEvent(context.Background(), kafka.Topics.DeviceEvents, event); err != nil {
		d.logger.WithError(err).Warn("Failed to publish display event", "deviceId", deviceID)
	}
	return nil
}
