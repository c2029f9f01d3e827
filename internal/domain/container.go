package domain

import "time"

// Container is a worker-assigned cart slot bound to one or more active
// orders for the duration of a pick run
type Container struct {
	ContainerID  string    `bson:"containerId" json:"containerId"`
	CartPosition int       `bson:"cartPosition" json:"cartPosition"`
	OrderIDs     []string  `bson:"orderIds" json:"orderIds"`
	DeviceID     string    `bson:"deviceId" json:"deviceId"`
	WorkerID     string    `bson:"workerId" json:"workerId"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
}

// NewContainer binds a container to a cart position on a device
func NewContainer(containerID string, cartPosition int, deviceID, workerID string) *Container {
	return &Container{
		ContainerID:  containerID,
		CartPosition: cartPosition,
		DeviceID:     deviceID,
		WorkerID:     workerID,
		OrderIDs:     make([]string, 0),
		CreatedAt:    time.Now(),
	}
}

// BindOrder attaches an order to the container
func (c *Container) BindOrder(orderID string) {
	for _, id := range c.OrderIDs {
		if id == orderID {
			return
		}
	}
	c.OrderIDs = append(c.OrderIDs, orderID)
}
