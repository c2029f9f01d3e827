package application

import (
	"context"
	"fmt"
	"time"

	"github.com/wms-platform/fulfillment-engine/pkg/kafka"
	"github.com/wms-platform/fulfillment-engine/pkg/logging"
	"github.com/wms-platform/fulfillment-engine/pkg/metrics"

	"github.com/wms-platform/fulfillment-engine/internal/domain"
)

// PurgeService removes completed orders and instructions past the
// retention window. Live sessions referencing a purged instruction degrade
// to a no-work screen instead of failing.
type PurgeService struct {
	orders       domain.OrderRepository
	instructions domain.WorkInstructionRepository
	transactor   domain.Transactor
	producer     EventPublisher
	logger       *logging.Logger
	metrics      *metrics.Metrics
	retention    time.Duration
}

// NewPurgeService creates a PurgeService
func NewPurgeService(
	orders domain.OrderRepository,
	instructions domain.WorkInstructionRepository,
	transactor domain.Transactor,
	producer EventPublisher,
	logger *logging.Logger,
	m *metrics.Metrics,
	retention time.Duration,
) *PurgeService {
	return &PurgeService{
		orders:       orders,
		instructions: instructions,
		transactor:   transactor,
		producer:     producer,
		logger:       logger.WithComponent("purge"),
		metrics:      m,
		retention:    retention,
	}
}

// PurgeResult reports what one purge pass removed
type PurgeResult struct {
	OrdersPurged       int64 `json:"ordersPurged"`
	InstructionsPurged int64 `json:"instructionsPurged"`
}

// Purge removes terminal records older than the retention window
func (s *PurgeService) Purge(ctx context.Context) (*PurgeResult, error) {
	result := &PurgeResult{}
	err := s.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		result.InstructionsPurged, err = s.instructions.PurgeOlderThan(ctx, s.retention)
		if err != nil {
			return fmt.Errorf("purge instructions: %w", err)
		}
		result.OrdersPurged, err = s.orders.PurgeOlderThan(ctx, s.retention)
		if err != nil {
			return fmt.Errorf("purge orders: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordRecordsPurged("order", int(result.OrdersPurged))
		s.metrics.RecordRecordsPurged("work_instruction", int(result.InstructionsPurged))
	}
	if s.producer != nil && (result.OrdersPurged > 0 || result.InstructionsPurged > 0) {
		events := []*domain.RecordsPurgedEvent{
			{Kind: "order", Count: int(result.OrdersPurged), MaxAge: s.retention.String(), PurgedAt: time.Now()},
			{Kind: "work_instruction", Count: int(result.InstructionsPurged), MaxAge: s.retention.String(), PurgedAt: time.Now()},
		}
		for _, de := range events {
			if de.Count == 0 {
				continue
			}
			event := kafka.NewEvent(de.EventType(), "/fulfillment-engine", de.Kind, de)
			if perr := s.producer.PublishEvent(ctx, kafka.Topics.OrderEvents, event); perr != nil {
				s.logger.WithError(perr).Warn("Failed to publish purge event")
			}
		}
	}

	s.logger.Info("Purge pass finished",
		"ordersPurged", result.OrdersPurged,
		"instructionsPurged", result.InstructionsPurged,
		"retention", s.retention.String(),
	)
	return result, nil
}
