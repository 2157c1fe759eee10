package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"seatwarden/internal/domain"
	"seatwarden/internal/events"
	"seatwarden/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

type BlockService struct {
	coord    *Coordinator
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

var _ domain.BlockService = (*BlockService)(nil)

func NewBlockService(coord *Coordinator, eventBus domain.EventPublisher, logger *zerolog.Logger) *BlockService {
	return &BlockService{
		coord:    coord,
		eventBus: eventBus,
		logger:   logger,
	}
}

// BlockSeats withholds seats after re-checking capacity under the departure lock.
func (s *BlockService) BlockSeats(ctx context.Context, in domain.BlockSeatsInput) (block *models.Block, err error) {
	ctx, span := startSpan(ctx, "block.create",
		attribute.String("departure_id", in.DepartureID), attribute.Int("seat_count", in.SeatCount))
	defer func() { endSpan(span, err) }()

	if in.SeatCount <= 0 {
		return nil, fmt.Errorf("%w: seat count must be positive, got %d", domain.ErrInvalidArgument, in.SeatCount)
	}
	if !in.BlockType.Valid() {
		return nil, fmt.Errorf("%w: unknown block type %q", domain.ErrInvalidArgument, in.BlockType)
	}

	var out outbox
	err = s.coord.Mutate(ctx, in.DepartureID, func(ctx context.Context, dep *models.Departure, now time.Time) error {
		out.reset()
		if dep.Status == models.DepartureCancelled {
			return fmt.Errorf("%w: departure %s is cancelled", domain.ErrDepartureClosed, dep.ID)
		}
		if err := s.coord.ensureCapacity(ctx, dep, in.SeatCount, now); err != nil {
			return err
		}
		b := &models.Block{
			ID:          uuid.NewString(),
			DepartureID: dep.ID,
			SeatCount:   in.SeatCount,
			BlockType:   in.BlockType,
			Reason:      strings.TrimSpace(in.Reason),
			CreatedBy:   domain.ActorLabel(ctx),
			CreatedAt:   now,
		}
		if err := s.coord.Store().CreateBlock(ctx, b); err != nil {
			return err
		}
		out.add(events.EventBlockCreated, blockPayload(ctx, b))
		block = b
		return nil
	})
	if err != nil {
		s.logger.Info().Err(err).Str("departure_id", in.DepartureID).Int("seat_count", in.SeatCount).Msg("block rejected")
		return nil, err
	}

	out.flush(s.eventBus, s.logger)
	s.logger.Info().
		Str("block_id", block.ID).
		Str("departure_id", block.DepartureID).
		Int("seat_count", block.SeatCount).
		Str("block_type", string(block.BlockType)).
		Msg("seats blocked")
	return block, nil
}

func (s *BlockService) RemoveBlock(ctx context.Context, blockID string) (err error) {
	ctx, span := startSpan(ctx, "block.remove", attribute.String("block_id", blockID))
	defer func() { endSpan(span, err) }()

	current, err := s.coord.Store().GetBlock(ctx, blockID)
	if err != nil {
		return err
	}

	var out outbox
	err = s.coord.Mutate(ctx, current.DepartureID, func(ctx context.Context, _ *models.Departure, _ time.Time) error {
		out.reset()
		if err := s.coord.Store().DeleteBlock(ctx, blockID); err != nil {
			return err
		}
		out.add(events.EventBlockRemoved, blockPayload(ctx, current))
		return nil
	})
	if err != nil {
		return err
	}
	out.flush(s.eventBus, s.logger)
	s.logger.Info().Str("block_id", blockID).Str("departure_id", current.DepartureID).Msg("block removed")
	return nil
}

func (s *BlockService) ListBlocks(ctx context.Context, departureID string) ([]*models.Block, error) {
	if _, err := s.coord.Store().GetDeparture(ctx, departureID); err != nil {
		return nil, err
	}
	blocks, err := s.coord.Store().ListBlocks(ctx, departureID)
	if err != nil {
		return nil, err
	}
	if blocks == nil {
		blocks = []*models.Block{}
	}
	return blocks, nil
}

func blockPayload(ctx context.Context, b *models.Block) events.BlockPayload {
	return events.BlockPayload{
		BlockID:     b.ID,
		DepartureID: b.DepartureID,
		SeatCount:   b.SeatCount,
		BlockType:   string(b.BlockType),
		Reason:      b.Reason,
		ChangedBy:   domain.ActorLabel(ctx),
	}
}
