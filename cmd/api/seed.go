package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"seatwarden/internal/domain"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

type seedDeparture struct {
	ResourceID string `yaml:"resource_id"`
	StartsAt   string `yaml:"starts_at"`
	EndsAt     string `yaml:"ends_at"`
	Capacity   int    `yaml:"capacity"`
}

type seedFile struct {
	Departures []seedDeparture `yaml:"departures"`
}

func loadSeed(path string) ([]domain.CreateDepartureInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	out := make([]domain.CreateDepartureInput, 0, len(file.Departures))
	for i, d := range file.Departures {
		startsAt, err := time.Parse(time.RFC3339, d.StartsAt)
		if err != nil {
			return nil, fmt.Errorf("departure %d: starts_at: %w", i, err)
		}
		endsAt, err := time.Parse(time.RFC3339, d.EndsAt)
		if err != nil {
			return nil, fmt.Errorf("departure %d: ends_at: %w", i, err)
		}
		out = append(out, domain.CreateDepartureInput{
			ResourceID:    d.ResourceID,
			StartsAt:      startsAt,
			EndsAt:        endsAt,
			TotalCapacity: d.Capacity,
		})
	}
	return out, nil
}

// seedDepartures creates the departures that do not exist yet. A departure is
// identified by its resource and start time, so restarts do not duplicate it.
func seedDepartures(
	ctx context.Context,
	store domain.Store,
	departures domain.DepartureService,
	inputs []domain.CreateDepartureInput,
	logger *zerolog.Logger,
) (int, error) {
	created := 0
	for _, in := range inputs {
		existing, err := store.ListDepartures(ctx, in.StartsAt, in.StartsAt.Add(time.Nanosecond), in.ResourceID)
		if err != nil {
			return created, err
		}
		if len(existing) > 0 {
			continue
		}
		dep, err := departures.CreateDeparture(ctx, in)
		if err != nil {
			return created, fmt.Errorf("seed %s at %s: %w", in.ResourceID, in.StartsAt.Format(time.RFC3339), err)
		}
		logger.Debug().Str("departure_id", dep.ID).Str("resource_id", dep.ResourceID).Msg("seeded departure")
		created++
	}
	return created, nil
}
