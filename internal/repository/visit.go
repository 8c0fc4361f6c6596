package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sajpe/visitgate/internal/model"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// VisitRepository stores reported visits.
type VisitRepository struct {
	repo *Repository
}

// NewVisitRepository creates a VisitRepository.
func NewVisitRepository(repo *Repository) *VisitRepository {
	return &VisitRepository{repo: repo}
}

const insertVisitSQL = `
	INSERT INTO visits (
		visit_id, event_id, referral_type, referral_code,
		device_type, os, browser, model, stable_hardware_id, ip_address,
		latitude, longitude, city, state, country, postal_code, full_address,
		location_accuracy, location_source, visited_at, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, NOW())
	ON CONFLICT (visit_id) DO NOTHING
`

// BulkInsert writes visits in one batch. Redelivered visits are ignored.
func (r *VisitRepository) BulkInsert(ctx context.Context, visits []*model.Visit) error {
	if len(visits) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, v := range visits {
		batch.Queue(insertVisitSQL,
			v.VisitID, v.EventID, v.ReferralType, v.ReferralCode,
			v.DeviceType, v.OS, v.Browser, v.Model, v.StableHardwareID, v.IPAddress,
			v.Latitude, v.Longitude, v.City, v.State, v.Country, v.PostalCode, v.FullAddress,
			v.LocationAccuracy, v.LocationSource, v.VisitedAt,
		)
	}

	results := r.repo.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range visits {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert visit %d: %w", i, err)
		}
	}
	return nil
}

// GetByID returns one stored visit.
func (r *VisitRepository) GetByID(ctx context.Context, visitID string) (*model.Visit, error) {
	var v model.Visit
	err := r.repo.pool.QueryRow(ctx, `
		SELECT visit_id, event_id, referral_type, referral_code,
			device_type, os, browser, model, stable_hardware_id, ip_address,
			latitude, longitude, city, state, country, postal_code, full_address,
			location_accuracy, location_source, visited_at, created_at
		FROM visits WHERE visit_id = $1
	`, visitID).Scan(
		&v.VisitID, &v.EventID, &v.ReferralType, &v.ReferralCode,
		&v.DeviceType, &v.OS, &v.Browser, &v.Model, &v.StableHardwareID, &v.IPAddress,
		&v.Latitude, &v.Longitude, &v.City, &v.State, &v.Country, &v.PostalCode, &v.FullAddress,
		&v.LocationAccuracy, &v.LocationSource, &v.VisitedAt, &v.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get visit: %w", err)
	}
	return &v, nil
}
