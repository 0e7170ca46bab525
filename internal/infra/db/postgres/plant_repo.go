package postgres

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"time"

	"github.com/lib/pq"

	domain "github.com/bryanwahyu/leaflens/internal/domain/plants"
)

// uniqueViolation is SQLSTATE 23505.
const uniqueViolation = pq.ErrorCode("23505")

const location = "postgres:plants"

var _ domain.Store = (*PlantRepository)(nil)

type PlantRepository struct {
	db          *sql.DB
	initialized atomic.Bool
}

func NewPlantRepository(db *sql.DB) *PlantRepository { return &PlantRepository{db: db} }

// Initialize creates the plants table when missing.
func (r *PlantRepository) Initialize(ctx context.Context) error {
	if r.initialized.Load() {
		return nil
	}
	const q = `
CREATE TABLE IF NOT EXISTS plants (
  seq          BIGSERIAL PRIMARY KEY,
  id           TEXT NOT NULL UNIQUE,
  name         TEXT NOT NULL DEFAULT '',
  species      TEXT NOT NULL,
  diagnosis    TEXT NOT NULL,
  treatments   TEXT[] NOT NULL DEFAULT '{}',
  confidence   DOUBLE PRECISION NOT NULL,
  severity     TEXT NOT NULL,
  plant_health TEXT NOT NULL,
  date         TIMESTAMPTZ NOT NULL,
  notes        TEXT NOT NULL DEFAULT '',
  image        TEXT NOT NULL DEFAULT '',
  report_url   TEXT NOT NULL DEFAULT ''
);`
	if _, err := r.db.ExecContext(ctx, q); err != nil {
		return &domain.InitializationError{Path: location, Err: err}
	}
	r.initialized.Store(true)
	return nil
}

// ListAll returns every plant in insertion order.
func (r *PlantRepository) ListAll(ctx context.Context) ([]domain.Plant, error) {
	if !r.initialized.Load() {
		return nil, domain.ErrNotInitialized
	}
	const q = `
SELECT id, name, species, diagnosis, treatments, confidence,
       severity, plant_health, date, notes, image, report_url
FROM plants
ORDER BY seq ASC;`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Plant{}
	for rows.Next() {
		var (
			p          domain.Plant
			treatments pq.StringArray
			date       time.Time
		)
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Species, &p.Diagnosis, &treatments, &p.Confidence,
			&p.Severity, &p.PlantHealth, &date, &p.Notes, &p.Image, &p.ReportURL,
		); err != nil {
			return nil, err
		}
		p.Treatments = []string(treatments)
		if p.Treatments == nil {
			p.Treatments = []string{}
		}
		p.Date = date.UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// Append inserts one plant. A duplicate id maps to ErrDuplicateID.
func (r *PlantRepository) Append(ctx context.Context, p domain.Plant) error {
	if !r.initialized.Load() {
		return domain.ErrNotInitialized
	}
	treatments := p.Treatments
	if treatments == nil {
		treatments = []string{}
	}
	const q = `
INSERT INTO plants
  (id, name, species, diagnosis, treatments, confidence,
   severity, plant_health, date, notes, image, report_url)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);`
	_, err := r.db.ExecContext(ctx, q,
		p.ID, p.Name, p.Species, p.Diagnosis, pq.Array(treatments), p.Confidence,
		p.Severity, p.PlantHealth, p.Date.UTC(), p.Notes, p.Image, p.ReportURL,
	)
	if err != nil {
		var pe *pq.Error
		if errors.As(err, &pe) && pe.Code == uniqueViolation {
			return domain.ErrDuplicateID
		}
		return &domain.PersistenceError{Path: location, Err: err}
	}
	return nil
}

// Exists looks the id up through the unique index.
func (r *PlantRepository) Exists(ctx context.Context, id domain.PlantID) (bool, error) {
	if !r.initialized.Load() {
		return false, domain.ErrNotInitialized
	}
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM plants WHERE id = $1 LIMIT 1;`, id).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// Check pings the database.
func (r *PlantRepository) Check(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
