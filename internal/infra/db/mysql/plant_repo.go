package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	driver "github.com/go-sql-driver/mysql"

	domain "github.com/bryanwahyu/leaflens/internal/domain/plants"
)

// errDupEntry is ER_DUP_ENTRY.
const errDupEntry = 1062

const location = "mysql:plants"

var _ domain.Store = (*PlantRepository)(nil)

type PlantRepository struct {
	db          *sql.DB
	initialized atomic.Bool
}

func NewPlantRepository(db *sql.DB) *PlantRepository {
	return &PlantRepository{db: db}
}

// Initialize creates the plants table when missing.
func (r *PlantRepository) Initialize(ctx context.Context) error {
	if r.initialized.Load() {
		return nil
	}
	const q = `
CREATE TABLE IF NOT EXISTS plants (
  seq          BIGINT AUTO_INCREMENT PRIMARY KEY,
  id           VARCHAR(64)  NOT NULL,
  name         VARCHAR(255) NOT NULL DEFAULT '',
  species      VARCHAR(255) NOT NULL,
  diagnosis    TEXT         NOT NULL,
  treatments   JSON         NOT NULL,
  confidence   DOUBLE       NOT NULL,
  severity     VARCHAR(16)  NOT NULL,
  plant_health VARCHAR(16)  NOT NULL,
  date         DATETIME(6)  NOT NULL,
  notes        TEXT         NOT NULL,
  image        LONGTEXT     NOT NULL,
  report_url   VARCHAR(1024) NOT NULL DEFAULT '',
  UNIQUE KEY uq_plants_id (id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`
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
			treatments string
			date       time.Time
		)
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Species, &p.Diagnosis, &treatments, &p.Confidence,
			&p.Severity, &p.PlantHealth, &date, &p.Notes, &p.Image, &p.ReportURL,
		); err != nil {
			return nil, err
		}
		if p.Treatments, err = decodeTreatments(treatments); err != nil {
			return nil, fmt.Errorf("plant %s treatments: %w", p.ID, err)
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
	treatments, err := encodeTreatments(p.Treatments)
	if err != nil {
		return &domain.PersistenceError{Path: location, Err: err}
	}
	const q = `
INSERT INTO plants
  (id, name, species, diagnosis, treatments, confidence,
   severity, plant_health, date, notes, image, report_url)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?);`
	_, err = r.db.ExecContext(ctx, q,
		p.ID, p.Name, p.Species, p.Diagnosis, treatments, p.Confidence,
		p.Severity, p.PlantHealth, p.Date.UTC(), p.Notes, p.Image, p.ReportURL,
	)
	if err != nil {
		var me *driver.MySQLError
		if errors.As(err, &me) && me.Number == errDupEntry {
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
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM plants WHERE id = ? LIMIT 1;`, id).Scan(&one)
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
