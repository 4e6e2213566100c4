package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/report"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var ErrNotFound = errors.New("not found")

// BBox is minLon, minLat, maxLon, maxLat, stored as a JSON array.
type BBox [4]float64

func (b BBox) Value() (driver.Value, error) {
	raw, err := json.Marshal([4]float64(b))
	return string(raw), err
}

func (b *BBox) Scan(src interface{}) error {
	return scanJSON(src, (*[4]float64)(b))
}

// Stats stores report.AreaStats as JSON.
type Stats report.AreaStats

func (s Stats) Value() (driver.Value, error) {
	raw, err := json.Marshal(report.AreaStats(s))
	return string(raw), err
}

func (s *Stats) Scan(src interface{}) error {
	return scanJSON(src, (*report.AreaStats)(s))
}

func scanJSON(src interface{}, dst interface{}) error {
	switch v := src.(type) {
	case string:
		return json.Unmarshal([]byte(v), dst)
	case []byte:
		return json.Unmarshal(v, dst)
	case nil:
		return nil
	}
	return fmt.Errorf("cannot scan %T as JSON", src)
}

type Port struct {
	ID        int64   `db:"id" json:"id"`
	Region    string  `db:"region" json:"region"`
	Name      string  `db:"port_name" json:"port_name"`
	BBox      BBox    `db:"bbox" json:"bbox"`
	Latitude  float64 `db:"latitude" json:"latitude"`
	Longitude float64 `db:"longitude" json:"longitude"`
	GeoJSON   string  `db:"geojson" json:"geojson,omitempty"`
}

type ChangeMap struct {
	ID        uuid.UUID     `db:"id" json:"id"`
	PortID    sql.NullInt64 `db:"port_id" json:"-"`
	Variant   string        `db:"variant" json:"variant"`
	PreDate   time.Time     `db:"pre_date" json:"pre_date"`
	PostDate  time.Time     `db:"post_date" json:"post_date"`
	PNG       []byte        `db:"change_map" json:"-"`
	AreaStats Stats         `db:"area_stats" json:"area_stats"`
	GeoJSON   string        `db:"geojson" json:"geojson,omitempty"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}

// Store persists ports and change map results in SQLite or PostGIS.
type Store struct {
	db     *sqlx.DB
	driver string
	logger logrus.FieldLogger
}

func Open(driverName, dsn string, logger logrus.FieldLogger) (*Store, error) {
	if driverName != DriverSQLite && driverName != DriverPostgres {
		return nil, fmt.Errorf("unsupported database driver %q", driverName)
	}
	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driverName, err)
	}
	if driverName == DriverSQLite {
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}
	return New(db, driverName, logger), nil
}

func New(db *sqlx.DB, driverName string, logger logrus.FieldLogger) *Store {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{db: db, driver: driverName, logger: logger.WithField("component", "store")}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreatePort(ctx context.Context, p *Port) error {
	query := s.db.Rebind(`
		INSERT INTO ports (region, port_name, bbox, latitude, longitude, geojson)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`)
	if err := s.db.GetContext(ctx, &p.ID, query, p.Region, p.Name, p.BBox, p.Latitude, p.Longitude, p.GeoJSON); err != nil {
		return fmt.Errorf("failed to insert port: %w", err)
	}
	return nil
}

func (s *Store) GetPort(ctx context.Context, id int64) (*Port, error) {
	var p Port
	query := s.db.Rebind(`
		SELECT id, region, port_name, bbox, latitude, longitude, geojson
		FROM ports
		WHERE id = ?`)
	if err := s.db.GetContext(ctx, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("port %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query port: %w", err)
	}
	return &p, nil
}

func (s *Store) ListPortsByRegion(ctx context.Context, region string) ([]Port, error) {
	var ports []Port
	query := s.db.Rebind(`
		SELECT id, region, port_name, bbox, latitude, longitude, geojson
		FROM ports
		WHERE region = ?
		ORDER BY port_name`)
	if err := s.db.SelectContext(ctx, &ports, query, region); err != nil {
		return nil, fmt.Errorf("failed to query ports: %w", err)
	}
	return ports, nil
}

// SaveChangeMap inserts c, assigning an ID and creation time when unset.
// On PostGIS the feature geometries are also stored in the geom column.
func (s *Store) SaveChangeMap(ctx context.Context, c *ChangeMap) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.AreaStats == nil {
		c.AreaStats = Stats{}
	}

	args := []interface{}{c.ID, c.PortID, c.Variant, c.PreDate.UTC(), c.PostDate.UTC(), c.PNG, c.AreaStats, c.GeoJSON, c.CreatedAt.UTC()}
	query := `
		INSERT INTO change_maps (id, port_id, variant, pre_date, post_date, change_map, area_stats, geojson, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if s.driver == DriverPostgres {
		geom, err := collectGeometry(c.GeoJSON)
		if err != nil {
			return err
		}
		query = `
			INSERT INTO change_maps (id, port_id, variant, pre_date, post_date, change_map, area_stats, geojson, created_at, geom)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ST_SetSRID(ST_GeomFromGeoJSON(?::text), 4326))`
		args = append(args, geom)
	}

	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to insert change map: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"id": c.ID, "variant": c.Variant}).Debug("change map saved")
	return nil
}

func (s *Store) GetChangeMap(ctx context.Context, id uuid.UUID) (*ChangeMap, error) {
	var c ChangeMap
	query := s.db.Rebind(`
		SELECT id, port_id, variant, pre_date, post_date, change_map, area_stats, geojson, created_at
		FROM change_maps
		WHERE id = ?`)
	if err := s.db.GetContext(ctx, &c, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("change map %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query change map: %w", err)
	}
	return &c, nil
}

// ListChangeMaps returns a port's change maps, newest post date first,
// without the PNG payload.
func (s *Store) ListChangeMaps(ctx context.Context, portID int64) ([]ChangeMap, error) {
	var maps []ChangeMap
	query := s.db.Rebind(`
		SELECT id, port_id, variant, pre_date, post_date, area_stats, geojson, created_at
		FROM change_maps
		WHERE port_id = ?
		ORDER BY post_date DESC, created_at DESC`)
	if err := s.db.SelectContext(ctx, &maps, query, portID); err != nil {
		return nil, fmt.Errorf("failed to query change maps: %w", err)
	}
	return maps, nil
}

// collectGeometry turns a FeatureCollection into a GeometryCollection
// GeoJSON string, or a NULL value when there is nothing to store.
func collectGeometry(raw string) (sql.NullString, error) {
	if raw == "" {
		return sql.NullString{}, nil
	}
	fc, err := geojson.UnmarshalFeatureCollection([]byte(raw))
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to parse change geojson: %w", err)
	}
	if len(fc.Features) == 0 {
		return sql.NullString{}, nil
	}
	collection := make(orb.Collection, 0, len(fc.Features))
	for _, f := range fc.Features {
		collection = append(collection, f.Geometry)
	}
	out, err := geojson.NewGeometry(collection).MarshalJSON()
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode geometry: %w", err)
	}
	return sql.NullString{String: string(out), Valid: true}, nil
}
