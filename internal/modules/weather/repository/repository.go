package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"weatherdash/internal/config"
	dbpkg "weatherdash/internal/db"
	"weatherdash/internal/types"
)

//go:embed sql/*.sql
var sqlFS embed.FS

const (
	getStationSQL    = "get-station.sql"
	insertStationSQL = "insert-station.sql"
	listStationsSQL  = "list-stations.sql"
	getSampleSQL     = "get-sample.sql"
	insertSampleSQL  = "insert-sample.sql"
	listSamplesSQL   = "list-samples.sql"
	deleteSampleSQL  = "delete-sample.sql"
)

// WeatherRepository stores weather stations and the samples recorded for them.
// Get methods return (nil, nil) when the record does not exist.
type WeatherRepository interface {
	GetStation(ctx context.Context, stationKey string) (*types.WeatherStation, error)
	CreateStation(ctx context.Context, st types.WeatherStation) (types.WeatherStation, bool, error)
	ListStations(ctx context.Context) ([]types.WeatherStation, error)

	GetSample(ctx context.Context, key types.SampleKey) (*types.WeatherSample, error)
	// InsertSample stores s unless a sample with the same identity exists. It
	// returns the stored record and whether this call created it.
	InsertSample(ctx context.Context, s types.WeatherSample) (types.WeatherSample, bool, error)
	ListSamples(ctx context.Context, q SampleQuery) ([]types.WeatherSample, error)
	DeleteSample(ctx context.Context, key types.SampleKey) (*types.WeatherSample, error)
}

// SampleQuery selects samples newest first. Zero From/To leave that side of
// the window open; an empty StationKey matches every station.
type SampleQuery struct {
	StationKey string
	From       int64
	To         int64
	Limit      int
}

type repositoryImpl struct {
	db      *sql.DB
	queries map[string]string
	now     func() time.Time
}

func NewRepository(db *sql.DB, tables config.Tables) (WeatherRepository, error) {
	queries, err := dbpkg.LoadQueries(sqlFS, "sql", tables,
		getStationSQL, insertStationSQL, listStationsSQL,
		getSampleSQL, insertSampleSQL, listSamplesSQL, deleteSampleSQL,
	)
	if err != nil {
		return nil, err
	}
	return &repositoryImpl{db: db, queries: queries, now: time.Now}, nil
}

func (r *repositoryImpl) GetStation(ctx context.Context, stationKey string) (*types.WeatherStation, error) {
	var st types.WeatherStation
	err := r.db.QueryRowContext(ctx, r.queries[getStationSQL], stationKey).Scan(&st.StationKey, &st.Owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get station %q: %w", stationKey, err)
	}
	return &st, nil
}

func (r *repositoryImpl) CreateStation(ctx context.Context, st types.WeatherStation) (types.WeatherStation, bool, error) {
	res, err := r.db.ExecContext(ctx, r.queries[insertStationSQL], st.StationKey, st.Owner, r.now().Unix())
	if err != nil {
		return types.WeatherStation{}, false, fmt.Errorf("insert station %q: %w", st.StationKey, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return types.WeatherStation{}, false, fmt.Errorf("insert station %q: %w", st.StationKey, err)
	}
	if n == 1 {
		return st, true, nil
	}
	existing, err := r.GetStation(ctx, st.StationKey)
	if err != nil {
		return types.WeatherStation{}, false, err
	}
	if existing == nil {
		return types.WeatherStation{}, false, fmt.Errorf("station %q vanished after conflict", st.StationKey)
	}
	return *existing, false, nil
}

func (r *repositoryImpl) ListStations(ctx context.Context) ([]types.WeatherStation, error) {
	rows, err := r.db.QueryContext(ctx, r.queries[listStationsSQL])
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close stations rows", "error", err)
		}
	}()
	out := []types.WeatherStation{}
	for rows.Next() {
		var st types.WeatherStation
		if err := rows.Scan(&st.StationKey, &st.Owner); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) GetSample(ctx context.Context, key types.SampleKey) (*types.WeatherSample, error) {
	s, err := scanSample(r.db.QueryRowContext(ctx, r.queries[getSampleSQL], key.StationKey, key.Timestamp))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sample %s: %w", key, err)
	}
	return &s, nil
}

func (r *repositoryImpl) InsertSample(ctx context.Context, s types.WeatherSample) (types.WeatherSample, bool, error) {
	res, err := r.db.ExecContext(ctx, r.queries[insertSampleSQL],
		s.StationKey, s.Timestamp,
		dbpkg.Nullable(s.Temperature), dbpkg.Nullable(s.Quality),
		dbpkg.Nullable(s.Latitude), dbpkg.Nullable(s.Longitude), dbpkg.Nullable(s.Height),
		dbpkg.Nullable(s.StationName), s.Owner,
	)
	if err != nil {
		return types.WeatherSample{}, false, fmt.Errorf("insert sample %s: %w", s.Key(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return types.WeatherSample{}, false, fmt.Errorf("insert sample %s: %w", s.Key(), err)
	}
	if n == 1 {
		return s, true, nil
	}
	existing, err := r.GetSample(ctx, s.Key())
	if err != nil {
		return types.WeatherSample{}, false, err
	}
	if existing == nil {
		return types.WeatherSample{}, false, fmt.Errorf("sample %s vanished after conflict", s.Key())
	}
	return *existing, false, nil
}

func (r *repositoryImpl) ListSamples(ctx context.Context, q SampleQuery) ([]types.WeatherSample, error) {
	to := q.To
	if to == 0 {
		to = math.MaxInt64
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, r.queries[listSamplesSQL], q.StationKey, q.StationKey, q.From, to, limit)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close samples rows", "error", err)
		}
	}()
	out := []types.WeatherSample{}
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) DeleteSample(ctx context.Context, key types.SampleKey) (*types.WeatherSample, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("delete sample %s: begin: %w", key, err)
	}
	defer func() { _ = tx.Rollback() }()

	s, err := scanSample(tx.QueryRowContext(ctx, r.queries[getSampleSQL], key.StationKey, key.Timestamp))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("delete sample %s: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, r.queries[deleteSampleSQL], key.StationKey, key.Timestamp); err != nil {
		return nil, fmt.Errorf("delete sample %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("delete sample %s: commit: %w", key, err)
	}
	return &s, nil
}

func scanSample(row dbpkg.Scanner) (types.WeatherSample, error) {
	var (
		s                          types.WeatherSample
		temperature, lat, lon, hgt sql.NullFloat64
		quality, stationName       sql.NullString
	)
	if err := row.Scan(&s.StationKey, &s.Timestamp, &temperature, &quality, &lat, &lon, &hgt, &stationName, &s.Owner); err != nil {
		return types.WeatherSample{}, err
	}
	s.Temperature = dbpkg.FloatPtr(temperature)
	s.Quality = dbpkg.StringPtr(quality)
	s.Latitude = dbpkg.FloatPtr(lat)
	s.Longitude = dbpkg.FloatPtr(lon)
	s.Height = dbpkg.FloatPtr(hgt)
	s.StationName = dbpkg.StringPtr(stationName)
	return s, nil
}
