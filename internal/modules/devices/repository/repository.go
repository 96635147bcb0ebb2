package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"weatherdash/internal/config"
	dbpkg "weatherdash/internal/db"
	"weatherdash/internal/types"
)

//go:embed sql/*.sql
var sqlFS embed.FS

const (
	getDeviceSQL       = "get-device.sql"
	insertDeviceSQL    = "insert-device.sql"
	listDevicesSQL     = "list-devices.sql"
	deleteDeviceSQL    = "delete-device.sql"
	updateStatusSQL    = "update-device-status.sql"
	getTelemetrySQL    = "get-telemetry.sql"
	insertTelemetrySQL = "insert-telemetry.sql"
	listTelemetrySQL   = "list-telemetry.sql"
	deleteTelemetrySQL = "delete-telemetry.sql"
)

// DeviceRepository stores devices and their telemetry. Get and delete
// methods return nil when the record does not exist.
type DeviceRepository interface {
	GetDevice(ctx context.Context, deviceID string) (*types.Device, error)
	CreateDevice(ctx context.Context, d types.Device) (types.Device, bool, error)
	ListDevices(ctx context.Context) ([]types.Device, error)
	DeleteDevice(ctx context.Context, deviceID string) (*types.Device, error)
	UpdateDeviceStatus(ctx context.Context, deviceID string, status *string) (*types.Device, error)

	GetTelemetry(ctx context.Context, key types.TelemetryKey) (*types.Telemetry, error)
	InsertTelemetry(ctx context.Context, t types.Telemetry) (types.Telemetry, bool, error)
	ListTelemetry(ctx context.Context, deviceID string, limit int) ([]types.Telemetry, error)
	DeleteTelemetry(ctx context.Context, key types.TelemetryKey) (*types.Telemetry, error)
}

type repositoryImpl struct {
	db      *sql.DB
	queries map[string]string
	now     func() time.Time
}

func NewRepository(db *sql.DB, tables config.Tables) (DeviceRepository, error) {
	queries, err := dbpkg.LoadQueries(sqlFS, "sql", tables,
		getDeviceSQL, insertDeviceSQL, listDevicesSQL, deleteDeviceSQL, updateStatusSQL,
		getTelemetrySQL, insertTelemetrySQL, listTelemetrySQL, deleteTelemetrySQL,
	)
	if err != nil {
		return nil, err
	}
	return &repositoryImpl{db: db, queries: queries, now: time.Now}, nil
}

func (r *repositoryImpl) GetDevice(ctx context.Context, deviceID string) (*types.Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx, r.queries[getDeviceSQL], deviceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get device %q: %w", deviceID, err)
	}
	return &d, nil
}

func (r *repositoryImpl) CreateDevice(ctx context.Context, d types.Device) (types.Device, bool, error) {
	res, err := r.db.ExecContext(ctx, r.queries[insertDeviceSQL], d.DeviceID, d.Owner, dbpkg.Nullable(d.Status), r.now().Unix())
	if err != nil {
		return types.Device{}, false, fmt.Errorf("insert device %q: %w", d.DeviceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return types.Device{}, false, fmt.Errorf("insert device %q: %w", d.DeviceID, err)
	}
	if n == 1 {
		return d, true, nil
	}
	existing, err := r.GetDevice(ctx, d.DeviceID)
	if err != nil {
		return types.Device{}, false, err
	}
	if existing == nil {
		return types.Device{}, false, fmt.Errorf("device %q vanished after conflict", d.DeviceID)
	}
	return *existing, false, nil
}

func (r *repositoryImpl) ListDevices(ctx context.Context) ([]types.Device, error) {
	rows, err := r.db.QueryContext(ctx, r.queries[listDevicesSQL])
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close devices rows", "error", err)
		}
	}()
	out := []types.Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) DeleteDevice(ctx context.Context, deviceID string) (*types.Device, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("delete device %q: begin: %w", deviceID, err)
	}
	defer func() { _ = tx.Rollback() }()

	d, err := scanDevice(tx.QueryRowContext(ctx, r.queries[getDeviceSQL], deviceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("delete device %q: %w", deviceID, err)
	}
	if _, err := tx.ExecContext(ctx, r.queries[deleteDeviceSQL], deviceID); err != nil {
		return nil, fmt.Errorf("delete device %q: %w", deviceID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("delete device %q: commit: %w", deviceID, err)
	}
	return &d, nil
}

// UpdateDeviceStatus sets the reported status of a device. Owner and
// identity never change.
func (r *repositoryImpl) UpdateDeviceStatus(ctx context.Context, deviceID string, status *string) (*types.Device, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("update device %q: begin: %w", deviceID, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, r.queries[updateStatusSQL], deviceID, dbpkg.Nullable(status))
	if err != nil {
		return nil, fmt.Errorf("update device %q: %w", deviceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update device %q: %w", deviceID, err)
	}
	if n == 0 {
		return nil, nil
	}
	d, err := scanDevice(tx.QueryRowContext(ctx, r.queries[getDeviceSQL], deviceID))
	if err != nil {
		return nil, fmt.Errorf("update device %q: %w", deviceID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("update device %q: commit: %w", deviceID, err)
	}
	return &d, nil
}

func (r *repositoryImpl) GetTelemetry(ctx context.Context, key types.TelemetryKey) (*types.Telemetry, error) {
	t, err := scanTelemetry(r.db.QueryRowContext(ctx, r.queries[getTelemetrySQL], key.DeviceID, key.Timestamp))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get telemetry %s: %w", key, err)
	}
	return &t, nil
}

func (r *repositoryImpl) InsertTelemetry(ctx context.Context, t types.Telemetry) (types.Telemetry, bool, error) {
	res, err := r.db.ExecContext(ctx, r.queries[insertTelemetrySQL],
		t.DeviceID, t.Timestamp, dbpkg.Nullable(t.Temperature), dbpkg.Nullable(t.Humidity), t.Owner)
	if err != nil {
		return types.Telemetry{}, false, fmt.Errorf("insert telemetry %s: %w", t.Key(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return types.Telemetry{}, false, fmt.Errorf("insert telemetry %s: %w", t.Key(), err)
	}
	if n == 1 {
		return t, true, nil
	}
	existing, err := r.GetTelemetry(ctx, t.Key())
	if err != nil {
		return types.Telemetry{}, false, err
	}
	if existing == nil {
		return types.Telemetry{}, false, fmt.Errorf("telemetry %s vanished after conflict", t.Key())
	}
	return *existing, false, nil
}

func (r *repositoryImpl) ListTelemetry(ctx context.Context, deviceID string, limit int) ([]types.Telemetry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, r.queries[listTelemetrySQL], deviceID, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list telemetry: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close telemetry rows", "error", err)
		}
	}()
	out := []types.Telemetry{}
	for rows.Next() {
		t, err := scanTelemetry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) DeleteTelemetry(ctx context.Context, key types.TelemetryKey) (*types.Telemetry, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("delete telemetry %s: begin: %w", key, err)
	}
	defer func() { _ = tx.Rollback() }()

	t, err := scanTelemetry(tx.QueryRowContext(ctx, r.queries[getTelemetrySQL], key.DeviceID, key.Timestamp))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("delete telemetry %s: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, r.queries[deleteTelemetrySQL], key.DeviceID, key.Timestamp); err != nil {
		return nil, fmt.Errorf("delete telemetry %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("delete telemetry %s: commit: %w", key, err)
	}
	return &t, nil
}

func scanDevice(row dbpkg.Scanner) (types.Device, error) {
	var d types.Device
	var status sql.NullString
	if err := row.Scan(&d.DeviceID, &d.Owner, &status); err != nil {
		return types.Device{}, err
	}
	d.Status = dbpkg.StringPtr(status)
	return d, nil
}

func scanTelemetry(row dbpkg.Scanner) (types.Telemetry, error) {
	var t types.Telemetry
	var temperature, humidity sql.NullFloat64
	if err := row.Scan(&t.DeviceID, &t.Timestamp, &temperature, &humidity, &t.Owner); err != nil {
		return types.Telemetry{}, err
	}
	t.Temperature = dbpkg.FloatPtr(temperature)
	t.Humidity = dbpkg.FloatPtr(humidity)
	return t, nil
}
