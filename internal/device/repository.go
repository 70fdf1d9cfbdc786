package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// List retrieves all devices with their tags.
	List(ctx context.Context) ([]Device, error)

	// Get retrieves a device by name.
	// Returns ErrDeviceNotFound if the device does not exist.
	Get(ctx context.Context, name string) (*Device, error)

	// Create inserts a new device and any tags it already carries.
	// Returns ErrDeviceExists if the name is taken.
	Create(ctx context.Context, device *Device) error

	// Delete removes a device and its tags.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, name string) error

	// SetDeviceTags replaces the stored tag collection of a device with
	// device.Tags. Runtime values are not stored.
	// Returns ErrDeviceNotFound if the device does not exist.
	SetDeviceTags(ctx context.Context, device *Device) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectTagsColumns = `device_name, id, name, label, type, address, memaddress, options, min, max`

// List retrieves all devices ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	devices, err := r.queryDevices(ctx)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(devices))
	for i := range devices {
		index[devices[i].Name] = i
	}

	err = r.queryTags(ctx, func(deviceName string, t *Tag) {
		if i, ok := index[deviceName]; ok {
			addLoadedTag(&devices[i], t)
		}
	}, `
		SELECT `+selectTagsColumns+`
		FROM device_tags
		ORDER BY device_name, position`)
	if err != nil {
		return nil, err
	}

	for i := range devices {
		devices[i].Normalise()
	}
	return devices, nil
}

// Get retrieves a device by name.
func (r *SQLiteRepository) Get(ctx context.Context, name string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT name, type, created_at, updated_at
		FROM devices
		WHERE name = ?`, name)
	d, err := scanDeviceRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}

	err = r.queryTags(ctx, func(_ string, t *Tag) {
		addLoadedTag(d, t)
	}, `
		SELECT `+selectTagsColumns+`
		FROM device_tags
		WHERE device_name = ?
		ORDER BY position`, name)
	if err != nil {
		return nil, err
	}

	d.Normalise()
	return d, nil
}

// queryDevices returns every device row without tags. Rows are closed before
// returning so the single pooled connection is free for the tag query.
func (r *SQLiteRepository) queryDevices(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, type, created_at, updated_at
		FROM devices
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, scanErr := scanDeviceRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

func (r *SQLiteRepository) queryTags(ctx context.Context, fn func(deviceName string, t *Tag), query string, args ...any) error {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying device tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		deviceName, t, scanErr := scanTagRow(rows)
		if scanErr != nil {
			return scanErr
		}
		fn(deviceName, t)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating device tags: %w", err)
	}
	return nil
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now
	if device.Tags == nil {
		device.Tags = make(map[string]*Tag)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.ExecContext(ctx, `
		INSERT INTO devices (name, type, created_at, updated_at)
		VALUES (?, ?, ?, ?)`,
		device.Name,
		string(device.Type),
		device.CreatedAt.Format(time.RFC3339),
		device.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	if err := insertTags(ctx, tx, device); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing device: %w", err)
	}
	return nil
}

// Delete removes a device and its tags.
func (r *SQLiteRepository) Delete(ctx context.Context, name string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx, `DELETE FROM device_tags WHERE device_name = ?`, name); err != nil {
		return fmt.Errorf("deleting device tags: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM devices WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrDeviceNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}
	return nil
}

// SetDeviceTags replaces the stored tags of a device in one transaction.
func (r *SQLiteRepository) SetDeviceTags(ctx context.Context, device *Device) error {
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	result, err := tx.ExecContext(ctx,
		`UPDATE devices SET updated_at = ? WHERE name = ?`,
		now.Format(time.RFC3339), device.Name)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrDeviceNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM device_tags WHERE device_name = ?`, device.Name); err != nil {
		return fmt.Errorf("clearing device tags: %w", err)
	}
	if err := insertTags(ctx, tx, device); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing device tags: %w", err)
	}
	device.UpdatedAt = now
	return nil
}

// insertTags writes every tag of device in key order. The position column
// preserves that order for reads.
func insertTags(ctx context.Context, tx *sql.Tx, device *Device) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO device_tags (device_name, position, id, name, label, type,
			address, memaddress, options, min, max)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing tag insert: %w", err)
	}
	defer stmt.Close()

	for pos, key := range sortedKeys(device.Tags) {
		t := device.Tags[key]
		if t == nil {
			continue
		}
		opts, err := marshalOptions(t.Options)
		if err != nil {
			return err
		}
		id := t.ID
		if id == "" {
			id = key
		}
		_, err = stmt.ExecContext(ctx,
			device.Name, pos, id, t.Name,
			nullableString(t.Label), nullableString(t.Type),
			nullableString(t.Address), nullableString(t.MemAddress),
			opts, nullableFloat(t.Min), nullableFloat(t.Max),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("%w: duplicate id %q", ErrInvalidTag, id)
			}
			return fmt.Errorf("inserting tag %q: %w", id, err)
		}
	}
	return nil
}

// rowScanner is implemented by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeviceRow(scanner rowScanner) (*Device, error) {
	var d Device
	var deviceType, createdAt, updatedAt string

	if err := scanner.Scan(&d.Name, &deviceType, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning device: %w", err)
	}
	d.Type = DeviceType(deviceType)
	d.Tags = make(map[string]*Tag)

	var err error
	d.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &d, nil
}

func scanTagRow(scanner rowScanner) (string, *Tag, error) {
	var deviceName string
	var t Tag
	var label, tagType, address, memAddress, options sql.NullString
	var minV, maxV sql.NullFloat64

	err := scanner.Scan(&deviceName, &t.ID, &t.Name, &label, &tagType,
		&address, &memAddress, &options, &minV, &maxV)
	if err != nil {
		return "", nil, fmt.Errorf("scanning tag: %w", err)
	}

	t.Label = label.String
	t.Type = tagType.String
	t.Address = address.String
	t.MemAddress = memAddress.String
	if minV.Valid {
		v := minV.Float64
		t.Min = &v
	}
	if maxV.Valid {
		v := maxV.Float64
		t.Max = &v
	}
	if options.Valid && options.String != "" {
		var opts TagOptions
		if err := json.Unmarshal([]byte(options.String), &opts); err != nil {
			return "", nil, fmt.Errorf("unmarshalling tag options: %w", err)
		}
		t.Options = &opts
	}
	return deviceName, &t, nil
}

// addLoadedTag keys a stored tag by its ID, or its name for records written
// without one. Later rows with the same key are dropped.
func addLoadedTag(d *Device, t *Tag) {
	key := t.ID
	if key == "" {
		key = t.Name
	}
	if _, exists := d.Tags[key]; exists {
		return
	}
	d.Tags[key] = t
}

func marshalOptions(opts *TagOptions) (sql.NullString, error) {
	if opts == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(opts)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshalling tag options: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// nullableString returns a sql.NullString, treating "" as NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
