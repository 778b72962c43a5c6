package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"guardslot/internal/config"
	"guardslot/internal/model"
)

// SyncProvidersFromConfig applies providers.yaml to the database.
// Listed providers are upserted with a fresh version and their services and weekly
// rules replaced. Providers missing from the file become inactive.
func (db *DB) SyncProvidersFromConfig(ctx context.Context, cfg *config.ProvidersConfig) error {
	if cfg == nil {
		return fmt.Errorf("providers config is nil")
	}

	now := time.Now()
	version := now.UnixNano()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sync: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Retire every row first so api keys can move between providers within one sync.
	// Providers still listed are reactivated by the upsert below.
	if _, err := tx.ExecContext(ctx, `UPDATE providers SET is_active = 0, api_key = 'retired:' || id`); err != nil {
		return fmt.Errorf("retire providers: %w", err)
	}

	for _, p := range cfg.Providers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO providers (id, api_key, name, business, avatar, timezone, is_active, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				api_key = excluded.api_key,
				name = excluded.name,
				business = excluded.business,
				avatar = excluded.avatar,
				timezone = excluded.timezone,
				is_active = 1,
				version = excluded.version,
				updated_at = excluded.updated_at`,
			p.ID, p.APIKey, p.Name, p.Business, p.Avatar, p.Timezone, version, now, now,
		); err != nil {
			return fmt.Errorf("sync provider %s: %w", p.ID, err)
		}

		if err := replaceSchedule(ctx, tx, p); err != nil {
			return fmt.Errorf("sync provider %s schedule: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

func replaceSchedule(ctx context.Context, tx *sql.Tx, p config.ProviderConfig) error {
	for _, q := range []string{
		`DELETE FROM break_times WHERE provider_id = ?`,
		`DELETE FROM availability_rules WHERE provider_id = ?`,
		`DELETE FROM services WHERE provider_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, p.ID); err != nil {
			return err
		}
	}

	for i, svc := range p.Services {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO services (provider_id, position, id, name, duration, price, description) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ID, i, svc.ID, svc.Name, svc.Duration, svc.Price, svc.Description,
		); err != nil {
			return fmt.Errorf("service %s: %w", svc.ID, err)
		}
	}

	for i, rule := range p.Availability {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO availability_rules (provider_id, position, day_of_week, start_time, end_time) VALUES (?, ?, ?, ?, ?)`,
			p.ID, i, rule.DayOfWeek, rule.StartTime, rule.EndTime,
		); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
		for j, br := range rule.BreakTimes {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO break_times (provider_id, rule_position, position, start_time, end_time) VALUES (?, ?, ?, ?, ?)`,
				p.ID, i, j, br.Start, br.End,
			); err != nil {
				return fmt.Errorf("rule %d break %d: %w", i, j, err)
			}
		}
	}
	return nil
}

const providerColumns = `id, api_key, name, COALESCE(business, ''), COALESCE(avatar, ''), COALESCE(timezone, ''), version`

// ProviderByAPIKey loads an active provider by its public booking key.
func (db *DB) ProviderByAPIKey(ctx context.Context, apiKey string) (*model.Provider, error) {
	row := db.QueryRowContext(ctx, `SELECT `+providerColumns+` FROM providers WHERE api_key = ? AND is_active = 1`, apiKey)
	return db.loadProvider(ctx, row)
}

// ProviderByID loads an active provider by id.
func (db *DB) ProviderByID(ctx context.Context, id string) (*model.Provider, error) {
	row := db.QueryRowContext(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = ? AND is_active = 1`, id)
	return db.loadProvider(ctx, row)
}

// ListProviders returns all active providers ordered by id.
func (db *DB) ListProviders(ctx context.Context) ([]model.Provider, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM providers WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]model.Provider, 0, len(ids))
	for _, id := range ids {
		p, err := db.ProviderByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func (db *DB) loadProvider(ctx context.Context, row *sql.Row) (*model.Provider, error) {
	var p model.Provider
	if err := row.Scan(&p.ID, &p.APIKey, &p.Name, &p.Business, &p.Avatar, &p.Timezone, &p.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load provider: %w", err)
	}

	services, err := db.loadServices(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Services = services

	rules, err := db.loadRules(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Availability = rules
	return &p, nil
}

func (db *DB) loadServices(ctx context.Context, providerID string) ([]model.Service, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, duration, price, COALESCE(description, '')
		FROM services WHERE provider_id = ? ORDER BY position`, providerID)
	if err != nil {
		return nil, fmt.Errorf("load services: %w", err)
	}
	defer rows.Close()

	out := []model.Service{}
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.Name, &s.Duration, &s.Price, &s.Description); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (db *DB) loadRules(ctx context.Context, providerID string) ([]model.AvailabilityRule, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT r.position, r.day_of_week, r.start_time, r.end_time, b.start_time, b.end_time
		FROM availability_rules r
		LEFT JOIN break_times b ON b.provider_id = r.provider_id AND b.rule_position = r.position
		WHERE r.provider_id = ?
		ORDER BY r.position, b.position`, providerID)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	defer rows.Close()

	out := []model.AvailabilityRule{}
	last := -1
	for rows.Next() {
		var (
			pos                  int
			rule                 model.AvailabilityRule
			breakStart, breakEnd sql.NullString
		)
		if err := rows.Scan(&pos, &rule.DayOfWeek, &rule.StartTime, &rule.EndTime, &breakStart, &breakEnd); err != nil {
			return nil, err
		}
		if pos != last {
			out = append(out, rule)
			last = pos
		}
		if breakStart.Valid {
			cur := &out[len(out)-1]
			cur.BreakTimes = append(cur.BreakTimes, model.BreakTime{Start: breakStart.String, End: breakEnd.String})
		}
	}
	return out, rows.Err()
}
