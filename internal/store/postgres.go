package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"geo_gate/internal/dataType"
)

// PostgresRuleStore persists shops, settings and rules. List columns are
// stored as comma separated text.
type PostgresRuleStore struct {
	conn *sql.DB
}

func NewPostgresRuleStore(dsn string) (*PostgresRuleStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PostgresRuleStore{conn: db}, nil
}

func (s *PostgresRuleStore) Close() error {
	return s.conn.Close()
}

func (s *PostgresRuleStore) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *PostgresRuleStore) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS shops (
		domain TEXT PRIMARY KEY,
		plan TEXT CHECK (plan IN ('free', 'premium', 'plus')) DEFAULT 'free',
		installed_at TIMESTAMP DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS geo_settings (
		shop TEXT PRIMARY KEY REFERENCES shops(domain) ON DELETE CASCADE,
		mode TEXT CHECK (mode IN ('popup', 'auto_redirect', 'disabled')) DEFAULT 'popup',
		excluded_ips TEXT NOT NULL DEFAULT '',
		exclude_bots BOOLEAN DEFAULT true,
		cookie_duration INT DEFAULT 7,
		popup JSONB NOT NULL DEFAULT '{}',
		blocked JSONB NOT NULL DEFAULT '{}',
		updated_at TIMESTAMP DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS geo_rules (
		id TEXT PRIMARY KEY,
		shop TEXT NOT NULL REFERENCES shops(domain) ON DELETE CASCADE,
		name TEXT NOT NULL DEFAULT '',
		match_type TEXT NOT NULL CHECK (match_type IN ('country', 'ip')),
		country_codes TEXT NOT NULL DEFAULT '',
		ip_addresses TEXT NOT NULL DEFAULT '',
		target_url TEXT NOT NULL DEFAULT '',
		rule_type TEXT NOT NULL CHECK (rule_type IN ('redirect', 'block')),
		is_active BOOLEAN DEFAULT true,
		priority INT DEFAULT 0,
		schedule_enabled BOOLEAN DEFAULT false,
		start_time TEXT NOT NULL DEFAULT '',
		end_time TEXT NOT NULL DEFAULT '',
		days_of_week TEXT NOT NULL DEFAULT '',
		timezone TEXT NOT NULL DEFAULT 'UTC',
		created_at TIMESTAMP DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_geo_rules_shop ON geo_rules(shop, priority DESC, created_at);
	`
	_, err := s.conn.ExecContext(ctx, schema)
	return err
}

func (s *PostgresRuleStore) InstallShop(ctx context.Context, domain string, plan dataType.PlanKind) error {
	query := `INSERT INTO shops (domain, plan) VALUES ($1, $2)
		ON CONFLICT (domain) DO UPDATE SET plan = EXCLUDED.plan`
	_, err := s.conn.ExecContext(ctx, query, normDomain(domain), string(plan))
	return err
}

// SaveShop replaces the plan, settings and rules of a shop in one transaction.
func (s *PostgresRuleStore) SaveShop(ctx context.Context, shop dataType.Shop) error {
	domain := normDomain(shop.Domain)
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO shops (domain, plan) VALUES ($1, $2)
		ON CONFLICT (domain) DO UPDATE SET plan = EXCLUDED.plan`, domain, string(shop.Plan)); err != nil {
		return fmt.Errorf("save shop %s: %w", domain, err)
	}
	settings := shop.Settings
	settings.Shop = domain
	if err := upsertSettings(ctx, tx, settings); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM geo_rules WHERE shop = $1`, domain); err != nil {
		return fmt.Errorf("save shop %s: %w", domain, err)
	}
	for _, rule := range shop.Rules {
		rule.Shop = domain
		if err := upsertRule(ctx, tx, rule); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresRuleStore) GetPlan(ctx context.Context, domain string) (dataType.PlanKind, error) {
	var plan string
	err := s.conn.QueryRowContext(ctx, `SELECT plan FROM shops WHERE domain = $1`, normDomain(domain)).Scan(&plan)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrShopNotFound
	}
	if err != nil {
		return "", err
	}
	kind, err := dataType.ParsePlanKind(plan)
	if err != nil {
		return "", fmt.Errorf("shop %s: %w", domain, err)
	}
	return kind, nil
}

// GetSettings inserts the default row for an installed shop that has none yet.
func (s *PostgresRuleStore) GetSettings(ctx context.Context, domain string) (dataType.Settings, error) {
	domain = normDomain(domain)
	settings, err := s.selectSettings(ctx, domain)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return dataType.Settings{}, err
	}
	if _, err := s.GetPlan(ctx, domain); err != nil {
		return dataType.Settings{}, err
	}

	defaults := dataType.DefaultSettings(domain)
	popup, blocked, err := marshalTemplates(defaults)
	if err != nil {
		return dataType.Settings{}, err
	}
	query := `INSERT INTO geo_settings (shop, mode, excluded_ips, exclude_bots, cookie_duration, popup, blocked)
		VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (shop) DO NOTHING`
	if _, err := s.conn.ExecContext(ctx, query, domain, string(defaults.Mode), "", defaults.ExcludeBots,
		defaults.CookieDuration, popup, blocked); err != nil {
		return dataType.Settings{}, fmt.Errorf("create settings %s: %w", domain, err)
	}
	// a concurrent writer may have won the insert
	return s.selectSettings(ctx, domain)
}

func (s *PostgresRuleStore) selectSettings(ctx context.Context, domain string) (dataType.Settings, error) {
	settings := dataType.Settings{Shop: domain}
	var (
		mode, excluded string
		popup, blocked []byte
	)
	query := `SELECT mode, excluded_ips, exclude_bots, cookie_duration, popup, blocked FROM geo_settings WHERE shop = $1`
	err := s.conn.QueryRowContext(ctx, query, domain).Scan(&mode, &excluded, &settings.ExcludeBots,
		&settings.CookieDuration, &popup, &blocked)
	if err != nil {
		return dataType.Settings{}, err
	}
	if settings.Mode, err = dataType.ParseMode(mode); err != nil {
		return dataType.Settings{}, fmt.Errorf("settings %s: %w", domain, err)
	}
	settings.ExcludedIPs = dataType.ParseList(excluded)
	if err := json.Unmarshal(popup, &settings.Popup); err != nil {
		return dataType.Settings{}, fmt.Errorf("settings %s popup: %w", domain, err)
	}
	if err := json.Unmarshal(blocked, &settings.Blocked); err != nil {
		return dataType.Settings{}, fmt.Errorf("settings %s blocked: %w", domain, err)
	}
	return settings, nil
}

func (s *PostgresRuleStore) GetRules(ctx context.Context, domain string) ([]dataType.Rule, error) {
	domain = normDomain(domain)
	query := `SELECT id, shop, name, match_type, country_codes, ip_addresses, target_url, rule_type,
		is_active, priority, schedule_enabled, start_time, end_time, days_of_week, timezone, created_at
		FROM geo_rules WHERE shop = $1 ORDER BY priority DESC, created_at ASC`
	rows, err := s.conn.QueryContext(ctx, query, domain)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []dataType.Rule
	for rows.Next() {
		var (
			rule                       dataType.Rule
			matchType, ruleType        string
			countries, ips, daysOfWeek string
		)
		if err := rows.Scan(&rule.ID, &rule.Shop, &rule.Name, &matchType, &countries, &ips, &rule.TargetURL,
			&ruleType, &rule.IsActive, &rule.Priority, &rule.ScheduleEnabled, &rule.StartTime, &rule.EndTime,
			&daysOfWeek, &rule.Timezone, &rule.CreatedAt); err != nil {
			return nil, err
		}
		if rule.MatchType, err = dataType.ParseMatchType(matchType); err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.ID, err)
		}
		if rule.RuleType, err = dataType.ParseRuleType(ruleType); err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.ID, err)
		}
		rule.CountryCodes = dataType.ParseList(countries)
		rule.IPAddresses = dataType.ParseList(ips)
		rule.DaysOfWeek = dataType.ParseIntList(daysOfWeek)
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		if _, err := s.GetPlan(ctx, domain); err != nil {
			return nil, err
		}
	}
	return rules, nil
}

func (s *PostgresRuleStore) UpsertSettings(ctx context.Context, settings dataType.Settings) error {
	settings.Shop = normDomain(settings.Shop)
	return upsertSettings(ctx, s.conn, settings)
}

func (s *PostgresRuleStore) UpsertRule(ctx context.Context, rule dataType.Rule) error {
	rule.Shop = normDomain(rule.Shop)
	return upsertRule(ctx, s.conn, rule)
}

func (s *PostgresRuleStore) DeleteRule(ctx context.Context, domain, id string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM geo_rules WHERE shop = $1 AND id = $2`, normDomain(domain), id)
	return err
}

// DeleteShop relies on ON DELETE CASCADE for settings and rules.
func (s *PostgresRuleStore) DeleteShop(ctx context.Context, domain string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM shops WHERE domain = $1`, normDomain(domain))
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertSettings(ctx context.Context, db execer, settings dataType.Settings) error {
	if err := dataType.ValidateSettings(settings); err != nil {
		return err
	}
	popup, blocked, err := marshalTemplates(settings)
	if err != nil {
		return err
	}
	query := `INSERT INTO geo_settings (shop, mode, excluded_ips, exclude_bots, cookie_duration, popup, blocked, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (shop) DO UPDATE SET mode = EXCLUDED.mode, excluded_ips = EXCLUDED.excluded_ips,
			exclude_bots = EXCLUDED.exclude_bots, cookie_duration = EXCLUDED.cookie_duration,
			popup = EXCLUDED.popup, blocked = EXCLUDED.blocked, updated_at = now()`
	_, err = db.ExecContext(ctx, query, settings.Shop, string(settings.Mode), dataType.JoinList(settings.ExcludedIPs),
		settings.ExcludeBots, settings.CookieDuration, popup, blocked)
	if isForeignKeyViolation(err) {
		return ErrShopNotFound
	}
	if err != nil {
		return fmt.Errorf("upsert settings %s: %w", settings.Shop, err)
	}
	return nil
}

func upsertRule(ctx context.Context, db execer, rule dataType.Rule) error {
	if rule.ID == "" {
		return fmt.Errorf("upsert rule: empty id")
	}
	if err := dataType.ValidateRule(rule); err != nil {
		return err
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}
	if rule.Timezone == "" {
		rule.Timezone = "UTC"
	}
	query := `INSERT INTO geo_rules (id, shop, name, match_type, country_codes, ip_addresses, target_url, rule_type,
			is_active, priority, schedule_enabled, start_time, end_time, days_of_week, timezone, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, match_type = EXCLUDED.match_type,
			country_codes = EXCLUDED.country_codes, ip_addresses = EXCLUDED.ip_addresses,
			target_url = EXCLUDED.target_url, rule_type = EXCLUDED.rule_type, is_active = EXCLUDED.is_active,
			priority = EXCLUDED.priority, schedule_enabled = EXCLUDED.schedule_enabled,
			start_time = EXCLUDED.start_time, end_time = EXCLUDED.end_time,
			days_of_week = EXCLUDED.days_of_week, timezone = EXCLUDED.timezone
		WHERE geo_rules.shop = EXCLUDED.shop`
	_, err := db.ExecContext(ctx, query, rule.ID, rule.Shop, rule.Name, string(rule.MatchType),
		dataType.JoinList(rule.CountryCodes), dataType.JoinList(rule.IPAddresses), rule.TargetURL,
		string(rule.RuleType), rule.IsActive, rule.Priority, rule.ScheduleEnabled, rule.StartTime, rule.EndTime,
		dataType.JoinIntList(rule.DaysOfWeek), rule.Timezone, rule.CreatedAt)
	if isForeignKeyViolation(err) {
		return ErrShopNotFound
	}
	if err != nil {
		return fmt.Errorf("upsert rule %s: %w", rule.ID, err)
	}
	return nil
}

// jsonb parameters are sent as text; lib/pq would encode []byte as bytea
func marshalTemplates(settings dataType.Settings) (string, string, error) {
	popup, err := json.Marshal(settings.Popup)
	if err != nil {
		return "", "", err
	}
	blocked, err := json.Marshal(settings.Blocked)
	if err != nil {
		return "", "", err
	}
	return string(popup), string(blocked), nil
}

// 23503: the shop row referenced by settings or rules does not exist
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
