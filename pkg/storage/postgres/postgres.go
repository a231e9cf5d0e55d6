package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/pinstack/pinstack/pkg/hierarchy"
	"github.com/pinstack/pinstack/pkg/registry"
	"github.com/pinstack/pinstack/pkg/storage"
)

// PostgresStore implements registry.Store on PostgreSQL, with an optional
// Redis read-through cache in front of the hot lookups.
type PostgresStore struct {
	db    *sql.DB
	redis *RedisClient
}

// NewPostgresStore opens the connection pool, verifies connectivity, and
// ensures the schema. The Redis layer is attached only when caching is
// enabled and an address is configured.
func NewPostgresStore(config storage.Config) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(config.PostgresMaxConns)
	db.SetMaxIdleConns(config.PostgresMinConns)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), config.PostgresTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.ensureSchema(); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	if config.CacheEnabled && config.RedisURL != "" {
		redisClient, err := NewRedisClient(config)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis client: %w", err)
		}
		store.redis = redisClient
	}

	return store, nil
}

// DB exposes the connection pool so the audit feed and revision store can
// share it instead of opening their own.
func (s *PostgresStore) DB() *sql.DB { return s.db }

func (s *PostgresStore) ensureSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS axis_paths (
		axis VARCHAR(20) NOT NULL,
		path TEXT NOT NULL,
		PRIMARY KEY (axis, path)
	);

	CREATE TABLE IF NOT EXISTS packages (
		name VARCHAR(255) PRIMARY KEY,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS distributions (
		id BIGSERIAL PRIMARY KEY,
		package VARCHAR(255) NOT NULL REFERENCES packages(name),
		version TEXT NOT NULL,
		UNIQUE (package, version)
	);

	CREATE TABLE IF NOT EXISTS versionpins (
		id BIGSERIAL PRIMARY KEY,
		package VARCHAR(255) NOT NULL REFERENCES packages(name),
		role TEXT NOT NULL,
		level TEXT NOT NULL,
		site TEXT NOT NULL,
		platform TEXT NOT NULL,
		distribution_id BIGINT NOT NULL REFERENCES distributions(id),
		UNIQUE (package, role, level, site, platform)
	);

	CREATE TABLE IF NOT EXISTS withs (
		pin_id BIGINT NOT NULL REFERENCES versionpins(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		package VARCHAR(255) NOT NULL REFERENCES packages(name),
		PRIMARY KEY (pin_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_versionpins_package ON versionpins(package);
	CREATE INDEX IF NOT EXISTS idx_distributions_package ON distributions(package);
	`

	_, err := s.db.Exec(query)
	return err
}

// pq error class constants, matched by code rather than message text.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

func isPQCode(err error, code string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == code
}

func (s *PostgresStore) CreatePackage(ctx context.Context, pkg *registry.Package) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO packages (name) VALUES ($1) RETURNING created_at
	`, pkg.Name).Scan(&pkg.CreatedAt)
	if isPQCode(err, pqUniqueViolation) {
		return fmt.Errorf("%w: %q", registry.ErrDuplicatePackage, pkg.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to create package: %w", err)
	}

	if s.redis != nil {
		s.redis.InvalidatePackages(ctx)
	}
	return nil
}

func (s *PostgresStore) GetPackage(ctx context.Context, name string) (*registry.Package, error) {
	if s.redis != nil {
		if pkg, ok := s.redis.GetPackage(ctx, name); ok {
			return pkg, nil
		}
	}

	pkg := &registry.Package{}
	err := s.db.QueryRowContext(ctx, `
		SELECT name, created_at FROM packages WHERE name = $1
	`, name).Scan(&pkg.Name, &pkg.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", registry.ErrUnknownPackage, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get package: %w", err)
	}

	if s.redis != nil {
		s.redis.SetPackage(ctx, pkg)
	}
	return pkg, nil
}

func (s *PostgresStore) ListPackages(ctx context.Context) ([]*registry.Package, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, created_at FROM packages ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}
	defer rows.Close()

	packages := make([]*registry.Package, 0)
	for rows.Next() {
		pkg := &registry.Package{}
		if err := rows.Scan(&pkg.Name, &pkg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan package: %w", err)
		}
		packages = append(packages, pkg)
	}
	return packages, rows.Err()
}

func (s *PostgresStore) CreateDistribution(ctx context.Context, dist *registry.Distribution) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO distributions (package, version) VALUES ($1, $2) RETURNING id
	`, dist.Package, dist.VersionString()).Scan(&dist.ID)
	if isPQCode(err, pqUniqueViolation) {
		return fmt.Errorf("%w: %s", registry.ErrDuplicateDistribution, dist)
	}
	if isPQCode(err, pqForeignKeyViolation) {
		return fmt.Errorf("%w: %q", registry.ErrUnknownPackage, dist.Package)
	}
	if err != nil {
		return fmt.Errorf("failed to create distribution: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDistribution(ctx context.Context, id int64) (*registry.Distribution, error) {
	dist := &registry.Distribution{}
	var version string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, package, version FROM distributions WHERE id = $1
	`, id).Scan(&dist.ID, &dist.Package, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", registry.ErrUnknownDistribution, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get distribution: %w", err)
	}

	dist.Version, err = registry.ParseVersion(version)
	if err != nil {
		return nil, fmt.Errorf("stored version %q is corrupt: %w", version, err)
	}
	return dist, nil
}

func (s *PostgresStore) ListDistributions(ctx context.Context, pkg string) ([]*registry.Distribution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, package, version FROM distributions WHERE package = $1 ORDER BY id
	`, pkg)
	if err != nil {
		return nil, fmt.Errorf("failed to list distributions: %w", err)
	}
	defer rows.Close()

	dists := make([]*registry.Distribution, 0)
	for rows.Next() {
		dist := &registry.Distribution{}
		var version string
		if err := rows.Scan(&dist.ID, &dist.Package, &version); err != nil {
			return nil, fmt.Errorf("failed to scan distribution: %w", err)
		}
		if dist.Version, err = registry.ParseVersion(version); err != nil {
			return nil, fmt.Errorf("stored version %q is corrupt: %w", version, err)
		}
		dists = append(dists, dist)
	}
	return dists, rows.Err()
}

func (s *PostgresStore) CreatePin(ctx context.Context, pin *registry.VersionPin) error {
	c := pin.Coordinate
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO versionpins (package, role, level, site, platform, distribution_id)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id
	`, c.Package, c.Role.String(), c.Level.String(), c.Site.String(), c.Platform.String(),
		pin.Distribution.ID).Scan(&pin.ID)
	if isPQCode(err, pqUniqueViolation) {
		return fmt.Errorf("coordinate already pinned: %s", c)
	}
	if isPQCode(err, pqForeignKeyViolation) {
		return fmt.Errorf("%w: %q", registry.ErrUnknownPackage, c.Package)
	}
	if err != nil {
		return fmt.Errorf("failed to create pin: %w", err)
	}

	if s.redis != nil {
		s.redis.InvalidatePins(ctx, c.Package)
	}
	return nil
}

func (s *PostgresStore) UpdatePinDistribution(ctx context.Context, pinID int64, dist registry.Distribution) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE versionpins SET distribution_id = $1 WHERE id = $2
	`, dist.ID, pinID)
	if err != nil {
		return fmt.Errorf("failed to update pin: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update pin: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: id %d", registry.ErrUnknownPin, pinID)
	}

	if s.redis != nil {
		s.redis.InvalidatePins(ctx, dist.Package)
	}
	return nil
}

func (s *PostgresStore) GetPin(ctx context.Context, id int64) (*registry.VersionPin, error) {
	pins, err := s.queryPins(ctx, "p.id = $1", id)
	if err != nil {
		return nil, err
	}
	if len(pins) == 0 {
		return nil, fmt.Errorf("%w: id %d", registry.ErrUnknownPin, id)
	}
	return pins[0], nil
}

func (s *PostgresStore) GetPinByCoordinate(ctx context.Context, coord registry.Coordinate) (*registry.VersionPin, bool, error) {
	pins, err := s.queryPins(ctx,
		"p.package = $1 AND p.role = $2 AND p.level = $3 AND p.site = $4 AND p.platform = $5",
		coord.Package, coord.Role.String(), coord.Level.String(),
		coord.Site.String(), coord.Platform.String())
	if err != nil {
		return nil, false, err
	}
	if len(pins) == 0 {
		return nil, false, nil
	}
	return pins[0], true, nil
}

func (s *PostgresStore) PinsForPackage(ctx context.Context, pkg string) ([]*registry.VersionPin, error) {
	if s.redis != nil {
		if pins, ok := s.redis.GetPins(ctx, pkg); ok {
			return pins, nil
		}
	}

	pins, err := s.queryPins(ctx, "p.package = $1", pkg)
	if err != nil {
		return nil, err
	}

	if s.redis != nil {
		s.redis.SetPins(ctx, pkg, pins)
	}
	return pins, nil
}

// queryPins fetches pins matching the predicate, then their with lists in
// one batched query keyed by pin id.
func (s *PostgresStore) queryPins(ctx context.Context, where string, args ...interface{}) ([]*registry.VersionPin, error) {
	query := fmt.Sprintf(`
		SELECT p.id, p.package, p.role, p.level, p.site, p.platform,
			d.id, d.package, d.version
		FROM versionpins p
		JOIN distributions d ON d.id = p.distribution_id
		WHERE %s
		ORDER BY p.id
	`, where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pins: %w", err)
	}
	defer rows.Close()

	pins := make([]*registry.VersionPin, 0)
	ids := make([]int64, 0)
	byID := make(map[int64]*registry.VersionPin)
	for rows.Next() {
		var (
			pin                             registry.VersionPin
			pkg, role, level, site, platform string
			version                         string
		)
		err := rows.Scan(&pin.ID, &pkg, &role, &level, &site, &platform,
			&pin.Distribution.ID, &pin.Distribution.Package, &version)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pin: %w", err)
		}
		pin.Coordinate, err = registry.NewCoordinate(pkg, role, level, site, platform)
		if err != nil {
			return nil, fmt.Errorf("stored coordinate for pin %d is corrupt: %w", pin.ID, err)
		}
		pin.Distribution.Version, err = registry.ParseVersion(version)
		if err != nil {
			return nil, fmt.Errorf("stored version %q is corrupt: %w", version, err)
		}
		p := pin
		pins = append(pins, &p)
		ids = append(ids, p.ID)
		byID[p.ID] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pins: %w", err)
	}
	if len(pins) == 0 {
		return pins, nil
	}

	withRows, err := s.db.QueryContext(ctx, `
		SELECT pin_id, package FROM withs
		WHERE pin_id = ANY($1)
		ORDER BY pin_id, position
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query withs: %w", err)
	}
	defer withRows.Close()

	for withRows.Next() {
		var pinID int64
		var name string
		if err := withRows.Scan(&pinID, &name); err != nil {
			return nil, fmt.Errorf("failed to scan with: %w", err)
		}
		if pin, ok := byID[pinID]; ok {
			pin.Withs = append(pin.Withs, name)
		}
	}
	return pins, withRows.Err()
}

func (s *PostgresStore) SetWiths(ctx context.Context, pinID int64, names []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var pkg string
	err = tx.QueryRowContext(ctx, "SELECT package FROM versionpins WHERE id = $1", pinID).Scan(&pkg)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: id %d", registry.ErrUnknownPin, pinID)
	}
	if err != nil {
		return fmt.Errorf("failed to look up pin: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM withs WHERE pin_id = $1", pinID); err != nil {
		return fmt.Errorf("failed to clear withs: %w", err)
	}
	for i, name := range names {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO withs (pin_id, position, package) VALUES ($1, $2, $3)
		`, pinID, i, name)
		if isPQCode(err, pqForeignKeyViolation) {
			return fmt.Errorf("%w: %q", registry.ErrUnknownPackage, name)
		}
		if err != nil {
			return fmt.Errorf("failed to insert with: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit withs: %w", err)
	}

	if s.redis != nil {
		s.redis.InvalidatePins(ctx, pkg)
	}
	return nil
}

func (s *PostgresStore) RegisterPath(ctx context.Context, path hierarchy.Path) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO axis_paths (axis, path) VALUES ($1, $2)
		ON CONFLICT (axis, path) DO NOTHING
	`, string(path.Axis()), path.String())
	if err != nil {
		return fmt.Errorf("failed to register path: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPaths(ctx context.Context, axis hierarchy.Axis) ([]hierarchy.Path, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path FROM axis_paths WHERE axis = $1 ORDER BY path
	`, string(axis))
	if err != nil {
		return nil, fmt.Errorf("failed to list paths: %w", err)
	}
	defer rows.Close()

	paths := make([]hierarchy.Path, 0)
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("failed to scan path: %w", err)
		}
		p, err := hierarchy.ParsePath(axis, text)
		if err != nil {
			return nil, fmt.Errorf("stored path %q is corrupt: %w", text, err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close shuts down the pool and the cache connection.
func (s *PostgresStore) Close() error {
	if s.redis != nil {
		s.redis.Close()
	}
	return s.db.Close()
}
