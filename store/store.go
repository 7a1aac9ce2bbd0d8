/*package store persists avalanche sizes and endpoints to a SQL database.
Runs are grouped into campaigns, each with its own id, so repeated campaigns
can be written to the same database. The "sqlite" and "mysql" drivers are
registered.
*/
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/phil-mansfield/tgem/avalanche"
	"github.com/phil-mansfield/tgem/geom"
)

// campaignsTable differs between drivers only in how ids are generated.
var campaignsTable = map[string]string{
	"sqlite": `CREATE TABLE IF NOT EXISTS campaigns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seed BIGINT NOT NULL,
		runs BIGINT NOT NULL,
		created BIGINT NOT NULL
	)`,
	"mysql": `CREATE TABLE IF NOT EXISTS campaigns (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		seed BIGINT NOT NULL,
		runs BIGINT NOT NULL,
		created BIGINT NOT NULL
	)`,
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		campaign_id BIGINT NOT NULL,
		run BIGINT NOT NULL,
		seed BIGINT NOT NULL,
		electrons BIGINT NOT NULL,
		ions BIGINT NOT NULL,
		truncated BOOLEAN NOT NULL,
		PRIMARY KEY (campaign_id, run)
	)`,
	`CREATE TABLE IF NOT EXISTS endpoints (
		campaign_id BIGINT NOT NULL,
		run BIGINT NOT NULL,
		spawn_index BIGINT NOT NULL,
		parent_index BIGINT NOT NULL,
		status VARCHAR(16) NOT NULL,
		x0 DOUBLE NOT NULL, y0 DOUBLE NOT NULL, z0 DOUBLE NOT NULL,
		t0 DOUBLE NOT NULL, e0 DOUBLE NOT NULL,
		x1 DOUBLE NOT NULL, y1 DOUBLE NOT NULL, z1 DOUBLE NOT NULL,
		t1 DOUBLE NOT NULL, e1 DOUBLE NOT NULL,
		PRIMARY KEY (campaign_id, run, spawn_index)
	)`,
}

// CampaignRow is one row of the campaigns table. Created is a Unix time.
type CampaignRow struct {
	ID      int64 `db:"id"`
	Seed    int64 `db:"seed"`
	Runs    int   `db:"runs"`
	Created int64 `db:"created"`
}

// Run is one row of the runs table.
type Run struct {
	Campaign  int64 `db:"campaign_id"`
	Run       int   `db:"run"`
	Seed      int64 `db:"seed"`
	Electrons int   `db:"electrons"`
	Ions      int   `db:"ions"`
	Truncated bool  `db:"truncated"`
}

type endpointRow struct {
	Campaign    int64   `db:"campaign_id"`
	Run         int     `db:"run"`
	SpawnIndex  int     `db:"spawn_index"`
	ParentIndex int     `db:"parent_index"`
	Status      string  `db:"status"`
	X0          float64 `db:"x0"`
	Y0          float64 `db:"y0"`
	Z0          float64 `db:"z0"`
	T0          float64 `db:"t0"`
	E0          float64 `db:"e0"`
	X1          float64 `db:"x1"`
	Y1          float64 `db:"y1"`
	Z1          float64 `db:"z1"`
	T1          float64 `db:"t1"`
	E1          float64 `db:"e1"`
}

func newEndpointRow(
	campaign int64, run int, ep avalanche.Endpoint,
) endpointRow {
	return endpointRow{
		Campaign: campaign, Run: run, SpawnIndex: ep.SpawnIndex, ParentIndex: ep.ParentIndex,
		Status: ep.Status.String(),
		X0: ep.Start.Pos[0], Y0: ep.Start.Pos[1], Z0: ep.Start.Pos[2],
		T0: ep.Start.Time, E0: ep.Start.Energy,
		X1: ep.End.Pos[0], Y1: ep.End.Pos[1], Z1: ep.End.Pos[2],
		T1: ep.End.Time, E1: ep.End.Energy,
	}
}

// Directions are not stored.
func (row *endpointRow) endpoint() (avalanche.Endpoint, error) {
	status, err := avalanche.ParseStatus(row.Status)
	if err != nil { return avalanche.Endpoint{}, err }
	return avalanche.Endpoint{
		Start: avalanche.State{
			Pos: geom.Vec{row.X0, row.Y0, row.Z0},
			Time: row.T0, Energy: row.E0,
		},
		End: avalanche.State{
			Pos: geom.Vec{row.X1, row.Y1, row.Z1},
			Time: row.T1, Energy: row.E1,
		},
		Status: status,
		SpawnIndex: row.SpawnIndex, ParentIndex: row.ParentIndex,
	}, nil
}

const insertEndpoint = `INSERT INTO endpoints (
	campaign_id, run, spawn_index, parent_index, status,
	x0, y0, z0, t0, e0, x1, y1, z1, t1, e1
) VALUES (
	:campaign_id, :run, :spawn_index, :parent_index, :status,
	:x0, :y0, :z0, :t0, :e0, :x1, :y1, :z1, :t1, :e1
)`

// Store is a connection to an avalanche database. Its methods may be called
// concurrently.
type Store struct {
	db     *sqlx.DB
	driver string
	log    *slog.Logger
	mu     sync.Mutex
}

// Open connects to a database. driver is "sqlite" or "mysql".
func Open(driver, dsn string) (*Store, error) {
	if driver != "sqlite" && driver != "mysql" {
		return nil, fmt.Errorf("unsupported database driver '%s'", driver)
	}
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	if driver == "sqlite" { db.SetMaxOpenConns(1) }

	log := slog.Default().With("module", "store")
	log.Info("connected to database", "driver", driver)
	return &Store{db: db, driver: driver, log: log}, nil
}

// Close closes the connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil { return nil }
	return s.db.Close()
}

// Migrate creates any missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := append([]string{campaignsTable[s.driver]}, schema...)
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("error creating tables: %w", err)
		}
	}
	return nil
}

// Campaign collects the runs of one campaign. It is a tgem.Sink.
type Campaign struct {
	ID    int64
	store *Store
}

// NewCampaign adds a campaign of runs avalanches starting from seed. Runs
// written through the returned Campaign are keyed by its ID, so any number
// of campaigns can share a database.
func (s *Store) NewCampaign(
	ctx context.Context, seed uint64, runs int,
) (*Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO campaigns (seed, runs, created) VALUES (?, ?, ?)`),
		int64(seed), runs, time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("error inserting campaign: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("error reading campaign id: %w", err)
	}

	s.log.Info("started campaign", "campaign", id, "seed", seed, "runs", runs)
	return &Campaign{ID: id, store: s}, nil
}

// WriteAvalanche stores the size and endpoints of run in one transaction.
func (c *Campaign) WriteAvalanche(
	run int, seed uint64, agg *avalanche.Aggregator,
) error {
	return c.WriteAvalancheContext(context.Background(), run, seed, agg)
}

func (c *Campaign) WriteAvalancheContext(
	ctx context.Context, run int, seed uint64, agg *avalanche.Aggregator,
) error {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	if err = writeAvalanche(ctx, tx, c.ID, run, seed, agg); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("error committing run %d: %w", run, err)
	}

	s.log.Debug("stored avalanche", "campaign", c.ID, "run", run,
		"endpoints", agg.EndpointCount())
	return nil
}

func writeAvalanche(
	ctx context.Context, tx *sqlx.Tx,
	campaign int64, run int, seed uint64, agg *avalanche.Aggregator,
) error {
	electrons, ions := agg.AvalancheSize()
	_, err := tx.ExecContext(ctx, tx.Rebind(
		`INSERT INTO runs (campaign_id, run, seed, electrons, ions, truncated)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		campaign, run, int64(seed), electrons, ions, agg.Truncated(),
	)
	if err != nil {
		return fmt.Errorf("error inserting run %d of campaign %d: %w",
			run, campaign, err)
	}

	stmt, err := tx.PrepareNamedContext(ctx, insertEndpoint)
	if err != nil {
		return fmt.Errorf("error preparing endpoint insert: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < agg.EndpointCount(); i++ {
		row := newEndpointRow(campaign, run, agg.EndpointAt(i))
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			return fmt.Errorf("error inserting endpoint %d of run %d: %w",
				i, run, err)
		}
	}
	return nil
}

// Campaigns returns every stored campaign ordered by id.
func (s *Store) Campaigns(ctx context.Context) ([]CampaignRow, error) {
	rows := []CampaignRow{}
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, seed, runs, created FROM campaigns ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("error querying campaigns: %w", err)
	}
	return rows, nil
}

// AllCampaigns can be passed to Runs and RunSizes to select every run in
// the database.
const AllCampaigns int64 = 0

// Runs returns the runs of a campaign ordered by campaign and run.
func (s *Store) Runs(ctx context.Context, campaign int64) ([]Run, error) {
	q, args := `SELECT campaign_id, run, seed, electrons, ions, truncated
		FROM runs`, []any{}
	if campaign != AllCampaigns {
		q, args = q + ` WHERE campaign_id = ?`, append(args, campaign)
	}

	runs := []Run{}
	err := s.db.SelectContext(ctx, &runs,
		s.db.Rebind(q + ` ORDER BY campaign_id, run`), args...)
	if err != nil {
		return nil, fmt.Errorf("error querying runs: %w", err)
	}
	return runs, nil
}

// RunSizes returns the electron counts of the runs of a campaign, in the
// same order as Runs.
func (s *Store) RunSizes(ctx context.Context, campaign int64) ([]int, error) {
	q, args := `SELECT electrons FROM runs`, []any{}
	if campaign != AllCampaigns {
		q, args = q + ` WHERE campaign_id = ?`, append(args, campaign)
	}

	sizes := []int{}
	err := s.db.SelectContext(ctx, &sizes,
		s.db.Rebind(q + ` ORDER BY campaign_id, run`), args...)
	if err != nil {
		return nil, fmt.Errorf("error querying run sizes: %w", err)
	}
	return sizes, nil
}

// Endpoints returns the endpoints of a run ordered by spawn index.
func (s *Store) Endpoints(
	ctx context.Context, campaign int64, run int,
) ([]avalanche.Endpoint, error) {
	rows := []endpointRow{}
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(
		`SELECT campaign_id, run, spawn_index, parent_index, status,
		        x0, y0, z0, t0, e0, x1, y1, z1, t1, e1
		 FROM endpoints WHERE campaign_id = ? AND run = ?
		 ORDER BY spawn_index`), campaign, run)
	if err != nil {
		return nil, fmt.Errorf("error querying endpoints of run %d: %w",
			run, err)
	}

	eps := make([]avalanche.Endpoint, len(rows))
	for i := range rows {
		if eps[i], err = rows[i].endpoint(); err != nil {
			return nil, fmt.Errorf("error scanning endpoint %d of run %d: %w",
				i, run, err)
		}
	}
	return eps, nil
}
