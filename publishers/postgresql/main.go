package postgresql

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quix-labs/incremental-writer/internals/types"
	"github.com/quix-labs/incremental-writer/internals/utils"
	"github.com/quix-labs/incremental-writer/publishers"
)

const (
	ApplicationName = "IncrementalWriter"
	PoolMinConn     = 1
	PoolMaxConn     = 2
	DefaultTable    = "task_output"
)

type Publisher struct {
	publishers.Publisher
	conn       *pgxpool.Pool
	Table      string
	outputPath string
}

func (pg *Publisher) Init(config map[string]any, output string) error {
	connConf, table, err := ParseConfig(config)
	if err != nil {
		return err
	}
	pg.Table = table
	pg.outputPath = output

	ctx := context.Background()
	if pg.conn, err = pgxpool.NewWithConfig(ctx, connConf); err != nil {
		return fmt.Errorf("unable to connect to database: %w", err)
	}
	if _, err = pg.conn.Exec(ctx, pg.createTableQuery()); err != nil {
		pg.conn.Close()
		return fmt.Errorf("cannot create table %s: %w", pg.Table, err)
	}
	pg.Logger.Printf("Successfully connected to %s@%s/%s", connConf.ConnConfig.User, connConf.ConnConfig.Host, connConf.ConnConfig.Database)
	return nil
}

// ParseConfig builds the pool configuration without connecting.
func ParseConfig(config map[string]any) (*pgxpool.Config, string, error) {
	connConf, err := pgxpool.ParseConfig("")
	if err != nil {
		return nil, "", err
	}
	connConf.ConnConfig.Config.RuntimeParams["application_name"] = ApplicationName
	connConf.MinConns = PoolMinConn
	connConf.MaxConns = PoolMaxConn

	table := DefaultTable
	for _, parse := range []func() error{
		func() error { return utils.ParseOptionalKey(config, "host", &connConf.ConnConfig.Config.Host) },
		func() error { return utils.ParseOptionalKey(config, "port", &connConf.ConnConfig.Config.Port) },
		func() error { return utils.ParseOptionalKey(config, "database", &connConf.ConnConfig.Config.Database) },
		func() error { return utils.ParseOptionalKey(config, "username", &connConf.ConnConfig.Config.User) },
		func() error { return utils.ParseOptionalKey(config, "password", &connConf.ConnConfig.Config.Password) },
		func() error { return utils.ParseOptionalKey(config, "table", &table) },
	} {
		if err := parse(); err != nil {
			return nil, "", err
		}
	}
	if table == "" {
		return nil, "", fmt.Errorf("empty table name")
	}
	return connConf, table, nil
}

func (pg *Publisher) Publish(ctx context.Context, line *types.Line) error {
	_, err := pg.conn.Exec(ctx, pg.insertQuery(), line.Time, line.Index, line.Total, line.Text, pg.outputPath)
	if err != nil {
		return fmt.Errorf("cannot insert line %d: %w", line.Index, err)
	}
	return nil
}

func (pg *Publisher) Terminate() {
	if pg.conn != nil {
		pg.conn.Close()
	}
}

func (pg *Publisher) createTableQuery() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  "id" BIGSERIAL PRIMARY KEY,
  "written_at" TIMESTAMPTZ NOT NULL,
  "index" INTEGER NOT NULL,
  "total" INTEGER NOT NULL,
  "text" TEXT NOT NULL,
  "output" TEXT NOT NULL
)`, pgx.Identifier{pg.Table}.Sanitize())
}

func (pg *Publisher) insertQuery() string {
	return fmt.Sprintf(
		`INSERT INTO %s ("written_at", "index", "total", "text", "output") VALUES ($1, $2, $3, $4, $5)`,
		pgx.Identifier{pg.Table}.Sanitize(),
	)
}
