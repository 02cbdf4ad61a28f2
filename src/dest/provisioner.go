package dest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tpcdiGen/src/config"

	"github.com/pingcap/errors"
	"go.uber.org/zap"
)

const (
	// RawSchema and RawVolume are the fixed names of the containers that hold
	// raw files in managed-volume mode.
	RawSchema = "tpcdi_raw_data"
	RawVolume = "tpcdi_volume"

	rawSchemaComment = "Schema for TPC-DI Raw Files Volume"
	rawVolumeComment = "TPC-DI Raw Files"
)

// Provisioner registers storage containers and creates directories. Every
// create call must succeed when the target already exists.
type Provisioner interface {
	CatalogExists(ctx context.Context, name string) (bool, error)
	CreateCatalog(ctx context.Context, name string) error
	GrantPrivileges(ctx context.Context, name, principal string) error
	CreateSchema(ctx context.Context, catalog, name string) error
	CreateVolume(ctx context.Context, catalog, schema, name string) error
	Mkdirs(ctx context.Context, path string) error
}

// Mkdirs creates path and its parents on local backends. Object stores have no
// directories, so remote paths are left alone.
func Mkdirs(path string) error {
	if !config.IsLocal(path) {
		return nil
	}
	return errors.Trace(os.MkdirAll(path, 0o755))
}

// FSProvisioner lays catalogs, schemas and volumes out as nested directories
// under Root, the way a volumes mount presents them.
type FSProvisioner struct {
	Root string

	logger *zap.Logger
}

func NewFSProvisioner(root string, logger *zap.Logger) *FSProvisioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FSProvisioner{Root: root, logger: logger}
}

func (p *FSProvisioner) CatalogExists(_ context.Context, name string) (bool, error) {
	info, err := os.Stat(filepath.Join(p.Root, name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Trace(err)
	}
	return info.IsDir(), nil
}

func (p *FSProvisioner) CreateCatalog(_ context.Context, name string) error {
	return errors.Trace(os.MkdirAll(filepath.Join(p.Root, name), 0o755))
}

// GrantPrivileges has nothing to enforce on a plain filesystem.
func (p *FSProvisioner) GrantPrivileges(_ context.Context, name, principal string) error {
	p.logger.Debug("skipping grant on filesystem catalog",
		zap.String("catalog", name), zap.String("principal", principal))
	return nil
}

func (p *FSProvisioner) CreateSchema(_ context.Context, catalog, name string) error {
	return errors.Trace(os.MkdirAll(filepath.Join(p.Root, catalog, name), 0o755))
}

func (p *FSProvisioner) CreateVolume(_ context.Context, catalog, schema, name string) error {
	return errors.Trace(os.MkdirAll(filepath.Join(p.Root, catalog, schema, name), 0o755))
}

func (p *FSProvisioner) Mkdirs(_ context.Context, path string) error {
	return Mkdirs(path)
}

// SQLConn is the subset of *sql.DB used by SQLProvisioner.
type SQLConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLProvisioner registers containers through a SQL endpoint of the catalog
// service.
type SQLProvisioner struct {
	conn SQLConn

	logger *zap.Logger
}

func NewSQLProvisioner(conn SQLConn, logger *zap.Logger) *SQLProvisioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLProvisioner{conn: conn, logger: logger}
}

func (p *SQLProvisioner) CatalogExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := p.conn.QueryRowContext(ctx,
		"SELECT count(*) FROM system.information_schema.tables WHERE table_catalog = ?", name).Scan(&n)
	if err != nil {
		return false, errors.Trace(err)
	}
	return n > 0, nil
}

func (p *SQLProvisioner) CreateCatalog(ctx context.Context, name string) error {
	return p.exec(ctx, fmt.Sprintf("CREATE CATALOG IF NOT EXISTS %s", quoteIdent(name)))
}

func (p *SQLProvisioner) GrantPrivileges(ctx context.Context, name, principal string) error {
	return p.exec(ctx, fmt.Sprintf("GRANT ALL PRIVILEGES ON CATALOG %s TO %s",
		quoteIdent(name), quoteIdent(principal)))
}

func (p *SQLProvisioner) CreateSchema(ctx context.Context, catalog, name string) error {
	return p.exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s.%s COMMENT '%s'",
		quoteIdent(catalog), quoteIdent(name), rawSchemaComment))
}

func (p *SQLProvisioner) CreateVolume(ctx context.Context, catalog, schema, name string) error {
	return p.exec(ctx, fmt.Sprintf("CREATE VOLUME IF NOT EXISTS %s.%s.%s COMMENT '%s'",
		quoteIdent(catalog), quoteIdent(schema), quoteIdent(name), rawVolumeComment))
}

func (p *SQLProvisioner) Mkdirs(_ context.Context, path string) error {
	return Mkdirs(path)
}

func (p *SQLProvisioner) exec(ctx context.Context, stmt string) error {
	p.logger.Debug("provisioning", zap.String("sql", stmt))
	_, err := p.conn.ExecContext(ctx, stmt)
	return errors.Annotatef(err, "failed to execute %q", stmt)
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
