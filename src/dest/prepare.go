package dest

import (
	"context"
	"path"
	"strings"

	"tpcdiGen/src/config"
	"tpcdiGen/src/migrate"
	"tpcdiGen/src/paths"

	"github.com/pingcap/errors"
	"go.uber.org/zap"
)

// ErrProvisioning wraps any failure while registering containers or creating
// destination directories. Migration is not attempted after it.
var ErrProvisioning = errors.Normalize(
	"failed to %s: %s",
	errors.RFCCodeText("Datagen:Provisioning"),
)

// Preparer makes sure the destination can receive the manifest.
type Preparer struct {
	Provisioner Provisioner
	// Principal receives all privileges on newly created catalogs.
	Principal string

	logger *zap.Logger
}

func NewPreparer(p Provisioner, principal string, logger *zap.Logger) *Preparer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Preparer{Provisioner: p, Principal: principal, logger: logger}
}

// Prepare registers the catalog, schema and volume when managed-volume mode
// needs them, then creates the destination root and one directory per
// first-level subdirectory of the manifest. Every step is create-if-absent.
func (p *Preparer) Prepare(ctx context.Context, cfg *config.RunConfig, ps paths.PathSet, manifest *migrate.Manifest) error {
	if cfg.NeedsProvisioning() {
		if err := p.provision(ctx, cfg.Catalog); err != nil {
			return err
		}
	}

	p.logger.Info("creating destination root",
		zap.String("path", ps.DestDir), zap.String("osPath", ps.OSDestDir))
	if err := p.Provisioner.Mkdirs(ctx, ps.OSDestDir); err != nil {
		return ErrProvisioning.GenWithStackByArgs("create "+ps.OSDestDir, err.Error())
	}

	if len(manifest.Subdirs) == 0 {
		p.logger.Info("no subdirectories found, files in root only")
		return nil
	}
	p.logger.Info("creating destination subdirectories", zap.Strings("subdirs", manifest.Subdirs))
	for _, dir := range manifest.Subdirs {
		target := joinDest(ps.OSDestDir, dir)
		if err := p.Provisioner.Mkdirs(ctx, target); err != nil {
			return ErrProvisioning.GenWithStackByArgs("create "+target, err.Error())
		}
	}
	return nil
}

func (p *Preparer) provision(ctx context.Context, catalog string) error {
	exists, err := p.Provisioner.CatalogExists(ctx, catalog)
	if err != nil {
		return ErrProvisioning.GenWithStackByArgs("look up catalog "+catalog, err.Error())
	}
	if !exists {
		p.logger.Info("creating catalog", zap.String("catalog", catalog))
		if err := p.Provisioner.CreateCatalog(ctx, catalog); err != nil {
			return ErrProvisioning.GenWithStackByArgs("create catalog "+catalog, err.Error())
		}
		if err := p.Provisioner.GrantPrivileges(ctx, catalog, p.Principal); err != nil {
			return ErrProvisioning.GenWithStackByArgs("grant privileges on "+catalog, err.Error())
		}
	} else {
		p.logger.Info("catalog already exists", zap.String("catalog", catalog))
	}

	p.logger.Info("creating schema", zap.String("schema", catalog+"."+RawSchema))
	if err := p.Provisioner.CreateSchema(ctx, catalog, RawSchema); err != nil {
		return ErrProvisioning.GenWithStackByArgs("create schema "+RawSchema, err.Error())
	}
	p.logger.Info("creating volume", zap.String("volume", catalog+"."+RawSchema+"."+RawVolume))
	if err := p.Provisioner.CreateVolume(ctx, catalog, RawSchema, RawVolume); err != nil {
		return ErrProvisioning.GenWithStackByArgs("create volume "+RawVolume, err.Error())
	}
	return nil
}

func joinDest(root, name string) string {
	if strings.Contains(root, "://") {
		return strings.TrimRight(root, "/") + "/" + name
	}
	return path.Join(root, name)
}
