package main

import (
	"context"
	"fmt"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog/log"

	"github.com/distinctlyminty44/role-based-rls/db"
	"github.com/distinctlyminty44/role-based-rls/internal/config"
	"github.com/distinctlyminty44/role-based-rls/internal/logger"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode."`
		Version kong.VersionFlag
		Up      UpCmd `cmd:"" help:"Apply pending schema migrations"`
	}
)

// UpCmd applies migrations. It must connect as the schema owner, not the service's role.
type UpCmd struct {
	DatabaseURL string `help:"owner connection string; defaults to the configured database_url" env:"MIGRATE_DATABASE_URL"`
	Config      string `help:"path to a config directory containing config.yaml" default:"" env:"RBRLS_CONFIG_PATH"`
}

func (u *UpCmd) Run(ctx context.Context) error {
	url := u.DatabaseURL
	if url == "" {
		if err := config.LoadConfig(u.Config); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		url = config.App.DatabaseURL
	}

	pg, err := db.Connect(ctx, url, db.PoolOptions{MaxOpenConns: 1})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pg.Close()

	applied, err := db.Migrate(ctx, pg)
	if err != nil {
		return err
	}
	log.Info().Int("applied", applied).Msg("migrations complete")
	return nil
}

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	logger.Setup(cli.Debug)
	err := cmd.Run()
	cmd.FatalIfErrorf(err)
}
