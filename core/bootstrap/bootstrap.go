package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/penny/core/config"
	coredatabase "github.com/m3rciful/penny/core/database"
	"github.com/m3rciful/penny/core/logger"
)

// Options control the bootstrap pipeline.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config
	Modules  Modules

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
// DB is nil when no database is configured.
type Result struct {
	DB       *sqlx.DB
	Services interface{}
}

// Run initializes the logger, connects to the database, applies migrations,
// runs the seeders and finally the service provider. Without a configured
// database the storage steps are skipped and modules receive nil storage.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	res := &Result{}
	var storage Storage
	if opts.Database.Enabled() {
		db, err := openDatabase(opts)
		if err != nil {
			return nil, err
		}
		res.DB = db
		storage = db
	} else {
		logger.Info(ctx, logger.ComponentDB, "db.skip", slog.String("reason", "not_configured"))
	}

	for i, s := range opts.Modules.Seeders {
		if s == nil {
			continue
		}
		if storage == nil {
			logger.Warn(ctx, logger.ComponentSeed, "seed.skip", slog.Int("seeder", i), slog.String("reason", "no_storage"))
			continue
		}
		if err := s.Seed(ctx, storage); err != nil {
			res.close()
			return nil, fmt.Errorf("bootstrap: seeder %d failed: %w", i, err)
		}
	}

	if opts.Modules.Services != nil {
		svc, err := opts.Modules.Services.Provide(ctx, storage)
		if err != nil {
			res.close()
			return nil, fmt.Errorf("bootstrap: services failed: %w", err)
		}
		res.Services = svc
	}
	return res, nil
}

func openDatabase(opts Options) (*sqlx.DB, error) {
	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(opts.Database); err != nil {
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}
	db, err := connect(opts.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}
	return db, nil
}

func (r *Result) close() {
	if r.DB != nil {
		_ = r.DB.Close()
	}
}
