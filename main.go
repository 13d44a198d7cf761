package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"pharmatrack/m/domain"
	"pharmatrack/m/internal/api"
	"pharmatrack/m/internal/config"
	"pharmatrack/m/internal/database"
	"pharmatrack/m/internal/logger"
	"pharmatrack/m/internal/metrics"
	"pharmatrack/m/internal/migrations"
	"pharmatrack/m/internal/notify"
	"pharmatrack/m/internal/sale"
	"pharmatrack/m/internal/seed"
	"pharmatrack/m/internal/store"
)

func main() {
	app := &cli.App{
		Name:  "pharmatrack",
		Usage: "pharmacy inventory and point-of-sale backend",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "seed", Usage: "product CSV to load before serving"},
				},
				Action: serve,
			},
			{
				Name:  "migrate",
				Usage: "manage the database schema",
				Subcommands: []*cli.Command{
					{Name: "up", Usage: "apply pending migrations", Action: migrateUp},
					{Name: "down", Usage: "revert all migrations", Action: migrateDown},
					{Name: "version", Usage: "print the schema version", Action: migrateVersion},
				},
			},
			{
				Name:  "create-user",
				Usage: "create an admin or clerk account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"PHARMATRACK_PASSWORD"}},
					&cli.StringFlag{Name: "role", Value: string(domain.RoleClerk)},
				},
				Action: createUser,
			},
			{
				Name:  "seed",
				Usage: "load the product catalog from CSV",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Value: "assets/products.csv"},
				},
				Action: seedProducts,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type appEnv struct {
	cfg config.Config
	log *zap.Logger
	db  *sqlx.DB
}

// setup loads config, builds the logger and opens a migrated database.
func setup(migrate bool) (*appEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(log)

	db, err := database.Connect(cfg.DBDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := migrations.Run(db); err != nil {
			db.Close()
			return nil, err
		}
	}
	log.Info("database ready", zap.String("driver", cfg.DBDriver))
	return &appEnv{cfg: cfg, log: log, db: db}, nil
}

func (rt *appEnv) close() {
	rt.db.Close()
	_ = rt.log.Sync()
}

func serve(c *cli.Context) error {
	rt, err := setup(true)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tx := store.NewTransactor(rt.db)
	if path := c.String("seed"); path != "" {
		if _, err := seed.LoadProductsFile(ctx, tx, path, rt.log); err != nil {
			return err
		}
	}

	var publisher notify.Publisher = notify.NewLogPublisher(rt.log)
	if rt.cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: rt.cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			rt.log.Warn("redis unreachable, sale events may be dropped", zap.String("addr", rt.cfg.RedisAddr), zap.Error(err))
		}
		publisher = notify.NewRedisPublisher(rdb, rt.cfg.RedisChannel)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	svc := sale.NewService(tx, store.NewSaleLedger(rt.db), publisher, m, sale.Options{
		TaxRate:            rt.cfg.TaxRate,
		AllowPriceOverride: rt.cfg.AllowPriceOverride,
	})
	handler := api.New(api.Deps{
		Sales:    svc,
		Products: store.NewProductStore(rt.db),
		Users:    store.NewUserStore(rt.db),
		Logger:   rt.log,
		Metrics:  m,
		Gatherer: reg,
	}, api.Config{
		Secret:      rt.cfg.Secret,
		TokenTTL:    rt.cfg.TokenTTL,
		CORSOrigins: rt.cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              rt.cfg.Addr(),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		rt.log.Info("PharmaTrack POS server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	rt.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func migrateUp(c *cli.Context) error {
	rt, err := setup(true)
	if err != nil {
		return err
	}
	defer rt.close()
	rt.log.Info("migrations applied")
	return nil
}

func migrateDown(c *cli.Context) error {
	rt, err := setup(false)
	if err != nil {
		return err
	}
	defer rt.close()
	if err := migrations.Down(rt.db); err != nil {
		return err
	}
	rt.log.Info("migrations reverted")
	return nil
}

func migrateVersion(c *cli.Context) error {
	rt, err := setup(false)
	if err != nil {
		return err
	}
	defer rt.close()
	v, dirty, err := migrations.Version(rt.db)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "version %d (dirty: %t)\n", v, dirty)
	return nil
}

func createUser(c *cli.Context) error {
	role := domain.Role(c.String("role"))
	if !role.Valid() {
		return fmt.Errorf("role must be admin or clerk, got %q", role)
	}
	rt, err := setup(true)
	if err != nil {
		return err
	}
	defer rt.close()

	hashed, err := bcrypt.GenerateFromPassword([]byte(c.String("password")), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user, err := store.NewUserStore(rt.db).Create(c.Context, domain.User{
		Name:         c.String("name"),
		Email:        c.String("email"),
		PasswordHash: string(hashed),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		return err
	}
	rt.log.Info("user created", zap.Int64("id", user.ID), zap.String("email", user.Email), zap.String("role", string(user.Role)))
	return nil
}

func seedProducts(c *cli.Context) error {
	rt, err := setup(true)
	if err != nil {
		return err
	}
	defer rt.close()
	_, err = seed.LoadProductsFile(c.Context, store.NewTransactor(rt.db), c.String("file"), rt.log)
	return err
}
