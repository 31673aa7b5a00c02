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

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"social/api"
	"social/auth"
	"social/config"
	"social/database"
	"social/media"
	"social/social"
)

var (
	envFile   string
	port      string
	dbPath    string
	redisAddr string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:          "social-api",
	Short:        "REST backend for posts, polls, follows and feeds",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Migrate the database and serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg, logger)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		db, err := database.Connect(cfg.DB, logger)
		if err != nil {
			return err
		}
		if err := database.Migrate(db); err != nil {
			return err
		}
		logger.Warn("Database schema is up to date")
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge-tokens",
	Short: "Delete expired entries from the revoked token table",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		db, err := database.Connect(cfg.DB, logger)
		if err != nil {
			return err
		}
		n, err := auth.NewDBDenylist(db).Purge(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "purged %d revoked tokens\n", n)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "File with environment variables")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides DATABASE)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")
	serveCmd.Flags().StringVarP(&port, "port", "p", "", "Listen address (overrides PORT)")
	serveCmd.Flags().StringVar(&redisAddr, "redis", "", "Redis address for the token denylist (overrides REDIS_ADDR)")

	rootCmd.AddCommand(serveCmd, migrateCmd, purgeCmd)
}

// setup loads the configuration, applies flag overrides and builds the logger.
func setup() (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return cfg, nil, err
	}
	if port != "" {
		cfg.Port = port
	}
	if dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if redisAddr != "" {
		cfg.RedisAddr = redisAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}

// denylist picks Redis when it is configured and reachable, and the
// database table otherwise.
func denylist(ctx context.Context, cfg config.Config, db *gorm.DB, logger *logrus.Logger) auth.Denylist {
	if cfg.RedisAddr == "" {
		logger.Info("REDIS_ADDR not set, revoked tokens are kept in the database")
		return auth.NewDBDenylist(db)
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		logger.WithError(err).Error("Failed to connect to Redis, falling back to the database")
		_ = rdb.Close()
		return auth.NewDBDenylist(db)
	}
	logger.WithField("addr", cfg.RedisAddr).Info("Connected to Redis")
	return auth.NewRedisDenylist(rdb)
}

func serve(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	db, err := database.Connect(cfg.DB, logger)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	store := media.NewDiskStore(cfg.MediaRoot, cfg.MediaURL)
	server := api.NewServer(api.Deps{
		Service:    social.New(db, logger),
		Issuer:     auth.NewIssuer(cfg.SecretKey, denylist(ctx, cfg, db, logger)),
		Media:      store,
		SessionKey: []byte(cfg.SessionKey),
		Logger:     logger,
	})

	r := mux.NewRouter()
	r.PathPrefix(cfg.MediaURL + "/").Handler(
		http.StripPrefix(cfg.MediaURL+"/", http.FileServer(http.Dir(cfg.MediaRoot))))
	r.PathPrefix("/").Handler(server.Router())

	srv := &http.Server{
		Addr:              cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	logger.WithField("addr", cfg.Port).Warn("Server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Warn("Server closed")
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
