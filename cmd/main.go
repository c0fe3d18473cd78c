package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"github.com/gleadbet/nest/internal/handlers"
	"github.com/gleadbet/nest/internal/httpx"
	"github.com/gleadbet/nest/internal/logger"
	"github.com/gleadbet/nest/internal/oauth"
	"github.com/gleadbet/nest/internal/repository"
	"github.com/gleadbet/nest/internal/sdm"
	"github.com/gleadbet/nest/internal/server"
	"github.com/gleadbet/nest/internal/service"
	"github.com/gleadbet/nest/internal/session"
)

func main() {
	// load config.yml before the logger so log_level applies
	if err := loadConfig(); err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}
	log := logger.Get(viper.GetString("log_level"))

	// open DB
	db, err := openDB(log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Fatalw("failed to close sqlite", "err", cerr)
		}
	}()

	// credential sealing and cookie signing
	sealer, err := session.NewSealer(viper.GetString("session.secret"))
	if err != nil {
		log.Fatalw("failed to init credential sealer", "err", err)
	}
	codec := session.NewCookieCodec(viper.GetString("session.secret"), viper.GetDuration("session.ttl"))

	// upstream plumbing
	hc := httpx.New(httpx.DefaultRetryPolicy, 0, log.Named("httpx"))
	upstream := sdm.NewClient(viper.GetString("sdm.base_url"), viper.GetString("sdm.project_id"), hc)
	authenticator := oauth.New(oauth.Config{
		ClientID:     viper.GetString("oauth.client_id"),
		ClientSecret: viper.GetString("oauth.client_secret"),
		RedirectURL:  viper.GetString("oauth.redirect_url"),
		AuthURL:      viper.GetString("oauth.auth_url"),
		TokenURL:     viper.GetString("oauth.token_url"),
		Scopes:       viper.GetStringSlice("oauth.scopes"),
	}, hc, log.Named("oauth"))

	// wire dependencies
	repos := repository.NewRepository(db, sealer)
	services := service.NewService(service.Deps{
		Repos:    repos,
		Upstream: upstream,
		OAuth:    authenticator,
		Codec:    codec,
		Log:      log,
		CacheTTL: viper.GetDuration("cache_ttl"),
	})
	apiHandler := handlers.NewHandler(services, codec.TTL(), log)

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, viper.GetString("port"), apiHandler, log)

	// graceful shutdown
	waitForShutdown(srv, log)
}

func loadConfig() error {
	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")

	viper.SetDefault("port", "8080")
	viper.SetDefault("log_level", logger.InfoLevel)
	viper.SetDefault("cache_ttl", service.DefaultCacheTTL)
	viper.SetDefault("session.ttl", 168*time.Hour)
	viper.SetDefault("sdm.base_url", sdm.DefaultBaseURL)
	viper.SetDefault("oauth.auth_url", oauth.DefaultAuthURL)
	viper.SetDefault("oauth.token_url", oauth.DefaultTokenURL)
	viper.SetDefault("oauth.scopes", oauth.DefaultScopes)

	// secrets come from NEST_OAUTH_CLIENT_SECRET etc., not the yml
	viper.SetEnvPrefix("nest")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	return viper.ReadInConfig()
}

// openDB initializes the SQLite database using configuration.
func openDB(log *logger.Logger) (*sql.DB, error) {
	dbPath := viper.GetString("db.path")
	if dbPath == "" {
		log.Infow("db.path not set in config; using default file", "default", "nest.db")
		dbPath = "nest.db"
	}
	return repository.InitDB(dbPath)
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
