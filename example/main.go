package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bertrandmartel/hydraconsent/cp/authserver"
	"github.com/bertrandmartel/hydraconsent/cp/config"
	"github.com/bertrandmartel/hydraconsent/cp/identity"
	"github.com/bertrandmartel/hydraconsent/cp/logging"
	"github.com/bertrandmartel/hydraconsent/cp/metrics"
	"github.com/bertrandmartel/hydraconsent/cp/session"
	"github.com/go-redis/redis/v7"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func main() {
	if err := createRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func createRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "consent",
		Short: "Consent provider for an OAuth2 authorization server",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}
	root.AddCommand(createServeCommand())
	root.AddCommand(createPrintConfigCommand())
	return root
}

func createServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Starts the consent provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().AddFlagSet(config.FlagSet())
	return cmd
}

func createPrintConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Prints the resolved config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			cfg.AuthServer.ClientSecret = redacted(cfg.AuthServer.ClientSecret)
			cfg.Session.RedisPassword = redacted(cfg.Session.RedisPassword)
			for i := range cfg.Users {
				cfg.Users[i].Password = redacted(cfg.Users[i].Password)
			}
			cmd.Printf("%+v\n", *cfg)
			return nil
		},
	}
	cmd.Flags().AddFlagSet(config.FlagSet())
	return cmd
}

func redacted(value string) string {
	if value == "" {
		return ""
	}
	return "********"
}

func serve(ctx context.Context, cfg *config.Config) error {
	if err := logging.SetVerbosity(cfg.Verbosity); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logging.Log().Infof("version %v", cfg.Version)
	logging.Log().Infof("server path %v:%v", cfg.ServerPath, cfg.Port)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	httpClient := &http.Client{
		Timeout: cfg.AuthServer.Timeout,
	}
	credentials := authserver.NewCredentialHolder(
		authserver.NewClientCredentials(httpClient, cfg.TokenEndpoint(), cfg.AuthServer.ClientID, cfg.AuthServer.ClientSecret, cfg.AuthServer.Scopes),
		m,
	)
	// no consent request can be served without a service credential
	if _, err := credentials.Refresh(ctx); err != nil {
		return fmt.Errorf("unable to obtain service credential: %w", err)
	}

	app := &CustomConsentApp{
		Config:     cfg,
		AuthServer: authserver.NewClient(httpClient, cfg.AuthServer.AdminURL, credentials, cfg.Consent.ForceConsentScope, m),
		Identities: identityStore(cfg),
		Metrics:    m,
		Store:      sessionStore(cfg),
	}
	e, err := newServer(cfg, app, registry)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logging.Log().WithError(err).Error("unable to shut down server")
		}
	}()
	if err := e.Start(":" + strconv.Itoa(cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func sessionStore(cfg *config.Config) session.Store {
	if cfg.Session.RedisAddress == "" {
		logging.Log().Warn("no redis address configured, sessions are kept in memory")
		return session.NewMemoryStore(cfg.Session.Timeout)
	}
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Session.RedisAddress,
		Password: cfg.Session.RedisPassword,
		DB:       cfg.Session.RedisDB,
	})
	return session.NewRedisStore(redisClient, cfg.Session.Timeout)
}

func identityStore(cfg *config.Config) identity.Store {
	if len(cfg.Users) == 0 {
		return identity.NewMemoryStore(identity.DefaultAccount())
	}
	accounts := make([]identity.Account, 0, len(cfg.Users))
	for _, u := range cfg.Users {
		accounts = append(accounts, identity.Account{
			User: identity.User{
				SubjectID:     u.SubjectID,
				Email:         u.Email,
				EmailVerified: u.EmailVerified,
				Name:          u.Name,
				Nickname:      u.Nickname,
			},
			Password: u.Password,
		})
	}
	return identity.NewMemoryStore(accounts...)
}
