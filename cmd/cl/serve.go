package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"coinline/internal/app"
	"coinline/internal/config"
	"coinline/internal/db"
	"coinline/internal/metrics"
	"coinline/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	var legacy bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" && !legacy {
				return fmt.Errorf("COINLINE_JWT_SECRET is required for bearer auth")
			}
			metricsHandler, err := metrics.InitMeterProvider(cmd.Context(), "coinline")
			if err != nil {
				return fmt.Errorf("init metrics: %w", err)
			}
			if err := metrics.Init(); err != nil {
				return fmt.Errorf("init metrics: %w", err)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				handler, err := server.New(server.Config{
					Engine:   a.Engine,
					Feeds:    a.Feeds,
					BasePath: basePath,
					Auth:     server.AuthConfig{JWTSecret: secret, AllowLegacyActorHeader: legacy, Log: a.Log},
					Log:      a.Log,
					Metrics:  metricsHandler,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(sctx)
				}()
				a.Log.WithFields(logrus.Fields{"addr": addr, "base_path": basePath}).Info("serving coinline API")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&legacy, "allow-actor-header", false, "trust X-Actor-Id without a token (development only)")
	cmd.Flags().String("jwt-secret", "", "HS256 secret (COINLINE_JWT_SECRET)")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token for --actor-id and --roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor := currentActor()
			token, err := server.SignToken(viper.GetString("jwt-secret"), actor.ID, actor.Roles, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Workspace configuration (coinline.yml)"}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default coinline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			if cfg.StoreDriver() == config.DriverSQLite {
				fmt.Fprintf(cmd.OutOrStdout(), "# database: %s\n", db.Path(viper.GetString("workspace")))
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	types := &cobra.Command{
		Use:   "action-types",
		Short: "List the configured action types",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			names := make([]string, 0, len(cfg.Actions.Types))
			for name := range cfg.Actions.Types {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				t := cfg.Actions.Types[name]
				fields := make([]string, 0, len(t.Fields))
				for f, k := range t.Fields {
					fields = append(fields, f+":"+string(k))
				}
				sort.Strings(fields)
				extra := ""
				if t.Extensible {
					extra = " (extensible)"
				}
				fmt.Printf("%s [%s]%s\n", name, strings.Join(fields, ", "), extra)
			}
			return nil
		},
	}
	cfgCmd.AddCommand(initCmd, show, types)
	return cfgCmd
}
