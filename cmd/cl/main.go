package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"coinline/internal/app"
	"coinline/internal/config"
	"coinline/internal/domain"
)

var rootCmd = &cobra.Command{
	Use:   "cl",
	Short: "Coinline CLI",
	Long: `Coinline assigns tasks made of small actions and pays coins when they are approved.
- Task: work for one assignee, worth round(difficulty x base x multiplier) coins fixed at creation.
- Actions: the checklist of a task; required ones must be completed before submitting.
- Workflow: pending -> in_progress -> waiting_approval -> completed, rejection sends it back to pending, admins may block.
- Feeds: every change lands in the activity log, the project chat and the notification inbox.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadDotEnv(viper.GetString("workspace"))
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("COINLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// loadDotEnv reads <workspace>/.env without overriding variables already set.
func loadDotEnv(workspace string) error {
	if workspace == "" {
		workspace = "."
	}
	err := godotenv.Load(filepath.Join(workspace, ".env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.String("config", "", "config file (default <workspace>/coinline.yml)")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "local-user", "actor identifier")
	flags.String("roles", "", "comma separated actor roles (e.g. admin)")
	flags.String("store-driver", "", "override store.driver (sqlite|mongo)")
	flags.String("mongo-uri", "", "override store.mongo_uri")
	for _, name := range []string{"workspace", "config", "json", "actor-id", "roles", "store-driver", "mongo-uri"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(actionCmd())
	rootCmd.AddCommand(commentCmd())
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(notificationsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
}

func currentActor() domain.Actor {
	a := domain.Actor{ID: strings.TrimSpace(viper.GetString("actor-id"))}
	for _, r := range strings.Split(viper.GetString("roles"), ",") {
		if r = strings.TrimSpace(r); r != "" {
			a.Roles = append(a.Roles, r)
		}
	}
	return a
}

// loadConfig reads coinline.yml (or --config) and applies flag/env overrides.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path := viper.GetString("config"); path != "" {
		cfg, err = config.FromFile(path)
	} else {
		cfg, err = config.LoadOptional(viper.GetString("workspace"))
	}
	if err != nil {
		return nil, err
	}
	if d := viper.GetString("store-driver"); d != "" {
		cfg.Store.Driver = d
	}
	if uri := viper.GetString("mongo-uri"); uri != "" {
		cfg.Store.MongoURI = uri
	}
	return cfg, nil
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.OpenWithConfig(ctx, viper.GetString("workspace"), cfg)
	if err != nil {
		return err
	}
	defer a.Close(ctx)
	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
