package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/cinelog/internal/app"
	"github.com/dropDatabas3/cinelog/internal/config"
	"github.com/dropDatabas3/cinelog/internal/observability/logger"

	_ "github.com/dropDatabas3/cinelog/internal/store/adapters/dal"
)

// cli guarda los flags globales y abre el storage bajo demanda.
type cli struct {
	ConfigPath string
	EnvFile    string
	OutFormat  string // "json" | "text"

	cfg *config.Config
}

func (c *cli) load() error {
	if c.EnvFile != "" {
		if _, err := os.Stat(c.EnvFile); err == nil {
			if err := godotenv.Load(c.EnvFile); err != nil {
				return fmt.Errorf("dotenv: %w", err)
			}
		}
	}
	path := c.ConfigPath
	if path == "" {
		path = os.Getenv("CINELOG_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	c.cfg = cfg
	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, ServiceName: "cinelog-cli"})
	return nil
}

// open conecta solo el storage; la CLI no usa cache ni limiter.
func (c *cli) open(ctx context.Context) (*app.Container, error) {
	return app.Build(ctx, c.cfg, app.Options{StoreOnly: true, SkipMigrate: true})
}

func (c *cli) print(w io.Writer, v any) {
	if c.OutFormat == "json" {
		b, _ := json.MarshalIndent(v, "", "  ")
		fmt.Fprintln(w, string(b))
		return
	}
	fmt.Fprintln(w, v)
}

func newRoot() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "cinelog",
		Short:         "CLI de administración de cinelog (auth, MFA, auditoría)",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load()
		},
	}
	root.PersistentFlags().StringVar(&c.ConfigPath, "config", "", "ruta a config.yaml (env CINELOG_CONFIG)")
	root.PersistentFlags().StringVar(&c.EnvFile, "env-file", ".env", "ruta a .env (si existe, se carga)")
	root.PersistentFlags().StringVar(&c.OutFormat, "out", "text", "formato de salida: json|text")

	root.AddCommand(
		migrateCmd(c),
		auditCmd(c),
		devicesCmd(c),
		recoveryCmd(c),
		userCmd(c),
		keysCmd(),
	)
	return root
}

func main() {
	if err := newRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
