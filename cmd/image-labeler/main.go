package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	imagelabeler "github.com/menta2k/image-labeler"
	"github.com/menta2k/image-labeler/internal/config"
)

// app carries state shared by the subcommands.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// rootCommand creates and returns the root command
func rootCommand() *cobra.Command {
	a := &app{v: config.NewViper()}

	rootCmd := &cobra.Command{
		Use:           "image-labeler",
		Short:         "Convert, inspect and pre-label image annotations",
		Version:       imagelabeler.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.v, a.configFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}

	setupFlags(rootCmd, a)

	rootCmd.AddCommand(
		convertCommand(a),
		predictCommand(a),
		statsCommand(a),
		modelsCommand(a),
	)
	return rootCmd
}

// setupFlags defines the global flags and binds them to viper keys.
func setupFlags(cmd *cobra.Command, a *app) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default: ./config.yaml or "+config.GetConfigPath()+")")
	flags.Int("workers", 0, "parallel workers, 0 = number of CPUs")
	flags.String("log-level", "info", "log level: debug|info|warn|error")
	flags.String("log-encoding", "console", "log encoding: console|json")
	flags.String("backend", config.BackendOllama, "prediction backend: ollama|llamacpp")
	flags.String("url", "", "prediction server URL")
	flags.String("model", "", "prediction model name")

	bind := map[string]string{
		"io.workers":         "workers",
		"log.level":          "log-level",
		"log.encoding":       "log-encoding",
		"prediction.backend": "backend",
		"prediction.url":     "url",
		"prediction.model":   "model",
	}
	for key, flag := range bind {
		if err := a.v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("error binding flag %s: %v", flag, err))
		}
	}
}

func (a *app) labeler() (*imagelabeler.Labeler, error) {
	return imagelabeler.New(imagelabeler.Options{Config: a.cfg})
}
