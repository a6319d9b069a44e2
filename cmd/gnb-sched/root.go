package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/gnb-scheduler/internal/config"
	"github.com/signalsfoundry/gnb-scheduler/internal/logging"
)

type globalFlags struct {
	configPath string
	envFile    string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "gnb-sched",
		Short:         "gNB MAC DL/UL scheduler simulator",
		Long:          "gnb-sched loads a scenario of cells, slices and UEs and drives the intra-slice MAC scheduler slot by slot.",
		SilenceUsage:  true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return config.LoadDotEnv(g.envFile)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "configs/scenario.yaml", "scenario file (.yaml, .yml or .json)")
	pf.StringVar(&g.envFile, "env-file", ".env", "dotenv file loaded before the scenario")
	pf.StringVar(&g.logLevel, "log-level", os.Getenv("LOG_LEVEL"), "debug, info, warn or error")
	pf.StringVar(&g.logFormat, "log-format", os.Getenv("LOG_FORMAT"), "text or json")

	root.AddCommand(newRunCmd(g), newServeCmd(g), newValidateCmd(g))
	return root
}

func (g *globalFlags) logger(cmd *cobra.Command) logging.Logger {
	return logging.New(logging.Config{
		Level:  g.logLevel,
		Format: g.logFormat,
		Output: cmd.ErrOrStderr(),
	})
}
