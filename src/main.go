package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"tpcdiGen/src/config"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgPath       string
	scaleFactor   string
	catalog       string
	toolDir       string
	destination   string
	scratchRoot   string
	managedVolume bool
	lighthouse    bool
	parallelism   int
	showProgress  bool
)

var rootCmd = &cobra.Command{
	Use:   "datagen",
	Short: "Generate TPC-DI raw data and move it to its destination",
	Long: `datagen runs the DIGen generator for one scale factor in local scratch
space, then copies the output into the destination volume or directory.
A scale factor that already has data at its destination is skipped.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate and migrate data for a scale factor",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := initLogger(cfg)
		if err != nil {
			return err
		}
		rep, err := RunGeneration(cmd.Context(), cfg, logger, showProgress)
		if err != nil {
			return err
		}
		rep.Print(cmd.OutOrStdout())
		if rep.Err != nil {
			return errors.Annotatef(rep.Err, "run ended in state %s", rep.State)
		}
		return nil
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the scratch and destination paths of a scale factor",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		PrintPlan(cmd.OutOrStdout(), &cfg.Run)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "List files already migrated for a scale factor",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return ShowFiles(cmd.Context(), cmd.OutOrStdout(), cfg)
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete migrated files of a scale factor so the next run regenerates them",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := initLogger(cfg)
		if err != nil {
			return err
		}
		return DeleteAllFiles(cmd.Context(), cfg, logger)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgPath, "config", "", "path to a TOML config file")
	flags.StringVar(&scaleFactor, "scale-factor", "", "scale factor to generate")
	flags.StringVar(&catalog, "catalog", "", "catalog owning the destination volume")
	flags.StringVar(&toolDir, "tool-dir", "", "directory holding DIGen.jar")
	flags.StringVar(&destination, "destination", "", "destination root for raw files")
	flags.StringVar(&scratchRoot, "scratch-root", "", "local scratch disk root")
	flags.BoolVar(&managedVolume, "managed-volume", false, "write into a managed volume")
	flags.BoolVar(&lighthouse, "lighthouse", false, fmt.Sprintf("use the lighthouse profile (%d workers)", config.LighthouseWorkers))
	flags.IntVar(&parallelism, "parallelism", runtime.NumCPU(), "default migration parallelism")
	runCmd.Flags().BoolVar(&showProgress, "progress", false, "render a migration progress bar on stderr")

	rootCmd.AddCommand(runCmd, planCmd, showCmd, cleanCmd)
}

// loadConfig reads the config file and lets explicitly set flags override it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("scale-factor") {
		cfg.Run.ScaleFactor = scaleFactor
	}
	if flags.Changed("catalog") {
		cfg.Run.Catalog = catalog
	}
	if flags.Changed("tool-dir") {
		cfg.Run.ToolDir = toolDir
	}
	if flags.Changed("destination") {
		cfg.Run.Destination = destination
	}
	if flags.Changed("scratch-root") {
		cfg.Run.ScratchRoot = scratchRoot
	}
	if flags.Changed("managed-volume") {
		cfg.Run.ManagedVolume = managedVolume
	}
	if flags.Changed("lighthouse") {
		cfg.Run.Lighthouse = lighthouse
	}
	if flags.Changed("parallelism") || cfg.Run.DefaultParallelism == 0 {
		cfg.Run.DefaultParallelism = parallelism
	}

	if err := config.Normalize(cfg); err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, props, err := log.InitLogger(&log.Config{
		Level: cfg.Log.Level,
		File:  log.FileLogConfig{Filename: cfg.Log.File},
	})
	if err != nil {
		return nil, errors.Annotate(err, "failed to init logger")
	}
	log.ReplaceGlobals(logger, props)
	return logger, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
