package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shaoyun/cherrynote/internal/blob"
	"github.com/shaoyun/cherrynote/internal/client"
	"github.com/shaoyun/cherrynote/internal/client/config"
	"github.com/shaoyun/cherrynote/internal/utils"
	"github.com/shaoyun/cherrynote/internal/version"
)

const configFileName = "config"

var (
	home, _ = os.UserHomeDir()

	red    = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green  = color.New(color.FgHiGreen).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
	cyan   = color.New(color.FgHiCyan).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:     "cherrynote",
	Short:   "CherryNote sync client",
	Version: version.Detailed(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildConfig()
		if err != nil {
			return err
		}

		cmd.SilenceUsage = true
		showHeader()

		c, err := client.New(cfg)
		if err != nil {
			return err
		}

		defer slog.Info("Bye!")
		return c.Start(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "CherryNote config file")
	rootCmd.PersistentFlags().StringP("datadir", "d", config.DefaultDataDir, "CherryNote data directory")
	rootCmd.PersistentFlags().Bool("autosync", true, "enable automatic sync")

	rootCmd.AddCommand(syncCmd, statusCmd, conflictsCmd, resolveCmd, resetCmd)
}

func main() {
	// a .env next to the binary is convenient for bucket credentials
	_ = godotenv.Load()

	setupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func setupLogging() {
	stdoutHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})

	handlers := []slog.Handler{stdoutHandler}
	logFile := filepath.Join(home, ".cherrynote", "client.log")
	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err == nil {
		if file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
			handlers = append(handlers, slog.NewTextHandler(file, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}))
		}
	}

	slog.SetDefault(slog.New(utils.NewMultiHandler(handlers...)))
}

func loadConfig(cmd *cobra.Command) error {
	if cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(configFilePath)
	} else {
		viper.AddConfigPath(filepath.Join(home, ".cherrynote"))
		viper.AddConfigPath(filepath.Join(home, ".config/cherrynote"))
		viper.SetConfigName(configFileName)
		viper.SetConfigType("json")
	}

	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !enoent && !notFound {
			return fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.BindPFlag("data_dir", cmd.Flags().Lookup("datadir"))
	viper.BindPFlag("auto_sync", cmd.Flags().Lookup("autosync"))

	viper.SetEnvPrefix("CHERRYNOTE")
	viper.AutomaticEnv()

	// bucket credentials come from the environment, never the config file
	viper.BindEnv("s3.endpoint", "CHERRYNOTE_S3_ENDPOINT")
	viper.BindEnv("s3.region", "CHERRYNOTE_S3_REGION")
	viper.BindEnv("s3.bucket", "CHERRYNOTE_S3_BUCKET")
	viper.BindEnv("s3.access_key", "CHERRYNOTE_S3_ACCESS_KEY")
	viper.BindEnv("s3.secret_key", "CHERRYNOTE_S3_SECRET_KEY")
	viper.BindEnv("s3.key_prefix", "CHERRYNOTE_S3_KEY_PREFIX")

	return nil
}

func buildConfig() (*config.Config, error) {
	cfg := &config.Config{
		Path:     viper.ConfigFileUsed(),
		DataDir:  viper.GetString("data_dir"),
		AutoSync: viper.GetBool("auto_sync"),
		S3: blob.S3Config{
			Endpoint:  viper.GetString("s3.endpoint"),
			Region:    viper.GetString("s3.region"),
			Bucket:    viper.GetString("s3.bucket"),
			AccessKey: viper.GetString("s3.access_key"),
			SecretKey: viper.GetString("s3.secret_key"),
			KeyPrefix: viper.GetString("s3.key_prefix"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func showHeader() {
	color.New(color.FgHiCyan, color.Bold).Printf("CherryNote %s\n", version.Version)
}
