package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/config"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/settings"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:           "abcore",
	Short:         "Reactive model core of the Activity Browser",
	Long:          "abcore opens an LCA project, mirrors its inventory metadata and runs workbench actions against it.",
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runTUI,
}

// Execute runs the root command. An interrupt cancels the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default $XDG_CONFIG_HOME/activity-browser/abcore.yaml)")
	pf.String("base-dir", "", "directory holding the projects")
	pf.StringP("project", "p", "", "project to open")
	pf.Int("mds-workers", 0, "concurrent secondary loads (0 = one per CPU)")
	pf.Bool("mds-subprocess", true, "run secondary loads in child processes")
	pf.Int("cache-size", 0, "traversal cache entries")
	pf.Bool("watch", true, "watch the project file for writes by other processes")
	pf.Bool("force-poll", false, "poll the project file instead of using fsnotify")
	pf.Bool("log-json", false, "log as JSON")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
}

// flagKeys maps viper keys to the persistent flags that set them.
var flagKeys = map[string]string{
	"base_dir":             "base-dir",
	"project":              "project",
	"mds.workers":          "mds-workers",
	"mds.subprocess":       "mds-subprocess",
	"navigator.cache_size": "cache-size",
	"watch":                "watch",
	"force_poll":           "force-poll",
	"log.json":             "log-json",
	"log.level":            "log-level",
}

func initConfig() {
	pf := rootCmd.PersistentFlags()
	for key, flag := range flagKeys {
		_ = viper.BindPFlag(key, pf.Lookup(flag))
	}

	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("abcore")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("AB")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// It's fine if no config file is found; we use defaults.
	_ = viper.ReadInConfig()
}

// runtimeConfig holds everything read from flags, AB_* env vars and the
// config file.
type runtimeConfig struct {
	BaseDir   string `mapstructure:"base_dir"`
	Project   string `mapstructure:"project"`
	Watch     bool   `mapstructure:"watch"`
	ForcePoll bool   `mapstructure:"force_poll"`
	MDS       struct {
		Workers    int  `mapstructure:"workers"`
		Subprocess bool `mapstructure:"subprocess"`
	} `mapstructure:"mds"`
	Navigator struct {
		CacheSize int `mapstructure:"cache_size"`
	} `mapstructure:"navigator"`
	Log struct {
		JSON  bool   `mapstructure:"json"`
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`

	// logFile redirects logging, for commands that own the terminal.
	logFile string
}

// loadRuntimeConfig fills the defaults viper cannot know from the user
// settings: the custom base dir and the startup project.
func loadRuntimeConfig() (runtimeConfig, error) {
	viper.SetDefault("watch", true)
	viper.SetDefault("mds.subprocess", true)
	viper.SetDefault("log.level", "info")

	var cfg runtimeConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}

	user, err := settings.LoadUser("")
	if err != nil {
		return cfg, err
	}
	if cfg.BaseDir == "" {
		cfg.BaseDir = user.CustomDir
	}
	if cfg.BaseDir == "" {
		cfg.BaseDir = filepath.Join(config.DataDir(), "projects")
	}
	if cfg.Project == "" {
		cfg.Project = user.StartupProject
	}
	if cfg.Project == "" {
		cfg.Project = settings.DefaultStartupProject
	}
	return cfg, nil
}
