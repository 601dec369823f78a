package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/caffebridge/internal/config"
	"github.com/MeKo-Tech/caffebridge/internal/models"
	"github.com/MeKo-Tech/caffebridge/internal/version"
)

var (
	// Global configuration loader.
	configLoader *config.Loader
	// Global configuration.
	globalConfig *config.Config
	// Configuration file path.
	cfgFile string
)

// annotationNoValidate marks commands that load the configuration without
// validating it.
const annotationNoValidate = "caffebridge/no-validate"

// flagBinding maps a command-line flag to a configuration key.
type flagBinding struct {
	key  string
	flag string
}

// commandBindings holds the flag bindings of each subcommand. They are
// applied to viper only for the command being run, since several commands
// share flag names.
var commandBindings = map[*cobra.Command][]flagBinding{}

var rootBindings = []flagBinding{
	{"verbose", "verbose"},
	{"log_level", "log-level"},
	{"models_dir", "models-dir"},
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "caffebridge",
	Short: "Convert Caffe network descriptors into runnable target layers",
	Long: `caffebridge converts the layers of a Caffe network snapshot into layers of
a target inference runtime and checks that both runtimes agree.

For every layer it:
- normalizes the source descriptor into a canonical layer spec
- infers and checks the output shape
- rearranges the learned weights into the target layout
- builds the target layer and compares its output with the recorded
  source output

Examples:
  caffebridge inspect caffenet
  caffebridge convert caffenet --format yaml
  caffebridge validate caffenet --policy lenient
  caffebridge bench caffenet --iterations 20`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, _ := cmd.Flags().GetBool("version")
		if v {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "caffebridge version %s\n", version.String())
			return nil
		}
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetRootCommand returns the root command for testing purposes.
// This allows tests to execute commands without calling os.Exit().
func GetRootCommand() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is search in ., $HOME, $HOME/.config/caffebridge, /etc/caffebridge)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("models-dir", models.DefaultModelsDir,
		"directory containing network snapshots (can also be set via "+models.EnvModelsDir+")")
	rootCmd.PersistentFlags().Bool("version", false, "print version information and exit")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := initConfig(cmd); err != nil {
			return err
		}
		setupLogging(cmd, globalConfig)
		return nil
	}
}

// initConfig binds the flags of cmd and reads in the config file and ENV
// variables.
func initConfig(cmd *cobra.Command) error {
	viper.Reset()
	configLoader = config.NewLoader()

	bindings := append(append([]flagBinding(nil), rootBindings...), commandBindings[cmd]...)
	for _, b := range bindings {
		f := cmd.Flags().Lookup(b.flag)
		if f == nil {
			continue
		}
		if err := viper.BindPFlag(b.key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", b.flag, err)
		}
	}

	var err error
	if cmd.Annotations[annotationNoValidate] != "" {
		globalConfig, err = configLoader.LoadWithFileWithoutValidation(cfgFile)
	} else {
		globalConfig, err = configLoader.LoadWithFile(cfgFile)
	}
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	return nil
}

// setupLogging installs the structured logger. Logs go to stderr so that
// reports on stdout stay machine readable.
func setupLogging(cmd *cobra.Command, cfg *config.Config) {
	var logLevel slog.Level
	if cfg.Verbose {
		logLevel = slog.LevelDebug
	} else {
		switch cfg.LogLevel {
		case "debug":
			logLevel = slog.LevelDebug
		case "warn":
			logLevel = slog.LevelWarn
		case "error":
			logLevel = slog.LevelError
		default:
			logLevel = slog.LevelInfo
		}
	}

	logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
}

// GetConfig returns the global configuration.
func GetConfig() *config.Config {
	if globalConfig == nil {
		cfg := config.DefaultConfig()
		return &cfg
	}
	return globalConfig
}

// GetConfigLoader returns the global configuration loader.
func GetConfigLoader() *config.Loader {
	if configLoader == nil {
		configLoader = config.NewLoader()
	}
	return configLoader
}

// ResetFlags restores every flag of the command tree to its default. Tests
// that execute the root command repeatedly call it between runs.
func ResetFlags() {
	cfgFile = ""
	globalConfig = nil
	configLoader = nil
	resetCommandFlags(rootCmd)
}

func resetCommandFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetCommandFlags(sub)
	}
}
