package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"

	"github.com/airbusgeo/godal"
	"github.com/common-nighthawk/go-figure"
	bannercolor "github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/notification"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/properties"
)

func printBanner() {
	figure1 := figure.NewFigure("Change", "isometric1", true)
	figure2 := figure.NewFigure("Map", "isometric1", true)
	bannercolor.Cyan(figure1.String())
	bannercolor.Cyan(figure2.String())
	fmt.Println()
}

// app carries the loaded configuration into every command.
type app struct {
	cfg     *properties.Config
	logger  *logrus.Logger
	discord *notification.Discord
}

var (
	cli        = &app{}
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "changemap",
	Short: "Detect water and built-up change between Sentinel-2 scenes",
	Long: `Compare two Sentinel-2 L2A acquisitions of the same area and map where
	water or built-up surface persisted, appeared or disappeared.

	Configuration is read from .env, an optional YAML/JSON file given with
	--config and the environment (COPERNICUS_CLIENT_ID, TUNING_GSD_METERS, ...).
	Without a subcommand the interactive menu starts.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := properties.Load(configPath)
		if err != nil {
			return err
		}
		logger, err := properties.NewLogger(logLevel(cfg.LogLevel))
		if err != nil {
			return err
		}
		cli.cfg = cfg
		cli.logger = logger
		cli.discord = notification.NewDiscord(cfg.DiscordErrorNotificationURL, cfg.DiscordSuccessNotificationURL)
		godal.RegisterAll()
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMenu(cmd.Context())
	},
}

// logLevel lets --debug and --verbose override the configured level.
func logLevel(configured string) string {
	switch {
	case viper.GetBool("debug"):
		return "debug"
	case viper.GetBool("verbose"):
		return "info"
	default:
		return configured
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML or JSON config file")
	rootCmd.PersistentFlags().Bool("debug", false, "Log at debug level")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log at info level")
	for _, name := range []string{"debug", "verbose"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			logrus.Exit(1)
		}
	}
}

// reportPanic prints the panic location and forwards it to the error
// channel before exiting.
func reportPanic(ctx context.Context) {
	r := recover()
	if r == nil {
		return
	}
	pc, file, line, ok := runtime.Caller(3)
	location := "Unknown location"
	if ok {
		location = fmt.Sprintf("%s:%d in %s", file, line, runtime.FuncForPC(pc).Name())
	}

	fmt.Printf("\n\033[31mPANIC: %v\033[0m\n", r)
	fmt.Printf("\033[31mLocation: %s\033[0m\n", location)
	fmt.Printf("\033[31mExiting...\033[0m\n")

	if cli.discord != nil {
		msg := fmt.Sprintf("Change map CLI panic:\n\n%v\n\nLocation: %s\n\nStack trace:\n%s", r, location, debug.Stack())
		if err := cli.discord.SendError(ctx, msg); err != nil {
			fmt.Printf("\033[31mFailed to send notification: %s\033[0m\n", err.Error())
		}
	}
	os.Exit(2)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer reportPanic(ctx)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
