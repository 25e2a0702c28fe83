// Gwctl is a command line utility for Ecowitt-compatible weather gateways.
//
// It discovers gateways on the local network, reads live sensor data,
// sensor registration state, rain counters, calibration settings and
// firmware versions over the gateway's TCP command port.
//
// Usage:
//
//	gwctl [command] [flags]
//
// See 'gwctl --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lanweather/gwclient/internal/constants"
	"github.com/lanweather/gwclient/internal/log"
	"github.com/lanweather/gwclient/pkg/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var (
	configFile string
	deviceIP   string
	devicePort int
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "gwctl",
	Short: "Weather gateway utility",
	Long: `A utility for Ecowitt-compatible LAN weather gateways
(GW1000, GW1100, GW2000, WH2650, WH2850, WN1900).

Discovers gateways from their UDP self-announcements and talks to the
TCP command port for live data, sensor state, rain counters, calibration
and firmware information.`,
	Version:      constants.Version,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.Init(debug)
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&deviceIP, "device", "", "Device IP address (skips discovery)")
	rootCmd.PersistentFlags().IntVar(&devicePort, "port", config.DefaultPort, "Device command port")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

// loadConfig merges the config file, if any, with the command line flags.
// Flags win over the file.
func loadConfig() (*config.Config, error) {
	cfg := (&config.Config{}).Default()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if deviceIP != "" {
		cfg.IPOverride = deviceIP
	}
	if rootCmd.PersistentFlags().Changed("port") || cfg.PortOverride == 0 {
		cfg.PortOverride = devicePort
	}
	if debug {
		cfg.Debug = true
	}
	return cfg, nil
}
