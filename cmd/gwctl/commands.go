package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lanweather/gwclient/internal/discovery"
	"github.com/lanweather/gwclient/internal/firmware"
	"github.com/lanweather/gwclient/internal/parser"
	"github.com/lanweather/gwclient/internal/protocol"
	"github.com/lanweather/gwclient/internal/sensors"
	"github.com/lanweather/gwclient/internal/session"
	"github.com/lanweather/gwclient/internal/transport"
	"github.com/lanweather/gwclient/pkg/config"
)

var (
	scanTimeout int
	showAll     bool
)

func init() {
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(liveCmd)
	rootCmd.AddCommand(sensorsCmd)
	rootCmd.AddCommand(rainCmd)
	rootCmd.AddCommand(firmwareCmd)
	rootCmd.AddCommand(systemCmd)
	rootCmd.AddCommand(calibrationCmd)
	rootCmd.AddCommand(watchCmd)

	discoverCmd.Flags().IntVar(&scanTimeout, "timeout", 30, "Scan timeout in seconds")
	sensorsCmd.Flags().BoolVar(&showAll, "all", false, "Include disabled and registering slots")
}

// resolveAddr returns the device command endpoint: the configured address
// when one is pinned, otherwise the first gateway heard announcing itself.
func resolveAddr(ctx context.Context, cfg *config.Config) (string, error) {
	if cfg.IPOverride != "" {
		return fmt.Sprintf("%s:%d", cfg.IPOverride, cfg.PortOverride), nil
	}

	listenCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	l, err := discovery.Listen(listenCtx, discovery.MonitorPort)
	if err != nil {
		return "", err
	}
	devices, err := l.Scan(ctx, time.Duration(cfg.ScanDuration))
	if err != nil {
		return "", err
	}
	return devices[0].Addr(), nil
}

// openCommands connects to the device and wraps the connection in a
// command session. The caller owns the returned transport.
func openCommands(ctx context.Context, cfg *config.Config) (*session.CommandSession, *transport.Conn, error) {
	addr, err := resolveAddr(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	tr := transport.New(addr, time.Duration(cfg.CommandTimeout))
	if err := tr.Connect(ctx); err != nil {
		return nil, nil, err
	}
	return session.NewCommandSession(tr, cfg.MaxRetries, time.Duration(cfg.RetryWait), time.Duration(cfg.CommandTimeout), time.Duration(cfg.BroadcastTimeout)), tr, nil
}

// runDevice handles the config/connect/teardown boilerplate shared by the
// one-shot device commands.
func runDevice(fn func(ctx context.Context, cfg *config.Config, cs *session.CommandSession) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		cs, tr, err := openCommands(ctx, cfg)
		if err != nil {
			return err
		}
		defer tr.Close()
		return fn(ctx, cfg, cs)
	}
}

func printReading(r parser.Reading) {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-24s %v\n", name, r[name])
	}
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Listen for gateway announcements on the local network",
	Long: `Listen for the UDP self-announcements gateways broadcast on port 46000
and list every device heard before the timeout.`,
	Example: `  # Listen for 30 seconds (default)
  gwctl discover

  # Quick 5-second scan
  gwctl discover --timeout 5`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := loadConfig(); err != nil {
			return err
		}
		fmt.Printf("Listening for gateway announcements (timeout: %ds)...\n\n", scanTimeout)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		l, err := discovery.Listen(ctx, discovery.MonitorPort)
		if err != nil {
			return err
		}
		devices, err := l.Scan(ctx, time.Duration(scanTimeout)*time.Second)
		if err != nil {
			fmt.Println("No gateways found.")
			fmt.Println("\nGateways announce themselves periodically; a longer --timeout")
			fmt.Println("or the --device flag may help.")
			return nil
		}

		fmt.Printf("Found %d gateway(s):\n\n", len(devices))
		for i, dev := range devices {
			fmt.Printf("%d. %s (%s)\n", i+1, dev.Name, dev.Model)
			fmt.Printf("   MAC:     %s\n", dev.MAC)
			fmt.Printf("   Address: %s\n", dev.Addr())
			fmt.Println()
		}
		return nil
	},
}

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Read one live data snapshot",
	RunE: runDevice(func(ctx context.Context, cfg *config.Config, cs *session.CommandSession) error {
		payload, err := cs.Execute(ctx, protocol.CmdLiveData, nil)
		if err != nil {
			return err
		}
		policy := parser.IgnoreUnknownFields
		if cfg.LogUnknownFields {
			policy = parser.LogUnknownFields
		}
		reading, err := parser.New(policy).ParseLiveData(payload)
		if err != nil {
			return err
		}
		fmt.Printf("Live data (%d fields):\n", len(reading))
		printReading(reading)
		return nil
	}),
}

var sensorsCmd = &cobra.Command{
	Use:   "sensors",
	Short: "Show the gateway's sensor registry",
	RunE: runDevice(func(ctx context.Context, cfg *config.Config, cs *session.CommandSession) error {
		payload, err := cs.Execute(ctx, protocol.CmdReadSensorIDNew, nil)
		if err != nil {
			return err
		}
		parsed, err := sensors.Parse(payload, sensors.ParseOptions{ShowBattery: cfg.ShowBattery})
		if err != nil {
			return err
		}

		fmt.Printf("%-10s %-8s %-10s %-8s %s\n", "SENSOR", "ID", "BATTERY", "SIGNAL", "STATE")
		for _, sn := range parsed {
			if !showAll && !sn.Registered() {
				continue
			}
			state := "ok"
			switch {
			case sn.ID == "fffffffe":
				state = "disabled"
			case sn.ID == "ffffffff":
				state = "registering"
			case sn.BatteryLow():
				state = "battery low"
			}
			fmt.Printf("%-10s %-8s %-10s %-8d %s\n", sn.Name, sn.ID, sn.Battery.String(), sn.Signal, state)
		}
		return nil
	}),
}

var rainCmd = &cobra.Command{
	Use:   "rain",
	Short: "Read rain counters",
	Long: `Read the gateway's rain counters. Devices with piezo rain support
answer CMD_READ_RAIN with per-gauge totals; older devices only answer
CMD_READ_RAINDATA, which this command falls back to.`,
	RunE: runDevice(func(ctx context.Context, cfg *config.Config, cs *session.CommandSession) error {
		if payload, err := cs.Execute(ctx, protocol.CmdReadRain, nil); err == nil {
			reading, perr := parser.New(parser.IgnoreUnknownFields).ParseRain(payload)
			if perr != nil {
				return perr
			}
			fmt.Println("Rain counters:")
			printReading(reading)
			return nil
		}

		payload, err := cs.Execute(ctx, protocol.CmdReadRainData, nil)
		if err != nil {
			return err
		}
		totals, err := parser.ParseRainTotals(payload)
		if err != nil {
			return err
		}
		fmt.Println("Rain counters:")
		printReading(totals.Fields())
		return nil
	}),
}

var firmwareCmd = &cobra.Command{
	Use:   "firmware",
	Short: "Show the device firmware version",
	RunE: runDevice(func(ctx context.Context, cfg *config.Config, cs *session.CommandSession) error {
		if cfg.FirmwareLatest != "" {
			status, err := firmware.NewMonitor(cs, time.Duration(cfg.FirmwareCheckInterval), cfg.FirmwareLatest).Check(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Firmware: %s\n", status.Current)
			if status.UpdateAvailable {
				fmt.Printf("Update available: %s\n", status.Latest)
			} else {
				fmt.Println("Up to date.")
			}
			return nil
		}

		payload, err := cs.Execute(ctx, protocol.CmdReadFirmwareVersion, nil)
		if err != nil {
			return err
		}
		version, err := parser.ParseFirmwareVersion(payload)
		if err != nil {
			return err
		}
		fmt.Printf("Firmware: %s\n", version)
		return nil
	}),
}

var systemCmd = &cobra.Command{
	Use:   "system",
	Short: "Show system parameters",
	RunE: runDevice(func(ctx context.Context, cfg *config.Config, cs *session.CommandSession) error {
		payload, err := cs.Execute(ctx, protocol.CmdReadStationMAC, nil)
		if err != nil {
			return err
		}
		mac, err := parser.ParseStationMAC(payload)
		if err != nil {
			return err
		}

		payload, err = cs.Execute(ctx, protocol.CmdReadSystemParams, nil)
		if err != nil {
			return err
		}
		params, err := parser.ParseSystemParams(payload)
		if err != nil {
			return err
		}

		fmt.Printf("MAC:            %s\n", mac)
		fmt.Printf("Frequency:      %s\n", params.Frequency)
		fmt.Printf("Outdoor sensor: %s\n", params.SensorType)
		fmt.Printf("Device clock:   %s\n", params.UTC.Format(time.RFC3339))
		fmt.Printf("Timezone index: %d\n", params.TimezoneIndex)
		fmt.Printf("DST:            %v\n", params.DST)
		return nil
	}),
}

var calibrationCmd = &cobra.Command{
	Use:   "calibration",
	Short: "Show calibration offsets and gains",
	RunE: runDevice(func(ctx context.Context, cfg *config.Config, cs *session.CommandSession) error {
		payload, err := cs.Execute(ctx, protocol.CmdReadCalibration, nil)
		if err != nil {
			return err
		}
		cal, err := parser.ParseCalibration(payload)
		if err != nil {
			return err
		}

		payload, err = cs.Execute(ctx, protocol.CmdReadGain, nil)
		if err != nil {
			return err
		}
		gain, err := parser.ParseGain(payload)
		if err != nil {
			return err
		}

		fmt.Println("Offsets:")
		fmt.Printf("  indoor temp:       %+.1f C\n", cal.InTemp)
		fmt.Printf("  indoor humidity:   %+d %%\n", cal.InHumid)
		fmt.Printf("  absolute pressure: %+.1f hPa\n", cal.AbsBaro)
		fmt.Printf("  relative pressure: %+.1f hPa\n", cal.RelBaro)
		fmt.Printf("  outdoor temp:      %+.1f C\n", cal.OutTemp)
		fmt.Printf("  outdoor humidity:  %+d %%\n", cal.OutHumid)
		fmt.Printf("  wind direction:    %+.0f deg\n", cal.WindDir)
		fmt.Println("Gains:")
		fmt.Printf("  uv: %.2f  solar: %.2f  wind: %.2f  rain: %.2f\n",
			gain.UV, gain.Solar, gain.Wind, gain.Rain)
		return nil
	}),
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll the gateway and stream field-mapped readings",
	Long: `Open a polling session against the gateway and print each reading as
it arrives, until interrupted. Readings are projected through the field
map, so the output names match what a host application would consume.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		addr, err := resolveAddr(ctx, cfg)
		if err != nil {
			return err
		}

		var redisc session.Rediscoverer
		if cfg.IPOverride == "" {
			redisc = func(ctx context.Context) (string, error) {
				return resolveAddr(ctx, cfg)
			}
		}

		s, err := session.Open(ctx, addr, cfg, redisc)
		if err != nil {
			return err
		}
		defer s.Close()

		fmt.Printf("Polling %s every %s, ctrl-c to stop.\n\n", addr, time.Duration(cfg.PollInterval))
		for {
			select {
			case <-ctx.Done():
				return nil
			case rec := <-s.Readings():
				fmt.Printf("%s (%d fields)\n", time.Now().Format(time.RFC3339), len(rec))
				printReading(parser.Reading(rec))
			}
		}
	},
}
