// Command plant-waterer drives a single irrigation pump from a GPIO relay,
// watering on demand or on a fixed schedule configured over MQTT or HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/sweeney/plant-waterer/internal/actuator"
	"github.com/sweeney/plant-waterer/internal/attr"
	"github.com/sweeney/plant-waterer/internal/clock"
	"github.com/sweeney/plant-waterer/internal/config"
	"github.com/sweeney/plant-waterer/internal/events"
	"github.com/sweeney/plant-waterer/internal/gpio"
	"github.com/sweeney/plant-waterer/internal/logging"
	"github.com/sweeney/plant-waterer/internal/logic"
	"github.com/sweeney/plant-waterer/internal/manager"
	"github.com/sweeney/plant-waterer/internal/mqtt"
	"github.com/sweeney/plant-waterer/internal/settings"
	"github.com/sweeney/plant-waterer/internal/status"
	"github.com/sweeney/plant-waterer/internal/web"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := config.Defaults()
	var printState, printConfig bool

	cmd := &cobra.Command{
		Use:           "plant-waterer",
		Short:         "Single-pump irrigation controller",
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadConfig(&opts, cmd); err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := opts.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			if printConfig {
				data, err := config.Marshal(&opts)
				if err != nil {
					return fmt.Errorf("render config: %w", err)
				}
				fmt.Print(string(data))
				return nil
			}
			if printState {
				on, err := gpio.ReadPin(opts.GPIOChip, opts.PumpPin, opts.ActiveLow)
				if err != nil {
					return fmt.Errorf("read gpio: %w", err)
				}
				fmt.Printf("Pump: %s\n", logic.StateOf(on))
				return nil
			}
			return run(opts)
		},
	}

	opts.RegisterFlags(cmd.Flags())
	cmd.Flags().BoolVar(&printState, "print-state", false, "Print current pump state and exit")
	cmd.Flags().BoolVar(&printConfig, "print-config", false, "Print resolved configuration and exit")
	return cmd
}

func run(opts config.Options) error {
	logging.Initialize(logging.Config{
		Level:   opts.LoggingLevel,
		Format:  opts.LoggingFormat,
		Modules: opts.Modules(),
	})
	logger := logging.GetLogger("main")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	driver, err := gpio.NewRealDriver(opts.GPIOChip, opts.PumpPin, opts.ActiveLow)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer func() {
		if err := driver.Close(); err != nil {
			logger.Error("release gpio", "error", err)
		}
	}()

	store := settings.NewStore(uint16(opts.IntervalMinutes), uint16(opts.AmountML))
	tracker := status.NewTracker(time.Now(), status.Config{
		TickMs:      opts.Tick.Milliseconds(),
		HeartbeatMs: opts.Heartbeat.Milliseconds(),
		PumpPin:     opts.PumpPin,
		ActiveLow:   opts.ActiveLow,
		Broker:      opts.MQTTBroker,
		TopicPrefix: opts.MQTTPrefix,
		HTTPAddr:    opts.HTTPAddr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	bus := events.New()
	defer bus.Close()

	svc := attr.NewService(store, bus)
	pump := actuator.New(driver, clock.Real{})
	mgr, err := manager.New(store, tracker, pump, clock.Real{}, bus)
	if err != nil {
		return err
	}

	// A nil client disables MQTT; runLoop and the publishers check for it.
	var client mqtt.Client
	if opts.MQTTBroker != "" {
		rc := mqtt.NewRealClient(ctx, mqtt.Options{
			Broker:   opts.MQTTBroker,
			ClientID: opts.MQTTClientID,
			Username: opts.MQTTUsername,
			Password: opts.MQTTPassword,
			Prefix:   opts.MQTTPrefix,
		})
		defer rc.Close()
		client = rc

		if err := client.SubscribeWrites(svc.Write); err != nil {
			logger.Warn("subscribe to attribute writes", "error", err)
		}
		stop := mqtt.ForwardAttributes(bus, client, logging.GetLogger("mqtt"))
		defer stop()

		if err := client.PublishDiscovery(); err != nil {
			logger.Warn("publish discovery", "error", err)
		}
		svc.PublishConfiguration()

		tracker.SetMQTTConnected(client.IsConnected())
		snap := tracker.Snapshot()
		publishSystem(logger, client, mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		})
	}

	if opts.HTTPAddr != "" {
		srv := web.New(opts.HTTPAddr, tracker, svc)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer stopHTTP(logger, srv, 5*time.Second)
		logger.Info("http status server listening", "addr", opts.HTTPAddr)
	}

	logger.Info("started",
		"tick", opts.Tick,
		"pin", opts.PumpPin,
		"active_low", opts.ActiveLow,
		"broker", opts.MQTTBroker,
		"heartbeat", opts.Heartbeat)
	daemon.SdNotify(false, daemon.SdNotifyReady)

	ticker := time.NewTicker(opts.Tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var mqttStatus mqtt.ConnectionStatus
	var publisher mqtt.Publisher
	if client != nil {
		mqttStatus, publisher = client, client
	}
	return runLoop(mgr, svc, publisher, mqttStatus, tracker, opts.Heartbeat, time.Now, ticker.C, sigCh)
}

func runLoop(mgr *manager.Manager, svc *attr.Service, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	logger := logging.GetLogger("main")
	hb := logic.NewHeartbeat(now())

	refresh := func() {
		tracker.SetRejectedWrites(svc.Rejected())
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
	}

	for {
		select {
		case s := <-sig:
			logger.Info("shutting down", "signal", s)
			daemon.SdNotify(false, daemon.SdNotifyStopping)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}

			if err := mgr.Shutdown(); err != nil {
				logger.Error("manager shutdown", "error", err)
			}

			refresh()
			snap := tracker.Snapshot()
			publishSystem(logger, publisher, mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "SHUTDOWN",
				Reason:     signalName,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", signalName),
			})
			return nil

		case <-tick:
			t := now()
			mgr.Tick()
			refresh()
			daemon.SdNotify(false, daemon.SdNotifyWatchdog)

			if hbData := hb.Check(t, heartbeat); hbData != nil {
				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil {
					tracker.SetNetwork(net)
				}
				snap := tracker.Snapshot()
				logger.Info("heartbeat",
					"uptime", hbData.Uptime,
					"mode", snap.Settings.Mode,
					"cycles", snap.Counts.Cycles,
					"driver_failures", snap.Counts.DriverFailures,
					"rejected_writes", snap.Counts.RejectedWrites)

				publishSystem(logger, publisher, mqtt.SystemEvent{
					Timestamp:  hbData.Timestamp,
					Event:      "HEARTBEAT",
					RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
				})
			}
		}
	}
}

type httpShutdowner interface {
	Shutdown(ctx context.Context) error
}

// stopHTTP drains the status server, giving up after timeout.
func stopHTTP(logger *slog.Logger, srv httpShutdowner, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("http server shutdown", "error", err)
	}
}

func publishSystem(logger *slog.Logger, publisher mqtt.Publisher, event mqtt.SystemEvent) {
	if publisher == nil {
		return
	}
	if err := publisher.PublishSystem(event); err != nil {
		logger.Warn("publish system event", "event", event.Event, "error", err)
		return
	}
	logger.Debug("published system event", "event", event.Event)
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
