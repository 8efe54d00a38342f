// Command keypad-sensor scans a GPIO key matrix and publishes key transitions to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/keypad-sensor/internal/config"
	"github.com/sweeney/keypad-sensor/internal/entry"
	"github.com/sweeney/keypad-sensor/internal/events"
	"github.com/sweeney/keypad-sensor/internal/gpio"
	"github.com/sweeney/keypad-sensor/internal/keypad"
	"github.com/sweeney/keypad-sensor/internal/mqtt"
	"github.com/sweeney/keypad-sensor/internal/remote"
	"github.com/sweeney/keypad-sensor/internal/status"
	"github.com/sweeney/keypad-sensor/internal/web"
)

func main() {
	cfg, printState, err := loadConfig(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := run(cfg, printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// loadConfig parses flags, reads the optional -config file and applies every
// explicitly set flag on top of it.
func loadConfig(args []string) (*config.Config, bool, error) {
	def := config.DefaultConfig()
	fs := flag.NewFlagSet("keypad-sensor", flag.ContinueOnError)

	configPath := fs.String("config", "", "Config file (.toml, .yaml, .yml or .json)")
	rows := fs.Int("rows", def.Keypad.Rows, "Number of keypad rows")
	cols := fs.Int("cols", def.Keypad.Columns, "Number of keypad columns")
	rowPins := fs.String("row-pins", config.FormatPins(def.Keypad.RowPins), "Comma-separated GPIO lines for rows")
	colPins := fs.String("col-pins", config.FormatPins(def.Keypad.ColumnPins), "Comma-separated GPIO lines for columns")
	keymap := fs.String("keymap", def.Keypad.Keymap, "Key characters in row-major order")
	poll := fs.Duration("poll", time.Duration(def.Keypad.Poll), "Scan polling interval")
	debounce := fs.Duration("debounce", time.Duration(def.Keypad.Debounce), "Minimum time between accepted scans")
	hold := fs.Duration("hold", time.Duration(def.Keypad.Hold), "Press duration before HOLD")
	backend := fs.String("gpio", def.GPIO.Backend, "GPIO backend: cdev, periph or rpio")
	chip := fs.String("chip", def.GPIO.Chip, "GPIO chip for the cdev backend")
	broker := fs.String("broker", def.MQTT.Broker, "MQTT broker address")
	clientID := fs.String("client-id", def.MQTT.ClientID, "MQTT client ID")
	prefix := fs.String("topic-prefix", def.MQTT.TopicPrefix, "MQTT topic prefix")
	display := fs.String("display-topic", def.MQTT.DisplayTopic, "MQTT topic for entered lines (empty to disable)")
	heartbeat := fs.Duration("heartbeat", time.Duration(def.MQTT.Heartbeat), "Heartbeat interval (0 to disable)")
	httpAddr := fs.String("http", def.HTTP.Addr, "HTTP status address (empty to disable)")
	printState := fs.Bool("print-state", false, "Scan once, print pressed keys and exit")

	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, false, err
	}

	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "rows":
			cfg.Keypad.Rows = *rows
		case "cols":
			cfg.Keypad.Columns = *cols
		case "row-pins":
			pins, err := config.ParsePins(*rowPins)
			if err != nil {
				flagErr = errors.Join(flagErr, fmt.Errorf("-row-pins: %w", err))
			}
			cfg.Keypad.RowPins = pins
		case "col-pins":
			pins, err := config.ParsePins(*colPins)
			if err != nil {
				flagErr = errors.Join(flagErr, fmt.Errorf("-col-pins: %w", err))
			}
			cfg.Keypad.ColumnPins = pins
		case "keymap":
			cfg.Keypad.Keymap = *keymap
		case "poll":
			cfg.Keypad.Poll = config.Duration(*poll)
		case "debounce":
			cfg.Keypad.Debounce = config.Duration(*debounce)
		case "hold":
			cfg.Keypad.Hold = config.Duration(*hold)
		case "gpio":
			cfg.GPIO.Backend = *backend
		case "chip":
			cfg.GPIO.Chip = *chip
		case "broker":
			cfg.MQTT.Broker = *broker
		case "client-id":
			cfg.MQTT.ClientID = *clientID
		case "topic-prefix":
			cfg.MQTT.TopicPrefix = *prefix
		case "display-topic":
			cfg.MQTT.DisplayTopic = *display
		case "heartbeat":
			cfg.MQTT.Heartbeat = config.Duration(*heartbeat)
		case "http":
			cfg.HTTP.Addr = *httpAddr
		}
	})
	if flagErr != nil {
		return nil, false, flagErr
	}

	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	return cfg, *printState, nil
}

func run(cfg *config.Config, printState bool) error {
	pins, err := gpio.Open(cfg.GPIO.Backend, cfg.GPIO.Chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer pins.Close()

	kp, err := keypad.New(cfg.KeypadConfig(), pins)
	if err != nil {
		return fmt.Errorf("init keypad: %w", err)
	}
	kp.SetDebounceTime(time.Duration(cfg.Keypad.Debounce))
	kp.SetHoldTime(time.Duration(cfg.Keypad.Hold))

	// Print state mode
	if printState {
		bm, err := kp.Scan()
		if err != nil {
			return fmt.Errorf("scan keypad: %w", err)
		}
		fmt.Print(bm.Format(kp.Columns(), kp.Keymap()))
		return nil
	}

	topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix, cfg.MQTT.DisplayTopic)
	publisher, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, topics)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	injector := remote.NewInjector(kp.Keymap(), kp.Columns())
	if err := subscribeCommands(publisher, topics.Command, injector); err != nil {
		log.Printf("failed to subscribe to %s: %v", topics.Command, err)
	}

	var line *entry.Line
	if topics.Display != "" {
		line = cfg.EntryLine()
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		Rows:        kp.Rows(),
		Columns:     kp.Columns(),
		Keymap:      string(kp.Keymap()),
		PollMs:      time.Duration(cfg.Keypad.Poll).Milliseconds(),
		DebounceMs:  time.Duration(cfg.Keypad.Debounce).Milliseconds(),
		HoldMs:      time.Duration(cfg.Keypad.Hold).Milliseconds(),
		HeartbeatMs: time.Duration(cfg.MQTT.Heartbeat).Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPPort:    cfg.HTTP.Addr,
		GPIO:        cfg.GPIO.Backend,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	tracker.SetMQTTConnected(publisher.IsConnected())

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, injector)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	log.Printf("started: %dx%d keypad gpio=%s poll=%v debounce=%v hold=%v broker=%s heartbeat=%v",
		kp.Rows(), kp.Columns(), cfg.GPIO.Backend, time.Duration(cfg.Keypad.Poll),
		time.Duration(cfg.Keypad.Debounce), time.Duration(cfg.Keypad.Hold),
		cfg.MQTT.Broker, time.Duration(cfg.MQTT.Heartbeat))

	ticker := time.NewTicker(time.Duration(cfg.Keypad.Poll))
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(kp, injector, line, publisher, publisher, tracker, time.Duration(cfg.MQTT.Heartbeat), time.Now, ticker.C, sigCh)
}

// subscribeCommands routes remote key commands on topic to the injector.
// Malformed commands are logged and ignored.
func subscribeCommands(sub mqtt.Subscriber, topic string, injector *remote.Injector) error {
	return sub.Subscribe(topic, func(payload []byte) {
		cmd, err := injector.Handle(payload)
		if err != nil {
			log.Printf("command ignored: %v", err)
			return
		}
		log.Printf("command: %s %q", cmd.Verb, cmd.Key)
	})
}

func runLoop(kp *keypad.Keypad, injector *remote.Injector, line *entry.Line, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	startTime := now()
	collector := events.NewCollector(kp, startTime)
	kp.AddEventListener(collector.OnKey)

	updateTracker := func() {
		if tracker == nil {
			return
		}
		tracker.Update(status.ActiveKeys(kp.Keys()), collector.CountsSnapshot())
		if injector != nil {
			tracker.SetRemoteKeys(injector.Pressed())
		}
		if line != nil {
			tracker.SetEntry(line.String())
		}
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
	}

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				updateTracker()
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()
			if !kp.Due(t) {
				continue
			}

			bm, err := kp.Scan()
			if err != nil {
				log.Printf("keypad scan error: %v", err)
				continue
			}
			if injector != nil {
				injector.Apply(bm)
			}

			collector.Mark(t)
			kp.Update(bm, t)

			for _, event := range collector.Drain() {
				log.Printf("event: %s %q (code=%d slot=%d)", event.State, event.Key, event.Code, event.Slot)
				if err := publisher.Publish(event); err != nil {
					log.Printf("publish error: %v", err)
					// Don't crash on publish failure
				}

				if line == nil || event.State != keypad.Pressed {
					continue
				}
				if text, done := line.Press(event.Key); done {
					log.Printf("entry: submitted %q", text)
					if err := publisher.PublishText(text); err != nil {
						log.Printf("display publish error: %v", err)
					}
				}
			}

			// Check for heartbeat
			if hbData := collector.CheckHeartbeat(t, heartbeat); hbData != nil {
				log.Printf("heartbeat: uptime=%v pressed=%d hold=%d released=%d",
					hbData.Uptime, hbData.Counts.Pressed, hbData.Counts.Hold, hbData.Counts.Released)

				hbEvent := mqtt.SystemEvent{
					Timestamp: hbData.Timestamp,
					Event:     "HEARTBEAT",
				}
				if tracker != nil {
					// Refresh network info for heartbeat
					if net := readNetworkInfo(); net != nil {
						tracker.SetNetwork(net)
					}
					updateTracker()
					snap := tracker.Snapshot()
					hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}

			// Update status tracker for HTTP consumers
			updateTracker()
		}
	}
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
