package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/Xenon22pc/IR-Camera/htpa"
	"github.com/Xenon22pc/IR-Camera/publish"
)

type ProgramArgs struct {
	// Server Options
	Host string `short:"H" long:"host" env:"IRCAM_HOST" default:"127.0.0.1" description:"IP to listen on"`
	Port uint16 `short:"P" long:"port" env:"IRCAM_PORT" default:"27315" description:"Port to listen on"`

	// Sensor Options
	Interval  time.Duration `short:"I" long:"interval" env:"IRCAM_INTERVAL" default:"100ms" description:"Interval between frames"`
	I2CDevice string        `short:"D" long:"i2cdev" env:"IRCAM_I2CDEV" description:"The used I2C device (default: auto)"`
	I2CSpeed  string        `long:"i2c-speed" env:"IRCAM_I2C_SPEED" default:"1MHz" description:"I2C clock while streaming frames"`
	Table     string        `short:"T" long:"table" env:"IRCAM_TABLE" required:"true" description:"Lookup table JSON file for the sensor model"`
	UserTrim  bool          `long:"user-trim" env:"IRCAM_USER_TRIM" description:"Start with the user trim set instead of the factory one"`
	VDDPeriod time.Duration `long:"vdd-period" env:"IRCAM_VDD_PERIOD" default:"10s" description:"How often supply voltage is sampled"`

	// MQTT Options
	MQTTBroker   string `long:"mqtt-broker" env:"MQTT_BROKER" description:"MQTT broker, e.g. tcp://localhost:1883 (publishing is off when empty)"`
	MQTTClientID string `long:"mqtt-client-id" env:"MQTT_CLIENT_ID" default:"ir-camera" description:"MQTT client ID"`
	MQTTUsername string `long:"mqtt-username" env:"MQTT_USERNAME" description:"MQTT username"`
	MQTTPassword string `long:"mqtt-password" env:"MQTT_PASSWORD" description:"MQTT password"`
	MQTTTopic    string `long:"mqtt-topic" env:"MQTT_TOPIC" default:"thermal/{device_id}/stats" description:"Topic pattern for frame statistics"`
	DeviceID     string `long:"device-id" env:"DEVICE_ID" description:"Device ID for MQTT topics (default: sensor device ID)"`
}

var args ProgramArgs

const (
	MIN_TIMEOUT_SECONDS = 2
)

func getOutboundIP() net.IP {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)

	return localAddr.IP
}

func setupI2CBus(i2cdev string) i2c.BusCloser {
	if _, err := host.Init(); err != nil {
		log.Fatalf("Initialization failed: %v", err)
	}

	bus, err := i2creg.Open(i2cdev)
	if err != nil {
		log.Fatalf("Couldn't open I2C device: %v", err)
	}

	return bus
}

func setBusSpeed(bus i2c.Bus, f physic.Frequency) {
	// Not every bus driver can change its clock.
	if err := bus.SetSpeed(f); err != nil {
		log.Printf("Couldn't set I2C speed to %s: %v", f, err)
	}
}

// setupSensor returns the device. the caller has the responsibility to close the bus
func setupSensor(bus i2c.Bus, table *htpa.Table) *htpa.Dev {
	var speed physic.Frequency
	if err := speed.Set(args.I2CSpeed); err != nil {
		log.Fatalf("Invalid I2C speed %q: %v", args.I2CSpeed, err)
	}
	if speed > htpa.SensorMaxSpeed {
		speed = htpa.SensorMaxSpeed
	}

	// The calibration EEPROM shares the bus and is slower than the sensor.
	setBusSpeed(bus, htpa.EEPROMMaxSpeed)

	deviceOpts := htpa.DefaultOpts
	deviceOpts.UserTrim = args.UserTrim
	deviceOpts.VDDPeriod = args.VDDPeriod

	dev, err := htpa.NewI2C(bus, table, &deviceOpts)
	if err != nil {
		log.Fatalf("Couldn't initialize sensor: %v", err)
	}

	setBusSpeed(bus, speed)
	return dev
}

func startPublisher(ctx context.Context, dev *htpa.Dev, stats <-chan htpa.Stats) *publish.Client {
	if args.MQTTBroker == "" {
		// Keep the sensing loop running.
		go func() {
			for range stats {
			}
		}()
		return nil
	}

	client, err := publish.NewClient(publish.ClientConfig{
		Broker:   args.MQTTBroker,
		ClientID: args.MQTTClientID,
		Username: args.MQTTUsername,
		Password: args.MQTTPassword,
	})
	if err != nil {
		log.Fatalf("Couldn't connect to MQTT broker: %v", err)
	}

	deviceID := args.DeviceID
	if deviceID == "" {
		p, _ := dev.Pipeline().Profile()
		deviceID = strconv.FormatUint(uint64(p.DeviceID), 10)
	}

	publisher := publish.NewPublisher(client.Native(), publish.PublisherConfig{
		Topic:    args.MQTTTopic,
		DeviceID: deviceID,
		QoS:      0,
	}, stats)
	go publisher.Start(ctx)

	return client
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	args = ProgramArgs{}
	argParser := flags.NewParser(&args, flags.Default)

	_, err := argParser.Parse()
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		log.Fatal("arg parse fail")
	}

	table, err := htpa.LoadTable(args.Table)
	if err != nil {
		log.Fatalf("Couldn't load lookup table: %v", err)
	}
	log.Printf("Loaded lookup table %d (%d×%d)", table.Number, len(table.Signal), len(table.Ambient))

	// Boring i2c setup (error handling happens in these functions)
	bus := setupI2CBus(args.I2CDevice)
	defer bus.Close()

	dev := setupSensor(bus, table)

	// SenseContinuous will take one reading immediately before looping
	stats, err := dev.SenseContinuous(args.Interval)
	if err != nil {
		log.Fatalf("Couldn't start taking readings: %v", err)
	}
	defer dev.Halt()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if client := startPublisher(ctx, dev, stats); client != nil {
		defer client.Close()
	}

	timeoutLen := max(MIN_TIMEOUT_SECONDS, int(args.Interval/time.Second))

	addr := fmt.Sprintf("%s:%d", args.Host, args.Port)
	srv := &http.Server{
		Addr:         addr,
		ReadTimeout:  time.Duration(timeoutLen) * time.Second,
		WriteTimeout: time.Duration(timeoutLen) * time.Second,
		IdleTimeout:  120 * time.Second,
		Handler:      newRouter(dev.Pipeline(), dev),
	}

	go func() {
		if args.Host == "0.0.0.0" {
			localIP := getOutboundIP() // resolve local IP for easier debugging
			log.Printf("Listening on %s:%d…\n", localIP.String(), args.Port)
		} else {
			log.Printf("Listening on %s…\n", addr)
		}

		err := srv.ListenAndServe()
		log.Printf("Shutdown (%v)\n", err)
	}()

	// Graceful shutdown on SIGINT (Ctrl+C) or SIGTERM.
	<-ctx.Done()

	// Give the server a timeout period of 4 seconds
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()
	// Doesn't block if no connections, but will otherwise wait until the timeout deadline.
	_ = srv.Shutdown(shutdownCtx)
}
