package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/thought-machine/go-flags"

	"github.com/luhtfiimanal/go-sc64"
	"github.com/luhtfiimanal/go-sc64/internal/config"
	"github.com/luhtfiimanal/go-sc64/internal/logging"
)

type globalOptions struct {
	ConfigFile string `short:"c" long:"conf" default:"sc64ctl.yaml" description:"config file (yaml or toml)"`
	Port       string `short:"p" long:"port" description:"serial port of a local device"`
	Remote     string `short:"r" long:"remote" description:"address of a remote bridge (host:port)"`
	Verbose    bool   `short:"v" long:"verbose" description:"log every frame"`
}

var opts globalOptions

// environment holds what every subcommand needs once flags are parsed.
type environment struct {
	conf     config.Configuration
	log      zerolog.Logger
	registry *prometheus.Registry
}

func setup() (*environment, error) {
	conf, err := config.Load(opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	if opts.Port != "" {
		conf.Device.Port, conf.Device.Remote = opts.Port, ""
	}
	if opts.Remote != "" {
		conf.Device.Remote, conf.Device.Port = opts.Remote, ""
	}
	if opts.Verbose {
		conf.Log.Level = "trace"
	}
	return &environment{
		conf:     conf,
		log:      logging.New("sc64ctl", conf.Log, nil),
		registry: prometheus.NewRegistry(),
	}, nil
}

func (e *environment) linkOptions() []sc64.Option {
	return append(e.conf.Link.Options(),
		sc64.WithBaudRate(e.conf.Device.BaudRate),
		sc64.WithLogger(e.log),
		sc64.WithMetrics(sc64.NewMetrics(e.registry)),
	)
}

// localPort returns the configured port or the only attached device.
func (e *environment) localPort() (string, error) {
	if e.conf.Device.Port != "" {
		return e.conf.Device.Port, nil
	}
	devices, err := sc64.ListLocalDevices()
	if err != nil {
		return "", err
	}
	if len(devices) > 1 {
		return "", fmt.Errorf("%d devices found, select one with --port", len(devices))
	}
	e.log.Info().Str("port", devices[0].Port).Str("serial", devices[0].SerialNumber).Msg("using device")
	return devices[0].Port, nil
}

func (e *environment) openLink(ctx context.Context) (*sc64.Link, error) {
	if e.conf.Device.Remote != "" {
		return sc64.NewRemote(ctx, e.conf.Device.Remote, e.linkOptions()...)
	}
	port, err := e.localPort()
	if err != nil {
		return nil, err
	}
	return sc64.NewLocal(port, e.linkOptions()...)
}

// serveMetrics exposes the registry when metrics.address is set.
func (e *environment) serveMetrics(ctx context.Context) {
	if e.conf.Metrics.Address == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              e.conf.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	context.AfterFunc(ctx, func() { srv.Close() })
	go func() {
		e.log.Info().Str("address", srv.Addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	parser.AddCommand("list", "List attached devices", "Print every SC64 attached over USB.", &listCommand{})
	parser.AddCommand("exec", "Execute a command", "Send one command and print the response payload as hex.", &execCommand{})
	parser.AddCommand("monitor", "Print device packets", "Print packets sent by the device until interrupted.", &monitorCommand{})
	parser.AddCommand("server", "Share a local device", "Expose a local device to remote hosts over TCP.", &serverCommand{})

	// flags.Default prints the error, including those returned by commands.
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
