package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/luhtfiimanal/go-sc64"
	"github.com/luhtfiimanal/go-sc64/internal/server"
)

type listCommand struct{}

func (c *listCommand) Execute(args []string) error {
	if _, err := setup(); err != nil {
		return err
	}
	devices, err := sc64.ListLocalDevices()
	if err != nil {
		return err
	}
	for _, d := range devices {
		fmt.Printf("%s\t%s\n", d.Port, d.SerialNumber)
	}
	return nil
}

type execCommand struct {
	ID          string `long:"id" required:"true" description:"command id, a single character or a number"`
	Arg0        uint32 `long:"arg0" base:"0" description:"first argument"`
	Arg1        uint32 `long:"arg1" base:"0" description:"second argument"`
	Data        string `long:"data" description:"payload as hex"`
	NoResponse  bool   `long:"no-response" description:"don't wait for a response"`
	IgnoreError bool   `long:"ignore-error" description:"print the payload of an error response"`
}

func (c *execCommand) Execute(args []string) error {
	env, err := setup()
	if err != nil {
		return err
	}
	id, err := parseCommandID(c.ID)
	if err != nil {
		return err
	}
	data, err := hex.DecodeString(c.Data)
	if err != nil {
		return fmt.Errorf("invalid --data: %w", err)
	}

	link, err := env.openLink(context.Background())
	if err != nil {
		return err
	}
	defer link.Close()
	env.log.Debug().Str("link", link.ID().String()).Uint8("id", id).Msg("executing command")

	out, err := link.ExecuteCommandRaw(&sc64.Command{
		ID:   id,
		Args: [2]uint32{c.Arg0, c.Arg1},
		Data: data,
	}, c.NoResponse, c.IgnoreError)
	if err != nil {
		return err
	}
	if len(out) > 0 {
		fmt.Println(hex.EncodeToString(out))
	}
	return nil
}

// parseCommandID accepts 'v', "0x76" or "118".
func parseCommandID(raw string) (uint8, error) {
	if len(raw) == 1 {
		return raw[0], nil
	}
	v, err := strconv.ParseUint(raw, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid --id %q", raw)
	}
	return uint8(v), nil
}

type monitorCommand struct {
	Interval time.Duration `long:"interval" default:"10ms" description:"sleep between polls when idle"`
}

func (c *monitorCommand) Execute(args []string) error {
	env, err := setup()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	link, err := env.openLink(ctx)
	if err != nil {
		return err
	}
	defer link.Close()
	env.serveMetrics(ctx)
	env.log.Info().Str("link", link.ID().String()).Msg("monitoring packets")

	for ctx.Err() == nil {
		packet, err := link.ReceivePacket()
		if err != nil {
			return err
		}
		if packet == nil {
			time.Sleep(c.Interval)
			continue
		}
		fmt.Printf("%c\t%s\n", packet.ID, hex.EncodeToString(packet.Data))
	}
	return nil
}

type serverCommand struct {
	Address string `short:"a" long:"address" description:"listen address, overrides server.address"`
}

func (c *serverCommand) Execute(args []string) error {
	env, err := setup()
	if err != nil {
		return err
	}
	if env.conf.Device.Remote != "" {
		return errors.New("server needs a local device")
	}
	address := env.conf.Server.Address
	if c.Address != "" {
		address = c.Address
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	port, err := env.localPort()
	if err != nil {
		return err
	}
	backend, err := sc64.OpenSerial(port, env.linkOptions()...)
	if err != nil {
		return err
	}
	defer backend.Close()
	env.serveMetrics(ctx)

	srv := server.New(backend, server.Config{
		Address:   address,
		KeepAlive: env.conf.Server.KeepAlive,
		Options:   env.conf.Link.Options(),
	}, env.log, env.registry)
	return srv.ListenAndServe(ctx)
}
