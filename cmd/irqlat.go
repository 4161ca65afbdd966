package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"irqlat/pkg/app"
	"irqlat/pkg/app/config"
	"irqlat/pkg/diag"
	"irqlat/pkg/irqlat"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"github.com/womat/debug"
)

const defaultConfigFile = "/opt/womat/config/" + app.MODULE + ".yaml"

func main() {
	exitCode := 1
	defer func() {
		os.Exit(exitCode)
	}()

	// cfg holds the application configuration
	cfg := config.NewConfig()

	cliApp := &cli.App{
		Name:    app.MODULE,
		Usage:   "irq latency and gpio toggle speed test",
		Version: app.VERSION,
		Description: "Produce the signals to measure irq latency and gpio toggle speed with an oscilloscope." +
			"\n The test pin (output) must be jumpered to the irq pin (input)." +
			"\n The latency test sets the test pin high, the irq handler of the irq pin sets it low again:" +
			"\n the pulse width is the irq latency plus the time to set a gpio pin." +
			"\n The toggle test sets and clears the test pin in a tight loop.",
		UsageText: "irqlat [--config <file>] [--log standard|debug|trace] [command]" +
			"\n\nEXAMPLE:" +
			"\n\tstart the service and use the configuration file irqlat.yaml" +
			"\n\t\tirqlat --config /opt/womat/irqlat.yaml" +
			"\n\trun a latency test through the control fifo of the service" +
			"\n\t\techo 1 > /run/irqlat/ctl" +
			"\n\trun a single toggle test without the service" +
			"\n\t\tirqlat toggle",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Destination: &cfg.Flag.ConfigFile, Value: defaultConfigFile, Usage: "load configuration from `FILE`"},
			&cli.StringFlag{Name: "log", Aliases: []string{"l"}, Destination: &cfg.Flag.Debug, Value: "", Usage: "`LEVEL` defines the log level (standard|debug|trace)"},
		},
		Before: func(ctx *cli.Context) error {
			if err := cfg.LoadConfig(); err != nil {
				return err
			}

			debug.SetDebug(cfg.Debug.File, cfg.Debug.Flag)
			return nil
		},
		After: func(ctx *cli.Context) error {
			if cfg.Debug.File != nil {
				debug.InfoLog.Printf("closing debug file %s", cfg.Debug.FileString)
				_ = cfg.Debug.File.Close()
			}
			return nil
		},
		Action: func(ctx *cli.Context) error {
			a, err := app.New(cfg)
			defer func() {
				debug.InfoLog.Printf("closing app %s", app.Version())
				_ = a.Close()
			}()

			if err != nil {
				return err
			}

			debug.InfoLog.Printf("starting app %s", app.Version())
			if err = a.Run(); err != nil {
				return err
			}

			// capture exit signals to ensure resources are released on exit.
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			// wait for am os.Interrupt signal (CTRL C) or a failed control channel
			select {
			case sig := <-quit:
				debug.InfoLog.Printf("Got %s signal. Aborting...", sig)
			case <-a.Shutdown():
				debug.ErrorLog.Print("control channel failed. Aborting...")
			}

			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "latency",
				Usage:  "run a single latency test",
				Action: runOnce(cfg, "1"),
			},
			{
				Name:   "toggle",
				Usage:  "run a single toggle test",
				Action: runOnce(cfg, "0"),
			},
			{
				Name:  "irqinfo",
				Usage: "show the kernel irqs of the consumer while a test is running",
				Action: func(ctx *cli.Context) error {
					b, err := json.MarshalIndent(diag.Lines(cfg.Gpio.Consumer), "", "  ")
					if err != nil {
						return err
					}
					fmt.Println(string(b))
					return nil
				},
			},
		},
	}

	// we expect to have more command line flags in the future - sort them
	sort.Sort(cli.FlagsByName(cliApp.Flags))
	sort.Sort(cli.CommandsByName(cliApp.Commands))

	err := cliApp.Run(os.Args)
	if err != nil {
		debug.FatalLog.Print(err)
		exitCode = 1
		return
	}

	exitCode = 0
	return
}

// runOnce runs a single command without starting the control channels.
// A timed out latency test is reported as error.
func runOnce(cfg *config.Config, cmd string) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		a, err := app.New(cfg)
		defer func() { _ = a.Close() }()
		if err != nil {
			return err
		}

		if err = a.Init(); err != nil {
			return err
		}

		sctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		r, err := a.Dispatcher().Dispatch(sctx, []byte(cmd))
		if err != nil {
			return err
		}

		fmt.Printf("%v test %v\n", r.Test, r.Outcome)
		if r.Outcome == irqlat.TimedOut {
			return errors.New("timed out waiting for interrupt, did you forget to jumper the pins?")
		}
		return nil
	}
}
