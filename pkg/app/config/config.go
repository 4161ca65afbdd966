package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"irqlat/pkg/raspberry"

	"github.com/womat/debug"
	"gopkg.in/yaml.v2"
)

// Config holds the application configuration.
// Config defines the struct of global config and the struct of the configuration file
type Config struct {
	Gpio      GpioConfig      `yaml:"gpio"`
	Latency   LatencyConfig   `yaml:"latency"`
	Toggle    ToggleConfig    `yaml:"toggle"`
	Control   ControlConfig   `yaml:"control"`
	Flag      FlagConfig      `yaml:"-"`
	Debug     DebugConfig     `yaml:"debug"`
	Webserver WebserverConfig `yaml:"webserver"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
}

// FlagConfig defines the configured flags (parameters)
type FlagConfig struct {
	Version    bool
	Debug      string
	ConfigFile string
}

// GpioConfig defines the gpio driver and the two pins of the test.
// The test pin is the output, the irq pin the input, both are jumpered.
type GpioConfig struct {
	Driver   string `yaml:"driver"`
	Chip     string `yaml:"chip"`
	TestPin  int    `yaml:"testpin"`
	IRQPin   int    `yaml:"irqpin"`
	Consumer string `yaml:"consumer"`
	Loopback bool   `yaml:"loopback"`
}

// LatencyConfig defines the wait for the interrupt (ms).
type LatencyConfig struct {
	TimeoutInt int           `yaml:"timeout"`
	Timeout    time.Duration `yaml:"-"`
}

// ToggleConfig defines the number of high/low cycles of the toggle test.
type ToggleConfig struct {
	Iterations int `yaml:"iterations"`
}

// ControlConfig defines the control fifo. An empty path disables the fifo.
type ControlConfig struct {
	Fifo string `yaml:"fifo"`
}

// WebserverConfig defines the struct of the webserver and webservice configuration and configuration file
type WebserverConfig struct {
	URL         string          `yaml:"url"`
	Webservices map[string]bool `yaml:"webservices"`
}

// MQTTConfig defines the struct of the mqtt client configuration and configuration file
type MQTTConfig struct {
	Connection   string `yaml:"connection"`
	Topic        string `yaml:"topic"`
	CommandTopic string `yaml:"commandtopic"`
}

// DebugConfig defines the struct of the debug configuration and configuration file
type DebugConfig struct {
	File       io.WriteCloser `yaml:"-"`
	Flag       int            `yaml:"-"`
	FlagString string         `yaml:"flag"`
	FileString string         `yaml:"file"`
}

func NewConfig() *Config {
	return &Config{
		Gpio: GpioConfig{
			Driver:   raspberry.DriverGpiod,
			Chip:     "gpiochip0",
			TestPin:  147,
			IRQPin:   146,
			Consumer: "irqlat",
		},
		Latency: LatencyConfig{TimeoutInt: 500},
		Toggle:  ToggleConfig{Iterations: 1000},
		Control: ControlConfig{Fifo: "/run/irqlat/ctl"},
		Flag:    FlagConfig{},
		Debug: DebugConfig{
			FileString: "stderr",
			FlagString: "standard",
		},
		Webserver: WebserverConfig{
			URL: "http://0.0.0.0:4000",
			Webservices: map[string]bool{
				"version": true,
				"health":  true,
				"status":  true,
				"command": true,
			},
		},
		MQTT: MQTTConfig{
			Topic:        "irqlat/result",
			CommandTopic: "irqlat/command",
		},
	}
}

func (c *Config) LoadConfig() error {
	if err := c.readConfigFile(); err != nil {
		return fmt.Errorf("error reading config file %q: %w", c.Flag.ConfigFile, err)
	}

	if c.Flag.Debug != "" {
		c.Debug.FlagString = c.Flag.Debug
	}
	if err := c.setDebugConfig(); err != nil {
		return fmt.Errorf("invalid debug config %q: %w", c.Debug.FileString, err)
	}

	c.Latency.Timeout = time.Duration(c.Latency.TimeoutInt) * time.Millisecond

	return c.validate()
}

func (c *Config) readConfigFile() error {
	file, err := os.Open(c.Flag.ConfigFile)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	decoder := yaml.NewDecoder(file)
	if err = decoder.Decode(c); err != nil {
		return err
	}

	return nil
}

func (c *Config) validate() error {
	switch c.Gpio.Driver {
	case raspberry.DriverGpiod, raspberry.DriverGpiomem, raspberry.DriverEmu:
	default:
		return fmt.Errorf("unknown gpio driver %q", c.Gpio.Driver)
	}

	if c.Gpio.TestPin == c.Gpio.IRQPin {
		return fmt.Errorf("test pin and irq pin must differ (%v)", c.Gpio.TestPin)
	}
	if c.Gpio.TestPin < 0 || c.Gpio.IRQPin < 0 {
		return fmt.Errorf("invalid pin number")
	}
	if c.Latency.Timeout <= 0 {
		return fmt.Errorf("latency timeout must be positive")
	}
	if c.Toggle.Iterations <= 0 {
		return fmt.Errorf("toggle iterations must be positive")
	}

	return nil
}

func (c *Config) setDebugConfig() (err error) {
	// defines Debug section of global.Config
	switch c.Debug.FlagString {
	case "trace", "full":
		c.Debug.Flag = debug.Full
	case "debug":
		c.Debug.Flag = debug.Warning | debug.Info | debug.Error | debug.Fatal | debug.Debug
	case "standard":
		c.Debug.Flag = debug.Standard
	default:
		return fmt.Errorf("unknown log level %q", c.Debug.FlagString)
	}

	switch c.Debug.FileString {
	case "stderr":
		c.Debug.File = os.Stderr
	case "stdout":
		c.Debug.File = os.Stdout
	default:
		if c.Debug.File, err = os.OpenFile(c.Debug.FileString, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666); err != nil {
			return
		}
	}

	return
}
