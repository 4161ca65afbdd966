package app

import (
	"context"
	"net/url"
	"sync"

	"irqlat/pkg/app/config"
	"irqlat/pkg/diag"
	"irqlat/pkg/irqlat"
	"irqlat/pkg/mqtt"
	"irqlat/pkg/raspberry"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
)

// App is the main application struct.
// App is where the application is wired up.
type App struct {
	// web is the fiber web framework instance
	web *fiber.App

	// config is the application configuration
	config *config.Config

	// urlParsed contains the parsed Config.Url parameter
	urlParsed *url.URL

	// mqtt is the handler to the mqtt broker
	mqtt *mqtt.Handler

	// gpio is the gpio driver handing out the test pin and the irq line
	gpio raspberry.GPIO
	out  raspberry.OutputPin
	irq  raspberry.IRQLine

	// device runs the tests, dispatcher maps commands to tests
	device     *irqlat.Device
	dispatcher *irqlat.Dispatcher

	// ctx is cancelled on Close and aborts running tests
	ctx    context.Context
	cancel context.CancelFunc

	// shutdown signals application shutdown
	shutdown     chan struct{}
	shutdownOnce sync.Once
	closeOnce    sync.Once
}

// New checks the Web server URL and initialize the main app structure
func New(config *config.Config) (*App, error) {
	u, err := url.Parse(config.Webserver.URL)
	if err != nil {
		debug.ErrorLog.Printf("Error parsing url %q: %s", config.Webserver.URL, err.Error())
		return &App{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &App{
		config:    config,
		urlParsed: u,

		web:  fiber.New(fiber.Config{DisableStartupMessage: true}),
		mqtt: mqtt.New(),

		ctx:      ctx,
		cancel:   cancel,
		shutdown: make(chan struct{}),
	}, nil
}

// Init opens the gpio lines and wires up the device, the dispatcher and the routes.
func (app *App) Init() (err error) {
	app.gpio, err = raspberry.Open(raspberry.Config{
		Driver:   app.config.Gpio.Driver,
		Chip:     app.config.Gpio.Chip,
		Consumer: app.config.Gpio.Consumer,
		Loopback: app.config.Gpio.Loopback,
	})
	if err != nil {
		debug.ErrorLog.Printf("can't open gpio: %v", err)
		return err
	}

	if app.out, err = app.gpio.OutputPin(app.config.Gpio.TestPin); err != nil {
		debug.ErrorLog.Printf("can't open test pin: %v", err)
		return err
	}

	if app.irq, err = app.gpio.IRQLine(app.config.Gpio.IRQPin); err != nil {
		debug.ErrorLog.Printf("can't open irq pin: %v", err)
		return err
	}

	app.device = irqlat.New(app.out, app.irq,
		irqlat.WithObserver(diag.NewProbe(app.config.Gpio.Consumer)))

	app.dispatcher = irqlat.NewDispatcher(app.device,
		irqlat.WithTimeout(app.config.Latency.Timeout),
		irqlat.WithIterations(app.config.Toggle.Iterations),
		irqlat.WithContext(app.ctx),
		irqlat.WithListener(app.publishResult))

	// initDefaultRoutes should be always called last because it may access things like app.device
	app.initDefaultRoutes()

	return nil
}

// Run starts the control channels.
func (app *App) Run() error {
	if err := app.Init(); err != nil {
		return err
	}

	app.mqtt.Subscribe(app.config.MQTT.CommandTopic, app.handleCommandMessage)
	if err := app.mqtt.Connect(app.config.MQTT.Connection, app.config.Gpio.Consumer); err != nil {
		debug.ErrorLog.Printf("can't open mqtt broker %v", err)
		return err
	}

	go app.mqtt.Service()
	go app.runWebServer()
	go app.runControl()

	return nil
}

// Dispatcher returns the command dispatcher, valid after Init.
func (app *App) Dispatcher() *irqlat.Dispatcher {
	return app.dispatcher
}

// Shutdown returns the read only shutdown channel.
// Shutdown is used to be able to react on application shutdown. (see cmd/irqlat.go)
func (app *App) Shutdown() <-chan struct{} {
	return app.shutdown
}

// stop signals application shutdown, e.g. if a control channel failed.
func (app *App) stop() {
	app.shutdownOnce.Do(func() { close(app.shutdown) })
}

// Close aborts a running test, waits until the device is idle and releases the lines.
// Only the first call has an effect.
func (app *App) Close() error {
	app.closeOnce.Do(app.close)
	return nil
}

func (app *App) close() {
	if app.cancel != nil {
		app.cancel()
	}

	if app.device != nil {
		// the app context is cancelled already, so the running test is aborted
		// and Close only waits for its cleanup
		if err := app.device.Close(context.Background()); err != nil {
			debug.ErrorLog.Printf("can't close device: %v", err)
		}
	}

	if app.web != nil {
		_ = app.web.Shutdown()
	}

	if app.mqtt != nil {
		_ = app.mqtt.Disconnect()
	}

	if app.irq != nil {
		_ = app.irq.Close()
	}
	if app.out != nil {
		_ = app.out.Close()
	}
	if app.gpio != nil {
		_ = app.gpio.Close()
	}
}
