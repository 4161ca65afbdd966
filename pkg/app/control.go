package app

import (
	"os"

	"irqlat/pkg/mqtt"

	"github.com/womat/debug"
)

// runControl serves the control fifo: every read from the fifo is one command,
// e.g. echo 1 > /run/irqlat/ctl
// It's designed to run in a separate go function, see app.Run()
func (app *App) runControl() {
	path := app.config.Control.Fifo
	if path == "" {
		debug.InfoLog.Print("control fifo disabled")
		return
	}

	f, created, err := openFifo(path)
	if err != nil {
		debug.ErrorLog.Printf("can't open control fifo %q: %v", path, err)
		app.stop()
		return
	}
	if created {
		defer removeFifo(path)
	}

	// closing the fifo unblocks the pending read
	go func() {
		<-app.ctx.Done()
		_ = f.Close()
	}()

	debug.InfoLog.Printf("listening for commands on %v", path)
	if err := app.dispatcher.Serve(app.ctx, f); err != nil && app.ctx.Err() == nil {
		debug.ErrorLog.Printf("control fifo %q: %v", path, err)
		app.stop()
	}
}

// handleCommandMessage runs the command received on the mqtt command topic.
// The test runs on its own goroutine, so the mqtt client isn't blocked.
func (app *App) handleCommandMessage(msg mqtt.Message) {
	debug.DebugLog.Printf("mqtt command %q on topic %v", msg.Payload, msg.Topic)

	go func(cmd []byte) {
		_, _ = app.dispatcher.Dispatch(app.ctx, cmd)
	}(msg.Payload)
}

// removeFifo removes the control fifo created by runControl.
func removeFifo(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		debug.ErrorLog.Printf("can't remove control fifo %q: %v", path, err)
	}
}
