package app

import (
	"context"
	"net/http"

	"irqlat/pkg/irqlat"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"github.com/womat/debug"
)

// runWebServer starts the applications web server and listens for web requests.
//  It's designed to run in a separate go function to not block the main go function.
//  e.g.: go runWebServer()
//  See app.Run()
func (app *App) runWebServer() {
	if err := app.web.Listen(app.urlParsed.Host); err != nil && app.ctx.Err() == nil {
		debug.ErrorLog.Print(err)
		app.stop()
	}
}

// HandleCommand runs the command in the request body, like a write to the control fifo.
//  curl -X POST --data 1 http://localhost:4000/command
func (app *App) HandleCommand() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		// the body is reused by fasthttp once the handler returns
		cmd := append([]byte(nil), ctx.Body()...)
		debug.InfoLog.Printf("web request command %q", cmd)

		// the test ends on app shutdown and on web server shutdown
		rctx, cancel := context.WithCancel(app.ctx)
		defer cancel()
		stop := context.AfterFunc(ctx.Context(), cancel)
		defer stop()

		r, err := app.dispatcher.Dispatch(rctx, cmd)
		if err != nil {
			ctx.Status(commandStatus(err))
			return ctx.JSON(fiber.Map{
				"test":  r.Test,
				"error": err.Error(),
			})
		}

		ctx.Status(http.StatusOK)
		return ctx.JSON(r)
	}
}

// StatusCancelled is returned if a test was aborted, e.g. on shutdown.
// It is the nginx "client closed request" code, net/http has no constant for it.
const StatusCancelled = 499

// commandStatus maps test errors to http status codes.
func commandStatus(err error) int {
	switch {
	case errors.Is(err, irqlat.ErrCancelled):
		return StatusCancelled
	case errors.Is(err, irqlat.ErrHandlerAttachFailed),
		errors.Is(err, irqlat.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, irqlat.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// HandleStatus returns the device state.
func (app *App) HandleStatus() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request status")

		return ctx.JSON(fiber.Map{
			"driver": app.config.Gpio.Driver,
			"device": app.device.Status(),
		})
	}
}
