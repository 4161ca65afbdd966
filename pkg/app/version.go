package app

import (
	"runtime"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
)

// VERSION of irqlat, major.year.month+first day of the release month.
// 6 is the year 2026, 7 will be 2027.
const (
	VERSION = "1.6.10+20261001"
	MODULE  = "irqlat"
)

// HandleVersion returns the version and the build of the running service.
// The gpio driver is part of it: latencies measured with the emulation are meaningless.
func (app *App) HandleVersion() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request version")

		return ctx.JSON(fiber.Map{
			"version":     VERSION,
			"description": MODULE,
			"about":       Version(),
			"driver":      app.config.Gpio.Driver,
			"runtime":     runtime.Version() + " " + runtime.GOOS + "/" + runtime.GOARCH,
		})
	}
}

// Version is the application version as string, e.g. irqlat V1.6.10
func Version() string {
	return strings.TrimSpace(MODULE + " V" + strings.Split(VERSION, "+")[0])
}
