package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/drummonds/goPDFView/config"
	"github.com/drummonds/goPDFView/document"
	"github.com/drummonds/goPDFView/pdfengine"
	"github.com/drummonds/goPDFView/server"
	"github.com/drummonds/goPDFView/thumbnail"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// injectGlobals injects all of our globals into their packages
func injectGlobals(logger *slog.Logger) {
	Logger = logger
	config.Logger = logger
	document.Logger = logger
	thumbnail.Logger = logger
	server.Logger = logger
}

func main() {
	serverConfig, logger := config.SetupServer()
	injectGlobals(logger) //inject the logger into all of the packages

	Logger.Info("Setting up PDF engine", "renderer", serverConfig.Renderer)
	engine, err := newEngine(serverConfig.Renderer)
	if err != nil {
		Logger.Error("Failed to set up PDF engine", "renderer", serverConfig.Renderer, "error", err)
		os.Exit(1)
	}
	defer engine.Close()
	Logger.Info("PDF engine ready")

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.DefaultCORSConfig))

	serverHandler := server.NewServerHandler(engine, e, serverConfig)
	Logger.Info("About to initialize schedules")
	serverHandler.InitializeSchedules() //initialize all the cron jobs
	Logger.Info("Schedules initialized")
	serverHandler.AddRoutes()

	if serverConfig.ListenAddrIP == "" {
		Logger.Info("No Ip Addr set, binding on ALL addresses")
	}

	Logger.Info("Starting HTTP server")

	// Try to start server with automatic port increment if port is in use
	maxRetries := 5
	startPort := serverConfig.ListenAddrPort
	var startErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		addr := fmt.Sprintf("%s:%s", serverConfig.ListenAddrIP, serverConfig.ListenAddrPort)
		Logger.Info("Attempting to start server", "address", addr, "attempt", attempt+1)

		startErr = e.Start(addr)

		// Check if error is "address already in use"
		if startErr != nil && isAddressInUse(startErr) {
			Logger.Warn("Port already in use, trying next port",
				"port", serverConfig.ListenAddrPort,
				"attempt", attempt+1,
				"max_attempts", maxRetries)

			// Increment port for next attempt
			portNum := 0
			fmt.Sscanf(serverConfig.ListenAddrPort, "%d", &portNum)
			portNum++
			serverConfig.ListenAddrPort = fmt.Sprintf("%d", portNum)

			if attempt == maxRetries-1 {
				Logger.Error("Failed to find available port after maximum retries",
					"start_port", startPort,
					"end_port", serverConfig.ListenAddrPort,
					"max_retries", maxRetries)
				os.Exit(1)
			}
		} else if startErr != nil {
			// Some other error occurred
			Logger.Error("Failed to start server", "error", startErr)
			os.Exit(1)
		} else {
			// Server started successfully
			break
		}
	}
}

// newEngine selects the PDF engine backend. PDFium is the default; fitz is
// render-only and mostly useful where MuPDF is already installed.
func newEngine(renderer string) (pdfengine.Engine, error) {
	switch renderer {
	case "fitz":
		return pdfengine.NewFitzEngine()
	case "", "pdfium":
		return pdfengine.NewPDFiumEngine()
	default:
		return nil, fmt.Errorf("unknown renderer backend %q", renderer)
	}
}

// isAddressInUse checks if the error is due to address already in use
func isAddressInUse(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "address already in use")
}
