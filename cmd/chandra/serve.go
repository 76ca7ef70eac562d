package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/LastGentlman/chandra/internal/server"
)

var (
	serveHost      string
	servePort      string
	serveStartVLLM bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Chandra OCR API server",
	Long: `Start the Chandra HTTP API server.

With --start-vllm the vLLM container is started first and stopped when the
server shuts down (via Ctrl+C or SIGTERM).

The server provides:
  - GET  /api/health    - Health check
  - POST /api/ocr       - OCR an uploaded image or PDF
  - POST /api/ocr/image - OCR a base64 image
  - GET  /status        - Configured methods
  - GET  /ready         - Readiness check
  - GET  /swagger       - API documentation

Examples:
  chandra serve                      # Use server.host and server.port from config
  chandra serve --port 5001          # Start on custom port
  chandra serve --start-vllm         # Also manage the vLLM container`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger()

		h, err := getHome()
		if err != nil {
			return err
		}
		cfgMgr, err := loadConfig(h, logger)
		if err != nil {
			return err
		}
		if cfgMgr.ConfigFile() != "" {
			logger.Info("watching config", "file", cfgMgr.ConfigFile())
			cfgMgr.WatchConfig()
		}

		cfg := cfgMgr.Get()
		srv, err := server.New(server.Config{
			Host:          serveHost,
			Port:          servePort,
			ConfigManager: cfgMgr,
			Home:          h,
			StartVLLM:     serveStartVLLM,
			VLLMConfig:    vllmDockerConfig(cfg.VLLM),
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default: server.host)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (default: server.port)")
	serveCmd.Flags().BoolVar(&serveStartVLLM, "start-vllm", false, "Start the vLLM container with the server")

	rootCmd.AddCommand(serveCmd)
}

// huggingFaceCache returns the host model cache mounted into the container.
func huggingFaceCache() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(dir, ".cache", "huggingface")
	}
	return ""
}
