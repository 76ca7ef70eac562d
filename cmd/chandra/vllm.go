package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/LastGentlman/chandra/internal/config"
	"github.com/LastGentlman/chandra/internal/vllm"
)

var vllmCmd = &cobra.Command{
	Use:   "vllm",
	Short: "Manage the vLLM container",
	Long: `Manage the vLLM container that serves the Chandra checkpoint.

The container exposes an OpenAI-compatible API on vllm_container.port and
mounts ~/.cache/huggingface so weights are downloaded once.

Examples:
  chandra vllm start   # Start the vLLM container
  chandra vllm wait    # Block until the model is loaded
  chandra vllm stop    # Stop the container
  chandra vllm status  # Check container status
  chandra vllm logs    # View container logs`,
}

var vllmStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the vLLM container",
	Long: `Start the vLLM container.

If the container doesn't exist, it will be created and started.
If it exists but is stopped, it will be started.
If it's already running, this is a no-op.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := getVLLMManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Starting vLLM...")
		if err := mgr.Start(cmd.Context()); err != nil {
			return fmt.Errorf("failed to start vLLM: %w", err)
		}

		fmt.Printf("vLLM is starting at %s (use 'chandra vllm wait' to block until ready)\n", mgr.BaseURL())
		return nil
	},
}

var vllmStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the vLLM container",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := getVLLMManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Stopping vLLM...")
		if err := mgr.Stop(cmd.Context()); err != nil {
			return fmt.Errorf("failed to stop vLLM: %w", err)
		}

		fmt.Println("vLLM stopped")
		return nil
	},
}

var vllmStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vLLM container status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := getVLLMManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		status, err := mgr.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}

		switch status {
		case vllm.StatusRunning:
			fmt.Printf("Status: %s\n", status)
			fmt.Printf("URL: %s\n", mgr.BaseURL())

			if err := vllm.WaitForHealthy(ctx, mgr.URL()+"/health", 2*time.Second, 500*time.Millisecond); err != nil {
				fmt.Printf("Health: not ready (%v)\n", err)
			} else {
				fmt.Println("Health: healthy")
			}
		case vllm.StatusStopped:
			fmt.Printf("Status: %s (use 'chandra vllm start' to start)\n", status)
		case vllm.StatusNotFound:
			fmt.Printf("Status: %s (use 'chandra vllm start' to create)\n", status)
		default:
			fmt.Printf("Status: %s\n", status)
		}

		return nil
	},
}

var logsTail string

var vllmLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show vLLM container logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := getVLLMManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		logs, err := mgr.Logs(cmd.Context(), logsTail)
		if err != nil {
			return fmt.Errorf("failed to get logs: %w", err)
		}

		fmt.Print(logs)
		return nil
	},
}

var vllmRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove the vLLM container",
	Long: `Remove the vLLM container.

This stops and removes the container. Downloaded weights in
~/.cache/huggingface are NOT deleted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := getVLLMManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Removing vLLM container...")
		if err := mgr.Remove(cmd.Context()); err != nil {
			return fmt.Errorf("failed to remove container: %w", err)
		}

		fmt.Println("vLLM container removed")
		return nil
	},
}

var vllmWaitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for vLLM to be ready",
	Long: `Wait for vLLM to finish loading the model and accept requests.

This is useful in scripts to ensure the model server is fully started
before running OCR.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := getVLLMManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		timeout, _ := cmd.Flags().GetDuration("timeout")
		fmt.Printf("Waiting for vLLM (timeout: %s)...\n", timeout)

		if err := mgr.WaitReady(cmd.Context(), timeout); err != nil {
			return fmt.Errorf("vLLM not ready: %w", err)
		}

		fmt.Println("vLLM is ready")
		return nil
	},
}

func init() {
	vllmCmd.AddCommand(vllmStartCmd)
	vllmCmd.AddCommand(vllmStopCmd)
	vllmCmd.AddCommand(vllmStatusCmd)
	vllmCmd.AddCommand(vllmLogsCmd)
	vllmCmd.AddCommand(vllmRemoveCmd)
	vllmCmd.AddCommand(vllmWaitCmd)

	vllmLogsCmd.Flags().StringVar(&logsTail, "tail", "100", "Number of lines to show from the end")
	vllmWaitCmd.Flags().Duration("timeout", vllm.DefaultReadyTimeout, "Timeout waiting for vLLM")

	rootCmd.AddCommand(vllmCmd)
}

// vllmDockerConfig maps vllm_container settings onto the Docker manager.
func vllmDockerConfig(c config.VLLMConfig) vllm.DockerConfig {
	return vllm.DockerConfig{
		ContainerName:   c.ContainerName,
		Image:           c.Image,
		HostPort:        c.Port,
		Checkpoint:      c.Checkpoint,
		ServedModelName: c.ServedModelName,
		GPUs:            c.GPUs,
		CachePath:       huggingFaceCache(),
	}
}

// getVLLMManager creates a DockerManager from the loaded config.
func getVLLMManager() (*vllm.DockerManager, error) {
	h, err := getHome()
	if err != nil {
		return nil, err
	}
	cfgMgr, err := loadConfig(h, newLogger())
	if err != nil {
		return nil, err
	}
	return vllm.NewDockerManager(vllmDockerConfig(cfgMgr.Get().VLLM))
}
