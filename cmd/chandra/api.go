package main

import (
	"os"

	"github.com/LastGentlman/chandra/internal/api"
	"github.com/LastGentlman/chandra/internal/server/endpoints"
)

var (
	serverURL string
	apiKey    string
)

// getClient returns the API client at runtime (after flag parsing).
func getClient() *api.Client {
	key := apiKey
	if key == "" {
		key = os.Getenv("CHANDRA_API_KEY")
	}
	return api.NewClient(serverURL).WithAPIKey(key)
}

func init() {
	registry := api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{}) {
		registry.Register(ep)
	}
	apiCmd := registry.BuildCommands(getClient)

	// Persistent so all subcommands inherit them
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)
	apiCmd.PersistentFlags().StringVar(
		&apiKey, "api-key", "", "API key (default: $CHANDRA_API_KEY)",
	)

	rootCmd.AddCommand(apiCmd)
}
