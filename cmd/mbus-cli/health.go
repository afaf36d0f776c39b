package main

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the broker's health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth()
		},
	}
}

func runHealth() error {
	desc, _, err := loadDescriptor()
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + desc.Address + "/healthz")
	if err != nil {
		return fmt.Errorf("broker unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("broker unhealthy: %s: %s", resp.Status, body)
	}

	var status struct {
		Status string `json:"status"`
		Peers  int    `json:"peers"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		return err
	}

	fmt.Printf("status: %s\npeers: %d\n", status.Status, status.Peers)
	return nil
}
