package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zulandar/afterhours/internal/config"
)

func newDispatchCmd() *cobra.Command {
	var (
		configPath string
		serviceURL string
		file       string
	)

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Manually dispatch a call through a running service",
		Long: `Sends a call payload to the manual dispatch endpoint of a running
Afterhours service and prints the result. The payload is read from --file,
or from stdin when --file is "-" or omitted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatch(cmd, configPath, serviceURL, file)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "afterhours.yaml", "path to config file")
	cmd.Flags().StringVar(&serviceURL, "url", "", "service base URL (default: base_url from config)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON payload file (default: stdin)")
	return cmd
}

func runDispatch(cmd *cobra.Command, configPath, serviceURL, file string) error {
	out := cmd.OutOrStdout()

	if serviceURL == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w (or pass --url)", err)
		}
		serviceURL = cfg.BaseURL
	}

	var payload []byte
	var err error
	if file == "" || file == "-" {
		payload, err = io.ReadAll(cmd.InOrStdin())
	} else {
		payload, err = os.ReadFile(file)
	}
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}
	if !json.Valid(payload) {
		return fmt.Errorf("payload is not valid JSON")
	}

	body, err := json.Marshal(map[string]json.RawMessage{"callData": payload})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Post(serviceURL+"/api/dispatch/manual", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post to %s: %w", serviceURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("dispatch failed (%d): %s", resp.StatusCode, respBody)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, respBody, "", "  "); err != nil {
		fmt.Fprintln(out, string(respBody))
		return nil
	}
	fmt.Fprintln(out, pretty.String())
	return nil
}
