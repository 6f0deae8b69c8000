package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// apiClient is a thin wrapper over the serve command's management HTTP
// surface, used by every operator-facing lifecycle command so none of
// them need to reconstruct a Supervisor in-process.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient() *apiClient {
	return &apiClient{base: "http://" + apiAddr, http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *apiClient) get(path string) ([]byte, error) {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s: %s", path, string(body))
	}
	return body, nil
}

func (c *apiClient) post(path string) error {
	resp, err := c.http.Post(c.base+path, "application/json", nil)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: %s", path, string(body))
	}
	return nil
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [app]",
		Short: "Show application and process state",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newAPIClient()
			path := "/apps"
			if len(args) == 1 {
				path = "/apps/" + args[0]
			}
			body, err := c.get(path)
			if err != nil {
				return err
			}
			var out interface{}
			if err := json.Unmarshal(body, &out); err != nil {
				return err
			}
			pretty, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(pretty))
			return nil
		},
	}
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <app>",
		Short: "Start an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newAPIClient().post("/apps/" + args[0] + "/start")
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <app>",
		Short: "Stop an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newAPIClient().post("/apps/" + args[0] + "/stop")
		},
	}
}

func newRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart <app>",
		Short: "Restart an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newAPIClient().post("/apps/" + args[0] + "/restart")
		},
	}
}

func newLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs <app> <process>",
		Short: "Show recent captured output for a process",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := newAPIClient().get("/apps/" + args[0] + "/logs/" + args[1])
			if err != nil {
				return err
			}
			var out struct {
				Lines []string `json:"lines"`
			}
			if err := json.Unmarshal(body, &out); err != nil {
				return err
			}
			for _, line := range out.Lines {
				fmt.Println(line)
			}
			return nil
		},
	}
}
