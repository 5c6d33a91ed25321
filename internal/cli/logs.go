package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(logsCmd)
}

var logsCmd = &cobra.Command{
	Use:   "logs <alias>",
	Short: "Tail a model's captured stdout/stderr",
	Long:  `Streams the model's retained log buffer, then follows new output until interrupted.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runLogs,
}

type sseLogEvent struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Text      string `json:"text"`
	Error     string `json:"error"`
}

func runLogs(cmd *cobra.Command, args []string) error {
	client := newAPIClient()
	url := client.baseURL + "/api/models/" + args[0] + "/logs/stream"

	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("connect to fleetgate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fleetgate returned %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var event, data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if data != "" {
				if err := handleLogEvent(event, data); err != nil {
					return err
				}
			}
			event, data = "", ""
		}
	}
	return scanner.Err()
}

func handleLogEvent(event, data string) error {
	var ev sseLogEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return nil
	}
	switch event {
	case "historical", "realtime":
		logLine(os.Stdout, time.UnixMilli(ev.Timestamp), ev.Text)
	case "error":
		return fmt.Errorf("log stream: %s", ev.Error)
	}
	return nil
}
