package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	serverURL   string
	configPath  string
	noAutoStart bool
	rootCmd     = &cobra.Command{
		Use:   "embed-archiver",
		Short: "Embed Archiver CLI - query and drive a running archiver",
		Long:  `A command-line interface for looking up archived Discord messages and queueing archive work.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file passed to an auto-started server")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")

	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(traverseCmd)
	rootCmd.AddCommand(cursorCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(logsCmd)
}

// ensureServer checks if server is running and starts it if needed (unless --no-auto-start)
func ensureServer() {
	if noAutoStart {
		return
	}
	if err := ensureServerRunning(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

// call performs a request and decodes the JSON response. Non-2xx responses
// are returned as errors carrying the server's message.
func call(method, path string, payload interface{}) (map[string]interface{}, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, serverURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unexpected response (%d): %s", resp.StatusCode, string(data))
	}
	if resp.StatusCode >= 300 {
		if msg, ok := result["reason"].(string); ok && msg != "" {
			return result, fmt.Errorf("%v: %s", result["error"], msg)
		}
		return result, fmt.Errorf("%v", result["error"])
	}
	return result, nil
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

var lookupCmd = &cobra.Command{
	Use:   "lookup [message-id]",
	Short: "Show the archive of a message",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		channelID, _ := cmd.Flags().GetString("channel")

		path := "/api/v1/archives/" + url.PathEscape(args[0])
		if channelID != "" {
			path += "?channel_id=" + url.QueryEscape(channelID)
		}

		result, err := call(http.MethodGet, path, nil)
		if err != nil {
			fail(err)
		}

		fmt.Printf("Archive of message %v:\n", result["message_id"])
		fmt.Printf("  Status: %v\n", result["status"])

		media, _ := result["media"].([]interface{})
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tORIGINAL\tARCHIVE")
		for i, m := range media {
			link := m.(map[string]interface{})
			fmt.Fprintf(w, "%d\t%s\t%s\n", i, truncate(fmt.Sprint(link["source_url"]), 60), link["archive_url"])
		}
		w.Flush()

		if record, ok := result["record"].(map[string]interface{}); ok {
			if errs, ok := record["errors"].([]interface{}); ok && len(errs) > 0 {
				fmt.Println("Errors:")
				for _, e := range errs {
					fmt.Printf("  - %v\n", e.(map[string]interface{})["message"])
				}
			}
		}
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive [message-json-file]",
	Short: "Queue a message for archiving",
	Long:  `Queues the message described by a JSON file (as returned by the Discord API) for archiving.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		channelID, _ := cmd.Flags().GetString("channel")

		data, err := os.ReadFile(args[0])
		if err != nil {
			fail(err)
		}
		var message map[string]interface{}
		if err := json.Unmarshal(data, &message); err != nil {
			fail(fmt.Errorf("invalid message file: %w", err))
		}
		if channelID == "" {
			channelID, _ = message["channel_id"].(string)
		}

		result, err := call(http.MethodPost, "/api/v1/archives", map[string]interface{}{
			"channel_id": channelID,
			"message":    message,
		})
		if err != nil {
			fail(err)
		}
		fmt.Printf("Message %v queued for archiving\n", result["message_id"])
	},
}

var traverseCmd = &cobra.Command{
	Use:   "traverse [channel-id]",
	Short: "Queue a traversal of a channel",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		direction, _ := cmd.Flags().GetString("direction")

		path := "/api/v1/channels/" + url.PathEscape(args[0]) + "/traverse?direction=" + url.QueryEscape(direction)
		result, err := call(http.MethodPost, path, nil)
		if err != nil {
			fail(err)
		}
		fmt.Printf("Traversal of channel %v (%v) queued\n", result["channel_id"], result["direction"])
	},
}

var cursorCmd = &cobra.Command{
	Use:   "cursor [channel-id]",
	Short: "Show the traversal cursor of a channel",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		channels := args
		if len(channels) == 0 {
			result, err := call(http.MethodGet, "/api/v1/channels", nil)
			if err != nil {
				fail(err)
			}
			list, _ := result["channels"].([]interface{})
			for _, ch := range list {
				channels = append(channels, fmt.Sprint(ch))
			}
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CHANNEL\tEARLIEST\tLATEST\tBACKFILL DONE\tUPDATED")
		for _, ch := range channels {
			result, err := call(http.MethodGet, "/api/v1/channels/"+url.PathEscape(ch)+"/cursor", nil)
			if err != nil {
				fmt.Fprintf(w, "%s\terror: %v\t\t\t\n", ch, err)
				continue
			}
			cursor, ok := result["cursor"].(map[string]interface{})
			if !ok {
				fmt.Fprintf(w, "%s\t-\t-\t-\tnever\n", ch)
				continue
			}
			fmt.Fprintf(w, "%s\t%v\t%v\t%v\t%v\n", ch,
				cursor["earliest_archive"], cursor["latest_archive"], cursor["backfill_done"], cursor["updated_at"])
		}
		w.Flush()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue statistics",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		result, err := call(http.MethodGet, "/api/v1/queue/stats", nil)
		if err != nil {
			fail(err)
		}

		fmt.Printf("Queue Statistics (consumers running: %v):\n", result["running"])
		queues, _ := result["queues"].(map[string]interface{})
		names := make([]string, 0, len(queues))
		for name := range queues {
			names = append(names, name)
		}
		sort.Strings(names)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "QUEUE\tPENDING\tLEASED\tDEAD")
		for _, name := range names {
			s := queues[name].(map[string]interface{})
			fmt.Fprintf(w, "%s\t%v\t%v\t%v\n", name, s["pending"], s["leased"], s["dead"])
		}
		w.Flush()
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs [category]",
	Short: "View category logs (queue, traversal, archive, error)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		jsonOutput, _ := cmd.Flags().GetBool("json")
		date, _ := cmd.Flags().GetString("date")
		query, _ := cmd.Flags().GetString("search")
		limit, _ := cmd.Flags().GetInt("limit")

		params := url.Values{}
		params.Set("limit", fmt.Sprint(limit))
		if date != "" {
			params.Set("date", date)
		}
		if query != "" {
			params.Set("q", query)
		}

		result, err := call(http.MethodGet, "/api/v1/logs/"+url.PathEscape(args[0])+"?"+params.Encode(), nil)
		if err != nil {
			fail(err)
		}

		if jsonOutput {
			prettyJSON, _ := json.MarshalIndent(result, "", "  ")
			fmt.Println(string(prettyJSON))
			return
		}

		entries, _ := result["entries"].([]interface{})
		for _, e := range entries {
			entry := e.(map[string]interface{})
			fmt.Printf("%v %-5v %v", entry["timestamp"], entry["level"], entry["message"])
			if fields, ok := entry["fields"].(map[string]interface{}); ok && len(fields) > 0 {
				data, _ := json.Marshal(fields)
				fmt.Printf(" %s", data)
			}
			fmt.Println()
		}
	},
}

func init() {
	lookupCmd.Flags().String("channel", "", "Channel the message was posted in, used to explain missing archives")
	archiveCmd.Flags().String("channel", "", "Channel of the message (defaults to the message's channel_id)")
	traverseCmd.Flags().StringP("direction", "d", "catch_up", "Traversal direction (catch_up, backfill)")
	logsCmd.Flags().BoolP("json", "j", false, "Output in JSON format")
	logsCmd.Flags().String("date", "", "Log date (YYYY-MM-DD), defaults to today")
	logsCmd.Flags().StringP("search", "q", "", "Only entries containing this text")
	logsCmd.Flags().IntP("limit", "n", 100, "Maximum number of entries")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
