// trulyctl is a small CLI for the trulyd control plane: read status, flip
// the toggle, reassign the toggle button, and push live setting changes
// over the daemon's websocket.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/gorilla/websocket"

	"github.com/trulydev/truly/internal/httpc"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8000", "daemon address")
	status := flag.Bool("status", false, "print the runtime status")
	toggle := flag.Bool("toggle", false, "flip the armed flag")
	toggleButton := flag.String("toggle-button", "", "reassign the toggle button (MMB, M4, M5)")
	pullDown := flag.Float64("pull-down", -1, "set vertical correction (0-300)")
	horizontal := flag.Float64("horizontal", -301, "set horizontal correction (-300 to 300)")
	delayMs := flag.Int("delay", -1, "set horizontal delay in ms (0-5000)")
	durationMs := flag.Int("duration", -1, "set horizontal duration in ms (0-10000, 0 = forever)")
	flag.Parse()

	base := "http://" + *addr

	if *status {
		printStatus(base)
		return
	}
	if *toggle {
		postJSON(base+"/api/toggle", nil)
		printStatus(base)
		return
	}
	if *toggleButton != "" {
		postJSON(base+"/api/toggle-button", map[string]string{"button": *toggleButton})
		printStatus(base)
		return
	}

	// Remaining flags are live settings; collect only the ones the user
	// actually set and push them in one websocket message.
	update := map[string]any{}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "pull-down":
			update["pull_down"] = *pullDown
		case "horizontal":
			update["horizontal"] = *horizontal
		case "delay":
			update["horizontal_delay_ms"] = *delayMs
		case "duration":
			update["horizontal_duration_ms"] = *durationMs
		}
	})
	if len(update) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := pushSettings(*addr, update); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	printStatus(base)
}

func pushSettings(addr string, update map[string]any) error {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.String(), err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(update); err != nil {
		return fmt.Errorf("send settings: %w", err)
	}
	return conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func printStatus(base string) {
	resp, err := httpc.Get(base + "/api/status")
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	var pretty map[string]any
	if err := json.Unmarshal(payload, &pretty); err != nil {
		fmt.Println(string(payload))
		return
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(string(out))
}

func postJSON(url string, body any) {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	resp, err := httpc.Post(url, "application/json", payload)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "error: %s: %s\n", resp.Status, msg)
		os.Exit(1)
	}
}
