package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
)

// insights-cli is a small terminal client for poking at a running server:
// health checks, ad-hoc analysis, call lookups, recommendations, agent
// analytics, and manual recomputes.

var (
	heading = color.New(color.FgCyan, color.Bold)
	good    = color.New(color.FgGreen)
	bad     = color.New(color.FgRed)
	warn    = color.New(color.FgYellow)
)

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "Base URL of the insights server")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	client := &http.Client{Timeout: 30 * time.Second}

	var err error
	switch args[0] {
	case "health":
		err = getJSON(client, *serverURL+"/health")
	case "analyze":
		if len(args) < 2 {
			err = fmt.Errorf("usage: analyze <transcript text>")
		} else {
			err = postJSON(client, *serverURL+"/api/v1/analyze", map[string]string{"text": args[1]})
		}
	case "get":
		if len(args) < 2 {
			err = fmt.Errorf("usage: get <call_id>")
		} else {
			err = getJSON(client, *serverURL+"/api/v1/calls/"+args[1])
		}
	case "recommend":
		if len(args) < 2 {
			err = fmt.Errorf("usage: recommend <call_id>")
		} else {
			err = getJSON(client, *serverURL+"/api/v1/calls/"+args[1]+"/recommendations")
		}
	case "agents":
		err = getJSON(client, *serverURL+"/api/v1/analytics/agents")
	case "recompute":
		err = postJSON(client, *serverURL+"/api/v1/analytics/recompute", nil)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		bad.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func usage() {
	heading.Println("insights-cli")
	fmt.Println("  health                     service health")
	fmt.Println("  analyze <transcript>       ad-hoc analysis without storing")
	fmt.Println("  get <call_id>              fetch one call")
	fmt.Println("  recommend <call_id>        similar calls and coaching nudges")
	fmt.Println("  agents                     per-agent analytics")
	fmt.Println("  recompute                  trigger a full recompute")
	fmt.Println()
	fmt.Println("flags: -server <url> (default http://localhost:8080)")
}

func getJSON(client *http.Client, url string) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	return render(resp)
}

func postJSON(client *http.Client, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	return render(resp)
}

func render(resp *http.Response) error {
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode < 300:
		good.Printf("%s %s\n", resp.Proto, resp.Status)
	case resp.StatusCode < 500:
		warn.Printf("%s %s\n", resp.Proto, resp.Status)
	default:
		bad.Printf("%s %s\n", resp.Proto, resp.Status)
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, data, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(data))
	}
	return nil
}
