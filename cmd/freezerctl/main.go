// Command freezerctl is a small CLI for inspecting a running freezerd's
// debug API: pending apps, naughty apps, the wakeup timeline, and recent
// log lines.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:7077", "freezerd debug API address")
	route := flag.String("route", "status", "status|pending|naughty|timeline|logs")
	flag.Parse()

	log := buildLogger()
	log = log.Named("freezerctl")

	paths := map[string]string{
		"status":   "/status",
		"pending":  "/apps/pending",
		"naughty":  "/apps/naughty",
		"timeline": "/timeline",
		"logs":     "/logs",
	}
	path, ok := paths[*route]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown route %q; valid routes: status, pending, naughty, timeline, logs\n", *route)
		os.Exit(1)
	}

	url := "http://" + *addr + path
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		log.Fatal("request failed", zap.String("url", url), zap.Error(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatal("read response failed", zap.Error(err))
	}

	if resp.StatusCode != http.StatusOK {
		log.Fatal("non-200 response", zap.Int("status", resp.StatusCode), zap.ByteString("body", body))
	}

	var pretty any
	if err := json.Unmarshal(body, &pretty); err != nil {
		fmt.Println(string(body))
		return
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(string(out))
}

func buildLogger() *zap.Logger {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	log := zap.Must(logConfig.Build())
	return log
}
