package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bugsnag/bugsnag-go"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	kaiku "github.com/Miikinki/KAIKU"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	mqttHostPtr := flag.String("mqtt-host", getEnv("MQTT_HOST", "tls://mqtt.kaiku.app:8883"), "mqtt broker for the push stream")
	mqttUserPtr := flag.String("mqtt-user", getEnv("MQTT_USER", ""), "mqtt username")
	mqttPassPtr := flag.String("mqtt-pass", getEnv("MQTT_PASS", ""), "mqtt password")
	storeURLPtr := flag.String("store-url", getEnv("STORE_URL", "https://api.kaiku.app/v1"), "persistence service base url")
	httpAddrPtr := flag.String("http-addr", getEnv("HTTP_ADDR", ":8080"), "local api listen address")
	originsPtr := flag.String("allowed-origins", getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), "comma-separated cors/websocket origins")
	regionPtr := flag.String("region", getEnv("KAIKU_REGION", ""), "origin region code (e.g. FI)")
	bugsnagKeyPtr := flag.String("bugsnag-key", getEnv("BUGSNAG_API_KEY", ""), "bugsnag api key")
	showClustersPtr := flag.Bool("show-clusters", true, "print the cluster table to the terminal")
	refreshRatePtr := flag.Int("refresh-rate", 60, "cluster table refresh rate in seconds")
	tableZoomPtr := flag.Float64("table-zoom", 10, "zoom level for the cluster table")
	verbosePtr := flag.Bool("verbose", false, "log debug stuff")

	flag.Parse()

	if *verbosePtr {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if *bugsnagKeyPtr != "" {
		bugsnag.Configure(bugsnag.Configuration{
			APIKey:          *bugsnagKeyPtr,
			ProjectPackages: []string{"main", "github.com/Miikinki/KAIKU"},
		})
	}

	session := kaiku.NewSession(*regionPtr)
	store := kaiku.NewHTTPStore(*storeURLPtr)
	engine := kaiku.NewEngine(kaiku.DefaultConfig(), session, store)

	ctx, cancel := context.WithCancel(context.Background())
	engine.Start(ctx)

	realtime := kaiku.NewRealtime(engine, "kaiku-"+string(session.ActorID()), *mqttHostPtr, *mqttUserPtr, *mqttPassPtr)
	if err := realtime.Start(); err != nil {
		logrus.WithError(err).Error("could not connect to the push stream, running from fetches only")
	}

	api := kaiku.NewAPIServer(engine, splitOrigins(*originsPtr))
	go func() {
		logrus.Printf("Listening for HTTP on %s", *httpAddrPtr)
		if err := http.ListenAndServe(*httpAddrPtr, api.Handler(splitOrigins(*originsPtr))); err != nil {
			logrus.WithError(err).Fatal("http server error")
		}
	}()

	if *showClustersPtr {
		go printClustersForever(engine, *tableZoomPtr, *refreshRatePtr)
	}

	logrus.Printf("🗺️  kaiku engine up (region=%s)", *regionPtr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logrus.Println("shutting down")
	realtime.Stop()
	api.Stop()
	cancel()
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(o); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
