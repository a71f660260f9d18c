package main

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/treliann/simon/apps/go-server/internal/broker"
	"github.com/treliann/simon/apps/go-server/internal/httpserver"
	"github.com/treliann/simon/apps/go-server/internal/launch"
	"github.com/treliann/simon/apps/go-server/internal/scores"
	"github.com/treliann/simon/apps/go-server/internal/store"
	"github.com/treliann/simon/apps/go-server/internal/tags"
)

func main() {
	_ = godotenv.Load()
	if lvl, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	db, err := openDB(getEnv("DB_PATH", "./data/simon.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	if err := migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	mqttPort, _ := strconv.Atoi(getEnv("MQTT_PORT", "1883"))
	b := broker.New(broker.Config{
		Host:     getEnv("MQTT_HOST", "localhost"),
		Port:     mqttPort,
		Username: os.Getenv("MQTT_USERNAME"),
		Password: os.Getenv("MQTT_PASSWORD"),
	})
	timeoutMs, _ := strconv.Atoi(getEnv("MQTT_TIMEOUT_MS", "5000"))
	coord := launch.NewCoordinator(b, launch.Config{
		DifficultyTopic: getEnv("TOPIC_DIFFICULTY", launch.DefaultDifficultyTopic),
		StartTopic:      getEnv("TOPIC_START", launch.DefaultStartTopic),
		Timeout:         time.Duration(timeoutMs) * time.Millisecond,
	})

	mem := store.NewMemoryStore()
	srv := httpserver.New(mem, scores.NewStore(db), tags.NewRecorder(db), coord)
	port := getEnv("PORT", "5175")
	log.Info().Str("port", port).Msg("starting go-server")
	if err := srv.Start(":" + port); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" { return v }
	return def
}
