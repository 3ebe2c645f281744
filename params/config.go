package params

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type API struct {
	ListenAddr string
	// WSBuffer is the per-client fan-out buffer; a slow websocket client
	// drops facts rather than backpressuring ledger operations.
	WSBuffer int
}

type Node struct {
	DBPath  string
	LogPath string
	// AdminKeyHex signs pause capabilities. Devnet only; production nodes
	// configure AdminAddress and keep the key offline.
	AdminKeyHex  string
	AdminAddress string
}

type VenueCfg struct {
	// Stub fill fraction for devnet: FillNum/FillDen of every immediate
	// placement is reported filled.
	FillNum uint64
	FillDen uint64
}

type Config struct {
	API   API
	Node  Node
	Venue VenueCfg
}

func Default() Config {
	return Config{
		API: API{
			ListenAddr: ":8080",
			WSBuffer:   256,
		},
		Node: Node{
			DBPath:  "data/tally",
			LogPath: "logs/tallyd.log",
		},
		Venue: VenueCfg{
			FillNum: 0,
			FillDen: 1,
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg.API.ListenAddr = getEnv("API_LISTEN_ADDR", cfg.API.ListenAddr)
	if buf := os.Getenv("API_WS_BUFFER"); buf != "" {
		if n, err := strconv.Atoi(buf); err == nil && n > 0 {
			cfg.API.WSBuffer = n
		}
	}

	cfg.Node.DBPath = getEnv("DB_PATH", cfg.Node.DBPath)
	cfg.Node.LogPath = getEnv("LOG_PATH", cfg.Node.LogPath)
	cfg.Node.AdminKeyHex = getEnv("ADMIN_PRIVATE_KEY", cfg.Node.AdminKeyHex)
	cfg.Node.AdminAddress = getEnv("ADMIN_ADDRESS", cfg.Node.AdminAddress)

	if num := os.Getenv("VENUE_FILL_NUM"); num != "" {
		if n, err := strconv.ParseUint(num, 10, 64); err == nil {
			cfg.Venue.FillNum = n
		}
	}
	if den := os.Getenv("VENUE_FILL_DEN"); den != "" {
		if n, err := strconv.ParseUint(den, 10, 64); err == nil && n > 0 {
			cfg.Venue.FillDen = n
		}
	}

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
