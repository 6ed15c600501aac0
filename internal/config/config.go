package config

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

type Options struct {
	flagRunAddr, flagLogLevel, flagDatabasePath,
	flagAPIAddress, flagGeofenceHelper, flagGeofenceID,
	flagDefaultRadius, flagMinDwellInterval, flagSettleDelay,
	flagNotifyInterval, flagEntitlements string
}

func NewOptions() *Options {
	return new(Options)
}

// ParseFlags handles command line arguments
// and stores their values in the corresponding variables.
func (o *Options) ParseFlags() {
	// Load environment variables from the .env file
	loadEnvFile()

	// Override variable values with values from command line flags
	regStringVar(&o.flagRunAddr, "a", getEnvOrDefault("RUN_ADDRESS", "127.0.0.1:8090"), "address and port of the local control API")
	regStringVar(&o.flagDatabasePath, "d", getEnvOrDefault("DATABASE_PATH", "timelyd.db"), "path to the local sqlite store")
	regStringVar(&o.flagLogLevel, "l", getEnvOrDefault("LOG_LEVEL", "info"), "log level")
	regStringVar(&o.flagAPIAddress, "s", getEnvOrDefault("API_ADDRESS", "api.timelyapp.io"), "remote time-tracking API address")
	regStringVar(&o.flagGeofenceHelper, "g", getEnvOrDefault("GEOFENCE_HELPER", ""), "path to the platform locator helper binary")
	regStringVar(&o.flagGeofenceID, "i", getEnvOrDefault("GEOFENCE_ID", "workplace"), "identifier of the workplace geofence region")
	regStringVar(&o.flagDefaultRadius, "r", getEnvOrDefault("DEFAULT_RADIUS", "100"), "default workplace radius in meters")
	regStringVar(&o.flagMinDwellInterval, "w", getEnvOrDefault("MIN_DWELL_INTERVAL", "2m"), "minimum dwell between acted-on geofence events")
	regStringVar(&o.flagSettleDelay, "y", getEnvOrDefault("SETTLE_DELAY", "200ms"), "delay between notification cancel and reschedule")
	regStringVar(&o.flagNotifyInterval, "n", getEnvOrDefault("NOTIFY_INTERVAL", "30s"), "notification firing check interval")
	regStringVar(&o.flagEntitlements, "e", getEnvOrDefault("ENTITLEMENTS", ""), "comma-separated active entitlements")

	// parse the arguments passed to the daemon into registered variables
	flag.Parse()
}

func (o *Options) RunAddr() string {
	return o.flagRunAddr
}

func (o *Options) LogLevel() string {
	return o.flagLogLevel
}

func (o *Options) DatabasePath() string {
	return o.flagDatabasePath
}

func (o *Options) APIAddress() string {
	return o.flagAPIAddress
}

func (o *Options) GeofenceHelper() string {
	return o.flagGeofenceHelper
}

func (o *Options) GeofenceID() string {
	return o.flagGeofenceID
}

func (o *Options) DefaultRadius() string {
	return o.flagDefaultRadius
}

func (o *Options) MinDwellInterval() string {
	return o.flagMinDwellInterval
}

func (o *Options) SettleDelay() string {
	return o.flagSettleDelay
}

func (o *Options) NotifyInterval() string {
	return o.flagNotifyInterval
}

func (o *Options) Entitlements() string {
	return o.flagEntitlements
}

func regStringVar(p *string, name string, value string, usage string) {
	if flag.Lookup(name) == nil {
		flag.StringVar(p, name, value, usage)
	}
}

// getEnvOrDefault reads an environment variable or returns a default value if the variable is not set or is empty.
func getEnvOrDefault(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// loadEnvFile loads environment variables from a .env file
func loadEnvFile() {
	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	envPath := filepath.Join(cwd, ".env")

	err = godotenv.Load(envPath)
	if err != nil {
		log.Printf("No .env file found at %s, proceeding without it", envPath)
	}
}
