/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the escrow-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort  string `mapstructure:"SERVER_PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`

	// On-chain escrow contract access. When ChainRPCURL is empty the service
	// runs against the in-memory fake client, which only makes sense in
	// local development.
	ChainRPCURL           string `mapstructure:"CHAIN_RPC_URL"`
	EscrowContractAddress string `mapstructure:"ESCROW_CONTRACT_ADDRESS"`
	EscrowSignerKey       string `mapstructure:"ESCROW_SIGNER_PRIVATE_KEY"`
	FeeCurrencyAddress    string `mapstructure:"FEE_CURRENCY_ADDRESS"`

	ClerkJWKSURL   string `mapstructure:"CLERK_JWKS_URL"`
	InternalAPIKey string `mapstructure:"INTERNAL_API_KEY"`

	UserDirectoryURL    string `mapstructure:"USER_DIRECTORY_URL"`
	UserDirectoryAPIKey string `mapstructure:"USER_DIRECTORY_INTERNAL_API_KEY"`

	TransferExpiryDays   int           `mapstructure:"TRANSFER_EXPIRY_DAYS"`
	ReminderWindowHours  int           `mapstructure:"REMINDER_WINDOW_HOURS"`
	ExpiryJobSchedule    string        `mapstructure:"EXPIRY_JOB_SCHEDULE"`
	ReminderJobSchedule  string        `mapstructure:"REMINDER_JOB_SCHEDULE"`
	JobTimeout           time.Duration `mapstructure:"JOB_TIMEOUT"`
	DirectoryHTTPTimeout time.Duration `mapstructure:"DIRECTORY_HTTP_TIMEOUT"`
}

// ReminderWindow returns the reminder lookahead as a duration.
func (c Config) ReminderWindow() time.Duration {
	return time.Duration(c.ReminderWindowHours) * time.Hour
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("TRANSFER_EXPIRY_DAYS", 7)
	viper.SetDefault("REMINDER_WINDOW_HOURS", 48)
	viper.SetDefault("EXPIRY_JOB_SCHEDULE", "0 * * * *")    // hourly
	viper.SetDefault("REMINDER_JOB_SCHEDULE", "0 */6 * * *") // every six hours
	viper.SetDefault("JOB_TIMEOUT", "10m")
	viper.SetDefault("DIRECTORY_HTTP_TIMEOUT", "8s")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("CHAIN_RPC_URL")
	_ = viper.BindEnv("ESCROW_CONTRACT_ADDRESS")
	_ = viper.BindEnv("ESCROW_SIGNER_PRIVATE_KEY")
	_ = viper.BindEnv("FEE_CURRENCY_ADDRESS")
	_ = viper.BindEnv("CLERK_JWKS_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "ESCROW_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("USER_DIRECTORY_URL")
	_ = viper.BindEnv("USER_DIRECTORY_INTERNAL_API_KEY")
	_ = viper.BindEnv("TRANSFER_EXPIRY_DAYS")
	_ = viper.BindEnv("REMINDER_WINDOW_HOURS")
	_ = viper.BindEnv("EXPIRY_JOB_SCHEDULE")
	_ = viper.BindEnv("REMINDER_JOB_SCHEDULE")
	_ = viper.BindEnv("JOB_TIMEOUT")
	_ = viper.BindEnv("DIRECTORY_HTTP_TIMEOUT")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	// Railway and friends inject the listen port as PORT.
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("ESCROW_SERVICE_INTERNAL_API_KEY"))
	}
	config.UserDirectoryAPIKey = strings.TrimSpace(config.UserDirectoryAPIKey)
	if config.UserDirectoryAPIKey == "" {
		config.UserDirectoryAPIKey = config.InternalAPIKey
	}

	if config.TransferExpiryDays <= 0 {
		log.Printf("level=warn component=config msg=\"invalid TRANSFER_EXPIRY_DAYS; using default\" value=%d", config.TransferExpiryDays)
		config.TransferExpiryDays = 7
	}
	if config.ReminderWindowHours <= 0 {
		log.Printf("level=warn component=config msg=\"invalid REMINDER_WINDOW_HOURS; using default\" value=%d", config.ReminderWindowHours)
		config.ReminderWindowHours = 48
	}

	return
}
