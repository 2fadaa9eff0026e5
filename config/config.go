package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

func LoadEnv() error {
	// Try to load .env file if it exists (for local development).
	// In production, environment variables are set directly.
	if err := godotenv.Load(); err != nil {
		// .env file not found is not an error - environment variables
		// are already available in os.Getenv().
		return nil
	}
	return nil
}

// ValidateEnv checks that critical environment variables are set.
// Returns an error if any critical variable is missing.
func ValidateEnv() error {
	var missing []string

	// Critical variables - application cannot function without these
	if os.Getenv("JWT_SECRET") == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if os.Getenv("DATABASE_URL") == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return fmt.Errorf("critical environment variables not set: %v", missing)
	}

	// Non-critical variables - log warnings but don't fail
	if os.Getenv("MPESA_CONSUMER_KEY") == "" || os.Getenv("MPESA_CONSUMER_SECRET") == "" {
		log.Println("WARNING: MPESA_CONSUMER_KEY/MPESA_CONSUMER_SECRET not set - payment initiation will fail")
	}
	if os.Getenv("MPESA_SHORT_CODE") == "" || os.Getenv("MPESA_PASSKEY") == "" {
		log.Println("WARNING: MPESA_SHORT_CODE/MPESA_PASSKEY not set - payment initiation will fail")
	}
	if os.Getenv("MPESA_CALLBACK_URL") == "" {
		log.Println("WARNING: MPESA_CALLBACK_URL not set - the gateway cannot deliver payment results")
	}
	if os.Getenv("FRONTEND_URL") == "" {
		log.Println("WARNING: FRONTEND_URL not set - CORS may not work correctly")
	}

	return nil
}

func GetEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
