package config

import (
	"context"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	DefaultPort                  = "8080"
	DefaultAccessTokenExpiryMin  = 15
	DefaultRefreshTokenExpiryMin = 10080
	DefaultLoginMaxAttempts      = 5
	DefaultLockoutMinutes        = 15
	DefaultBcryptCost            = 12
	DefaultPasswordHashAlgo      = "bcrypt"
	DefaultStoreTimeoutMS        = 300
)

type Config struct {
	Env               string
	Port              string
	DBURL             string
	AccessTokenSecret string
	AccessExpiryMin   int
	RefreshExpiryMin  int
	LoginMaxAttempts  int
	LockoutMinutes    int
	PasswordHashAlgo  string
	BcryptCost        int
	StoreTimeoutMS    int
}

func Load() *Config {
	env := getEnv("ENV", "development")
	loadEnvFile(env)

	return &Config{
		Env:               env,
		Port:              getEnv("PORT", DefaultPort),
		DBURL:             mustGetEnv("DB_URL"),
		AccessTokenSecret: mustGetEnv("ACCESS_TOKEN_SECRET"),
		AccessExpiryMin:   getEnvAsInt("ACCESS_TOKEN_EXPIRY", DefaultAccessTokenExpiryMin),
		RefreshExpiryMin:  getEnvAsInt("REFRESH_TOKEN_EXPIRY", DefaultRefreshTokenExpiryMin),
		LoginMaxAttempts:  getEnvAsInt("LOGIN_MAX_ATTEMPTS", DefaultLoginMaxAttempts),
		LockoutMinutes:    getEnvAsInt("LOCKOUT_MINUTES", DefaultLockoutMinutes),
		PasswordHashAlgo:  getEnv("PASSWORD_HASH_ALGO", DefaultPasswordHashAlgo),
		BcryptCost:        getEnvAsInt("BCRYPT_COST", DefaultBcryptCost),
		StoreTimeoutMS:    getEnvAsInt("STORE_TIMEOUT_MS", DefaultStoreTimeoutMS),
	}
}

// ApplySettings overlays values from the product's settings table onto the
// env-derived config. The settings table is the authoritative source for
// lockout and session tuning; missing keys keep their current values.
func (c *Config) ApplySettings(ctx context.Context, get func(ctx context.Context, key string) (string, error)) {
	overlay := func(key string, dst *int) {
		raw, err := get(ctx, key)
		if err != nil {
			log.Printf("warn: failed to read setting %s: %v", key, err)
			return
		}
		if raw == "" {
			return
		}
		val, err := strconv.Atoi(raw)
		if err != nil {
			log.Printf("warn: invalid value for setting %s: %q", key, raw)
			return
		}
		*dst = val
	}

	overlay("max_login_attempts", &c.LoginMaxAttempts)
	overlay("lockout_minutes", &c.LockoutMinutes)
	overlay("session_timeout", &c.RefreshExpiryMin)
}

// loadEnvFile loads config/.env.dev or config/.env.prod depending on the
// environment. Variables already present in the process environment win.
func loadEnvFile(env string) {
	filename := "config/.env.dev"
	if env == "production" {
		filename = "config/.env.prod"
	}
	if err := godotenv.Load(filename); err != nil && !os.IsNotExist(err) {
		log.Printf("warn: could not load %s: %v", filename, err)
	}
}

func getEnv(key string, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func mustGetEnv(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	log.Fatalf("Missing required environment variable: %s", key)
	return ""
}

func getEnvAsInt(key string, defaultVal int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		log.Printf("Invalid value for %s, using default %d", key, defaultVal)
		return defaultVal
	}
	return val
}
