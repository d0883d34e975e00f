package config

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL" envDefault:"postgres://postgres:password@db:5432/bountyboard"`
	ServerPort  string `env:"PORT" envDefault:"3000"`
	JWTSecret   string `env:"JWT_SECRET" envDefault:"change_this_secret"`
	Env         string `env:"APP_ENV" envDefault:"development"`
	UploadDir   string `env:"UPLOAD_DIR" envDefault:"uploads"`
}

func LoadConfig() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func LoadConfigOrPanic() Config {
	cfg, err := LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// PostgresConnStr relaxes TLS outside production, where the database
// typically runs without certificates.
func (c Config) PostgresConnStr() string {
	if c.Env != "production" && !strings.Contains(c.DatabaseURL, "sslmode=") {
		sep := "?"
		if strings.Contains(c.DatabaseURL, "?") {
			sep = "&"
		}
		return c.DatabaseURL + sep + "sslmode=disable"
	}
	return c.DatabaseURL
}

func InitDB(ctx context.Context, cfg Config) *sql.DB {
	db, err := sql.Open("postgres", cfg.PostgresConnStr())
	if err != nil {
		panic(fmt.Sprintf("failed to open database: %v", err))
	}
	if err = db.PingContext(ctx); err != nil {
		panic(fmt.Sprintf("failed to ping database: %v", err))
	}
	return db
}
