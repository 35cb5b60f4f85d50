package config

import (
	"errors"
	"fetchq/internal/domain"
	"io/fs"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Fetch    Fetch
	Redis    Redis
	API      API
}

type Fetch struct {
	Workers       int           `env:"Fetch_Workers" envDefault:"4"`
	Mode          string        `env:"Fetch_Mode" envDefault:"blocking"`
	MaxInFlight   int           `env:"Fetch_MaxInFlight" envDefault:"64"`
	Timeout       time.Duration `env:"Fetch_Timeout" envDefault:"30s"`
	MaxRetry      int           `env:"Fetch_MaxRetry" envDefault:"10"`
	Backoff       string        `env:"Fetch_Backoff" envDefault:"quadratic"`
	BackoffUnit   time.Duration `env:"Fetch_BackoffUnit" envDefault:"1s"`
	MaxBackoff    time.Duration `env:"Fetch_MaxBackoff" envDefault:"30s"`
	ProgressEvery int           `env:"Fetch_ProgressEvery"` // 0 picks the mode default
	RateLimit     float64       `env:"Fetch_RateLimit"`
	RateBurst     int           `env:"Fetch_RateBurst" envDefault:"1"`
	UserAgent     string        `env:"Fetch_UserAgent" envDefault:"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit"`
	Referer       string        `env:"Fetch_Referer"`
	Cookie        string        `env:"Fetch_Cookie"`
	Connection    string        `env:"Fetch_Connection" envDefault:"keep-alive"`
	TraceDir      string        `env:"Fetch_TraceDir"`
	MaxIdleConns  int           `env:"Fetch_MaxIdleConnsPerHost" envDefault:"50"`
}

type Redis struct {
	Addr     string `env:"Redis_Address" envDefault:"localhost:6379"`
	Password string `env:"Redis_Password"`
	DB       int    `env:"Redis_DB"`
	Key      string `env:"Redis_Key" envDefault:"fetchq:pending"`
}

type API struct {
	Port        int `env:"API_Port" envDefault:"8080"`
	MaxURLs     int `env:"API_MaxURLs" envDefault:"1000"`
	MaxWorkers  int `env:"API_MaxWorkers" envDefault:"64"`
	PreviewSize int `env:"API_PreviewSize" envDefault:"256"`
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	c, err := Parse()
	if err != nil {
		log.Fatal(err)
	}
	return c
}

func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	var c Config
	if err := env.Parse(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// DefaultHeaders returns the request headers configured for every fetch, skipping empty values.
func DefaultHeaders(f Fetch) []domain.Header {
	var hs []domain.Header
	for _, h := range []domain.Header{
		{Name: "User-Agent", Value: f.UserAgent},
		{Name: "Referer", Value: f.Referer},
		{Name: "Cookie", Value: f.Cookie},
		{Name: "Connection", Value: f.Connection},
	} {
		if h.Value != "" {
			hs = append(hs, h)
		}
	}
	return hs
}

// Defaults returns the built-in values, ignoring the environment and any .env file.
func Defaults() *Config {
	var c Config
	// only envDefault tags are read, so this cannot fail on user input
	_ = env.ParseWithOptions(&c, env.Options{Environment: map[string]string{}})
	return &c
}
