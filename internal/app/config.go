package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr       string
	RequestTimeout time.Duration
	LogLevel       string
	LogFormat      string

	MongoURI      string
	MongoDatabase string
	RedisURL      string

	TMDBAPIKey     string
	TMDBBaseURL    string
	TMDBLanguage   string
	TMDBCacheTTL   time.Duration
	OMDBAPIKey     string
	OMDBBaseURL    string
	MDBListAPIKey  string
	MDBListBaseURL string

	ProviderTimeout  time.Duration
	SearchPageWindow int
	FastHydration    bool

	RecCacheSize   int
	RecCacheMaxAge time.Duration
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		RequestTimeout: time.Duration(getEnvInt("SEARCH_TIMEOUT_SECONDS", 15)) * time.Second,
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", "text")),

		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DATABASE", "moviepicker"),
		RedisURL:      getEnv("REDIS_URL", ""),

		TMDBAPIKey:     strings.TrimSpace(os.Getenv("TMDB_API_KEY")),
		TMDBBaseURL:    getEnv("TMDB_BASE_URL", "https://api.themoviedb.org/3"),
		TMDBLanguage:   getEnv("TMDB_LANGUAGE", "en-US"),
		TMDBCacheTTL:   time.Duration(getEnvInt("TMDB_CACHE_TTL_HOURS", 24)) * time.Hour,
		OMDBAPIKey:     strings.TrimSpace(os.Getenv("OMDB_API_KEY")),
		OMDBBaseURL:    getEnv("OMDB_BASE_URL", "https://www.omdbapi.com/"),
		MDBListAPIKey:  strings.TrimSpace(os.Getenv("MDBLIST_API_KEY")),
		MDBListBaseURL: getEnv("MDBLIST_BASE_URL", "https://api.mdblist.com"),

		ProviderTimeout:  time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 10)) * time.Second,
		SearchPageWindow: getEnvInt("SEARCH_PAGE_WINDOW", 3),
		FastHydration:    getEnvBool("FAST_HYDRATION", true),

		RecCacheSize:   getEnvInt("REC_CACHE_SIZE", 200),
		RecCacheMaxAge: time.Duration(getEnvInt("REC_CACHE_MAX_AGE_DAYS", 7)) * 24 * time.Hour,
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
