package config

import (
	"fmt"
	"strings"
	"time"

	"medconnect-backend/pkg/env"
)

// Config holds the call service configuration, loaded from the
// environment (or Docker secrets via *_FILE variants)
type Config struct {
	Env         string
	Port        int
	ServiceName string

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	RedisHost     string
	RedisPort     int
	RedisPassword string

	CassandraHosts    []string
	CassandraKeyspace string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOSecure    bool

	JWTSecret string

	PushProvider      string
	FirebaseProjectID string

	LogLevel  string
	LogFormat string

	RequestTimeout time.Duration
}

// Load reads the call service configuration from the environment
func Load() *Config {
	return &Config{
		Env:         env.GetString("ENV", "development"),
		Port:        env.GetInt("PORT", 8083),
		ServiceName: env.GetString("SERVICE_NAME", "call-service"),

		DBHost:     env.GetString("DB_HOST", "localhost"),
		DBPort:     env.GetInt("DB_PORT", 26257),
		DBUser:     env.GetString("DB_USER", "root"),
		DBPassword: env.GetStringFromFile("DB_PASSWORD", ""),
		DBName:     env.GetString("DB_NAME", "medconnect"),
		DBSSLMode:  env.GetString("DB_SSLMODE", "disable"),

		RedisHost:     env.GetString("REDIS_HOST", "localhost"),
		RedisPort:     env.GetInt("REDIS_PORT", 6379),
		RedisPassword: env.GetStringFromFile("REDIS_PASSWORD", ""),

		CassandraHosts:    splitHosts(env.GetString("CASSANDRA_HOSTS", "")),
		CassandraKeyspace: env.GetString("CASSANDRA_KEYSPACE", "medconnect"),

		MinIOEndpoint:  env.GetString("MINIO_ENDPOINT", ""),
		MinIOAccessKey: env.GetStringFromFile("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey: env.GetStringFromFile("MINIO_SECRET_KEY", ""),
		MinIOBucket:    env.GetString("MINIO_BUCKET", "consultation-attachments"),
		MinIOSecure:    env.GetBool("MINIO_SECURE", false),

		JWTSecret: env.GetStringFromFile("JWT_SECRET", ""),

		PushProvider:      env.GetString("PUSH_PROVIDER", "mock"),
		FirebaseProjectID: env.GetStringFromFile("FIREBASE_PROJECT_ID", ""),

		LogLevel:  env.GetString("LOG_LEVEL", "info"),
		LogFormat: env.GetString("LOG_FORMAT", "json"),

		RequestTimeout: env.GetDuration("REQUEST_TIMEOUT", 30*time.Second),
	}
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// DBConnString returns the CockroachDB connection string
func (c *Config) DBConnString() string {
	conn := fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBName, c.DBSSLMode)
	if c.DBPassword != "" {
		conn += " password=" + c.DBPassword
	}
	return conn
}

// Validate checks the configuration for fatal misconfiguration
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.IsProduction() && c.PushProvider == "mock" {
		return fmt.Errorf("PUSH_PROVIDER=mock is not allowed in production")
	}
	return nil
}

func splitHosts(s string) []string {
	if s == "" {
		return nil
	}
	var hosts []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}
