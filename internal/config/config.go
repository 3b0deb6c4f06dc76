package config

import (
	"fmt"
	"os"
	"strings"
)

// Config holds all configuration for our application
type Config struct {
	Port        string
	Origin      string
	Environment string
	Database    DatabaseConfig
	Storage     StorageConfig
}

// DatabaseConfig holds database connection details
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Name     string
	DSN      string
}

// StorageConfig holds remote object storage settings. Driver "memory"
// selects the in-process store for local development; "s3" talks to an
// S3-compatible backend (AWS S3 or MinIO).
type StorageConfig struct {
	Driver    string
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load database configuration
	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "3306"),
		Username: getEnv("DB_USERNAME", "root"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "clinic"),
	}

	// Build DSN (Data Source Name) for MySQL connection
	dbConfig.DSN = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		dbConfig.Username, dbConfig.Password, dbConfig.Host, dbConfig.Port, dbConfig.Name)

	storageConfig := StorageConfig{
		Driver:    getEnv("STORAGE_DRIVER", "memory"),
		Bucket:    getEnv("STORAGE_S3_BUCKET", ""),
		Region:    getEnv("STORAGE_S3_REGION", ""),
		Endpoint:  getEnv("STORAGE_S3_ENDPOINT", ""),
		PathStyle: strings.EqualFold(getEnv("STORAGE_S3_PATH_STYLE", "false"), "true"),
	}
	if storageConfig.Driver == "s3" && storageConfig.Bucket == "" {
		return nil, fmt.Errorf("STORAGE_S3_BUCKET is required when STORAGE_DRIVER=s3")
	}

	return &Config{
		Port:        getEnv("PORT", "3001"),
		Origin:      getEnv("ORIGIN", "http://localhost:4200"),
		Environment: getEnv("APP_ENV", "development"),
		Database:    dbConfig,
		Storage:     storageConfig,
	}, nil
}

// Helper function to get environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
