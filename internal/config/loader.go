package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/modulith/modulith/internal/db"
)

// ServerConfig holds the HTTP server and engine tunables.
type ServerConfig struct {
	Addr            string
	AllowedOrigins  []string
	WorkflowDepth   int
	WorkflowTimeout time.Duration
	ExportPageSize  int
}

// DefaultServerConfig returns server defaults suitable for local development.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		AllowedOrigins:  []string{"http://localhost:3000"},
		WorkflowDepth:   5,
		WorkflowTimeout: 10 * time.Second,
		ExportPageSize:  1000,
	}
}

// Config is the full application configuration.
type Config struct {
	Database db.Config
	Server   ServerConfig
}

// Load reads config.yaml from configPath, with environment overrides.
func Load(configPath string) (Config, error) {
	cfg := Config{
		Database: db.DefaultConfig(),
		Server:   DefaultServerConfig(),
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()           // allow environment overrides
	v.SetEnvPrefix("MODULITH") // map env vars like MODULITH_DATABASE_HOST

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("server.addr")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Just log it, use defaults + env
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}

	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}
	if v.IsSet("server.workflow_depth") {
		cfg.Server.WorkflowDepth = v.GetInt("server.workflow_depth")
	}
	if v.IsSet("server.workflow_timeout") {
		cfg.Server.WorkflowTimeout = v.GetDuration("server.workflow_timeout")
	}
	if v.IsSet("server.export_page_size") {
		cfg.Server.ExportPageSize = v.GetInt("server.export_page_size")
	}

	return cfg, nil
}
