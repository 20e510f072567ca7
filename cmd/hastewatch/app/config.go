package app

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/hastewatch/pkg/constants"
	"github.com/agentstation/hastewatch/pkg/errors"
)

// Config holds the application configuration loaded from various sources
// including config files, environment variables, and .env files.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool

	// Config file
	ConfigFile string

	// Indexes file
	IndexesFile string

	// Overrides of the indexes file options; zero means unset
	Host         string
	Port         int
	MaxOpenFiles int
	MaxProcesses int

	// Logging configuration
	LogLevel  string
	LogFormat string
	LogOutput string
}

// LoadConfig loads configuration from all sources in order of precedence:
// 1. Command-line flags (handled by cobra)
// 2. Environment variables (HASTEWATCH_*)
// 3. .env files
// 4. Config file (~/.hastewatch.yaml)
// 5. Defaults
func LoadConfig() (*Config, error) {
	return LoadConfigFile("")
}

// LoadConfigFile is LoadConfig with an explicit config file. An empty path
// searches the standard locations.
func LoadConfigFile(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.Set("config", path)
	}
	return loadConfig(v)
}

func loadConfig(v *viper.Viper) (*Config, error) {
	// Load .env files first (before Viper env binding)
	loadEnvFiles()

	v.SetEnvPrefix(constants.EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	v.SetDefault("indexes", constants.DefaultIndexesFile)
	v.SetDefault("log_format", "auto")
	v.SetDefault("log_output", "stderr")

	if configFile := v.GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigType("yaml")
		v.SetConfigName(constants.DefaultConfigName)
		v.AddConfigPath("$HOME")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.NewConfigError("config file", err.Error(), err)
		}
	}

	config := &Config{
		Verbose: v.GetBool("verbose"),
		Quiet:   v.GetBool("quiet"),
		NoColor: v.GetBool("no_color"),

		ConfigFile:  v.ConfigFileUsed(),
		IndexesFile: v.GetString("indexes"),

		Host:         v.GetString("host"),
		Port:         v.GetInt("port"),
		MaxOpenFiles: v.GetInt("max_open_files"),
		MaxProcesses: v.GetInt("max_processes"),

		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),
		LogOutput: v.GetString("log_output"),
	}
	return config, nil
}

// loadEnvFiles loads environment variables from .env files.
// godotenv never overrides variables that are already set.
func loadEnvFiles() {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}
}
