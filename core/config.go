package core

import (
	"fmt"
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env             string
		Build           string
		Debug           bool
		TestMode        bool
		AppName         string
		SecretKey       string
		RollbarToken    string
		FrontendBaseURL string
		WorkDir         string

		Server   ServerConfig
		Database DatabaseConfig
		Email    EmailConfig
		Player   PlayerConfig
	}

	ServerConfig struct {
		Host               string
		Address            string
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		InMemory      bool
	}

	EmailConfig struct {
		DefaultFrom    string
		SendgridAPIKey string
	}

	// PlayerConfig holds the timings used by the attempt engine and its HTTP client.
	PlayerConfig struct {
		APIBaseURL           string
		Token                string
		TickInterval         time.Duration
		FlushTimeout         time.Duration
		SaveTimeout          time.Duration
		RequestTimeout       time.Duration
		SubmitRetryDelay     time.Duration
		MaxAutoSubmitRetries int
	}
)

func (c DatabaseConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DefaultFromEmail parses Email.DefaultFrom, falling back to a bare address.
func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.Email.DefaultFrom)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: c.Email.DefaultFrom}
	}
	return *addr
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)

	v.SetDefault("build", "dev")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Assessly")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("frontendBaseURL", "http://localhost:8080")

	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverAddress", ":8000")
	v.SetDefault("serverDebugHost", ":4000")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)

	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", 5432)
	v.SetDefault("dbName", "assessly")
	v.SetDefault("dbUser", "assessly")
	v.SetDefault("dbPassword", "")
	v.SetDefault("dbAdminUser", "")
	v.SetDefault("dbAdminPassword", "")
	v.SetDefault("dbDisableTLS", true)
	v.SetDefault("dbInMemory", false)

	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("sendgridApiKey", "")

	v.SetDefault("playerApiBaseURL", "http://localhost:8000/v1")
	v.SetDefault("playerToken", "")
	v.SetDefault("playerTickInterval", time.Second)
	v.SetDefault("playerFlushTimeout", 3*time.Second)
	v.SetDefault("playerSaveTimeout", 5*time.Second)
	v.SetDefault("playerRequestTimeout", 10*time.Second)
	v.SetDefault("playerSubmitRetryDelay", 5*time.Second)
	v.SetDefault("playerMaxAutoSubmitRetries", 3)
}

// NewConfig reads the configuration from the environment, prefixed by the value of ENV
// (DEV (local; default), TEST, QA, PROD). A config/.env.<env> file is loaded first if it exists.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	wd := Getwd()
	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:             env,
		Build:           v.GetString("build"),
		Debug:           v.GetBool("debug"),
		TestMode:        v.GetBool("testMode"),
		AppName:         v.GetString("appName"),
		SecretKey:       v.GetString("secretKey"),
		RollbarToken:    v.GetString("rollbarToken"),
		FrontendBaseURL: v.GetString("frontendBaseURL"),
		WorkDir:         wd,
		Server: ServerConfig{
			Host:               v.GetString("serverHost"),
			Address:            v.GetString("serverAddress"),
			DebugHost:          v.GetString("serverDebugHost"),
			ShutdownTimeout:    v.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("jwtExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("dbEngine"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetInt("dbPort"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
			InMemory:      v.GetBool("dbInMemory"),
		},
		Email: EmailConfig{
			DefaultFrom:    v.GetString("defaultFromEmail"),
			SendgridAPIKey: v.GetString("sendgridApiKey"),
		},
		Player: PlayerConfig{
			APIBaseURL:           v.GetString("playerApiBaseURL"),
			Token:                v.GetString("playerToken"),
			TickInterval:         v.GetDuration("playerTickInterval"),
			FlushTimeout:         v.GetDuration("playerFlushTimeout"),
			SaveTimeout:          v.GetDuration("playerSaveTimeout"),
			RequestTimeout:       v.GetDuration("playerRequestTimeout"),
			SubmitRetryDelay:     v.GetDuration("playerSubmitRetryDelay"),
			MaxAutoSubmitRetries: v.GetInt("playerMaxAutoSubmitRetries"),
		},
	}
}
