package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port               int      `mapstructure:"port"`
		MonitoringPort     int      `mapstructure:"monitoring_port"`
		CorsAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
		CorsAllowedMethods []string `mapstructure:"cors_allowed_methods"`
		CorsAllowedHeaders []string `mapstructure:"cors_allowed_headers"`
	} `mapstructure:"server"`

	Database struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
	} `mapstructure:"database"`

	JWT struct {
		Secret          string `mapstructure:"secret"`
		ExpirationHours int    `mapstructure:"expiration_hours"`
		Issuer          string `mapstructure:"issuer"`
	} `mapstructure:"jwt"`

	Airtel struct {
		BaseURL            string `mapstructure:"base_url"`
		ClientID           string `mapstructure:"client_id"`
		ClientSecret       string `mapstructure:"client_secret"`
		OAuthPath          string `mapstructure:"oauth_path"`
		KeyPath            string `mapstructure:"key_path"`
		CollectionPath     string `mapstructure:"collection_path"`
		StatusPath         string `mapstructure:"status_path"`
		Country            string `mapstructure:"country"`
		Currency           string `mapstructure:"currency"`
		SuccessCode        string `mapstructure:"success_code"`
		TimeoutSeconds     int    `mapstructure:"timeout_seconds"`
		SweepSeconds       int    `mapstructure:"sweep_seconds"`
		SweepMinAgeSeconds int    `mapstructure:"sweep_min_age_seconds"`
	} `mapstructure:"airtel"`

	SMS struct {
		URL         string `mapstructure:"url"`
		APIID       string `mapstructure:"api_id"`
		APIPassword string `mapstructure:"api_password"`
		SenderID    string `mapstructure:"sender_id"`
		SMSType     string `mapstructure:"sms_type"`
	} `mapstructure:"sms"`

	SMTP struct {
		Host        string `mapstructure:"host"`
		Port        int    `mapstructure:"port"`
		Username    string `mapstructure:"username"`
		Password    string `mapstructure:"password"`
		SenderName  string `mapstructure:"sender_name"`
		SenderEmail string `mapstructure:"sender_email"`
	} `mapstructure:"smtp"`

	Templates Templates `mapstructure:"templates"`

	Archive struct {
		Enabled   bool   `mapstructure:"enabled"`
		Endpoint  string `mapstructure:"endpoint"`
		Region    string `mapstructure:"region"`
		Bucket    string `mapstructure:"bucket"`
		AccessKey string `mapstructure:"access_key"`
		SecretKey string `mapstructure:"secret_key"`
	} `mapstructure:"archive"`
}

// Templates are notification message templates. An empty template disables
// the corresponding channel.
type Templates struct {
	PaymentReceivedSMS string `mapstructure:"payment_received_sms"`
	ArrearsSMS         string `mapstructure:"arrears_sms"`
	ArrearsEmail       string `mapstructure:"arrears_email"`
	EmailFooter        string `mapstructure:"email_footer"`
}

func (c *Config) AirtelTimeout() time.Duration {
	return time.Duration(c.Airtel.TimeoutSeconds) * time.Second
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Airtel.SweepSeconds) * time.Second
}

// SweepMinAge is the age a PENDING request must reach before the timer-driven
// sweep queries the gateway for it.
func (c *Config) SweepMinAge() time.Duration {
	return time.Duration(c.Airtel.SweepMinAgeSeconds) * time.Second
}

func Load() *Config {
	// Load .env file if exists (ignore error in production)
	godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile("configs/config.yaml")

	// Auto bind environment variables
	v.AutomaticEnv()

	// Set sensible defaults (binary works without config file)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.monitoring_port", 9090)
	v.SetDefault("jwt.expiration_hours", 24)
	v.SetDefault("jwt.issuer", "letmaster-backend")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "letmaster_db")
	v.SetDefault("airtel.base_url", "https://openapiuat.airtel.africa")
	v.SetDefault("airtel.oauth_path", "/auth/oauth2/token")
	v.SetDefault("airtel.key_path", "/standard/v1/keys/rsa")
	v.SetDefault("airtel.collection_path", "/merchant/v1/payments/")
	v.SetDefault("airtel.status_path", "/standard/v1/payments/")
	v.SetDefault("airtel.country", "UG")
	v.SetDefault("airtel.currency", "UGX")
	v.SetDefault("airtel.success_code", "TS")
	v.SetDefault("airtel.timeout_seconds", 30)
	v.SetDefault("airtel.sweep_seconds", 60)
	v.SetDefault("airtel.sweep_min_age_seconds", 90)
	v.SetDefault("smtp.port", 465)
	v.SetDefault("templates.payment_received_sms",
		"Dear {FULLNAME}, we received your payment of UGX {AMT} for {ACC}. Outstanding balance: UGX {BAL}. Thank you.")
	v.SetDefault("templates.arrears_sms",
		"Dear {FULLNAME}, your rent account(s) are in arrears: {SUMMARY}. Please clear the balance to avoid inconvenience.")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		log.Printf("[Config] No config file found, using defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Fatalf("config unmarshal error: %v", err)
	}

	// Override database settings from DB_* environment variables
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil && n > 0 {
			cfg.Database.Port = n
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.Database.User = user
	}
	if pass := os.Getenv("DB_PASSWORD"); pass != "" {
		cfg.Database.Password = pass
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Database.Name = name
	}

	// Secrets come from the environment, never the config file
	if cfg.JWT.Secret == "" || cfg.JWT.Secret == "${JWT_SECRET}" {
		cfg.JWT.Secret = os.Getenv("JWT_SECRET")
		if cfg.JWT.Secret == "" {
			log.Fatal("JWT_SECRET not set")
		}
	}
	if id := os.Getenv("AIRTEL_CLIENT_ID"); id != "" {
		cfg.Airtel.ClientID = id
	}
	if secret := os.Getenv("AIRTEL_CLIENT_SECRET"); secret != "" {
		cfg.Airtel.ClientSecret = secret
	}
	if key := os.Getenv("SMS_API_ID"); key != "" {
		cfg.SMS.APIID = key
	}
	if pass := os.Getenv("SMS_API_PASSWORD"); pass != "" {
		cfg.SMS.APIPassword = pass
	}
	if pass := os.Getenv("SMTP_PASSWORD"); pass != "" {
		cfg.SMTP.Password = pass
	}
	if key := os.Getenv("ARCHIVE_ACCESS_KEY"); key != "" {
		cfg.Archive.AccessKey = key
	}
	if key := os.Getenv("ARCHIVE_SECRET_KEY"); key != "" {
		cfg.Archive.SecretKey = key
	}

	return &cfg
}
