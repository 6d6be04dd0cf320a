package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host            string
		DebugHost       string
		ShutdownTimeout time.Duration
	}

	VerifierConfig struct {
		URL       string `validate:"required,url"`
		Token     string
		SecretKey string
		TokenTTL  time.Duration
	}

	CaptureConfig struct {
		MinDelay       time.Duration `validate:"gt=0"`
		Jitter         time.Duration `validate:"gt=0"`
		PreviewSize    int           `validate:"min=16"`
		Device         string
		FramesDir      string
		ReferenceImage string `validate:"required"`
	}

	AlertsConfig struct {
		Dwell time.Duration `validate:"gt=0"`
		Audio bool
	}

	ReportingConfig struct {
		BaseURL    string `validate:"omitempty,url"`
		MQTTBroker string
		MQTTTopic  string
	}

	ExamsConfig struct {
		ID      int    `validate:"gt=0"`
		BaseURL string `validate:"omitempty,url"`
		Token   string
		Mock    bool
	}

	StudentConfig struct {
		ID    string `validate:"notblank"`
		Name  string
		Email string `validate:"omitempty,email"`
	}

	EscalationConfig struct {
		To          string `validate:"omitempty,email"`
		SendgridKey string
	}

	LoggingConfig struct {
		File       string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
	}

	// Config holds every setting of the proctoring client.
	Config struct {
		Env              string
		Debug            bool
		TestMode         bool
		AppName          string
		Build            string
		WorkDir          string
		RollbarToken     string
		DefaultFromEmail string

		Server     ServerConfig
		Verifier   VerifierConfig
		Capture    CaptureConfig
		Alerts     AlertsConfig
		Reporting  ReportingConfig
		Exams      ExamsConfig
		Student    StudentConfig
		Escalation EscalationConfig
		Logging    LoggingConfig

		v  *viper.Viper
		mu sync.RWMutex
	}
)

func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("appName", "ULMS")
	v.SetDefault("build", "dev")
	v.SetDefault("defaultFromEmail", "ULMS Proctoring <noreply@localhost>")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.host", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)

	v.SetDefault("verifier.url", "wss://localhost:8000/api/v1/ws")
	v.SetDefault("verifier.token", "")
	v.SetDefault("verifier.secretKey", "")
	v.SetDefault("verifier.tokenTTL", 2*time.Hour)

	v.SetDefault("capture.minDelay", 5*time.Second)
	v.SetDefault("capture.jitter", 5*time.Second)
	v.SetDefault("capture.previewSize", 200)
	v.SetDefault("capture.device", "")
	v.SetDefault("capture.framesDir", "")
	v.SetDefault("capture.referenceImage", filepath.Join("assets", "reference.jpg"))

	v.SetDefault("alerts.dwell", 5*time.Second)
	v.SetDefault("alerts.audio", true)

	v.SetDefault("reporting.baseURL", "http://localhost:8080/api")
	v.SetDefault("reporting.mqttBroker", "")
	v.SetDefault("reporting.mqttTopic", "ulms/proctoring/alerts")

	v.SetDefault("exams.id", 1)
	v.SetDefault("exams.baseURL", "")
	v.SetDefault("exams.token", "")
	v.SetDefault("exams.mock", true)

	v.SetDefault("student.id", "anonymous")
	v.SetDefault("student.name", "")
	v.SetDefault("student.email", "")

	v.SetDefault("escalation.to", "")
	v.SetDefault("escalation.sendgridKey", "")

	v.SetDefault("logging.file", "")
	v.SetDefault("logging.maxSizeMB", 10)
	v.SetDefault("logging.maxBackups", 3)
	v.SetDefault("logging.maxAgeDays", 7)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	// optional config file, watched for hot reloads
	v.SetConfigName("ulms")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(workDir, "config"))
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatalf("config.ReadInConfig: %v", err)
		}
	}

	conf := &Config{Env: env, WorkDir: workDir, v: v}
	conf.load()
	return conf
}

func (c *Config) load() {
	v := c.v
	c.Debug = v.GetBool("debug")
	c.TestMode = v.GetBool("testMode")
	c.AppName = v.GetString("appName")
	c.Build = v.GetString("build")
	c.RollbarToken = v.GetString("rollbarToken")
	c.DefaultFromEmail = v.GetString("defaultFromEmail")

	c.Server = ServerConfig{
		Host:            v.GetString("server.host"),
		DebugHost:       v.GetString("server.debugHost"),
		ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
	}
	c.Verifier = VerifierConfig{
		URL:       v.GetString("verifier.url"),
		Token:     v.GetString("verifier.token"),
		SecretKey: v.GetString("verifier.secretKey"),
		TokenTTL:  v.GetDuration("verifier.tokenTTL"),
	}
	c.Capture = CaptureConfig{
		MinDelay:       v.GetDuration("capture.minDelay"),
		Jitter:         v.GetDuration("capture.jitter"),
		PreviewSize:    v.GetInt("capture.previewSize"),
		Device:         v.GetString("capture.device"),
		FramesDir:      v.GetString("capture.framesDir"),
		ReferenceImage: c.resolvePath(v.GetString("capture.referenceImage")),
	}
	c.Alerts = AlertsConfig{
		Dwell: v.GetDuration("alerts.dwell"),
		Audio: v.GetBool("alerts.audio"),
	}
	c.Reporting = ReportingConfig{
		BaseURL:    v.GetString("reporting.baseURL"),
		MQTTBroker: v.GetString("reporting.mqttBroker"),
		MQTTTopic:  v.GetString("reporting.mqttTopic"),
	}
	c.Exams = ExamsConfig{
		ID:      v.GetInt("exams.id"),
		BaseURL: v.GetString("exams.baseURL"),
		Token:   v.GetString("exams.token"),
		Mock:    v.GetBool("exams.mock"),
	}
	c.Student = StudentConfig{
		ID:    CleanString(v.GetString("student.id")),
		Name:  v.GetString("student.name"),
		Email: CleanString(v.GetString("student.email"), true),
	}
	c.Escalation = EscalationConfig{
		To:          v.GetString("escalation.to"),
		SendgridKey: v.GetString("escalation.sendgridKey"),
	}
	c.Logging = LoggingConfig{
		File:       v.GetString("logging.file"),
		MaxSizeMB:  v.GetInt("logging.maxSizeMB"),
		MaxBackups: v.GetInt("logging.maxBackups"),
		MaxAgeDays: v.GetInt("logging.maxAgeDays"),
	}
}

func (c *Config) resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.WorkDir, p)
}

// Set overrides a key and reloads the typed fields. Meant for tests and the CLI.
func (c *Config) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v.Set(key, value)
	c.load()
}

// AudioEnabled is safe to call while the config file is being reloaded.
func (c *Config) AudioEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Alerts.Audio
}

// Watch reloads the config whenever the config file changes and calls fn afterwards.
// It is a no-op when no config file was found.
func (c *Config) Watch(logger Logger, fn func(*Config)) {
	if c.v.ConfigFileUsed() == "" {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		c.mu.Lock()
		c.load()
		c.mu.Unlock()
		logger.Info("config reloaded: " + e.Name)
		if fn != nil {
			fn(c)
		}
	})
	c.v.WatchConfig()
}

func (c *Config) FromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.DefaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	return *addr
}
