package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	AppName          string
	Build            string
	Env              string // DEV (local; default), TEST, QA, PROD
	Debug            bool
	TestMode         bool
	SecretKey        string
	WorkDir          string
	FrontendBaseURL  string
	DefaultFromEmail mail.Address
	RollbarToken     string

	PasswordResetTimeoutDelta time.Duration

	Log struct {
		File       string // rotated log file; stdout only when empty
		MaxSize    int    // megabytes
		MaxBackups int
		MaxAge     int // days
	}

	Server struct {
		Host                      string
		Address                   string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		ScheduleAPIKey            string
		AllowOrigins              []string
	}

	Database struct {
		Engine        string // postgres | mongo | memory
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		MongoURI      string
		Timeout       time.Duration
	}

	Email struct {
		Provider           string // console | sendgrid | ses
		SendgridAPIKey     string
		SESRegion          string
		SESAccessKeyID     string // optional; the default AWS credential chain is used when empty
		SESSecretAccessKey string
	}

	Scheduler struct {
		Interval    time.Duration
		MaxBackoff  time.Duration
		MaxFailures int
		Cooldown    time.Duration
		ClaimLease  time.Duration
	}

	Survey struct {
		HotDelay             time.Duration
		ColdMinProgramLength time.Duration
		ColdDelay            time.Duration
	}
}

// DatabaseAddress returns the database "host:port".
func (c *Config) DatabaseAddress() string {
	return c.Database.Host + ":" + c.Database.Port
}

// NewConfig loads the app configuration from the environment.
// Env vars are prefixed with the current env, eg. PROD_DATABASE_HOST.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "FeedEd")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "s3j-4d(k*7=a0l!mq_9eu+2w#r8p)xv1c&fz6ty^bn%og")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("defaultFromName", "FeedEd")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("log.file", "")
	v.SetDefault("log.maxSize", 50)
	v.SetDefault("log.maxBackups", 5)
	v.SetDefault("log.maxAge", 28)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("server.scheduleAPIKey", "")
	v.SetDefault("server.allowOrigins", "*")

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "feeded")
	v.SetDefault("database.user", "feeded")
	v.SetDefault("database.password", "feeded")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.mongoURI", "mongodb://localhost:27017")
	v.SetDefault("database.timeout", 10*time.Second)

	v.SetDefault("email.provider", "console")
	v.SetDefault("email.sendgridAPIKey", "")
	v.SetDefault("email.sesRegion", "eu-west-3")
	v.SetDefault("email.sesAccessKeyID", "")
	v.SetDefault("email.sesSecretAccessKey", "")

	v.SetDefault("scheduler.interval", 2*time.Minute)
	v.SetDefault("scheduler.maxBackoff", 30*time.Minute)
	v.SetDefault("scheduler.maxFailures", 10)
	v.SetDefault("scheduler.cooldown", time.Hour)
	v.SetDefault("scheduler.claimLease", 10*time.Minute)

	v.SetDefault("survey.hotDelay", 24*time.Hour)
	v.SetDefault("survey.coldMinProgramLength", 60*24*time.Hour)
	v.SetDefault("survey.coldDelay", 90*24*time.Hour)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	workDir := Getwd()
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		AppName:         v.GetString("appName"),
		Build:           v.GetString("build"),
		Env:             env,
		Debug:           v.GetBool("debug"),
		TestMode:        v.GetBool("testMode"),
		SecretKey:       v.GetString("secretKey"),
		WorkDir:         workDir,
		FrontendBaseURL: strings.TrimRight(v.GetString("frontendBaseURL"), "/"),
		DefaultFromEmail: mail.Address{
			Name:    v.GetString("defaultFromName"),
			Address: v.GetString("defaultFromEmail"),
		},
		RollbarToken:              v.GetString("rollbarToken"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
	}

	conf.Log.File = v.GetString("log.file")
	conf.Log.MaxSize = v.GetInt("log.maxSize")
	conf.Log.MaxBackups = v.GetInt("log.maxBackups")
	conf.Log.MaxAge = v.GetInt("log.maxAge")

	conf.Server.Host = v.GetString("server.host")
	conf.Server.Address = v.GetString("server.address")
	conf.Server.DebugHost = v.GetString("server.debugHost")
	conf.Server.ShutdownTimeout = v.GetDuration("server.shutdownTimeout")
	conf.Server.JWTExpirationDelta = v.GetDuration("server.jwtExpirationDelta")
	conf.Server.JWTRefreshExpirationDelta = v.GetDuration("server.jwtRefreshExpirationDelta")
	conf.Server.ScheduleAPIKey = v.GetString("server.scheduleAPIKey")
	conf.Server.AllowOrigins = splitList(v.GetString("server.allowOrigins"))

	conf.Database.Engine = v.GetString("database.engine")
	conf.Database.Host = v.GetString("database.host")
	conf.Database.Port = v.GetString("database.port")
	conf.Database.Name = v.GetString("database.name")
	conf.Database.User = v.GetString("database.user")
	conf.Database.Password = v.GetString("database.password")
	conf.Database.AdminUser = v.GetString("database.adminUser")
	conf.Database.AdminPassword = v.GetString("database.adminPassword")
	conf.Database.DisableTLS = v.GetBool("database.disableTLS")
	conf.Database.MongoURI = v.GetString("database.mongoURI")
	conf.Database.Timeout = v.GetDuration("database.timeout")

	conf.Email.Provider = v.GetString("email.provider")
	conf.Email.SendgridAPIKey = v.GetString("email.sendgridAPIKey")
	conf.Email.SESRegion = v.GetString("email.sesRegion")
	conf.Email.SESAccessKeyID = v.GetString("email.sesAccessKeyID")
	conf.Email.SESSecretAccessKey = v.GetString("email.sesSecretAccessKey")

	conf.Scheduler.Interval = v.GetDuration("scheduler.interval")
	conf.Scheduler.MaxBackoff = v.GetDuration("scheduler.maxBackoff")
	conf.Scheduler.MaxFailures = v.GetInt("scheduler.maxFailures")
	conf.Scheduler.Cooldown = v.GetDuration("scheduler.cooldown")
	conf.Scheduler.ClaimLease = v.GetDuration("scheduler.claimLease")

	conf.Survey.HotDelay = v.GetDuration("survey.hotDelay")
	conf.Survey.ColdMinProgramLength = v.GetDuration("survey.coldMinProgramLength")
	conf.Survey.ColdDelay = v.GetDuration("survey.coldDelay")

	return conf
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
