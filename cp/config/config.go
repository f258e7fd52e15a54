package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	defaultDelimiter  = "."
	defaultPrefix     = "CONSENT_"
	ConfigFileFlag    = "configfile"
	defaultConfigFile = "config.yaml"
)

type AuthServer struct {
	AdminURL     string        `koanf:"adminurl"`
	TokenURL     string        `koanf:"tokenurl"`
	ClientID     string        `koanf:"clientid"`
	ClientSecret string        `koanf:"clientsecret"`
	Scopes       []string      `koanf:"scopes"`
	Timeout      time.Duration `koanf:"timeout"`
}

type ConsentOptions struct {
	ForceConsentEnabled bool          `koanf:"forceconsentenabled"`
	ForceConsentScope   string        `koanf:"forceconsentscope"`
	DecisionTTL         time.Duration `koanf:"decisionttl"`
}

type Session struct {
	RedisAddress  string        `koanf:"redisaddress"`
	RedisPassword string        `koanf:"redispassword"`
	RedisDB       int           `koanf:"redisdb"`
	Timeout       time.Duration `koanf:"timeout"`
}

type User struct {
	SubjectID     string `koanf:"subjectid"`
	Email         string `koanf:"email"`
	EmailVerified bool   `koanf:"emailverified"`
	Name          string `koanf:"name"`
	Nickname      string `koanf:"nickname"`
	Password      string `koanf:"password"`
}

type Config struct {
	Version    string         `koanf:"version"`
	Port       int            `koanf:"port"`
	ServerPath string         `koanf:"serverpath"`
	Templates  string         `koanf:"templates"`
	Assets     string         `koanf:"assets"`
	Verbosity  string         `koanf:"verbosity"`
	AuthServer AuthServer     `koanf:"authserver"`
	Consent    ConsentOptions `koanf:"consent"`
	Session    Session        `koanf:"session"`
	Users      []User         `koanf:"users"`
}

// Default returns the configuration used for every key no source sets.
func Default() Config {
	return Config{
		Version:    "0.1",
		Port:       3000,
		ServerPath: "http://localhost",
		Templates:  "example/views/templates/*.html",
		Assets:     "example/views/assets",
		Verbosity:  "info",
		AuthServer: AuthServer{
			Scopes:  []string{"hydra.consent"},
			Timeout: 10 * time.Second,
		},
		Consent: ConsentOptions{
			ForceConsentScope: "force-consent",
			DecisionTTL:       time.Hour,
		},
		Session: Session{
			Timeout: time.Hour,
		},
	}
}

// TokenEndpoint returns the configured token url, defaulting to the admin url's /oauth2/token.
func (c *Config) TokenEndpoint() string {
	if c.AuthServer.TokenURL != "" {
		return c.AuthServer.TokenURL
	}
	return strings.TrimSuffix(c.AuthServer.AdminURL, "/") + "/oauth2/token"
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	if c.AuthServer.AdminURL == "" {
		return errors.New("authserver.adminurl is required")
	}
	if c.AuthServer.ClientID == "" {
		return errors.New("authserver.clientid is required")
	}
	if c.Consent.ForceConsentEnabled && c.Consent.ForceConsentScope == "" {
		return errors.New("consent.forceconsentscope is required when forced consent is enabled")
	}
	if c.Port <= 0 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// FlagSet returns the command line flags of the server.
func FlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("server", pflag.ContinueOnError)
	flagSet.String(ConfigFileFlag, defaultConfigFile, "Consent provider config file")
	flagSet.Int("port", Default().Port, "HTTP port to listen on")
	flagSet.String("verbosity", Default().Verbosity, "Log level (trace, debug, info, warn, error)")
	flagSet.String("authserver.adminurl", "", "Admin URL of the authorization server")
	flagSet.Bool("consent.forceconsentenabled", false, "Resolve challenges carrying the force consent scope without prompting")
	return flagSet
}

// ParseConfig loads the defaults overridden by the yaml file at path.
func ParseConfig(path string) (*Config, error) {
	k := koanf.New(defaultDelimiter)
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, err
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("unable to load config file: %w", err)
	}
	return unmarshal(k)
}

// Load resolves the configuration from defaults, the config file, CONSENT_ environment
// variables and flags, later sources taking precedence.
func Load(flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(defaultDelimiter)
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, err
	}
	configFile, _ := flags.GetString(ConfigFileFlag)
	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil && flags.Changed(ConfigFileFlag) {
			return nil, fmt.Errorf("unable to load config file: %w", err)
		}
	}
	e := env.Provider(defaultPrefix, defaultDelimiter, func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, defaultPrefix)), "_", defaultDelimiter, -1)
	})
	if err := k.Load(e, nil); err != nil {
		return nil, err
	}
	if err := k.Load(posflag.Provider(flags, defaultDelimiter, k), nil); err != nil {
		return nil, err
	}
	return unmarshal(k)
}

func unmarshal(k *koanf.Koanf) (*Config, error) {
	var c Config
	if err := k.UnmarshalWithConf("", &c, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}
	return &c, nil
}
