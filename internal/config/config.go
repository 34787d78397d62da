package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	LLM        LLMConfig
	Ollama     OllamaConfig
	OpenRouter OpenRouterConfig
	Storage    StorageConfig
	Mail       MailConfig
	Research   ResearchConfig
	Sequence   SequenceConfig
	Replies    RepliesConfig
	Apollo     ApolloConfig
	Events     EventsConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

// LLMConfig selects the chat backend and the models used for each task.
// FastModel serves classification and query generation, DeepModel writes
// summaries, hooks and emails.
type LLMConfig struct {
	Provider  string // "ollama" or "openrouter"
	FastModel string
	DeepModel string
}

type OllamaConfig struct {
	BaseURL string
}

type OpenRouterConfig struct {
	APIKey string
}

type StorageConfig struct {
	DataDir string
}

type MailConfig struct {
	SMTPHost      string
	SMTPPort      int
	IMAPHost      string
	IMAPPort      int
	Address       string
	Password      string
	SenderName    string
	Agency        string
	NotifyAddress string
}

type ResearchConfig struct {
	SerperAPIKey   string
	SerperURL      string
	MaxQueries     int
	MaxLinks       int
	RankCandidates int // search results scored by the LLM before reading; 0 disables ranking
}

type SequenceConfig struct {
	ID           string
	File         string
	PollInterval time.Duration
	PacingDelay  time.Duration
	ErrorBackoff time.Duration
	WaitDays     int
}

type RepliesConfig struct {
	PollInterval time.Duration
	CheckLimit   int
}

type ApolloConfig struct {
	APIKey  string
	BaseURL string
}

type EventsConfig struct {
	AMQPURL  string
	Exchange string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{Port: 4100},
		LLM: LLMConfig{
			Provider:  "ollama",
			FastModel: "phi3.5",
			DeepModel: "mistral-nemo",
		},
		Ollama:  OllamaConfig{BaseURL: "http://localhost:11434"},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Mail: MailConfig{
			SMTPHost: "smtp.gmail.com",
			SMTPPort: 465,
			IMAPHost: "imap.gmail.com",
			IMAPPort: 993,
		},
		Research: ResearchConfig{
			SerperURL:      "https://google.serper.dev/search",
			MaxQueries:     3,
			MaxLinks:       3,
			RankCandidates: 6,
		},
		Sequence: SequenceConfig{
			ID:           "seq_standard_01",
			PollInterval: 60 * time.Second,
			PacingDelay:  5 * time.Minute,
			ErrorBackoff: 60 * time.Second,
			WaitDays:     3,
		},
		Replies: RepliesConfig{
			PollInterval: 5 * time.Minute,
			CheckLimit:   10,
		},
		Apollo: ApolloConfig{BaseURL: "https://api.apollo.io/v1"},
		Events: EventsConfig{Exchange: "ex.outreach"},
		Log:    LogConfig{Level: "info"},
	}
}

// NotifyTo returns the operator address for reply notifications.
func (c Config) NotifyTo() string {
	if c.Mail.NotifyAddress != "" {
		return c.Mail.NotifyAddress
	}
	return c.Mail.Address
}

// Load builds the process configuration. Sources, lowest priority first:
// built-in defaults, the JSON file at $XDG_CONFIG_HOME/outreach/config.json,
// a .env file in the working directory, and OUTREACH_* environment variables.
// Secrets never come from the config file; a secret the environment leaves
// empty is looked up in the platform secret store (service "outreach",
// account = key).
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), platformKeychain{}, ".env")
}

func loadWith(b ConfigBackend, kc keychain, dotenvPath string) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	if dotenvPath != "" {
		// godotenv.Load never overrides variables that are already set.
		if err := godotenv.Load(dotenvPath); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "[WARN] could not read %s: %v\n", dotenvPath, err)
		}
	}

	applyEnvOverrides(&cfg)
	applyKeychain(&cfg, kc)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.LLM.Provider {
	case "ollama", "openrouter":
	default:
		return fmt.Errorf("invalid llm.provider %q: want ollama or openrouter", c.LLM.Provider)
	}
	if c.Sequence.WaitDays < 0 {
		return fmt.Errorf("invalid sequence.wait_days %d: must not be negative", c.Sequence.WaitDays)
	}
	return nil
}

// Require returns an error naming the first of keys whose value is empty.
// Commands call it with the keys their collaborators cannot run without.
func (c Config) Require(keys ...string) error {
	var missing []string
	for _, k := range keys {
		s, ok := lookupSpec(k)
		if !ok {
			return fmt.Errorf("unknown config key: %q", k)
		}
		if v := s.extract(c); v == "" || v == 0 {
			hint := s.key
			if s.env != "" {
				hint = s.env
			}
			if s.secret {
				hint += " or run: outreach config set " + s.key
			}
			missing = append(missing, fmt.Sprintf("%s (set %s)", s.key, hint))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "outreach-data"
		}
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "outreach")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "outreach", "config.json")
}
