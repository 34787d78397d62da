package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

func str(key, env string, secret bool, set func(*Config, string), get func(Config) string) keySpec {
	return keySpec{
		key: key, typ: kString, env: env, secret: secret,
		apply:   func(cfg *Config, v any) { set(cfg, v.(string)) },
		extract: func(cfg Config) any { return get(cfg) },
	}
}

func num(key, env string, set func(*Config, int), get func(Config) int) keySpec {
	return keySpec{
		key: key, typ: kInt, env: env,
		apply:   func(cfg *Config, v any) { set(cfg, v.(int)) },
		extract: func(cfg Config) any { return get(cfg) },
	}
}

func dur(key, env string, set func(*Config, time.Duration), get func(Config) time.Duration) keySpec {
	return keySpec{
		key: key, typ: kDuration, env: env,
		apply:   func(cfg *Config, v any) { set(cfg, v.(time.Duration)) },
		extract: func(cfg Config) any { return get(cfg) },
	}
}

var specs = []keySpec{
	num("server.port", "OUTREACH_SERVER_PORT",
		func(c *Config, v int) { c.Server.Port = v }, func(c Config) int { return c.Server.Port }),
	str("server.api_token", "OUTREACH_API_TOKEN", true,
		func(c *Config, v string) { c.Server.APIToken = v }, func(c Config) string { return c.Server.APIToken }),

	str("llm.provider", "OUTREACH_LLM_PROVIDER", false,
		func(c *Config, v string) { c.LLM.Provider = v }, func(c Config) string { return c.LLM.Provider }),
	str("llm.fast_model", "OUTREACH_LLM_FAST_MODEL", false,
		func(c *Config, v string) { c.LLM.FastModel = v }, func(c Config) string { return c.LLM.FastModel }),
	str("llm.deep_model", "OUTREACH_LLM_DEEP_MODEL", false,
		func(c *Config, v string) { c.LLM.DeepModel = v }, func(c Config) string { return c.LLM.DeepModel }),
	str("ollama.base_url", "OUTREACH_OLLAMA_BASE_URL", false,
		func(c *Config, v string) { c.Ollama.BaseURL = v }, func(c Config) string { return c.Ollama.BaseURL }),
	str("openrouter.api_key", "OUTREACH_OPENROUTER_API_KEY", true,
		func(c *Config, v string) { c.OpenRouter.APIKey = v }, func(c Config) string { return c.OpenRouter.APIKey }),

	str("storage.data_dir", "OUTREACH_STORAGE_DATA_DIR", false,
		func(c *Config, v string) { c.Storage.DataDir = v }, func(c Config) string { return c.Storage.DataDir }),

	str("mail.smtp_host", "OUTREACH_MAIL_SMTP_HOST", false,
		func(c *Config, v string) { c.Mail.SMTPHost = v }, func(c Config) string { return c.Mail.SMTPHost }),
	num("mail.smtp_port", "OUTREACH_MAIL_SMTP_PORT",
		func(c *Config, v int) { c.Mail.SMTPPort = v }, func(c Config) int { return c.Mail.SMTPPort }),
	str("mail.imap_host", "OUTREACH_MAIL_IMAP_HOST", false,
		func(c *Config, v string) { c.Mail.IMAPHost = v }, func(c Config) string { return c.Mail.IMAPHost }),
	num("mail.imap_port", "OUTREACH_MAIL_IMAP_PORT",
		func(c *Config, v int) { c.Mail.IMAPPort = v }, func(c Config) int { return c.Mail.IMAPPort }),
	str("mail.address", "OUTREACH_MAIL_ADDRESS", false,
		func(c *Config, v string) { c.Mail.Address = v }, func(c Config) string { return c.Mail.Address }),
	str("mail.password", "OUTREACH_MAIL_PASSWORD", true,
		func(c *Config, v string) { c.Mail.Password = v }, func(c Config) string { return c.Mail.Password }),
	str("mail.sender_name", "OUTREACH_MAIL_SENDER_NAME", false,
		func(c *Config, v string) { c.Mail.SenderName = v }, func(c Config) string { return c.Mail.SenderName }),
	str("mail.agency", "OUTREACH_MAIL_AGENCY", false,
		func(c *Config, v string) { c.Mail.Agency = v }, func(c Config) string { return c.Mail.Agency }),
	str("mail.notify_address", "OUTREACH_MAIL_NOTIFY_ADDRESS", false,
		func(c *Config, v string) { c.Mail.NotifyAddress = v }, func(c Config) string { return c.Mail.NotifyAddress }),

	str("research.serper_api_key", "OUTREACH_SERPER_API_KEY", true,
		func(c *Config, v string) { c.Research.SerperAPIKey = v }, func(c Config) string { return c.Research.SerperAPIKey }),
	str("research.serper_url", "OUTREACH_RESEARCH_SERPER_URL", false,
		func(c *Config, v string) { c.Research.SerperURL = v }, func(c Config) string { return c.Research.SerperURL }),
	num("research.max_queries", "OUTREACH_RESEARCH_MAX_QUERIES",
		func(c *Config, v int) { c.Research.MaxQueries = v }, func(c Config) int { return c.Research.MaxQueries }),
	num("research.max_links", "OUTREACH_RESEARCH_MAX_LINKS",
		func(c *Config, v int) { c.Research.MaxLinks = v }, func(c Config) int { return c.Research.MaxLinks }),
	num("research.rank_candidates", "OUTREACH_RESEARCH_RANK_CANDIDATES",
		func(c *Config, v int) { c.Research.RankCandidates = v }, func(c Config) int { return c.Research.RankCandidates }),

	str("sequence.id", "OUTREACH_SEQUENCE_ID", false,
		func(c *Config, v string) { c.Sequence.ID = v }, func(c Config) string { return c.Sequence.ID }),
	str("sequence.file", "OUTREACH_SEQUENCE_FILE", false,
		func(c *Config, v string) { c.Sequence.File = v }, func(c Config) string { return c.Sequence.File }),
	dur("sequence.poll_interval", "OUTREACH_SEQUENCE_POLL_INTERVAL",
		func(c *Config, v time.Duration) { c.Sequence.PollInterval = v }, func(c Config) time.Duration { return c.Sequence.PollInterval }),
	dur("sequence.pacing_delay", "OUTREACH_SEQUENCE_PACING_DELAY",
		func(c *Config, v time.Duration) { c.Sequence.PacingDelay = v }, func(c Config) time.Duration { return c.Sequence.PacingDelay }),
	dur("sequence.error_backoff", "OUTREACH_SEQUENCE_ERROR_BACKOFF",
		func(c *Config, v time.Duration) { c.Sequence.ErrorBackoff = v }, func(c Config) time.Duration { return c.Sequence.ErrorBackoff }),
	num("sequence.wait_days", "OUTREACH_SEQUENCE_WAIT_DAYS",
		func(c *Config, v int) { c.Sequence.WaitDays = v }, func(c Config) int { return c.Sequence.WaitDays }),

	dur("replies.poll_interval", "OUTREACH_REPLIES_POLL_INTERVAL",
		func(c *Config, v time.Duration) { c.Replies.PollInterval = v }, func(c Config) time.Duration { return c.Replies.PollInterval }),
	num("replies.check_limit", "OUTREACH_REPLIES_CHECK_LIMIT",
		func(c *Config, v int) { c.Replies.CheckLimit = v }, func(c Config) int { return c.Replies.CheckLimit }),

	str("apollo.api_key", "OUTREACH_APOLLO_API_KEY", true,
		func(c *Config, v string) { c.Apollo.APIKey = v }, func(c Config) string { return c.Apollo.APIKey }),
	str("apollo.base_url", "OUTREACH_APOLLO_BASE_URL", false,
		func(c *Config, v string) { c.Apollo.BaseURL = v }, func(c Config) string { return c.Apollo.BaseURL }),

	str("events.amqp_url", "OUTREACH_EVENTS_AMQP_URL", true,
		func(c *Config, v string) { c.Events.AMQPURL = v }, func(c Config) string { return c.Events.AMQPURL }),
	str("events.exchange", "OUTREACH_EVENTS_EXCHANGE", false,
		func(c *Config, v string) { c.Events.Exchange = v }, func(c Config) string { return c.Events.Exchange }),

	str("log.level", "OUTREACH_LOG_LEVEL", false,
		func(c *Config, v string) { c.Log.Level = v }, func(c Config) string { return c.Log.Level }),
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parseValue converts raw text into the Go type of the key.
func (s keySpec) parseValue(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || raw == "" {
			continue
		}
		v, err := s.parseValue(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.parseValue(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
