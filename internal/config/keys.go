package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "VAANI_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "VAANI_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "VAANI_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "groq.api_key", typ: kString, env: "VAANI_GROQ_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Groq.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Groq.APIKey },
	},
	{
		key: "groq.base_url", typ: kString, env: "VAANI_GROQ_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Groq.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Groq.BaseURL },
	},
	{
		key: "groq.model", typ: kString, env: "VAANI_GROQ_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Groq.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Groq.Model },
	},
	{
		key: "sarvam.api_key", typ: kString, env: "VAANI_SARVAM_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Sarvam.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Sarvam.APIKey },
	},
	{
		key: "sarvam.base_url", typ: kString, env: "VAANI_SARVAM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Sarvam.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Sarvam.BaseURL },
	},
	{
		key: "sarvam.model", typ: kString, env: "VAANI_SARVAM_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Sarvam.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Sarvam.Model },
	},
	{
		key: "asr.base_url", typ: kString, env: "VAANI_ASR_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.ASR.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.ASR.BaseURL },
	},
	{
		key: "ollama.base_url", typ: kString, env: "VAANI_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "VAANI_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "ollama.rerank_model", typ: kString, env: "VAANI_OLLAMA_RERANK_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.RerankModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.RerankModel },
	},
	{
		key: "chat.window_size", typ: kInt, env: "VAANI_CHAT_WINDOW_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Chat.WindowSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Chat.WindowSize },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "VAANI_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "retrieval.reranking_enabled", typ: kBool, env: "VAANI_RETRIEVAL_RERANKING_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.RerankingEnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Retrieval.RerankingEnabled },
	},
	{
		key: "retrieval.reranking_timeout", typ: kString, env: "VAANI_RETRIEVAL_RERANKING_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.RerankingTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Retrieval.RerankingTimeout },
	},
	{
		key: "retrieval.reranking_threshold", typ: kFloat, env: "VAANI_RETRIEVAL_RERANKING_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.RerankingThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Retrieval.RerankingThreshold },
	},
	{
		key: "ingest.chunk_size", typ: kInt, env: "VAANI_INGEST_CHUNK_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Ingest.ChunkSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Ingest.ChunkSize },
	},
	{
		key: "ingest.chunk_overlap", typ: kInt, env: "VAANI_INGEST_CHUNK_OVERLAP",
		apply:   func(cfg *Config, v any) { cfg.Ingest.ChunkOverlap = v.(int) },
		extract: func(cfg Config) any { return cfg.Ingest.ChunkOverlap },
	},
	{
		key: "ingest.default_article", typ: kString, env: "VAANI_INGEST_DEFAULT_ARTICLE",
		apply:   func(cfg *Config, v any) { cfg.Ingest.DefaultArticle = v.(string) },
		extract: func(cfg Config) any { return cfg.Ingest.DefaultArticle },
	},
	{
		key: "storage.data_dir", typ: kString, env: "VAANI_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "VAANI_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
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
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
