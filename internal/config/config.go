package config

import (
	"fmt"
	"strings"
)

type Config struct {
	Server    ServerConfig
	Groq      GroqConfig
	Sarvam    SarvamConfig
	ASR       ASRConfig
	Ollama    OllamaConfig
	Chat      ChatConfig
	Retrieval RetrievalConfig
	Ingest    IngestConfig
	Storage   StorageConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host     string
	Port     int
	APIToken string
}

type GroqConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type SarvamConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type ASRConfig struct {
	BaseURL string
}

type OllamaConfig struct {
	BaseURL     string
	EmbedModel  string
	RerankModel string
}

type ChatConfig struct {
	WindowSize int
}

type RetrievalConfig struct {
	TopK               int
	RerankingEnabled   bool
	RerankingTimeout   string
	RerankingThreshold float64
}

type IngestConfig struct {
	ChunkSize      int
	ChunkOverlap   int
	DefaultArticle string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Groq: GroqConfig{
			BaseURL: "https://api.groq.com/openai/v1",
			Model:   "llama-3.3-70b-versatile",
		},
		Sarvam: SarvamConfig{
			BaseURL: "https://api.sarvam.ai",
			Model:   "mayura:v1",
		},
		ASR: ASRConfig{
			BaseURL: "http://localhost:8081",
		},
		Ollama: OllamaConfig{
			BaseURL:     "http://localhost:11434",
			EmbedModel:  "nomic-embed-text",
			RerankModel: "phi3.5",
		},
		Chat: ChatConfig{
			WindowSize: 10,
		},
		Retrieval: RetrievalConfig{
			TopK:               2,
			RerankingEnabled:   false,
			RerankingTimeout:   "5s",
			RerankingThreshold: 0.5,
		},
		Ingest: IngestConfig{
			ChunkSize:      500,
			ChunkOverlap:   100,
			DefaultArticle: "Mahatma Gandhi",
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.vaani.app) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/vaani/config.json
// and secrets fall back to $XDG_DATA_HOME/vaani/secrets.json.
//
// Environment variables (VAANI_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret storage for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Try the platform secret store for keys that are still empty.
	if cfg.Groq.APIKey == "" {
		if key, err := kc.Get("vaani", "groq_api_key"); err == nil && key != "" {
			cfg.Groq.APIKey = key
		}
	}
	if cfg.Sarvam.APIKey == "" {
		if key, err := kc.Get("vaani", "sarvam_api_key"); err == nil && key != "" {
			cfg.Sarvam.APIKey = key
		}
	}
	if cfg.Server.APIToken == "" {
		if tok, err := kc.Get("vaani", "api_token"); err == nil && tok != "" {
			cfg.Server.APIToken = tok
		}
	}

	if cfg.Groq.APIKey == "" {
		msg := "missing required config: Groq API key. " +
			"Set it via environment variable VAANI_GROQ_API_KEY" +
			apiKeyHint()
		return Config{}, fmt.Errorf("%s", msg)
	}

	return cfg, nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
