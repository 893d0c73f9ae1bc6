package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	EmbedLLM  LLMConfig       `yaml:"embed_llm"`
	Providers ProvidersConfig `yaml:"providers"`
	RAG       RAGConfig       `yaml:"rag"`
	Reports   ReportsConfig   `yaml:"reports"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

// LLMConfig holds one provider endpoint. BaseURL selects OpenAI-compatible
// servers; Backend "ollama" switches to a local Ollama server.
type LLMConfig struct {
	Backend string `yaml:"backend"`
	BaseURL string `yaml:"base_url"`
	Key     string `yaml:"key"`
	Model   string `yaml:"model"`
}

type ProvidersConfig struct {
	Gemini  LLMConfig     `yaml:"gemini"`
	OpenAI  LLMConfig     `yaml:"openai"`
	Groq    LLMConfig     `yaml:"groq"`
	Timeout time.Duration `yaml:"timeout"`
}

type RAGConfig struct {
	ChunkMode    string `yaml:"chunk_mode"` // "paras" or "words"
	MaxChars     int    `yaml:"max_chars"`
	ChunkWords   int    `yaml:"chunk_words"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	TopK         int    `yaml:"top_k"`
	PreK         int    `yaml:"pre_k"`
	Rerank       bool   `yaml:"rerank"`
	MinScore     int    `yaml:"min_score"`
	ScoreWorkers int    `yaml:"score_workers"`
	CorpusDir    string `yaml:"corpus_dir"`
	IndexDir     string `yaml:"index_dir"`
}

type ReportsConfig struct {
	Dir string `yaml:"dir"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a config usable without any file on disk.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.RAG.ChunkMode == "" {
		c.RAG.ChunkMode = "paras"
	}
	if c.RAG.MaxChars == 0 {
		c.RAG.MaxChars = 1200
	}
	if c.RAG.ChunkWords == 0 {
		c.RAG.ChunkWords = 250
	}
	if c.RAG.ChunkOverlap == 0 {
		c.RAG.ChunkOverlap = 50
	}
	if c.RAG.TopK == 0 {
		c.RAG.TopK = 8
	}
	if c.RAG.MinScore == 0 {
		c.RAG.MinScore = 4
	}
	if c.RAG.ScoreWorkers == 0 {
		c.RAG.ScoreWorkers = 4
	}
	if c.Reports.Dir == "" {
		c.Reports.Dir = "./reports"
	}
	if c.Providers.Timeout == 0 {
		c.Providers.Timeout = 2 * time.Minute
	}
}
