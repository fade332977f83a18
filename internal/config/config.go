package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the top-level application configuration tree.
type Config struct {
	Server    *ServerConfig    `yaml:"server" json:"server"`
	Pipeline  *PipelineConfig  `yaml:"pipeline" json:"pipeline"`
	Models    []ModelConfig    `yaml:"models" json:"models"`
	Vector    *VectorConfig    `yaml:"vector_database" json:"vector_database"`
	Cache     *CacheConfig     `yaml:"cache" json:"cache"`
	WebSearch *WebSearchConfig `yaml:"web_search" json:"web_search"`
	Asynq     *AsynqConfig     `yaml:"asynq" json:"asynq"`
}

// AsynqConfig configures the redis-backed task queue the feedback-write
// path enqueues through, so a feedback write never blocks the request
// path: it is enforced by a queue rather than a bare goroutine.
type AsynqConfig struct {
	Addr         string        `yaml:"addr" json:"addr"`
	Username     string        `yaml:"username" json:"username"`
	Password     string        `yaml:"password" json:"password"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	Concurrency  int           `yaml:"concurrency" json:"concurrency"`
}

// ServerConfig configures the HTTP surface the orchestrator is mounted under.
type ServerConfig struct {
	Port            int           `yaml:"port" json:"port"`
	Host            string        `yaml:"host" json:"host"`
	LogPath         string        `yaml:"log_path" json:"log_path"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" default:"30s"`
}

// PipelineConfig collects every tunable knob the pipeline stages read.
type PipelineConfig struct {
	HybridTopK            int              `yaml:"hybrid_top_k" json:"hybrid_top_k"`
	HybridAlpha           float64          `yaml:"hybrid_alpha" json:"hybrid_alpha"`
	FinalTopN             int              `yaml:"final_top_n" json:"final_top_n"`
	RerankFloor           float64          `yaml:"rerank_floor" json:"rerank_floor"`
	MinPassageChars       int              `yaml:"min_passage_chars" json:"min_passage_chars"`
	FaithfulnessThreshold float64          `yaml:"faithfulness_threshold" json:"faithfulness_threshold"`
	RequestDeadlineMs     int              `yaml:"request_deadline_ms" json:"request_deadline_ms"`
	HistoryWindow         int              `yaml:"history_window" json:"history_window"`
	CacheMemoryBound      int              `yaml:"cache_memory_bound" json:"cache_memory_bound"`
	ForceFamily           string           `yaml:"force_family" json:"force_family"`
	CitationJaccard       float64          `yaml:"citation_jaccard" json:"citation_jaccard"`
	MaxCitations          int              `yaml:"max_citations" json:"max_citations"`
	WorkerPoolSize        int              `yaml:"worker_pool_size" json:"worker_pool_size"`
	HighQualityLanguages  []string         `yaml:"high_quality_languages" json:"high_quality_languages"`
	HighCoverageLanguages []string         `yaml:"high_coverage_languages" json:"high_coverage_languages"`
	Timeouts              *TimeoutsConfig  `yaml:"timeouts" json:"timeouts"`
	Prompts               *PromptsConfig  `yaml:"prompts" json:"prompts"`
}

// TimeoutsConfig holds the per-call timeout budgets for each collaborator.
type TimeoutsConfig struct {
	Embedding   time.Duration `yaml:"embedding" json:"embedding"`
	VectorQuery time.Duration `yaml:"vector_query" json:"vector_query"`
	Rerank      time.Duration `yaml:"rerank" json:"rerank"`
	LLM         time.Duration `yaml:"llm" json:"llm"`
	WebFallback time.Duration `yaml:"web_fallback" json:"web_fallback"`
	CacheOp     time.Duration `yaml:"cache_op" json:"cache_op"`
}

// PromptsConfig holds the html/template sources for every LLM-driven stage.
type PromptsConfig struct {
	ClassifySystem  string `yaml:"classify_system" json:"classify_system"`
	ClassifyUser    string `yaml:"classify_user" json:"classify_user"`
	FollowUpSystem  string `yaml:"follow_up_system" json:"follow_up_system"`
	GenerateSystem  string `yaml:"generate_system" json:"generate_system"`
	GenerateContext string `yaml:"generate_context" json:"generate_context"`
	GuardSystem     string `yaml:"guard_system" json:"guard_system"`
	CannedOffTopic  string `yaml:"canned_off_topic" json:"canned_off_topic"`
	CannedHarmful   string `yaml:"canned_harmful" json:"canned_harmful"`
	CannedGreeting  string `yaml:"canned_greeting" json:"canned_greeting"`
	CannedGoodbye   string `yaml:"canned_goodbye" json:"canned_goodbye"`
	CannedThanks    string `yaml:"canned_thanks" json:"canned_thanks"`
	CannedEmergency string `yaml:"canned_emergency" json:"canned_emergency"`
	CannedHowItWorks string `yaml:"canned_how_it_works" json:"canned_how_it_works"`
	CannedNoLanguage string `yaml:"canned_no_language" json:"canned_no_language"`
	CannedNoSources  string `yaml:"canned_no_sources" json:"canned_no_sources"`
	CannedNoAnswer   string `yaml:"canned_no_answer" json:"canned_no_answer"`
}

// ModelConfig describes one LLM, embedding, or rerank provider entry.
type ModelConfig struct {
	Type       string                 `yaml:"type" json:"type"` // "llm_high_quality" | "llm_high_coverage" | "embedding" | "rerank"
	Source     string                 `yaml:"source" json:"source"`
	ModelName  string                 `yaml:"model_name" json:"model_name"`
	BaseURL    string                 `yaml:"base_url" json:"base_url"`
	APIKey     string                 `yaml:"api_key" json:"api_key"`
	ModelID    string                 `yaml:"model_id" json:"model_id"`
	Dimensions int                    `yaml:"dimensions" json:"dimensions"`
	Parameters map[string]interface{} `yaml:"parameters" json:"parameters"`
}

// VectorConfig selects the VectorIndexClient driver and its connection.
type VectorConfig struct {
	Driver string `yaml:"driver" json:"driver"` // "postgres" | "elasticsearch"
	DSN    string `yaml:"dsn" json:"dsn"`
	Index  string `yaml:"index" json:"index"`
}

// CacheConfig selects the CacheStore driver and its durability knobs.
type CacheConfig struct {
	Driver string      `yaml:"driver" json:"driver"` // "redis" | "bolt" | "memory"
	Redis  RedisConfig `yaml:"redis" json:"redis"`
	Bolt   BoltConfig  `yaml:"bolt" json:"bolt"`
}

// RedisConfig configures the redis-backed CacheStore.
type RedisConfig struct {
	Address  string `yaml:"address" json:"address"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

// BoltConfig configures the local append-log CacheStore.
type BoltConfig struct {
	Path           string        `yaml:"path" json:"path"`
	SnapshotPeriod time.Duration `yaml:"snapshot_period" json:"snapshot_period"`
}

// WebSearchConfig configures the WebSearchFallback collaborator.
type WebSearchConfig struct {
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	APIKey   string `yaml:"api_key" json:"api_key"`
}

// LoadConfig reads config.yaml (or config/config.yaml), interpolates
// ${ENV_VAR} references, and decodes the result into a *Config.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("$HOME/.climatequery")
	viper.AddConfigPath("/etc/climatequery/")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	configFileContent, err := os.ReadFile(viper.ConfigFileUsed())
	if err != nil {
		return nil, fmt.Errorf("error reading config file content: %w", err)
	}

	// Replace ${ENV_VAR} references before viper sees the file content.
	re := regexp.MustCompile(`\${([^}]+)}`)
	result := re.ReplaceAllStringFunc(string(configFileContent), func(match string) string {
		envVar := match[2 : len(match)-1]
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match
	})

	if err := viper.ReadConfig(strings.NewReader(result)); err != nil {
		return nil, fmt.Errorf("error re-reading interpolated config: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	}); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// applyDefaults fills in a sensible default for any knob the config file
// left at its zero value.
func applyDefaults(cfg *Config) {
	if cfg.Pipeline == nil {
		cfg.Pipeline = &PipelineConfig{}
	}
	p := cfg.Pipeline
	if p.HybridTopK == 0 {
		p.HybridTopK = 10
	}
	if p.HybridAlpha == 0 {
		p.HybridAlpha = 0.5
	}
	if p.FinalTopN == 0 {
		p.FinalTopN = 5
	}
	if p.RerankFloor == 0 {
		p.RerankFloor = 0.2
	}
	if p.MinPassageChars == 0 {
		p.MinPassageChars = 120
	}
	if p.FaithfulnessThreshold == 0 {
		p.FaithfulnessThreshold = 0.7
	}
	if p.RequestDeadlineMs == 0 {
		p.RequestDeadlineMs = 60_000
	}
	if p.HistoryWindow == 0 {
		p.HistoryWindow = 8
	}
	if p.CitationJaccard == 0 {
		p.CitationJaccard = 0.15
	}
	if p.MaxCitations == 0 {
		p.MaxCitations = 5
	}
	if p.WorkerPoolSize == 0 {
		p.WorkerPoolSize = 16
	}
	if len(p.HighQualityLanguages) == 0 {
		p.HighQualityLanguages = defaultHighQualityLanguages
	}
	if len(p.HighCoverageLanguages) == 0 {
		p.HighCoverageLanguages = defaultHighCoverageLanguages
	}
	if p.Timeouts == nil {
		p.Timeouts = &TimeoutsConfig{}
	}
	t := p.Timeouts
	if t.Embedding == 0 {
		t.Embedding = 5 * time.Second
	}
	if t.VectorQuery == 0 {
		t.VectorQuery = 3 * time.Second
	}
	if t.Rerank == 0 {
		t.Rerank = 5 * time.Second
	}
	if t.LLM == 0 {
		t.LLM = 30 * time.Second
	}
	if t.WebFallback == 0 {
		t.WebFallback = 10 * time.Second
	}
	if t.CacheOp == 0 {
		t.CacheOp = 1 * time.Second
	}

	if p.Prompts == nil {
		p.Prompts = &PromptsConfig{}
	}
	applyPromptDefaults(p.Prompts)

	if cfg.Asynq == nil {
		cfg.Asynq = &AsynqConfig{}
	}
	if cfg.Asynq.Addr == "" {
		cfg.Asynq.Addr = "localhost:6379"
	}
	if cfg.Asynq.Concurrency == 0 {
		cfg.Asynq.Concurrency = 5
	}
	if cfg.Asynq.ReadTimeout == 0 {
		cfg.Asynq.ReadTimeout = 5 * time.Second
	}
	if cfg.Asynq.WriteTimeout == 0 {
		cfg.Asynq.WriteTimeout = 5 * time.Second
	}
}

func applyPromptDefaults(pr *PromptsConfig) {
	setDefault(&pr.ClassifySystem, "You are a classifier for a climate-change question answering assistant. "+
		"Given a user's message and recent conversation history, decide which of these labels applies: "+
		"greeting, goodbye, thanks, emergency (a climate-related emergency scenario, not medical or personal "+
		"distress), instruction (the user is asking how this assistant works), on_topic (a substantive climate "+
		"question), off_topic (unrelated to climate), harmful (a safety concern, including non-climate distress). "+
		"Also produce a standalone English rewrite of the query that can be understood without the conversation "+
		"history.")
	setDefault(&pr.ClassifyUser, "Conversation history:\n{{range .History}}{{.Role}}: {{.Content}}\n{{end}}\n"+
		"Current message: {{.Query}}")
	setDefault(&pr.FollowUpSystem, "Given the previous assistant turn and the current user message, answer only "+
		"\"true\" or \"false\": does the current message depend on the previous turn for context?")
	setDefault(&pr.GenerateSystem, "You are a climate-change assistant. Answer only using the numbered passages "+
		"provided below. If the passages do not support an answer, say so rather than guessing. Cite passages "+
		"inline using their number in brackets, e.g. [2]. Respond in {{.TargetLanguage}}.")
	setDefault(&pr.GenerateContext, "Question: {{.Query}}\n\nPassages:\n"+
		"{{range $i, $p := .Passages}}[{{$i}}] {{$p.Title}}: {{$p.Text}}\n{{end}}")
	setDefault(&pr.GuardSystem, "Score how well the answer below is supported by the passages, from 0 to 1."+
		"\n\nAnswer:\n{{.Answer}}\n\nPassages:\n{{range .Passages}}- {{.Text}}\n{{end}}")
	setDefault(&pr.CannedOffTopic, "I'm focused on climate change topics and can't help with that one.")
	setDefault(&pr.CannedHarmful, "I'm not able to help with that. If you're in crisis, please contact a local "+
		"emergency service or crisis line.")
	setDefault(&pr.CannedGreeting, "Hello! Ask me anything about climate change.")
	setDefault(&pr.CannedGoodbye, "Goodbye! Feel free to come back with more climate questions.")
	setDefault(&pr.CannedThanks, "You're welcome!")
	setDefault(&pr.CannedEmergency, "For any immediate danger, please contact your local emergency services first. "+
		"I can help explain the climate science behind what you're experiencing once you're safe.")
	setDefault(&pr.CannedHowItWorks, "I answer climate-change questions by retrieving passages from a curated "+
		"evidence base and grounding my response in them, citing my sources.")
	setDefault(&pr.CannedNoLanguage, "I couldn't confidently determine your language. Could you try rephrasing, "+
		"or let me know which language you'd like to use?")
	setDefault(&pr.CannedNoSources, "I couldn't find reliable sources to answer that question.")
	setDefault(&pr.CannedNoAnswer, "I couldn't produce a reliable answer to that question.")
}

// defaultHighQualityLanguages is the curated list of codes the HighQuality
// family serves well.
var defaultHighQualityLanguages = []string{
	"en", "es", "fr", "de", "it", "pt", "nl", "pl", "sv", "da",
	"no", "fi", "ru", "uk", "tr", "ar", "he", "hi", "ja", "ko",
	"zh", "id",
}

// defaultHighCoverageLanguages is the broader, lower-curation list the
// HighCoverage family falls back to for everything HighQuality doesn't
// claim.
var defaultHighCoverageLanguages = []string{
	"sw", "am", "yo", "ha", "bn", "ur",
	"vi", "th", "ms", "fil", "ta", "te",
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
