package config

import (
	"fmt"

	"github.com/spf13/viper"
	"github.com/tieubaoca/memory-be/types"
)

type Config struct {
	Port                string               `mapstructure:"port"`
	LLMProvider         string               `mapstructure:"llm_provider"`
	OpenAI              OpenAIConfig         `mapstructure:"openai"`
	Gemini              GeminiConfig         `mapstructure:"gemini"`
	Mistral             MistralConfig        `mapstructure:"mistral"`
	Drive               DriveConfig          `mapstructure:"drive"`
	ChromeHistory       ChromeHistoryConfig  `mapstructure:"chrome_history"`
	WebFetch            WebFetchConfig       `mapstructure:"web_fetch"`
	VectorStore         VectorStoreConfig    `mapstructure:"vector_store"`
	MongoURI            string               `mapstructure:"MONGODB_URI"`
	MongoDatabase       string               `mapstructure:"mongo_database"`
	ExcludedFoldersFile string               `mapstructure:"excluded_folders_file"`
	Pipeline            types.PipelineConfig `mapstructure:"pipeline"`
}

type OpenAIConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"OPENAI_API_KEY"`
	Model      string `mapstructure:"model"`
	EmbedModel string `mapstructure:"embed_model"`
}

type GeminiConfig struct {
	APIKeys    []string `mapstructure:"api_keys"`
	APIKey     string   `mapstructure:"GEMINI_API_KEY"`
	Model      string   `mapstructure:"model"`
	EmbedModel string   `mapstructure:"embed_model"`
}

type MistralConfig struct {
	APIKey   string `mapstructure:"MISTRAL_API_KEY"`
	Endpoint string `mapstructure:"endpoint"`
	OCRModel string `mapstructure:"ocr_model"`
}

type DriveConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	TokenFile       string `mapstructure:"token_file"`
}

type ChromeHistoryConfig struct {
	HistoryPath string `mapstructure:"history_path"`
}

type WebFetchConfig struct {
	Disabled bool `mapstructure:"disabled"`
}

type VectorStoreConfig struct {
	Persist bool   `mapstructure:"persist"`
	Host    string `mapstructure:"host"`
	APIKey  string `mapstructure:"WEAVIATE_APIKEY"`
}

func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set up Viper to read from config file
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Set up Viper to read from environment variables
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Bind environment variables
	v.BindEnv("openai.OPENAI_API_KEY", "OPENAI_API_KEY")
	v.BindEnv("gemini.GEMINI_API_KEY", "GEMINI_API_KEY")
	v.BindEnv("mistral.MISTRAL_API_KEY", "MISTRAL_API_KEY")
	v.BindEnv("vector_store.WEAVIATE_APIKEY", "WEAVIATE_APIKEY")
	v.BindEnv("MONGODB_URI")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// A single key through the env var joins the rotation list.
	if config.Gemini.APIKey != "" {
		config.Gemini.APIKeys = append(config.Gemini.APIKeys, config.Gemini.APIKey)
	}

	return &config, nil
}
