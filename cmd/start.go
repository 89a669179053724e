/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tieubaoca/memory-be/adapter"
	"github.com/tieubaoca/memory-be/config"
	"github.com/tieubaoca/memory-be/database"
	"github.com/tieubaoca/memory-be/handler"
	"github.com/tieubaoca/memory-be/repository"
	"github.com/tieubaoca/memory-be/service"
	"github.com/tieubaoca/memory-be/types"
)

// startServerCmd represents the start command
var startServerCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the memory search server",
	Long:  `Starts the HTTP and WebSocket API that runs searches across your connected sources`,
	Run: func(cmd *cobra.Command, args []string) {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}

		// LLM provider backs both completions and embeddings.
		ai, embedder, err := buildAI(cfg)
		if err != nil {
			log.Fatalf("Failed to initialize AI provider: %v", err)
		}

		excludedFoldersFile := cfg.ExcludedFoldersFile
		if excludedFoldersFile == "" {
			excludedFoldersFile = "data/excluded_folders.json"
		}
		excludedFolders, err := repository.NewExcludedFoldersRepo(excludedFoldersFile)
		if err != nil {
			log.Fatalf("Failed to load excluded folders: %v", err)
		}

		registry, webFetch, archives, ocr := buildAdapters(cmd.Context(), cfg)

		var indexFactory database.IndexFactory
		if cfg.VectorStore.Persist {
			indexFactory = database.NewWeaviateIndexFactory(cfg.VectorStore.Host, cfg.VectorStore.APIKey, uuid.NewString)
		} else {
			indexFactory = database.NewMemoryIndexFactory()
		}

		// Search history is optional: without Mongo the server still runs,
		// it just forgets finished searches.
		var historyRepo repository.SearchHistoryRepo
		if cfg.MongoURI != "" {
			mongoClient, err := database.NewMongoClient(cfg.MongoURI)
			if err != nil {
				log.Fatalf("Failed to connect to MongoDB: %v", err)
			}
			dbName := cfg.MongoDatabase
			if dbName == "" {
				dbName = "memory"
			}
			historyRepo = repository.NewSearchHistoryRepo(mongoClient.Database(dbName))
			defer mongoClient.Disconnect(context.Background())
		}

		pipeline := service.NewPipelineService(
			service.NewKeywordService(ai),
			service.NewRetrievalService(registry, webFetch, ocr),
			service.NewIndexerService(embedder),
			service.NewRetrieverService(embedder),
			service.NewReportService(ai),
			indexFactory,
			historyRepo,
			cfg.Pipeline,
		)
		pipeline.SetExcludedFolderProvider(excludedFolders.EnabledIDs)

		// Initialize handlers
		corsHandler := handler.NewCorsHandler()
		searchHandler := handler.NewSearchHandler(pipeline, historyRepo)
		configHandler := handler.NewConfigHandler(excludedFolders)
		bridgeHandler := handler.NewBridgeHandler(archives...)
		wsService := service.NewWebSocketService(pipeline)

		// Setup Gin router
		router := gin.Default()
		router.Use(corsHandler.CorsMiddleware)

		apiV1 := router.Group("/api/v1")
		{
			apiV1.POST("/search", searchHandler.HandleSearch)
			apiV1.GET("/search/history", searchHandler.HandleSearchHistory)

			apiV1.GET("/config/excluded-folders", configHandler.HandleListExcludedFolders)
			apiV1.POST("/config/excluded-folders", configHandler.HandleAddExcludedFolder)
			apiV1.DELETE("/config/excluded-folders/:folder_id", configHandler.HandleRemoveExcludedFolder)
			apiV1.PATCH("/config/excluded-folders/:folder_id", configHandler.HandleToggleExcludedFolder)
			apiV1.POST("/config/excluded-folders/reload", configHandler.HandleReloadExcludedFolders)

			apiV1.POST("/bridge/conversations", bridgeHandler.HandlePushConversations)
			apiV1.GET("/bridge/status", bridgeHandler.HandleArchiveStatus)
		}

		router.GET("/ws/search", gin.WrapF(wsService.HandleSearch))
		router.GET("/health", gin.WrapH(wsService.Health()))

		port := cfg.Port
		if port == "" {
			port = "8080"
		}
		log.Printf("Starting server on port %s...\n", port)
		if err := router.Run(":" + port); err != nil {
			log.Fatal("Server error:", err)
		}
	},
}

// buildAI picks the configured LLM provider. Both providers implement the
// completion and embedding interfaces.
func buildAI(cfg *config.Config) (service.AIService, service.Embedder, error) {
	if cfg.LLMProvider == "gemini" {
		gemini, err := service.NewGeminiService(cfg.Gemini.APIKeys, cfg.Gemini.Model, cfg.Gemini.EmbedModel)
		if err != nil {
			return nil, nil, err
		}
		return gemini, gemini, nil
	}
	openAI := service.NewOpenAIService(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.EmbedModel)
	return openAI, openAI, nil
}

// buildAdapters constructs every configured source adapter. A source whose
// configuration is missing is skipped, not fatal: the pipeline runs with
// whatever is connected.
func buildAdapters(ctx context.Context, cfg *config.Config) (*adapter.Registry, *adapter.WebFetchAdapter, []*adapter.ChatArchiveAdapter, adapter.OCRClient) {
	var adapters []adapter.SourceAdapter

	if cfg.Drive.CredentialsFile != "" {
		var driveAdapter *adapter.DriveAdapter
		var err error
		if cfg.Drive.TokenFile != "" {
			driveAdapter, err = adapter.NewDriveAdapterOAuth(ctx, cfg.Drive.CredentialsFile, cfg.Drive.TokenFile)
		} else {
			driveAdapter, err = adapter.NewDriveAdapter(ctx, cfg.Drive.CredentialsFile)
		}
		if err != nil {
			log.Printf("Google Drive disabled: %v", err)
		} else {
			adapters = append(adapters, driveAdapter)
		}
	}

	adapters = append(adapters, adapter.NewChromeHistoryAdapter(cfg.ChromeHistory.HistoryPath))

	chatGPT := adapter.NewChatArchiveAdapter(types.SourceChatGPT)
	gemini := adapter.NewChatArchiveAdapter(types.SourceGemini)
	adapters = append(adapters, chatGPT, gemini)

	var webFetch *adapter.WebFetchAdapter
	if !cfg.WebFetch.Disabled {
		webFetch = adapter.NewWebFetchAdapter()
		adapters = append(adapters, webFetch)
	}

	var ocr adapter.OCRClient
	if cfg.Mistral.APIKey != "" {
		ocr = adapter.NewMistralOCR(cfg.Mistral.APIKey, cfg.Mistral.Endpoint, cfg.Mistral.OCRModel)
	}

	return adapter.NewRegistry(adapters...), webFetch, []*adapter.ChatArchiveAdapter{chatGPT, gemini}, ocr
}

func init() {
	rootCmd.AddCommand(startServerCmd)
	startServerCmd.Flags().StringP("config", "c", "config/config.yaml", "config file")
}
