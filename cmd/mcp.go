/*
Copyright © 2025 tieubaoca
*/
package cmd

import (
	"log"

	"github.com/spf13/cobra"
	"github.com/tieubaoca/memory-be/config"
	"github.com/tieubaoca/memory-be/mcp"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server",
	Long: `Exposes the configured sources as MCP tools (search_google_drive,
search_chrome_history, search_chatgpt_archive, search_gemini_archive,
web_fetch, process_pdf_ocr) over stdio, or over HTTP with --http.`,
	Run: func(cmd *cobra.Command, args []string) {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}

		registry, _, _, ocr := buildAdapters(cmd.Context(), cfg)
		server, err := mcp.NewServer(registry, ocr)
		if err != nil {
			log.Fatalf("Failed to create MCP server: %v", err)
		}

		httpAddr, _ := cmd.Flags().GetString("http")
		if httpAddr != "" {
			log.Printf("Starting MCP server on %s...\n", httpAddr)
			err = server.RunHTTP(cmd.Context(), httpAddr)
		} else {
			err = server.Run(cmd.Context())
		}
		if err != nil {
			log.Fatal("MCP server error:", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringP("config", "c", "config/config.yaml", "config file")
	mcpCmd.Flags().String("http", "", "serve MCP over HTTP on this address instead of stdio")
}
