package types

import "encoding/json"

// QueryRequest is the body of POST /search and the /ws/search message.
type QueryRequest struct {
	Query             string   `json:"query"`
	UserID            string   `json:"user_id,omitempty"`
	ExcludedFolderIDs []string `json:"excluded_folder_ids,omitempty"`
}

// ExcludedFolderRequest adds or updates an excluded Drive folder.
type ExcludedFolderRequest struct {
	FolderID    string `json:"folder_id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// ConfigSettingsRequest patches the excluded-folder settings.
type ConfigSettingsRequest struct {
	Settings map[string]any `json:"settings"`
}

// ConversationPayload is what the browser-extension bridge pushes for one
// batch of chat conversations. Conversations stays opaque; the chat-archive
// adapter runs its extraction strategies over it.
type ConversationPayload struct {
	Source        string          `json:"source"`
	Conversations json.RawMessage `json:"conversations"`
}
