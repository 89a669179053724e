package adapter

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/tieubaoca/memory-be/types"
)

// Google Workspace MIME types that need export instead of download.
const (
	mimeGoogleDoc    = "application/vnd.google-apps.document"
	mimeGoogleSheet  = "application/vnd.google-apps.spreadsheet"
	mimeGoogleSlides = "application/vnd.google-apps.presentation"
	mimeFolder       = "application/vnd.google-apps.folder"
	mimePDF          = "application/pdf"
)

// maxDriveContentSize caps downloaded/exported content at 5MB.
const maxDriveContentSize = 5 * 1024 * 1024

// DriveAdapter searches Google Drive with fullText queries and converts
// matching files to documents. Google Docs/Sheets/Slides are exported to
// text; PDFs keep their MIME type so the orchestrator can route them
// through OCR.
type DriveAdapter struct {
	svc *drive.Service
}

func NewDriveAdapter(ctx context.Context, credentialsFile string) (*DriveAdapter, error) {
	svc, err := drive.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(drive.DriveReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return &DriveAdapter{svc: svc}, nil
}

// NewDriveAdapterWithService injects a prebuilt service, used by tests.
func NewDriveAdapterWithService(svc *drive.Service) *DriveAdapter {
	return &DriveAdapter{svc: svc}
}

func (a *DriveAdapter) Type() types.SourceType { return types.SourceDrive }

func (a *DriveAdapter) Search(ctx context.Context, keywords []string, opts SearchOptions) ([]types.Document, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	query := buildDriveQuery(keywords, opts.ExcludedFolderIDs)
	pageSize := int64(opts.MaxResults)
	if pageSize <= 0 {
		pageSize = 50
	}

	result, err := a.svc.Files.List().
		Q(query).
		PageSize(pageSize).
		Fields("nextPageToken, files(id, name, mimeType, modifiedTime, size, webViewLink, parents, trashed)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("drive search failed: %w", err)
	}

	var docs []types.Document
	for _, file := range result.Files {
		if file.MimeType == mimeFolder || file.Trashed {
			continue
		}
		content, mimeType, err := a.fetchFileContent(ctx, file)
		if err != nil {
			log.Printf("drive: skipping content of %q: %v", file.Name, err)
			mimeType = file.MimeType
		}
		docs = append(docs, types.Document{
			Content:     content,
			SourceType:  types.SourceDrive,
			SourceID:    file.Id,
			Title:       file.Name,
			URL:         file.WebViewLink,
			RetrievedAt: time.Now(),
			MimeType:    mimeType,
		})
	}
	return docs, nil
}

// buildDriveQuery assembles a files.list query: trash excluded, any keyword in
// full text, excluded folders removed from the parent set.
func buildDriveQuery(keywords []string, excludedFolderIDs []string) string {
	parts := []string{"trashed=false"}

	var keywordConds []string
	for _, kw := range keywords {
		escaped := strings.ReplaceAll(kw, `\`, `\\`)
		escaped = strings.ReplaceAll(escaped, `'`, `\'`)
		keywordConds = append(keywordConds, fmt.Sprintf("fullText contains '%s'", escaped))
	}
	if len(keywordConds) > 0 {
		parts = append(parts, "("+strings.Join(keywordConds, " or ")+")")
	}

	for _, folderID := range excludedFolderIDs {
		if folderID == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("not '%s' in parents", folderID))
	}

	return strings.Join(parts, " and ")
}

// fetchFileContent returns (content, effectiveMimeType, error). Workspace
// files are exported; PDFs are base64-opaque to text extraction here and pass
// through with empty content for the OCR stage; other text files download.
func (a *DriveAdapter) fetchFileContent(ctx context.Context, file *drive.File) (string, string, error) {
	switch file.MimeType {
	case mimeGoogleDoc, mimeGoogleSlides:
		content, err := a.exportFile(ctx, file.Id, "text/plain")
		return content, "text/plain", err
	case mimeGoogleSheet:
		content, err := a.exportFile(ctx, file.Id, "text/csv")
		return content, "text/csv", err
	case mimePDF:
		content, err := a.downloadFile(ctx, file.Id)
		return content, mimePDF, err
	}

	if !isTextMime(file.MimeType) || file.Size > maxDriveContentSize {
		return "", file.MimeType, nil
	}
	content, err := a.downloadFile(ctx, file.Id)
	return content, file.MimeType, err
}

func (a *DriveAdapter) exportFile(ctx context.Context, fileID, exportMime string) (string, error) {
	resp, err := a.svc.Files.Export(fileID, exportMime).Context(ctx).Download()
	if err != nil {
		return "", fmt.Errorf("export file: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDriveContentSize))
	if err != nil {
		return "", fmt.Errorf("read export: %w", err)
	}
	return string(data), nil
}

func (a *DriveAdapter) downloadFile(ctx context.Context, fileID string) (string, error) {
	resp, err := a.svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDriveContentSize))
	if err != nil {
		return "", fmt.Errorf("read file content: %w", err)
	}
	return string(data), nil
}

func isTextMime(mimeType string) bool {
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	switch mimeType {
	case "application/json", "application/xml", "application/javascript",
		"application/x-yaml", "application/sql":
		return true
	}
	return false
}
