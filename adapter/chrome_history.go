package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tieubaoca/memory-be/types"
)

// Chrome stores last_visit_time as microseconds since 1601-01-01 (WebKit epoch).
const webkitEpochOffsetSeconds = 11644473600

// ChromeHistoryAdapter searches the local Chrome History sqlite database.
// Chrome keeps the file locked while running, so every search works on a
// temp copy.
type ChromeHistoryAdapter struct {
	historyPath string
}

func NewChromeHistoryAdapter(historyPath string) *ChromeHistoryAdapter {
	if historyPath == "" {
		historyPath = findChromeHistoryPath()
	}
	return &ChromeHistoryAdapter{historyPath: historyPath}
}

func (a *ChromeHistoryAdapter) Type() types.SourceType { return types.SourceChromeHistory }

func (a *ChromeHistoryAdapter) Search(ctx context.Context, keywords []string, opts SearchOptions) ([]types.Document, error) {
	if a.historyPath == "" {
		return nil, fmt.Errorf("chrome history file not found")
	}
	if len(keywords) == 0 {
		return nil, nil
	}

	tempPath, err := copyHistoryFile(a.historyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to copy history file: %w", err)
	}
	defer os.Remove(tempPath)

	days := opts.Days
	if days <= 0 {
		days = 90
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 50
	}
	return searchHistoryDB(ctx, tempPath, keywords, days, maxResults)
}

func searchHistoryDB(ctx context.Context, dbPath string, keywords []string, days, maxResults int) ([]types.Document, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}
	defer db.Close()

	query, args := buildHistoryQuery(keywords, days, maxResults)
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history query failed: %w", err)
	}
	defer rows.Close()

	var docs []types.Document
	for rows.Next() {
		var (
			url, title    string
			visitCount    int
			lastVisitTime int64
		)
		if err := rows.Scan(&url, &title, &visitCount, &lastVisitTime); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		visitedAt := webkitToTime(lastVisitTime)
		docs = append(docs, types.Document{
			Content:     fmt.Sprintf("%s\n%s\nVisited %d times, last on %s", title, url, visitCount, visitedAt.Format(time.RFC3339)),
			SourceType:  types.SourceChromeHistory,
			SourceID:    url,
			Title:       title,
			URL:         url,
			RetrievedAt: time.Now(),
			MimeType:    "text/plain",
		})
	}
	return docs, rows.Err()
}

func buildHistoryQuery(keywords []string, days, maxResults int) (string, []any) {
	var conds []string
	var args []any
	for _, kw := range keywords {
		conds = append(conds, "(urls.title LIKE ? OR urls.url LIKE ?)")
		pattern := "%" + kw + "%"
		args = append(args, pattern, pattern)
	}

	startTime := time.Now().AddDate(0, 0, -days)
	args = append(args, timeToWebkit(startTime), maxResults)

	query := fmt.Sprintf(`SELECT urls.url, urls.title, urls.visit_count, urls.last_visit_time
FROM urls
WHERE (%s) AND urls.last_visit_time > ?
ORDER BY urls.last_visit_time DESC
LIMIT ?`, strings.Join(conds, " OR "))
	return query, args
}

func webkitToTime(micros int64) time.Time {
	unixMicros := micros - webkitEpochOffsetSeconds*1e6
	return time.UnixMicro(unixMicros)
}

func timeToWebkit(t time.Time) int64 {
	return (t.Unix() + webkitEpochOffsetSeconds) * 1e6
}

func copyHistoryFile(src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.CreateTemp("", "chrome_history_copy_*.db")
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}

// findChromeHistoryPath probes the default profile locations per platform.
func findChromeHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	var candidates []string
	switch runtime.GOOS {
	case "windows":
		local := os.Getenv("LOCALAPPDATA")
		candidates = []string{
			filepath.Join(local, "Google", "Chrome", "User Data", "Default", "History"),
			filepath.Join(local, "Google", "Chrome", "User Data", "Profile 1", "History"),
		}
	case "darwin":
		candidates = []string{
			filepath.Join(home, "Library", "Application Support", "Google", "Chrome", "Default", "History"),
			filepath.Join(home, "Library", "Application Support", "Google", "Chrome", "Profile 1", "History"),
		}
	default:
		candidates = []string{
			filepath.Join(home, ".config", "google-chrome", "Default", "History"),
			filepath.Join(home, ".config", "google-chrome", "Profile 1", "History"),
			filepath.Join(home, ".config", "chromium", "Default", "History"),
		}
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
