package services

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"grant-platform-backend/internal/config"
	"grant-platform-backend/internal/logger"
	"grant-platform-backend/models"
)

// RequirementImporter pulls external requirement documents linked to a
// grant application (opportunity page, grant page, grant and organization
// requirement URLs), stores them as application documents, and queues each
// one for processing.
type RequirementImporter struct {
	grants     GrantStore
	docs       DocumentStore
	queue      QueueStore
	blobs      BlobStore
	dispatcher TaskDispatcher
	client     *http.Client
	userAgent  string
	bucket     string
	maxSize    int64
}

func NewRequirementImporter(cfg *config.Config, grants GrantStore, docs DocumentStore, queue QueueStore, blobs BlobStore, dispatcher TaskDispatcher) *RequirementImporter {
	return &RequirementImporter{
		grants:     grants,
		docs:       docs,
		queue:      queue,
		blobs:      blobs,
		dispatcher: dispatcher,
		client: &http.Client{
			Timeout: time.Duration(cfg.ImporterTimeout) * time.Second,
		},
		userAgent: cfg.ImporterUserAgent,
		bucket:    cfg.StorageBucket,
		maxSize:   cfg.MaxFileSize,
	}
}

// ImportForApplication collects every requirement URL reachable from the
// application and imports each one. URLs that fail to fetch are skipped
// with a log line; the import reports how many documents it queued.
func (imp *RequirementImporter) ImportForApplication(ctx context.Context, appID string) (int, error) {
	app, err := imp.grants.FindApplication(ctx, appID)
	if err != nil {
		return 0, err
	}

	urls, err := imp.collectURLs(ctx, app)
	if err != nil {
		return 0, err
	}
	if len(urls) == 0 {
		return 0, nil
	}

	imported := 0
	for _, url := range urls {
		if err := imp.importOne(ctx, appID, url); err != nil {
			logger.Warn("Skipping requirement URL", "url", url, "error", err)
			continue
		}
		imported++
	}
	return imported, nil
}

// collectURLs walks application -> opportunity -> grant -> organization and
// gathers requirement URLs along the way, deduplicated in encounter order.
func (imp *RequirementImporter) collectURLs(ctx context.Context, app *models.GrantApplication) ([]string, error) {
	seen := make(map[string]bool)
	var urls []string
	add := func(url string) {
		if url != "" && !seen[url] {
			seen[url] = true
			urls = append(urls, url)
		}
	}

	if app.GrantOpportunityID == "" {
		return urls, nil
	}
	opp, err := imp.grants.FindOpportunity(ctx, app.GrantOpportunityID)
	if err != nil {
		return nil, err
	}
	add(opp.URL)

	if opp.GrantID == "" {
		return urls, nil
	}
	grant, err := imp.grants.FindGrant(ctx, opp.GrantID)
	if err != nil {
		return nil, err
	}
	add(grant.URL)

	reqs, err := imp.grants.FindRequirements(ctx, grant.ID)
	if err != nil {
		return nil, err
	}
	for _, req := range reqs {
		if req.Active {
			add(req.URL)
		}
	}

	if grant.OrganizationID != "" {
		orgReqs, err := imp.grants.FindOrgRequirements(ctx, grant.OrganizationID)
		if err != nil {
			return nil, err
		}
		for _, req := range orgReqs {
			if req.Active {
				add(req.URL)
			}
		}
	}

	return urls, nil
}

func (imp *RequirementImporter) importOne(ctx context.Context, appID, url string) error {
	data, fileType, err := imp.fetch(ctx, url)
	if err != nil {
		return err
	}

	docID := uuid.NewString()
	filePath := fmt.Sprintf("%s/imported/%s.%s", appID, docID, fileType)
	if err := imp.blobs.Put(imp.bucket, filePath, data); err != nil {
		return err
	}

	doc := &models.Document{
		ID:                  docID,
		GrantApplicationID:  appID,
		FileName:            fileNameFromURL(url, fileType),
		FileType:            fileType,
		FilePath:            filePath,
		VectorizationStatus: models.StatusPending,
	}
	if err := imp.docs.InsertDocument(ctx, models.ClassApplication, doc); err != nil {
		return err
	}

	entry, err := imp.queue.Enqueue(ctx, doc.ID, models.ClassApplication)
	if err != nil {
		return err
	}

	if imp.dispatcher != nil {
		if err := imp.dispatcher.DispatchExtraction(ctx, entry); err != nil {
			logger.Error("Failed to dispatch extraction task", "entry_id", entry.ID, "error", err)
		}
	}

	logger.Info("Imported requirement document", "document_id", doc.ID, "url", url)
	return nil
}

func (imp *RequirementImporter) fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid requirement URL: %w", err)
	}
	req.Header.Set("User-Agent", imp.userAgent)

	resp, err := imp.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch requirement: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("requirement fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, imp.maxSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read requirement body: %w", err)
	}
	if int64(len(data)) > imp.maxSize {
		return nil, "", fmt.Errorf("requirement at %s exceeds size limit", url)
	}

	return data, fileTypeFor(resp.Header.Get("Content-Type"), url), nil
}

// fileTypeFor maps the response content type, falling back to the URL
// extension, onto the extractor's dispatch keys. Anything unrecognized is
// treated as HTML since requirement pages overwhelmingly are.
func fileTypeFor(contentType, url string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediaType {
		case "application/pdf":
			return "pdf"
		case "text/plain":
			return "txt"
		case "text/html":
			return "html"
		case "application/msword":
			return "doc"
		case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
			return "docx"
		}
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(strippedPath(url)), "."))
	switch ext {
	case "pdf", "txt", "md", "csv", "json", "doc", "docx", "xls", "xlsx":
		return ext
	}
	return "html"
}

func strippedPath(url string) string {
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		return url[:i]
	}
	return url
}

func fileNameFromURL(url, fileType string) string {
	name := path.Base(strippedPath(url))
	if name == "" || name == "." || name == "/" {
		name = "requirement." + fileType
	}
	return name
}
