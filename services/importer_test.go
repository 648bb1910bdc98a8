package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"grant-platform-backend/internal/config"
	"grant-platform-backend/models"
)

func TestImportForApplication(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "GrantPlatform/1.0" {
			t.Errorf("Unexpected User-Agent: %s", r.Header.Get("User-Agent"))
		}
		switch r.URL.Path {
		case "/opportunity":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html><body>Opportunity details</body></html>"))
		case "/requirements.txt":
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte("Requirement list"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	grants := newFakeGrantStore(&models.GrantApplication{
		ID:                 "app-1",
		GrantOpportunityID: "opp-1",
	})
	grants.opps["opp-1"] = &models.GrantOpportunity{
		ID:      "opp-1",
		URL:     server.URL + "/opportunity",
		GrantID: "grant-1",
	}
	grants.grants["grant-1"] = &models.Grant{ID: "grant-1", OrganizationID: "org-1"}
	grants.reqs["grant-1"] = []models.Requirement{
		{ID: "req-1", URL: server.URL + "/requirements.txt", Active: true},
		{ID: "req-2", URL: server.URL + "/inactive.txt", Active: false},
	}

	docs := newFakeDocumentStore()
	queue := newFakeQueueStore()
	blobs := NewMemoryBlobStore()
	dispatcher := &fakeDispatcher{}

	cfg := &config.Config{
		StorageBucket:     "grant-attachments",
		MaxFileSize:       10 << 20,
		ImporterUserAgent: "GrantPlatform/1.0",
		ImporterTimeout:   5,
	}
	imp := NewRequirementImporter(cfg, grants, docs, queue, blobs, dispatcher)

	n, err := imp.ImportForApplication(context.Background(), "app-1")
	if err != nil {
		t.Fatalf("ImportForApplication failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 documents imported, got %d", n)
	}
	if len(docs.docs) != 2 {
		t.Errorf("Expected 2 documents stored, got %d", len(docs.docs))
	}
	if len(dispatcher.extractions) != 2 {
		t.Errorf("Expected 2 extraction tasks dispatched, got %d", len(dispatcher.extractions))
	}

	for _, doc := range docs.docs {
		if doc.GrantApplicationID != "app-1" {
			t.Errorf("Document %s not attached to application", doc.ID)
		}
		if doc.VectorizationStatus != models.StatusPending {
			t.Errorf("Document %s status = %s, want pending", doc.ID, doc.VectorizationStatus)
		}
		if _, err := blobs.Get("grant-attachments", doc.FilePath); err != nil {
			t.Errorf("Blob missing for document %s: %v", doc.ID, err)
		}
	}
}

func TestImportSkipsUnreachableURLs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	grants := newFakeGrantStore(&models.GrantApplication{
		ID:                 "app-1",
		GrantOpportunityID: "opp-1",
	})
	grants.opps["opp-1"] = &models.GrantOpportunity{ID: "opp-1", URL: server.URL + "/missing"}

	cfg := &config.Config{
		StorageBucket:     "grant-attachments",
		MaxFileSize:       10 << 20,
		ImporterUserAgent: "GrantPlatform/1.0",
		ImporterTimeout:   5,
	}
	imp := NewRequirementImporter(cfg, grants, newFakeDocumentStore(), newFakeQueueStore(), NewMemoryBlobStore(), nil)

	n, err := imp.ImportForApplication(context.Background(), "app-1")
	if err != nil {
		t.Fatalf("ImportForApplication failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected 0 imports for unreachable URL, got %d", n)
	}
}

func TestFileTypeFor(t *testing.T) {
	cases := []struct {
		contentType string
		url         string
		want        string
	}{
		{"application/pdf", "https://example.org/guide", "pdf"},
		{"text/html; charset=utf-8", "https://example.org/page", "html"},
		{"application/octet-stream", "https://example.org/rules.pdf?v=2", "pdf"},
		{"", "https://example.org/notes.txt", "txt"},
		{"", "https://example.org/apply", "html"},
	}
	for _, c := range cases {
		if got := fileTypeFor(c.contentType, c.url); got != c.want {
			t.Errorf("fileTypeFor(%q, %q) = %q, want %q", c.contentType, c.url, got, c.want)
		}
	}
}
