package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"grant-platform-backend/internal/vectorindex"
	"grant-platform-backend/models"
)

// In-memory fakes shared by the pipeline, sink, and runner tests.

type fakeDocumentStore struct {
	mu   sync.Mutex
	docs map[string]*models.Document
}

func newFakeDocumentStore(docs ...*models.Document) *fakeDocumentStore {
	s := &fakeDocumentStore{docs: make(map[string]*models.Document)}
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	return s
}

func (s *fakeDocumentStore) FindDocument(_ context.Context, id string) (*models.Document, models.DocumentClass, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, "", ErrDocumentNotFound
	}
	cp := *doc
	class := models.ClassApplication
	if doc.SectionID != "" {
		class = models.ClassSection
	}
	return &cp, class, nil
}

func (s *fakeDocumentStore) InsertDocument(_ context.Context, _ models.DocumentClass, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
	return nil
}

func (s *fakeDocumentStore) SetExtracted(_ context.Context, _ models.DocumentClass, id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return ErrDocumentNotFound
	}
	doc.ExtractedText = text
	doc.VectorizationStatus = models.StatusExtracted
	doc.VectorizationError = ""
	return nil
}

func (s *fakeDocumentStore) SetStatus(_ context.Context, _ models.DocumentClass, id, status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return ErrDocumentNotFound
	}
	doc.VectorizationStatus = status
	doc.VectorizationError = errMsg
	return nil
}

func (s *fakeDocumentStore) MarkCompleted(_ context.Context, _ models.DocumentClass, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return ErrDocumentNotFound
	}
	now := time.Now()
	doc.VectorizationStatus = models.StatusCompleted
	doc.VectorizationError = ""
	doc.LastVectorizedAt = &now
	return nil
}

func (s *fakeDocumentStore) status(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[id]; ok {
		return doc.VectorizationStatus
	}
	return ""
}

type fakeQueueStore struct {
	mu      sync.Mutex
	entries map[string]*models.QueueEntry
	nextID  int
}

func newFakeQueueStore(entries ...*models.QueueEntry) *fakeQueueStore {
	s := &fakeQueueStore{entries: make(map[string]*models.QueueEntry)}
	for _, e := range entries {
		s.entries[e.ID] = e
	}
	return s
}

func (s *fakeQueueStore) Enqueue(_ context.Context, documentID string, class models.DocumentClass) (*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	entry := &models.QueueEntry{
		ID:            fmt.Sprintf("entry-%d", s.nextID),
		DocumentID:    documentID,
		DocumentClass: class,
		Status:        models.StatusPending,
		CreatedAt:     time.Now(),
	}
	s.entries[entry.ID] = entry
	return entry, nil
}

func (s *fakeQueueStore) Find(_ context.Context, id string) (*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("queue entry %s not found", id)
	}
	cp := *entry
	return &cp, nil
}

func (s *fakeQueueStore) Claim(_ context.Context, id, from, to string) (*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok || entry.Status != from {
		return nil, ErrEntryNotClaimable
	}
	entry.Status = to
	cp := *entry
	return &cp, nil
}

func (s *fakeQueueStore) ClaimBatch(_ context.Context, from, to string, limit int) ([]models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var claimed []models.QueueEntry
	for _, entry := range s.entries {
		if len(claimed) >= limit {
			break
		}
		if entry.Status == from {
			entry.Status = to
			claimed = append(claimed, *entry)
		}
	}
	return claimed, nil
}

func (s *fakeQueueStore) Update(_ context.Context, id, status string, attempts int, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("queue entry %s not found", id)
	}
	entry.Status = status
	entry.Attempts = attempts
	entry.Error = errMsg
	return nil
}

func (s *fakeQueueStore) get(id string) models.QueueEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.entries[id]
}

type fakeGrantStore struct {
	mu          sync.Mutex
	apps        map[string]*models.GrantApplication
	opps        map[string]*models.GrantOpportunity
	grants      map[string]*models.Grant
	reqs        map[string][]models.Requirement
	orgReqs     map[string][]models.Requirement
	saved       []string
	savedExpiry time.Time
}

func newFakeGrantStore(apps ...*models.GrantApplication) *fakeGrantStore {
	s := &fakeGrantStore{
		apps:    make(map[string]*models.GrantApplication),
		opps:    make(map[string]*models.GrantOpportunity),
		grants:  make(map[string]*models.Grant),
		reqs:    make(map[string][]models.Requirement),
		orgReqs: make(map[string][]models.Requirement),
	}
	for _, a := range apps {
		s.apps[a.ID] = a
	}
	return s
}

func (s *fakeGrantStore) FindApplication(_ context.Context, id string) (*models.GrantApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok {
		return nil, fmt.Errorf("grant application %s not found", id)
	}
	cp := *app
	return &cp, nil
}

func (s *fakeGrantStore) FindOpportunity(_ context.Context, id string) (*models.GrantOpportunity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if opp, ok := s.opps[id]; ok {
		cp := *opp
		return &cp, nil
	}
	return nil, fmt.Errorf("grant opportunity %s not found", id)
}

func (s *fakeGrantStore) FindGrant(_ context.Context, id string) (*models.Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if grant, ok := s.grants[id]; ok {
		cp := *grant
		return &cp, nil
	}
	return nil, fmt.Errorf("grant %s not found", id)
}

func (s *fakeGrantStore) FindRequirements(_ context.Context, grantID string) ([]models.Requirement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reqs[grantID], nil
}

func (s *fakeGrantStore) FindOrgRequirements(_ context.Context, orgID string) ([]models.Requirement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orgReqs[orgID], nil
}

func (s *fakeGrantStore) SaveVectorStore(_ context.Context, appID, storeID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[appID]
	if !ok {
		return fmt.Errorf("grant application %s not found", appID)
	}
	app.VectorStoreID = storeID
	app.VectorStoreExpiresAt = &expiresAt
	s.saved = append(s.saved, storeID)
	s.savedExpiry = expiresAt
	return nil
}

type fakeIndexClient struct {
	mu            sync.Mutex
	created       int
	uploads       map[string][][]string
	createErr     error
	uploadErr     error
	nextHandleNum int
}

func newFakeIndexClient() *fakeIndexClient {
	return &fakeIndexClient{uploads: make(map[string][][]string)}
}

func (c *fakeIndexClient) CreateStore(_ context.Context, _ string) (vectorindex.StoreHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return vectorindex.StoreHandle{}, c.createErr
	}
	c.created++
	c.nextHandleNum++
	return vectorindex.StoreHandle{
		ID:        fmt.Sprintf("vs-%d", c.nextHandleNum),
		ExpiresAt: time.Now().AddDate(0, 0, 7),
	}, nil
}

func (c *fakeIndexClient) UploadChunks(_ context.Context, storeID, _ string, chunks []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uploadErr != nil {
		return c.uploadErr
	}
	c.uploads[storeID] = append(c.uploads[storeID], chunks)
	return nil
}

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	e.calls++
	return []float32{float32(len(text)), 0.5, 1.5}, nil
}

type fakeEventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *fakeEventLog) Log(_ context.Context, _ string, _ models.DocumentClass, event string, _ map[string]interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *fakeEventLog) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e == event {
			return true
		}
	}
	return false
}

type fakeVectorSink struct {
	mu       sync.Mutex
	stored   map[string][]models.ChunkEmbedding
	mirrored map[string][]string
	err      error
}

func newFakeVectorSink() *fakeVectorSink {
	return &fakeVectorSink{
		stored:   make(map[string][]models.ChunkEmbedding),
		mirrored: make(map[string][]string),
	}
}

func (s *fakeVectorSink) StoreVectors(_ context.Context, _ models.DocumentClass, documentID string, embeddings []models.ChunkEmbedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.stored[documentID] = embeddings
	return nil
}

func (s *fakeVectorSink) MirrorToIndex(_ context.Context, _ models.DocumentClass, doc *models.Document, chunks []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirrored[doc.ID] = chunks
}

type fakeDispatcher struct {
	mu           sync.Mutex
	extractions  []string
	vectorizings []string
}

func (d *fakeDispatcher) DispatchExtraction(_ context.Context, entry *models.QueueEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.extractions = append(d.extractions, entry.ID)
	return nil
}

func (d *fakeDispatcher) DispatchVectorization(_ context.Context, entry *models.QueueEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vectorizings = append(d.vectorizings, entry.ID)
	return nil
}
