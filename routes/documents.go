package routes

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"grant-platform-backend/internal/config"
	"grant-platform-backend/models"
	"grant-platform-backend/services"
	"grant-platform-backend/utils"
)

var uploadableTypes = map[string]bool{
	"pdf": true, "doc": true, "docx": true,
	"xls": true, "xlsx": true,
	"txt": true, "md": true, "csv": true, "json": true,
	"html": true, "htm": true,
}

// HandleDocumentUpload accepts a multipart file for a grant application or
// a section, stores the bytes, and queues the document for processing.
func HandleDocumentUpload(cfg *config.Config, docs services.DocumentStore, queue services.QueueStore, blobs services.BlobStore, dispatcher services.TaskDispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		applicationID := c.PostForm("grant_application_id")
		sectionID := c.PostForm("grant_application_section_id")
		if (applicationID == "") == (sectionID == "") {
			utils.RespondWithBadRequest(c, "Provide exactly one of grant_application_id or grant_application_section_id", nil)
			return
		}

		file, header, err := c.Request.FormFile("file")
		if err != nil {
			utils.RespondWithBadRequest(c, "No file provided", nil)
			return
		}
		defer file.Close()

		if header.Size > cfg.MaxFileSize {
			utils.RespondWithBadRequest(c, "File size exceeds maximum limit", gin.H{
				"max_bytes": cfg.MaxFileSize,
			})
			return
		}

		fileType := strings.ToLower(strings.TrimPrefix(filepath.Ext(header.Filename), "."))
		if !uploadableTypes[fileType] {
			utils.RespondWithBadRequest(c, "Unsupported file type", gin.H{
				"file_type": fileType,
			})
			return
		}

		data, err := io.ReadAll(io.LimitReader(file, cfg.MaxFileSize+1))
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to read uploaded file", nil)
			return
		}
		if int64(len(data)) > cfg.MaxFileSize {
			utils.RespondWithBadRequest(c, "File size exceeds maximum limit", nil)
			return
		}

		class := models.ClassApplication
		parentID := applicationID
		if sectionID != "" {
			class = models.ClassSection
			parentID = sectionID
		}

		docID := uuid.NewString()
		blobPath := fmt.Sprintf("%s/%s.%s", parentID, docID, fileType)
		if err := blobs.Put(cfg.StorageBucket, blobPath, data); err != nil {
			utils.RespondWithInternalError(c, "Failed to store file", nil)
			return
		}

		doc := &models.Document{
			ID:                  docID,
			GrantApplicationID:  applicationID,
			SectionID:           sectionID,
			FileName:            header.Filename,
			FileType:            fileType,
			FilePath:            blobPath,
			VectorizationStatus: models.StatusPending,
		}
		if err := docs.InsertDocument(c.Request.Context(), class, doc); err != nil {
			utils.RespondWithInternalError(c, "Failed to save document", nil)
			return
		}

		entry, err := queue.Enqueue(c.Request.Context(), doc.ID, class)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to queue document", nil)
			return
		}

		if dispatcher != nil {
			if err := dispatcher.DispatchExtraction(c.Request.Context(), entry); err != nil {
				// The periodic sweep will still pick the entry up.
				utils.RespondWithInternalError(c, "Failed to dispatch processing task", nil)
				return
			}
		}

		c.JSON(http.StatusCreated, gin.H{
			"document":       doc,
			"queue_entry_id": entry.ID,
		})
	}
}

// HandleDocumentStatus reports a document's processing state together with
// its recent audit events.
func HandleDocumentStatus(docs services.DocumentStore, events *models.ProcessingEventLog) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		doc, class, err := docs.FindDocument(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, services.ErrDocumentNotFound) {
				utils.RespondWithNotFound(c, "Document not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to load document", nil)
			return
		}

		recent, err := events.Recent(c.Request.Context(), id, 20)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load processing events", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"document":      doc,
			"document_type": class,
			"events":        recent,
		})
	}
}

// HandleDocumentRequeue creates a fresh queue entry with a zeroed attempt
// counter for a document whose previous run failed.
func HandleDocumentRequeue(docs services.DocumentStore, queue services.QueueStore, dispatcher services.TaskDispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		doc, class, err := docs.FindDocument(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, services.ErrDocumentNotFound) {
				utils.RespondWithNotFound(c, "Document not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to load document", nil)
			return
		}

		if doc.VectorizationStatus == models.StatusExtracting || doc.VectorizationStatus == models.StatusVectorizing {
			utils.RespondWithConflict(c, "Document is currently being processed")
			return
		}

		if err := docs.SetStatus(c.Request.Context(), class, doc.ID, models.StatusPending, ""); err != nil {
			utils.RespondWithInternalError(c, "Failed to reset document status", nil)
			return
		}

		entry, err := queue.Enqueue(c.Request.Context(), doc.ID, class)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to queue document", nil)
			return
		}

		if dispatcher != nil {
			if err := dispatcher.DispatchExtraction(c.Request.Context(), entry); err != nil {
				utils.RespondWithInternalError(c, "Failed to dispatch processing task", nil)
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"queue_entry_id": entry.ID,
			"status":         entry.Status,
		})
	}
}

// HandleRequirementImport pulls the external requirement documents linked
// to an application and queues them for processing.
func HandleRequirementImport(importer *services.RequirementImporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		appID := c.Param("id")

		imported, err := importer.ImportForApplication(c.Request.Context(), appID)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to import requirements", gin.H{
				"error": err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"imported": imported})
	}
}
