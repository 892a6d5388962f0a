package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"redactor/internal/imageio"
	"redactor/internal/jobs"
	"redactor/internal/ocr"
	"redactor/internal/pii"
	"redactor/internal/pipeline"
	"redactor/internal/queue"
	"redactor/internal/storage"
)

// ProcessImageResponse is returned by /upload-image and /preview-detection.
type ProcessImageResponse struct {
	Success             bool                `json:"success"`
	Message             string              `json:"message"`
	FilePath            string              `json:"file_path"`
	PreviewImagePath    string              `json:"preview_image_path,omitempty"`
	MaskedImagePath     string              `json:"masked_image_path,omitempty"`
	ComparisonImagePath string              `json:"comparison_image_path,omitempty"`
	DetectedEntities    []pii.Entity        `json:"detected_entities"`
	ProcessingTime      float64             `json:"processing_time"`
	ExtractedText       string              `json:"extracted_text"`
	Statistics          pipeline.Statistics `json:"statistics"`
}

// EngineHealth is one engine's status in the health response.
type EngineHealth struct {
	Available bool   `json:"available"`
	Enabled   bool   `json:"enabled"`
	Error     string `json:"error,omitempty"`
}

// ServiceStatus represents the status of a service dependency.
type ServiceStatus struct {
	Configured bool   `json:"configured"`
	Available  bool   `json:"available"`
	Backend    string `json:"backend,omitempty"`
	Error      string `json:"error,omitempty"`
}

// HealthResponse represents the health check response structure.
type HealthResponse struct {
	Status     string                  `json:"status"`
	Version    string                  `json:"version"`
	Timestamp  string                  `json:"timestamp"`
	Uptime     string                  `json:"uptime"`
	Engines    map[string]EngineHealth `json:"engines"`
	Recognizer string                  `json:"recognizer"`
	Storage    ServiceStatus           `json:"storage"`
	Database   ServiceStatus           `json:"database"`
	Queue      ServiceStatus           `json:"queue"`
}

// JobResponse is returned when a job is enqueued.
type JobResponse struct {
	JobID  string      `json:"job_id"`
	TaskID string      `json:"task_id"`
	Status jobs.Status `json:"status"`
	Object string      `json:"object"`
}

// Health reports engine availability and the state of optional services.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	registry := s.pipeline.Extractor().Registry()

	engines := make(map[string]EngineHealth)
	for _, st := range registry.Statuses() {
		engines[st.Name] = EngineHealth{Available: st.Available, Enabled: st.Enabled, Error: st.Error}
	}

	recognizer := s.pipeline.Detector().RecognizerName()
	if recognizer == "" {
		recognizer = "patterns only"
	}

	response := HealthResponse{
		Status:     "healthy",
		Version:    s.version,
		Timestamp:  s.now().Format(time.RFC3339),
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Engines:    engines,
		Recognizer: recognizer,
		Storage:    ServiceStatus{Configured: true, Available: true, Backend: s.store.Backend()},
	}
	if err := s.store.Ping(ctx); err != nil {
		response.Storage.Available = false
		response.Storage.Error = err.Error()
	}
	if s.jobs != nil {
		response.Database = ServiceStatus{Configured: true, Available: true}
		if err := s.jobs.Ping(ctx); err != nil {
			response.Database.Available = false
			response.Database.Error = err.Error()
		}
	}
	if s.queue != nil {
		response.Queue = ServiceStatus{Configured: true, Available: true}
		if err := s.queue.Ping(); err != nil {
			response.Queue.Available = false
			response.Queue.Error = err.Error()
		}
	}

	if registry.Available() == 0 || !response.Storage.Available {
		response.Status = "degraded"
	}
	s.writeJSON(w, r, http.StatusOK, response)
}

// UploadImage stores the upload, runs the full pipeline and stores every
// produced image.
func (s *Server) UploadImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := zerolog.Ctx(ctx)

	fileName, data, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	name := storage.NewName(fileName, s.now())
	if err := s.store.Put(ctx, name, data, http.DetectContentType(data)); err != nil {
		log.Error().Err(err).Msg("Failed to store upload")
		s.sendError(w, r, http.StatusInternalServerError, "failed to store upload")
		return
	}

	result, err := s.pipeline.Process(ctx, pipeline.Input{Name: name, Data: data})
	if err != nil {
		s.sendProcessingError(w, r, err)
		return
	}

	response := ProcessImageResponse{
		Success:          true,
		FilePath:         filePath(name),
		DetectedEntities: result.Detection.Entities,
		ProcessingTime:   result.Statistics.TotalDuration.Seconds(),
		ExtractedText:    result.Extraction.FullText,
		Statistics:       result.Statistics,
	}

	// Preview and comparison are always re-encoded; an unmasked image keeps
	// its input format.
	rendered := imageio.OutputFormat(result.Format)
	outputs := []struct {
		kind   string
		data   []byte
		format string
		path   *string
	}{
		{storage.KindMasked, result.Masked, result.Format, &response.MaskedImagePath},
		{storage.KindPreview, result.Preview, rendered, &response.PreviewImagePath},
		{storage.KindComparison, result.Comparison, rendered, &response.ComparisonImagePath},
	}
	for _, out := range outputs {
		if out.data == nil {
			continue
		}
		variant := storage.VariantName(name, out.kind, imageio.Extension(out.format))
		if err := s.store.Put(ctx, variant, out.data, imageio.ContentType(out.format)); err != nil {
			log.Error().Err(err).Str("kind", out.kind).Msg("Failed to store output image")
			s.sendError(w, r, http.StatusInternalServerError, "failed to store "+out.kind+" image")
			return
		}
		*out.path = filePath(variant)
	}

	response.Message = fmt.Sprintf("Processed successfully. Found %d PII entities.", len(result.Detection.Entities))
	s.writeJSON(w, r, http.StatusOK, response)
}

// PreviewDetection runs detection and returns the outlined preview without masking.
func (s *Server) PreviewDetection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fileName, data, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	name := storage.NewName(fileName, s.now())
	result, err := s.pipeline.PreviewDetection(ctx, pipeline.Input{Name: name, Data: data})
	if err != nil {
		s.sendProcessingError(w, r, err)
		return
	}

	previewName := storage.VariantName(name, storage.KindPreview, imageio.Extension(result.Format))
	if err := s.store.Put(ctx, previewName, result.Preview, imageio.ContentType(result.Format)); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to store preview")
		s.sendError(w, r, http.StatusInternalServerError, "failed to store preview image")
		return
	}

	s.writeJSON(w, r, http.StatusOK, ProcessImageResponse{
		Success:          true,
		Message:          fmt.Sprintf("Detection preview created. Found %d PII entities.", len(result.Detection.Entities)),
		PreviewImagePath: filePath(previewName),
		DetectedEntities: result.Detection.Entities,
		ProcessingTime:   result.Statistics.TotalDuration.Seconds(),
		ExtractedText:    result.Extraction.FullText,
		Statistics:       result.Statistics,
	})
}

// ServeFile returns a stored file.
func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["filename"]
	data, err := s.store.Get(r.Context(), name)
	switch {
	case errors.Is(err, storage.ErrInvalidName):
		s.sendError(w, r, http.StatusBadRequest, "invalid file name")
		return
	case errors.Is(err, storage.ErrNotFound):
		s.sendError(w, r, http.StatusNotFound, "file not found")
		return
	case err != nil:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("file", name).Msg("Failed to read stored file")
		s.sendError(w, r, http.StatusInternalServerError, "failed to read file")
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Statistics counts stored files by extension and kind.
func (s *Server) Statistics(w http.ResponseWriter, r *http.Request) {
	objects, err := s.store.List(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to list storage")
		s.sendError(w, r, http.StatusInternalServerError, "failed to list files")
		return
	}
	s.writeJSON(w, r, http.StatusOK, storage.Summarize(objects))
}

// Cleanup deletes every stored file.
func (s *Server) Cleanup(w http.ResponseWriter, r *http.Request) {
	deleted, err := storage.DeleteAll(r.Context(), s.store)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Int("deleted", deleted).Msg("Cleanup incomplete")
		s.sendError(w, r, http.StatusInternalServerError, "cleanup incomplete")
		return
	}
	zerolog.Ctx(r.Context()).Info().Int("deleted", deleted).Msg("Storage cleaned up")
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Deleted %d files", deleted),
		"deleted": deleted,
	})
}

// CreateJob stores the upload and enqueues it for a worker.
func (s *Server) CreateJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.queue == nil || s.jobs == nil {
		s.sendError(w, r, http.StatusServiceUnavailable, "asynchronous processing is not configured")
		return
	}

	fileName, data, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	name := storage.NewName(fileName, s.now())
	if err := s.store.Put(ctx, name, data, http.DetectContentType(data)); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to store upload")
		s.sendError(w, r, http.StatusInternalServerError, "failed to store upload")
		return
	}

	job, err := s.jobs.Create(ctx, fileName, name)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to create job")
		s.sendError(w, r, http.StatusInternalServerError, "failed to create job")
		return
	}

	taskID, err := s.queue.Enqueue(ctx, queue.Payload{JobID: job.ID, Object: name})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("job_id", job.ID.String()).Msg("Failed to enqueue job")
		_ = s.jobs.Fail(ctx, job.ID, err.Error())
		s.sendError(w, r, http.StatusServiceUnavailable, "failed to enqueue job")
		return
	}

	event := zerolog.Ctx(ctx).Info().
		Str("job_id", job.ID.String()).
		Str("task_id", taskID)
	if claims, ok := ClaimsFromContext(ctx); ok {
		event = event.Str("subject", claims.Subject)
	}
	event.Msg("Job enqueued")

	s.writeJSON(w, r, http.StatusAccepted, JobResponse{
		JobID:  job.ID.String(),
		TaskID: taskID,
		Status: job.Status,
		Object: name,
	})
}

// GetJob returns a job record.
func (s *Server) GetJob(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		s.sendError(w, r, http.StatusServiceUnavailable, "job tracking is not configured")
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		s.sendError(w, r, http.StatusBadRequest, "invalid job id")
		return
	}
	job, err := s.jobs.Get(r.Context(), id)
	if errors.Is(err, jobs.ErrJobNotFound) {
		s.sendError(w, r, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to load job")
		s.sendError(w, r, http.StatusInternalServerError, "failed to load job")
		return
	}
	s.writeJSON(w, r, http.StatusOK, job)
}

// readUpload reads the multipart "file" field. It writes the error response
// itself and returns ok=false on failure.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.sendError(w, r, http.StatusRequestEntityTooLarge, imageio.ErrImageTooLarge.Error())
			return "", nil, false
		}
		s.sendError(w, r, http.StatusBadRequest, "invalid multipart form")
		return "", nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.sendError(w, r, http.StatusBadRequest, "no file provided (use the 'file' field)")
		return "", nil, false
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") && !imageio.IsImageExtension(header.Filename) {
		s.sendError(w, r, http.StatusBadRequest, "file must be an image")
		return "", nil, false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.sendError(w, r, http.StatusBadRequest, "failed to read file")
		return "", nil, false
	}
	if int64(len(data)) > s.maxUpload {
		s.sendError(w, r, http.StatusRequestEntityTooLarge, imageio.ErrImageTooLarge.Error())
		return "", nil, false
	}
	return header.Filename, data, true
}

// sendProcessingError maps pipeline errors to status codes. Only unreadable
// input is a client error.
func (s *Server) sendProcessingError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ocr.ErrImageTooLarge):
		s.sendError(w, r, http.StatusRequestEntityTooLarge, ocr.ErrImageTooLarge.Error())
	case errors.Is(err, ocr.ErrUndecodableImage), errors.Is(err, ocr.ErrEmptyImage):
		s.sendError(w, r, http.StatusBadRequest, ocr.ErrUndecodableImage.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Processing failed")
		s.sendError(w, r, http.StatusInternalServerError, "error processing image")
	}
}

func filePath(name string) string {
	return "/uploads/" + name
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Failed to write response")
	}
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.writeJSON(w, r, status, map[string]any{
		"success": false,
		"error":   message,
	})
}
