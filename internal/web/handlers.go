package web

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/domain"
	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/importer"
)

// jobResponse is the API shape of an import job. File bytes are never
// echoed back, only their size.
type jobResponse struct {
	ID         uuid.UUID            `json:"id"`
	SupplierID int64                `json:"supplier_id"`
	State      domain.JobState      `json:"state"`
	FileName   string               `json:"file_name"`
	FileSize   int                  `json:"file_size"`
	Encoding   string               `json:"encoding"`
	Separator  string               `json:"separator"`
	HasHeader  bool                 `json:"has_header"`
	Mapping    domain.ColumnMapping `json:"mapping"`
	CreatedAt  time.Time            `json:"created_at"`
	StartedAt  *time.Time           `json:"started_at,omitempty"`
	FinishedAt *time.Time           `json:"finished_at,omitempty"`
}

// historyResponse is the API shape of a job's progress record.
type historyResponse struct {
	Status       domain.HistoryStatus `json:"status"`
	Stage        string               `json:"stage"`
	CheckpointAt time.Time            `json:"checkpoint_at"`
	Counts       countsResponse       `json:"counts"`
	Summary      string               `json:"summary,omitempty"`
	DurationMS   int64                `json:"duration_ms"`
}

type countsResponse struct {
	TotalRows   int                       `json:"total_rows"`
	Created     int                       `json:"created"`
	Updated     int                       `json:"updated"`
	Skipped     int                       `json:"skipped"`
	SkipReasons map[domain.SkipReason]int `json:"skip_reasons,omitempty"`
	Errors      int                       `json:"errors"`
	Removed     int64                     `json:"removed"`
	Archived    int64                     `json:"archived"`
	Reactivated int64                     `json:"reactivated"`
}

type importErrorResponse struct {
	ID           uuid.UUID        `json:"id"`
	JobID        uuid.UUID        `json:"job_id"`
	SupplierID   int64            `json:"supplier_id"`
	Barcode      string           `json:"barcode,omitempty"`
	InternalCode string           `json:"internal_code,omitempty"`
	ProductName  string           `json:"product_name,omitempty"`
	Brand        string           `json:"brand,omitempty"`
	RawRow       []string         `json:"raw_row"`
	Kind         domain.ErrorKind `json:"kind"`
	Resolved     bool             `json:"resolved"`
	ResolvedBy   string           `json:"resolved_by,omitempty"`
	ResolvedAt   *time.Time       `json:"resolved_at,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

func toJobResponse(job domain.ImportJob) jobResponse {
	resp := jobResponse{
		ID:         job.ID,
		SupplierID: job.SupplierID,
		State:      job.State,
		FileName:   job.FileName,
		FileSize:   len(job.FileData),
		Encoding:   job.Encoding,
		Separator:  job.Separator,
		HasHeader:  job.HasHeader,
		Mapping:    job.Mapping,
		CreatedAt:  job.CreatedAt,
	}
	if !job.StartedAt.IsZero() {
		t := job.StartedAt
		resp.StartedAt = &t
	}
	if !job.FinishedAt.IsZero() {
		t := job.FinishedAt
		resp.FinishedAt = &t
	}
	return resp
}

func toHistoryResponse(h domain.JobHistory) historyResponse {
	return historyResponse{
		Status:       h.Status,
		Stage:        h.Stage,
		CheckpointAt: h.CheckpointAt,
		Counts: countsResponse{
			TotalRows:   h.Counts.TotalRows,
			Created:     h.Counts.Created,
			Updated:     h.Counts.Updated,
			Skipped:     h.Counts.Skipped,
			SkipReasons: h.Counts.SkipReasons,
			Errors:      h.Counts.Errors,
			Removed:     h.Counts.Removed,
			Archived:    h.Counts.Archived,
			Reactivated: h.Counts.Reactivated,
		},
		Summary:    h.Summary,
		DurationMS: h.Duration.Milliseconds(),
	}
}

func toImportErrorResponse(e domain.ImportError) importErrorResponse {
	resp := importErrorResponse{
		ID:           e.ID,
		JobID:        e.JobID,
		SupplierID:   e.SupplierID,
		Barcode:      e.Barcode,
		InternalCode: e.InternalCode,
		ProductName:  e.ProductName,
		Brand:        e.Brand,
		RawRow:       e.RawRow,
		Kind:         e.Kind,
		Resolved:     e.Resolved,
		ResolvedBy:   e.ResolvedBy,
		CreatedAt:    e.CreatedAt,
	}
	if !e.ResolvedAt.IsZero() {
		t := e.ResolvedAt
		resp.ResolvedAt = &t
	}
	return resp
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// submitPayload is the JSON body of a submission. Multipart
// submissions carry the same fields as form values plus a file part.
type submitPayload struct {
	SupplierID       int64                `json:"supplier_id"`
	FileName         string               `json:"file_name"`
	FileData         string               `json:"file_data"` // base64
	Encoding         string               `json:"encoding"`
	Separator        string               `json:"separator"`
	HasHeader        *bool                `json:"has_header"`
	Mapping          domain.ColumnMapping `json:"mapping"`
	MinStockQty      int                  `json:"min_stock_qty"`
	MinPrice         float64              `json:"min_price"`
	SkipDiscontinued bool                 `json:"skip_discontinued"`
	BrandBlacklist   []int64              `json:"brand_blacklist"`
	EANWhitelist     []string             `json:"ean_whitelist"`
	Sync             bool                 `json:"sync"`
}

// handleSubmitImport accepts a pricelist as multipart/form-data or as
// JSON with base64 file data. With sync=true the import runs before
// the response is written; otherwise the job is queued for the worker.
func (s *Server) handleSubmitImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodySize)

	req, sync, err := s.parseSubmit(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if sync {
		history, err := s.service.ImportNow(r.Context(), req)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, toHistoryResponse(history))
		return
	}

	job, err := s.service.Submit(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, toJobResponse(job))
}

// parseSubmit extracts a submission from either request encoding.
func (s *Server) parseSubmit(r *http.Request) (importer.SubmitRequest, bool, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return s.parseMultipartSubmit(r)
	}

	var p submitPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		return importer.SubmitRequest{}, false, fmt.Errorf("decode request: %w", err)
	}

	data, err := base64.StdEncoding.DecodeString(p.FileData)
	if err != nil {
		return importer.SubmitRequest{}, false, fmt.Errorf("decode file_data: %w", err)
	}

	hasHeader := true
	if p.HasHeader != nil {
		hasHeader = *p.HasHeader
	}

	return importer.SubmitRequest{
		SupplierID:       p.SupplierID,
		FileName:         p.FileName,
		FileData:         data,
		Encoding:         p.Encoding,
		Separator:        p.Separator,
		HasHeader:        hasHeader,
		Mapping:          p.Mapping,
		MinStockQty:      p.MinStockQty,
		MinPrice:         p.MinPrice,
		SkipDiscontinued: p.SkipDiscontinued,
		BrandBlacklist:   p.BrandBlacklist,
		EANWhitelist:     p.EANWhitelist,
	}, p.Sync, nil
}

func (s *Server) parseMultipartSubmit(r *http.Request) (importer.SubmitRequest, bool, error) {
	if err := r.ParseMultipartForm(s.opts.MaxBodySize); err != nil {
		return importer.SubmitRequest{}, false, fmt.Errorf("parse multipart form: %w", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return importer.SubmitRequest{}, false, fmt.Errorf("missing file part: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return importer.SubmitRequest{}, false, fmt.Errorf("read file: %w", err)
	}

	supplierID, err := strconv.ParseInt(r.FormValue("supplier_id"), 10, 64)
	if err != nil {
		return importer.SubmitRequest{}, false, importer.ErrMissingSupplier
	}

	var m domain.ColumnMapping
	if raw := r.FormValue("mapping"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return importer.SubmitRequest{}, false, fmt.Errorf("decode mapping: %w", err)
		}
	}

	req := importer.SubmitRequest{
		SupplierID:       supplierID,
		FileName:         header.Filename,
		FileData:         data,
		Encoding:         r.FormValue("encoding"),
		Separator:        r.FormValue("separator"),
		HasHeader:        formBool(r, "has_header", true),
		Mapping:          m,
		MinStockQty:      formInt(r, "min_stock_qty"),
		MinPrice:         formFloat(r, "min_price"),
		SkipDiscontinued: formBool(r, "skip_discontinued", false),
		BrandBlacklist:   formInt64List(r, "brand_blacklist"),
		EANWhitelist:     formList(r, "ean_whitelist"),
	}
	return req, formBool(r, "sync", false), nil
}

func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	var supplierID int64
	if v := r.URL.Query().Get("supplier_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			respondErrorJSON(w, http.StatusBadRequest, "invalid supplier_id")
			return
		}
		supplierID = id
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	jobs, err := s.service.Jobs(r.Context(), supplierID, limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobResponse(j))
	}
	respondJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		respondErrorJSON(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, history, err := s.service.Job(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	resp := map[string]any{"job": toJobResponse(job)}
	if history.JobID != uuid.Nil {
		resp["history"] = toHistoryResponse(history)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRequeueImport(w http.ResponseWriter, r *http.Request) {
	s.jobAction(w, r, s.service.Requeue, domain.JobQueued)
}

func (s *Server) handleFailImport(w http.ResponseWriter, r *http.Request) {
	s.jobAction(w, r, s.service.ForceFail, domain.JobFailed)
}

func (s *Server) handleCompleteImport(w http.ResponseWriter, r *http.Request) {
	s.jobAction(w, r, s.service.ForceComplete, domain.JobDone)
}

// jobAction runs one operator state action and reports the new state.
func (s *Server) jobAction(w http.ResponseWriter, r *http.Request, action func(context.Context, uuid.UUID) error, state domain.JobState) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		respondErrorJSON(w, http.StatusBadRequest, "invalid job id")
		return
	}

	if err := action(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": id, "state": state})
}

func (s *Server) handleListImportErrors(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		respondErrorJSON(w, http.StatusBadRequest, "invalid job id")
		return
	}

	errs, err := s.service.JobErrors(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	out := make([]importErrorResponse, 0, len(errs))
	for _, e := range errs {
		out = append(out, toImportErrorResponse(e))
	}
	respondJSON(w, http.StatusOK, map[string]any{"errors": out})
}

func (s *Server) handleResolveImportError(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "errorID"))
	if err != nil {
		respondErrorJSON(w, http.StatusBadRequest, "invalid error id")
		return
	}

	var body struct {
		ResolvedBy string `json:"resolved_by"`
	}
	// Body is optional; a bare POST resolves anonymously.
	_ = json.NewDecoder(r.Body).Decode(&body)

	if err := s.service.ResolveError(r.Context(), id, body.ResolvedBy); err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": id, "resolved": true})
}

func (s *Server) handleGetMapping(w http.ResponseWriter, r *http.Request) {
	supplierID, err := strconv.ParseInt(chi.URLParam(r, "supplierID"), 10, 64)
	if err != nil {
		respondErrorJSON(w, http.StatusBadRequest, "invalid supplier id")
		return
	}

	m, ok, err := s.service.MappingTemplate(r.Context(), supplierID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if !ok {
		respondErrorJSON(w, http.StatusNotFound, "no mapping template for supplier")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"supplier_id": supplierID, "mapping": m})
}

func (s *Server) handlePutMapping(w http.ResponseWriter, r *http.Request) {
	supplierID, err := strconv.ParseInt(chi.URLParam(r, "supplierID"), 10, 64)
	if err != nil {
		respondErrorJSON(w, http.StatusBadRequest, "invalid supplier id")
		return
	}

	var body struct {
		Mapping domain.ColumnMapping `json:"mapping"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondErrorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.service.SaveMappingTemplate(r.Context(), supplierID, body.Mapping); err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"supplier_id": supplierID, "mapping": body.Mapping})
}

// handlePreviewMapping reads the header row of an uploaded file and
// returns an auto-detected draft mapping.
func (s *Server) handlePreviewMapping(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodySize)

	if err := r.ParseMultipartForm(s.opts.MaxBodySize); err != nil {
		respondErrorJSON(w, http.StatusBadRequest, "expected multipart form with file part")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		respondErrorJSON(w, http.StatusBadRequest, "missing file part")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	m, err := s.service.PreviewMapping(data, r.FormValue("encoding"), r.FormValue("separator"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"mapping": m})
}

// handleWorkerTick triggers one worker tick, for deployments driven by
// an external scheduler instead of the in-process ticker.
func (s *Server) handleWorkerTick(w http.ResponseWriter, r *http.Request) {
	if err := s.worker.Tick(r.Context()); err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Form value helpers. Missing or malformed values fall back to the
// zero value (or the given default for bools).

func formBool(r *http.Request, key string, def bool) bool {
	v := r.FormValue(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func formInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.FormValue(key))
	return n
}

func formFloat(r *http.Request, key string) float64 {
	f, _ := strconv.ParseFloat(r.FormValue(key), 64)
	return f
}

func formList(r *http.Request, key string) []string {
	raw := r.FormValue(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func formInt64List(r *http.Request, key string) []int64 {
	var out []int64
	for _, p := range formList(r, key) {
		if n, err := strconv.ParseInt(p, 10, 64); err == nil {
			out = append(out, n)
		}
	}
	return out
}
