package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tendant/newscast/internal/jobs"
	"github.com/tendant/newscast/internal/storage"
	"github.com/tendant/newscast/pkg/schema"
)

const multipartMemory = 8 << 20

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type toolStatus struct {
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
}

type healthResponse struct {
	Status     string                `json:"status"`
	Service    string                `json:"service"`
	QueueDepth int                   `json:"queueDepth"`
	Tools      map[string]toolStatus `json:"tools,omitempty"`
	Time       time.Time             `json:"time"`
}

type formatsResponse struct {
	Formats []schema.VideoFormat `json:"formats"`
}

type generateRequest struct {
	NewsText string   `json:"newsText"`
	Formats  []string `json:"formats"`
}

type generateResponse struct {
	JobID           string       `json:"jobId"`
	Status          string       `json:"status"`
	Stage           schema.Stage `json:"stage"`
	AcceptedFormats []string     `json:"acceptedFormats"`
}

type jobsResponse struct {
	Jobs  []schema.Job `json:"jobs"`
	Count int          `json:"count"`
}

type uploadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
	Size    int64  `json:"size"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, r, status, errorResponse{Error: msg, Code: code})
}

func diagnoseTools(tools map[string]string) map[string]toolStatus {
	if len(tools) == 0 {
		return nil
	}
	out := make(map[string]toolStatus, len(tools))
	for name, bin := range tools {
		path, err := exec.LookPath(bin)
		out[name] = toolStatus{Available: err == nil, Path: path}
	}
	return out
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "طلب غير صالح")
		return
	}

	sub, err := s.svc.Submit(req.NewsText, req.Formats)
	switch {
	case err == nil:
	case errors.Is(err, jobs.ErrValidation):
		writeError(w, r, http.StatusBadRequest, "validation", fmt.Sprintf("يرجى إدخال نص الخبر (%d أحرف على الأقل)", jobs.MinTextLength))
		return
	case errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrShuttingDown):
		writeError(w, r, http.StatusServiceUnavailable, "unavailable", "الخدمة مشغولة، يرجى المحاولة لاحقاً")
		return
	default:
		s.logger.Error("submit failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal", "حدث خطأ في الخادم")
		return
	}

	writeJSON(w, r, http.StatusOK, generateResponse{
		JobID:           sub.JobID,
		Status:          "processing",
		Stage:           sub.Stage,
		AcceptedFormats: sub.Formats,
	})
}

func (s *Server) job(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.Status(chi.URLParam(r, "jobId"))
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "المهمة غير موجودة")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal", "حدث خطأ في الخادم")
		return
	}
	writeJSON(w, r, http.StatusOK, job)
}

func (s *Server) jobs(w http.ResponseWriter, r *http.Request) {
	list := s.svc.List()
	if list == nil {
		list = []schema.Job{}
	}
	writeJSON(w, r, http.StatusOK, jobsResponse{Jobs: list, Count: len(list)})
}

// download serves a finished artifact. Paths are derived from the job id so
// files stay downloadable after the job record is evicted.
func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if _, err := uuid.Parse(jobID); err != nil {
		writeError(w, r, http.StatusNotFound, "not_found", "الملف غير موجود")
		return
	}

	// A job still known to the service only serves artifacts its pipeline
	// has recorded. Evicted jobs fall back to whatever is on disk.
	job, err := s.svc.Status(jobID)
	tracked := err == nil

	var path, name string
	switch chi.URLParam(r, "kind") {
	case "audio", "mp3":
		if !tracked || job.Outputs.RadioPath != "" {
			path = s.artifacts.RadioPath(jobID)
		}
		name = fmt.Sprintf("qudscast_radio_%s.mp3", jobID)
	case "video", "mp4":
		formatID, ok := s.videoFormat(job, tracked, r.URL.Query().Get("format"))
		if _, done := job.Outputs.Videos[formatID]; ok && (!tracked || done) {
			path = s.artifacts.VideoPath(jobID, formatID)
		}
		name = fmt.Sprintf("qudscast_video_%s_%s.mp4", jobID, formatID)
	default:
		writeError(w, r, http.StatusBadRequest, "bad_kind", "نوع غير صالح")
		return
	}
	if path == "" {
		writeError(w, r, http.StatusNotFound, "not_found", "الملف غير موجود")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "not_found", "الملف غير موجود")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() || info.Size() == 0 {
		writeError(w, r, http.StatusNotFound, "not_found", "الملف غير موجود")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, filepath.Base(name), info.ModTime(), f)
}

// videoFormat picks the requested format, else the job's primary video,
// else the catalog default. It reports false for formats outside the
// catalog.
func (s *Server) videoFormat(job schema.Job, tracked bool, requested string) (string, bool) {
	if requested != "" {
		for _, f := range s.svc.Formats() {
			if f.ID == requested {
				return requested, true
			}
		}
		return requested, false
	}
	if tracked {
		for id, v := range job.Outputs.Videos {
			if v.Path != "" && v.Path == job.Outputs.VideoPath {
				return id, true
			}
		}
		if len(job.RequestedFormats) > 0 {
			return job.RequestedFormats[0], true
		}
	}
	return s.svc.DefaultFormat().ID, true
}

func (s *Server) uploadVoice(w http.ResponseWriter, r *http.Request) {
	s.saveUpload(w, r, "voice", storage.AssetVoice, "تم رفع عينة الصوت بنجاح")
}

func (s *Server) uploadJingle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		s.uploadError(w, r, err)
		return
	}
	role := r.FormValue("type")
	if role == "" {
		role = storage.AssetIntroJingle
	}
	if role != storage.AssetIntroJingle && role != storage.AssetOutroJingle {
		writeError(w, r, http.StatusBadRequest, "bad_type", "نوع الموسيقى يجب أن يكون intro أو outro")
		return
	}
	s.saveUpload(w, r, "jingle", role, "تم رفع الموسيقى بنجاح")
}

func (s *Server) saveUpload(w http.ResponseWriter, r *http.Request, field, role, message string) {
	if r.MultipartForm == nil {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			s.uploadError(w, r, err)
			return
		}
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile(field)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "no_file", "لم يتم رفع ملف")
		return
	}
	defer file.Close()

	path, n, err := s.artifacts.SaveAsset(role, file)
	if err != nil {
		if errors.Is(err, storage.ErrEmptyUpload) {
			writeError(w, r, http.StatusBadRequest, "empty_file", "الملف فارغ")
			return
		}
		s.logger.Error("save upload failed", "role", role, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal", "حدث خطأ في الخادم")
		return
	}
	s.logger.Info("asset replaced", "role", role, "path", path, "bytes", n)

	writeJSON(w, r, http.StatusOK, uploadResponse{
		Success: true,
		Message: message,
		Path:    s.artifacts.URL(path),
		Size:    n,
	})
}

func (s *Server) uploadError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, r, http.StatusRequestEntityTooLarge, "too_large", "حجم الملف كبير جداً")
		return
	}
	writeError(w, r, http.StatusBadRequest, "bad_upload", "لم يتم رفع ملف")
}
