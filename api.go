package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gamma-omg/pdf-rag/rag"
)

const (
	serviceName      = "RAG PDF Q&A API"
	multipartMemory  = 32 << 20
	multipartReserve = 1 << 20
)

type ragService interface {
	Upload(ctx context.Context, data []byte, filename string) (rag.UploadResult, error)
	Ask(ctx context.Context, question string) (rag.AskResult, error)
	Clear()
	Status() rag.Status
}

type API struct {
	log       *slog.Logger
	svc       ragService
	maxUpload int64
}

func NewAPI(svc ragService, maxUpload int64, log *slog.Logger) *API {
	return &API{log: log, svc: svc, maxUpload: maxUpload}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", a.handleRoot)
	mux.HandleFunc("GET /api", a.handleHealth)
	mux.HandleFunc("POST /api/upload", a.handleUpload)
	mux.HandleFunc("POST /api/ask", a.handleAsk)
	mux.HandleFunc("POST /api/clear", a.handleClear)

	return withCORS(mux)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type healthResponse struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	PdfLoaded   bool   `json:"pdf_loaded"`
	ChunksCount int    `json:"chunks_count"`
	Document    string `json:"document"`
}

type uploadResponse struct {
	Filename string `json:"filename"`
	Pages    int    `json:"pages"`
	Chunks   int    `json:"chunks"`
	Message  string `json:"message"`
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Answer     string `json:"answer"`
	ChunksUsed int    `json:"chunks_used"`
	Document   string `json:"document"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (a *API) handleRoot(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, messageResponse{Message: serviceName + " is running."})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := a.svc.Status()
	a.writeJSON(w, http.StatusOK, healthResponse{
		Status:      "healthy",
		Service:     serviceName,
		PdfLoaded:   st.Loaded,
		ChunksCount: st.ChunkCount,
		Document:    st.Document,
	})
}

func (a *API) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUpload+multipartReserve)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.writeError(w, http.StatusRequestEntityTooLarge, a.tooLargeMessage())
			return
		}
		a.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid upload: %s", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	if header.Size > a.maxUpload {
		a.writeError(w, http.StatusRequestEntityTooLarge, a.tooLargeMessage())
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read upload: %s", err))
		return
	}

	res, err := a.svc.Upload(r.Context(), data, header.Filename)
	if err != nil {
		a.writeServiceError(w, "upload", err)
		return
	}

	a.writeJSON(w, http.StatusOK, uploadResponse{
		Filename: res.Filename,
		Pages:    res.PageCount,
		Chunks:   res.ChunkCount,
		Message:  "PDF uploaded successfully!",
	})
}

func (a *API) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := a.svc.Ask(r.Context(), req.Question)
	if err != nil {
		a.writeServiceError(w, "ask", err)
		return
	}

	a.writeJSON(w, http.StatusOK, askResponse{
		Answer:     res.Answer,
		ChunksUsed: res.ChunksUsed,
		Document:   res.Document,
	})
}

func (a *API) handleClear(w http.ResponseWriter, r *http.Request) {
	a.svc.Clear()
	a.writeJSON(w, http.StatusOK, messageResponse{Message: "Cleared"})
}

func (a *API) tooLargeMessage() string {
	return fmt.Sprintf("file exceeds the %d MB upload limit", a.maxUpload>>20)
}

func statusFor(err error) int {
	switch rag.KindOf(err) {
	case rag.KindInvalidInput, rag.KindPipelineFailure, rag.KindStateError:
		return http.StatusBadRequest
	case rag.KindUpstreamFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeServiceError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.log.Error(op+" failed", "kind", rag.KindOf(err).String(), "error", err)
	} else {
		a.log.Warn(op+" rejected", "kind", rag.KindOf(err).String(), "error", err)
	}

	a.writeError(w, status, err.Error())
}

func (a *API) writeError(w http.ResponseWriter, status int, detail string) {
	a.writeJSON(w, status, errorResponse{Detail: detail})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.log.Warn("failed to write response", "error", err)
	}
}

// serveHTTP runs srv until ctx is canceled, then shuts it down gracefully.
func serveHTTP(ctx context.Context, srv *http.Server, log *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down %s: %w", srv.Addr, err)
	}

	return nil
}
