package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/relaykit/voicerelay/pkg/extract"
	"github.com/relaykit/voicerelay/pkg/store"
)

// DocumentStore is the slice of the store the documents API needs.
type DocumentStore interface {
	GetAgent(ctx context.Context, id string) (store.Agent, error)
	AddDocument(ctx context.Context, agentID, name, content string) (store.Document, error)
	ListDocuments(ctx context.Context, agentID string) ([]store.Document, error)
	DeleteDocument(ctx context.Context, agentID, documentID string) error
}

// DocumentsHandler serves /v1/agents/{id}/documents: knowledge uploads that
// get folded into the agent's system instruction.
type DocumentsHandler struct {
	Store          DocumentStore
	Logger         *slog.Logger
	MaxUploadBytes int64
}

func (h DocumentsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	if _, err := h.Store.GetAgent(r.Context(), agentID); err != nil {
		h.agentLookupError(w, r, err)
		return
	}

	if h.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	}

	name, data, err := readUpload(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	text, err := extract.FromFile(name, data)
	if errors.Is(err, extract.ErrUnsupported) {
		writeError(w, r, http.StatusUnsupportedMediaType, err.Error())
		return
	}
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "failed to extract document text")
		return
	}
	if text == "" {
		writeError(w, r, http.StatusBadRequest, "document contains no text")
		return
	}

	doc, err := h.Store.AddDocument(r.Context(), agentID, name, text)
	if err != nil {
		h.logError(r, "add document", err)
		writeError(w, r, http.StatusInternalServerError, "failed to store document")
		return
	}
	doc.Content = ""
	writeJSON(w, http.StatusCreated, doc)
}

func (h DocumentsHandler) List(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	if _, err := h.Store.GetAgent(r.Context(), agentID); err != nil {
		h.agentLookupError(w, r, err)
		return
	}
	docs, err := h.Store.ListDocuments(r.Context(), agentID)
	if err != nil {
		h.logError(r, "list documents", err)
		writeError(w, r, http.StatusInternalServerError, "failed to list documents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (h DocumentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.Store.DeleteDocument(r.Context(), r.PathValue("id"), r.PathValue("docID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "Document not found")
		return
	}
	if err != nil {
		h.logError(r, "delete document", err)
		writeError(w, r, http.StatusInternalServerError, "failed to delete document")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// readUpload accepts either a multipart "file" part or a raw body with the
// document name in the "name" query parameter.
func readUpload(r *http.Request) (string, []byte, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", nil, errors.New(`multipart upload requires a "file" part`)
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return "", nil, errors.New("failed to read upload")
		}
		return header.Filename, data, nil
	}

	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		name = "document.txt"
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return "", nil, errors.New("failed to read upload")
	}
	if len(data) == 0 {
		return "", nil, errors.New("empty upload")
	}
	return name, data, nil
}

func (h DocumentsHandler) agentLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "Agent not found")
		return
	}
	h.logError(r, "load agent", err)
	writeError(w, r, http.StatusInternalServerError, "failed to load agent")
}

func (h DocumentsHandler) logError(r *http.Request, msg string, err error) {
	if h.Logger != nil {
		h.Logger.Error(msg, "path", r.URL.Path, "error", err)
	}
}
