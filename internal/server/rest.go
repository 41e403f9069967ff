package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/MrWong99/voxwidget/internal/notify"
	"github.com/MrWong99/voxwidget/internal/observe"
	"github.com/MrWong99/voxwidget/internal/protocol"
	"github.com/MrWong99/voxwidget/pkg/audio"
)

// ── /api/chat ───────────────────────────────────────────────────────────────

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req protocol.ChatRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "Message is required")
		return
	}

	history := protocol.MessagesFromHistory(req.ConversationHistory)
	reply, err := s.gw.Complete(r.Context(), req.Message, history, req.Language)
	if err != nil {
		observe.Logger(r.Context()).Error("server: chat failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to get response")
		return
	}
	writeJSON(w, http.StatusOK, protocol.ChatResponse{Reply: reply.Text, DetectedLanguage: reply.Language})
}

// ── /api/transcribe ─────────────────────────────────────────────────────────

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.maxUpload {
		writeError(w, http.StatusRequestEntityTooLarge, "Audio file is too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Audio file is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Audio file is required")
		return
	}
	file, hdr, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Audio file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		writeError(w, http.StatusBadRequest, "Audio file is required")
		return
	}
	blob := audio.Blob{Data: data, MIMEType: hdr.Header.Get("Content-Type")}

	tr, err := s.gw.Transcribe(r.Context(), blob)
	if err != nil {
		observe.Logger(r.Context()).Error("server: transcription failed", "err", err, "bytes", len(data))
		writeError(w, http.StatusInternalServerError, "Failed to transcribe audio")
		return
	}
	writeJSON(w, http.StatusOK, protocol.TranscribeResponse{Text: tr.Text, Language: tr.Language})
}

// ── /api/tts ────────────────────────────────────────────────────────────────

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req protocol.TTSRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "Text is required")
		return
	}

	clip, err := s.gw.Synthesize(r.Context(), req.Text)
	if err != nil {
		observe.Logger(r.Context()).Error("server: synthesis failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to synthesize speech")
		return
	}
	ct := clip.ContentType
	if ct == "" {
		ct = "audio/mpeg"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(clip.Data)
}

// ── /api/send-email ─────────────────────────────────────────────────────────

func (s *Server) handleSendEmail(w http.ResponseWriter, r *http.Request) {
	var req protocol.SendEmailRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	err := notify.ErrNotConfigured
	if s.notifier != nil {
		err = s.notifier.Notify(r.Context(), notify.Contact{Email: req.Email, Phone: req.Phone}, req.Conversation)
	}
	if err != nil {
		observe.Logger(r.Context()).Error("server: send notification failed", "err", err)
		s.metrics.RecordNotification(r.Context(), "failed")
		writeError(w, http.StatusInternalServerError, "Failed to send record")
		return
	}
	s.metrics.RecordNotification(r.Context(), "sent")
	writeJSON(w, http.StatusOK, protocol.SendEmailResponse{Success: true, Message: "Record sent successfully"})
}

// ── Helpers ─────────────────────────────────────────────────────────────────

// decodeBody reads a size-limited JSON body into v. On failure it writes a
// 400 and returns false.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxUpload))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "Request body is too large")
		return false
	}
	if err := protocol.Decode(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, protocol.ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := protocol.Encode(v)
	if err != nil {
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
