package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"taskora.org/internal/audit"
	"taskora.org/internal/filecheck"
	"taskora.org/internal/obs"
	"taskora.org/internal/sanitize"
)

// attachmentBodyLimit caps how much of an upload is buffered for signature
// and content inspection.
const attachmentBodyLimit = 8 << 20

type parseRequest struct {
	Text        string `json:"text"`
	MaxLength   int    `json:"max_length,omitempty"`
	AllowMarkup bool   `json:"allow_markup,omitempty"`
}

type parseWarning struct {
	Category string `json:"category"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

type parseResponse struct {
	Sanitized string         `json:"sanitized"`
	Wrapped   string         `json:"wrapped"`
	Modified  bool           `json:"modified"`
	Blocked   []string       `json:"blocked_patterns"`
	Warnings  []parseWarning `json:"warnings"`
}

type validateResponse struct {
	Valid            bool   `json:"valid"`
	Reason           string `json:"reason,omitempty"`
	ExtensionMatches bool   `json:"extension_matches"`
}

// handleAIParse runs task text through the sanitization pipeline and returns
// the cleaned text plus its model-ready wrapped form. Forwarding to the model
// happens elsewhere; this endpoint is the boundary.
func (a *API) handleAIParse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req parseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, r, http.StatusBadRequest, "text is required")
		return
	}

	opts := sanitize.DefaultOptions()
	if req.MaxLength > 0 {
		opts.MaxLength = req.MaxLength
	}
	opts.AllowMarkup = req.AllowMarkup

	res := sanitize.Sanitize(req.Text, opts)

	injections := 0
	warnings := make([]parseWarning, 0, len(res.Warnings))
	for _, warn := range res.Warnings {
		if warn.Category == sanitize.CategoryInjectionAttempt {
			injections++
		}
		warnings = append(warnings, parseWarning{
			Category: string(warn.Category),
			Severity: string(warn.Severity),
			Detail:   warn.Detail,
		})
	}
	if injections > 0 {
		obs.CountBlockedInjections(injections)
		_ = audit.LogEvent(r.Context(), "sanitize.injection.filtered", map[string]any{
			"count": injections,
		})
	}

	writeJSON(w, http.StatusOK, parseResponse{
		Sanitized: res.Sanitized,
		Wrapped:   sanitize.WrapResult(res.Sanitized, "task_input"),
		Modified:  res.Modified,
		Blocked:   res.Blocked,
		Warnings:  warnings,
	})
}

// handleAttachmentValidate inspects uploaded content against its declared
// MIME type. Accepts multipart ("file" field plus "mime") or a raw body with
// Content-Type and X-Filename.
func (a *API) handleAttachmentValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	data, declaredMIME, filename, err := readAttachment(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if declaredMIME == "" {
		writeError(w, r, http.StatusBadRequest, "declared mime type is required")
		return
	}

	res := filecheck.Validate(data, declaredMIME)
	extOK := filecheck.ExtensionMatchesMIME(filename, declaredMIME)

	if !res.Valid {
		obs.CountRejectedUpload(res.Reason)
		_ = audit.LogEvent(r.Context(), "attachment.rejected", map[string]any{
			"mime":   declaredMIME,
			"reason": res.Reason,
			"size":   len(data),
		})
		writeJSON(w, http.StatusUnprocessableEntity, validateResponse{
			Valid:            false,
			Reason:           res.Reason,
			ExtensionMatches: extOK,
		})
		return
	}

	writeJSON(w, http.StatusOK, validateResponse{
		Valid:            true,
		ExtensionMatches: extOK,
	})
}

func readAttachment(r *http.Request) (data []byte, declaredMIME, filename string, err error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(attachmentBodyLimit); err != nil {
			return nil, "", "", errors.New("malformed multipart body")
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", "", errors.New("file field is required")
		}
		defer file.Close()
		data, err = readAll(file)
		if err != nil {
			return nil, "", "", err
		}
		declaredMIME = r.FormValue("mime")
		if declaredMIME == "" {
			declaredMIME = header.Header.Get("Content-Type")
		}
		return data, declaredMIME, header.Filename, nil
	}

	data, err = readAll(r.Body)
	if err != nil {
		return nil, "", "", err
	}
	return data, contentType, r.Header.Get("X-Filename"), nil
}

func readAll(src io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(src, attachmentBodyLimit+1))
	if err != nil {
		return nil, errors.New("failed to read attachment body")
	}
	if len(data) > attachmentBodyLimit {
		return nil, errors.New("attachment exceeds inspection limit")
	}
	return data, nil
}

// --- shared JSON plumbing ---

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
