package tracer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"
)

// FilePart is a file attached to a multipart request.
type FilePart struct {
	FileName    string
	ContentType string
	Data        []byte
}

type formPart struct {
	field string
	file  *FilePart
	value string
}

// MultipartForm is an ordered multipart body. Parts are written in the order
// they were added; some upstreams depend on that order.
type MultipartForm struct {
	parts []formPart
}

// NewMultipartForm returns an empty form.
func NewMultipartForm() *MultipartForm {
	return &MultipartForm{}
}

// AddFile appends a file part.
func (f *MultipartForm) AddFile(field string, file FilePart) *MultipartForm {
	f.parts = append(f.parts, formPart{field: field, file: &file})
	return f
}

// AddField appends a plain text part.
func (f *MultipartForm) AddField(field, value string) *MultipartForm {
	f.parts = append(f.parts, formPart{field: field, value: value})
	return f
}

// Fields returns the part names in write order.
func (f *MultipartForm) Fields() []string {
	names := make([]string, len(f.parts))
	for i, p := range f.parts {
		names[i] = p.field
	}
	return names
}

// Encode writes the form and returns the body with its Content-Type.
func (f *MultipartForm) Encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, p := range f.parts {
		if p.file == nil {
			if err := w.WriteField(p.field, p.value); err != nil {
				return nil, "", fmt.Errorf("write field %s: %w", p.field, err)
			}
			continue
		}

		contentType := p.file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(p.field), escapeQuotes(p.file.FileName)))
		h.Set("Content-Type", contentType)

		pw, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create part %s: %w", p.field, err)
		}
		if _, err := pw.Write(p.file.Data); err != nil {
			return nil, "", fmt.Errorf("write part %s: %w", p.field, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// describe summarizes the form for the trace: files by name, size and media
// type, text parts decoded as JSON when they are JSON.
func (f *MultipartForm) describe() Body {
	out := make(map[string]any, len(f.parts))
	for _, p := range f.parts {
		if p.file != nil {
			out[p.field] = map[string]any{
				"type":     "File",
				"name":     p.file.FileName,
				"size":     len(p.file.Data),
				"mimeType": p.file.ContentType,
			}
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(p.value), &v); err == nil {
			out[p.field] = v
		} else {
			out[p.field] = p.value
		}
	}
	return Structured(out)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
