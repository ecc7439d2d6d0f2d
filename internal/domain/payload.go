package domain

import "strings"

// Attachment is an uploaded file.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the attachment length in bytes.
func (a *Attachment) Size() int {
	if a == nil {
		return 0
	}
	return len(a.Data)
}

// PayloadKind discriminates the three valid payload shapes.
type PayloadKind int

const (
	PayloadText PayloadKind = iota + 1
	PayloadFile
	PayloadFileWithCaption
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadText:
		return "text"
	case PayloadFile:
		return "file"
	case PayloadFileWithCaption:
		return "file_with_caption"
	default:
		return "invalid"
	}
}

// Payload is what gets relayed to each recipient: text only, a file only, or
// a file with a caption. The zero value is not a valid payload; build one
// with NewPayload.
type Payload struct {
	kind    PayloadKind
	file    *Attachment
	caption string
}

// NewPayload validates and normalises a submission. An empty file counts as
// no file and the caption is trimmed; if nothing remains EmptyPayload is
// returned.
func NewPayload(file *Attachment, caption string) (Payload, error) {
	caption = strings.TrimSpace(caption)
	hasFile := file != nil && file.Size() > 0

	switch {
	case hasFile && caption != "":
		return Payload{kind: PayloadFileWithCaption, file: file, caption: caption}, nil
	case hasFile:
		return Payload{kind: PayloadFile, file: file}, nil
	case caption != "":
		return Payload{kind: PayloadText, caption: caption}, nil
	default:
		return Payload{}, EmptyPayload()
	}
}

// Kind reports the payload shape.
func (p Payload) Kind() PayloadKind { return p.kind }

// Valid reports whether p was produced by NewPayload.
func (p Payload) Valid() bool { return p.kind != 0 }

// HasFile reports whether a file is attached.
func (p Payload) HasFile() bool { return p.file != nil }

// File returns the attachment, or nil.
func (p Payload) File() *Attachment { return p.file }

// Caption returns the trimmed text, or "".
func (p Payload) Caption() string { return p.caption }
