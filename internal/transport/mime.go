package transport

import (
	"io"
	"mime"
	"strings"

	"github.com/emersion/go-message"
)

// ParseEntity walks a decoded MIME tree, filling the message's body text,
// html and attachments. Inline parts with a filename count as attachments.
func ParseEntity(entity *message.Entity, raw *RawMessage) {
	mediaType, params, _ := entity.Header.ContentType()

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := entity.MultipartReader()
		for {
			part, err := mr.NextPart()
			if err != nil {
				break
			}
			ParseEntity(part, raw)
		}
	} else if mediaType == "text/plain" && raw.Text == "" {
		body, _ := io.ReadAll(entity.Body)
		raw.Text = string(body)
	} else if mediaType == "text/html" && raw.HTML == "" {
		body, _ := io.ReadAll(entity.Body)
		raw.HTML = string(body)
	} else {
		disposition := entity.Header.Get("Content-Disposition")
		isAttachment := false
		var filename string

		if disposition != "" {
			dispType, dispParams, err := mime.ParseMediaType(disposition)
			if err == nil {
				if dispType == "attachment" || (dispType == "inline" && dispParams["filename"] != "") {
					isAttachment = true
					filename = dispParams["filename"]
				}
			}
		}

		if params["name"] != "" {
			isAttachment = true
			if filename == "" {
				filename = params["name"]
			}
		}

		if filename != "" {
			dec := new(mime.WordDecoder)
			if decoded, err := dec.DecodeHeader(filename); err == nil {
				filename = decoded
			}
		}

		if !isAttachment && !strings.HasPrefix(mediaType, "text/") && mediaType != "" {
			isAttachment = true
		}

		if isAttachment {
			content, _ := io.ReadAll(entity.Body)
			if len(content) > 0 {
				if filename == "" {
					ext := ".bin"
					if strings.HasPrefix(mediaType, "image/") {
						ext = "." + strings.TrimPrefix(mediaType, "image/")
					} else if mediaType == "application/pdf" {
						ext = ".pdf"
					}
					filename = "attachment" + ext
				}
				raw.Attachments = append(raw.Attachments, RawAttachment{
					Name:        filename,
					ContentType: mediaType,
					Content:     content,
				})
			}
		}
	}
}

// DecodeHeader decodes MIME encoded-words (=?UTF-8?B?...?=) in a header
// value, returning the input unchanged when decoding fails.
func DecodeHeader(s string) string {
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

// ExtractEmail pulls the bare address out of a "Name <email@domain>" form.
func ExtractEmail(s string) string {
	if start := strings.Index(s, "<"); start != -1 {
		if end := strings.Index(s, ">"); end != -1 {
			return strings.TrimSpace(s[start+1 : end])
		}
	}
	return strings.TrimSpace(s)
}
