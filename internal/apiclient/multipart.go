package apiclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strings"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// encodeMultipart writes one form field per top-level key of body and one
// binary part per file. A file replaces a body field with the same name.
func encodeMultipart(body any, files map[string]File) (*bytes.Buffer, string, error) {
	fields, err := formFields(body)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, k := range sortedKeys(fields) {
		if _, ok := files[k]; ok {
			continue
		}
		if err := w.WriteField(k, fields[k]); err != nil {
			return nil, "", fmt.Errorf("apiclient: write field %s: %w", k, err)
		}
	}

	for _, name := range sortedKeys(files) {
		f := files[name]
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(name), quoteEscaper.Replace(f.Name)))
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("apiclient: create file part %s: %w", name, err)
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, "", fmt.Errorf("apiclient: write file %s: %w", name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("apiclient: close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// formFields flattens a JSON-serializable object into string form values:
// strings as-is, nulls dropped, everything else as its JSON text.
func formFields(body any) (map[string]string, error) {
	if body == nil {
		return nil, nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("apiclient: encode body: %w", err)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, errors.New("apiclient: multipart body must be a JSON object")
	}

	out := make(map[string]string, len(obj))
	for k, v := range obj {
		trimmed := bytes.TrimSpace(v)
		switch {
		case len(trimmed) == 0 || string(trimmed) == "null":
			continue
		case trimmed[0] == '"':
			var s string
			if err := json.Unmarshal(trimmed, &s); err != nil {
				return nil, fmt.Errorf("apiclient: decode field %s: %w", k, err)
			}
			out[k] = s
		default:
			out[k] = string(trimmed)
		}
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
