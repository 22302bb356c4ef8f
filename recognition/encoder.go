package recognition

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// FormField is the multipart field the service reads the image from.
const FormField = "image"

// Encoder turns an Image into a multipart upload body. The returned
// body must be closed by the caller.
type Encoder interface {
	Encode(ctx context.Context, img Image) (body io.ReadCloser, contentType string, err error)
}

// Encoder kinds accepted by NewEncoder.
const (
	EncoderStream = "stream"
	EncoderBlob   = "blob"
)

// NewEncoder returns the encoder for kind. client is used by the blob
// encoder to fetch remote images; nil means http.DefaultClient.
func NewEncoder(kind string, client *http.Client) (Encoder, error) {
	switch strings.ToLower(kind) {
	case "", EncoderStream:
		return StreamEncoder{}, nil
	case EncoderBlob:
		return &BlobEncoder{client: client}, nil
	default:
		return nil, fmt.Errorf("unknown upload encoder %q (want %s or %s)", kind, EncoderStream, EncoderBlob)
	}
}

// StreamEncoder streams a local file into the request body without
// reading it into memory. The MIME type comes from the file extension.
type StreamEncoder struct{}

func (StreamEncoder) Encode(ctx context.Context, img Image) (io.ReadCloser, string, error) {
	if isRemote(img.URI) {
		return nil, "", fmt.Errorf("stream upload needs a local file, got %s", img.URI)
	}
	file, err := os.Open(localPath(img.URI))
	if err != nil {
		return nil, "", fmt.Errorf("open image: %w", err)
	}

	filename := img.Filename()
	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = mimeFromExtension(filename)
	}

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		defer file.Close()
		part, err := writer.CreatePart(partHeader(filename, mimeType))
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if err == nil {
			err = writer.Close()
		}
		pw.CloseWithError(err)
	}()

	return pr, writer.FormDataContentType(), nil
}

// BlobEncoder reads the whole image first (from disk or over HTTP),
// sniffs its type from the content and sends a buffered body.
type BlobEncoder struct {
	client *http.Client
}

func (e *BlobEncoder) Encode(ctx context.Context, img Image) (io.ReadCloser, string, error) {
	data, err := e.fetch(ctx, img.URI)
	if err != nil {
		return nil, "", err
	}

	filename := img.Filename()
	mimeType := img.MIMEType
	if mimeType == "" {
		detected := mimetype.Detect(data)
		mimeType = detected.String()
		if path.Ext(filename) == "" {
			filename += detected.Extension()
		}
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreatePart(partHeader(filename, mimeType))
	if err != nil {
		return nil, "", fmt.Errorf("create form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("write form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}

	return io.NopCloser(body), writer.FormDataContentType(), nil
}

func (e *BlobEncoder) fetch(ctx context.Context, uri string) ([]byte, error) {
	if !isRemote(uri) {
		data, err := os.ReadFile(localPath(uri))
		if err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
		return data, nil
	}

	client := e.client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("create image request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	return data, nil
}

func partHeader(filename, mimeType string) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FormField, filename))
	h.Set("Content-Type", mimeType)
	return h
}
