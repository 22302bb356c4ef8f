// Package recognition is the client side of the ticket recognition
// service: the request/response contract and the upload transport.
package recognition

import (
	"net/url"
	"path"
	"strings"

	"github.com/bodul/loto/ticket"
)

// Scan statuses reported by the service.
const (
	StatusOK                = "ok"
	StatusNeedsConfirmation = "needs_confirmation"
	StatusRejected          = "rejected"
)

// LotteryLoto is the lottery_type of a bingo-style Lô Tô ticket.
const LotteryLoto = "LOTO"

// ScanResponse is the service's answer to a scan upload.
//
// AllNumbers is informational: grid layout and win detection only ever
// read Blocks.
type ScanResponse struct {
	ScanID      string         `json:"scan_id,omitempty"`
	LotteryType string         `json:"lottery_type"`
	Blocks      []ticket.Block `json:"blocks,omitempty"`
	AllNumbers  []int          `json:"all_numbers"`
	TicketID    string         `json:"ticket_id,omitempty"`
	Confidence  float64        `json:"confidence"`
	Status      string         `json:"status"`
	Notes       string         `json:"notes,omitempty"`
}

// Rejected reports whether the service understood the upload but could
// not recognize a ticket in it. A rejection wins over any blocks sent.
func (r *ScanResponse) Rejected() bool {
	return r.Status == StatusRejected
}

// Usable reports whether the response carries at least one block.
func (r *ScanResponse) Usable() bool {
	return len(r.Blocks) > 0
}

// Image is the opaque handle the image source hands over: a local path,
// a file:// URI or an http(s) URL.
type Image struct {
	URI string `json:"uri"`

	// Name is the filename sent with the upload. Defaults to the last
	// path element of URI.
	Name string `json:"name,omitempty"`

	// MIMEType of the image. Encoders derive it when empty.
	MIMEType string `json:"mime_type,omitempty"`
}

const defaultFilename = "ticket.jpg"

// Filename returns the upload filename.
func (i Image) Filename() string {
	if i.Name != "" {
		return i.Name
	}
	p := localPath(i.URI)
	if isRemote(i.URI) {
		if u, err := url.Parse(i.URI); err == nil {
			p = u.Path
		}
	}
	name := path.Base(p)
	if name == "" || name == "." || name == "/" {
		return defaultFilename
	}
	return name
}

// mimeFromExtension picks the upload type from the filename: .png is
// sent as PNG, everything else as JPEG.
func mimeFromExtension(filename string) string {
	if strings.EqualFold(path.Ext(filename), ".png") {
		return "image/png"
	}
	return "image/jpeg"
}

func isRemote(uri string) bool {
	return strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://")
}

func localPath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}
