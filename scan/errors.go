package scan

import (
	"errors"

	"github.com/bodul/loto/recognition"
)

var (
	// ErrPermissionDenied is returned by an ImageSource that may not
	// access the camera or photo library.
	ErrPermissionDenied = errors.New("image source permission denied")

	// ErrPickCancelled is returned by an ImageSource when the user backs
	// out without choosing an image.
	ErrPickCancelled = errors.New("image selection cancelled")

	// ErrTransport covers network failures, non-2xx answers and
	// malformed responses. It is the recognition client's sentinel.
	ErrTransport = recognition.ErrTransport

	// ErrTimeout is a transport failure caused by the request deadline.
	// Errors carrying it also match ErrTransport.
	ErrTimeout = errors.New("recognition request timed out")

	// ErrRejected means the service could not find a ticket in the image.
	ErrRejected = errors.New("image not recognized as a ticket")

	// ErrIncomplete marks a successful answer without usable blocks. It
	// is logged but never shown to the player.
	ErrIncomplete = errors.New("recognition result has no blocks")

	ErrNoImage     = errors.New("no image selected")
	ErrNoTicket    = errors.New("no ticket scanned")
	ErrBusy        = errors.New("scan already in progress or ticket on the board")
	ErrNotScanning = errors.New("no scan in progress")
	ErrClosed      = errors.New("scan session closed")
)

// UserMessage returns the text to show the player for err, or "" when
// nothing should be shown.
func UserMessage(err error) string {
	switch {
	case err == nil, errors.Is(err, ErrIncomplete):
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "Allow access to your photos or camera to pick a ticket."
	case errors.Is(err, ErrPickCancelled):
		return ""
	case errors.Is(err, ErrTimeout):
		return "The scan took too long. Check your connection and try again."
	case errors.Is(err, ErrRejected):
		return "That does not look like a Lô Tô ticket. Try a clearer photo."
	case errors.Is(err, ErrTransport):
		var status *recognition.StatusError
		if errors.As(err, &status) && status.Message != "" {
			return "Could not scan the ticket: " + status.Message
		}
		return "Could not scan the ticket. Check your connection and try again."
	case errors.Is(err, ErrNoImage):
		return "Pick a ticket image first."
	case errors.Is(err, ErrNoTicket):
		return "Scan a ticket first."
	case errors.Is(err, ErrBusy):
		return "A scan is already on the board."
	case errors.Is(err, ErrNotScanning):
		return "Nothing is being scanned."
	case errors.Is(err, ErrClosed):
		return "This session has ended."
	default:
		return "Something went wrong: " + err.Error()
	}
}
