package cli

import (
	"fmt"
	"os"

	"github.com/pairlink/core/errors"
)

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
	}
}

// Handle provides user-friendly error messages based on error type
func (h *ErrorHandler) Handle(err error) error {
	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		fmt.Fprintf(os.Stderr, "❌ Configuration not found. Create %s or pass --config.\n", "pairlink.yml")
		return err

	case errors.ErrCodeCapacityExceeded:
		fmt.Fprintf(os.Stderr, "❌ Too many sessions are being established right now. Try again shortly.\n")
		return err

	case errors.ErrCodeProtected:
		fmt.Fprintf(os.Stderr, "❌ This session is completed and protected. Re-run with --force to remove it anyway.\n")
		return err

	case errors.ErrCodeNotFound:
		fmt.Fprintf(os.Stderr, "❌ No such session. Run 'pairlink sessions list' to see known sessions.\n")
		return err

	case errors.ErrCodeTimeout:
		fmt.Fprintf(os.Stderr, "❌ The link attempt timed out before the code was used. Start a new one.\n")
		return err

	case errors.ErrCodeChallengeExpired:
		fmt.Fprintf(os.Stderr, "❌ The QR code expired before it was scanned. Start a new link attempt.\n")
		return err

	case errors.ErrCodeAuthRejected:
		fmt.Fprintf(os.Stderr, "❌ The server rejected this session's credentials. Its data was removed; link again.\n")
		return err

	default:
		fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)

		if h.Verbose {
			if linkErr, ok := err.(*errors.LinkError); ok {
				fmt.Fprintf(os.Stderr, "\nError details:\n%s\n", linkErr.ToJSON())
			}
		}
		return err
	}
}
