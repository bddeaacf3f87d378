package enhance

import (
	"errors"
	"fmt"

	"github.com/ironsheep/image-enhance-mcp/internal/api"
)

var (
	// ErrNoSession is returned when an operation needs a selected image.
	ErrNoSession = errors.New("please select an image to enhance first")

	// ErrSaveInFlight is returned when the active session is already saving.
	ErrSaveInFlight = errors.New("a save for this image is already in progress")

	// ErrStaleResponse is returned when a save reply arrives after its session
	// was replaced. The reply has no effect.
	ErrStaleResponse = errors.New("save response belongs to a replaced session")
)

// PersistError reports a failed save. The session's buffers are untouched
// and the save may be retried.
type PersistError struct {
	Target string
	Err    error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("error saving enhanced image: %v", e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Rejection returns the server's refusal message when the endpoint answered
// success=false, and ok=false for transport failures.
func (e *PersistError) Rejection() (message string, ok bool) {
	var rej *api.RejectionError
	if errors.As(e.Err, &rej) {
		return rej.Error(), true
	}
	return "", false
}
