package browser

import (
	"context"

	"github.com/BaSui01/canvasflow/types"
)

// Unavailable returns a Driver whose Launch always fails with the given
// reason. It stands in when no automation backend is linked into the
// binary, so agents surface a structured error instead of panicking.
func Unavailable(reason string) Driver {
	return unavailableDriver{reason: reason}
}

type unavailableDriver struct {
	reason string
}

func (d unavailableDriver) Launch(context.Context, Config) (Session, error) {
	return nil, types.NewError(types.ErrBrowser, d.reason)
}
