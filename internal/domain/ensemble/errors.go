package ensemble

import "github.com/okian/riskgate/internal/domain/model"

// Error kinds raised by this package. They alias the shared model kinds so
// errors.Is matches whichever name the caller imports.
var (
	ErrDataInsufficient = model.ErrDataInsufficient
	ErrInvalidInput     = model.ErrInvalidInput
	ErrInvalidScore     = model.ErrInvalidScore
	ErrConfig           = model.ErrConfig
)
