package advice

import (
	"fmt"

	"github.com/okian/riskgate/internal/domain/model"
)

// ErrRuleCompile wraps model.ErrConfig for rules that fail to compile.
var ErrRuleCompile = fmt.Errorf("%w: recommendation rule", model.ErrConfig)
