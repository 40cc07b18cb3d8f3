package runner

import (
	"fmt"

	"github.com/ragocore/ragocore/pkg/core"
)

func errModelNotInstalled(model string) error {
	return fmt.Errorf("%w: %s", core.ErrModelNotSupported, model)
}
