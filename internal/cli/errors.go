package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaiso/rcctl/internal/auth"
	"github.com/shaiso/rcctl/internal/config"
	"github.com/shaiso/rcctl/internal/domain"
	"github.com/shaiso/rcctl/internal/edit"
	"github.com/shaiso/rcctl/internal/remoteconfig"
	"github.com/shaiso/rcctl/internal/templatefile"
)

// ErrUsage — неверные аргументы или флаги команды.
var ErrUsage = errors.New("usage error")

// Коды выхода.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitUsage    = 2
	ExitConflict = 3
	ExitNotFound = 4
	ExitAuth     = 5
)

// Usagef создаёт ошибку использования.
func Usagef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}

// ExitCode возвращает код выхода для ошибки команды.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, remoteconfig.ErrConflict):
		return ExitConflict
	case errors.Is(err, remoteconfig.ErrNotFound),
		errors.Is(err, templatefile.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, remoteconfig.ErrUnauthenticated),
		errors.Is(err, remoteconfig.ErrPermissionDenied),
		errors.Is(err, auth.ErrAuthentication):
		return ExitAuth
	case errors.Is(err, ErrUsage),
		errors.Is(err, ErrNotInteractive),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, remoteconfig.ErrInvalidArgument),
		errors.Is(err, domain.ErrInvalidDocument),
		errors.Is(err, edit.ErrInvalidCondition),
		errors.Is(err, edit.ErrParameterNotFound),
		errors.Is(err, edit.ErrParameterExists):
		return ExitUsage
	default:
		return ExitFailure
	}
}

// FlagErrorFunc помечает ошибки разбора флагов как ошибки использования.
func FlagErrorFunc(_ *cobra.Command, err error) error {
	return fmt.Errorf("%w: %w", ErrUsage, err)
}
