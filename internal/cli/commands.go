package cli

import "github.com/spf13/cobra"

// Commands возвращает все команды rcctl.
func Commands(deps *Deps) []*cobra.Command {
	return []*cobra.Command{
		NewGetCmd(deps),
		NewPublishCmd(deps),
		NewVersionsCmd(deps),
		NewRollbackCmd(deps),
		NewParamCmd(deps),
		NewConditionCmd(deps),
	}
}
