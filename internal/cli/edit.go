package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaiso/rcctl/internal/edit"
)

// NewParamCmd создаёт группу команд для правки параметров в локальном файле.
func NewParamCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "param",
		Short: "Edit parameters in the local template file",
	}

	cmd.AddCommand(newParamRenameCmd(deps))

	return cmd
}

func newParamRenameCmd(deps *Deps) *cobra.Command {
	var oldName string
	var newName string

	cmd := &cobra.Command{
		Use:   "rename",
		Short: "Rename a parameter",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if oldName == "" || newName == "" {
				return Usagef("--old and --new are required")
			}

			store := deps.Store()
			out := deps.Output()

			doc, err := store.Read()
			if err != nil {
				return err
			}
			if err := edit.RenameParameter(doc, oldName, newName); err != nil {
				return err
			}
			if err := store.Write(doc); err != nil {
				return err
			}

			out.Result(
				[]string{fmt.Sprintf("Parameter %s renamed to %s in %s", oldName, newName, store.Path())},
				map[string]string{"file": store.Path(), "old": oldName, "new": newName},
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&oldName, "old", "", "Existing parameter name")
	cmd.Flags().StringVar(&newName, "new", "", "New parameter name")

	return cmd
}

// NewConditionCmd создаёт группу команд для правки условий в локальном файле.
func NewConditionCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "condition",
		Short: "Edit conditions in the local template file",
	}

	cmd.AddCommand(newConditionSetCmd(deps))

	return cmd
}

func newConditionSetCmd(deps *Deps) *cobra.Command {
	var raw string

	cmd := &cobra.Command{
		Use:     "set",
		Short:   "Create or replace a condition",
		Example: `  rcctl condition set --condition '{"name":"ios","expression":"device.os == \"ios\"","tagColor":"BLUE"}'`,
		Args:    noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if raw == "" {
				return Usagef("--condition is required")
			}

			cond, err := edit.ParseCondition(raw)
			if err != nil {
				return err
			}

			store := deps.Store()
			out := deps.Output()

			doc, err := store.Read()
			if err != nil {
				return err
			}

			result := edit.SetCondition(doc, cond)
			name := cond["name"].(string)

			var msg string
			switch result {
			case edit.ConditionUnchanged:
				msg = "No need to update"
			case edit.ConditionUpdated:
				msg = fmt.Sprintf("Condition %s updated in %s", name, store.Path())
			case edit.ConditionCreated:
				msg = fmt.Sprintf("Condition %s created in %s", name, store.Path())
			}

			if result != edit.ConditionUnchanged {
				if err := store.Write(doc); err != nil {
					return err
				}
			}

			out.Result(
				[]string{msg},
				map[string]string{"file": store.Path(), "name": name, "result": string(result)},
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&raw, "condition", "", "Condition as a JSON object with name, expression and tagColor")

	return cmd
}
