package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/rcctl/internal/domain"
	"github.com/shaiso/rcctl/internal/mq"
	"github.com/shaiso/rcctl/internal/remoteconfig"
	"github.com/shaiso/rcctl/internal/telemetry"
)

// templateResult — JSON-вывод команд get, publish и rollback.
type templateResult struct {
	File           string `json:"file,omitempty"`
	ETag           string `json:"etag"`
	VersionNumber  int64  `json:"version_number,omitempty"`
	RollbackSource int64  `json:"rollback_source,omitempty"`
	ValidateOnly   bool   `json:"validate_only,omitempty"`
}

// NewGetCmd создаёт команду get: скачать активный шаблон в локальный файл.
func NewGetCmd(deps *Deps) *cobra.Command {
	var version int64

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Download the active template into the local file",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("version") && version <= 0 {
				return Usagef("--version must be a positive integer, got %d", version)
			}

			client, err := deps.Client()
			if err != nil {
				return err
			}
			store := deps.Store()
			out := deps.Output()

			var tmpl *domain.Template
			if version > 0 {
				tmpl, err = client.GetVersion(cmd.Context(), version)
			} else {
				tmpl, err = client.Get(cmd.Context())
			}
			if err != nil {
				return err
			}

			if err := store.Write(tmpl.Document); err != nil {
				return err
			}

			telemetry.FromContext(cmd.Context()).Info("template saved",
				"file", store.Path(),
				"version", tmpl.VersionNumber(),
			)

			out.Result(
				[]string{
					fmt.Sprintf("Retrieved template has been written to %s", store.Path()),
					fmt.Sprintf("ETag from server: %s", tmpl.ETag),
				},
				templateResult{File: store.Path(), ETag: tmpl.ETag, VersionNumber: tmpl.VersionNumber()},
			)
			return nil
		},
	}

	cmd.Flags().Int64Var(&version, "version", 0, "Fetch a historical version instead of the active one")

	return cmd
}

// NewPublishCmd создаёт команду publish: опубликовать локальный файл.
func NewPublishCmd(deps *Deps) *cobra.Command {
	var etag string
	var force bool
	var yes bool
	var validateOnly bool

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish the local template file",
		Long: `Publish the local template file as the new active template.

The ETag printed by 'rcctl get' must be passed with --etag. If the template
changed on the server since then, the publish is rejected and nothing is
modified. --force overwrites the server template unconditionally.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case etag != "" && force:
				return Usagef("--etag and --force are mutually exclusive")
			case etag == "" && !force:
				return Usagef("either --etag or --force is required")
			case etag == domain.WildcardETag:
				return Usagef("use --force instead of --etag '*'")
			}

			if force {
				if !yes && !validateOnly {
					ok, err := deps.Confirm("Overwrite the remote template regardless of concurrent changes?")
					if err != nil {
						return err
					}
					if !ok {
						return ErrAborted
					}
				}
				etag = domain.WildcardETag
			}

			client, err := deps.Client()
			if err != nil {
				return err
			}
			store := deps.Store()
			out := deps.Output()

			doc, err := store.Read()
			if err != nil {
				return err
			}

			tmpl, err := client.Publish(cmd.Context(), doc, etag, remoteconfig.PublishOptions{ValidateOnly: validateOnly})
			if err != nil {
				if errors.Is(err, remoteconfig.ErrConflict) {
					return fmt.Errorf("%w; re-fetch with 'rcctl get' and retry", err)
				}
				return err
			}

			if validateOnly {
				out.Result(
					[]string{"Template is valid."},
					templateResult{ETag: tmpl.ETag, ValidateOnly: true},
				)
				return nil
			}

			out.Result(
				[]string{
					"Template has been published.",
					fmt.Sprintf("ETag from server: %s", tmpl.ETag),
				},
				templateResult{ETag: tmpl.ETag, VersionNumber: tmpl.VersionNumber()},
			)

			notify(cmd.Context(), deps, func(ctx context.Context, n Notifier, payload mq.TemplateEventPayload) error {
				return n.TemplatePublished(ctx, payload)
			}, mq.TemplateEventPayload{
				ProjectID:     client.ProjectID(),
				ETag:          tmpl.ETag,
				VersionNumber: tmpl.VersionNumber(),
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&etag, "etag", "", "ETag from the last 'rcctl get'")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite the remote template unconditionally")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation with --force")
	cmd.Flags().BoolVar(&validateOnly, "validate-only", false, "Validate on the server without publishing")

	return cmd
}

// NewRollbackCmd создаёт команду rollback: активировать прошлую версию.
func NewRollbackCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback VERSION",
		Short: "Roll back to a previous template version",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return Usagef("rollback requires exactly one VERSION argument")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseVersion(args[0])
			if err != nil {
				return err
			}

			client, err := deps.Client()
			if err != nil {
				return err
			}
			out := deps.Output()

			tmpl, err := client.Rollback(cmd.Context(), version)
			if err != nil {
				return err
			}

			out.Result(
				[]string{
					fmt.Sprintf("Rolled back to version: %d", version),
					fmt.Sprintf("ETag from server: %s", tmpl.ETag),
				},
				templateResult{ETag: tmpl.ETag, VersionNumber: tmpl.VersionNumber(), RollbackSource: version},
			)

			notify(cmd.Context(), deps, func(ctx context.Context, n Notifier, payload mq.TemplateEventPayload) error {
				return n.TemplateRolledBack(ctx, payload)
			}, mq.TemplateEventPayload{
				ProjectID:      client.ProjectID(),
				ETag:           tmpl.ETag,
				VersionNumber:  tmpl.VersionNumber(),
				RollbackSource: version,
			})
			return nil
		},
	}

	return cmd
}

// notify отправляет событие, если уведомления включены.
// Ошибка только логируется: шаблон на сервере уже изменён.
func notify(ctx context.Context, deps *Deps, send func(context.Context, Notifier, mq.TemplateEventPayload) error, payload mq.TemplateEventPayload) {
	n := deps.notifier()
	if n == nil {
		return
	}

	payload.InvocationID = deps.invocationID()
	if err := send(ctx, n, payload); err != nil {
		telemetry.FromContext(ctx).Warn("failed to send change notification",
			"project_id", payload.ProjectID,
			"error", err,
		)
	}
}

func parseVersion(s string) (int64, error) {
	version, err := strconv.ParseInt(s, 10, 64)
	if err != nil || version <= 0 {
		return 0, Usagef("VERSION must be a positive integer, got %q", s)
	}
	return version, nil
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return Usagef("%s takes no arguments, got %q", cmd.CommandPath(), args)
	}
	return nil
}
