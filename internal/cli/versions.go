package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/rcctl/internal/domain"
	"github.com/shaiso/rcctl/internal/remoteconfig"
)

// NewVersionsCmd создаёт команду versions: история версий шаблона.
func NewVersionsCmd(deps *Deps) *cobra.Command {
	var limit int
	var pageToken string
	var endVersion int64
	var startTime string
	var endTime string

	cmd := &cobra.Command{
		Use:   "versions",
		Short: "List recent template versions, newest first",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 || limit > remoteconfig.MaxPageSize {
				return Usagef("--limit must be between 1 and %d, got %d", remoteconfig.MaxPageSize, limit)
			}
			if endVersion < 0 {
				return Usagef("--end-version must be a positive version number, got %d", endVersion)
			}

			opts := remoteconfig.ListOptions{
				PageSize:         limit,
				PageToken:        pageToken,
				EndVersionNumber: endVersion,
			}

			var err error
			if opts.StartTime, err = parseTimeFlag("start-time", startTime); err != nil {
				return err
			}
			if opts.EndTime, err = parseTimeFlag("end-time", endTime); err != nil {
				return err
			}

			client, err := deps.Client()
			if err != nil {
				return err
			}
			out := deps.Output()

			list, err := client.ListVersions(cmd.Context(), opts)
			if err != nil {
				return err
			}

			headers := []string{"VERSION", "UPDATED", "TYPE", "ORIGIN", "USER", "DESCRIPTION"}
			rows := make([][]string, len(list.Versions))
			for i, v := range list.Versions {
				rows[i] = versionRow(v)
			}

			out.Print(headers, rows, list)
			if list.NextPageToken != "" && !out.JSONMode() {
				out.Success(fmt.Sprintf("Next page token: %s", list.NextPageToken))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", remoteconfig.DefaultPageSize, "Maximum number of versions")
	cmd.Flags().StringVar(&pageToken, "page-token", "", "Page token from a previous listing")
	cmd.Flags().Int64Var(&endVersion, "end-version", 0, "Only versions up to this number")
	cmd.Flags().StringVar(&startTime, "start-time", "", "Only versions published at or after this time (RFC 3339)")
	cmd.Flags().StringVar(&endTime, "end-time", "", "Only versions published before this time (RFC 3339)")

	return cmd
}

func versionRow(v domain.Version) []string {
	updateType := v.UpdateType
	if v.RollbackSource > 0 {
		updateType = fmt.Sprintf("%s (from %d)", updateType, v.RollbackSource)
	}

	user := ""
	if v.UpdateUser != nil {
		user = v.UpdateUser.Email
	}

	updated := ""
	if !v.UpdateTime.IsZero() {
		updated = v.UpdateTime.UTC().Format(time.RFC3339)
	}

	return []string{
		strconv.FormatInt(v.VersionNumber, 10),
		updated,
		updateType,
		v.UpdateOrigin,
		user,
		v.Description,
	}
}

func parseTimeFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, Usagef("--%s must be an RFC 3339 timestamp, got %q", name, value)
	}
	return t, nil
}
