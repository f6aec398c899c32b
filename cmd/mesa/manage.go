package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/baiirun/mesa/internal/analytics"
	"github.com/baiirun/mesa/internal/client"
	"github.com/baiirun/mesa/internal/model"
)

var (
	flagDescription   string
	flagPriority      string
	flagKind          string
	flagChannel       string
	flagTitle         string
	flagSetDepartment string
	flagLevel         int
	flagAssignee      string
	flagHours         float64
	flagNote          string
	flagPeriod        string
	flagExtended      bool
	flagYes           bool
)

var newCmd = &cobra.Command{
	Use:   "new <title>",
	Short: "Create a request and show the refreshed list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := remoteClient()
		if err != nil {
			return err
		}
		ctx := background(cmd)
		r, err := c.CreateRequest(ctx, client.NewRequest{
			Title:       strings.TrimSpace(args[0]),
			Description: flagDescription,
			Priority:    model.Priority(flagPriority),
			Type:        model.RequestType(flagKind),
			Channel:     model.Channel(flagChannel),
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s %q\n", r.ID, r.Title)

		page, err := c.ListRequests(ctx, client.RequestQuery{PageSize: 50})
		if err != nil {
			return err
		}
		printRequests(cmd.OutOrStdout(), page.Items, time.Now())
		return nil
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change a request's title, description or categories",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var in client.RequestChanges
		set := func(v string) *string {
			if v == "" {
				return nil
			}
			return &v
		}
		in.Title = set(flagTitle)
		in.Description = set(flagDescription)
		in.Department = set(flagSetDepartment)
		if flagPriority != "" {
			p := model.Priority(flagPriority)
			in.Priority = &p
		}
		if flagKind != "" {
			k := model.RequestType(flagKind)
			in.Type = &k
		}
		if flagChannel != "" {
			ch := model.Channel(flagChannel)
			in.Channel = &ch
		}
		if in == (client.RequestChanges{}) {
			return errors.New("nothing to change")
		}

		c, err := remoteClient()
		if err != nil {
			return err
		}
		r, err := c.UpdateRequest(background(cmd), args[0], in)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated %s %q\n", r.ID, r.Title)
		return nil
	},
}

var classifyCmd = &cobra.Command{
	Use:   "classify <id>",
	Short: "Set a request's level and priority (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := remoteClient()
		if err != nil {
			return err
		}
		r, err := c.Classify(background(cmd), args[0], flagLevel, model.Priority(flagPriority))
		if err != nil {
			return err
		}
		level := 0
		if r.Level != nil {
			level = *r.Level
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Classified %s: level %d, %s\n", r.ID, level, r.Priority)
		return nil
	},
}

var assignCmd = &cobra.Command{
	Use:   "assign <id>",
	Short: "Make a user responsible for a request (admin)",
	Long:  `Assigns the request to --to, or to the logged in user when --to is empty.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := remoteClient()
		if err != nil {
			return err
		}
		ctx := background(cmd)

		var in client.Assignment
		if flagAssignee != "" {
			u, err := findUser(ctx, c, flagAssignee)
			if err != nil {
				return err
			}
			in.UserID = &u.ID
		}
		if flagHours > 0 {
			hours := flagHours
			in.EstimatedHours = &hours
		}
		r, err := c.Assign(ctx, args[0], in)
		if err != nil {
			return err
		}
		name := "-"
		if r.AssignedToName != nil {
			name = *r.AssignedToName
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Assigned %s to %s\n", r.ID, name)
		return nil
	},
}

var worklogCmd = &cobra.Command{
	Use:   "worklog <id>",
	Short: "Log hours spent on a request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := remoteClient()
		if err != nil {
			return err
		}
		in := client.WorklogInput{Hours: flagHours}
		if flagNote != "" {
			note := flagNote
			in.Note = &note
		}
		res, err := c.AddWorklog(background(cmd), args[0], in)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged %.2fh on %s (total %.2fh)\n", in.Hours, args[0], res.WorklogTotalHours)
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the request summary for a period (support, admin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := remoteClient()
		if err != nil {
			return err
		}
		sum, err := c.Summary(background(cmd), flagPeriod, flagExtended)
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), sum)
		return nil
	},
}

func printSummary(w io.Writer, s *analytics.Summary) {
	fmt.Fprintf(w, "Period %s: %s to %s\n", s.Period,
		s.Range.Start.Local().Format("2006-01-02 15:04"), s.Range.End.Local().Format("2006-01-02 15:04"))
	fmt.Fprintf(w, "New %d  Finished %d  Pending %d  In review %d  Avg cycle %.1fh\n",
		s.New, s.Finished, s.PendingNow, s.InReview, s.AvgCycleHours)
	fmt.Fprintf(w, "Total %d  Assigned %d  Unassigned %d  Last 24h %d\n",
		s.Totals.TotalRequests, s.Totals.AssignedTotal, s.Totals.UnassignedTotal, s.Totals.NewLast24h)
	if len(s.Productivity) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TECHNICIAN\tASSIGNED\tPENDING\tATTENDED")
	for _, p := range s.Productivity {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", p.TechName, p.AssignedTotal, p.PendingNow, p.AttendedPeriod)
	}
	_ = tw.Flush()
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Move a request to the trash (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !flagYes {
			return errors.New("pass --yes to move the request to the trash")
		}
		c, err := remoteClient()
		if err != nil {
			return err
		}
		if err := c.DeleteRequest(background(cmd), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Moved %s to trash\n", args[0])
		return nil
	},
}

var trashListCmd = &cobra.Command{
	Use:   "list",
	Short: "List requests in the trash (admin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := remoteClient()
		if err != nil {
			return err
		}
		page, err := c.ListTrash(background(cmd), flagQuery, 1, 50)
		if err != nil {
			return err
		}
		printTrash(cmd.OutOrStdout(), page.Items)
		if page.HasNext {
			fmt.Fprintf(cmd.OutOrStdout(), "(%d of %d shown)\n", len(page.Items), page.Total)
		}
		return nil
	},
}

var trashRestoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Move a request back out of the trash (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := remoteClient()
		if err != nil {
			return err
		}
		r, err := c.Restore(background(cmd), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Restored %s %q\n", r.ID, r.Title)
		return nil
	},
}

var trashPurgeCmd = &cobra.Command{
	Use:   "purge <id>",
	Short: "Delete a trashed request for good (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !flagYes {
			return errors.New("purge cannot be undone; pass --yes to confirm")
		}
		c, err := remoteClient()
		if err != nil {
			return err
		}
		if err := c.Purge(background(cmd), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Purged %s\n", args[0])
		return nil
	},
}

var trashEmptyCmd = &cobra.Command{
	Use:   "empty",
	Short: "Purge every request in the trash (admin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !flagYes {
			return errors.New("emptying the trash cannot be undone; pass --yes to confirm")
		}
		c, err := remoteClient()
		if err != nil {
			return err
		}
		n, err := c.EmptyTrash(background(cmd))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Purged %d entries\n", n)
		return nil
	},
}

func printTrash(w io.Writer, items []model.TrashItem) {
	if len(items) == 0 {
		fmt.Fprintln(w, "Trash is empty")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tREQUESTER\tDELETED BY\tEXPIRES")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			it.ID, it.Title, it.RequesterName, it.DeletedByName, it.ExpiresAt.Local().Format("2006-01-02"))
	}
	_ = tw.Flush()
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users on the server (admin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := remoteClient()
		if err != nil {
			return err
		}
		users, err := c.ListUsers(background(cmd))
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "USERNAME\tNAME\tROLE\tDEPARTMENTS")
		for _, u := range users {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.Username, u.FullName, u.Role, strings.Join(u.Departments, ", "))
		}
		return tw.Flush()
	},
}

var userRoleCmd = &cobra.Command{
	Use:   "role <username> <role>",
	Short: "Change a user's role on the server (admin)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := remoteClient()
		if err != nil {
			return err
		}
		ctx := background(cmd)
		u, err := findUser(ctx, c, args[0])
		if err != nil {
			return err
		}
		role := model.Role(args[1])
		u, err = c.UpdateUser(ctx, u.ID, client.UserChanges{Role: &role})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", u.Username, u.Role)
		return nil
	},
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete <username>",
	Short: "Delete a user on the server (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := remoteClient()
		if err != nil {
			return err
		}
		ctx := background(cmd)
		u, err := findUser(ctx, c, args[0])
		if err != nil {
			return err
		}
		if err := c.DeleteUser(ctx, u.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", u.Username)
		return nil
	},
}

// findUser resolves a username through the admin user listing.
func findUser(ctx context.Context, c *client.Client, username string) (*model.User, error) {
	users, err := c.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if strings.EqualFold(users[i].Username, username) {
			return &users[i], nil
		}
	}
	return nil, fmt.Errorf("no user named %q", username)
}

func init() {
	for _, c := range []*cobra.Command{newCmd, editCmd} {
		c.Flags().StringVarP(&flagDescription, "description", "d", "", "description")
		c.Flags().StringVar(&flagPriority, "priority", "", "Alta, Media or Baja")
		c.Flags().StringVar(&flagKind, "type", "", "Soporte, Mejora, Desarrollo or Capacitación")
		c.Flags().StringVar(&flagChannel, "channel", "", "WhatsApp, Correo or Sistema")
	}
	editCmd.Flags().StringVar(&flagTitle, "title", "", "new title")
	editCmd.Flags().StringVar(&flagSetDepartment, "department", "", "new department")

	classifyCmd.Flags().IntVar(&flagLevel, "level", 0, "level 1-3")
	classifyCmd.Flags().StringVar(&flagPriority, "priority", "", "Alta, Media or Baja")
	_ = classifyCmd.MarkFlagRequired("level")
	_ = classifyCmd.MarkFlagRequired("priority")

	assignCmd.Flags().StringVar(&flagAssignee, "to", "", "username (default: yourself)")
	assignCmd.Flags().Float64Var(&flagHours, "hours", 0, "estimated hours")

	worklogCmd.Flags().Float64Var(&flagHours, "hours", 0, "hours spent (0-24]")
	worklogCmd.Flags().StringVar(&flagNote, "note", "", "what was done")
	_ = worklogCmd.MarkFlagRequired("hours")

	reportCmd.Flags().StringVar(&flagPeriod, "period", "", "daily, weekly or monthly (default: monthly)")
	reportCmd.Flags().BoolVar(&flagExtended, "extended", false, "include the extended dashboard figures")

	trashListCmd.Flags().StringVarP(&flagQuery, "query", "q", "", "search title or requester")
	deleteCmd.Flags().BoolVarP(&flagYes, "yes", "y", false, "confirm")
	trashPurgeCmd.Flags().BoolVarP(&flagYes, "yes", "y", false, "confirm")
	trashEmptyCmd.Flags().BoolVarP(&flagYes, "yes", "y", false, "confirm")
	trashCmd.AddCommand(trashListCmd, trashRestoreCmd, trashPurgeCmd, trashEmptyCmd)

	userCmd.AddCommand(userListCmd, userRoleCmd, userDeleteCmd)

	rootCmd.AddCommand(newCmd, editCmd, classifyCmd, assignCmd, worklogCmd, reportCmd, deleteCmd)
}
