package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/baiirun/mesa/internal/client"
	"github.com/baiirun/mesa/internal/export"
	"github.com/baiirun/mesa/internal/model"
	"github.com/baiirun/mesa/internal/tui"
)

var (
	flagLoginUser     string
	flagLoginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to a mesa server and save the token",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := remoteClient()
		if err != nil {
			return err
		}

		in := bufio.NewReader(cmd.InOrStdin())
		user := flagLoginUser
		if user == "" {
			if user, err = prompt(cmd.OutOrStdout(), in, "Username: "); err != nil {
				return err
			}
		}
		password := flagLoginPassword
		if password == "" {
			if password, err = prompt(cmd.OutOrStdout(), in, "Password: "); err != nil {
				return err
			}
		}

		res, err := c.Login(background(cmd), user, password)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s) until %s\n",
			res.User.FullName, res.User.Role, res.ExpiresAt.Local().Format("15:04"))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved token",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := remoteClient()
		if err != nil {
			return err
		}
		return c.Logout()
	},
}

var (
	flagStatus     string
	flagDepartment string
	flagType       string
	flagQuery      string
	flagOut        string
)

func requestQuery() client.RequestQuery {
	return client.RequestQuery{
		Status:     model.Status(flagStatus),
		Department: flagDepartment,
		Type:       model.RequestType(flagType),
		Q:          flagQuery,
	}
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List requests visible to the logged in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := remoteClient()
		if err != nil {
			return err
		}
		q := requestQuery()
		q.PageSize = 50
		page, err := c.ListRequests(background(cmd), q)
		if err != nil {
			return err
		}
		printRequests(cmd.OutOrStdout(), page.Items, time.Now())
		if page.HasNext {
			fmt.Fprintf(cmd.OutOrStdout(), "(%d of %d shown)\n", len(page.Items), page.Total)
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download the filtered request list as an .xlsx workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := remoteClient()
		if err != nil {
			return err
		}

		out := flagOut
		if out == "" {
			out = export.Filename(time.Now())
		}
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", out, err)
		}
		if err := c.Export(background(cmd), requestQuery(), f); err != nil {
			_ = f.Close()
			_ = os.Remove(out)
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", out)
		return nil
	},
}

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Open the interactive request board",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := remoteClient()
		if err != nil {
			return err
		}
		me, err := c.Me(background(cmd))
		if err != nil {
			return err
		}
		if err := tui.Run(c, me); err != nil {
			if errors.Is(err, tui.ErrSessionExpired) {
				_ = c.Logout()
			}
			return err
		}
		return nil
	},
}

// remoteClient builds the API client for commands that talk to a server.
func remoteClient() (*client.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newClient(cfg)
}

func prompt(w io.Writer, r *bufio.Reader, label string) (string, error) {
	fmt.Fprint(w, label)
	line, err := r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("%s is required", strings.TrimSuffix(strings.ToLower(label), ": "))
	}
	return line, nil
}

func printRequests(w io.Writer, reqs []model.Request, now time.Time) {
	if len(reqs) == 0 {
		fmt.Fprintln(w, "No requests")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPRIORITY\tTITLE\tREQUESTER\tASSIGNEE\tAGE")
	for _, r := range reqs {
		assignee := "-"
		if r.AssignedToName != nil {
			assignee = *r.AssignedToName
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Status, r.Priority, r.Title, r.RequesterName, assignee, age(now.Sub(r.CreatedAt)))
	}
	_ = tw.Flush()
}

// age renders a duration the way the list shows it: minutes, hours, then days.
func age(d time.Duration) string {
	switch {
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func init() {
	loginCmd.Flags().StringVarP(&flagLoginUser, "username", "u", "", "username (prompted when empty)")
	loginCmd.Flags().StringVarP(&flagLoginPassword, "password", "p", "", "password (prompted when empty)")

	for _, c := range []*cobra.Command{listCmd, exportCmd} {
		c.Flags().StringVar(&flagStatus, "status", "", "filter by status")
		c.Flags().StringVar(&flagDepartment, "department", "", "filter by department")
		c.Flags().StringVar(&flagType, "type", "", "filter by request type")
		c.Flags().StringVarP(&flagQuery, "query", "q", "", "full-text search")
	}
	exportCmd.Flags().StringVarP(&flagOut, "out", "o", "", "output file (default: solicitudes-<timestamp>.xlsx)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(boardCmd)
}
