package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/baiirun/mesa/internal/legacy"
	"github.com/baiirun/mesa/internal/model"
	"github.com/baiirun/mesa/internal/service"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		path, _ := dbPath(e.cfg)
		fmt.Fprintf(cmd.OutOrStdout(), "Initialized database at %s\n", path)
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo departments, users and requests into an empty database",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		seeded, err := e.svc.Seed(background(cmd))
		if err != nil {
			return err
		}
		if !seeded {
			fmt.Fprintln(cmd.OutOrStdout(), "Database already has an admin; nothing seeded")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Seeded demo data (admin/admin123)")
		return nil
	},
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users (add works on the local database, the rest on the server)",
}

var (
	flagUsername    string
	flagPassword    string
	flagFullName    string
	flagRole        string
	flagDepartments []string
	flagPosition    string
)

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		fullName := flagFullName
		if fullName == "" {
			fullName = flagUsername
		}
		u, err := e.svc.AddUser(background(cmd), service.UserInput{
			Username:    flagUsername,
			Password:    flagPassword,
			FullName:    fullName,
			Departments: model.Departments(flagDepartments),
			Position:    flagPosition,
			Role:        model.Role(flagRole),
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s) %s\n", u.Username, u.Role, u.ID)
		return nil
	},
}

var trashCmd = &cobra.Command{
	Use:   "trash",
	Short: "Inspect and maintain the trash",
}

var trashSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Purge trash entries past their expiry",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		n, err := e.svc.SweepTrash(background(cmd))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Purged %d expired entries\n", n)
		return nil
	},
}

var (
	flagMongoURL string
	flagMongoDB  string
)

var importMongoCmd = &cobra.Command{
	Use:   "import-mongo",
	Short: "Import users, requests, trash and worklogs from the previous MongoDB release",
	Long: `Reads the previous release's MongoDB database and copies its records into the
local store. Records whose id already exists are left untouched, so the import
can be re-run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		uri, name := e.cfg.Mongo.URL, e.cfg.Mongo.DB
		if flagMongoURL != "" {
			uri = flagMongoURL
		}
		if flagMongoDB != "" {
			name = flagMongoDB
		}

		ctx := background(cmd)
		mc, err := legacy.Connect(ctx, uri)
		if err != nil {
			return err
		}
		defer func() { _ = mc.Disconnect(ctx) }()

		stats, err := legacy.NewImporter(e.store, e.log, e.cfg.Trash.TTL()).Run(ctx, mc.Database(name))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(),
			"Imported %d departments, %d users, %d requests, %d trash entries, %d worklogs (%d skipped)\n",
			stats.Departments, stats.Users, stats.Requests, stats.Trash, stats.Worklogs, stats.Skipped)
		return nil
	},
}

func init() {
	userAddCmd.Flags().StringVar(&flagUsername, "username", "", "login name")
	userAddCmd.Flags().StringVar(&flagPassword, "password", "", "password (min 6 characters)")
	userAddCmd.Flags().StringVar(&flagFullName, "name", "", "full name (default: username)")
	userAddCmd.Flags().StringVar(&flagRole, "role", string(model.RoleEmployee), "admin, support or employee")
	userAddCmd.Flags().StringSliceVar(&flagDepartments, "department", nil, "department (repeatable)")
	userAddCmd.Flags().StringVar(&flagPosition, "position", "", "position")
	_ = userAddCmd.MarkFlagRequired("username")
	_ = userAddCmd.MarkFlagRequired("password")
	userCmd.AddCommand(userAddCmd)

	trashCmd.AddCommand(trashSweepCmd)

	importMongoCmd.Flags().StringVar(&flagMongoURL, "mongo-url", "", "MongoDB URI (default: MONGO_URL)")
	importMongoCmd.Flags().StringVar(&flagMongoDB, "mongo-db", "", "database name (default: MONGO_DB)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(trashCmd)
	rootCmd.AddCommand(importMongoCmd)
}
