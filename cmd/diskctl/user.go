package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/faciam-dev/gcdisk/internal/auth"
	"github.com/faciam-dev/gcdisk/internal/rbac"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage users"}
	cmd.AddCommand(newUserCreateCmd())
	cmd.AddCommand(newUserAssignRoleCmd())
	cmd.AddCommand(newUserListCmd())
	return cmd
}

type listedUser struct {
	ID    int64    `json:"id"`
	UUID  string   `json:"uuid"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

func newUserListCmd() *cobra.Command {
	var flags dbFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users and their roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := flags.open()
			if err != nil {
				return err
			}
			defer db.Close()
			users, err := (&auth.UserRepo{DB: db, Driver: flags.Driver, TablePrefix: flags.TablePrefix}).List(cmd.Context())
			if err != nil {
				return err
			}
			roles := &rbac.RoleRepo{DB: db, Driver: flags.Driver, TablePrefix: flags.TablePrefix}
			out := make([]listedUser, 0, len(users))
			for _, u := range users {
				rs, err := roles.RolesOf(cmd.Context(), u.ID)
				if err != nil {
					return err
				}
				out = append(out, listedUser{ID: u.ID, UUID: u.UUID, Name: u.Name, Email: u.Email, Roles: rs})
			}
			if wantJSON(cmd) {
				return printJSON(cmd, out)
			}
			rows := make([][]string, 0, len(out))
			for _, u := range out {
				rows = append(rows, []string{strconv.FormatInt(u.ID, 10), u.Name, u.Email, strings.Join(u.Roles, ",")})
			}
			printTable(cmd, []string{"ID", "Name", "Email", "Roles"}, rows)
			return nil
		},
	}
	flags.addFlags(cmd)
	return cmd
}

func newUserCreateCmd() *cobra.Command {
	var flags dbFlags
	var name, email, password, role string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				p, err := readPassword(cmd, "Password")
				if err != nil {
					return err
				}
				password = p
			}
			if password == "" {
				return fmt.Errorf("password is required")
			}
			db, err := flags.open()
			if err != nil {
				return err
			}
			defer db.Close()
			users := &auth.UserRepo{DB: db, Driver: flags.Driver, TablePrefix: flags.TablePrefix}
			id, err := users.Create(cmd.Context(), name, email, password, bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			if role != "" {
				roles := &rbac.RoleRepo{DB: db, Driver: flags.Driver, TablePrefix: flags.TablePrefix}
				if err := roles.AssignRole(cmd.Context(), id, role); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %d\n", id)
			return nil
		},
	}
	flags.addFlags(cmd)
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when empty)")
	cmd.Flags().StringVar(&role, "role", "", "role to assign")
	cobra.CheckErr(cmd.MarkFlagRequired("name"))
	cobra.CheckErr(cmd.MarkFlagRequired("email"))
	return cmd
}

func newUserAssignRoleCmd() *cobra.Command {
	var flags dbFlags
	var userID int64
	var role string

	cmd := &cobra.Command{
		Use:   "assign-role",
		Short: "Grant a role to a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := flags.open()
			if err != nil {
				return err
			}
			defer db.Close()
			roles := &rbac.RoleRepo{DB: db, Driver: flags.Driver, TablePrefix: flags.TablePrefix}
			if err := roles.AssignRole(cmd.Context(), userID, role); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "assigned %s to user %d\n", role, userID)
			return nil
		},
	}
	flags.addFlags(cmd)
	cmd.Flags().Int64Var(&userID, "user-id", 0, "user id")
	cmd.Flags().StringVar(&role, "role", "", "role name")
	cobra.CheckErr(cmd.MarkFlagRequired("user-id"))
	cobra.CheckErr(cmd.MarkFlagRequired("role"))
	return cmd
}

// readPassword prompts without echo on a terminal and reads a line from
// stdin otherwise.
func readPassword(cmd *cobra.Command, label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		var s string
		if _, err := fmt.Fscanln(cmd.InOrStdin(), &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ", label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
