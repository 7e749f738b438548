package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/service"
)

func (a *app) usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "User account commands",
	}
	cmd.AddCommand(a.usersCreateCmd())
	cmd.AddCommand(a.usersSetStaffCmd())
	return cmd
}

func (a *app) usersCreateCmd() *cobra.Command {
	var (
		username string
		email    string
		password string
		staff    bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		Long: `Create a user account directly in the database.

The password is prompted for without echo unless --password is given.

Examples:
  deskctl users create --username sam --email sam@example.com --staff`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				first, err := a.opts.ReadPassword("Password: ")
				if err != nil {
					return ErrInvalidArgs("read password: %v", err)
				}
				second, err := a.opts.ReadPassword("Password (again): ")
				if err != nil {
					return ErrInvalidArgs("read password: %v", err)
				}
				if first != second {
					return ErrInvalidArgs("passwords do not match")
				}
				password = first
			}

			return a.withBackend(cmd.Context(), func(b Backend) error {
				user, err := a.authService(b).CreateUser(cmd.Context(), service.CreateUserInput{
					Username: username,
					Email:    email,
					Password: password,
					Staff:    staff,
				})
				if err != nil {
					return err
				}
				printUser(cmd, "created", user)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Username (required)")
	cmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password; prompted for when omitted")
	cmd.Flags().BoolVar(&staff, "staff", false, "Grant staff rights")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) usersSetStaffCmd() *cobra.Command {
	var staff bool
	cmd := &cobra.Command{
		Use:   "set-staff <username>",
		Short: "Grant or revoke staff rights",
		Example: `  deskctl users set-staff sam --staff=true
  deskctl users set-staff sam --staff=false`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("staff") {
				return ErrInvalidArgs("--staff=true or --staff=false is required")
			}
			return a.withBackend(cmd.Context(), func(b Backend) error {
				user, err := a.authService(b).SetStaff(cmd.Context(), args[0], staff)
				if err != nil {
					return err
				}
				printUser(cmd, "updated", user)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&staff, "staff", false, "Staff rights to set")
	return cmd
}

func printUser(cmd *cobra.Command, verb string, user *domain.User) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s user %s (id=%s, email=%s, staff=%t)\n",
		verb, user.Username, user.ID, user.Email, user.IsStaff)
}
