package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sitedash/internal/apiclient"
	"sitedash/internal/domain"
	"sitedash/internal/service"
)

func newLoginCmd(o *Options) *cobra.Command {
	var req apiclient.LoginRequest
	var fromStdin bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with e-mail and password",
		Example: `  dashctl login --email ana@example.com --password secret123
  echo secret123 | dashctl login --email ana@example.com --password-stdin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := readPassword(cmd, &req.Password, fromStdin); err != nil {
				return err
			}
			return o.run(cmd, func(ctx context.Context, w *workspace) (any, error) {
				return w.manager.Login(ctx, req)
			})
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "account e-mail")
	cmd.Flags().StringVar(&req.Password, "password", "", "account password")
	cmd.Flags().BoolVar(&fromStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

func newRegisterCmd(o *Options) *cobra.Command {
	var req apiclient.RegisterRequest
	var fromStdin bool
	cmd := &cobra.Command{
		Use:     "register",
		Short:   "Create an account and start onboarding",
		Example: `  dashctl register --name "Ana Ruiz" --email ana@example.com --password secret123`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := readPassword(cmd, &req.Password, fromStdin); err != nil {
				return err
			}
			if req.PasswordConfirmation == "" {
				req.PasswordConfirmation = req.Password
			}
			return o.run(cmd, func(ctx context.Context, w *workspace) (any, error) {
				return w.manager.Register(ctx, req)
			})
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "full name")
	cmd.Flags().StringVar(&req.Email, "email", "", "account e-mail")
	cmd.Flags().StringVar(&req.Password, "password", "", "account password")
	cmd.Flags().StringVar(&req.PasswordConfirmation, "password-confirmation", "", "password again (defaults to --password)")
	cmd.Flags().BoolVar(&fromStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

func newLogoutCmd(o *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(ctx context.Context, w *workspace) (any, error) {
				return w.manager.Logout(ctx), nil
			})
		},
	}
}

func newStatusCmd(o *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		Long: `Show the current session. A stored token with no saved state is
checked against the backend first; a rejected token is removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(ctx context.Context, w *workspace) (any, error) {
				return w.manager.Snapshot(), nil
			})
		},
	}
}

func newCompleteProfileCmd(o *Options) *cobra.Command {
	var req apiclient.CompleteProfileRequest
	cmd := &cobra.Command{
		Use:     "complete-profile",
		Short:   "Submit profile details after registering",
		Example: `  dashctl complete-profile --position "Site manager" --phone "+44 20 7946 0000" --account-type company`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(ctx context.Context, w *workspace) (any, error) {
				return w.manager.CompleteProfile(ctx, req)
			})
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "display name")
	cmd.Flags().StringVar(&req.Position, "position", "", "job position")
	cmd.Flags().StringVar(&req.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&req.AccountType, "account-type", "", "individual or company")
	cmd.Flags().StringVar(&req.AvatarURL, "avatar-url", "", "avatar image URL")
	return cmd
}

func newCreateCompanyCmd(o *Options) *cobra.Command {
	var req apiclient.CreateCompanyRequest
	cmd := &cobra.Command{
		Use:   "create-company",
		Short: "Create the company for a company account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(ctx context.Context, w *workspace) (any, error) {
				return w.manager.CreateCompany(ctx, req)
			})
		},
	}
	companyFlags(cmd, &req.Name, &req.Type, &req.Phone, &req.Address)
	return cmd
}

func newPlansCmd(o *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "List subscription plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(ctx context.Context, w *workspace) (any, error) {
				return w.manager.ListPlans(ctx)
			})
		},
	}
}

func newSelectPlanCmd(o *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "select-plan <plan-id>",
		Short: "Pick a plan and finish onboarding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(ctx context.Context, w *workspace) (any, error) {
				return w.manager.SelectPlan(ctx, args[0])
			})
		},
	}
}

func newSkipPlanCmd(o *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "skip-plan",
		Short: "Finish onboarding without a plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(ctx context.Context, w *workspace) (any, error) {
				return w.manager.SkipPlan(ctx)
			})
		},
	}
}

func newOAuthURLCmd(o *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "oauth-url <provider>",
		Short: "Print the sign-in URL for google or facebook",
		Long: `Print the provider sign-in URL. Open it in a browser, then pass the
code and state from the redirect to oauth-callback.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(ctx context.Context, w *workspace) (any, error) {
				redirect, err := service.NewSocialAuthCoordinator(w.manager).GetAuthorizationURL(ctx, args[0])
				if err != nil {
					return nil, err
				}
				return map[string]string{"redirect_url": redirect}, nil
			})
		},
	}
}

// callbackResult is printed by oauth-callback.
type callbackResult struct {
	Exchange domain.SocialExchange  `json:"exchange"`
	Session  domain.SessionSnapshot `json:"session"`
}

func newOAuthCallbackCmd(o *Options) *cobra.Command {
	return &cobra.Command{
		Use:     "oauth-callback <provider> <code> <state>",
		Short:   "Finish a social sign-in",
		Example: `  dashctl oauth-callback google 4/0AQlEd8x... 7d0c9b1e...`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(ctx context.Context, w *workspace) (any, error) {
				exchange, err := service.NewSocialAuthCoordinator(w.manager).HandleCallback(ctx, args[0], args[1], args[2])
				if err != nil {
					return nil, err
				}
				return callbackResult{Exchange: exchange, Session: w.manager.Snapshot()}, nil
			})
		},
	}
}

func newSocialOnboardingCmd(o *Options) *cobra.Command {
	var req apiclient.SocialOnboardingRequest
	cmd := &cobra.Command{
		Use:   "social-onboarding",
		Short: "Submit the company after a social sign-in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(ctx context.Context, w *workspace) (any, error) {
				return service.NewSocialAuthCoordinator(w.manager).CompleteSocialOnboarding(ctx, req)
			})
		},
	}
	companyFlags(cmd, &req.CompanyName, &req.CompanyType, &req.Phone, &req.Address)
	return cmd
}

func companyFlags(cmd *cobra.Command, name, kind, phone, address *string) {
	cmd.Flags().StringVar(name, "name", "", "company name")
	cmd.Flags().StringVar(kind, "type", "", "company type")
	cmd.Flags().StringVar(phone, "phone", "", "company phone")
	cmd.Flags().StringVar(address, "address", "", "company address")
}

func readPassword(cmd *cobra.Command, password *string, fromStdin bool) error {
	if !fromStdin {
		return nil
	}
	if *password != "" {
		return errors.New("--password and --password-stdin are mutually exclusive")
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("failed to read password from stdin: %w", err)
	}
	*password = strings.TrimRight(line, "\r\n")
	return nil
}
