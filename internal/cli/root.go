// Package cli implements dashctl, a terminal client for the dashboard
// backend. It drives the same session manager as the web tier and keeps its
// token and onboarding state in a local bbolt file.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sitedash/internal/apiclient"
	"sitedash/internal/credentials"
	"sitedash/internal/domain"
	boltrepo "sitedash/internal/repository/bolt"
	"sitedash/internal/security"
	"sitedash/internal/service"
)

// Options are the values shared by every command.
type Options struct {
	BackendURL      string
	CredentialsPath string
	Profile         string
	// Secret keys the fingerprint that ties saved state to the stored token.
	Secret     string
	Timeout    time.Duration
	DeviceName string
}

// DefaultCredentialsPath returns ~/.sitedash/credentials.db, or a relative
// path when the home directory is unknown.
func DefaultCredentialsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".sitedash", "credentials.db")
	}
	return filepath.Join(home, ".sitedash", "credentials.db")
}

// NewRootCommand builds the dashctl command tree. defaults seed the flag
// values.
func NewRootCommand(defaults Options) *cobra.Command {
	opts := defaults
	if opts.CredentialsPath == "" {
		opts.CredentialsPath = DefaultCredentialsPath()
	}
	if opts.Profile == "" {
		opts.Profile = "default"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.DeviceName == "" {
		opts.DeviceName = "dashctl"
	}

	root := &cobra.Command{
		Use:   "dashctl",
		Short: "Sign in to the site dashboard and walk through onboarding",
		Long: `dashctl talks to the dashboard backend from a terminal.

The token and the current onboarding step are stored in a local file
(--credentials) and reused by later commands until logout or expiry.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.BackendURL, "backend", opts.BackendURL, "backend API base URL")
	flags.StringVar(&opts.CredentialsPath, "credentials", opts.CredentialsPath, "credentials file")
	flags.StringVar(&opts.Profile, "profile", opts.Profile, "credential profile name")
	flags.DurationVar(&opts.Timeout, "timeout", opts.Timeout, "backend request timeout")

	root.AddCommand(
		newLoginCmd(&opts),
		newRegisterCmd(&opts),
		newLogoutCmd(&opts),
		newStatusCmd(&opts),
		newCompleteProfileCmd(&opts),
		newCreateCompanyCmd(&opts),
		newPlansCmd(&opts),
		newSelectPlanCmd(&opts),
		newSkipPlanCmd(&opts),
		newOAuthURLCmd(&opts),
		newOAuthCallbackCmd(&opts),
		newSocialOnboardingCmd(&opts),
	)
	return root
}

// workspace is one command's view of the stored session.
type workspace struct {
	store   *credentials.BoltStore
	manager *service.SessionManager
}

func (w *workspace) Close() error { return w.store.Close() }

// open loads the stored token and session state. A token without saved
// state is validated against the backend first.
func (o *Options) open(ctx context.Context) (*workspace, error) {
	if o.BackendURL == "" {
		return nil, errors.New("--backend is required")
	}
	store, err := credentials.OpenBoltStore(o.CredentialsPath, o.Profile)
	if err != nil {
		return nil, err
	}
	repo, err := boltrepo.NewSessionStateRepository(store.DB())
	if err != nil {
		store.Close()
		return nil, err
	}
	client, err := apiclient.NewClient(o.BackendURL,
		apiclient.WithTimeout(o.Timeout),
		apiclient.WithTokens(store))
	if err != nil {
		store.Close()
		return nil, err
	}

	registry := service.NewSessionRegistry(repo, security.NewFingerprinter(o.Secret))
	session := registry.Session(ctx, o.Profile, store.Get())
	manager := service.NewSessionManager(session, client, store,
		service.WithObservers(registry),
		service.WithFingerprinter(registry.Fingerprinter()),
		service.WithDeviceName(o.DeviceName))
	if !session.Bootstrapped() {
		if err := manager.Initialize(ctx); err != nil {
			store.Close()
			return nil, err
		}
	}
	return &workspace{store: store, manager: manager}, nil
}

// run opens the workspace, calls fn and prints its result as JSON.
func (o *Options) run(cmd *cobra.Command, fn func(ctx context.Context, w *workspace) (any, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	w, err := o.open(ctx)
	if err != nil {
		return err
	}
	defer w.Close()

	out, err := fn(ctx, w)
	if err != nil {
		return describe(err)
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describe flattens field errors into the message so they reach the
// terminal.
func describe(err error) error {
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) || len(apiErr.FieldErrors) == 0 {
		return err
	}
	fields := make([]string, 0, len(apiErr.FieldErrors))
	for f := range apiErr.FieldErrors {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var b strings.Builder
	for _, f := range fields {
		for _, msg := range apiErr.FieldErrors[f] {
			fmt.Fprintf(&b, "\n  %s: %s", f, msg)
		}
	}
	return fmt.Errorf("%w%s", err, b.String())
}
