package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/elevate/internal/bootstrap"
	"github.com/dmitrymomot/elevate/pkg/adminsession"
	"github.com/dmitrymomot/elevate/pkg/enrollment"
	"github.com/dmitrymomot/elevate/pkg/qrcode"
	"github.com/dmitrymomot/elevate/svc/elevation"
)

// adminCmd groups commands that act on the configured database.
func (a *app) adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Enroll principals and manage admin sessions in the configured database",
	}
	cmd.PersistentFlags().StringVar(&a.principal, "principal", "", "principal id")
	_ = cmd.MarkPersistentFlagRequired("principal")

	cmd.AddCommand(
		a.enrollCmd(),
		a.confirmCmd(),
		a.statusCmd(),
		a.disableCmd(),
		a.elevateCmd(),
		a.dropCmd(),
		a.terminateCmd(),
		a.sessionsCmd(),
	)
	return cmd
}

type services struct {
	app         *bootstrap.App
	provisioner *enrollment.Provisioner
	elevation   *elevation.Service
}

func (a *app) withServices(ctx context.Context, fn func(services) error) error {
	app, err := bootstrap.Open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	p, svc, err := app.Elevation(ctx)
	if err != nil {
		return err
	}
	return fn(services{app: app, provisioner: p, elevation: svc})
}

func (a *app) enrollCmd() *cobra.Command {
	var label, qrFile string

	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Issue a pending secret; the principal confirms it with a code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withServices(cmd.Context(), func(s services) error {
				e, err := s.provisioner.Begin(cmd.Context(), a.principal, label)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, e.Secret)
				fmt.Fprintln(a.out, e.URI)
				if qrFile == "" {
					return nil
				}
				png, err := qrcode.PNG(e.URI)
				if err != nil {
					return err
				}
				return os.WriteFile(qrFile, png, 0o600)
			})
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "account label, defaults to the principal id")
	cmd.Flags().StringVar(&qrFile, "qr", "", "write a QR code PNG to this file")
	return cmd
}

func (a *app) confirmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "confirm CODE",
		Short: "Confirm the pending secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withServices(cmd.Context(), func(s services) error {
				secret, err := s.provisioner.Confirm(cmd.Context(), a.principal, args[0], time.Now())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(a.out, "confirmed at %s\n", secret.ConfirmedAt.Format(time.RFC3339))
				return err
			})
		},
	}
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show enrollment and session state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withServices(cmd.Context(), func(s services) error {
				st, err := s.provisioner.Status(cmd.Context(), a.principal)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "enrolled: %t\npending:  %t\n", st.Enrolled, st.Pending)

				session, err := s.elevation.Active(cmd.Context(), a.principal)
				switch {
				case adminsession.IsInformational(err):
					fmt.Fprintln(a.out, "session:  none")
				case err != nil:
					return err
				default:
					fmt.Fprintf(a.out, "session:  %s since %s\n", session.ID, session.StartedAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	}
}

func (a *app) disableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Remove every secret of the principal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withServices(cmd.Context(), func(s services) error {
				return s.provisioner.Disable(cmd.Context(), a.principal)
			})
		},
	}
}

func (a *app) elevateCmd() *cobra.Command {
	var reason, scope string

	cmd := &cobra.Command{
		Use:   "elevate CODE",
		Short: "Verify a code and open an admin session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withServices(cmd.Context(), func(s services) error {
				session, err := s.elevation.Elevate(cmd.Context(), a.principal, args[0], reason, adminsession.WithScope(scope))
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(a.out, session.ID)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why elevation is needed")
	cmd.Flags().StringVar(&scope, "scope", "", "what the session is for")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func (a *app) dropCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drop",
		Short: "End the principal's admin session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withServices(cmd.Context(), func(s services) error {
				if err := s.elevation.Drop(cmd.Context(), a.principal); err != nil && !adminsession.IsInformational(err) {
					return err
				}
				return nil
			})
		},
	}
}

func (a *app) terminateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "terminate",
		Short: "Force-end the principal's admin session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withServices(cmd.Context(), func(s services) error {
				return s.app.Sessions.Terminate(cmd.Context(), a.principal)
			})
		},
	}
}

func (a *app) sessionsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent admin sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withServices(cmd.Context(), func(s services) error {
				list, err := s.app.Sessions.History(cmd.Context(), a.principal, limit)
				if err != nil {
					return err
				}
				for _, session := range list {
					end := "active"
					if session.EndedAt != nil {
						end = fmt.Sprintf("%s (%s)", session.EndedAt.Format(time.RFC3339), session.EndReason)
					}
					fmt.Fprintf(a.out, "%s\t%s\t%s\t%s\n", session.ID, session.StartedAt.Format(time.RFC3339), end, session.Reason)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of sessions, 0 for all")
	return cmd
}
