package main

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/elevate/pkg/config"
	"github.com/dmitrymomot/elevate/pkg/qrcode"
	"github.com/dmitrymomot/elevate/pkg/totp"
)

var errInvalidCode = errors.New("code is not valid")

type app struct {
	cfg       totp.Config
	secret    string
	principal string
	at        int64
	out       io.Writer
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out}

	cmd := &cobra.Command{
		Use:           "totpctl",
		Short:         "Manage TOTP secrets and codes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Flags override TOTP_* environment values.
			var env totp.Config
			if err := config.Load(&env); err != nil {
				return err
			}
			fs := cmd.Flags()
			if !fs.Changed("digits") {
				a.cfg.Digits = env.Digits
			}
			if !fs.Changed("period") {
				a.cfg.Period = env.Period
			}
			if !fs.Changed("algorithm") {
				a.cfg.Algorithm = env.Algorithm
			}
			if !fs.Changed("drift") {
				a.cfg.DriftSteps = env.DriftSteps
			}
			a.cfg = a.cfg.WithDefaults()
			return a.cfg.Validate()
		},
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	pf := cmd.PersistentFlags()
	pf.IntVar(&a.cfg.Digits, "digits", totp.DefaultDigits, "code length")
	pf.IntVar(&a.cfg.Period, "period", totp.DefaultPeriod, "time step in seconds")
	pf.StringVar(&a.cfg.Algorithm, "algorithm", totp.DefaultAlgorithm, "HMAC algorithm: SHA1, SHA256 or SHA512")
	pf.IntVar(&a.cfg.DriftSteps, "drift", totp.DefaultDriftSteps, "accepted clock drift in time steps")

	cmd.AddCommand(
		a.keygenCmd(),
		a.secretCmd(),
		a.uriCmd(),
		a.codeCmd(),
		a.verifyCmd(),
		a.sealCmd(),
		a.adminCmd(),
	)
	return cmd
}

func (a *app) keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a new base64 TOTP_ENCRYPTION_KEY",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			key, err := totp.GenerateEncodedEncryptionKey()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.out, key)
			return err
		},
	}
}

func (a *app) secretCmd() *cobra.Command {
	var label, issuer, qrFile string

	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Generate a secret and, with --label, its provisioning URI",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			secret, err := totp.GenerateSecretKey(rand.Reader)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, secret)
			if label == "" {
				return nil
			}

			uri, err := a.uri(secret, label, issuer)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, uri)

			if qrFile != "" {
				png, err := qrcode.PNG(uri)
				if err != nil {
					return err
				}
				return os.WriteFile(qrFile, png, 0o600)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "account label shown in the authenticator")
	cmd.Flags().StringVar(&issuer, "issuer", "Elevate", "issuer shown in the authenticator")
	cmd.Flags().StringVar(&qrFile, "qr", "", "write a QR code PNG to this file")
	return cmd
}

func (a *app) uriCmd() *cobra.Command {
	var label, issuer string

	cmd := &cobra.Command{
		Use:   "uri",
		Short: "Render the otpauth:// provisioning URI for a secret",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			uri, err := a.uri(a.secret, label, issuer)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.out, uri)
			return err
		},
	}
	a.secretFlag(cmd)
	cmd.Flags().StringVar(&label, "label", "", "account label shown in the authenticator")
	cmd.Flags().StringVar(&issuer, "issuer", "Elevate", "issuer shown in the authenticator")
	_ = cmd.MarkFlagRequired("label")
	return cmd
}

func (a *app) codeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "code",
		Short: "Print the code for a secret at the current or given time",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			code, err := totp.Generate(a.secret, a.time(), totp.WithConfig(a.cfg))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.out, code)
			return err
		},
	}
	a.secretFlag(cmd)
	a.atFlag(cmd)
	return cmd
}

func (a *app) verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify CODE",
		Short: "Check a code against a secret within the drift window",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			res, err := totp.Verify(a.secret, args[0], a.time(), totp.WithConfig(a.cfg))
			if err != nil {
				return err
			}
			if !res.Valid {
				return errInvalidCode
			}
			_, err = fmt.Fprintf(a.out, "valid, time step %d\n", res.Counter)
			return err
		},
	}
	a.secretFlag(cmd)
	a.atFlag(cmd)
	return cmd
}

func (a *app) sealCmd() *cobra.Command {
	var principal string

	cmd := &cobra.Command{
		Use:   "seal",
		Short: "Encrypt a secret for storage with TOTP_ENCRYPTION_KEY",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			var cfg totp.SealerConfig
			if err := config.Load(&cfg); err != nil {
				return err
			}
			sealer, err := totp.NewSealerFromConfig(cfg)
			if err != nil {
				return err
			}
			if _, err := totp.DecodeSecret(a.secret); err != nil {
				return err
			}
			sealed, err := sealer.Seal(a.secret, principal)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.out, sealed)
			return err
		},
	}
	a.secretFlag(cmd)
	cmd.Flags().StringVar(&principal, "principal", "", "principal the secret belongs to")
	_ = cmd.MarkFlagRequired("principal")
	return cmd
}

func (a *app) secretFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&a.secret, "secret", "", "base32 secret")
	_ = cmd.MarkFlagRequired("secret")
}

func (a *app) atFlag(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&a.at, "at", 0, "unix time to use instead of now")
}

func (a *app) time() time.Time {
	if a.at != 0 {
		return time.Unix(a.at, 0)
	}
	return time.Now()
}

func (a *app) uri(secret, label, issuer string) (string, error) {
	return totp.URI(totp.Params{
		Secret:      secret,
		AccountName: label,
		Issuer:      issuer,
		Algorithm:   a.cfg.Algorithm,
		Digits:      a.cfg.Digits,
		Period:      a.cfg.Period,
	})
}
