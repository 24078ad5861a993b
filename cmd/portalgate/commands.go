package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/portalgate/internal/admission"
	"github.com/dropDatabas3/portalgate/internal/app"
	"github.com/dropDatabas3/portalgate/internal/config"
	"github.com/dropDatabas3/portalgate/internal/observability/logger"
	"github.com/dropDatabas3/portalgate/internal/security/password"
)

var errNotAdmitted = errors.New("token not admitted")

type rootOpts struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	o := &rootOpts{configPath: os.Getenv("PORTALGATE_CONFIG")}

	root := &cobra.Command{
		Use:           "portalgate",
		Short:         "Admission gate y sesiones para el portal",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// .env es opcional; uno explícito que no existe sí es error
			if err := godotenv.Load(o.envFile); err != nil {
				if o.envFile != ".env" || !errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("env file %s: %w", o.envFile, err)
				}
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&o.configPath, "config", o.configPath, "Archivo YAML (env PORTALGATE_CONFIG); vacío = sólo env")
	root.PersistentFlags().StringVar(&o.envFile, "env-file", ".env", "Archivo .env a cargar si existe")

	root.AddCommand(newServeCmd(o), newVerifyTokenCmd(o), newHashPasswordCmd())
	return root
}

func (o *rootOpts) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, ServiceName: "portalgate"})
	return cfg, nil
}

// =================================================================================
// serve
// =================================================================================

func newServeCmd(o *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Run(ctx)
		},
	}
}

// =================================================================================
// verify-token
// =================================================================================

type verifyOutput struct {
	Outcome   string     `json:"outcome"`
	Reason    string     `json:"reason,omitempty"`
	Subject   string     `json:"sub,omitempty"`
	Email     string     `json:"email,omitempty"`
	Issuer    string     `json:"iss,omitempty"`
	KeyID     string     `json:"kid,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func newVerifyTokenCmd(o *rootOpts) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "verify-token [token]",
		Short: "Evalúa un bearer token con la misma política que /api (token por arg o stdin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.load()
			if err != nil {
				return err
			}
			raw, err := argOrStdin(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			_, verifier, err := app.NewVerifier(cfg, nil)
			if err != nil {
				return err
			}
			gate := admission.NewGate(verifier, admission.Config{AnonymousSubject: cfg.IdP.AnonymousSubject})

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, "/api/verify", nil)
			if err != nil {
				return err
			}
			if raw != "" {
				req.Header.Set("Authorization", "Bearer "+raw)
			}

			d := gate.Admit(req)
			out := verifyOutput{Outcome: string(d.Outcome), Reason: string(d.Reason)}
			if c := d.Claims; c != nil {
				exp := c.ExpiresAt.UTC()
				out.Subject, out.Email, out.Issuer, out.KeyID, out.ExpiresAt = c.Subject, c.Email(), c.Issuer, c.KeyID, &exp
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}
			if d.Outcome != admission.Allow {
				return errNotAdmitted
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Timeout total (incluye el fetch del JWKS)")
	return cmd
}

// =================================================================================
// hash-password
// =================================================================================

func newHashPasswordCmd() *cobra.Command {
	var skipPolicy bool
	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Genera el hash argon2id para admin.password (password por arg o stdin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plain, err := argOrStdin(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if plain == "" {
				return errors.New("password is required")
			}
			if !skipPolicy {
				if v := password.AdminPolicy.Violations(plain); len(v) > 0 {
					return fmt.Errorf("weak password: %s", strings.Join(v, ", "))
				}
			}
			phc, err := password.Hash(password.Default, plain)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), phc)
			return err
		},
	}
	cmd.Flags().BoolVar(&skipPolicy, "skip-policy", false, "No aplicar la política de fortaleza (sólo dev)")
	return cmd
}

// argOrStdin devuelve args[0] o la primera línea de stdin.
func argOrStdin(args []string, in io.Reader) (string, error) {
	if len(args) == 1 {
		return strings.TrimSpace(args[0]), nil
	}
	sc := bufio.NewScanner(in)
	if sc.Scan() {
		return strings.TrimSpace(sc.Text()), nil
	}
	return "", sc.Err()
}
