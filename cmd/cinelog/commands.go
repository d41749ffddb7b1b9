package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/cinelog/internal/audit"
	"github.com/dropDatabas3/cinelog/internal/domain/repository"
	"github.com/dropDatabas3/cinelog/internal/security/password"
	"github.com/dropDatabas3/cinelog/internal/store"
)

func migrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones embebidas del driver configurado",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ct, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer ct.Close()
			if err := store.Migrate(ctx, ct.Conn); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migraciones aplicadas (%s)\n", ct.Conn.Name())
			return nil
		},
	}
}

func auditCmd(c *cli) *cobra.Command {
	root := &cobra.Command{Use: "audit", Short: "Log de auditoría de seguridad"}

	var days int
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Borra eventos más viejos que --days",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return errors.New("--days debe ser > 0")
			}
			ctx := cmd.Context()
			ct, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer ct.Close()
			n, err := ct.Audit.Prune(ctx, days)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d eventos borrados\n", n)
			return nil
		},
	}
	prune.Flags().IntVar(&days, "days", 90, "antigüedad mínima en días")

	var userID string
	var limit int
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Muestra los eventos más recientes de un usuario",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user es requerido")
			}
			ctx := cmd.Context()
			ct, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer ct.Close()
			events, err := ct.Audit.RecentEvents(ctx, userID, limit)
			if err != nil {
				return err
			}
			if c.OutFormat == "json" {
				c.print(cmd.OutOrStdout(), events)
				return nil
			}
			printEvents(cmd, events)
			return nil
		},
	}
	tail.Flags().StringVar(&userID, "user", "", "id del usuario")
	tail.Flags().IntVar(&limit, "limit", audit.DefaultRecentLimit, "cantidad de eventos")

	var purgeUser string
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Borra todos los eventos de un usuario (baja de cuenta)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if purgeUser == "" {
				return errors.New("--user es requerido")
			}
			ctx := cmd.Context()
			ct, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer ct.Close()
			n, err := ct.Audit.DeleteForUser(ctx, purgeUser)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d eventos borrados\n", n)
			return nil
		},
	}
	purge.Flags().StringVar(&purgeUser, "user", "", "id del usuario")

	root.AddCommand(prune, tail, purge)
	return root
}

func printEvents(cmd *cobra.Command, events []audit.Event) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tEVENT\tIP\tMETADATA")
	for _, e := range events {
		md := ""
		if len(e.Metadata) > 0 {
			md = fmt.Sprint(e.Metadata)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.CreatedAt.Format(time.RFC3339), e.Type, e.IP, md)
	}
	_ = w.Flush()
}

func devicesCmd(c *cli) *cobra.Command {
	root := &cobra.Command{Use: "devices", Short: "Dispositivos de confianza"}

	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Borra los dispositivos expirados",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ct, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer ct.Close()
			n, err := ct.Devices.CleanupExpired(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d dispositivos expirados borrados\n", n)
			return nil
		},
	}

	var userID string
	revokeAll := &cobra.Command{
		Use:   "revoke-all",
		Short: "Revoca todos los dispositivos de un usuario",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user es requerido")
			}
			ctx := cmd.Context()
			ct, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer ct.Close()
			n, err := ct.Devices.RevokeAll(ctx, userID)
			if err != nil {
				return err
			}
			if n > 0 {
				ct.Audit.Log(ctx, audit.Entry{
					UserID:   userID,
					Type:     repository.EventTrustedDeviceRemoved,
					Metadata: map[string]any{"all": true, "count": n, "source": "cli"},
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d dispositivos revocados\n", n)
			return nil
		},
	}
	revokeAll.Flags().StringVar(&userID, "user", "", "id del usuario")

	root.AddCommand(cleanup, revokeAll)
	return root
}

func recoveryCmd(c *cli) *cobra.Command {
	root := &cobra.Command{Use: "recovery", Short: "Recovery codes"}

	var userID string
	gen := &cobra.Command{
		Use:   "generate",
		Short: "Regenera los recovery codes de un usuario (invalida los anteriores)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user es requerido")
			}
			ctx := cmd.Context()
			ct, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer ct.Close()
			u, err := ct.Conn.Users().GetByID(ctx, userID)
			if err != nil {
				return fmt.Errorf("user %s: %w", userID, err)
			}
			if !u.HasTOTP() {
				return errors.New("el usuario no tiene TOTP habilitado")
			}
			codes, err := ct.Recovery.Generate(ctx, userID)
			if err != nil {
				return err
			}
			if c.OutFormat == "json" {
				c.print(cmd.OutOrStdout(), map[string]any{"recovery_codes": codes})
				return nil
			}
			for _, code := range codes {
				fmt.Fprintln(cmd.OutOrStdout(), code)
			}
			return nil
		},
	}
	gen.Flags().StringVar(&userID, "user", "", "id del usuario")

	root.AddCommand(gen)
	return root
}

func userCmd(c *cli) *cobra.Command {
	root := &cobra.Command{Use: "user", Short: "Usuarios"}

	var email string
	var admin bool
	create := &cobra.Command{
		Use:   "create",
		Short: "Crea un usuario; la contraseña se lee de stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			email = strings.ToLower(strings.TrimSpace(email))
			if email == "" {
				return errors.New("--email es requerido")
			}
			fmt.Fprint(cmd.ErrOrStderr(), "password: ")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("leer password: %w", err)
			}
			pw := strings.TrimRight(line, "\r\n")
			if err := (password.Policy{MinLength: c.cfg.Auth.MinPasswordLength}).Validate(pw); err != nil {
				return err
			}
			hash, err := password.Hash(password.Default, pw)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			ct, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer ct.Close()
			u, err := ct.Conn.Users().Create(ctx, repository.CreateUserInput{Email: email, PasswordHash: hash, IsAdmin: admin})
			if repository.IsConflict(err) {
				return fmt.Errorf("ya existe un usuario con email %s", email)
			}
			if err != nil {
				return err
			}
			if c.OutFormat == "json" {
				c.print(cmd.OutOrStdout(), map[string]any{"id": u.ID, "email": u.Email, "is_admin": u.IsAdmin})
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "usuario creado: %s (%s)\n", u.ID, u.Email)
			return nil
		},
	}
	create.Flags().StringVar(&email, "email", "", "email del usuario")
	create.Flags().BoolVar(&admin, "admin", false, "marcar como administrador")

	root.AddCommand(create)
	return root
}

func keysCmd() *cobra.Command {
	root := &cobra.Command{Use: "keys", Short: "Generación de claves"}
	root.AddCommand(&cobra.Command{
		Use:   "secretbox",
		Short: "Genera una clave base64 de 32 bytes para auth.secretbox_key",
		RunE: func(cmd *cobra.Command, args []string) error {
			var b [32]byte
			if _, err := rand.Read(b[:]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), base64.StdEncoding.EncodeToString(b[:]))
			return nil
		},
	})
	return root
}
