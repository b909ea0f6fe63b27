package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/therapybridge/therapybridge/internal/auth"
	"github.com/therapybridge/therapybridge/internal/config"
	"github.com/therapybridge/therapybridge/internal/db"
	"github.com/therapybridge/therapybridge/internal/models"
	"github.com/therapybridge/therapybridge/internal/validate"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "User management commands",
	}

	cmd.AddCommand(newUserCreateAdminCmd())
	return cmd
}

func newUserCreateAdminCmd() *cobra.Command {
	var (
		configPath string
		email      string
		fullName   string
	)

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		Long:  "Creates an admin user. Email and name may be passed as flags or entered interactively; the password is always prompted without echo.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserCreateAdmin(cmd, configPath, email, fullName)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "therapybridge.yaml", "path to TherapyBridge config file")
	cmd.Flags().StringVar(&email, "email", "", "admin email address")
	cmd.Flags().StringVar(&fullName, "name", "", "admin full name")
	return cmd
}

func runUserCreateAdmin(cmd *cobra.Command, configPath, email, fullName string) error {
	out := cmd.OutOrStdout()
	reader := bufio.NewReader(cmd.InOrStdin())

	if email == "" {
		fmt.Fprint(out, "Email: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read email: %w", err)
		}
		email = strings.TrimSpace(line)
	}
	if !validate.Email(email) {
		return fmt.Errorf("%q is not a valid email address", email)
	}

	if fullName == "" {
		fmt.Fprint(out, "Full name: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read name: %w", err)
		}
		fullName = strings.TrimSpace(line)
	}
	if fullName == "" {
		return fmt.Errorf("full name is required")
	}

	password, err := promptPassword(out)
	if err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}

	var existing int64
	if err := gormDB.Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if existing > 0 {
		return fmt.Errorf("an account with email %s already exists", email)
	}

	user := models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		FullName:     fullName,
		Role:         models.RoleAdmin,
		Active:       true,
	}
	if err := gormDB.Create(&user).Error; err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	fmt.Fprintf(out, "Admin account %s created (id %s)\n", email, user.ID)
	return nil
}

// promptPassword reads the password twice without echo.
func promptPassword(out io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("password prompt requires a terminal")
	}

	fmt.Fprint(out, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	fmt.Fprint(out, "Confirm password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(first), nil
}
