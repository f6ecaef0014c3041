package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aciencia/apiserver/internal/db"
	"github.com/aciencia/apiserver/internal/services"
	"github.com/aciencia/apiserver/internal/store"
	"github.com/aciencia/apiserver/types"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var newUser struct {
	username string
	email    string
	password string
	role     string
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user directly in the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		conn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer conn.Close()

		users := services.NewUserService(store.NewUserRepository(conn))
		user, err := users.Register(cmd.Context(), services.UserInput{
			Username: &newUser.username,
			Email:    &newUser.email,
			Password: &newUser.password,
			Role:     &newUser.role,
		}, types.RoleAdmin)
		if err != nil {
			return err
		}

		logger.Info().Int("id", user.ID).Str("username", user.Username).Str("role", user.Role.String()).Msg("user created")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd)

	flags := userCreateCmd.Flags()
	flags.StringVar(&newUser.username, "username", "", "login name")
	flags.StringVar(&newUser.email, "email", "", "email address")
	flags.StringVar(&newUser.password, "password", "", "plain text password")
	flags.StringVar(&newUser.role, "role", types.RoleReader.String(), "INACTIVE, READER, WRITER or ADMIN")
	_ = userCreateCmd.MarkFlagRequired("username")
	_ = userCreateCmd.MarkFlagRequired("email")
	_ = userCreateCmd.MarkFlagRequired("password")
}
