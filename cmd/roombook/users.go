package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/roombook/internal/application"
)

func usersCmd(env *runtimeEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage the user directory",
	}
	cmd.AddCommand(usersAddCmd(env))
	return cmd
}

func usersAddCmd(env *runtimeEnv) *cobra.Command {
	var input application.UserInput

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context(), env.cfg, env.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			service := application.NewUserServiceWithLogger(store, nil, env.cfg.StoreTimeout, env.logger)
			user, err := service.RegisterUser(cmd.Context(), input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s (%s) as %s\n", user.ID, user.DisplayName, user.Role)
			return nil
		},
	}

	cmd.Flags().StringVar(&input.ID, "id", "", "user identifier presented in X-Subject-Id")
	cmd.Flags().StringVar(&input.DisplayName, "name", "", "display name")
	cmd.Flags().StringVar(&input.Role, "role", "USER", "USER or ADMIN")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
