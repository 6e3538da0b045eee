package commands

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/raine/telegram-fastkale-bot/internal/fastkale"
	"github.com/raine/telegram-fastkale-bot/internal/harness"
)

func authCmd(a *app, flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Signup, login, logout and password reset",
	}
	cmd.AddCommand(
		signupCmd(a),
		loginCmd(a),
		logoutCmd(a, flags),
		refreshCmd(a),
		resetRequestCmd(a),
		resetConfirmCmd(a),
	)
	return cmd
}

func signupCmd(a *app) *cobra.Command {
	var req fastkale.SignupRequest
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and keep its session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.rec.Do(cmd.Context(), "Signup", "signup", fastkale.CallOptions{
				Method: http.MethodPost,
				Body:   req,
			})
			if err != nil {
				return err
			}
			return a.keepSession(res)
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "account email")
	cmd.Flags().StringVar(&req.Password, "password", "", "account password")
	cmd.Flags().StringVar(&req.FullName, "name", "", "full name")
	cmd.Flags().StringVar(&req.Phone, "phone", "", "phone number")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")
	return cmd
}

func loginCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and keep the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.rec.Do(cmd.Context(), "Login", "login", fastkale.CallOptions{
				Method: http.MethodPost,
				Body:   map[string]string{"email": email, "password": password},
			})
			if err != nil {
				return err
			}
			return a.keepSession(res)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")
	return cmd
}

func (a *app) keepSession(res *fastkale.CallResult) error {
	auth, err := harness.SaveAuth(a.store, res)
	if err != nil {
		return err
	}
	if auth != nil && auth.User != nil {
		fmt.Fprintf(a.out, "Session saved for %s\n", auth.User.Email)
	}
	return nil
}

func logoutCmd(a *app, flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Log out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.token(flags)
			if err != nil {
				return err
			}
			if _, err := a.rec.Do(cmd.Context(), "Logout", "logout", fastkale.CallOptions{
				Method: http.MethodPost,
				Token:  t,
			}); err != nil {
				return err
			}
			// The local session goes even when the backend refused
			return harness.ClearSession(a.store)
		},
	}
	return cmd
}

func refreshCmd(a *app) *cobra.Command {
	var refreshToken string
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := refreshToken
			if rt == "" {
				var err error
				if rt, err = harness.StoredRefreshToken(a.store); err != nil {
					return err
				}
			}
			res, err := a.rec.Do(cmd.Context(), "Refresh token", "refresh-token", fastkale.CallOptions{
				Method: http.MethodPost,
				Body:   map[string]string{"refresh_token": rt},
			})
			if err != nil {
				return err
			}
			return harness.SaveRefresh(a.store, res)
		},
	}
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "refresh token (default the stored session)")
	return cmd
}

func resetRequestCmd(a *app) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "reset-request",
		Short: "Request a password reset email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := a.rec.Do(cmd.Context(), "Password reset request", "password-reset-request", fastkale.CallOptions{
				Method: http.MethodPost,
				Body:   map[string]string{"email": email},
			})
			return err
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.MarkFlagRequired("email")
	return cmd
}

func resetConfirmCmd(a *app) *cobra.Command {
	var req fastkale.PasswordResetConfirmRequest
	cmd := &cobra.Command{
		Use:   "reset-confirm",
		Short: "Set a new password with a reset token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := a.rec.Do(cmd.Context(), "Password reset confirm", "password-reset-confirm", fastkale.CallOptions{
				Method: http.MethodPost,
				Body:   req,
			})
			return err
		},
	}
	cmd.Flags().StringVar(&req.ResetToken, "reset-token", "", "token from the reset email")
	cmd.Flags().StringVar(&req.NewPassword, "new-password", "", "new password")
	cmd.MarkFlagRequired("reset-token")
	cmd.MarkFlagRequired("new-password")
	return cmd
}
