package commands

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/raine/telegram-fastkale-bot/internal/fastkale"
)

func offerCmd(a *app, flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offer",
		Short: "Create, view, accept and reject offers",
	}
	cmd.AddCommand(
		offerCreateCmd(a, flags),
		offerIDCmd(a, flags, "get", "Show an offer", "Get offer", "get-offer"),
		offerIDCmd(a, flags, "accept", "Accept an offer", "Accept offer", "accept-offer"),
		offerRejectCmd(a, flags),
	)
	return cmd
}

func offerCreateCmd(a *app, flags *rootFlags) *cobra.Command {
	var (
		cartID string
		addr   fastkale.PickupAddress
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an offer for a cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := a.token(flags)
			if err != nil {
				return err
			}
			_, err = a.rec.Do(cmd.Context(), "Create offer", "create-offer", fastkale.CallOptions{
				Method: http.MethodPost,
				Token:  token,
				Body:   map[string]any{"cart_id": cartID, "pickup_address": addr},
			})
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&cartID, "cart", "", "cart id")
	f.StringVar(&addr.StreetAddress, "street", "", "street address")
	f.StringVar(&addr.City, "city", "", "city")
	f.StringVar(&addr.State, "state", "", "state")
	f.StringVar(&addr.ZipCode, "zip", "", "zip code")
	f.StringVar(&addr.ApartmentUnit, "unit", "", "apartment or unit")
	f.StringVar(&addr.GooglePlaceID, "place-id", "", "Google place id")
	for _, name := range []string{"cart", "street", "city", "state", "zip"} {
		cmd.MarkFlagRequired(name)
	}
	return cmd
}

// offerIDCmd builds the commands whose only input is the offer id.
func offerIDCmd(a *app, flags *rootFlags, use, short, label, path string) *cobra.Command {
	var offerID string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := a.token(flags)
			if err != nil {
				return err
			}
			_, err = a.rec.Do(cmd.Context(), label, path, fastkale.CallOptions{
				Method: http.MethodPost,
				Token:  token,
				Body:   map[string]string{"offer_id": offerID},
			})
			return err
		},
	}
	cmd.Flags().StringVar(&offerID, "offer", "", "offer id")
	cmd.MarkFlagRequired("offer")
	return cmd
}

func offerRejectCmd(a *app, flags *rootFlags) *cobra.Command {
	var offerID, reason string
	cmd := &cobra.Command{
		Use:   "reject",
		Short: "Reject an offer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := a.token(flags)
			if err != nil {
				return err
			}
			body := map[string]string{"offer_id": offerID}
			if reason != "" {
				body["reason"] = reason
			}
			_, err = a.rec.Do(cmd.Context(), "Reject offer", "reject-offer", fastkale.CallOptions{
				Method: http.MethodPost,
				Token:  token,
				Body:   body,
			})
			return err
		},
	}
	cmd.Flags().StringVar(&offerID, "offer", "", "offer id")
	cmd.Flags().StringVar(&reason, "reason", "", "why the offer was rejected")
	cmd.MarkFlagRequired("offer")
	return cmd
}
