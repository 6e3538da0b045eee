package commands

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/raine/telegram-fastkale-bot/internal/fastkale"
)

func cartCmd(a *app, flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Add, list, move and remove cart items",
	}
	cmd.AddCommand(
		cartAddCmd(a, flags),
		cartGetCmd(a, flags),
		cartRemoveCmd(a, flags),
		cartUpdateCmd(a, flags),
		cartClearCmd(a, flags),
	)
	return cmd
}

func parseItemType(s string) (fastkale.ItemType, error) {
	switch t := fastkale.ItemType(s); t {
	case fastkale.ItemTypeResale, fastkale.ItemTypeDonation:
		return t, nil
	}
	return "", fmt.Errorf("unknown item type %q (want resale or donation)", s)
}

// itemTypeBody builds the add/update payload. The charity is only sent
// with donations.
func itemTypeBody(itemID, typeKey string, itemType fastkale.ItemType, charityID string) map[string]any {
	body := map[string]any{"item_id": itemID, typeKey: itemType}
	if itemType == fastkale.ItemTypeDonation && charityID != "" {
		body["charity_id"] = charityID
	}
	return body
}

func cartAddCmd(a *app, flags *rootFlags) *cobra.Command {
	var itemID, itemType, charityID string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an item to the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseItemType(itemType)
			if err != nil {
				return err
			}
			token, err := a.token(flags)
			if err != nil {
				return err
			}
			_, err = a.rec.Do(cmd.Context(), "Add to cart", "add-to-cart", fastkale.CallOptions{
				Method: http.MethodPost,
				Token:  token,
				Body:   itemTypeBody(itemID, "item_type", t, charityID),
			})
			return err
		},
	}
	cmd.Flags().StringVar(&itemID, "item", "", "item id")
	cmd.Flags().StringVar(&itemType, "type", string(fastkale.ItemTypeResale), "resale or donation")
	cmd.Flags().StringVar(&charityID, "charity", "", "charity id for donations")
	cmd.MarkFlagRequired("item")
	return cmd
}

func cartGetCmd(a *app, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Show the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := a.token(flags)
			if err != nil {
				return err
			}
			_, err = a.rec.Do(cmd.Context(), "Get cart", "get-cart", fastkale.CallOptions{
				Method: http.MethodGet,
				Token:  token,
			})
			return err
		},
	}
}

func cartRemoveCmd(a *app, flags *rootFlags) *cobra.Command {
	var itemID string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove an item from the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := a.token(flags)
			if err != nil {
				return err
			}
			_, err = a.rec.Do(cmd.Context(), "Remove from cart", "remove-from-cart", fastkale.CallOptions{
				Method: http.MethodPost,
				Token:  token,
				Body:   map[string]any{"item_id": itemID},
			})
			return err
		},
	}
	cmd.Flags().StringVar(&itemID, "item", "", "item id")
	cmd.MarkFlagRequired("item")
	return cmd
}

func cartUpdateCmd(a *app, flags *rootFlags) *cobra.Command {
	var itemID, itemType, charityID string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Move a cart item between resale and donation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseItemType(itemType)
			if err != nil {
				return err
			}
			token, err := a.token(flags)
			if err != nil {
				return err
			}
			_, err = a.rec.Do(cmd.Context(), "Update cart item", "update-cart-item", fastkale.CallOptions{
				Method: http.MethodPost,
				Token:  token,
				Body:   itemTypeBody(itemID, "new_item_type", t, charityID),
			})
			return err
		},
	}
	cmd.Flags().StringVar(&itemID, "item", "", "item id")
	cmd.Flags().StringVar(&itemType, "type", "", "new type: resale or donation")
	cmd.Flags().StringVar(&charityID, "charity", "", "charity id for donations")
	cmd.MarkFlagRequired("item")
	cmd.MarkFlagRequired("type")
	return cmd
}

func cartClearCmd(a *app, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every item from the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := a.token(flags)
			if err != nil {
				return err
			}
			_, err = a.rec.Do(cmd.Context(), "Clear cart", "clear-cart", fastkale.CallOptions{
				Method: http.MethodPost,
				Token:  token,
			})
			return err
		},
	}
}
