package commands

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/raine/telegram-fastkale-bot/internal/fastkale"
	"github.com/raine/telegram-fastkale-bot/internal/scanflow"
)

func scanCmd(a *app, flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <image>...",
		Short: "Upload 1 to 5 photos to scan-item",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := a.token(flags)
			if err != nil {
				return err
			}
			candidates, err := scanflow.LoadImageFiles(args)
			if err != nil {
				return err
			}
			images, rejected := scanflow.SelectImages(candidates)
			for _, r := range rejected {
				fmt.Fprintf(a.out, "Skipping %s: %s\n", r.Name, r.Reason)
			}
			if len(images) == 0 {
				return scanflow.ErrNoImages
			}

			files := make([]fastkale.FormFile, len(images))
			for i, img := range images {
				files[i] = fastkale.FormFile{Field: "images", Name: img.Name, ContentType: img.MimeType, Data: img.Data}
			}
			_, err = a.rec.Do(cmd.Context(), "Scan item", "scan-item", fastkale.CallOptions{
				Method: http.MethodPost,
				Token:  token,
				Files:  files,
			})
			return err
		},
	}
	return cmd
}

func confirmCmd(a *app, flags *rootFlags) *cobra.Command {
	var req fastkale.ConfirmRequest
	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Confirm category, condition and attributes of a scanned item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := a.token(flags)
			if err != nil {
				return err
			}
			if req.Attributes == nil {
				req.Attributes = map[string]string{}
			}
			_, err = a.rec.Do(cmd.Context(), "Confirm item", "confirm-item", fastkale.CallOptions{
				Method: http.MethodPost,
				Token:  token,
				Body:   req,
			})
			return err
		},
	}
	cmd.Flags().StringVar(&req.ItemID, "item", "", "item id from scan")
	cmd.Flags().StringVar(&req.CategoryID, "category", "", "category id")
	cmd.Flags().StringVar(&req.Condition, "condition", scanflow.DefaultCondition, "item condition")
	cmd.Flags().StringToStringVar(&req.Attributes, "attr", nil, "attribute as name=value, repeatable")
	cmd.Flags().BoolVar(&req.ManuallyVerified, "verified", false, "mark as manually verified")
	cmd.MarkFlagRequired("item")
	return cmd
}

func priceCmd(a *app, flags *rootFlags) *cobra.Command {
	var itemID string
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Get the price estimate of a confirmed item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := a.token(flags)
			if err != nil {
				return err
			}
			_, err = a.rec.Do(cmd.Context(), "Get eBay price", "get-ebay-price", fastkale.CallOptions{
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

func overrideCmd(a *app, flags *rootFlags) *cobra.Command {
	var (
		itemID string
		price  float64
		reason string
	)
	cmd := &cobra.Command{
		Use:   "override",
		Short: "Set the price of an item by hand",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if price <= 0 {
				return fmt.Errorf("--price must be greater than 0")
			}
			token, err := a.token(flags)
			if err != nil {
				return err
			}
			body := map[string]any{"item_id": itemID, "manual_price": price}
			if reason != "" {
				body["reason"] = reason
			}
			_, err = a.rec.Do(cmd.Context(), "Manual price override", "manual-price-override", fastkale.CallOptions{
				Method: http.MethodPost,
				Token:  token,
				Body:   body,
			})
			return err
		},
	}
	cmd.Flags().StringVar(&itemID, "item", "", "item id")
	cmd.Flags().Float64Var(&price, "price", 0, "price in dollars")
	cmd.Flags().StringVar(&reason, "reason", "", "why the price was overridden")
	cmd.MarkFlagRequired("item")
	cmd.MarkFlagRequired("price")
	return cmd
}
