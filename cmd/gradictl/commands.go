package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/erazemk/gradilisce/internal/client"
	"github.com/erazemk/gradilisce/internal/model"
)

func parseInventoryType(s string) (model.InventoryType, error) {
	switch s {
	case "":
		return 0, nil
	case "1", "reusable":
		return model.InventoryReusable, nil
	case "2", "consumable":
		return model.InventoryConsumable, nil
	}
	return 0, fmt.Errorf("inventory type must be reusable or consumable, got %q", s)
}

func parseDecimal(name, s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q", name, s)
	}
	return &d, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func newInventoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "inventory", Short: "Site inventory"}

	var projectID, materialID int64
	var invType string
	list := &cobra.Command{
		Use:   "list",
		Short: "List inventory rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := parseInventoryType(invType)
			if err != nil {
				return err
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			items, err := c.ListSiteInventory(cmd.Context(), client.InventoryFilter{
				ProjectID:     projectID,
				MaterialID:    materialID,
				InventoryType: t,
			})
			if err != nil {
				return err
			}

			tw := table(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tPROJECT\tMATERIAL\tTYPE\tQUANTITY\tUNIT COST\tTOTAL")
			total := decimal.Zero
			for _, it := range items {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s %s\t%s\t%s\n",
					it.ID, it.ProjectName, it.MaterialName, it.InventoryType,
					it.Quantity, it.Unit, it.CostPerUnit.StringFixed(2), it.TotalPrice.StringFixed(2))
				total = total.Add(it.TotalPrice)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			a.out.Printf("%d rows, stock value %.2f\n", len(items), total.InexactFloat64())
			return nil
		},
	}
	list.Flags().Int64Var(&projectID, "project", 0, "only this project")
	list.Flags().Int64Var(&materialID, "material", 0, "only this material")
	list.Flags().StringVar(&invType, "type", "", "reusable or consumable")

	cmd.AddCommand(list)
	return cmd
}

func newTransfersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "transfers", Short: "Stock transfer requests"}
	cmd.AddCommand(newTransfersListCmd(a), newTransfersApproveCmd(a), newTransfersRejectCmd(a))
	return cmd
}

func newTransfersListCmd(a *app) *cobra.Command {
	var projectID int64
	var status, invType string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transfer requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := parseInventoryType(invType)
			if err != nil {
				return err
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			list, err := c.GetTransferRequests(cmd.Context(), client.TransferFilter{
				ProjectID:     projectID,
				InventoryType: t,
				Status:        status,
			})
			if err != nil {
				return err
			}

			tw := table(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tSTATUS\tMATERIAL\tQUANTITY\tFROM\tTO\tTOTAL")
			for _, tr := range list {
				total := "-"
				if tr.TotalPrice != nil {
					total = tr.TotalPrice.StringFixed(2)
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s %s\t%s\t%s\t%s\n",
					tr.ID, tr.Status, tr.MaterialName, tr.Quantity, tr.Unit,
					tr.FromProjectName, tr.ToProjectName, total)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			a.out.Printf("%d requests\n", len(list))
			return nil
		},
	}
	cmd.Flags().Int64Var(&projectID, "project", 0, "either end of the transfer")
	cmd.Flags().StringVar(&status, "status", "", "pending, approved or rejected")
	cmd.Flags().StringVar(&invType, "type", "", "reusable or consumable")
	return cmd
}

func newTransfersApproveCmd(a *app) *cobra.Command {
	var cost, quantity, total string
	cmd := &cobra.Command{
		Use:   "approve ID",
		Short: "Approve a pending transfer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			costPerUnit, err := parseDecimal("cost", cost)
			if err != nil {
				return err
			}
			if costPerUnit == nil {
				return fmt.Errorf("--cost is required")
			}
			qty, err := parseDecimal("quantity", quantity)
			if err != nil {
				return err
			}
			totalPrice, err := parseDecimal("total", total)
			if err != nil {
				return err
			}

			c, err := a.client()
			if err != nil {
				return err
			}
			approval := client.Approval{CostPerUnit: *costPerUnit, Quantity: qty, TotalPrice: totalPrice}
			if qty == nil {
				tr, err := c.GetTransferRequest(cmd.Context(), id)
				if err != nil {
					return err
				}
				approval = client.ApprovalFor(*tr, *costPerUnit)
				approval.TotalPrice = totalPrice
			}

			tr, err := c.ApproveTransferRequest(cmd.Context(), id, approval)
			if err != nil {
				return err
			}
			moved := tr.Quantity
			if tr.ApprovedQuantity != nil {
				moved = *tr.ApprovedQuantity
			}
			a.out.Printf("Transfer %d approved: %s %s of %s to %s", tr.ID, moved, tr.Unit, tr.MaterialName, tr.ToProjectName)
			if tr.TotalPrice != nil {
				a.out.Printf(" for %s", tr.TotalPrice.StringFixed(2))
			}
			a.out.Println()
			return nil
		},
	}
	cmd.Flags().StringVar(&cost, "cost", "", "cost per unit (required)")
	cmd.Flags().StringVar(&quantity, "quantity", "", "approve less than requested")
	cmd.Flags().StringVar(&total, "total", "", "total price (default quantity × cost)")
	return cmd
}

func newTransfersRejectCmd(a *app) *cobra.Command {
	var reason, audioPath, rejectionType string
	cmd := &cobra.Command{
		Use:   "reject ID",
		Short: "Reject a pending transfer with a reason, a recording, or both",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if reason == "" && audioPath == "" {
				return fmt.Errorf("--reason or --audio is required")
			}
			rej := client.Rejection{Reason: reason, Type: rejectionType}
			if audioPath != "" {
				f, err := os.Open(audioPath)
				if err != nil {
					return err
				}
				defer f.Close()
				rej.Audio = f
				rej.AudioName = filepath.Base(audioPath)
			}

			c, err := a.client()
			if err != nil {
				return err
			}
			tr, err := c.RejectTransferRequest(cmd.Context(), id, rej)
			if err != nil {
				return err
			}
			a.out.Printf("Transfer %d rejected (%s)\n", tr.ID, tr.RejectionType)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the transfer is rejected")
	cmd.Flags().StringVar(&audioPath, "audio", "", "voice note to attach")
	cmd.Flags().StringVar(&rejectionType, "type", "", "text, audio or both (default inferred)")
	return cmd
}

func newPastWorkCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "pastwork", Short: "Portfolio of finished projects"}

	var name, address string
	upload := &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload photos, videos and documents as one past project",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			key, err := c.StartPastWork(ctx)
			if err != nil {
				return err
			}
			for _, path := range args {
				if err := uploadFile(cmd, c, key, path); err != nil {
					return fmt.Errorf("%s: %s", path, client.ErrorMessage(err))
				}
			}

			p, err := c.CreatePastWork(ctx, key, name, address)
			if err != nil {
				return err
			}
			a.out.Printf("Past project %d %q created with %d files\n", p.ID, p.Name, len(p.Media))
			return nil
		},
	}
	upload.Flags().StringVar(&name, "name", "", "project name (required)")
	upload.Flags().StringVar(&address, "address", "", "project address")

	cmd.AddCommand(upload)
	return cmd
}

func uploadFile(cmd *cobra.Command, c *client.Client, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	m, err := c.UploadPastWorkFile(cmd.Context(), key, filepath.Base(path), f)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s as %s (%s)\n", path, m.Filename, m.Kind)
	return nil
}
