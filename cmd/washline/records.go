package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bft-labs/washline/pkg/washline"
)

func newTable(cmd *cobra.Command) *tabwriter.Writer {
	return tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
}

// pendingNote marks rows that only exist locally so far.
func pendingNote(id string) string {
	if washline.IsTemporaryID(id) {
		return " (queued)"
	}
	return ""
}

func optional(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func newCustomerCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "customer", Short: "Manage customers"}

	var in washline.CustomerInput
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a customer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *washline.App) error {
				cu, err := app.Customers().Create(ctx, in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "customer %s %s%s\n", cu.Code, cu.ID, pendingNote(cu.ID))
				return nil
			})
		},
	}
	add.Flags().StringVar(&in.Code, "code", "", "unique customer code")
	add.Flags().StringVar(&in.Name, "name", "", "customer name")
	add.Flags().StringVar(&in.Email, "email", "", "email address")
	add.Flags().StringVar(&in.Phone, "phone", "", "phone number")
	add.Flags().StringVar(&in.Address, "address", "", "postal address")
	_ = add.MarkFlagRequired("code")
	_ = add.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:     "list [query]",
		Aliases: []string{"search"},
		Short:   "List customers, optionally filtered by a search query",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *washline.App) error {
				customers := app.Customers().List()
				if len(args) == 1 {
					customers = app.Customers().Search(args[0])
				}
				w := newTable(cmd)
				fmt.Fprintln(w, "CODE\tNAME\tPHONE\tPACKAGES\tID")
				for _, cu := range customers {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s%s\n",
						cu.Code, cu.Name, optional(cu.Phone), app.Packages().CountByCustomer(cu.ID), cu.ID, pendingNote(cu.ID))
				}
				return w.Flush()
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <code>",
		Short: "Delete a customer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *washline.App) error {
				id := args[0]
				if cu, ok := app.Customers().GetByCode(args[0]); ok {
					id = cu.ID
				}
				return app.Customers().Delete(ctx, id)
			})
		},
	}

	cmd.AddCommand(add, list, del)
	return cmd
}

func newPackageCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "package", Short: "Manage packages"}

	var (
		customer string
		in       washline.PackageInput
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Receive a package from a customer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *washline.App) error {
				in.CustomerID = customer
				if cu, ok := app.Customers().GetByCode(customer); ok {
					in.CustomerID = cu.ID
				}
				p, err := app.Packages().Create(ctx, in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "package %s %s%s\n", p.Barcode, p.ID, pendingNote(p.ID))
				return nil
			})
		},
	}
	add.Flags().StringVar(&customer, "customer", "", "customer code or id")
	add.Flags().StringVar(&in.ProductName, "product", "", "product name")
	add.Flags().IntVar(&in.Quantity, "quantity", 1, "number of items")
	add.Flags().StringVar(&in.Barcode, "barcode", "", "barcode (generated when empty)")
	_ = add.MarkFlagRequired("customer")
	_ = add.MarkFlagRequired("product")

	var pendingOnly bool
	list := &cobra.Command{
		Use:   "list [query]",
		Short: "List packages, optionally filtered by a search query",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *washline.App) error {
				packages := app.Packages().List()
				switch {
				case len(args) == 1:
					packages = app.Packages().Search(args[0])
				case pendingOnly:
					packages = app.Packages().ListPending()
				}
				w := newTable(cmd)
				fmt.Fprintln(w, "BARCODE\tPRODUCT\tQTY\tSTATUS\tCONTAINER\tID")
				for _, p := range packages {
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s%s\n",
						p.Barcode, p.ProductName, p.Quantity, p.Status, optional(p.ContainerID), p.ID, pendingNote(p.ID))
				}
				return w.Flush()
			})
		},
	}
	list.Flags().BoolVar(&pendingOnly, "pending", false, "only packages not yet shipped")

	assign := &cobra.Command{
		Use:   "assign <barcode> <container-number>",
		Short: "Load a package into an active container",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *washline.App) error {
				id := args[0]
				if p, ok := app.Packages().GetByBarcode(args[0]); ok {
					id = p.ID
				}
				containerID := args[1]
				if ct, ok := app.Containers().GetByNumber(args[1]); ok {
					containerID = ct.ID
				}
				_, err := app.Packages().AssignToContainer(ctx, id, containerID)
				return err
			})
		},
	}

	cmd.AddCommand(add, list, assign)
	return cmd
}

func newContainerCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "container", Short: "Manage containers"}

	open := &cobra.Command{
		Use:   "open",
		Short: "Open a new container",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *washline.App) error {
				ct, err := app.Containers().Open(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "container %s %s%s\n", ct.ContainerNumber, ct.ID, pendingNote(ct.ID))
				return nil
			})
		},
	}

	complete := &cobra.Command{
		Use:   "complete <container-number>",
		Short: "Close a container and ship its packages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *washline.App) error {
				id := args[0]
				if ct, ok := app.Containers().GetByNumber(args[0]); ok {
					id = ct.ID
				}
				ct, err := app.Containers().Complete(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "container %s completed with %d packages\n", ct.ContainerNumber, ct.PackageCount)
				return nil
			})
		},
	}

	var activeOnly bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List containers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *washline.App) error {
				containers := app.Containers().List()
				if activeOnly {
					containers = app.Containers().Active()
				}
				w := newTable(cmd)
				fmt.Fprintln(w, "NUMBER\tSTATUS\tPACKAGES\tID")
				for _, ct := range containers {
					fmt.Fprintf(w, "%s\t%s\t%d\t%s%s\n", ct.ContainerNumber, ct.Status, ct.PackageCount, ct.ID, pendingNote(ct.ID))
				}
				return w.Flush()
			})
		},
	}
	list.Flags().BoolVar(&activeOnly, "active", false, "only containers still loading")

	cmd.AddCommand(open, complete, list)
	return cmd
}

func newStockCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "stock", Short: "Manage stock items"}

	var (
		in     washline.StockInput
		minQty int
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Track a new stock item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("min-quantity") {
				in.MinQuantity = &minQty
			}
			return c.withApp(cmd, func(ctx context.Context, app *washline.App) error {
				s, err := app.Stock().Create(ctx, in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stock %s %s%s\n", s.ProductName, s.ID, pendingNote(s.ID))
				return nil
			})
		},
	}
	add.Flags().StringVar(&in.ProductName, "product", "", "product name")
	add.Flags().StringVar(&in.ProductCode, "code", "", "product code")
	add.Flags().IntVar(&in.Quantity, "quantity", 0, "quantity on hand")
	add.Flags().IntVar(&minQty, "min-quantity", 0, "low-stock threshold")
	_ = add.MarkFlagRequired("product")

	adjust := func(use, short string, apply func(context.Context, *washline.App, string, int) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <id> <quantity>",
			Short: short,
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				qty, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("invalid quantity %q", args[1])
				}
				return c.withApp(cmd, func(ctx context.Context, app *washline.App) error {
					return apply(ctx, app, args[0], qty)
				})
			},
		}
	}
	increase := adjust("increase", "Add to the quantity on hand", func(ctx context.Context, app *washline.App, id string, qty int) error {
		_, err := app.Stock().AddStock(ctx, id, qty)
		return err
	})
	reduce := adjust("reduce", "Take from the quantity on hand", func(ctx context.Context, app *washline.App, id string, qty int) error {
		_, err := app.Stock().ReduceStock(ctx, id, qty)
		return err
	})

	var lowOnly bool
	list := &cobra.Command{
		Use:   "list [query]",
		Short: "List stock items",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *washline.App) error {
				items := app.Stock().List()
				switch {
				case len(args) == 1:
					items = app.Stock().Search(args[0])
				case lowOnly:
					items = app.Stock().LowStock()
				}
				return printStock(cmd, items)
			})
		},
	}
	list.Flags().BoolVar(&lowOnly, "low", false, "only items at or below their threshold")

	low := &cobra.Command{
		Use:   "low",
		Short: "List items at or below their low-stock threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *washline.App) error {
				return printStock(cmd, app.Stock().LowStock())
			})
		},
	}

	cmd.AddCommand(add, increase, reduce, list, low)
	return cmd
}

func printStock(cmd *cobra.Command, items []washline.StockItem) error {
	w := newTable(cmd)
	fmt.Fprintln(w, "PRODUCT\tCODE\tQTY\tMIN\tID")
	for _, s := range items {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s%s\n",
			s.ProductName, optional(s.ProductCode), s.Quantity, s.MinQuantity, s.ID, pendingNote(s.ID))
	}
	return w.Flush()
}
