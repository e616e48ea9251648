package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/omigeot/server/internal/client"
)

func newAppsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "apps",
		Short: "List apps that have config values",
		Args:  cobra.NoArgs,
		RunE: o.run(func(ctx context.Context, c *client.Client, _ []string) error {
			apps, err := c.GetApps(ctx)
			if err != nil {
				return err
			}
			return o.printLines(apps)
		}),
	}
}

func newKeysCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "keys APP",
		Short: "List the keys set for an app",
		Args:  cobra.ExactArgs(1),
		RunE: o.run(func(ctx context.Context, c *client.Client, args []string) error {
			keys, err := c.GetKeys(ctx, args[0])
			if err != nil {
				return err
			}
			return o.printLines(keys)
		}),
	}
}

func newGetCmd(o *options) *cobra.Command {
	var def string
	cmd := &cobra.Command{
		Use:   "get APP KEY",
		Short: "Print a config value",
		Args:  cobra.ExactArgs(2),
		RunE: o.run(func(ctx context.Context, c *client.Client, args []string) error {
			v, err := c.GetValue(ctx, args[0], args[1], def)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(o.stdout, v)
			return err
		}),
	}
	cmd.Flags().StringVar(&def, "default", "", "value to print when the key is not set")
	return cmd
}

func newExistsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "exists APP KEY",
		Short: "Report whether a key is set",
		Args:  cobra.ExactArgs(2),
		RunE: o.run(func(ctx context.Context, c *client.Client, args []string) error {
			ok, err := c.HasKey(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(o.stdout, ok)
			return err
		}),
	}
}

func newSetCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "set APP KEY VALUE",
		Short: "Set a config value",
		Args:  cobra.ExactArgs(3),
		RunE: o.run(func(ctx context.Context, c *client.Client, args []string) error {
			return c.SetValue(ctx, args[0], args[1], args[2])
		}),
	}
}

func newDeleteCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete APP [KEY]",
		Short: "Delete one key, or every key of an app",
		Args:  cobra.RangeArgs(1, 2),
		RunE: o.run(func(ctx context.Context, c *client.Client, args []string) error {
			if len(args) == 2 {
				return c.DeleteKey(ctx, args[0], args[1])
			}
			return c.DeleteApp(ctx, args[0])
		}),
	}
}

func newCacheBusterCmd(o *options) *cobra.Command {
	buster := &cobra.Command{
		Use:   "cachebuster",
		Short: "Theming icon cache controls",
	}
	buster.AddCommand(&cobra.Command{
		Use:   "bump",
		Short: "Start a fresh icon cache folder",
		Args:  cobra.NoArgs,
		RunE: o.run(func(ctx context.Context, c *client.Client, _ []string) error {
			v, err := c.BumpCacheBuster(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(o.stdout, v)
			return err
		}),
	})
	return buster
}

func (o *options) printLines(lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(o.stdout, line); err != nil {
			return err
		}
	}
	return nil
}
