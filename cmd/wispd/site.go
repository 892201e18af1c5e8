package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwisp/wisp/pkg/client"
	"github.com/cloudwisp/wisp/pkg/types"
	"github.com/spf13/cobra"
)

func cliContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

var siteCmd = &cobra.Command{
	Use:   "site",
	Short: "Manage sites",
}

var siteRegisterCmd = &cobra.Command{
	Use:   "register NAME",
	Short: "Register a new site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		host, _ := cmd.Flags().GetString("host")
		port, _ := cmd.Flags().GetInt("port")
		username, _ := cmd.Flags().GetString("username")
		password, _ := cmd.Flags().GetString("password")
		location, _ := cmd.Flags().GetString("location")
		parent, _ := cmd.Flags().GetString("parent")

		ctx, cancel := cliContext()
		defer cancel()

		c := client.NewClient(managerAddr)
		site, err := c.RegisterSite(ctx, &types.Site{
			Name:        args[0],
			Location:    location,
			Kind:        types.SiteKind(kind),
			Endpoint:    types.Endpoint{Host: host, Port: port},
			Credentials: types.Credentials{Username: username, Password: password},
			ParentID:    parent,
		})
		if err != nil {
			return err
		}

		fmt.Printf("✓ Site %s registered as %s\n", site.Name, site.ID)
		return nil
	},
}

var siteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered sites",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cliContext()
		defer cancel()

		sites, err := client.NewClient(managerAddr).ListSites(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("%-38s %-20s %-8s %-22s %-8s\n", "ID", "NAME", "KIND", "ENDPOINT", "STATUS")
		for _, site := range sites {
			fmt.Printf("%-38s %-20s %-8s %-22s %-8s\n",
				site.ID, site.Name, site.Kind, site.Endpoint, site.Status)
		}
		return nil
	},
}

var siteRemoveCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Remove a site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cliContext()
		defer cancel()

		if err := client.NewClient(managerAddr).RemoveSite(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("✓ Site %s removed\n", args[0])
		return nil
	},
}

var siteMirrorCmd = &cobra.Command{
	Use:   "mirror ID",
	Short: "Show the registry's mirror of a site's users",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cliContext()
		defer cancel()

		users, err := client.NewClient(managerAddr).SiteMirror(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("%-20s %-12s %-12s %-25s\n", "USERNAME", "DOWNLOAD", "UPLOAD", "SYNCED")
		for _, u := range users {
			fmt.Printf("%-20s %-12s %-12s %-25s\n",
				u.Username, u.Policy.Download, u.Policy.Upload,
				u.SyncedAt.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	siteRegisterCmd.Flags().String("kind", "remote", "site kind: local or remote")
	siteRegisterCmd.Flags().String("host", "", "controller host")
	siteRegisterCmd.Flags().Int("port", 80, "controller port")
	siteRegisterCmd.Flags().String("username", "admin", "controller username")
	siteRegisterCmd.Flags().String("password", "", "controller password")
	siteRegisterCmd.Flags().String("location", "", "human-readable location")
	siteRegisterCmd.Flags().String("parent", "", "parent site id")
	_ = siteRegisterCmd.MarkFlagRequired("host")

	siteCmd.AddCommand(siteRegisterCmd)
	siteCmd.AddCommand(siteListCmd)
	siteCmd.AddCommand(siteRemoveCmd)
	siteCmd.AddCommand(siteMirrorCmd)
}
