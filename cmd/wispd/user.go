package main

import (
	"fmt"

	"github.com/cloudwisp/wisp/pkg/api"
	"github.com/cloudwisp/wisp/pkg/client"
	"github.com/cloudwisp/wisp/pkg/manager"
	"github.com/cloudwisp/wisp/pkg/types"
	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Provision hotspot users across sites",
}

func printResult(result *types.FanoutResult) {
	fmt.Printf("%s: %d succeeded, %d failed (%s)\n",
		result.Operation, result.Succeeded(), result.Failed(), result.Duration)
	for _, o := range result.Outcomes {
		if o.Success {
			fmt.Printf("  ✓ %s\n", o.SiteID)
		} else {
			fmt.Printf("  ✗ %s: %s (%s)\n", o.SiteID, o.Error, o.Detail)
		}
	}
}

var userCreateCmd = &cobra.Command{
	Use:   "create USERNAME",
	Short: "Create a user on the given sites",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		download, _ := cmd.Flags().GetString("download")
		upload, _ := cmd.Flags().GetString("upload")
		siteIDs, _ := cmd.Flags().GetStringSlice("sites")

		ctx, cancel := cliContext()
		defer cancel()

		result, err := client.NewClient(managerAddr).Fanout(ctx, api.FanoutRequest{
			Operation: manager.OpCreateUser,
			SiteIDs:   siteIDs,
			Username:  args[0],
			Password:  password,
			Policy:    types.BandwidthPolicy{Download: download, Upload: upload},
		})
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	},
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete USERNAME",
	Short: "Delete a user from the given sites",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		siteIDs, _ := cmd.Flags().GetStringSlice("sites")

		ctx, cancel := cliContext()
		defer cancel()

		result, err := client.NewClient(managerAddr).Fanout(ctx, api.FanoutRequest{
			Operation: manager.OpDeleteUser,
			SiteIDs:   siteIDs,
			Username:  args[0],
		})
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	},
}

var userSyncCmd = &cobra.Command{
	Use:   "sync USERNAME",
	Short: "Ensure a user exists on every non-offline site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		download, _ := cmd.Flags().GetString("download")
		upload, _ := cmd.Flags().GetString("upload")

		ctx, cancel := cliContext()
		defer cancel()

		result, err := client.NewClient(managerAddr).SyncUser(ctx, args[0], password,
			types.BandwidthPolicy{Download: download, Upload: upload})
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	},
}

var bandwidthCmd = &cobra.Command{
	Use:   "bandwidth",
	Short: "Manage bandwidth policies",
}

var bandwidthSetCmd = &cobra.Command{
	Use:   "set USERNAME",
	Short: "Set a user's bandwidth policy on the given sites",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		download, _ := cmd.Flags().GetString("download")
		upload, _ := cmd.Flags().GetString("upload")
		siteIDs, _ := cmd.Flags().GetStringSlice("sites")

		ctx, cancel := cliContext()
		defer cancel()

		result, err := client.NewClient(managerAddr).Fanout(ctx, api.FanoutRequest{
			Operation: manager.OpSetBandwidth,
			SiteIDs:   siteIDs,
			Username:  args[0],
			Policy:    types.BandwidthPolicy{Download: download, Upload: upload},
		})
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage site-scoped management tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue SITE_ID",
	Short: "Issue a management token for a site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, _ := cmd.Flags().GetStringSlice("scope")

		ctx, cancel := cliContext()
		defer cancel()

		token, err := client.NewClient(managerAddr).IssueToken(ctx, args[0], scope)
		if err != nil {
			return err
		}

		fmt.Printf("✓ Token issued for site %s (expires %s)\n",
			token.SiteID, token.ExpiresAt.Format("2006-01-02"))
		fmt.Println(token.Secret)
		return nil
	},
}

func init() {
	userCreateCmd.Flags().String("password", "", "user password")
	userCreateCmd.Flags().String("download", "", "download limit (e.g. 10M)")
	userCreateCmd.Flags().String("upload", "", "upload limit (e.g. 2M)")
	userCreateCmd.Flags().StringSlice("sites", nil, "target site ids")
	_ = userCreateCmd.MarkFlagRequired("sites")

	userDeleteCmd.Flags().StringSlice("sites", nil, "target site ids")
	_ = userDeleteCmd.MarkFlagRequired("sites")

	userSyncCmd.Flags().String("password", "", "user password")
	userSyncCmd.Flags().String("download", "", "download limit")
	userSyncCmd.Flags().String("upload", "", "upload limit")

	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userDeleteCmd)
	userCmd.AddCommand(userSyncCmd)

	bandwidthSetCmd.Flags().String("download", "", "download limit (e.g. 10M)")
	bandwidthSetCmd.Flags().String("upload", "", "upload limit (e.g. 2M)")
	bandwidthSetCmd.Flags().StringSlice("sites", nil, "target site ids")
	_ = bandwidthSetCmd.MarkFlagRequired("sites")
	bandwidthCmd.AddCommand(bandwidthSetCmd)

	tokenIssueCmd.Flags().StringSlice("scope", []string{"read"}, "token scope")
	tokenCmd.AddCommand(tokenIssueCmd)
}
