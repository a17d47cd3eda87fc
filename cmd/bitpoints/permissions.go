package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/srg/bitpoints/internal/coordinator"
	"github.com/srg/bitpoints/internal/ecash"
	"github.com/srg/bitpoints/internal/platform"
)

// permissionsCmd represents the permissions command
var permissionsCmd = &cobra.Command{
	Use:   "permissions",
	Short: "List runtime permissions the wallet asks for",
	Long: `List the runtime permissions the wallet shell and the BluetoothEcash plugin
request on a given API level, together with the request code each prompt uses.`,
	Example: `  bitpoints permissions --sdk 30
  bitpoints permissions --format json`,
	Args: cobra.NoArgs,
	RunE: runPermissions,
}

var (
	permissionsSDK    int
	permissionsFormat string
)

func init() {
	permissionsCmd.Flags().IntVar(&permissionsSDK, "sdk", 0, "API level (0 uses the config value)")
	permissionsCmd.Flags().StringVarP(&permissionsFormat, "format", "f", "table", "Output format (table, json)")
}

type permissionEntry struct {
	Permission  string `json:"permission"`
	RequestCode int    `json:"request_code"`
	RequestedBy string `json:"requested_by"`
}

func requestedPermissions(sdk platform.Version) []permissionEntry {
	entries := []permissionEntry{{
		Permission:  platform.PermissionCamera,
		RequestCode: coordinator.CameraPermissionRequest,
		RequestedBy: "MainActivity",
	}}
	for _, perm := range ecash.RequiredPermissions(sdk) {
		entries = append(entries, permissionEntry{
			Permission:  perm,
			RequestCode: ecash.PermissionRequestCode,
			RequestedBy: ecash.PluginName,
		})
	}
	return entries
}

func runPermissions(cmd *cobra.Command, args []string) error {
	if err := validateFormat(permissionsFormat); err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	sdk := platform.Version(cfg.SDKVersion)
	if permissionsSDK > 0 {
		sdk = platform.Version(permissionsSDK)
	}
	entries := requestedPermissions(sdk)

	out := cmd.OutOrStdout()
	if permissionsFormat == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(entries)
	}
	return displayPermissionsTable(out, sdk, entries)
}

func displayPermissionsTable(out io.Writer, sdk platform.Version, entries []permissionEntry) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "API level %d\n\n", int(sdk))
	fmt.Fprintln(w, "PERMISSION\tREQUEST CODE\tREQUESTED BY")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%d\t%s\n", e.Permission, e.RequestCode, e.RequestedBy)
	}
	return w.Flush()
}
