package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/bitpoints/internal/ecash"
	"github.com/srg/bitpoints/internal/exemption"
	"github.com/srg/bitpoints/internal/metrics"
	"github.com/srg/bitpoints/internal/platform"
	"github.com/srg/bitpoints/internal/shell"
	"github.com/srg/bitpoints/internal/signalbus"
	"golang.org/x/term"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulated activity session",
	Long: `Launch the main activity on a simulated device, emit battery optimization
exemption requests, optionally recreate the activity and prompt for permissions,
then finish the activity and report what happened.

Each activity lifetime receives --emit requests from the BluetoothEcash plugin and
--external requests from another application. After the activity finishes one
more request is published; no receiver may be left to handle it.`,
	Example: `  bitpoints run --sdk 34 --emit 3 --recreate 2
  bitpoints run --sdk 22 --camera grant --format json`,
	RunE: runSession,
}

var (
	runSDK       int
	runEmit      int
	runExternal  int
	runRecreate  int
	runCamera    string
	runBluetooth string
	runFormat    string
	runMetrics   bool
)

func init() {
	runCmd.Flags().IntVar(&runSDK, "sdk", 0, "API level to simulate (0 uses the config value)")
	runCmd.Flags().IntVarP(&runEmit, "emit", "e", 1, "Exemption requests emitted by the plugin per activity lifetime")
	runCmd.Flags().IntVar(&runExternal, "external", 0, "Exemption requests emitted by another application per activity lifetime")
	runCmd.Flags().IntVarP(&runRecreate, "recreate", "r", 0, "Number of configuration-change recreations")
	runCmd.Flags().StringVar(&runCamera, "camera", "skip", "Camera prompt outcome (grant, deny, skip)")
	runCmd.Flags().StringVar(&runBluetooth, "bluetooth", "skip", "Bluetooth prompt outcome (grant, deny, skip)")
	runCmd.Flags().StringVarP(&runFormat, "format", "f", "table", "Output format (table, json)")
	runCmd.Flags().BoolVar(&runMetrics, "metrics", false, "Include process metrics in the report")
}

// sessionSummary is what a run reports.
type sessionSummary struct {
	AppID               string `json:"app_id"`
	SDK                 int    `json:"sdk"`
	Signal              string `json:"signal"`
	Launches            int    `json:"launches"`
	Emitted             int    `json:"emitted"`
	External            int    `json:"external"`
	Delivered           int64  `json:"delivered"`
	SettingsOpened      int    `json:"settings_opened"`
	PostFinishReceivers int    `json:"post_finish_receivers"`
	Camera              string `json:"camera"`
	Bluetooth           string `json:"bluetooth"`

	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// Leaked reports whether a receiver survived its activity.
func (s *sessionSummary) Leaked() bool {
	return s.PostFinishReceivers > 0
}

type sessionConfig struct {
	appID       string
	packageName string
	sdk         platform.Version
	emit        int
	external    int
	recreate    int
	camera      string
	bluetooth   string
}

func parseOutcome(flag, value string) (platform.PermissionState, bool, error) {
	switch value {
	case "grant":
		return platform.Granted, true, nil
	case "deny":
		return platform.Denied, true, nil
	case "skip", "":
		return platform.Denied, false, nil
	default:
		return platform.Denied, false, fmt.Errorf("%w '%s' for --%s: must be one of [grant deny skip]", ErrInvalidOutcome, value, flag)
	}
}

func validateFormat(format string) error {
	validFormats := []string{"table", "json"}
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("%w '%s': must be one of %v", ErrInvalidFormat, format, validFormats)
}

func runSession(cmd *cobra.Command, args []string) error {
	if err := validateFormat(runFormat); err != nil {
		return err
	}
	if _, _, err := parseOutcome("camera", runCamera); err != nil {
		return err
	}
	if _, _, err := parseOutcome("bluetooth", runBluetooth); err != nil {
		return err
	}
	if runEmit < 0 || runExternal < 0 || runRecreate < 0 {
		return fmt.Errorf("--emit, --external and --recreate must not be negative")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	sc := sessionConfig{
		appID:       cfg.AppID,
		packageName: cfg.Package(),
		sdk:         platform.Version(cfg.SDKVersion),
		emit:        runEmit,
		external:    runExternal,
		recreate:    runRecreate,
		camera:      runCamera,
		bluetooth:   runBluetooth,
	}
	if runSDK > 0 {
		sc.sdk = platform.Version(runSDK)
	}

	summary, err := simulateSession(cmd.Context(), sc, logger)
	if err != nil {
		return err
	}
	if runMetrics {
		if summary.Metrics, err = collectMetrics(prometheus.DefaultGatherer); err != nil {
			return fmt.Errorf("failed to gather metrics: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	switch runFormat {
	case "json":
		return displaySummaryJSON(out, summary)
	default:
		return displaySummaryTable(out, summary)
	}
}

// simulateSession boots a runtime and walks it through every activity
// lifetime the config asks for.
func simulateSession(ctx context.Context, sc sessionConfig, logger *logrus.Logger) (*sessionSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	rt := shell.NewRuntime(shell.RuntimeOptions{
		AppID:       sc.appID,
		PackageName: sc.packageName,
		SDK:         sc.sdk,
		Logger:      logger,
	})
	defer rt.Shutdown()

	cameraOutcome, promptCamera, _ := parseOutcome("camera", sc.camera)
	if promptCamera {
		rt.OS.SetPromptOutcome(platform.PermissionCamera, cameraOutcome)
	}
	bluetoothOutcome, promptBluetooth, _ := parseOutcome("bluetooth", sc.bluetooth)
	if promptBluetooth {
		for _, perm := range ecash.RequiredPermissions(sc.sdk) {
			rt.OS.SetPromptOutcome(perm, bluetoothOutcome)
		}
	}

	signal := exemption.RequestSignal(sc.appID)
	summary := &sessionSummary{
		AppID:     sc.appID,
		SDK:       int(sc.sdk),
		Signal:    signal,
		Camera:    "not requested",
		Bluetooth: "not requested",
	}

	if err := rt.Launch(); err != nil {
		return nil, err
	}

	for lifetime := 0; lifetime <= sc.recreate; lifetime++ {
		if lifetime > 0 {
			if err := rt.Recreate(); err != nil {
				return nil, err
			}
		}
		activity := rt.Activity()
		if activity == nil {
			return nil, shell.ErrNoActivity
		}

		if sc.emit > 0 {
			plugin, err := rt.EcashPlugin()
			if err != nil {
				return nil, err
			}
			for i := 0; i < sc.emit; i++ {
				if _, err := plugin.RequestBatteryOptimizationExemption(ctx); err != nil {
					return nil, err
				}
			}
			plugin.Wait()
			summary.Emitted += sc.emit
		}
		for i := 0; i < sc.external; i++ {
			rt.Bus.PublishFrom(signalbus.OriginExternal, signal)
		}
		summary.External += sc.external

		if sub := activity.Coordinator().Subscription(); sub != nil {
			summary.Delivered += sub.Delivered()
		}
	}

	activity := rt.Activity()
	if promptBluetooth {
		plugin, err := rt.EcashPlugin()
		if err != nil {
			return nil, err
		}
		if _, err := plugin.RequestPermissions(rt.OS); err != nil {
			return nil, err
		}
		rt.OS.Wait()
		summary.Bluetooth = grantLabel(plugin.HasRequiredPermissions())
	}
	if promptCamera {
		activity.Coordinator().RequestCameraPermission()
		rt.OS.Wait()
		summary.Camera = grantLabel(activity.Coordinator().CheckCameraPermission())
	}

	rt.Finish()
	summary.Launches = rt.Launches()
	summary.SettingsOpened = len(rt.OS.Intents())
	summary.PostFinishReceivers = rt.Bus.Publish(signal)

	return summary, nil
}

func grantLabel(granted bool) string {
	if granted {
		return "granted"
	}
	return "denied"
}

// colorsEnabled reports whether w is a terminal.
func colorsEnabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func displaySummaryTable(out io.Writer, s *sessionSummary) error {
	statusColor, status := color.New(color.FgGreen, color.Bold), "OK"
	if s.Leaked() {
		statusColor, status = color.New(color.FgRed, color.Bold), "LEAK"
	}
	if !colorsEnabled(out) {
		statusColor.DisableColor()
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FIELD\tVALUE")
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "App ID\t%s\n", s.AppID)
	fmt.Fprintf(w, "API level\t%d\n", s.SDK)
	fmt.Fprintf(w, "Signal\t%s\n", s.Signal)
	fmt.Fprintf(w, "Activity launches\t%d\n", s.Launches)
	fmt.Fprintf(w, "Requests emitted\t%d\n", s.Emitted)
	fmt.Fprintf(w, "External requests\t%d\n", s.External)
	fmt.Fprintf(w, "Requests delivered\t%d\n", s.Delivered)
	fmt.Fprintf(w, "Settings screens opened\t%d\n", s.SettingsOpened)
	fmt.Fprintf(w, "Camera permission\t%s\n", s.Camera)
	fmt.Fprintf(w, "Bluetooth permissions\t%s\n", s.Bluetooth)
	fmt.Fprintf(w, "Receivers after finish\t%d (%s)\n", s.PostFinishReceivers, statusColor.Sprint(status))

	if len(s.Metrics) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "METRIC\tVALUE")
		fmt.Fprintln(w, strings.Repeat("-", 60))
		names := make([]string, 0, len(s.Metrics))
		for name := range s.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "%s\t%g\n", name, s.Metrics[name])
		}
	}
	return w.Flush()
}

// collectMetrics flattens the shell's counters and gauges into "name{labels}" keys.
func collectMetrics(g prometheus.Gatherer) (map[string]float64, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64)
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), metrics.Namespace+"_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			key := mf.GetName()
			if len(labels) > 0 {
				key += "{" + strings.Join(labels, ",") + "}"
			}
			if m.GetGauge() != nil {
				out[key] = m.GetGauge().GetValue()
			} else {
				out[key] = m.GetCounter().GetValue()
			}
		}
	}
	return out, nil
}

func displaySummaryJSON(out io.Writer, s *sessionSummary) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(s)
}
