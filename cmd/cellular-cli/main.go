package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/agentuity/go-cellular/env"
	"github.com/agentuity/go-cellular/logger"
	"github.com/agentuity/go-cellular/session"
	"github.com/agentuity/go-cellular/sna"
	"github.com/agentuity/go-cellular/status"
	"github.com/agentuity/go-cellular/sys"
	"github.com/agentuity/go-cellular/tui"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

const serviceName = "cellular-cli"

var rootCmd = &cobra.Command{
	Use:           "cellular-cli",
	Short:         "Run HTTPS requests over a single network interface",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// errFailed makes main exit non-zero after the command already printed why.
var errFailed = errors.New("request failed")

func loadConfig(cmd *cobra.Command) (session.Config, error) {
	cfg := session.DefaultConfig()
	if path := env.FlagOrEnv(cmd, "config", env.EnvConfig, ""); path != "" {
		c, err := session.LoadConfig(path)
		if err != nil {
			return cfg, err
		}
		cfg = c
	}
	cfg.Interface = env.FlagOrEnv(cmd, "interface", env.EnvInterface, cfg.Interface)
	if cfg.Interface == "" {
		return cfg, errors.Newf("no interface, set --interface or %s", env.EnvInterface)
	}
	if v, _ := cmd.Flags().GetString("method"); v != "" {
		cfg.Method = v
	}
	if v, _ := cmd.Flags().GetString("ip-version"); v != "" {
		cfg.IPVersion = v
	}
	if v, _ := cmd.Flags().GetString("timeout"); v != "" {
		cfg.Timeout = v
	}
	if v, _ := cmd.Flags().GetString("ca-file"); v != "" {
		cfg.CAFile = v
	}
	if v, _ := cmd.Flags().GetBool("insecure"); v {
		cfg.InsecureSkipChainVerify = true
	}
	return cfg, cfg.Validate()
}

type app struct {
	ctx      context.Context
	log      logger.Logger
	cfg      session.Config
	executor *session.Executor
	close    func()
}

// verifyConfig sends SNA requests as POST unless --method says otherwise, matching what
// carriers expect from the verification endpoints.
func verifyConfig(cmd *cobra.Command, cfg session.Config) session.Config {
	if f := cmd.Flags().Lookup("method"); f == nil || !f.Changed {
		cfg.Method = sna.DefaultMethod
	}
	return cfg
}

func setup(cmd *cobra.Command, adjust func(*cobra.Command, session.Config) session.Config) (*app, error) {
	log := env.NewLogger(cmd)
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if adjust != nil {
		cfg = adjust(cmd, cfg)
	}
	ctx, cancel := sys.ShutdownContext(cmd.Context())
	tp, shutdown, err := env.NewTracerProvider(ctx, cmd, serviceName, log)
	if err != nil {
		cancel()
		return nil, err
	}
	opts := []session.Option{session.WithTracerProvider(tp)}
	if record, _ := cmd.Flags().GetBool("record"); record {
		opts = append(opts, session.WithRecording(64*1024))
	}
	exec, err := session.New(log, cfg, opts...)
	if err != nil {
		shutdown()
		cancel()
		return nil, err
	}
	return &app{
		ctx:      ctx,
		log:      log,
		cfg:      cfg,
		executor: exec,
		close: func() {
			shutdown()
			cancel()
		},
	}, nil
}

func printRecording(res session.Result) {
	if res.Log == "" {
		return
	}
	fmt.Fprintln(os.Stderr, tui.Title("Session "+res.SessionID))
	fmt.Fprint(os.Stderr, res.Log)
	if res.LogDropped > 0 {
		tui.ShowWarning(os.Stderr, "%d bytes of session log were dropped", res.LogDropped)
	}
}

// hopRecorder keeps the result of every hop the SNA processor fetches.
type hopRecorder struct {
	exec *session.Executor
	hops []session.Result
}

func (r *hopRecorder) ExecuteURL(ctx context.Context, rawURL string) session.Result {
	res := r.exec.ExecuteURL(ctx, rawURL)
	r.hops = append(r.hops, res)
	return res
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Fetch an https url over the interface and print the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := setup(cmd, nil)
		if err != nil {
			return err
		}
		defer rt.close()

		var result session.Result
		title := fmt.Sprintf("Fetching %s over %s", args[0], rt.cfg.Interface)
		if err := tui.ShowSpinner(rt.ctx, title, func() {
			result = rt.executor.ExecuteURL(rt.ctx, args[0])
		}); err != nil {
			return err
		}
		printRecording(result)

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
		} else {
			fmt.Println(tui.Fields(
				"Status", result.Status.String(),
				"Session", result.SessionID,
				"Duration", result.Duration.Round(time.Millisecond).String(),
			))
			if loc, ok := result.Redirect(); ok {
				fmt.Println(tui.Fields("Location", loc))
			} else if result.Payload != "" {
				fmt.Println()
				fmt.Println(result.Payload)
			}
		}
		if !result.OK() {
			return errFailed
		}
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <url>",
	Short: "Follow a silent network authentication url to its result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := setup(cmd, verifyConfig)
		if err != nil {
			return err
		}
		defer rt.close()

		redirects, _ := cmd.Flags().GetInt("max-redirects")
		hops := &hopRecorder{exec: rt.executor}
		processor := sna.NewProcessor(rt.log, hops, sna.WithMaxRedirects(redirects))
		verifier := sna.NewVerifier(rt.log, rt.cfg.Interface, sna.NewInterfaceMonitor(), processor)

		var verr error
		if err := tui.ShowSpinner(rt.ctx, "Verifying", func() {
			verr = verifier.ProcessURL(rt.ctx, args[0])
		}); err != nil {
			return err
		}
		for _, res := range hops.hops {
			printRecording(res)
		}

		if verr == nil {
			tui.ShowSuccess(os.Stdout, "Verified over %s", rt.cfg.Interface)
			return nil
		}
		var serr *sna.Error
		if errors.As(verr, &serr) {
			tui.ShowError(os.Stderr, "%s", serr.Description())
			fmt.Fprintln(os.Stderr, tui.Muted(serr.TechnicalError()))
		} else {
			tui.ShowError(os.Stderr, "%s", verr)
		}
		return errFailed
	},
}

var statusesCmd = &cobra.Command{
	Use:   "statuses",
	Short: "List every result status a request can end with",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, s := range status.All() {
			fmt.Printf("%3d  %s\n", int(s), s)
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "", "log level (trace, debug, info, warn, error), env "+logger.EnvLogLevel)
	flags.String("log-format", "", "log format (console or json), env "+env.EnvLogFormat)
	flags.String("config", "", "path to a YAML config file, env "+env.EnvConfig)
	flags.StringP("interface", "i", "", "network interface to bind to, env "+env.EnvInterface)
	flags.Bool("trace", false, "log OpenTelemetry spans, env "+env.EnvTrace)

	for _, cmd := range []*cobra.Command{fetchCmd, verifyCmd} {
		cmd.Flags().String("method", "", "GET or POST, verify defaults to POST")
		cmd.Flags().String("ip-version", "", "any, ipv4 or ipv6")
		cmd.Flags().String("timeout", "", "session timeout such as 30s")
		cmd.Flags().String("ca-file", "", "PEM bundle to trust instead of the system roots")
		cmd.Flags().Bool("insecure", false, "skip certificate chain verification, the hostname is still checked")
		cmd.Flags().Bool("record", false, "print the session log after the request")
	}
	fetchCmd.Flags().Bool("json", false, "print the result as JSON")
	verifyCmd.Flags().Int("max-redirects", sna.DefaultMaxRedirects, "redirects to follow before giving up")

	rootCmd.AddCommand(fetchCmd, verifyCmd, statusesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			tui.ShowError(os.Stderr, "%s", err)
		}
		os.Exit(1)
	}
}
