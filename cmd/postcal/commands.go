package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"postcal/internal/calendar"
	"postcal/internal/ics"
	"postcal/internal/metrics"
	"postcal/internal/pipeline"
	"postcal/internal/web"
)

var listenFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig()
		if err != nil {
			return err
		}
		// --listen overrides config file listen if provided.
		if listenFlag != "" {
			conf.Listen = listenFlag
		}

		m := metrics.New()
		orch, err := newOrchestrator(conf, m)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()
		return web.NewServer(conf, orch, m, debugMode).Serve(ctx)
	},
}

var urlCmd = &cobra.Command{
	Use:   "url <post-url>",
	Short: "Convert a post URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(func(o *pipeline.Orchestrator) (pipeline.Result, error) {
			ctx, cancel := signalContext()
			defer cancel()
			return o.FromURL(ctx, args[0])
		})
	},
}

var textCmd = &cobra.Command{
	Use:   "text <text...>",
	Short: "Convert free text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(func(o *pipeline.Orchestrator) (pipeline.Result, error) {
			ctx, cancel := signalContext()
			defer cancel()
			return o.FromText(ctx, strings.Join(args, " "))
		})
	},
}

var imageCmd = &cobra.Command{
	Use:   "image <path>",
	Short: "Convert a flyer or screenshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		return runOnce(func(o *pipeline.Orchestrator) (pipeline.Result, error) {
			ctx, cancel := signalContext()
			defer cancel()
			return o.FromImage(ctx, data)
		})
	},
}

var icsCheckCmd = &cobra.Command{
	Use:   "ics-check <file.ics>",
	Short: "Parse an .ics file and print its first event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		ev, err := ics.Decode(body)
		if err != nil {
			return err
		}
		return printJSON(ev)
	},
}

var icsOut string

func init() {
	serveCmd.Flags().StringVar(&listenFlag, "listen", "", "HTTP listen address (overrides config if set)")
	for _, c := range []*cobra.Command{urlCmd, textCmd, imageCmd} {
		c.Flags().StringVar(&icsOut, "ics", "", "Also write the .ics file to this path")
	}
}

func runOnce(run func(o *pipeline.Orchestrator) (pipeline.Result, error)) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	orch, err := newOrchestrator(conf, nil)
	if err != nil {
		return err
	}

	res, err := run(orch)
	if err != nil {
		return err
	}

	if icsOut != "" {
		if err := os.WriteFile(icsOut, []byte(res.Artifacts.Apple), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", icsOut, err)
		}
	}
	return printJSON(struct {
		pipeline.Result
		AppleDataURL string `json:"apple_data_url"`
	}{res, calendar.AppleDataURL(res.Artifacts.Apple)})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
