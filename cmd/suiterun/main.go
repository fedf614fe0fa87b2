// Command suiterun runs a project's test domains, each in its own
// process under its own settings, and reports one aggregate result.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/deixis/suiterun"
	"github.com/deixis/suiterun/internal/config"
	"github.com/deixis/suiterun/internal/console"
	"github.com/deixis/suiterun/internal/exitcodes"
	srmcp "github.com/deixis/suiterun/internal/mcp"
	"github.com/deixis/suiterun/internal/orchestrator"
	"github.com/deixis/suiterun/internal/profile"
	"github.com/deixis/suiterun/internal/report"
	"github.com/deixis/suiterun/internal/suite"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("suiterun: ")

	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches a sub-command and returns the process exit code.
func run(argv []string, stdout, stderr io.Writer) int {
	cmd := "run"
	args := argv
	if len(argv) > 0 && !strings.HasPrefix(argv[0], "-") {
		cmd, args = argv[0], argv[1:]
	}

	var err error
	switch cmd {
	case "run":
		return runMain(args, stdout, stderr)
	case "list":
		err = listMain(args, stdout)
	case "inspect":
		err = inspectMain(args, stdout)
	case "mcp":
		err = mcpMain(args)
	case "version":
		fmt.Fprintln(stdout, suiterun.Version)
	case "help", "-h", "--help":
		usage(stderr)
	default:
		fmt.Fprintf(stderr, "suiterun: unknown command %q\n", cmd)
		usage(stderr)
		return exitcodes.OrchestrationErr
	}

	if err != nil {
		log.Print(err)
		return exitcodes.OrchestrationErr
	}
	return exitcodes.Success
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `Usage: suiterun [command] [flags]

Commands:
  run         Run every configured test domain (default)
  list        List configured domains and their commands
  inspect     Show captured output of a saved run
  mcp         Start the MCP server
  version     Print the version
  help        Show this help

Use "suiterun <command> -h" for command-specific flags.`)
}

// --- run ---

func runMain(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFlag := fs.String("config", "", "path to the config file (default: .suiterun at the repository root)")
	domainFlag := fs.String("domain", "", "run only this domain")
	var timeoutFlag config.Seconds
	fs.Var(&timeoutFlag, "timeout", "timeout for every domain in seconds or as a duration (e.g. 90, 5m); overrides the config file")
	failFastFlag := fs.Bool("fail-fast", false, "stop at the first failing domain")
	parallelFlag := fs.Int("parallel", 0, "run up to N domains at once (output is not streamed)")
	jsonFlag := fs.Bool("json", false, "print the report as JSON on stdout; progress goes to stderr")
	verboseFlag := fs.Bool("v", false, "print captured output of failing domains in the summary")
	noColorFlag := fs.Bool("no-color", false, "disable coloured output")
	if err := fs.Parse(args); err != nil {
		return exitcodes.OrchestrationErr
	}
	if fs.NArg() > 0 {
		log.Printf("unexpected arguments: %v", fs.Args())
		return exitcodes.OrchestrationErr
	}

	loaded, err := loadConfig(*configFlag)
	if err != nil {
		log.Print(err)
		return exitcodes.OrchestrationErr
	}
	cfg := loaded.Config

	reg, err := cfg.Registry()
	if err != nil {
		log.Printf("config: %v", err)
		return exitcodes.OrchestrationErr
	}
	if *domainFlag != "" {
		reg, err = reg.Select(*domainFlag)
		if err != nil {
			log.Print(err)
			return exitcodes.OrchestrationErr
		}
	}

	progress := stdout
	if *jsonFlag {
		progress = stderr
	}

	sr := suite.New(cfg, loaded.RepoRoot)
	sr.Timeout = time.Duration(timeoutFlag)

	parallel := cfg.ParallelLimit()
	if *parallelFlag > 0 {
		parallel = *parallelFlag
	}
	if parallel <= 1 {
		// One domain at a time: stream its output live under its banner.
		sr.Stream = progress
	}

	con := console.New(progress)
	con.Verbose = *verboseFlag
	con.NoColor = *noColorFlag || *jsonFlag

	o := &orchestrator.Orchestrator{
		Runner:   sr,
		Reporter: con,
		FailFast: *failFastFlag || cfg.FailFast,
		Parallel: parallel,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := o.RunAll(ctx, reg)
	if err != nil && !errors.Is(err, orchestrator.ErrAborted) {
		log.Print(err)
		return exitcodes.OrchestrationErr
	}
	if err != nil {
		log.Print(err)
	}

	store := report.NewDiskStore(cfg.ResultsDirectory(loaded.RepoRoot))
	if saveErr := store.Save(rep); saveErr != nil {
		log.Printf("saving report: %v", saveErr)
	} else {
		fmt.Fprintf(progress, "Run: %s\n", rep.ID)
	}

	if *jsonFlag {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			log.Print(err)
		}
	}

	if !rep.OK() {
		return exitcodes.Failure
	}
	return exitcodes.Success
}

// --- list ---

func listMain(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configFlag := fs.String("config", "", "path to the config file")
	_ = fs.Parse(args)

	loaded, err := loadConfig(*configFlag)
	if err != nil {
		return err
	}
	reg, err := loaded.Config.Registry()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if reg.Len() == 0 {
		return orchestrator.ErrEmptyRegistry
	}

	sr := suite.New(loaded.Config, loaded.RepoRoot)
	console.WriteDomains(stdout, reg.List(), func(d profile.Domain) string {
		inv, err := sr.Resolve(d)
		if err != nil {
			return "error: " + err.Error()
		}
		return inv.String()
	})
	return nil
}

// --- inspect ---

func inspectMain(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	configFlag := fs.String("config", "", "path to the config file")
	domainFlag := fs.String("domain", "", "show only this domain")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("usage: suiterun inspect [-domain name] <run-id|latest>")
	}

	loaded, err := loadConfig(*configFlag)
	if err != nil {
		return err
	}
	store := report.NewDiskStore(loaded.Config.ResultsDirectory(loaded.RepoRoot))

	var rep *report.Report
	if id := fs.Arg(0); id == "latest" {
		rep, err = store.Latest()
	} else {
		rep, err = store.Load(id)
	}
	if err != nil {
		return err
	}

	results := rep.Results
	if *domainFlag != "" {
		res, ok := rep.Result(*domainFlag)
		if !ok {
			return fmt.Errorf("run %s has no result for domain %q", rep.ID, *domainFlag)
		}
		results = []*report.RunResult{res}
	}
	fmt.Fprint(stdout, console.FormatInspect(rep, results))
	return nil
}

// --- mcp ---

func mcpMain(args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	instructions := fs.Bool("instructions", false, "print model instructions and exit")
	httpAddr := fs.String("http", "", "start HTTP server on address (e.g. :9090)")
	configFlag := fs.String("config", "", "path to the config file")
	_ = fs.Parse(args)

	if *instructions {
		fmt.Print(srmcp.Instructions)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	loaded, err := loadConfig(*configFlag)
	if err != nil {
		return err
	}

	store, err := report.NewCachedStore(16, report.NewDiskStore(loaded.Config.ResultsDirectory(loaded.RepoRoot)))
	if err != nil {
		return fmt.Errorf("creating report cache: %w", err)
	}
	defer store.Close()

	server := srmcp.NewServer(loaded.Config, store, loaded.RepoRoot)

	if *httpAddr != "" {
		return serveHTTP(ctx, server, *httpAddr)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, server *mcpsdk.Server, addr string) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	log.Printf("listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// --- shared ---

func loadConfig(path string) (*config.LoadResult, error) {
	if path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return loaded, nil
	}

	workspace, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("determining workspace: %w", err)
	}
	loaded, err := config.Load(workspace)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return loaded, nil
}
