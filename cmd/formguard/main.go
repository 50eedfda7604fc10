package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	flag "github.com/spf13/pflag"

	"github.com/networked-ai/formguard"
	"github.com/networked-ai/formguard/availability"
	"github.com/networked-ai/formguard/availability/remote"
	"github.com/networked-ai/formguard/formspec"
	"github.com/networked-ai/formguard/i18n"
	"github.com/networked-ai/formguard/internal/config"
	"github.com/networked-ai/formguard/internal/jsonbody"
	"github.com/networked-ai/formguard/internal/logger"
	"github.com/networked-ai/formguard/internal/server"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	sub := os.Args[1]
	switch sub {
	case "check":
		checkCmd(os.Args[2:])
	case "lint":
		lintCmd(os.Args[2:])
	case "serve":
		serveCmd(os.Args[2:])
	case "-h", "--help", "help":
		usage()
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "formguard CLI\n\nUsage:\n  formguard check --form form.yaml --values values.json [--config cfg.yaml] [--submit] [--lang en|ja]\n  formguard lint --form form.yaml\n  formguard serve --form signup.yaml [--form login.yaml] [--config cfg.yaml] [--addr :8080]\n\nNotes:\n  - check exits with status 1 when the submission gate rejects the values.\n  - Availability checks call {availability.base_url}/users/check-availability.")
}

type checkOptions struct {
	configFile string
	formFile   string
	valuesFile string
	submit     bool
	lang       string
}

func checkCmd(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	var o checkOptions
	fs.StringVarP(&o.configFile, "config", "c", "", "configuration file (yaml, json or toml)")
	fs.StringVarP(&o.formFile, "form", "f", "", "form definition file")
	fs.StringVar(&o.valuesFile, "values", "", "JSON file with the submitted values (- for stdin)")
	fs.BoolVar(&o.submit, "submit", false, "also run checks declared with checkOnSubmit")
	fs.StringVar(&o.lang, "lang", "", "message language (en, ja)")
	_ = fs.Parse(args)
	if o.formFile == "" || o.valuesFile == "" {
		fs.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ok, err := runCheck(ctx, o, os.Stdout)
	if err != nil {
		fatalf("check: %v", err)
	}
	if !ok {
		stop()
		os.Exit(1)
	}
}

type report struct {
	OK     bool          `json:"ok"`
	Issues []reportIssue `json:"issues"`
}

type reportIssue struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func runCheck(ctx context.Context, o checkOptions, out io.Writer) (bool, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return false, err
	}
	log, err := logger.New(cfg.Logger.Level)
	if err != nil {
		return false, err
	}
	if o.lang != "" {
		i18n.SetLanguage(o.lang)
	}
	form, err := formspec.LoadFile(o.formFile)
	if err != nil {
		return false, err
	}
	values, err := readValues(o.valuesFile)
	if err != nil {
		return false, err
	}

	rec := formguard.NewRecord(formguard.WithContext(ctx))
	defer rec.Close()
	built, err := form.Build(formspec.BuildOptions{
		Record:       rec,
		Resolve:      resolver(cfg.Availability, log),
		Availability: availabilityOptions(cfg.Availability, log),
	})
	if err != nil {
		return false, err
	}
	rec.Patch(values)
	if o.submit {
		built.Trigger.Arm()
	}

	gate := formguard.NewGate(
		formguard.WithGateTimeout(cfg.Gate.Timeout()),
		formguard.WithGateLogger(log),
	)
	ok := gate.ValidateFields(ctx, rec, built.Names...)
	log.Debugw("gate evaluated", "form", form.Name, "ok", ok, "submit", o.submit)

	r := report{OK: ok, Issues: []reportIssue{}}
	iss, _ := formguard.AsIssues(rec.Err())
	for _, it := range iss {
		r.Issues = append(r.Issues, reportIssue{Path: it.Path, Code: it.Code, Message: it.Message})
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return false, fmt.Errorf("write report: %w", err)
	}
	return ok, nil
}

func readValues(path string) (map[string]any, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read values: %w", err)
	}
	values, err := jsonbody.DecodeObject(data)
	if err != nil {
		return nil, fmt.Errorf("decode values: %w", err)
	}
	return values, nil
}

// resolver maps the kinds a form declares to checks against the configured
// endpoint. One client is shared by every check and built on first use, so
// forms without availability blocks need no base URL.
func resolver(cfg *config.ConfigAvailability, log logger.Logger) formspec.CheckResolver {
	var (
		once   sync.Once
		client *remote.Client
	)
	return func(kind string) (availability.CheckFunc, error) {
		k := remote.Kind(kind)
		switch k {
		case remote.KindUsername, remote.KindEmail, remote.KindMobile:
		default:
			return nil, fmt.Errorf("unsupported availability kind %q", kind)
		}
		if cfg.BaseURL == "" {
			return nil, errors.New("availability.base_url is not configured")
		}
		once.Do(func() {
			opts := []remote.Option{
				remote.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout()}),
				remote.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
				remote.WithLogger(log),
			}
			if cfg.AuthorizationHdr != "" {
				opts = append(opts, remote.WithHeader("Authorization", cfg.AuthorizationHdr))
			}
			client = remote.New(cfg.BaseURL, opts...)
		})
		return client.CheckFunc(k), nil
	}
}

func availabilityOptions(cfg *config.ConfigAvailability, log logger.Logger) []availability.Option {
	debounce := cfg.Debounce()
	if debounce == 0 {
		// zero in the file means "no debounce", not the library default
		debounce = -1
	}
	opts := []availability.Option{
		availability.WithDebounce(debounce),
		availability.WithLogger(log),
	}
	if cfg.ReportFailures {
		opts = append(opts, availability.WithCheckFailed())
	}
	return opts
}

func serveCmd(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var configFile, addr string
	var formFiles []string
	fs.StringVarP(&configFile, "config", "c", "", "configuration file (yaml, json or toml)")
	fs.StringArrayVarP(&formFiles, "form", "f", nil, "form definition file (repeatable)")
	fs.StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	_ = fs.Parse(args)
	if len(formFiles) == 0 {
		fs.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		fatalf("serve: %v", err)
	}
	log, err := logger.New(cfg.Logger.Level)
	if err != nil {
		fatalf("serve: %v", err)
	}
	if addr == "" {
		addr = cfg.Server.Addr
	}
	forms := make([]*formspec.Form, 0, len(formFiles))
	for _, p := range formFiles {
		f, err := formspec.LoadFile(p)
		if err != nil {
			fatalf("serve: %v", err)
		}
		forms = append(forms, f)
	}

	srv, err := server.New(forms, server.Options{
		Addr:         addr,
		AllowOrigins: cfg.Server.AllowOrigins,
		MaxBody:      cfg.Server.MaxBodyBytes,
		Gate: formguard.NewGate(
			formguard.WithGateTimeout(cfg.Gate.Timeout()),
			formguard.WithGateLogger(log),
		),
		Build: formspec.BuildOptions{
			Resolve:      resolver(cfg.Availability, log),
			Availability: availabilityOptions(cfg.Availability, log),
		},
		Logger: log,
	})
	if err != nil {
		fatalf("serve: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := srv.Run(ctx); err != nil {
		stop()
		fatalf("serve: %v", err)
	}
}

func lintCmd(args []string) {
	fs := flag.NewFlagSet("lint", flag.ExitOnError)
	var formFile string
	fs.StringVarP(&formFile, "form", "f", "", "form definition file")
	_ = fs.Parse(args)
	if formFile == "" {
		fs.Usage()
		os.Exit(2)
	}
	form, err := formspec.LoadFile(formFile)
	if err != nil {
		fatalf("lint: %v", err)
	}
	printTree(os.Stdout, form)
}

func printTree(w io.Writer, form *formspec.Form) {
	fmt.Fprintf(w, "form %s\n", form.Name)
	printDefs(w, form.Fields, 1)
}

func printDefs(w io.Writer, defs []formspec.FieldDef, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, d := range defs {
		var flags []string
		if d.Disabled {
			flags = append(flags, "disabled")
		}
		if d.IsGroup() {
			fmt.Fprintf(w, "%s%s/ %s\n", indent, d.Name, strings.Join(flags, " "))
			printDefs(w, d.Fields, depth+1)
			continue
		}
		for _, r := range d.Rules {
			if r.Arg != nil {
				flags = append(flags, fmt.Sprintf("%s=%v", r.Name, r.Arg))
			} else {
				flags = append(flags, r.Name)
			}
		}
		if a := d.Availability; a != nil {
			s := "availability:" + a.Kind
			if a.CheckExistence {
				s += ",existence"
			}
			if a.CheckOnSubmit {
				s += ",onSubmit"
			}
			flags = append(flags, s)
		}
		fmt.Fprintf(w, "%s%s %s\n", indent, d.Name, strings.Join(flags, " "))
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
