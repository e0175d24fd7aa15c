package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	cfgPkg "github.com/xhad/docchat/pkg/config"
	"github.com/xhad/docchat/pkg/logging"
)

type Flags struct {
	ConfigPath  string
	Addr        string
	PDF         string
	URL         string
	Out         string
	Sample      bool
	Model       string
	Stream      bool
	Temperature float64
	MaxTokens   int
	LogLevel    string
}

func main() {
	flags, set := parseFlags()

	config, err := cfgPkg.LoadConfig(flags.ConfigPath)
	if err != nil {
		logrus.Fatal(err)
	}
	flags.apply(config, set)

	if err := logging.Setup(os.Stderr, config.Logging.Level, config.Logging.Format); err != nil {
		logrus.Fatal(err)
	}
	for _, ve := range config.Validate() {
		log.WithField("field", ve.Field).Warn(ve.Message)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, config)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize")
	}
	defer a.Close()

	if flags.PDF != "" || flags.URL != "" || flags.Sample {
		err = runCLI(ctx, a, flags)
	} else {
		err = a.server.Run(ctx)
	}
	if err != nil {
		log.WithError(err).Fatal("Exiting")
	}
}

// parseFlags returns the parsed flags and the names of those set explicitly.
func parseFlags() (Flags, map[string]bool) {
	var flags Flags

	flag.StringVar(&flags.ConfigPath, "config", "", "Path to config file")
	flag.StringVar(&flags.Addr, "addr", "", "Address to listen on (serve mode)")
	flag.StringVar(&flags.PDF, "pdf", "", "PDF file to parse and chat about")
	flag.StringVar(&flags.URL, "url", "", "URL of a PDF to parse and chat about")
	flag.StringVar(&flags.Out, "out", "", "Directory to write the parsed document to")
	flag.BoolVar(&flags.Sample, "sample", false, "Use the sample document instead of calling OCR")
	flag.StringVar(&flags.Model, "model", "", "Chat model to use")
	flag.BoolVar(&flags.Stream, "stream", true, "Enable streaming responses")
	flag.Float64Var(&flags.Temperature, "temperature", 0.7, "Set the LLM temperature")
	flag.IntVar(&flags.MaxTokens, "max-tokens", 2000, "Maximum tokens for LLM response")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.Parse()

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return flags, set
}

// apply overrides config values with flags given on the command line.
func (f *Flags) apply(config *cfgPkg.Config, set map[string]bool) {
	if set["addr"] {
		config.Server.Addr = f.Addr
	}
	if set["model"] {
		config.LLM.Model = f.Model
	}
	if set["temperature"] {
		config.LLM.Temperature = f.Temperature
	}
	if set["max-tokens"] {
		config.LLM.MaxTokens = f.MaxTokens
	}
	if set["log-level"] {
		config.Logging.Level = f.LogLevel
	}
	if set["stream"] {
		config.UI.Streaming = f.Stream
	}
	f.Stream = config.UI.Streaming
}
