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
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hupe1980/agentgraph"
	"github.com/hupe1980/agentgraph/agent"
	"github.com/hupe1980/agentgraph/config"
	"github.com/hupe1980/agentgraph/feature"
	"github.com/hupe1980/agentgraph/feature/metrics"
	"github.com/hupe1980/agentgraph/feature/tokenizer"
	"github.com/hupe1980/agentgraph/feature/tracing"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/model/anthropic"
	"github.com/hupe1980/agentgraph/model/openai"
	"github.com/hupe1980/agentgraph/server"
	"github.com/hupe1980/agentgraph/tool"
)

// AgentFlags are shared by commands that build an agent.
type AgentFlags struct {
	Config   string  `short:"c" required:"" type:"existingfile" help:"Agent configuration file"`
	Parallel bool    `help:"Execute all tool calls of a model turn as one batch"`
	RPS      float64 `name:"rps" help:"Maximum model requests per second (0 disables throttling)"`
	Tiktoken bool    `help:"Count tokens with the tiktoken encoding of the configured model"`
	Strategy string  `enum:"single-run,plan-execute,deliberate" default:"single-run" help:"Agent strategy (${enum})"`
}

// RunCmd executes a single run.
type RunCmd struct {
	AgentFlags

	Input  []string `arg:"" help:"Run input; multiple arguments are joined with spaces"`
	Stream bool     `help:"Print lifecycle events while the run executes"`
	Usage  bool     `help:"Print token usage after the run"`

	In  io.Reader `kong:"-"`
	Out io.Writer `kong:"-"`
}

// ServeCmd serves an agent over A2A.
type ServeCmd struct {
	AgentFlags

	Addr            string        `default:":8080" help:"Listen address"`
	MetricsPath     string        `default:"/metrics" help:"Path of the Prometheus endpoint"`
	ShutdownTimeout time.Duration `default:"10s" help:"Grace period for in-flight requests on shutdown"`
}

// ValidateCmd validates a configuration file.
type ValidateCmd struct {
	Config string `arg:"" type:"existingfile" help:"Agent configuration file"`

	Out io.Writer `kong:"-"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

// Run implements the version command.
func (c *VersionCmd) Run() error {
	fmt.Printf("agentgraph %s\n", version)
	return nil
}

// Run implements the validate command.
func (c *ValidateCmd) Run() error {
	if _, err := config.Load(c.Config); err != nil {
		return err
	}

	fmt.Fprintf(writerOr(c.Out), "%s: ok\n", c.Config)

	return nil
}

// Run implements the run command.
func (c *RunCmd) Run() error {
	out := writerOr(c.Out)

	file, err := config.Load(c.Config)
	if err != nil {
		return err
	}

	in := c.In
	if in == nil {
		in = os.Stdin
	}

	a, err := c.build(file, out, agent.ConsoleClarifier(in, out))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	input := strings.Join(c.Input, " ")

	var res string

	if c.Stream {
		stream := a.RunStream(ctx, input)
		for ev := range stream.Events() {
			fmt.Fprintf(out, "[%s]\n", ev.EventName())
		}

		r, err := stream.Wait()
		if err != nil {
			return err
		}

		res = r.Output
	} else {
		res, err = a.Run(ctx, input)
		if err != nil {
			return err
		}
	}

	fmt.Fprintln(out, res)

	if c.Usage {
		if inst, ok := a.Feature(tokenizer.Key); ok {
			u := inst.(*tokenizer.Counter).Total()
			fmt.Fprintf(out, "tokens: prompt=%d completion=%d total=%d calls=%d\n", u.PromptTokens, u.CompletionTokens, u.Total(), u.Calls)
		}
	}

	return nil
}

// Run implements the serve command.
func (c *ServeCmd) Run() error {
	file, err := config.Load(c.Config)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()

	a, err := c.build(file, io.Discard, nil, metrics.Use(func(m *metrics.Config) {
		m.Registerer = registry
	}))
	if err != nil {
		return err
	}

	logger := logging.NewLogger(file.LoggerConfig())

	mux := http.NewServeMux()
	mux.Handle(c.MetricsPath, metrics.Handler(registry))
	mux.Handle("/", server.NewHandler(server.NewExecutor(a, func(o *server.Options) {
		o.Logger = logger
	})))

	srv := &http.Server{
		Addr:              c.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)

	go func() {
		logger.Info("serve.started", "addr", c.Addr, "agent_id", a.ID())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("serve.stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// build creates the agent described by file. Model output addressed to the
// user through the say-to-user tool is written to out. The deliberate
// strategy asks clarification questions through clarifier when it is set.
func (f AgentFlags) build(file *config.File, out io.Writer, clarifier agent.Clarifier, extra ...feature.Installer) (*agentgraph.Agent, error) {
	executor, err := newExecutor(file)
	if err != nil {
		return nil, err
	}

	if f.RPS > 0 {
		executor = model.NewRateLimitedExecutor(executor, rate.Limit(f.RPS), 1)
	}

	var counter tokenizer.Tokenizer = tokenizer.Whitespace{}

	if f.Tiktoken {
		tk, err := tokenizer.NewTiktoken(file.Model.ID)
		if err != nil {
			return nil, fmt.Errorf("tokenizer: %w", err)
		}

		counter = tk
	}

	mode := agent.ToolCallsSequential
	if f.Parallel {
		mode = agent.ToolCallsParallel
	}

	features := append([]feature.Installer{
		tracing.Use(),
		tokenizer.Use(func(c *tokenizer.Config) { c.Tokenizer = counter }),
	}, extra...)

	return agentgraph.NewFromConfig(file, f.strategy(mode, clarifier), executor, func(o *agentgraph.Options) {
		o.Tools = tool.MustRegistry(tool.SayToUser(out), tool.Exit())
		o.Features = features
	})
}

func (f AgentFlags) strategy(mode agent.ToolCallsMode, clarifier agent.Clarifier) *agent.Strategy {
	switch f.Strategy {
	case "plan-execute":
		return agent.PlanAndExecuteStrategy(mode)
	case "deliberate":
		return agent.DeliberateStrategy(clarifier, nil)
	default:
		return agent.SingleRunStrategy(mode)
	}
}

// newExecutor picks the provider executor. Model id, temperature and token
// limits travel with every request through the prompt and the LLModel.
func newExecutor(file *config.File) (model.PromptExecutor, error) {
	switch model.Provider(file.Model.Provider) {
	case model.ProviderOpenAI:
		return openai.NewExecutor(), nil
	case model.ProviderAnthropic:
		return anthropic.NewExecutor(func(o *anthropic.Options) {
			o.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}), nil
	case model.ProviderMock:
		return model.NewMockExecutor().SetDefault("mock response"), nil
	default:
		return nil, fmt.Errorf("model.provider: unsupported provider %q", file.Model.Provider)
	}
}

func writerOr(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}

	return w
}
