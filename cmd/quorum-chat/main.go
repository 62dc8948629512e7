// Command quorum-chat is an interactive console for a small specialist team.
// It wires a coordinator to either the OpenAI or the Ollama backend, mirrors
// step progress onto a local broker topic, and renders answers as markdown.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/hyphalabs/quorum"
	"github.com/hyphalabs/quorum/broker"
	"github.com/hyphalabs/quorum/messages"
	"github.com/hyphalabs/quorum/pkg/slogx"
	"github.com/hyphalabs/quorum/pkg/stdx"
	"github.com/hyphalabs/quorum/provider"
	"github.com/hyphalabs/quorum/provider/ollama"
	"github.com/hyphalabs/quorum/provider/openai"
	"github.com/hyphalabs/quorum/recovery"
	"github.com/hyphalabs/quorum/specialist"
	_ "github.com/joho/godotenv/autoload"
	"github.com/k0kubun/pp/v3"
	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp}
	log = zerolog.New(output).With().Timestamp().Logger()
	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: slog.LevelWarn}),
	))
}

var glam = stdx.Must1(glamour.NewTermRenderer(
	glamour.WithAutoStyle(),
))

func main() {
	backend := flag.String("provider", "openai", "generation backend: openai or ollama")
	model := flag.String("model", "", "model name, empty for the backend default")
	debug := flag.Bool("debug", false, "log at debug level and dump trace summaries")
	flag.Parse()

	if *debug {
		slog.SetDefault(slog.New(
			zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: slog.LevelDebug}),
		))
	}

	prov, err := buildProvider(*backend, *model)
	if err != nil {
		slog.Error("failed to build provider", slogx.Error(err))
		os.Exit(1)
	}

	registerSpecialists()

	ctx := context.Background()
	topic := broker.Local().Topic(ctx, "chat")
	progress := &progressHook{}
	sub, err := topic.Subscribe(ctx, progress)
	if err != nil {
		slog.Error("failed to subscribe to progress topic", slogx.Error(err))
		os.Exit(1)
	}
	defer sub.Unsubscribe()

	co := quorum.New(
		quorum.WithProvider(prov),
		quorum.WithStepValidators(recovery.NotEmpty(), recovery.NoRefusal()),
		quorum.WithFallback("researcher", "writer"),
		quorum.WithHooks(broker.NewPublisher(topic)),
	)

	fmt.Println("quorum chat, type 'exit' to quit")

	var history []provider.Message
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Split(bufio.ScanLines)
	for {
		fmt.Printf("%s: ", color.CyanString("User"))
		if !scanner.Scan() {
			fmt.Println("Exiting...")
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if strings.EqualFold(input, "exit") {
			break
		}

		answer := co.Handle(ctx, input, history)
		history = append(history,
			provider.Message{Role: provider.RoleUser, Content: input},
			provider.Message{Role: provider.RoleAssistant, Content: answer},
		)

		rendered, rerr := glam.Render(answer)
		if rerr != nil {
			rendered = answer
		}
		fmt.Fprint(os.Stdout, color.MagentaString("Assistant")+": ")
		fmt.Fprintln(os.Stdout, rendered)

		if *debug {
			for _, traceID := range progress.drain() {
				pp.Println(co.Trace().Summary(traceID))
			}
		}
	}
}

func buildProvider(backend, model string) (provider.Provider, error) {
	switch backend {
	case "openai":
		return openai.New(model), nil
	case "ollama":
		return ollama.New(model)
	default:
		return nil, fmt.Errorf("unknown provider %q, want openai or ollama", backend)
	}
}

func registerSpecialists() {
	specialist.Register(specialist.New(
		specialist.Name("researcher"),
		specialist.Description("digs up facts, background, and evidence on any topic"),
		specialist.Instructions("You are a meticulous researcher. Gather the relevant facts for the task and present them as a concise, sourced summary."),
	))
	specialist.Register(specialist.New(
		specialist.Name("writer"),
		specialist.Description("turns material into clear, well-structured prose"),
		specialist.Instructions("You are a skilled writer. Turn the task and any provided material into clear, engaging prose for a general audience."),
	))
	specialist.Register(specialist.New(
		specialist.Name("critic"),
		specialist.Description("reviews drafts for errors, gaps, and unclear reasoning"),
		specialist.Instructions("You are a sharp but constructive critic. Point out concrete errors, gaps, and unclear passages, and suggest fixes."),
	))
}

// progressHook prints step progress to stderr as events arrive on the topic
// and remembers which traces it saw, for the debug summary dump.
type progressHook struct {
	mu     sync.Mutex
	traces []uuid.UUID
}

func (h *progressHook) OnStepStart(_ context.Context, msg messages.TaskMessage) {
	h.remember(msg.TraceID)
	fmt.Fprintf(os.Stderr, "%s %s: %s\n", color.CyanString("→"), msg.To, snippet(msg.Instruction))
}

func (h *progressHook) OnStepEnd(_ context.Context, result messages.AgentResult) {
	icon := color.GreenString("✓")
	if result.Failed() {
		icon = color.RedString("✗")
	}
	fmt.Fprintf(os.Stderr, "%s %s [%s] %s\n", icon, result.From, result.Status, result.Duration.Round(time.Millisecond))
}

func (h *progressHook) OnError(_ context.Context, err error) {
	fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("✗"), err)
}

func (h *progressHook) remember(traceID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range h.traces {
		if id == traceID {
			return
		}
	}
	h.traces = append(h.traces, traceID)
}

// drain returns the trace ids seen since the last call.
func (h *progressHook) drain() []uuid.UUID {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := h.traces
	h.traces = nil
	return ids
}

func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > 60 {
		return text[:57] + "..."
	}
	return text
}
