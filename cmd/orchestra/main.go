// Command orchestra is the reference front-end for the multi-agent
// orchestrator: a REPL that turns each line of input into one pipeline
// run, streaming phase markers and provider chunks to the terminal.
//
// It is illustrative only; the CLI surface it exposes is not part of the
// core engine, but it exercises the full stack: session creation,
// provider routing, the coordinator FSM, and the tool registry.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/arcway-dev/orchestra/internal/coordinatorfsm"
	"github.com/arcway-dev/orchestra/internal/domain"
	"github.com/arcway-dev/orchestra/internal/idutil"
	"github.com/arcway-dev/orchestra/internal/logging"
	"github.com/arcway-dev/orchestra/internal/pipeline"
	"github.com/arcway-dev/orchestra/internal/provider"
	"github.com/arcway-dev/orchestra/internal/registry"
	"github.com/arcway-dev/orchestra/internal/session"
)

var (
	cyan   = color.New(color.FgCyan).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

func main() {
	var (
		cwd         string
		crafterCmd  string
		workspaceID string
	)

	root := &cobra.Command{
		Use:   "orchestra [working-directory]",
		Short: "Run the multi-agent coordinator/implementor/verifier pipeline interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				cwd = args[0]
			}
			if cwd == "" {
				if wd, err := os.Getwd(); err == nil {
					cwd = wd
				}
			}
			if workspaceID == "" {
				workspaceID = idutil.New("ws")
			}
			return runREPL(cwd, crafterCmd, workspaceID)
		},
	}

	root.Flags().StringVar(&cwd, "cwd", "", "working directory handed to host tool operations (defaults to the current directory, or the positional argument)")
	root.Flags().StringVar(&crafterCmd, "crafter", "", "external agent binary to spawn for every role; omitted means a canned in-process stub is used")
	root.Flags().StringVar(&workspaceID, "workspace", "", "workspace id shared by every agent and task this run creates (default: a generated id)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red("fatal: "+err.Error()))
		os.Exit(1)
	}
}

func buildRouter(crafterCmd, cwd string, logger logging.Logger) *provider.Router {
	router := provider.NewRouter()

	comboCaps := provider.ProviderCapabilities{
		Name:                "orchestra-crafter",
		SupportsStreaming:   true,
		SupportsInterrupt:   true,
		SupportsHealthCheck: true,
		SupportsFileEditing: true,
		SupportsTerminal:    true,
		SupportsToolCalling: true,
		MaxConcurrentAgents: 4,
		Priority:            10,
	}

	if crafterCmd == "" {
		router.Register(provider.NewStubProvider(comboCaps,
			"@@@task\n# Describe the change\n## Objective\nNo --crafter binary configured; this is a canned stub plan.\n## Definition of Done\n- Replace the stub provider with --crafter to drive a real agent\n@@@"))
		return router
	}

	router.Register(provider.NewProcessProvider(provider.ProcessProviderConfig{
		Command: crafterCmd,
		Cwd:     cwd,
	}, comboCaps, logger))
	return router
}

func runREPL(cwd, crafterCmd, workspaceID string) error {
	logger := logging.NewComponentLogger("orchestra")

	router := buildRouter(crafterCmd, cwd, logger)
	manager := session.NewManager(session.WithLogger(logger))
	defer manager.Close()

	onPhase := func(p pipeline.Phase) { printPhase(p) }
	onChunk := func(c provider.StreamChunk) { printChunk(c) }

	sessionID := idutil.New("sess")
	sess := session.CreateSession(manager, sessionID, workspaceID, "orchestra-crafter", router, onPhase, onChunk)

	sess.FSM.OnStateChange(func(change coordinatorfsm.StateChange) {
		fmt.Fprintf(os.Stdout, "%s %s -> %s%s\n", gray("[fsm]"), change.Previous, change.Current,
			optionalMessage(change.Message))
	})

	reg := registry.New(sess.Tools)
	for _, role := range []domain.AgentRole{domain.RoleCoordinator, domain.RoleImplementor, domain.RoleVerifier} {
		logger.Info("tool surface for %s: %d tools", role, len(reg.ForRole(role)))
	}

	fmt.Fprintf(os.Stdout, "%s workspace=%s session=%s cwd=%s\n", cyan("orchestra"), workspaceID, sessionID, cwd)
	fmt.Fprintln(os.Stdout, gray("Type a request and press enter. Type quit or exit to leave."))

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Fprint(os.Stdout, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			fmt.Fprint(os.Stdout, "> ")
			continue
		case line == "quit" || line == "exit":
			return nil
		}

		sess.PipelineCtx.Request = line
		result := sess.Pipeline.Execute(context.Background(), sess.PipelineCtx)
		printResult(result)

		if result.Kind == pipeline.ResultError {
			fmt.Fprint(os.Stdout, "> ")
			continue
		}
		fmt.Fprint(os.Stdout, "> ")
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return nil
}

func optionalMessage(msg string) string {
	if msg == "" {
		return ""
	}
	return " (" + msg + ")"
}

func printPhase(p pipeline.Phase) {
	switch p.Kind {
	case pipeline.PhasePlanning:
		fmt.Fprintln(os.Stdout, yellow("planning..."))
	case pipeline.PhasePlanReady:
		fmt.Fprintln(os.Stdout, yellow("plan ready"))
	case pipeline.PhaseTasksRegistered:
		fmt.Fprintf(os.Stdout, "%s %d task(s) registered\n", yellow("tasks:"), p.Count)
	case pipeline.PhaseCrafterRunning:
		fmt.Fprintf(os.Stdout, "%s %s running\n", cyan("crafter:"), p.TaskID)
	case pipeline.PhaseCrafterCompleted:
		fmt.Fprintf(os.Stdout, "%s %s completed\n", cyan("crafter:"), p.TaskID)
	case pipeline.PhaseVerificationStarting:
		fmt.Fprintf(os.Stdout, "%s wave %d starting\n", cyan("verify:"), p.Wave)
	case pipeline.PhaseVerificationCompleted:
		fmt.Fprintln(os.Stdout, cyan("verify: completed"))
	case pipeline.PhaseNeedsFix:
		fmt.Fprintf(os.Stdout, "%s wave %d needs fix\n", yellow("verify:"), p.Wave)
	case pipeline.PhaseCompleted:
		fmt.Fprintln(os.Stdout, green("pipeline completed"))
	case pipeline.PhaseMaxWavesReached:
		fmt.Fprintf(os.Stdout, "%s %d wave(s)\n", yellow("max waves reached:"), p.Wave)
	}
}

func printChunk(c provider.StreamChunk) {
	switch c.Kind {
	case provider.ChunkText:
		fmt.Fprint(os.Stdout, c.Text)
	case provider.ChunkError:
		fmt.Fprintln(os.Stdout, red("error: "+c.ErrText))
	case provider.ChunkToolCall:
		fmt.Fprintf(os.Stdout, "%s %s [%s]\n", gray("tool:"), c.ToolCallName, c.ToolCallStatus)
	}
}

func printResult(result pipeline.OrchestratorResult) {
	switch result.Kind {
	case pipeline.ResultSuccess:
		fmt.Fprintf(os.Stdout, "%s %d task(s)\n", green("result: success"), len(result.TaskSummaries))
	case pipeline.ResultNoTasks:
		fmt.Fprintln(os.Stdout, yellow("result: no tasks"))
	case pipeline.ResultMaxWavesReached:
		fmt.Fprintf(os.Stdout, "%s after %d wave(s)\n", yellow("result: max waves reached"), result.Waves)
	case pipeline.ResultError:
		fmt.Fprintf(os.Stdout, "%s stage=%s: %v\n", red("result: error"), result.Stage, result.Err)
	}
}
