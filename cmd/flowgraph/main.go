package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/eleven-am/flowgraph"
	"github.com/eleven-am/flowgraph/internal/adapters/storage"
	"github.com/eleven-am/flowgraph/internal/domain"
	"github.com/eleven-am/flowgraph/internal/ports"
	"github.com/eleven-am/flowgraph/internal/xjson"
	"github.com/eleven-am/flowgraph/nodes"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	dataDir string
)

func main() {
	root := &cobra.Command{
		Use:   "flowgraph",
		Short: "Flowgraph workflow engine CLI",
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().StringVar(&dataDir, "data", "", "workflow store directory")

	root.AddCommand(runCmd(), validateCmd(), nodesCmd(), initCmd(), saveCmd(), listCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newRuntime() (*flowgraph.Runtime, error) {
	runtime, err := flowgraph.NewRuntime(flowgraph.RuntimeConfig{Logger: newLogger()})
	if err != nil {
		return nil, err
	}
	if err := nodes.RegisterBuiltins(runtime.Registry()); err != nil {
		return nil, err
	}
	return runtime, nil
}

func loadWorkflow(path string) (*flowgraph.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return flowgraph.ParseWorkflow(data)
}

func openStore(logger *slog.Logger) (ports.WorkflowStorePort, error) {
	if dataDir == "" {
		return nil, errors.New("--data directory is required")
	}
	return storage.NewBadgerStore(dataDir, logger)
}

func runCmd() *cobra.Command {
	var file string
	var inputJSON string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a workflow file",
		RunE: func(cmd *cobra.Command, args []string) error {
			runtime, err := newRuntime()
			if err != nil {
				return err
			}
			defer runtime.Close()

			workflow, err := loadWorkflow(file)
			if err != nil {
				return err
			}

			inputs := map[string]flowgraph.Value{}
			if inputJSON != "" {
				var raw map[string]interface{}
				if err := xjson.Unmarshal([]byte(inputJSON), &raw); err != nil {
					return fmt.Errorf("invalid --input: %w", err)
				}
				for key, value := range raw {
					inputs[key] = domain.FromInterface(value)
				}
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			stream := runtime.Subscribe()
			defer stream.Close()
			printDone := make(chan struct{})
			streamCtx, stopStream := context.WithCancel(ctx)
			go func() {
				defer close(printDone)
				printEvents(streamCtx, stream)
			}()

			result, execErr := runtime.ExecuteDirect(ctx, workflow, inputs)
			stopStream()
			<-printDone

			if execErr != nil {
				return execErr
			}

			out, err := xjson.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "workflow JSON file")
	cmd.Flags().StringVarP(&inputJSON, "input", "i", "", "input data as a JSON object")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func printEvents(ctx context.Context, stream flowgraph.EventStream) {
	for {
		event, err := stream.Recv(ctx)
		if err != nil {
			var lagged *flowgraph.LaggedError
			if errors.As(err, &lagged) {
				fmt.Fprintf(os.Stderr, "... dropped %d events\n", lagged.Count)
				continue
			}
			return
		}
		line, err := xjson.Marshal(event)
		if err != nil {
			continue
		}
		fmt.Fprintln(os.Stderr, string(line))
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a workflow file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runtime, err := newRuntime()
			if err != nil {
				return err
			}
			defer runtime.Close()

			workflow, err := loadWorkflow(args[0])
			if err != nil {
				return err
			}
			if _, err := runtime.RegisterWorkflow(workflow); err != nil {
				return err
			}
			fmt.Printf("workflow %q is valid (%d nodes, %d connections)\n",
				workflow.Name, len(workflow.Nodes), len(workflow.Connections))
			return nil
		},
	}
}

func nodesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nodes",
		Short: "List available node types",
		RunE: func(cmd *cobra.Command, args []string) error {
			runtime, err := newRuntime()
			if err != nil {
				return err
			}
			defer runtime.Close()

			for _, meta := range runtime.ListNodeTypes() {
				fmt.Printf("%-28s %-10s %s\n", meta.Type, meta.Category, meta.Description)
			}
			return nil
		},
	}
}

func initCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write an example workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			workflow := exampleWorkflow()
			data, err := xjson.MarshalIndent(workflow, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "workflow.json", "output file path")
	return cmd
}

func exampleWorkflow() *flowgraph.Workflow {
	workflow := flowgraph.NewWorkflow("example")
	workflow.Description = "Uppercase a greeting and log it"
	workflow.AddNode(flowgraph.NewNodeSpec("shout", "transform.script").
		WithConfig("script", flowgraph.StringValue("({ message: String(inputs.message || 'hello').toUpperCase() })")))
	workflow.AddNode(flowgraph.NewNodeSpec("log", "debug.log"))
	workflow.Connect("shout", "message", "log", "message")
	return workflow
}

func saveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save <file>",
		Short: "Validate a workflow file and persist it to the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			runtime, err := newRuntime()
			if err != nil {
				return err
			}
			defer runtime.Close()

			store, err := openStore(logger)
			if err != nil {
				return err
			}
			defer store.Close()

			workflow, err := loadWorkflow(args[0])
			if err != nil {
				return err
			}
			if _, err := runtime.RegisterWorkflow(workflow); err != nil {
				return err
			}
			if err := store.Put(cmd.Context(), workflow); err != nil {
				return err
			}
			fmt.Println("saved", workflow.ID)
			return nil
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workflows in the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(newLogger())
			if err != nil {
				return err
			}
			defer store.Close()

			workflows, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, workflow := range workflows {
				fmt.Printf("%s  %-20s %d nodes\n", workflow.ID, workflow.Name, len(workflow.Nodes))
			}
			return nil
		},
	}
}
