package engine

import (
	"log/slog"

	"github.com/eleven-am/flowgraph/internal/domain"
	"github.com/eleven-am/flowgraph/internal/ports"
)

// planNode is the static per-node view the scheduler works from.
type planNode struct {
	spec      domain.NodeSpec
	topoIndex int
	incoming  []domain.Connection
	outgoing  []domain.Connection
}

// Plan is a validated workflow ready for execution: adjacency in both
// directions, per-node input requirements, and a topological order used
// for deterministic dispatch tie-breaking.
type Plan struct {
	workflow *domain.Workflow
	nodes    map[string]*planNode
	order    []string
}

func (p *Plan) TopoOrder() []string {
	return p.order
}

// BuildPlan validates the workflow against the registry and produces the
// execution plan. Rules are enforced in order: id uniqueness, registered
// node types, per-node config validation, connection endpoints, the
// single-connection-per-input-port rule, acyclicity.
func BuildPlan(workflow *domain.Workflow, registry ports.NodeRegistryPort, logger *slog.Logger) (*Plan, error) {
	if logger == nil {
		logger = slog.Default()
	}

	nodes := make(map[string]*planNode, len(workflow.Nodes))
	for _, spec := range workflow.Nodes {
		if spec.ID == "" {
			return nil, domain.NewValidationError("workflow", "node id cannot be empty")
		}
		if _, exists := nodes[spec.ID]; exists {
			return nil, domain.NewDuplicateNodeIDError(spec.ID)
		}
		nodes[spec.ID] = &planNode{spec: spec}
	}

	for _, spec := range workflow.Nodes {
		factory, err := registry.Get(spec.NodeType)
		if err != nil {
			return nil, domain.NewUnknownNodeTypeError(spec.ID, spec.NodeType)
		}

		node, err := factory.Create(spec.Config)
		if err != nil {
			return nil, domain.NewConfigurationError(spec.ID, err.Error())
		}
		if validator, ok := node.(ports.ConfigValidator); ok {
			if err := validator.ValidateConfig(spec.Config); err != nil {
				return nil, domain.NewConfigurationError(spec.ID, err.Error())
			}
		}
	}

	seenInputs := make(map[string]map[string]bool)
	for _, conn := range workflow.Connections {
		from, ok := nodes[conn.FromNode]
		if !ok {
			return nil, domain.NewUnknownNodeReferenceError(conn.FromNode)
		}
		to, ok := nodes[conn.ToNode]
		if !ok {
			return nil, domain.NewUnknownNodeReferenceError(conn.ToNode)
		}

		warnUndeclaredPort(registry, from.spec.NodeType, conn.FromPort, "output", logger)
		warnUndeclaredPort(registry, to.spec.NodeType, conn.ToPort, "input", logger)

		if seenInputs[conn.ToNode] == nil {
			seenInputs[conn.ToNode] = make(map[string]bool)
		}
		if seenInputs[conn.ToNode][conn.ToPort] {
			return nil, domain.NewDuplicateInputPortError(conn.ToNode, conn.ToPort)
		}
		seenInputs[conn.ToNode][conn.ToPort] = true

		from.outgoing = append(from.outgoing, conn)
		to.incoming = append(to.incoming, conn)
	}

	order, err := topoSort(workflow, nodes)
	if err != nil {
		return nil, err
	}
	for i, id := range order {
		nodes[id].topoIndex = i
	}

	return &Plan{workflow: workflow, nodes: nodes, order: order}, nil
}

// Instantiate constructs fresh node instances for one run. Instances are
// owned by the executor and never shared across concurrent runs.
func (p *Plan) Instantiate(registry ports.NodeRegistryPort) (map[string]ports.Node, error) {
	instances := make(map[string]ports.Node, len(p.nodes))
	for id, pn := range p.nodes {
		factory, err := registry.Get(pn.spec.NodeType)
		if err != nil {
			return nil, domain.NewUnknownNodeTypeError(id, pn.spec.NodeType)
		}
		node, err := factory.Create(pn.spec.Config)
		if err != nil {
			return nil, domain.NewConfigurationError(id, err.Error())
		}
		instances[id] = node
	}
	return instances, nil
}

// warnUndeclaredPort logs when a connection references a port the factory
// does not declare in its metadata. Undeclared ports never fail
// validation; catalogs are free to leave port lists empty.
func warnUndeclaredPort(registry ports.NodeRegistryPort, nodeType, port, direction string, logger *slog.Logger) {
	factory, err := registry.Get(nodeType)
	if err != nil {
		return
	}
	meta := factory.Metadata()

	declared := meta.Outputs
	if direction == "input" {
		declared = meta.Inputs
	}
	if len(declared) == 0 {
		return
	}
	for _, def := range declared {
		if def.Name == port {
			return
		}
	}
	logger.Warn("connection references undeclared port",
		"node_type", nodeType,
		"port", port,
		"direction", direction,
	)
}

const (
	colorWhite = iota
	colorGrey
	colorBlack
)

// topoSort runs a depth-first search with grey/black marking over the
// declaration-ordered node list. A back edge yields CycleDetected with
// the offending path; otherwise the reverse postorder is returned.
func topoSort(workflow *domain.Workflow, nodes map[string]*planNode) ([]string, error) {
	color := make(map[string]int, len(nodes))
	order := make([]string, 0, len(nodes))
	stack := make([]string, 0, len(nodes))

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = colorGrey
		stack = append(stack, id)

		for _, conn := range nodes[id].outgoing {
			next := conn.ToNode
			switch color[next] {
			case colorWhite:
				if err := visit(next); err != nil {
					return err
				}
			case colorGrey:
				return domain.NewCycleDetectedError(cyclePath(stack, next))
			}
		}

		color[id] = colorBlack
		stack = stack[:len(stack)-1]
		order = append(order, id)
		return nil
	}

	for _, spec := range workflow.Nodes {
		if color[spec.ID] == colorWhite {
			if err := visit(spec.ID); err != nil {
				return nil, err
			}
		}
	}

	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}

// cyclePath trims the DFS stack to the segment that closes the cycle.
func cyclePath(stack []string, reentry string) []string {
	for i, id := range stack {
		if id == reentry {
			path := make([]string, 0, len(stack)-i+1)
			path = append(path, stack[i:]...)
			path = append(path, reentry)
			return path
		}
	}
	return append(append([]string{}, stack...), reentry)
}
