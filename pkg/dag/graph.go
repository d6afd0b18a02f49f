// Package dag models the job dependency graph of a workflow run and decides,
// at node admission and node completion time, which job instances are ready
// to run and which must be skipped.
package dag

import (
	"sort"

	"github.com/buildgate/buildgate/pkg/models"
)

// Node is one schedulable job instance in the graph.
type Node struct {
	ID       string
	BaseName string
	Entry    models.MatrixEntry
	Spec     *models.JobSpec
	needs    []string // instance IDs this node depends on
}

// Needs returns the instance IDs this node depends on.
func (n *Node) Needs() []string {
	return n.needs
}

// Graph is the expanded, validated dependency graph of a workflow: one node
// per matrix instance, edges from each instance to every instance of the jobs
// it needs.
type Graph struct {
	nodes       map[string]*Node
	instancesOf map[string][]string
	order       []string // instance IDs in topological order
}

// Build expands a workflow's jobs through their matrices and validates the
// resulting graph. It fails on duplicate job names, needs that reference
// unknown jobs, and dependency cycles.
func Build(workflow *models.Workflow) (*Graph, error) {
	jobsByName := make(map[string]*models.JobSpec, len(workflow.Jobs))

	for _, job := range workflow.Jobs {
		if _, exists := jobsByName[job.Name]; exists {
			return nil, &ValidationError{Job: job.Name, Reason: "duplicate job name"}
		}

		jobsByName[job.Name] = job
	}

	for _, job := range workflow.Jobs {
		for _, need := range job.Needs {
			if _, exists := jobsByName[need]; !exists {
				return nil, &ValidationError{Job: job.Name, Reason: "needs unknown job " + need}
			}
		}
	}

	baseOrder, err := topologicalOrder(workflow.Jobs)
	if err != nil {
		return nil, err
	}

	graph := &Graph{
		nodes:       make(map[string]*Node),
		instancesOf: make(map[string][]string),
	}

	for _, baseName := range baseOrder {
		job := jobsByName[baseName]

		for _, instance := range job.Matrix.Expand(job.Name) {
			node := &Node{
				ID:       instance.ID,
				BaseName: instance.BaseName,
				Entry:    instance.Entry,
				Spec:     job,
			}

			for _, need := range job.Needs {
				node.needs = append(node.needs, graph.instancesOf[need]...)
			}

			graph.nodes[node.ID] = node
			graph.instancesOf[job.Name] = append(graph.instancesOf[job.Name], node.ID)
			graph.order = append(graph.order, node.ID)
		}
	}

	return graph, nil
}

// topologicalOrder orders job names so that every job follows all jobs it
// needs, rejecting cycles.
func topologicalOrder(jobs []*models.JobSpec) ([]string, error) {
	indegree := make(map[string]int, len(jobs))
	dependents := make(map[string][]string, len(jobs))

	for _, job := range jobs {
		indegree[job.Name] = len(job.Needs)
		for _, need := range job.Needs {
			dependents[need] = append(dependents[need], job.Name)
		}
	}

	ready := make([]string, 0, len(jobs))

	for _, job := range jobs {
		if indegree[job.Name] == 0 {
			ready = append(ready, job.Name)
		}
	}

	sort.Strings(ready)

	order := make([]string, 0, len(jobs))

	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)

		for _, dependent := range dependents[name] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}

		sort.Strings(ready)
	}

	if len(order) != len(jobs) {
		return nil, &ValidationError{Reason: "dependency cycle detected"}
	}

	return order, nil
}

// Node returns the node with the given instance ID, or nil.
func (g *Graph) Node(id string) *Node {
	return g.nodes[id]
}

// Nodes returns all nodes in topological order.
func (g *Graph) Nodes() []*Node {
	nodes := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		nodes = append(nodes, g.nodes[id])
	}

	return nodes
}

// InstancesOf returns the instance IDs of a base job name in expansion order.
func (g *Graph) InstancesOf(baseName string) []string {
	return g.instancesOf[baseName]
}

// Progress inspects the current statuses and partitions the pending nodes
// into those ready to start and those that must be skipped.
//
// A node is ready when every need reached terminal success. A node is skipped
// when any need reached a terminal state other than success: a failed,
// cancelled, or skipped predecessor marks its dependents skipped, never
// failed. Skips propagate transitively in a single call.
func (g *Graph) Progress(statusOf func(id string) models.JobStatus) (ready, skipped []string) {
	// Effective statuses, updated as skips cascade.
	effective := make(map[string]models.JobStatus, len(g.order))
	for _, id := range g.order {
		effective[id] = statusOf(id)
	}

	changed := true
	for changed {
		changed = false

		for _, id := range g.order {
			if effective[id] != models.JobStatusPending {
				continue
			}

			for _, need := range g.nodes[id].needs {
				status := effective[need]
				if status.IsTerminal() && status != models.JobStatusSuccess {
					effective[id] = models.JobStatusSkipped
					skipped = append(skipped, id)
					changed = true

					break
				}
			}
		}
	}

	for _, id := range g.order {
		if effective[id] != models.JobStatusPending {
			continue
		}

		allDone := true

		for _, need := range g.nodes[id].needs {
			if effective[need] != models.JobStatusSuccess {
				allDone = false

				break
			}
		}

		if allDone {
			ready = append(ready, id)
		}
	}

	return ready, skipped
}
