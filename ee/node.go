// Copyright 2018, RadiantBlue Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ee builds lazy Earth Engine expression graphs and submits them to
// the Earth Engine REST API. Nothing in this package evaluates imagery: a
// graph only describes the computation an engine will run.
package ee

import "sort"

// Kind identifies what a Node represents
type Kind int

// Node kinds, mirroring the ValueNode variants of the wire format
const (
	ConstantKind Kind = iota
	InvocationKind
	ArrayKind
	DictionaryKind
	FunctionKind
	ArgumentKind
)

// Node is one vertex of an expression graph. Nodes are immutable once built
// and may be shared between graphs.
type Node struct {
	kind     Kind
	value    interface{}
	function string
	args     map[string]*Node
	items    []*Node
	params   []string
	body     *Node
	name     string
}

// Constant wraps a JSON-encodable literal
func Constant(value interface{}) *Node {
	return &Node{kind: ConstantKind, value: value}
}

// Invoke calls a server-side function by name
func Invoke(function string, args map[string]*Node) *Node {
	copied := make(map[string]*Node, len(args))
	for k, v := range args {
		copied[k] = v
	}
	return &Node{kind: InvocationKind, function: function, args: copied}
}

// Array is a list of nodes
func Array(items ...*Node) *Node {
	return &Node{kind: ArrayKind, items: items}
}

// Dictionary is a map of nodes
func Dictionary(entries map[string]*Node) *Node {
	copied := make(map[string]*Node, len(entries))
	for k, v := range entries {
		copied[k] = v
	}
	return &Node{kind: DictionaryKind, args: copied}
}

// Function defines a server-side function whose body refers to its
// parameters through Argument nodes
func Function(params []string, body *Node) *Node {
	return &Node{kind: FunctionKind, params: append([]string(nil), params...), body: body}
}

// Argument references a parameter of an enclosing Function
func Argument(name string) *Node {
	return &Node{kind: ArgumentKind, name: name}
}

// Kind returns the node's kind
func (n *Node) Kind() Kind { return n.kind }

// Value returns a constant's literal
func (n *Node) Value() interface{} { return n.value }

// FunctionName returns the invoked function's name
func (n *Node) FunctionName() string { return n.function }

// Arg returns a named argument of an invocation, or a dictionary entry
func (n *Node) Arg(name string) *Node { return n.args[name] }

// ArgNames returns the sorted argument names of an invocation or dictionary
func (n *Node) ArgNames() []string {
	names := make([]string, 0, len(n.args))
	for name := range n.args {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Items returns an array's elements
func (n *Node) Items() []*Node { return n.items }

// Params returns a function definition's parameter names
func (n *Node) Params() []string { return n.params }

// Body returns a function definition's body
func (n *Node) Body() *Node { return n.body }

// ArgumentName returns the parameter an Argument node refers to
func (n *Node) ArgumentName() string { return n.name }

// functionDepth is the deepest nesting of function definitions below n
func functionDepth(n *Node, seen map[*Node]int) int {
	if n == nil {
		return 0
	}
	if d, ok := seen[n]; ok {
		return d
	}
	depth := 0
	switch n.kind {
	case FunctionKind:
		depth = 1 + functionDepth(n.body, seen)
	case InvocationKind, DictionaryKind:
		for _, child := range n.args {
			if d := functionDepth(child, seen); d > depth {
				depth = d
			}
		}
	case ArrayKind:
		for _, child := range n.items {
			if d := functionDepth(child, seen); d > depth {
				depth = d
			}
		}
	}
	seen[n] = depth
	return depth
}
