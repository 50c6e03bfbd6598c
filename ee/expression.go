package ee

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Expression is the wire form of a graph: every invocation is stored once
// in Values and referenced by key
type Expression struct {
	Result string               `json:"result"`
	Values map[string]ValueNode `json:"values"`
}

// ValueNode is exactly one of its fields
type ValueNode struct {
	ConstantValue           json.RawMessage     `json:"constantValue,omitempty"`
	ValueReference          string              `json:"valueReference,omitempty"`
	ArrayValue              *ArrayValue         `json:"arrayValue,omitempty"`
	DictionaryValue         *DictionaryValue    `json:"dictionaryValue,omitempty"`
	FunctionInvocationValue *FunctionInvocation `json:"functionInvocationValue,omitempty"`
	FunctionDefinitionValue *FunctionDefinition `json:"functionDefinitionValue,omitempty"`
	ArgumentReference       string              `json:"argumentReference,omitempty"`
}

// ArrayValue is a list of values
type ArrayValue struct {
	Values []ValueNode `json:"values"`
}

// DictionaryValue is a map of values
type DictionaryValue struct {
	Values map[string]ValueNode `json:"values"`
}

// FunctionInvocation calls a named server function
type FunctionInvocation struct {
	FunctionName string               `json:"functionName"`
	Arguments    map[string]ValueNode `json:"arguments"`
}

// FunctionDefinition is a lambda whose body is a key into Values
type FunctionDefinition struct {
	ArgumentNames []string `json:"argumentNames"`
	Body          string   `json:"body"`
}

type encoder struct {
	values map[string]ValueNode
	keys   map[*Node]string
}

// Encode serializes a graph. Shared sub-graphs are emitted once.
func Encode(root *Node) (*Expression, error) {
	e := &encoder{values: map[string]ValueNode{}, keys: map[*Node]string{}}
	result, err := e.key(root)
	if err != nil {
		return nil, err
	}
	return &Expression{Result: result, Values: e.values}, nil
}

func (e *encoder) key(n *Node) (string, error) {
	if k, ok := e.keys[n]; ok {
		return k, nil
	}
	var value ValueNode
	var err error
	if n.kind == InvocationKind {
		invocation := &FunctionInvocation{FunctionName: n.function, Arguments: map[string]ValueNode{}}
		for _, name := range n.ArgNames() {
			if invocation.Arguments[name], err = e.inline(n.args[name]); err != nil {
				return "", fmt.Errorf("%s(%s): %w", n.function, name, err)
			}
		}
		value = ValueNode{FunctionInvocationValue: invocation}
	} else if value, err = e.inline(n); err != nil {
		return "", err
	}
	k := strconv.Itoa(len(e.values))
	e.values[k] = value
	e.keys[n] = k
	return k, nil
}

func (e *encoder) inline(n *Node) (ValueNode, error) {
	if n == nil {
		return ValueNode{}, fmt.Errorf("nil node")
	}
	switch n.kind {
	case ConstantKind:
		raw, err := json.Marshal(n.value)
		if err != nil {
			return ValueNode{}, err
		}
		return ValueNode{ConstantValue: raw}, nil
	case ArgumentKind:
		return ValueNode{ArgumentReference: n.name}, nil
	case InvocationKind:
		k, err := e.key(n)
		return ValueNode{ValueReference: k}, err
	case ArrayKind:
		array := &ArrayValue{Values: make([]ValueNode, len(n.items))}
		for i, item := range n.items {
			var err error
			if array.Values[i], err = e.inline(item); err != nil {
				return ValueNode{}, err
			}
		}
		return ValueNode{ArrayValue: array}, nil
	case DictionaryKind:
		dict := &DictionaryValue{Values: map[string]ValueNode{}}
		for _, name := range n.ArgNames() {
			var err error
			if dict.Values[name], err = e.inline(n.args[name]); err != nil {
				return ValueNode{}, err
			}
		}
		return ValueNode{DictionaryValue: dict}, nil
	case FunctionKind:
		body, err := e.key(n.body)
		if err != nil {
			return ValueNode{}, err
		}
		return ValueNode{FunctionDefinitionValue: &FunctionDefinition{ArgumentNames: n.params, Body: body}}, nil
	}
	return ValueNode{}, fmt.Errorf("unknown node kind %d", n.kind)
}

type decoder struct {
	expr     *Expression
	nodes    map[string]*Node
	visiting map[string]bool
}

// Decode rebuilds a graph from its wire form
func Decode(expr *Expression) (*Node, error) {
	if expr == nil {
		return nil, fmt.Errorf("nil expression")
	}
	d := &decoder{expr: expr, nodes: map[string]*Node{}, visiting: map[string]bool{}}
	return d.ref(expr.Result)
}

func (d *decoder) ref(key string) (*Node, error) {
	if n, ok := d.nodes[key]; ok {
		return n, nil
	}
	if d.visiting[key] {
		return nil, fmt.Errorf("cyclic reference to value %q", key)
	}
	value, ok := d.expr.Values[key]
	if !ok {
		return nil, fmt.Errorf("reference to missing value %q", key)
	}
	d.visiting[key] = true
	n, err := d.value(value)
	delete(d.visiting, key)
	if err != nil {
		return nil, err
	}
	d.nodes[key] = n
	return n, nil
}

func (d *decoder) value(v ValueNode) (*Node, error) {
	switch {
	case v.ConstantValue != nil:
		var literal interface{}
		if err := json.Unmarshal(v.ConstantValue, &literal); err != nil {
			return nil, err
		}
		return Constant(literal), nil
	case v.ValueReference != "":
		return d.ref(v.ValueReference)
	case v.ArgumentReference != "":
		return Argument(v.ArgumentReference), nil
	case v.ArrayValue != nil:
		items := make([]*Node, len(v.ArrayValue.Values))
		for i, item := range v.ArrayValue.Values {
			var err error
			if items[i], err = d.value(item); err != nil {
				return nil, err
			}
		}
		return Array(items...), nil
	case v.DictionaryValue != nil:
		entries := map[string]*Node{}
		for name, item := range v.DictionaryValue.Values {
			var err error
			if entries[name], err = d.value(item); err != nil {
				return nil, err
			}
		}
		return Dictionary(entries), nil
	case v.FunctionInvocationValue != nil:
		args := map[string]*Node{}
		for name, item := range v.FunctionInvocationValue.Arguments {
			var err error
			if args[name], err = d.value(item); err != nil {
				return nil, err
			}
		}
		return Invoke(v.FunctionInvocationValue.FunctionName, args), nil
	case v.FunctionDefinitionValue != nil:
		body, err := d.ref(v.FunctionDefinitionValue.Body)
		if err != nil {
			return nil, err
		}
		return Function(v.FunctionDefinitionValue.ArgumentNames, body), nil
	}
	return nil, fmt.Errorf("empty value node")
}
