package utils

import (
	"fmt"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
	"github.com/tidwall/gjson"
)

// OperationInfo describes the operation a GraphQL document will run
type OperationInfo struct {
	Type string
	Name string
}

// GetOperationAST
func GetOperationAST(nodes *ast.Document, operationName string) (*ast.OperationDefinition, error) {
	var operation *ast.OperationDefinition

	for _, def := range nodes.Definitions {
		switch def := def.(type) {
		case *ast.OperationDefinition:
			if operationName == "" && operation != nil {
				return nil, fmt.Errorf("must provide operation name if query contains multiple operations")
			}
			if operationName == "" || (def.GetName() != nil && def.GetName().Value == operationName) {
				operation = def
			}
		}
	}

	if operation == nil {
		return nil, fmt.Errorf("unknown operation named %q", operationName)
	}

	return operation, nil
}

func ParseQuery(query string) (*ast.Document, error) {
	return parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{
			Body: []byte(query),
			Name: "GraphQL request",
		}),
	})
}

// Operation inspects a query document and returns the selected operation
func Operation(query, operationName string) (*OperationInfo, error) {
	doc, err := ParseQuery(query)
	if err != nil {
		return nil, err
	}

	op, err := GetOperationAST(doc, operationName)
	if err != nil {
		return nil, err
	}

	info := &OperationInfo{Type: op.Operation}
	if op.GetName() != nil {
		info.Name = op.GetName().Value
	}

	return info, nil
}

// PayloadOperation reads query and operationName from a raw request payload
// ({"query": ..., "operationName": ...}) and inspects the operation. The
// payload is never modified.
func PayloadOperation(payload []byte) (*OperationInfo, error) {
	query := gjson.GetBytes(payload, "query")
	if query.Type != gjson.String {
		return nil, fmt.Errorf("payload has no query")
	}

	return Operation(query.String(), gjson.GetBytes(payload, "operationName").String())
}
