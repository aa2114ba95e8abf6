package onnx

import (
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"perception_loop/internal/engine"
)

// Field numbers from onnx.proto.
const (
	modelIRVersion = 1
	modelGraph     = 7
	graphNode      = 1
	nodeOpType     = 4
	nodeDomain     = 7
)

// header is what the loop needs from a model before handing it to the
// runtime: the schema version and the operators its graph uses.
type header struct {
	irVersion int64
	operators []engine.Operator
}

// inspect walks the top level of a serialized ModelProto without decoding
// tensors. Subgraphs held in node attributes are not visited.
func inspect(b []byte) (header, error) {
	var h header
	seen := map[engine.Operator]bool{}

	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte, u uint64) error {
		switch {
		case num == modelIRVersion && typ == protowire.VarintType:
			h.irVersion = int64(u)
		case num == modelGraph && typ == protowire.BytesType:
			return walk(v, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
				if num != graphNode || typ != protowire.BytesType {
					return nil
				}
				op, err := nodeOperator(v)
				if err != nil {
					return err
				}
				if op != "" && !seen[op] {
					seen[op] = true
					h.operators = append(h.operators, op)
				}
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return header{}, errors.Wrap(err, "onnx: malformed model")
	}
	if h.irVersion == 0 {
		return header{}, errors.New("onnx: model has no ir_version")
	}
	return h, nil
}

func nodeOperator(b []byte) (engine.Operator, error) {
	var opType, domain string
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case nodeOpType:
			opType = string(v)
		case nodeDomain:
			domain = string(v)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if domain != "" && domain != "ai.onnx" {
		return engine.Operator(domain + ":" + opType), nil
	}
	return engine.Operator(opType), nil
}

// walk calls fn for every field in b. v is set for length-delimited fields,
// u for varints.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, u uint64) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		var (
			v []byte
			u uint64
		)
		switch typ {
		case protowire.VarintType:
			u, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			v, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		if err := fn(num, typ, v, u); err != nil {
			return err
		}
	}
	return nil
}
