package inference

import (
	"errors"
	"fmt"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrSignatureMismatch indicates a model whose input or output shape does not
// fit the evaluation configuration.
var ErrSignatureMismatch = errors.New("inference: model signature mismatch")

// Field numbers from onnx.proto.
const (
	modelGraph         protowire.Number = 7
	modelMetadataProps protowire.Number = 14

	graphInitializer protowire.Number = 5
	graphInput       protowire.Number = 11
	graphOutput      protowire.Number = 12

	tensorProtoName protowire.Number = 8

	valueInfoName protowire.Number = 1
	valueInfoType protowire.Number = 2

	typeTensor      protowire.Number = 1
	tensorElemType  protowire.Number = 1
	tensorShape     protowire.Number = 2
	shapeDim        protowire.Number = 1
	dimValue        protowire.Number = 1
	stringEntryKey  protowire.Number = 1
	stringEntryVal  protowire.Number = 2
	elemTypeFloat32                  = 1
)

// TensorInfo describes a graph input or output. Symbolic dimensions are -1.
type TensorInfo struct {
	Name     string
	ElemType int
	Dims     []int64
}

// Signature is the input/output description of an ONNX model.
type Signature struct {
	Inputs   []TensorInfo
	Outputs  []TensorInfo
	Metadata map[string]string
}

// ReadSignature reads the graph signature of an ONNX model file without
// loading it into the runtime.
func ReadSignature(path string) (*Signature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model file: %w", err)
	}
	sig, err := ParseSignature(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return sig, nil
}

// ParseSignature decodes the graph inputs, outputs and metadata of a
// serialized ONNX ModelProto. Inputs that are initializers are omitted.
func ParseSignature(model []byte) (*Signature, error) {
	sig := &Signature{Metadata: map[string]string{}}
	var graph []byte

	err := eachField(model, func(num protowire.Number, v []byte, _ uint64) error {
		switch num {
		case modelGraph:
			graph = v
		case modelMetadataProps:
			var key, val string
			if err := eachField(v, func(n protowire.Number, b []byte, _ uint64) error {
				switch n {
				case stringEntryKey:
					key = string(b)
				case stringEntryVal:
					val = string(b)
				}
				return nil
			}); err != nil {
				return err
			}
			sig.Metadata[key] = val
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if graph == nil {
		return nil, errors.New("model has no graph")
	}

	initializers := map[string]bool{}
	var inputs []TensorInfo
	err = eachField(graph, func(num protowire.Number, v []byte, _ uint64) error {
		switch num {
		case graphInitializer:
			return eachField(v, func(n protowire.Number, b []byte, _ uint64) error {
				if n == tensorProtoName {
					initializers[string(b)] = true
				}
				return nil
			})
		case graphInput, graphOutput:
			info, err := parseValueInfo(v)
			if err != nil {
				return err
			}
			if num == graphInput {
				inputs = append(inputs, info)
			} else {
				sig.Outputs = append(sig.Outputs, info)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, in := range inputs {
		if !initializers[in.Name] {
			sig.Inputs = append(sig.Inputs, in)
		}
	}
	return sig, nil
}

// Check verifies that the first input is a float [batch, maxLen, dim] tensor
// and the first output a float [batch, maxLen, numLabels] tensor. Symbolic
// dimensions match anything.
func (s *Signature) Check(maxLen, dim, numLabels int) error {
	if len(s.Inputs) == 0 || len(s.Outputs) == 0 {
		return fmt.Errorf("%w: model needs one input and one output, has %d and %d",
			ErrSignatureMismatch, len(s.Inputs), len(s.Outputs))
	}
	in, out := s.Inputs[0], s.Outputs[0]

	if err := checkDims(in, []int64{-1, int64(maxLen), int64(dim)}); err != nil {
		return err
	}
	return checkDims(out, []int64{-1, int64(maxLen), int64(numLabels)})
}

// NumLabels returns the label dimension of the first output, or -1.
func (s *Signature) NumLabels() int {
	if len(s.Outputs) == 0 || len(s.Outputs[0].Dims) != 3 {
		return -1
	}
	return int(s.Outputs[0].Dims[2])
}

func checkDims(t TensorInfo, want []int64) error {
	if t.ElemType != 0 && t.ElemType != elemTypeFloat32 {
		return fmt.Errorf("%w: %s has element type %d, want float", ErrSignatureMismatch, t.Name, t.ElemType)
	}
	if t.Dims == nil {
		return nil // shape not recorded
	}
	if len(t.Dims) != len(want) {
		return fmt.Errorf("%w: %s has rank %d, want %d", ErrSignatureMismatch, t.Name, len(t.Dims), len(want))
	}
	for i, d := range t.Dims {
		if d >= 0 && want[i] >= 0 && d != want[i] {
			return fmt.Errorf("%w: %s dimension %d is %d, want %d", ErrSignatureMismatch, t.Name, i, d, want[i])
		}
	}
	return nil
}

func parseValueInfo(b []byte) (TensorInfo, error) {
	var info TensorInfo
	err := eachField(b, func(num protowire.Number, v []byte, _ uint64) error {
		switch num {
		case valueInfoName:
			info.Name = string(v)
		case valueInfoType:
			return eachField(v, func(n protowire.Number, tt []byte, _ uint64) error {
				if n != typeTensor {
					return nil
				}
				return parseTensorType(tt, &info)
			})
		}
		return nil
	})
	return info, err
}

func parseTensorType(b []byte, info *TensorInfo) error {
	return eachField(b, func(num protowire.Number, v []byte, u uint64) error {
		switch num {
		case tensorElemType:
			info.ElemType = int(u)
		case tensorShape:
			info.Dims = []int64{}
			return eachField(v, func(n protowire.Number, dim []byte, _ uint64) error {
				if n != shapeDim {
					return nil
				}
				size := int64(-1)
				if err := eachField(dim, func(dn protowire.Number, _ []byte, du uint64) error {
					if dn == dimValue {
						size = int64(du)
					}
					return nil
				}); err != nil {
					return err
				}
				info.Dims = append(info.Dims, size)
				return nil
			})
		}
		return nil
	})
}

// eachField calls fn for every field of a serialized message. Length-delimited
// values arrive in v, varints in u; other wire types are skipped.
func eachField(b []byte, fn func(num protowire.Number, v []byte, u uint64) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch typ {
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			if err := fn(num, v, 0); err != nil {
				return err
			}
			n = m
		case protowire.VarintType:
			u, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			if err := fn(num, nil, u); err != nil {
				return err
			}
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
		}
		b = b[n:]
	}
	return nil
}
