package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Activation names accepted in a weights artifact.
const (
	ActivationLinear  = "linear"
	ActivationReLU    = "relu"
	ActivationSoftmax = "softmax"
)

// Layer is one dense layer. Weights are laid out [input][output], the order
// Keras exports Dense kernels in.
type Layer struct {
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
	Activation string      `json:"activation"`
}

// MLP is a feed-forward network of dense layers. Dropout layers are absent
// because they are the identity at inference time.
type MLP struct {
	layers []Layer
}

type weightsFile struct {
	Layers []Layer `json:"layers"`
}

// LoadMLP reads a JSON weights artifact.
func LoadMLP(path string) (*MLP, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading classifier weights %s: %w", path, err)
	}
	var wf weightsFile
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("parsing classifier weights %s: %w", path, err)
	}
	return NewMLP(wf.Layers)
}

// NewMLP checks that consecutive layer shapes line up and that the final
// layer is a softmax.
func NewMLP(layers []Layer) (*MLP, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("mlp needs at least one layer")
	}
	for i, l := range layers {
		if len(l.Weights) == 0 || len(l.Weights[0]) == 0 {
			return nil, fmt.Errorf("layer %d has no weights", i)
		}
		out := len(l.Weights[0])
		for r, row := range l.Weights {
			if len(row) != out {
				return nil, fmt.Errorf("layer %d row %d has %d columns, want %d", i, r, len(row), out)
			}
		}
		if len(l.Bias) != out {
			return nil, fmt.Errorf("layer %d bias has %d values, want %d", i, len(l.Bias), out)
		}
		if i > 0 && len(l.Weights) != len(layers[i-1].Bias) {
			return nil, fmt.Errorf("layer %d expects %d inputs but layer %d produces %d", i, len(l.Weights), i-1, len(layers[i-1].Bias))
		}
		switch l.Activation {
		case ActivationLinear, ActivationReLU, ActivationSoftmax:
		default:
			return nil, fmt.Errorf("layer %d: unknown activation %q", i, l.Activation)
		}
	}
	if layers[len(layers)-1].Activation != ActivationSoftmax {
		return nil, fmt.Errorf("final layer must be softmax")
	}
	return &MLP{layers: layers}, nil
}

func (m *MLP) InputDim() int   { return len(m.layers[0].Weights) }
func (m *MLP) NumClasses() int { return len(m.layers[len(m.layers)-1].Bias) }

// Predict runs a forward pass for every row.
func (m *MLP) Predict(ctx context.Context, batch [][]float32) ([][]float64, error) {
	if err := checkBatch(batch, m.InputDim()); err != nil {
		return nil, err
	}
	out := make([][]float64, len(batch))
	for i, row := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		x := make([]float64, len(row))
		for j, v := range row {
			x[j] = float64(v)
		}
		for _, l := range m.layers {
			x = l.forward(x)
		}
		out[i] = x
	}
	return out, nil
}

func (l Layer) forward(in []float64) []float64 {
	out := append([]float64(nil), l.Bias...)
	for i, xi := range in {
		if xi == 0 {
			continue
		}
		for j, w := range l.Weights[i] {
			out[j] += xi * w
		}
	}
	switch l.Activation {
	case ActivationReLU:
		for j, v := range out {
			if v < 0 {
				out[j] = 0
			}
		}
	case ActivationSoftmax:
		out = softmax(out)
	}
	return out
}
