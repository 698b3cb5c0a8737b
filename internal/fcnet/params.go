package fcnet

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Parameter name prefixes used by StateDict, optimizers and checkpoints.
// Names are 1-indexed: W1, b1, gamma1, beta1, W2, ...
const (
	weightPrefix = "W"
	biasPrefix   = "b"
	gammaPrefix  = "gamma"
	betaPrefix   = "beta"
)

// LayerParams holds the learnable parameters of one affine layer.
//
// W has shape (width of previous layer, width of this layer) and B has the width
// of this layer. Gamma and Beta are the batch normalization scale and shift of a
// hidden layer; they are nil for the output layer and when batch normalization is
// disabled.
type LayerParams struct {
	W     *mat.Dense
	B     *mat.VecDense
	Gamma *mat.VecDense
	Beta  *mat.VecDense
}

// Params is the ordered parameter store of a network, one entry per layer.
//
// Gradients returned by ComputeLoss use the same type, with exactly the same
// layers, fields and shapes as the store they were computed for.
type Params struct {
	Layers []LayerParams
}

// WeightName returns the state dict name of layer i's weights (0-indexed i).
func WeightName(i int) string { return fmt.Sprintf("%s%d", weightPrefix, i+1) }

// BiasName returns the state dict name of layer i's bias.
func BiasName(i int) string { return fmt.Sprintf("%s%d", biasPrefix, i+1) }

// GammaName returns the state dict name of layer i's batch norm scale.
func GammaName(i int) string { return fmt.Sprintf("%s%d", gammaPrefix, i+1) }

// BetaName returns the state dict name of layer i's batch norm shift.
func BetaName(i int) string { return fmt.Sprintf("%s%d", betaPrefix, i+1) }

// Each calls fn for every parameter in layer order (W, b, gamma, beta).
//
// Vectors are passed as 1xD matrices sharing their storage, so fn may update
// any parameter in place.
func (p *Params) Each(fn func(name string, m *mat.Dense)) {
	for i, l := range p.Layers {
		fn(WeightName(i), l.W)
		fn(BiasName(i), rowView(l.B))
		if l.Gamma != nil {
			fn(GammaName(i), rowView(l.Gamma))
		}
		if l.Beta != nil {
			fn(BetaName(i), rowView(l.Beta))
		}
	}
}

// Dict returns a name -> matrix view of the store. The matrices share storage
// with p.
func (p *Params) Dict() map[string]*mat.Dense {
	dict := make(map[string]*mat.Dense)
	p.Each(func(name string, m *mat.Dense) {
		dict[name] = m
	})
	return dict
}

// Names returns every parameter name in layer order.
func (p *Params) Names() []string {
	var names []string
	p.Each(func(name string, _ *mat.Dense) {
		names = append(names, name)
	})
	return names
}

// NumParams returns the total number of scalar parameters.
func (p *Params) NumParams() int {
	n := 0
	p.Each(func(_ string, m *mat.Dense) {
		r, c := m.Dims()
		n += r * c
	})
	return n
}

// Clone returns a deep copy.
func (p *Params) Clone() *Params {
	out := &Params{Layers: make([]LayerParams, len(p.Layers))}
	for i, l := range p.Layers {
		out.Layers[i] = LayerParams{
			W:     mat.DenseCopyOf(l.W),
			B:     cloneVec(l.B),
			Gamma: cloneVec(l.Gamma),
			Beta:  cloneVec(l.Beta),
		}
	}
	return out
}

// Zero sets every parameter to zero in place.
func (p *Params) Zero() {
	p.Each(func(_ string, m *mat.Dense) {
		m.Zero()
	})
}

// CopyFrom copies the values of src into p. Both must have the same structure.
func (p *Params) CopyFrom(src *Params) error {
	if err := p.sameStructure(src); err != nil {
		return err
	}
	for i, l := range src.Layers {
		dst := p.Layers[i]
		dst.W.Copy(l.W)
		dst.B.CopyVec(l.B)
		if l.Gamma != nil {
			dst.Gamma.CopyVec(l.Gamma)
			dst.Beta.CopyVec(l.Beta)
		}
	}
	return nil
}

func (p *Params) sameStructure(other *Params) error {
	if len(p.Layers) != len(other.Layers) {
		return invalidf("expected %d layers, got %d", len(p.Layers), len(other.Layers))
	}
	for i := range p.Layers {
		a, b := p.Layers[i], other.Layers[i]
		ar, ac := a.W.Dims()
		br, bc := b.W.Dims()
		if ar != br || ac != bc || a.B.Len() != b.B.Len() {
			return invalidf("layer %d: shape (%d, %d) does not match (%d, %d)", i+1, ar, ac, br, bc)
		}
		if (a.Gamma == nil) != (b.Gamma == nil) || (a.Beta == nil) != (b.Beta == nil) {
			return invalidf("layer %d: batch norm parameters present on one side only", i+1)
		}
		if a.Gamma != nil && (a.Gamma.Len() != b.Gamma.Len() || a.Beta.Len() != b.Beta.Len()) {
			return invalidf("layer %d: batch norm width mismatch", i+1)
		}
	}
	return nil
}

// rowView returns v as a 1xD matrix sharing its storage.
func rowView(v *mat.VecDense) *mat.Dense {
	raw := v.RawVector()
	if raw.Inc != 1 {
		panic("rowView: vector must be contiguous")
	}
	return mat.NewDense(1, raw.N, raw.Data[:raw.N])
}

func cloneVec(v *mat.VecDense) *mat.VecDense {
	if v == nil {
		return nil
	}
	out := mat.NewVecDense(v.Len(), nil)
	out.CopyVec(v)
	return out
}
